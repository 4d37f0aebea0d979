/*
 *     Copyright 2023 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

//go:generate mockgen -destination mocks/storage_mock.go -source storage.go -package mocks

package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/hashicorp/go-multierror"

	"d7y.io/xray/pkg/container/set"
	"d7y.io/xray/pkg/fileutils"
)

const (
	// EvaluationFilePrefix is prefix of evaluation file name.
	EvaluationFilePrefix = "evaluation"

	// CSVFileExt is extension of file name.
	CSVFileExt = "csv"
)

// Storage is the interface used for storage.
type Storage interface {
	// CreateEvaluation appends evaluation records to the csv file of the given run.
	CreateEvaluation(string, ...EvaluationRecord) error

	// ListEvaluation returns evaluation records in the csv file of the given run.
	ListEvaluation(string) ([]EvaluationRecord, error)

	// OpenEvaluation opens the evaluation file of the given run for read.
	OpenEvaluation(string) (io.ReadCloser, error)

	// Clear removes all files.
	Clear() error
}

type storage struct {
	baseDir string
	runIDs  set.SafeSet[string]
	mu      *sync.Mutex
}

// New returns a new Storage instance.
func New(baseDir string) Storage {
	return &storage{
		baseDir: baseDir,
		runIDs:  set.NewSafeSet[string](),
		mu:      &sync.Mutex{},
	}
}

// CreateEvaluation appends evaluation records to the csv file of the given run.
func (s *storage) CreateEvaluation(runID string, records ...EvaluationRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.evaluationFilename(runID), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gocsv.MarshalWithoutHeaders(records, file); err != nil {
		return err
	}

	// Add run id.
	s.runIDs.Add(runID)
	return nil
}

// ListEvaluation returns evaluation records in the csv file of the given run.
func (s *storage) ListEvaluation(runID string) ([]EvaluationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.evaluationFilename(runID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []EvaluationRecord
	if err := gocsv.UnmarshalWithoutHeaders(file, &records); err != nil {
		return nil, err
	}

	return records, nil
}

// OpenEvaluation opens the evaluation file of the given run for read.
func (s *storage) OpenEvaluation(runID string) (io.ReadCloser, error) {
	file, err := os.Open(s.evaluationFilename(runID))
	if err != nil {
		return nil, err
	}

	return file, nil
}

// Clear removes all files.
func (s *storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs *multierror.Error
	for _, runID := range s.runIDs.Values() {
		if err := fileutils.DeleteFile(s.evaluationFilename(runID)); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		s.runIDs.Delete(runID)
	}

	return errs.ErrorOrNil()
}

// evaluationFilename generates evaluation file name based on the given run id.
func (s *storage) evaluationFilename(runID string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s-%s.%s", EvaluationFilePrefix, runID, CSVFileExt))
}
