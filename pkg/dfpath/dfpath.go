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

package dfpath

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/go-multierror"
)

// Dfpath resolves the directories the trainer writes to.
type Dfpath interface {
	// WorkHome is the parent of the default directories.
	WorkHome() string
	WorkHomeMode() fs.FileMode

	// LogDir holds the core and train logs.
	LogDir() string

	// DataDir holds evaluation records and extracted archives.
	DataDir() string
	DataDirMode() fs.FileMode

	// ResultDir holds checkpoints.
	ResultDir() string
}

type dfpath struct {
	workHome     string
	workHomeMode fs.FileMode
	logDir       string
	dataDir      string
	dataDirMode  fs.FileMode
	resultDir    string
}

// Option overrides one of the default directories.
type Option func(d *dfpath)

func WithWorkHome(dir string) Option {
	return func(d *dfpath) { d.workHome = dir }
}

func WithWorkHomeMode(mode fs.FileMode) Option {
	return func(d *dfpath) { d.workHomeMode = mode }
}

func WithLogDir(dir string) Option {
	return func(d *dfpath) { d.logDir = dir }
}

func WithDataDir(dir string) Option {
	return func(d *dfpath) { d.dataDir = dir }
}

func WithDataDirMode(mode fs.FileMode) Option {
	return func(d *dfpath) { d.dataDirMode = mode }
}

func WithResultDir(dir string) Option {
	return func(d *dfpath) { d.resultDir = dir }
}

// New applies options over the platform defaults and creates every directory.
// All creation errors are reported together.
func New(options ...Option) (Dfpath, error) {
	d := &dfpath{
		workHome:     DefaultWorkHome,
		workHomeMode: DefaultWorkHomeMode,
		logDir:       DefaultLogDir,
		dataDir:      DefaultDataDir,
		dataDirMode:  DefaultDataDirMode,
		resultDir:    DefaultResultDir,
	}
	for _, opt := range options {
		opt(d)
	}

	var errs *multierror.Error
	for _, dir := range []struct {
		name string
		path string
		mode fs.FileMode
	}{
		{"work home", d.workHome, d.workHomeMode},
		{"log", d.logDir, 0700},
		{"data", d.dataDir, d.dataDirMode},
		{"result", d.resultDir, 0755},
	} {
		if err := os.MkdirAll(dir.path, dir.mode); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("create %s directory: %w", dir.name, err))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *dfpath) WorkHome() string { return d.workHome }
func (d *dfpath) WorkHomeMode() fs.FileMode { return d.workHomeMode }
func (d *dfpath) LogDir() string { return d.logDir }
func (d *dfpath) DataDir() string { return d.dataDir }
func (d *dfpath) DataDirMode() fs.FileMode { return d.dataDirMode }
func (d *dfpath) ResultDir() string { return d.resultDir }
