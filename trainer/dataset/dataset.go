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

package dataset

import (
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
	logger "d7y.io/xray/internal/dflog"
	"d7y.io/xray/pkg/container/set"
	"d7y.io/xray/pkg/fileutils"
	"d7y.io/xray/trainer/transform"
)

// DefaultExtensions are the image extensions accepted by default.
var DefaultExtensions = []string{".png"}

// ImageRecord is an image file tagged with its class.
type ImageRecord struct {
	// Path is the path of the image file.
	Path string

	// Class is the class name of the image.
	Class string

	// Label is the position of the class in the class list.
	Label int
}

// Example is a loaded image with its label.
type Example struct {
	// Tensor is the transformed image.
	Tensor transform.Tensor

	// Label is the position of the class in the class list.
	Label int

	// Path is the path of the image file.
	Path string
}

// Option is a functional option for configuring the dataset.
type Option func(d *Dataset)

// WithRand sets the random source of class draws.
func WithRand(r *rand.Rand) Option {
	return func(d *Dataset) {
		d.rand = r
	}
}

// WithExtensions sets the accepted image extensions.
func WithExtensions(exts ...string) Option {
	return func(d *Dataset) {
		d.extensions = exts
	}
}

// WithExclude skips the image files at the given paths.
func WithExclude(paths ...string) Option {
	return func(d *Dataset) {
		for _, path := range paths {
			d.exclude.Add(filepath.Clean(path))
		}
	}
}

// Dataset is a logical dataset over class directories. Every access draws a
// class uniformly at random, so classes are balanced whatever their sizes.
type Dataset struct {
	classNames []string
	records    [][]ImageRecord
	transform  transform.Transform
	extensions []string
	exclude    set.SafeSet[string]

	// emptyClass is the first class without images, it fails every access.
	emptyClass string

	mu   sync.Mutex
	rand *rand.Rand
}

// New enumerates the images of every class in the directories associated
// with it. Classes are enumerated in the order of classNames.
func New(classNames []string, dirs map[string][]string, tf transform.Transform, options ...Option) (*Dataset, error) {
	if len(classNames) == 0 {
		return nil, dferrors.New(dfcodes.InvalidArgument, "dataset requires class names")
	}

	if tf == nil {
		return nil, dferrors.New(dfcodes.InvalidArgument, "dataset requires transform")
	}

	d := &Dataset{
		classNames: classNames,
		records:    make([][]ImageRecord, len(classNames)),
		transform:  tf,
		extensions: DefaultExtensions,
		exclude:    set.NewSafeSet[string](),
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range options {
		opt(d)
	}

	seen := make(map[string]struct{}, len(classNames))
	for label, className := range classNames {
		if _, ok := seen[className]; ok {
			return nil, dferrors.Newf(dfcodes.InvalidArgument, "duplicate class %s", className)
		}
		seen[className] = struct{}{}

		for _, dir := range dirs[className] {
			names, err := fileutils.ListFilesWithExt(dir, d.extensions...)
			if err != nil {
				return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "list images of class %s", className)
			}

			for _, name := range names {
				path := filepath.Join(dir, name)
				if d.exclude.Contains(filepath.Clean(path)) {
					continue
				}

				d.records[label] = append(d.records[label], ImageRecord{
					Path:  path,
					Class: className,
					Label: label,
				})
			}
		}

		logger.Infof("found %d %s examples", len(d.records[label]), className)
		if len(d.records[label]) == 0 && d.emptyClass == "" {
			d.emptyClass = className
		}
	}

	if d.emptyClass != "" {
		logger.Warnf("class %s has no images, balanced access fails", d.emptyClass)
	}

	return d, nil
}

// Len returns the number of images of all classes.
func (d *Dataset) Len() int {
	var n int
	for _, records := range d.records {
		n += len(records)
	}

	return n
}

// Get draws a class uniformly at random and loads its image at index
// modulo the number of images of the class.
func (d *Dataset) Get(index int) (Example, error) {
	if index < 0 {
		return Example{}, dferrors.Newf(dfcodes.InvalidArgument, "invalid index %d", index)
	}

	if err := d.checkEmpty(); err != nil {
		return Example{}, err
	}

	records := d.records[d.drawClass()]
	record := records[index%len(records)]
	tensor, err := d.transform.Apply(record.Path)
	if err != nil {
		return Example{}, err
	}

	return Example{
		Tensor: tensor,
		Label:  record.Label,
		Path:   record.Path,
	}, nil
}

// Count returns the number of images of the class, 0 for unknown classes.
func (d *Dataset) Count(className string) int {
	for label, name := range d.classNames {
		if name == className {
			return len(d.records[label])
		}
	}

	return 0
}

// ClassNames returns the ordered class list.
func (d *Dataset) ClassNames() []string {
	return d.classNames
}

// checkEmpty fails with DatasetEmptyClass whatever class a draw would pick.
func (d *Dataset) checkEmpty() error {
	if d.emptyClass != "" {
		return dferrors.Newf(dfcodes.DatasetEmptyClass, "class %s has no images", d.emptyClass)
	}

	return nil
}

// drawClass returns a label drawn uniformly from the class list.
func (d *Dataset) drawClass() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.rand.Intn(len(d.classNames))
}

// intn returns a random number in [0, n).
func (d *Dataset) intn(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.rand.Intn(n)
}
