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

package split

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/opencontainers/go-digest"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
	logger "d7y.io/xray/internal/dflog"
	"d7y.io/xray/pkg/fileutils"
)

const (
	// DefaultDirName is the directory of the test split inside an institution.
	DefaultDirName = "test"

	// DefaultQuota is the default number of images sampled per class.
	DefaultQuota = 30

	// lockFilePrefix names the lock serializing builds of an institution.
	lockFilePrefix = "xray-split-"

	// lockRetryDelay is the delay between two attempts to take the lock.
	lockRetryDelay = 100 * time.Millisecond
)

// DefaultExtensions are the image extensions accepted by default.
var DefaultExtensions = []string{".png"}

// Split is a built test split.
type Split struct {
	// Dir is the test split directory.
	Dir string

	// Samples are the sampled file names per class.
	Samples map[string][]string
}

// Paths returns the original paths of the sampled images of the class under root.
func (s *Split) Paths(root, className string) []string {
	var paths []string
	for _, name := range s.Samples[className] {
		paths = append(paths, filepath.Join(root, className, name))
	}

	return paths
}

// Builder builds the test split of an institution.
type Builder interface {
	// BuildSplit rebuilds root/test and returns the split with its samples.
	BuildSplit(ctx context.Context, root string) (*Split, error)
}

// Option is a functional option for configuring the builder.
type Option func(b *builder)

// WithRand sets the random source of samples.
func WithRand(r *rand.Rand) Option {
	return func(b *builder) {
		b.rand = r
	}
}

// WithExtensions sets the accepted image extensions.
func WithExtensions(exts ...string) Option {
	return func(b *builder) {
		b.extensions = exts
	}
}

// WithLockDir sets the directory holding the build locks, the system temp
// directory by default. Locks never land inside an institution.
func WithLockDir(dir string) Option {
	return func(b *builder) {
		b.lockDir = dir
	}
}

// WithDirName sets the name of the test split directory.
func WithDirName(name string) Option {
	return func(b *builder) {
		b.dirName = name
	}
}

type builder struct {
	classNames []string
	quota      int
	extensions []string
	dirName    string
	lockDir    string

	mu   sync.Mutex
	rand *rand.Rand
}

// New returns a builder sampling quota images of every class.
func New(classNames []string, quota int, options ...Option) Builder {
	b := &builder{
		classNames: classNames,
		quota:      quota,
		extensions: DefaultExtensions,
		dirName:    DefaultDirName,
		lockDir:    os.TempDir(),
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range options {
		opt(b)
	}

	return b
}

// BuildSplit deletes root/test, samples quota images of every class without
// replacement and copies them into root/test/<class>. Every class is checked
// before anything is deleted, so a class short of images leaves root untouched.
func (b *builder) BuildSplit(ctx context.Context, root string) (*Split, error) {
	if b.quota <= 0 {
		return nil, dferrors.Newf(dfcodes.InvalidArgument, "invalid quota %d", b.quota)
	}

	log := logger.WithInstitution(filepath.Base(root), root)

	lock := flock.New(b.lockFilename(root))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "lock %s", root)
	}

	if !locked {
		return nil, dferrors.Newf(dfcodes.FilesystemError, "lock %s", root)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warnf("unlock test split failed: %v", err)
		}
	}()

	// Check the quota of every class first.
	names := make(map[string][]string, len(b.classNames))
	for _, className := range b.classNames {
		files, err := fileutils.ListFilesWithExt(filepath.Join(root, className), b.extensions...)
		if err != nil {
			return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "list images of class %s", className)
		}

		if len(files) < b.quota {
			return nil, dferrors.Newf(dfcodes.InsufficientImages, "class %s of %s has %d images, requires %d", className, root, len(files), b.quota)
		}

		names[className] = files
	}

	split := &Split{
		Dir:     filepath.Join(root, b.dirName),
		Samples: make(map[string][]string, len(b.classNames)),
	}

	if err := os.RemoveAll(split.Dir); err != nil {
		return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "delete %s", split.Dir)
	}

	for _, className := range b.classNames {
		if err := os.MkdirAll(filepath.Join(split.Dir, className), 0700); err != nil {
			return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "create %s", filepath.Join(split.Dir, className))
		}
	}

	for _, className := range b.classNames {
		samples := b.sample(names[className])
		for _, name := range samples {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			src := filepath.Join(root, className, name)
			dst := filepath.Join(split.Dir, className, name)
			if _, err := fileutils.CopyFile(dst, src); err != nil {
				return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "copy %s", src)
			}
		}

		split.Samples[className] = samples
		log.Infof("sampled %d %s test images", len(samples), className)
	}

	return split, nil
}

// lockFilename keys the lock by the cleaned absolute root.
func (b *builder) lockFilename(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return filepath.Join(b.lockDir, lockFilePrefix+digest.FromString(filepath.Clean(root)).Encoded()[:16]+".lock")
}

// sample draws quota names uniformly without replacement.
func (b *builder) sample(names []string) []string {
	b.mu.Lock()
	perm := b.rand.Perm(len(names))
	b.mu.Unlock()

	samples := make([]string, 0, b.quota)
	for _, i := range perm[:b.quota] {
		samples = append(samples, names[i])
	}

	sort.Strings(samples)
	return samples
}
