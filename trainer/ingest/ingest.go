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

package ingest

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v3/disk"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
	logger "d7y.io/xray/internal/dflog"
	"d7y.io/xray/pkg/fileutils"
)

const (
	// ArchiveExt is the extension of dataset archives.
	ArchiveExt = ".zip"

	// DefaultMaxExtractSize is the default bound of the uncompressed size of an archive.
	DefaultMaxExtractSize = 16 * units.GiB
)

// Institution is a source of images with one subdirectory per class.
type Institution struct {
	// Name is the institution name.
	Name string

	// Root is the institution directory.
	Root string

	// Archive is the archive the institution was extracted from, if any.
	Archive string
}

// Option is a functional option for configuring the discovery.
type Option func(d *discoverer)

var diskUsage = disk.Usage

// WithMaxExtractSize bounds the uncompressed size of an archive.
func WithMaxExtractSize(size int64) Option {
	return func(d *discoverer) {
		d.maxExtractSize = size
	}
}

type discoverer struct {
	datasetsDir    string
	maxExtractSize int64
}

// Discover returns the institutions of datasetsDir sorted by name. Directories
// are institutions. Archives named <name>.zip are extracted into datasetsDir
// and their institution is datasetsDir/<name>. Other entries are skipped.
func Discover(ctx context.Context, datasetsDir string, options ...Option) ([]Institution, error) {
	if !fileutils.IsDir(datasetsDir) {
		return nil, dferrors.Newf(dfcodes.MissingDatasetsDirectory, "datasets directory %s not found", datasetsDir)
	}

	d := &discoverer{
		datasetsDir:    filepath.Clean(datasetsDir),
		maxExtractSize: DefaultMaxExtractSize,
	}

	for _, opt := range options {
		opt(d)
	}

	entries, err := os.ReadDir(d.datasetsDir)
	if err != nil {
		return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "read %s", d.datasetsDir)
	}

	institutions := map[string]Institution{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()
		path := filepath.Join(d.datasetsDir, name)
		// Stat follows symlinked institutions and archives.
		isDir := fileutils.IsDir(path)
		switch {
		case isDir && isIgnored(name):
			logger.Infof("skip %s", path)
		case isDir:
			if _, ok := institutions[path]; !ok {
				institutions[path] = Institution{Name: name, Root: path}
			}
		case fileutils.IsRegularFile(path) && fileutils.HasExt(name, ArchiveExt):
			institution, err := d.extract(ctx, path)
			if err != nil {
				return nil, err
			}

			institutions[institution.Root] = institution
		default:
			logger.Infof("skip %s", path)
		}
	}

	if len(institutions) == 0 {
		return nil, dferrors.Newf(dfcodes.NoUsableDatasets, "no datasets found in %s", d.datasetsDir)
	}

	var result []Institution
	for _, institution := range institutions {
		result = append(result, institution)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

// extract unpacks the archive into the datasets directory.
func (d *discoverer) extract(ctx context.Context, archive string) (Institution, error) {
	name := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	institution := Institution{
		Name:    name,
		Root:    filepath.Join(d.datasetsDir, name),
		Archive: archive,
	}

	r, err := zip.OpenReader(archive)
	if err != nil {
		return Institution{}, dferrors.Wrap(dfcodes.FilesystemError, err, "open archive %s", archive)
	}
	defer r.Close()

	var total uint64
	for _, f := range r.File {
		total += f.UncompressedSize64
	}

	if total > uint64(d.maxExtractSize) {
		return Institution{}, dferrors.Newf(dfcodes.FilesystemError, "archive %s expands to %s, exceeds %s",
			archive, units.BytesSize(float64(total)), units.BytesSize(float64(d.maxExtractSize)))
	}

	if usage, err := diskUsage(d.datasetsDir); err != nil {
		logger.Warnf("stat disk usage of %s failed: %s", d.datasetsDir, err.Error())
	} else if total > usage.Free {
		return Institution{}, dferrors.Newf(dfcodes.FilesystemError, "archive %s expands to %s, only %s free in %s",
			archive, units.BytesSize(float64(total)), units.BytesSize(float64(usage.Free)), d.datasetsDir)
	}

	logger.Infof("extract %s of %s into %s", archive, units.BytesSize(float64(total)), d.datasetsDir)
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return Institution{}, err
		}

		if err := d.extractFile(f); err != nil {
			return Institution{}, dferrors.Wrap(dfcodes.FilesystemError, err, "extract archive %s", archive)
		}
	}

	if !fileutils.IsDir(institution.Root) {
		return Institution{}, dferrors.Newf(dfcodes.FilesystemError, "archive %s has no top level %s directory", archive, name)
	}

	return institution, nil
}

// extractFile writes one archive member under the datasets directory,
// members escaping it are rejected.
func (d *discoverer) extractFile(f *zip.File) error {
	target := filepath.Join(d.datasetsDir, filepath.FromSlash(f.Name))
	if !strings.HasPrefix(target, d.datasetsDir+string(os.PathSeparator)) {
		return dferrors.Newf(dfcodes.FilesystemError, "illegal archive member %s", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0700)
	}

	if !f.Mode().IsRegular() {
		logger.Infof("skip archive member %s", f.Name)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, io.LimitReader(src, int64(f.UncompressedSize64))); err != nil {
		dst.Close()
		return err
	}

	return dst.Close()
}

// isIgnored reports whether the directory is archive metadata or hidden.
func isIgnored(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}

// ClassDirs returns the class directories of the institutions per class.
func ClassDirs(institutions []Institution, classNames []string) map[string][]string {
	dirs := make(map[string][]string, len(classNames))
	for _, institution := range institutions {
		for _, className := range classNames {
			dirs[className] = append(dirs[className], filepath.Join(institution.Root, className))
		}
	}

	return dirs
}

// TestClassDirs returns the class directories of the test splits per class.
func TestClassDirs(testRoots []string, classNames []string) map[string][]string {
	dirs := make(map[string][]string, len(classNames))
	for _, root := range testRoots {
		for _, className := range classNames {
			dirs[className] = append(dirs[className], filepath.Join(root, className))
		}
	}

	return dirs
}
