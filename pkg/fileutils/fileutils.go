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

// Package fileutils provides utilities supplementing the standard 'os' and 'path' package.
package fileutils

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// MkdirAll creates a directory named path on perm(0755).
func MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

// DeleteFile deletes a regular file not a directory.
func DeleteFile(path string) error {
	if PathExist(path) {
		if IsDir(path) {
			return errors.Errorf("delete %s: not a regular file", path)
		}

		return os.Remove(path)
	}

	return nil
}

// OpenFile opens a file. If the parent directory of the file isn't exist,
// it will create the directory.
func OpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	if PathExist(path) {
		return os.OpenFile(path, flag, perm)
	}

	if err := MkdirAll(filepath.Dir(path)); err != nil {
		return nil, err
	}

	return os.OpenFile(path, flag, perm)
}

// CopyFile copies the file src to dst, dst must not exist.
func CopyFile(dst string, src string) (written int64, err error) {
	var (
		s *os.File
		d *os.File
	)
	if !IsRegularFile(src) {
		return 0, errors.Errorf("copy %s to %s: src is not a regular file", src, dst)
	}

	if s, err = os.Open(src); err != nil {
		return 0, errors.Wrapf(err, "copy %s to %s: open source file", src, dst)
	}
	defer s.Close()

	if PathExist(dst) {
		return 0, errors.Errorf("copy %s to %s: dst file already exists", src, dst)
	}

	if d, err = OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644); err != nil {
		return 0, errors.Wrapf(err, "copy %s to %s: open destination file", src, dst)
	}

	if written, err = io.Copy(d, s); err != nil {
		d.Close()
		return written, errors.Wrapf(err, "copy %s to %s", src, dst)
	}

	return written, d.Close()
}

// PathExist reports whether the path is exist.
// Any error get from os.Stat, it will return false.
func PathExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// IsDir reports whether the path is a directory.
func IsDir(name string) bool {
	f, e := os.Stat(name)
	if e != nil {
		return false
	}
	return f.IsDir()
}

// IsRegularFile reports whether the file is a regular file.
// If the given file is a symbol link, it will follow the link.
func IsRegularFile(name string) bool {
	f, e := os.Stat(name)
	if e != nil {
		return false
	}

	return f.Mode().IsRegular()
}

// HasExt reports whether name ends with one of exts, ignoring case.
func HasExt(name string, exts ...string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}

	return false
}

// ListFilesWithExt returns the sorted names of the non-directory entries
// directly in dir whose extension is one of exts.
func ListFilesWithExt(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if HasExt(entry.Name(), exts...) {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}

// WriteFileAtomic writes the content produced by write to a temporary file
// in the directory of path and renames it over path.
func WriteFileAtomic(path string, perm os.FileMode, write func(w io.Writer) error) error {
	if err := MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Chmod(tmp, perm); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}
