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

package fileutils

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

func TestFileUtils(t *testing.T) {
	suite.Run(t, new(FileUtilTestSuite))
}

type FileUtilTestSuite struct {
	suite.Suite
	tmpDir string
}

func (s *FileUtilTestSuite) SetupTest() {
	s.tmpDir = s.T().TempDir()
}

func (s *FileUtilTestSuite) TestMkdirAll() {
	dirPath := filepath.Join(s.tmpDir, "TestMkdirAll", "a", "b")
	s.Nil(MkdirAll(dirPath))
	s.True(IsDir(dirPath))

	f, err := os.Create(filepath.Join(s.tmpDir, "createFile"))
	s.Require().NoError(err)
	f.Close()
	s.NotNil(MkdirAll(filepath.Join(f.Name(), "sub")))
}

func (s *FileUtilTestSuite) TestPathExist() {
	pathStr := filepath.Join(s.tmpDir, "TestPathExist")
	s.False(PathExist(pathStr))

	s.Require().NoError(os.WriteFile(pathStr, nil, 0644))
	s.True(PathExist(pathStr))
	s.True(IsRegularFile(pathStr))
	s.False(IsDir(pathStr))
}

func (s *FileUtilTestSuite) TestDeleteFile() {
	pathStr := filepath.Join(s.tmpDir, "TestDeleteFile")
	s.Require().NoError(os.WriteFile(pathStr, nil, 0644))
	s.Nil(DeleteFile(pathStr))
	s.False(PathExist(pathStr))

	dirStr := filepath.Join(s.tmpDir, "test_delete_file")
	s.Require().NoError(os.Mkdir(dirStr, 0755))
	s.NotNil(DeleteFile(dirStr))

	s.Nil(DeleteFile(filepath.Join(s.tmpDir, "test", "empty", "file")))
}

func (s *FileUtilTestSuite) TestOpenFile() {
	f1 := filepath.Join(s.tmpDir, "dir1", "TestOpenFile")
	f, err := OpenFile(f1, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	s.Nil(err)
	s.Nil(f.Close())
	s.True(IsRegularFile(f1))
}

func (s *FileUtilTestSuite) TestCopyFile() {
	src := filepath.Join(s.tmpDir, "src.png")
	s.Require().NoError(os.WriteFile(src, []byte("foo"), 0644))

	dst := filepath.Join(s.tmpDir, "test", "COVID", "src.png")
	written, err := CopyFile(dst, src)
	s.Nil(err)
	s.Equal(int64(3), written)

	content, err := os.ReadFile(dst)
	s.Nil(err)
	s.Equal("foo", string(content))
	s.True(PathExist(src))

	_, err = CopyFile(dst, src)
	s.EqualError(err, "copy "+src+" to "+dst+": dst file already exists")

	_, err = CopyFile(dst, filepath.Join(s.tmpDir, "missing.png"))
	s.Error(err)
}

func (s *FileUtilTestSuite) TestListFilesWithExt() {
	for _, name := range []string{"b.PNG", "a.png", "c.jpg", "d.Png", "e"} {
		s.Require().NoError(os.WriteFile(filepath.Join(s.tmpDir, name), nil, 0644))
	}
	s.Require().NoError(os.Mkdir(filepath.Join(s.tmpDir, "dir.png"), 0755))

	names, err := ListFilesWithExt(s.tmpDir, ".png")
	s.Nil(err)
	s.Equal([]string{"a.png", "b.PNG", "d.Png"}, names)

	_, err = ListFilesWithExt(filepath.Join(s.tmpDir, "missing"), ".png")
	s.True(errors.Is(err, os.ErrNotExist))
}

func (s *FileUtilTestSuite) TestWriteFileAtomic() {
	path := filepath.Join(s.tmpDir, "results", "model.ckpt")
	s.Nil(WriteFileAtomic(path, 0644, func(w io.Writer) error {
		_, err := w.Write([]byte("foo"))
		return err
	}))

	s.Nil(WriteFileAtomic(path, 0644, func(w io.Writer) error {
		_, err := w.Write([]byte("bar"))
		return err
	}))

	content, err := os.ReadFile(path)
	s.Nil(err)
	s.Equal("bar", string(content))

	s.EqualError(WriteFileAtomic(path, 0644, func(w io.Writer) error {
		return errors.New("foo")
	}), "foo")

	content, err = os.ReadFile(path)
	s.Nil(err)
	s.Equal("bar", string(content))

	entries, err := os.ReadDir(filepath.Dir(path))
	s.Nil(err)
	s.Len(entries, 1)
}
