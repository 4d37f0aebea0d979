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

package model

import (
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
	logger "d7y.io/xray/internal/dflog"
	"d7y.io/xray/pkg/fileutils"
)

const (
	// CheckpointVersion is the version of the checkpoint encoding.
	CheckpointVersion = 1

	// checkpointFilePerm is the permission of checkpoint files.
	checkpointFilePerm = 0644
)

// Param is an encoded parameter matrix.
type Param struct {
	Rows int       `msgpack:"rows"`
	Cols int       `msgpack:"cols"`
	Data []float64 `msgpack:"data"`
}

// Checkpoint is the encoded state of a classifier.
type Checkpoint struct {
	Version    int      `msgpack:"version"`
	ClassNames []string `msgpack:"classNames"`
	Size       int      `msgpack:"size"`
	Grid       int      `msgpack:"grid"`
	Params     []Param  `msgpack:"params"`
}

// NewCheckpoint returns the checkpoint of the params of m.
func NewCheckpoint(m Model, classNames []string, extractor *PooledExtractor) *Checkpoint {
	ckpt := &Checkpoint{
		Version:    CheckpointVersion,
		ClassNames: classNames,
		Size:       extractor.Size(),
		Grid:       extractor.Grid(),
	}

	for _, p := range m.Params() {
		rows, cols := p.Dims()
		data := make([]float64, 0, rows*cols)
		for i := 0; i < rows; i++ {
			data = append(data, p.RawRowView(i)...)
		}

		ckpt.Params = append(ckpt.Params, Param{Rows: rows, Cols: cols, Data: data})
	}

	return ckpt
}

// Restore copies the checkpoint params into the params of m.
func (c *Checkpoint) Restore(m Model) error {
	params := m.Params()
	if len(params) != len(c.Params) {
		return dferrors.Newf(dfcodes.InvalidArgument, "checkpoint holds %d params, model requires %d", len(c.Params), len(params))
	}

	for i, p := range params {
		rows, cols := p.Dims()
		encoded := c.Params[i]
		if encoded.Rows != rows || encoded.Cols != cols || len(encoded.Data) != rows*cols {
			return dferrors.Newf(dfcodes.InvalidArgument, "checkpoint param %d is %dx%d, model requires %dx%d", i, encoded.Rows, encoded.Cols, rows, cols)
		}

		p.Copy(mat.NewDense(rows, cols, encoded.Data))
	}

	return nil
}

// SaveCheckpoint atomically writes the checkpoint to path.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	if err := fileutils.WriteFileAtomic(path, checkpointFilePerm, func(w io.Writer) error {
		return msgpack.NewEncoder(w).Encode(ckpt)
	}); err != nil {
		return dferrors.Wrap(dfcodes.FilesystemError, err, "write checkpoint %s", path)
	}

	return nil
}

// LoadCheckpoint reads the checkpoint at path.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "open checkpoint %s", path)
	}
	defer f.Close()

	var ckpt Checkpoint
	if err := msgpack.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, dferrors.Wrap(dfcodes.InvalidArgument, err, "decode checkpoint %s", path)
	}

	if ckpt.Version != CheckpointVersion {
		return nil, dferrors.Newf(dfcodes.InvalidArgument, "unsupported checkpoint version %d", ckpt.Version)
	}

	return &ckpt, nil
}

type checkpointer struct {
	path       string
	classNames []string
	extractor  *PooledExtractor
}

// NewCheckpointer returns a checkpointer writing to path.
func NewCheckpointer(path string, classNames []string, extractor *PooledExtractor) Checkpointer {
	return &checkpointer{
		path:       path,
		classNames: classNames,
		extractor:  extractor,
	}
}

// Save atomically writes the params of m.
func (c *checkpointer) Save(m Model) error {
	if err := SaveCheckpoint(c.path, NewCheckpoint(m, c.classNames, c.extractor)); err != nil {
		return err
	}

	logger.Infof("checkpoint saved to %s", c.path)
	return nil
}

// Path returns where the checkpoint is written.
func (c *checkpointer) Path() string {
	return c.path
}
