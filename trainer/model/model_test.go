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
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
)

func constantTensor(size int, values ...float64) []float64 {
	tensor := make([]float64, 0, channels*size*size)
	for c := 0; c < channels; c++ {
		for i := 0; i < size*size; i++ {
			tensor = append(tensor, values[c])
		}
	}

	return tensor
}

func newTestClassifier(t *testing.T, size, grid, classes int) *Classifier {
	extractor, err := NewPooledExtractor(size, grid)
	if err != nil {
		t.Fatal(err)
	}

	c, err := NewClassifier(extractor, classes, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}

	return c
}

func TestPooledExtractor_New(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		grid   int
		expect func(t *testing.T, e *PooledExtractor, err error)
	}{
		{
			name: "new extractor",
			size: 224,
			grid: 8,
			expect: func(t *testing.T, e *PooledExtractor, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(224, e.Size())
				assert.Equal(8, e.Grid())
				assert.Equal(192, e.NumFeatures())
			},
		},
		{
			name: "grid larger than size",
			size: 4,
			grid: 8,
			expect: func(t *testing.T, e *PooledExtractor, err error) {
				assert.True(t, dferrors.CheckError(err, dfcodes.InvalidArgument))
			},
		},
		{
			name: "zero grid",
			size: 4,
			grid: 0,
			expect: func(t *testing.T, e *PooledExtractor, err error) {
				assert.True(t, dferrors.CheckError(err, dfcodes.InvalidArgument))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, err := NewPooledExtractor(tc.size, tc.grid)
			tc.expect(t, e, err)
		})
	}
}

func TestPooledExtractor_Extract(t *testing.T) {
	assert := assert.New(t)
	e, err := NewPooledExtractor(4, 2)
	assert.NoError(err)

	features, err := e.Extract(constantTensor(4, 0.5, -1, 2))
	assert.NoError(err)
	assert.Len(features, 12)
	for i, v := range features {
		assert.InDelta([]float64{0.5, -1, 2}[i/4], v, 1e-12)
	}

	// Top left quadrant of the first channel holds ones, the rest zeros.
	tensor := make([]float64, channels*16)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			tensor[y*4+x] = 1
		}
	}

	features, err = e.Extract(tensor)
	assert.NoError(err)
	assert.Equal([]float64{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, features)

	_, err = e.Extract(make([]float64, 5))
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))
}

func TestClassifier_New(t *testing.T) {
	assert := assert.New(t)
	extractor, err := NewPooledExtractor(4, 2)
	assert.NoError(err)

	_, err = NewClassifier(nil, 3, rand.New(rand.NewSource(1)))
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))

	_, err = NewClassifier(extractor, 0, rand.New(rand.NewSource(1)))
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))

	c, err := NewClassifier(extractor, 3, rand.New(rand.NewSource(1)))
	assert.NoError(err)
	assert.Equal(3, c.NumClasses())
	assert.Equal(extractor, c.Extractor())
	assert.Len(c.Params(), 2)
	assert.Len(c.Grads(), 2)

	rows, cols := c.Params()[0].Dims()
	assert.Equal(3, rows)
	assert.Equal(12, cols)
	assert.Equal(0.0, mat.Sum(c.Params()[1]))
}

func TestClassifier_Forward(t *testing.T) {
	assert := assert.New(t)
	c := newTestClassifier(t, 4, 2, 3)

	logits, err := c.Forward([][]float64{constantTensor(4, 1, 1, 1), constantTensor(4, 0, 0, 0)})
	assert.NoError(err)
	rows, cols := logits.Dims()
	assert.Equal(2, rows)
	assert.Equal(3, cols)

	// Zero features leave only the zero bias.
	assert.Equal([]float64{0, 0, 0}, logits.RawRowView(1))

	_, err = c.Forward(nil)
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))

	_, err = c.Forward([][]float64{make([]float64, 3)})
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))
}

func TestClassifier_Backward(t *testing.T) {
	assert := assert.New(t)
	c := newTestClassifier(t, 4, 2, 3)
	loss := NewCrossEntropy()

	r := rand.New(rand.NewSource(2))
	inputs := make([][]float64, 4)
	for i := range inputs {
		inputs[i] = constantTensor(4, r.NormFloat64(), r.NormFloat64(), r.NormFloat64())
	}
	labels := []int{0, 1, 2, 1}

	logits, err := c.Forward(inputs)
	assert.NoError(err)
	_, dlogits, err := loss.Forward(logits, labels)
	assert.NoError(err)
	assert.NoError(c.Backward(dlogits))

	lossAt := func() float64 {
		logits, err := c.Forward(inputs)
		assert.NoError(err)
		value, _, err := loss.Forward(logits, labels)
		assert.NoError(err)
		return value
	}

	const eps = 1e-6
	for i, p := range c.Params() {
		grad := mat.DenseCopyOf(c.Grads()[i])
		rows, cols := p.Dims()
		for r := 0; r < rows; r++ {
			for col := 0; col < cols; col++ {
				origin := p.At(r, col)
				p.Set(r, col, origin+eps)
				plus := lossAt()
				p.Set(r, col, origin-eps)
				minus := lossAt()
				p.Set(r, col, origin)

				assert.InDelta((plus-minus)/(2*eps), grad.At(r, col), 1e-5)
			}
		}
	}
}

func TestClassifier_SetTraining(t *testing.T) {
	assert := assert.New(t)
	c := newTestClassifier(t, 4, 2, 3)

	c.SetTraining(false)
	logits, err := c.Forward([][]float64{constantTensor(4, 1, 1, 1)})
	assert.NoError(err)
	assert.True(dferrors.CheckError(c.Backward(logits), dfcodes.InvalidArgument))

	c.SetTraining(true)
	logits, err = c.Forward([][]float64{constantTensor(4, 1, 1, 1)})
	assert.NoError(err)
	assert.NoError(c.Backward(logits))
	assert.True(dferrors.CheckError(c.Backward(mat.NewDense(2, 3, nil)), dfcodes.InvalidArgument))
}

func TestClassifier_Fit(t *testing.T) {
	assert := assert.New(t)
	c := newTestClassifier(t, 2, 1, 2)
	loss := NewCrossEntropy()
	optimizer := NewAdam(0.1)

	inputs := [][]float64{constantTensor(2, -1, -1, -1), constantTensor(2, 1, 1, 1)}
	labels := []int{0, 1}

	var first, last float64
	for i := 0; i < 50; i++ {
		logits, err := c.Forward(inputs)
		assert.NoError(err)
		value, dlogits, err := loss.Forward(logits, labels)
		assert.NoError(err)
		assert.NoError(c.Backward(dlogits))
		assert.NoError(optimizer.Step(c.Params(), c.Grads()))

		if i == 0 {
			first = value
		}
		last = value
	}

	assert.Less(last, first)
	logits, err := c.Forward(inputs)
	assert.NoError(err)
	assert.Equal(labels, Predict(logits))
}

func TestPredict(t *testing.T) {
	logits := mat.NewDense(3, 3, []float64{
		1, 2, 3,
		3, 2, 1,
		0, 5, 5,
	})

	assert.Equal(t, []int{2, 0, 1}, Predict(logits))
}

func TestCrossEntropy_Forward(t *testing.T) {
	assert := assert.New(t)
	loss := NewCrossEntropy()

	value, grad, err := loss.Forward(mat.NewDense(2, 3, nil), []int{0, 2})
	assert.NoError(err)
	assert.InDelta(math.Log(3), value, 1e-12)
	for i := 0; i < 2; i++ {
		assert.InDelta(0, mat.Sum(grad.RowView(i)), 1e-12)
	}
	assert.InDelta((1.0/3-1)/2, grad.At(0, 0), 1e-12)
	assert.InDelta(1.0/3/2, grad.At(0, 1), 1e-12)

	// Large logits must not overflow.
	value, _, err = loss.Forward(mat.NewDense(1, 2, []float64{1000, 0}), []int{0})
	assert.NoError(err)
	assert.InDelta(0, value, 1e-12)

	_, _, err = loss.Forward(mat.NewDense(1, 2, nil), []int{2})
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))

	_, _, err = loss.Forward(mat.NewDense(1, 2, nil), []int{0, 1})
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))
}

func TestAdam_Step(t *testing.T) {
	assert := assert.New(t)
	optimizer := NewAdam(0.01)

	params := []*mat.Dense{mat.NewDense(1, 3, []float64{1, 1, 1})}
	grads := []*mat.Dense{mat.NewDense(1, 3, []float64{0.5, -2, 0})}
	assert.NoError(optimizer.Step(params, grads))

	// The first bias corrected step moves every param by the learning rate
	// against the sign of its gradient.
	assert.InDelta(0.99, params[0].At(0, 0), 1e-6)
	assert.InDelta(1.01, params[0].At(0, 1), 1e-6)
	assert.Equal(1.0, params[0].At(0, 2))

	assert.True(dferrors.CheckError(optimizer.Step(params, nil), dfcodes.InvalidArgument))
	assert.True(dferrors.CheckError(optimizer.Step(
		[]*mat.Dense{mat.NewDense(1, 3, nil), mat.NewDense(1, 1, nil)},
		[]*mat.Dense{mat.NewDense(1, 3, nil), mat.NewDense(1, 1, nil)},
	), dfcodes.InvalidArgument))
	assert.True(dferrors.CheckError(optimizer.Step(
		[]*mat.Dense{mat.NewDense(1, 3, nil)},
		[]*mat.Dense{mat.NewDense(3, 1, nil)},
	), dfcodes.InvalidArgument))
}

func TestCheckpoint(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "results", "model.ckpt")
	classNames := []string{"normal", "pneumonia", "COVID-19"}

	c := newTestClassifier(t, 4, 2, 3)
	c.Params()[1].Set(0, 1, 0.25)
	checkpointer := NewCheckpointer(path, classNames, c.Extractor())
	assert.Equal(path, checkpointer.Path())
	assert.NoError(checkpointer.Save(c))

	ckpt, err := LoadCheckpoint(path)
	assert.NoError(err)
	assert.Equal(CheckpointVersion, ckpt.Version)
	assert.Equal(classNames, ckpt.ClassNames)
	assert.Equal(4, ckpt.Size)
	assert.Equal(2, ckpt.Grid)
	assert.Len(ckpt.Params, 2)

	restored, err := NewClassifier(c.Extractor(), 3, rand.New(rand.NewSource(7)))
	assert.NoError(err)
	assert.NoError(ckpt.Restore(restored))
	for i, p := range c.Params() {
		assert.True(mat.Equal(p, restored.Params()[i]))
	}

	other := newTestClassifier(t, 4, 2, 2)
	assert.True(dferrors.CheckError(ckpt.Restore(other), dfcodes.InvalidArgument))

	entries, err := os.ReadDir(filepath.Dir(path))
	assert.NoError(err)
	assert.Len(entries, 1)
}

func TestLoadCheckpoint(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	_, err := LoadCheckpoint(filepath.Join(dir, "missing.ckpt"))
	assert.True(dferrors.CheckError(err, dfcodes.FilesystemError))

	garbage := filepath.Join(dir, "garbage.ckpt")
	assert.NoError(os.WriteFile(garbage, []byte{0xc1}, 0644))
	_, err = LoadCheckpoint(garbage)
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))

	future := filepath.Join(dir, "future.ckpt")
	b, err := msgpack.Marshal(&Checkpoint{Version: CheckpointVersion + 1})
	assert.NoError(err)
	assert.NoError(os.WriteFile(future, b, 0644))
	_, err = LoadCheckpoint(future)
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))
}
