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

//go:generate mockgen -destination mocks/model_mock.go -source model.go -package mocks

package model

import (
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
)

// Model is a classifier trained by gradient descent.
type Model interface {
	// Forward returns the logits of the inputs, one row per input.
	Forward(inputs [][]float64) (*mat.Dense, error)

	// Backward accumulates the gradients of the parameters from the
	// gradient of the loss with respect to the logits of the last Forward.
	Backward(dlogits *mat.Dense) error

	// Params returns the trainable parameters.
	Params() []*mat.Dense

	// Grads returns the gradients of the parameters, in the order of Params.
	Grads() []*mat.Dense

	// SetTraining switches between training and evaluation mode.
	SetTraining(training bool)

	// NumClasses returns the number of classes.
	NumClasses() int
}

// Loss computes a loss and its gradient with respect to the logits.
type Loss interface {
	Forward(logits *mat.Dense, labels []int) (float64, *mat.Dense, error)
}

// Optimizer updates parameters from their gradients.
type Optimizer interface {
	Step(params, grads []*mat.Dense) error
}

// Checkpointer persists the parameters of a model.
type Checkpointer interface {
	// Save writes the parameters of the model.
	Save(target Model) error

	// Path returns where the checkpoint is written.
	Path() string
}

// Classifier is a frozen feature extractor followed by a trainable linear head.
type Classifier struct {
	extractor *PooledExtractor
	classes   int

	// Head weights, classes x features, and bias, 1 x classes.
	weight *mat.Dense
	bias   *mat.Dense

	dweight *mat.Dense
	dbias   *mat.Dense

	mu       sync.Mutex
	training bool
	features *mat.Dense
}

// NewClassifier returns a classifier whose head weights are drawn from a
// normal distribution scaled by 0.01 and whose bias is zero.
func NewClassifier(extractor *PooledExtractor, classes int, r *rand.Rand) (*Classifier, error) {
	if extractor == nil {
		return nil, dferrors.New(dfcodes.InvalidArgument, "classifier requires extractor")
	}

	if classes <= 0 {
		return nil, dferrors.Newf(dfcodes.InvalidArgument, "invalid number of classes %d", classes)
	}

	features := extractor.NumFeatures()
	weight := mat.NewDense(classes, features, nil)
	for i := 0; i < classes; i++ {
		for j := 0; j < features; j++ {
			weight.Set(i, j, r.NormFloat64()*0.01)
		}
	}

	return &Classifier{
		extractor: extractor,
		classes:   classes,
		weight:    weight,
		bias:      mat.NewDense(1, classes, nil),
		dweight:   mat.NewDense(classes, features, nil),
		dbias:     mat.NewDense(1, classes, nil),
		training:  true,
	}, nil
}

// Forward returns the logits of the inputs, one row per input.
func (c *Classifier) Forward(inputs [][]float64) (*mat.Dense, error) {
	if len(inputs) == 0 {
		return nil, dferrors.New(dfcodes.InvalidArgument, "forward requires inputs")
	}

	features := mat.NewDense(len(inputs), c.extractor.NumFeatures(), nil)
	for i, input := range inputs {
		row, err := c.extractor.Extract(input)
		if err != nil {
			return nil, err
		}

		features.SetRow(i, row)
	}

	logits := mat.NewDense(len(inputs), c.classes, nil)
	logits.Mul(features, c.weight.T())
	bias := c.bias.RawRowView(0)
	for i := 0; i < len(inputs); i++ {
		row := logits.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}

	c.mu.Lock()
	if c.training {
		c.features = features
	}
	c.mu.Unlock()

	return logits, nil
}

// Backward sets the gradients of the head from the gradient of the logits.
func (c *Classifier) Backward(dlogits *mat.Dense) error {
	c.mu.Lock()
	features := c.features
	c.mu.Unlock()

	if features == nil {
		return dferrors.New(dfcodes.InvalidArgument, "backward requires a forward in training mode")
	}

	rows, cols := dlogits.Dims()
	if frows, _ := features.Dims(); rows != frows || cols != c.classes {
		return dferrors.Newf(dfcodes.InvalidArgument, "invalid logits gradient shape %dx%d", rows, cols)
	}

	c.dweight.Mul(dlogits.T(), features)

	dbias := c.dbias.RawRowView(0)
	for j := range dbias {
		dbias[j] = mat.Sum(dlogits.ColView(j))
	}

	return nil
}

// Params returns the head weights and bias.
func (c *Classifier) Params() []*mat.Dense {
	return []*mat.Dense{c.weight, c.bias}
}

// Grads returns the gradients of the head weights and bias.
func (c *Classifier) Grads() []*mat.Dense {
	return []*mat.Dense{c.dweight, c.dbias}
}

// SetTraining switches between training and evaluation mode.
func (c *Classifier) SetTraining(training bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.training = training
	if !training {
		c.features = nil
	}
}

// NumClasses returns the number of classes.
func (c *Classifier) NumClasses() int {
	return c.classes
}

// Extractor returns the frozen feature extractor.
func (c *Classifier) Extractor() *PooledExtractor {
	return c.extractor
}

// Predict returns the index of the largest logit of every row.
func Predict(logits *mat.Dense) []int {
	rows, _ := logits.Dims()
	predictions := make([]int, rows)
	for i := 0; i < rows; i++ {
		row := logits.RawRowView(i)
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}

		predictions[i] = best
	}

	return predictions
}
