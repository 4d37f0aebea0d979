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

	"gonum.org/v1/gonum/mat"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
)

// CrossEntropy is the mean softmax cross entropy of a batch.
type CrossEntropy struct{}

// NewCrossEntropy returns the cross entropy loss.
func NewCrossEntropy() *CrossEntropy {
	return &CrossEntropy{}
}

// Forward returns the mean loss of the batch and its gradient with respect to the logits.
func (CrossEntropy) Forward(logits *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	rows, cols := logits.Dims()
	if rows != len(labels) {
		return 0, nil, dferrors.Newf(dfcodes.InvalidArgument, "got %d labels for %d logits", len(labels), rows)
	}

	var loss float64
	grad := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		label := labels[i]
		if label < 0 || label >= cols {
			return 0, nil, dferrors.Newf(dfcodes.InvalidArgument, "invalid label %d", label)
		}

		row := logits.RawRowView(i)
		max := row[0]
		for _, v := range row[1:] {
			max = math.Max(max, v)
		}

		var sum float64
		probs := grad.RawRowView(i)
		for j, v := range row {
			probs[j] = math.Exp(v - max)
			sum += probs[j]
		}

		for j := range probs {
			probs[j] /= sum
		}

		loss -= math.Log(math.Max(probs[label], 1e-12))
		probs[label] -= 1
	}

	grad.Scale(1/float64(rows), grad)
	return loss / float64(rows), grad, nil
}
