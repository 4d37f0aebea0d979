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

const (
	// DefaultBeta1 is the default decay of the first moment.
	DefaultBeta1 = 0.9

	// DefaultBeta2 is the default decay of the second moment.
	DefaultBeta2 = 0.999

	// DefaultEpsilon is the default term added to the denominator.
	DefaultEpsilon = 1e-8
)

// Adam is the Adam optimizer.
type Adam struct {
	learningRate float64
	beta1        float64
	beta2        float64
	epsilon      float64

	step int
	m    []*mat.Dense
	v    []*mat.Dense
}

// NewAdam returns the Adam optimizer with the default moments.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		learningRate: learningRate,
		beta1:        DefaultBeta1,
		beta2:        DefaultBeta2,
		epsilon:      DefaultEpsilon,
	}
}

// Step updates the params in place from the grads.
func (a *Adam) Step(params, grads []*mat.Dense) error {
	if len(params) != len(grads) {
		return dferrors.Newf(dfcodes.InvalidArgument, "got %d grads for %d params", len(grads), len(params))
	}

	if a.m == nil {
		for _, p := range params {
			rows, cols := p.Dims()
			a.m = append(a.m, mat.NewDense(rows, cols, nil))
			a.v = append(a.v, mat.NewDense(rows, cols, nil))
		}
	}

	if len(a.m) != len(params) {
		return dferrors.Newf(dfcodes.InvalidArgument, "got %d params, optimizer holds %d", len(params), len(a.m))
	}

	a.step++
	correction1 := 1 - math.Pow(a.beta1, float64(a.step))
	correction2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, p := range params {
		pr, pc := p.Dims()
		gr, gc := grads[i].Dims()
		if pr != gr || pc != gc {
			return dferrors.Newf(dfcodes.InvalidArgument, "param %d is %dx%d, grad is %dx%d", i, pr, pc, gr, gc)
		}

		for r := 0; r < pr; r++ {
			pRow, gRow := p.RawRowView(r), grads[i].RawRowView(r)
			mRow, vRow := a.m[i].RawRowView(r), a.v[i].RawRowView(r)
			for c := range pRow {
				g := gRow[c]
				mRow[c] = a.beta1*mRow[c] + (1-a.beta1)*g
				vRow[c] = a.beta2*vRow[c] + (1-a.beta2)*g*g
				pRow[c] -= a.learningRate * (mRow[c] / correction1) / (math.Sqrt(vRow[c]/correction2) + a.epsilon)
			}
		}
	}

	return nil
}
