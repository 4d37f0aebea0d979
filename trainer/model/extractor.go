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
	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
)

// channels is the number of channels of an input tensor.
const channels = 3

// PooledExtractor averages every channel of a size x size CHW tensor over a
// grid x grid partition. It has no trainable parameters.
type PooledExtractor struct {
	size int
	grid int
}

// NewPooledExtractor returns the extractor of size x size tensors.
func NewPooledExtractor(size, grid int) (*PooledExtractor, error) {
	if size <= 0 || grid <= 0 || grid > size {
		return nil, dferrors.Newf(dfcodes.InvalidArgument, "invalid extractor size %d grid %d", size, grid)
	}

	return &PooledExtractor{size: size, grid: grid}, nil
}

// Size returns the edge of the input tensors.
func (e *PooledExtractor) Size() int {
	return e.size
}

// Grid returns the edge of the pooling grid.
func (e *PooledExtractor) Grid() int {
	return e.grid
}

// NumFeatures returns the number of features of an input.
func (e *PooledExtractor) NumFeatures() int {
	return channels * e.grid * e.grid
}

// Extract returns the pooled features of the tensor.
func (e *PooledExtractor) Extract(tensor []float64) ([]float64, error) {
	plane := e.size * e.size
	if len(tensor) != channels*plane {
		return nil, dferrors.Newf(dfcodes.InvalidArgument, "invalid tensor length %d, requires %d", len(tensor), channels*plane)
	}

	features := make([]float64, 0, e.NumFeatures())
	for c := 0; c < channels; c++ {
		for gy := 0; gy < e.grid; gy++ {
			y0, y1 := gy*e.size/e.grid, (gy+1)*e.size/e.grid
			for gx := 0; gx < e.grid; gx++ {
				x0, x1 := gx*e.size/e.grid, (gx+1)*e.size/e.grid

				var sum float64
				for y := y0; y < y1; y++ {
					offset := c*plane + y*e.size
					for x := x0; x < x1; x++ {
						sum += tensor[offset+x]
					}
				}

				features = append(features, sum/float64((y1-y0)*(x1-x0)))
			}
		}
	}

	return features, nil
}
