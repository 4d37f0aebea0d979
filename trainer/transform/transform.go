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

//go:generate mockgen -destination mocks/transform_mock.go -source transform.go -package mocks

package transform

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
)

// Channels is the number of channels of a tensor.
const Channels = 3

// Tensor is a normalized image in CHW layout.
type Tensor []float64

// Transform loads an image file into a tensor.
type Transform interface {
	// Apply loads the image at path.
	Apply(path string) (Tensor, error)

	// Size returns the edge of the square tensor.
	Size() int
}

// Option is a functional option for configuring the transform.
type Option func(t *imageTransform)

// WithHorizontalFlip flips images horizontally with probability one half.
func WithHorizontalFlip(flip bool) Option {
	return func(t *imageTransform) {
		t.flip = flip
	}
}

// WithRand sets the random source of flips.
func WithRand(r *rand.Rand) Option {
	return func(t *imageTransform) {
		t.rand = r
	}
}

type imageTransform struct {
	size int
	mean [Channels]float64
	std  [Channels]float64
	flip bool

	mu   sync.Mutex
	rand *rand.Rand
}

// New returns the transform that decodes, resizes to size x size and
// normalizes images with the per channel mean and std.
func New(size int, mean, std []float64, options ...Option) (Transform, error) {
	if size <= 0 {
		return nil, dferrors.Newf(dfcodes.InvalidArgument, "invalid transform size %d", size)
	}

	if len(mean) != Channels || len(std) != Channels {
		return nil, dferrors.Newf(dfcodes.InvalidArgument, "transform requires %d channel mean and std", Channels)
	}

	t := &imageTransform{
		size: size,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for i := 0; i < Channels; i++ {
		if std[i] <= 0 {
			return nil, dferrors.Newf(dfcodes.InvalidArgument, "invalid transform std %v", std[i])
		}

		t.mean[i] = mean[i]
		t.std[i] = std[i]
	}

	for _, opt := range options {
		opt(t)
	}

	return t, nil
}

// Apply loads the image at path.
func (t *imageTransform) Apply(path string) (Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dferrors.Wrap(dfcodes.FilesystemError, err, "open image %s", path)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, dferrors.Wrap(dfcodes.InvalidImage, err, "decode image %s", path)
	}

	dst := image.NewRGBA(image.Rect(0, 0, t.size, t.size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	return t.toTensor(dst, t.shouldFlip()), nil
}

// Size returns the edge of the square tensor.
func (t *imageTransform) Size() int {
	return t.size
}

func (t *imageTransform) shouldFlip() bool {
	if !t.flip {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rand.Float64() < 0.5
}

// toTensor scales the pixels to [0, 1] and normalizes them channel by channel.
func (t *imageTransform) toTensor(img *image.RGBA, flip bool) Tensor {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	plane := width * height
	tensor := make(Tensor, Channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx := x
			if flip {
				sx = width - 1 - x
			}

			offset := y*img.Stride + sx*4
			for c := 0; c < Channels; c++ {
				v := float64(img.Pix[offset+c]) / 255
				tensor[c*plane+y*width+x] = (v - t.mean[c]) / t.std[c]
			}
		}
	}

	return tensor
}
