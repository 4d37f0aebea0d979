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

//go:generate mockgen -destination mocks/loader_mock.go -source loader.go -package mocks

package loader

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"d7y.io/xray/trainer/dataset"
)

const (
	// DefaultWorkers is the default number of goroutines loading examples.
	DefaultWorkers = 4

	// DefaultPrefetch is the default number of batches prepared ahead.
	DefaultPrefetch = 2
)

// Dataset is the random access source of examples.
type Dataset interface {
	Len() int
	Get(index int) (dataset.Example, error)
}

// Batch is a group of examples.
type Batch struct {
	// Inputs are the example tensors.
	Inputs [][]float64

	// Labels are the example labels.
	Labels []int

	// Paths are the example image paths.
	Paths []string
}

// Len returns the number of examples of the batch.
func (b *Batch) Len() int {
	return len(b.Labels)
}

// Loader splits a dataset into batches.
type Loader interface {
	// Len returns the number of batches of a pass.
	Len() int

	// DatasetLen returns the number of examples of a pass.
	DatasetLen() int

	// Iterate starts a pass over the dataset.
	Iterate(ctx context.Context) Iterator
}

// Iterator returns the batches of a pass in order.
type Iterator interface {
	// Next returns the next batch, io.EOF after the last one.
	Next() (*Batch, error)

	// Close stops the pass.
	Close()
}

// Option is a functional option for configuring the loader.
type Option func(l *loader)

// WithShuffle permutes the indices of every pass.
func WithShuffle(shuffle bool) Option {
	return func(l *loader) {
		l.shuffle = shuffle
	}
}

// WithWorkers sets the number of goroutines loading examples.
func WithWorkers(workers int) Option {
	return func(l *loader) {
		if workers > 0 {
			l.workers = workers
		}
	}
}

// WithPrefetch sets the number of batches prepared ahead.
func WithPrefetch(prefetch int) Option {
	return func(l *loader) {
		if prefetch >= 0 {
			l.prefetch = prefetch
		}
	}
}

// WithRand sets the random source of shuffles.
func WithRand(r *rand.Rand) Option {
	return func(l *loader) {
		l.rand = r
	}
}

type loader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	workers   int
	prefetch  int

	mu   sync.Mutex
	rand *rand.Rand
}

// New returns a loader of batches of batchSize examples, the last batch may be smaller.
func New(ds Dataset, batchSize int, options ...Option) Loader {
	l := &loader{
		dataset:   ds,
		batchSize: batchSize,
		workers:   DefaultWorkers,
		prefetch:  DefaultPrefetch,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if l.batchSize <= 0 {
		l.batchSize = 1
	}

	for _, opt := range options {
		opt(l)
	}

	return l
}

// Len returns the number of batches of a pass.
func (l *loader) Len() int {
	return (l.dataset.Len() + l.batchSize - 1) / l.batchSize
}

// DatasetLen returns the number of examples of a pass.
func (l *loader) DatasetLen() int {
	return l.dataset.Len()
}

// Iterate starts a pass over the dataset.
func (l *loader) Iterate(ctx context.Context) Iterator {
	ctx, cancel := context.WithCancel(ctx)
	it := &iterator{
		ctx:     ctx,
		cancel:  cancel,
		results: make(chan result, l.prefetch),
	}

	go l.produce(ctx, l.indices(), it.results)
	return it
}

// indices returns the example indices of a pass.
func (l *loader) indices() []int {
	n := l.dataset.Len()
	if !l.shuffle {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}

		return indices
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rand.Perm(n)
}

// produce loads the batches in order and sends them to results.
func (l *loader) produce(ctx context.Context, indices []int, results chan<- result) {
	defer close(results)

	for start := 0; start < len(indices); start += l.batchSize {
		end := start + l.batchSize
		if end > len(indices) {
			end = len(indices)
		}

		batch, err := l.load(ctx, indices[start:end])
		select {
		case results <- result{batch: batch, err: err}:
		case <-ctx.Done():
			return
		}

		if err != nil {
			return
		}
	}
}

// load fetches the examples of a batch concurrently.
func (l *loader) load(ctx context.Context, indices []int) (*Batch, error) {
	batch := &Batch{
		Inputs: make([][]float64, len(indices)),
		Labels: make([]int, len(indices)),
		Paths:  make([]string, len(indices)),
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(l.workers)
	for i, index := range indices {
		i, index := i, index
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			example, err := l.dataset.Get(index)
			if err != nil {
				return err
			}

			batch.Inputs[i] = example.Tensor
			batch.Labels[i] = example.Label
			batch.Paths[i] = example.Path
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return batch, nil
}

type result struct {
	batch *Batch
	err   error
}

type iterator struct {
	ctx     context.Context
	cancel  context.CancelFunc
	results chan result
	done    bool
}

// Next returns the next batch, io.EOF after the last one.
func (it *iterator) Next() (*Batch, error) {
	if it.done {
		return nil, io.EOF
	}

	r, ok := <-it.results
	if !ok {
		it.done = true
		if err := it.ctx.Err(); err != nil {
			return nil, err
		}

		return nil, io.EOF
	}

	if r.err != nil {
		it.done = true
		return nil, r.err
	}

	return r.batch, nil
}

// Close stops the pass and waits for the producer to exit.
func (it *iterator) Close() {
	it.cancel()
	for range it.results {
	}
	it.done = true
}
