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

package training

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"reflect"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/mat"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
	logger "d7y.io/xray/internal/dflog"
	"d7y.io/xray/pkg/types"
	"d7y.io/xray/trainer/config"
	"d7y.io/xray/trainer/loader"
	loadermocks "d7y.io/xray/trainer/loader/mocks"
	"d7y.io/xray/trainer/model"
	modelmocks "d7y.io/xray/trainer/model/mocks"
	storagemocks "d7y.io/xray/trainer/storage/mocks"
)

const (
	mockRunID   = "4d2e0f7a-2b7e-4c1b-9a6c-7d5f1f3e8a10"
	mockClasses = 3
)

// sliceLoader serves fixed batches and counts the batches consumed.
type sliceLoader struct {
	batches    []*loader.Batch
	mu         sync.Mutex
	consumed   int
	iterations int
}

func newSliceLoader(labels ...[]int) *sliceLoader {
	l := &sliceLoader{}
	for _, batchLabels := range labels {
		batch := &loader.Batch{}
		for _, label := range batchLabels {
			batch.Inputs = append(batch.Inputs, []float64{float64(label)})
			batch.Labels = append(batch.Labels, label)
		}

		l.batches = append(l.batches, batch)
	}

	return l
}

func repeatBatches(n int, labels []int) [][]int {
	batches := make([][]int, n)
	for i := range batches {
		batches[i] = labels
	}

	return batches
}

func (l *sliceLoader) Len() int {
	return len(l.batches)
}

func (l *sliceLoader) DatasetLen() int {
	var n int
	for _, batch := range l.batches {
		n += batch.Len()
	}

	return n
}

func (l *sliceLoader) Iterate(ctx context.Context) loader.Iterator {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.iterations++
	return &sliceIterator{ctx: ctx, loader: l}
}

func (l *sliceLoader) Consumed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consumed
}

type sliceIterator struct {
	ctx    context.Context
	loader *sliceLoader
	next   int
}

func (it *sliceIterator) Next() (*loader.Batch, error) {
	if err := it.ctx.Err(); err != nil {
		return nil, err
	}

	if it.next >= len(it.loader.batches) {
		return nil, io.EOF
	}

	it.loader.mu.Lock()
	it.loader.consumed++
	it.loader.mu.Unlock()

	batch := it.loader.batches[it.next]
	it.next++
	return batch, nil
}

func (it *sliceIterator) Close() {}

// forward returns logits whose largest entry is the label carried by the
// input, shifted by offset.
func forward(offset int) func(inputs [][]float64) (*mat.Dense, error) {
	return func(inputs [][]float64) (*mat.Dense, error) {
		logits := mat.NewDense(len(inputs), mockClasses, nil)
		for i, input := range inputs {
			logits.Set(i, (int(input[0])+offset)%mockClasses, 1)
		}

		return logits, nil
	}
}

func mockModel(m *modelmocks.MockModelMockRecorder, offset int) {
	m.Forward(gomock.Any()).DoAndReturn(forward(offset)).AnyTimes()
	m.Backward(gomock.Any()).Return(nil).AnyTimes()
	m.Params().Return(nil).AnyTimes()
	m.Grads().Return(nil).AnyTimes()
	m.SetTraining(gomock.Any()).AnyTimes()
	m.NumClasses().Return(mockClasses).AnyTimes()
}

func mockTrainingConfig() config.TrainingConfig {
	return config.TrainingConfig{
		Epochs:             1,
		LearningRate:       config.DefaultLearningRate,
		EvaluateInterval:   config.DefaultEvaluateInterval,
		AccuracyThreshold:  config.DefaultAccuracyThreshold,
		ValidationLossMode: types.ValidationLossModeRenormalized,
		CheckpointPath:     "results/model.ckpt",
	}
}

func TestTraining_New(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, tr Training)
	}{
		{
			name: "new training",
			run: func(t *testing.T, tr Training) {
				assert := assert.New(t)
				assert.Equal(reflect.TypeOf(tr).Elem().Name(), "training")
				assert.Equal(StatePending, tr.State())
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctl := gomock.NewController(t)
			defer ctl.Finish()
			m := modelmocks.NewMockModel(ctl)
			optimizer := modelmocks.NewMockOptimizer(ctl)
			checkpointer := modelmocks.NewMockCheckpointer(ctl)
			tc.run(t, New(m, model.NewCrossEntropy(), optimizer, checkpointer, mockTrainingConfig()))
		})
	}
}

func TestTraining_Train(t *testing.T) {
	tests := []struct {
		name       string
		config     func() config.TrainingConfig
		train      *sliceLoader
		validation *sliceLoader
		options    []Option
		mock       func(m *modelmocks.MockModelMockRecorder, o *modelmocks.MockOptimizerMockRecorder, c *modelmocks.MockCheckpointerMockRecorder, s *storagemocks.MockStorageMockRecorder)
		expect     func(t *testing.T, tr Training, train, validation *sliceLoader, result *Result, err error)
	}{
		{
			name:       "stop at the first step when accuracy reaches threshold",
			config:     mockTrainingConfig,
			train:      newSliceLoader(repeatBatches(10, []int{0, 1, 2})...),
			validation: newSliceLoader([]int{0, 1, 2}, []int{2, 1}),
			mock: func(m *modelmocks.MockModelMockRecorder, o *modelmocks.MockOptimizerMockRecorder, c *modelmocks.MockCheckpointerMockRecorder, s *storagemocks.MockStorageMockRecorder) {
				mockModel(m, 0)
				gomock.InOrder(
					c.Path().Return("results/model.ckpt").Times(1),
					o.Step(gomock.Any(), gomock.Any()).Return(nil).Times(1),
					c.Save(gomock.Any()).Return(nil).Times(1),
				)
				s.CreateEvaluation(mockRunID, gomock.Any()).Return(nil).Times(1)
			},
			expect: func(t *testing.T, tr Training, train, validation *sliceLoader, result *Result, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(1, train.Consumed())
				assert.Equal(2, validation.Consumed())
				assert.True(result.EarlyStopped)
				assert.Equal(1, result.Epochs)
				assert.Equal(1, result.Steps)
				assert.Equal(1, result.Evaluations)
				assert.Equal(1.0, result.Accuracy)
				assert.Equal(1.0, result.MeanRecall)
				assert.Equal("results/model.ckpt", result.CheckpointPath)
				assert.Equal(StateDone, tr.State())
			},
		},
		{
			name:       "consume the whole epoch when accuracy stays below threshold",
			config:     mockTrainingConfig,
			train:      newSliceLoader(repeatBatches(45, []int{0, 1, 2})...),
			validation: newSliceLoader([]int{0, 1, 2}),
			options:    []Option{WithRunID(mockRunID), WithProgressBar(true)},
			mock: func(m *modelmocks.MockModelMockRecorder, o *modelmocks.MockOptimizerMockRecorder, c *modelmocks.MockCheckpointerMockRecorder, s *storagemocks.MockStorageMockRecorder) {
				mockModel(m, 1)
				c.Path().Return("results/model.ckpt").Times(1)
				o.Step(gomock.Any(), gomock.Any()).Return(nil).Times(45)
				c.Save(gomock.Any()).Return(nil).Times(1)
				s.CreateEvaluation(mockRunID, gomock.Any()).Return(nil).Times(3)
			},
			expect: func(t *testing.T, tr Training, train, validation *sliceLoader, result *Result, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(45, train.Consumed())
				assert.Equal(3, validation.iterations)
				assert.False(result.EarlyStopped)
				assert.Equal(mockRunID, result.RunID)
				assert.Equal(1, result.Epochs)
				assert.Equal(45, result.Steps)
				assert.Equal(3, result.Evaluations)
				assert.Equal(0.0, result.Accuracy)
				assert.Equal(0.0, result.MeanRecall)
				assert.Equal(StateDone, tr.State())
			},
		},
		{
			name: "run every epoch of the budget",
			config: func() config.TrainingConfig {
				cfg := mockTrainingConfig()
				cfg.Epochs = 2
				cfg.EvaluateInterval = 5
				return cfg
			},
			train:      newSliceLoader(repeatBatches(12, []int{0, 1})...),
			validation: newSliceLoader([]int{0, 1, 2}),
			options:    []Option{WithRunID(mockRunID)},
			mock: func(m *modelmocks.MockModelMockRecorder, o *modelmocks.MockOptimizerMockRecorder, c *modelmocks.MockCheckpointerMockRecorder, s *storagemocks.MockStorageMockRecorder) {
				mockModel(m, 2)
				c.Path().Return("results/model.ckpt").Times(1)
				o.Step(gomock.Any(), gomock.Any()).Return(nil).Times(24)
				c.Save(gomock.Any()).Return(nil).Times(1)
				s.CreateEvaluation(mockRunID, gomock.Any()).Return(nil).Times(6)
			},
			expect: func(t *testing.T, tr Training, train, validation *sliceLoader, result *Result, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(24, train.Consumed())
				assert.Equal(2, train.iterations)
				assert.Equal(2, result.Epochs)
				assert.Equal(24, result.Steps)
				assert.Equal(6, result.Evaluations)
				assert.False(result.EarlyStopped)
			},
		},
		{
			name: "record every evaluation into storage",
			config: func() config.TrainingConfig {
				cfg := mockTrainingConfig()
				cfg.EvaluateInterval = 2
				return cfg
			},
			train:      newSliceLoader(repeatBatches(5, []int{0})...),
			validation: newSliceLoader([]int{0, 1}),
			mock: func(m *modelmocks.MockModelMockRecorder, o *modelmocks.MockOptimizerMockRecorder, c *modelmocks.MockCheckpointerMockRecorder, s *storagemocks.MockStorageMockRecorder) {
				mockModel(m, 1)
				c.Path().Return("results/model.ckpt").Times(1)
				o.Step(gomock.Any(), gomock.Any()).Return(nil).Times(5)
				c.Save(gomock.Any()).Return(nil).Times(1)
				s.CreateEvaluation(mockRunID, gomock.Any()).Return(nil).Times(2)
				s.CreateEvaluation(mockRunID, gomock.Any()).Return(errors.New("foo")).Times(1)
			},
			expect: func(t *testing.T, tr Training, train, validation *sliceLoader, result *Result, err error) {
				assert := assert.New(t)
				assert.NoError(err)
				assert.Equal(3, result.Evaluations)
				assert.Equal(StateDone, tr.State())
			},
		},
		{
			name:       "optimizer failed",
			config:     mockTrainingConfig,
			train:      newSliceLoader([]int{0}),
			validation: newSliceLoader([]int{0}),
			mock: func(m *modelmocks.MockModelMockRecorder, o *modelmocks.MockOptimizerMockRecorder, c *modelmocks.MockCheckpointerMockRecorder, s *storagemocks.MockStorageMockRecorder) {
				mockModel(m, 0)
				c.Path().Return("results/model.ckpt").Times(1)
				o.Step(gomock.Any(), gomock.Any()).Return(errors.New("foo")).Times(1)
				c.Save(gomock.Any()).Times(0)
			},
			expect: func(t *testing.T, tr Training, train, validation *sliceLoader, result *Result, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "foo")
				assert.Nil(result)
				assert.Equal(StateFailed, tr.State())
			},
		},
		{
			name:       "checkpoint failed",
			config:     mockTrainingConfig,
			train:      newSliceLoader([]int{0}),
			validation: newSliceLoader([]int{0}),
			mock: func(m *modelmocks.MockModelMockRecorder, o *modelmocks.MockOptimizerMockRecorder, c *modelmocks.MockCheckpointerMockRecorder, s *storagemocks.MockStorageMockRecorder) {
				mockModel(m, 0)
				c.Path().Return("results/model.ckpt").Times(1)
				o.Step(gomock.Any(), gomock.Any()).Return(nil).Times(1)
				c.Save(gomock.Any()).Return(errors.New("foo")).Times(1)
				s.CreateEvaluation(mockRunID, gomock.Any()).Return(nil).Times(1)
			},
			expect: func(t *testing.T, tr Training, train, validation *sliceLoader, result *Result, err error) {
				assert := assert.New(t)
				assert.EqualError(err, "foo")
				assert.Equal(StateFailed, tr.State())
			},
		},
		{
			name:       "validation dataset is empty",
			config:     mockTrainingConfig,
			train:      newSliceLoader([]int{0}),
			validation: newSliceLoader(),
			mock: func(m *modelmocks.MockModelMockRecorder, o *modelmocks.MockOptimizerMockRecorder, c *modelmocks.MockCheckpointerMockRecorder, s *storagemocks.MockStorageMockRecorder) {
			},
			expect: func(t *testing.T, tr Training, train, validation *sliceLoader, result *Result, err error) {
				assert := assert.New(t)
				assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))
				assert.Equal(0, train.Consumed())
				assert.Equal(StatePending, tr.State())
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctl := gomock.NewController(t)
			defer ctl.Finish()
			m := modelmocks.NewMockModel(ctl)
			optimizer := modelmocks.NewMockOptimizer(ctl)
			checkpointer := modelmocks.NewMockCheckpointer(ctl)
			storage := storagemocks.NewMockStorage(ctl)
			tc.mock(m.EXPECT(), optimizer.EXPECT(), checkpointer.EXPECT(), storage.EXPECT())

			options := append([]Option{WithStorage(storage), WithRunID(mockRunID)}, tc.options...)
			tr := New(m, model.NewCrossEntropy(), optimizer, checkpointer, tc.config(), options...)
			result, err := tr.Train(context.Background(), tc.train, tc.validation)
			tc.expect(t, tr, tc.train, tc.validation, result, err)
		})
	}
}

func TestTraining_TrainCanceled(t *testing.T) {
	assert := assert.New(t)
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	m := modelmocks.NewMockModel(ctl)
	optimizer := modelmocks.NewMockOptimizer(ctl)
	checkpointer := modelmocks.NewMockCheckpointer(ctl)
	mockModel(m.EXPECT(), 1)
	checkpointer.EXPECT().Path().Return("results/model.ckpt").Times(1)
	checkpointer.EXPECT().Save(gomock.Any()).Times(0)

	ctx, cancel := context.WithCancel(context.Background())
	train := newSliceLoader(repeatBatches(10, []int{0})...)
	steps := 0
	optimizer.EXPECT().Step(gomock.Any(), gomock.Any()).DoAndReturn(func(params, grads []*mat.Dense) error {
		steps++
		if steps == 3 {
			cancel()
		}
		return nil
	}).Times(3)

	tr := New(m, model.NewCrossEntropy(), optimizer, checkpointer, mockTrainingConfig())
	result, err := tr.Train(ctx, train, newSliceLoader([]int{0}))
	assert.ErrorIs(err, context.Canceled)
	assert.Nil(result)
	assert.Equal(3, train.Consumed())
	assert.Equal(StateFailed, tr.State())
}

func TestTraining_TrainTwice(t *testing.T) {
	assert := assert.New(t)
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	m := modelmocks.NewMockModel(ctl)
	optimizer := modelmocks.NewMockOptimizer(ctl)
	checkpointer := modelmocks.NewMockCheckpointer(ctl)
	mockModel(m.EXPECT(), 0)
	checkpointer.EXPECT().Path().Return("results/model.ckpt").Times(1)
	checkpointer.EXPECT().Save(gomock.Any()).Return(nil).Times(1)
	optimizer.EXPECT().Step(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	tr := New(m, model.NewCrossEntropy(), optimizer, checkpointer, mockTrainingConfig())
	_, err := tr.Train(context.Background(), newSliceLoader([]int{0}), newSliceLoader([]int{0}))
	assert.NoError(err)

	_, err = tr.Train(context.Background(), newSliceLoader([]int{0}), newSliceLoader([]int{0}))
	assert.True(dferrors.CheckError(err, dfcodes.InvalidArgument))
	assert.Equal(StateDone, tr.State())
}

func TestTraining_ValidationIteratorFailed(t *testing.T) {
	assert := assert.New(t)
	ctl := gomock.NewController(t)
	defer ctl.Finish()
	m := modelmocks.NewMockModel(ctl)
	optimizer := modelmocks.NewMockOptimizer(ctl)
	checkpointer := modelmocks.NewMockCheckpointer(ctl)
	validation := loadermocks.NewMockLoader(ctl)
	it := loadermocks.NewMockIterator(ctl)
	mockModel(m.EXPECT(), 0)
	checkpointer.EXPECT().Path().Return("results/model.ckpt").Times(1)
	optimizer.EXPECT().Step(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	gomock.InOrder(
		validation.EXPECT().DatasetLen().Return(3).Times(1),
		validation.EXPECT().Iterate(gomock.Any()).Return(it).Times(1),
		it.EXPECT().Next().Return(nil, errors.New("foo")).Times(1),
		it.EXPECT().Close().Times(1),
	)

	tr := New(m, model.NewCrossEntropy(), optimizer, checkpointer, mockTrainingConfig())
	_, err := tr.Train(context.Background(), newSliceLoader([]int{0}), validation)
	assert.EqualError(err, "foo")
	assert.Equal(StateFailed, tr.State())
}

func TestValidationLoss(t *testing.T) {
	tests := []struct {
		name        string
		mode        types.ValidationLossMode
		evaluations [][]float64
		expect      []float64
	}{
		{
			name:        "renormalized loss is carried across evaluations",
			mode:        types.ValidationLossModeRenormalized,
			evaluations: [][]float64{{1, 2, 3}, {1}},
			expect:      []float64{1.5, 2.5},
		},
		{
			name:        "mean loss is reset every evaluation",
			mode:        types.ValidationLossModeMean,
			evaluations: [][]float64{{1, 2, 3}, {1}},
			expect:      []float64{2, 1},
		},
		{
			name:        "empty mode is renormalized",
			mode:        "",
			evaluations: [][]float64{{4, 2}},
			expect:      []float64{3},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			v := newValidationLoss(tc.mode)
			for i, losses := range tc.evaluations {
				v.begin()
				for j, loss := range losses {
					v.add(j, loss)
				}

				assert.InDelta(tc.expect[i], v.value, 1e-12)
			}
		})
	}
}

func TestTraining_TrainClassifier(t *testing.T) {
	tests := []struct {
		name  string
		level zapcore.Level
	}{
		{
			name:  "info level",
			level: zapcore.InfoLevel,
		},
		{
			name:  "debug level logs evaluation summary",
			level: zapcore.DebugLevel,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger.SetLevel(tc.level)
			defer logger.SetLevel(zapcore.InfoLevel)

			assert := assert.New(t)
			assert.Equal(tc.level == zapcore.DebugLevel, logger.IsDebug())

			extractor, err := model.NewPooledExtractor(2, 1)
			assert.NoError(err)

			c, err := model.NewClassifier(extractor, 2, rand.New(rand.NewSource(1)))
			assert.NoError(err)

			ctl := gomock.NewController(t)
			defer ctl.Finish()
			checkpointer := modelmocks.NewMockCheckpointer(ctl)
			checkpointer.EXPECT().Path().Return("results/model.ckpt").Times(1)
			checkpointer.EXPECT().Save(c).Return(nil).Times(1)

			tensor := func(v float64) []float64 {
				return []float64{v, v, v, v, v, v, v, v, v, v, v, v}
			}

			batch := &loader.Batch{Inputs: [][]float64{tensor(-1), tensor(1)}, Labels: []int{0, 1}}
			train := &sliceLoader{}
			for i := 0; i < 100; i++ {
				train.batches = append(train.batches, batch)
			}
			validation := &sliceLoader{batches: []*loader.Batch{batch}}

			cfg := mockTrainingConfig()
			cfg.EvaluateInterval = 10
			tr := New(c, model.NewCrossEntropy(), model.NewAdam(0.1), checkpointer, cfg)
			result, err := tr.Train(context.Background(), train, validation)
			assert.NoError(err)
			assert.True(result.EarlyStopped)
			assert.Equal(1.0, result.Accuracy)
			assert.Less(train.Consumed(), 100)
		})
	}
}
