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
	"os"
	"strconv"
	"time"

	"github.com/looplab/fsm"
	"github.com/montanaflynn/stats"
	"github.com/schollz/progressbar/v3"
	"github.com/sjwhitworth/golearn/evaluation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"d7y.io/xray/internal/dfcodes"
	"d7y.io/xray/internal/dferrors"
	logger "d7y.io/xray/internal/dflog"
	"d7y.io/xray/trainer/config"
	"d7y.io/xray/trainer/loader"
	"d7y.io/xray/trainer/metrics"
	"d7y.io/xray/trainer/model"
	"d7y.io/xray/trainer/storage"
)

const (
	// Training has not started.
	StatePending = "Pending"

	// Optimization steps are running.
	StateTraining = "Training"

	// The validation loader is being evaluated.
	StateEvaluating = "Evaluating"

	// The checkpoint is being written.
	StateCheckpointing = "Checkpointing"

	// The checkpoint is written.
	StateDone = "Done"

	// Training failed or was canceled.
	StateFailed = "Failed"
)

const (
	// Start or resume optimization steps.
	EventTrain = "Train"

	// Evaluate the validation loader.
	EventEvaluate = "Evaluate"

	// Write the checkpoint.
	EventCheckpoint = "Checkpoint"

	// The checkpoint is written.
	EventSucceed = "Succeed"

	// Training failed.
	EventFail = "Fail"
)

var tracer = otel.Tracer("trainer")

// Training defines the interface of the training and evaluation loop.
type Training interface {
	// Train runs the loop over the loaders and writes the checkpoint.
	Train(ctx context.Context, train, validation loader.Loader) (*Result, error)

	// State returns the current state of the loop.
	State() string
}

// Option is a functional option for configuring the training.
type Option func(t *training)

// WithStorage records every evaluation into storage.
func WithStorage(s storage.Storage) Option {
	return func(t *training) {
		t.storage = s
	}
}

// WithRunID sets the id of the run.
func WithRunID(runID string) Option {
	return func(t *training) {
		t.runID = runID
	}
}

// WithProgressBar shows a progress bar of training steps on stderr.
func WithProgressBar(progress bool) Option {
	return func(t *training) {
		t.progress = progress
	}
}

// training implements Training interface.
type training struct {
	config       config.TrainingConfig
	model        model.Model
	loss         model.Loss
	optimizer    model.Optimizer
	checkpointer model.Checkpointer
	storage      storage.Storage
	runID        string
	progress     bool
	fsm          *fsm.FSM
}

// New returns a new Training.
func New(m model.Model, loss model.Loss, optimizer model.Optimizer, checkpointer model.Checkpointer, cfg config.TrainingConfig, options ...Option) Training {
	t := &training{
		config:       cfg,
		model:        m,
		loss:         loss,
		optimizer:    optimizer,
		checkpointer: checkpointer,
	}

	for _, opt := range options {
		opt(t)
	}

	if t.config.EvaluateInterval <= 0 {
		t.config.EvaluateInterval = config.DefaultEvaluateInterval
	}

	t.fsm = fsm.NewFSM(
		StatePending,
		fsm.Events{
			{Name: EventTrain, Src: []string{StatePending, StateEvaluating}, Dst: StateTraining},
			{Name: EventEvaluate, Src: []string{StateTraining}, Dst: StateEvaluating},
			{Name: EventCheckpoint, Src: []string{StateTraining, StateEvaluating}, Dst: StateCheckpointing},
			{Name: EventSucceed, Src: []string{StateCheckpointing}, Dst: StateDone},
			{Name: EventFail, Src: []string{StateTraining, StateEvaluating, StateCheckpointing}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logger.WithRun(t.runID).Debugf("training state changed from %s to %s", e.Src, e.Dst)
			},
		},
	)

	return t
}

// State returns the current state of the loop.
func (t *training) State() string {
	return t.fsm.Current()
}

// Train runs the loop over the loaders and writes the checkpoint.
func (t *training) Train(ctx context.Context, train, validation loader.Loader) (*Result, error) {
	if validation.DatasetLen() == 0 {
		return nil, dferrors.New(dfcodes.InvalidArgument, "validation dataset is empty")
	}

	if err := t.fsm.Event(EventTrain); err != nil {
		return nil, dferrors.Wrap(dfcodes.InvalidArgument, err, "training is %s", t.fsm.Current())
	}
	metrics.TrainStartedCount.Inc()

	var span trace.Span
	ctx, span = tracer.Start(ctx, config.SpanTrain)
	span.SetAttributes(config.AttributeRunID.String(t.runID))
	defer span.End()

	result, err := t.run(ctx, train, validation)
	if err != nil {
		span.RecordError(err)
		logger.WithRun(t.runID).Errorf("training failed: %s", err.Error())
		if err := t.fsm.Event(EventFail); err != nil {
			logger.WithRun(t.runID).Errorf("transit to %s failed: %s", StateFailed, err.Error())
		}

		metrics.TrainFailureCount.Inc()
		return nil, err
	}

	metrics.TrainFinishedCount.WithLabelValues(strconv.FormatBool(result.EarlyStopped)).Inc()
	return result, nil
}

// run trains for the epoch budget or until accuracy reaches the threshold.
func (t *training) run(ctx context.Context, train, validation loader.Loader) (*Result, error) {
	result := &Result{
		RunID:          t.runID,
		CheckpointPath: t.checkpointer.Path(),
	}

	var bar *progressbar.ProgressBar
	if t.progress {
		bar = progressbar.NewOptions(
			train.Len()*t.config.Epochs,
			progressbar.OptionSetDescription("training"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		result.Epochs = epoch + 1
		stopped, err := t.runEpoch(ctx, epoch, train, validation, bar, result)
		if err != nil {
			return nil, err
		}

		if stopped {
			result.EarlyStopped = true
			break
		}
	}

	if err := t.fsm.Event(EventCheckpoint); err != nil {
		return nil, err
	}

	if err := t.checkpointer.Save(t.model); err != nil {
		metrics.CheckpointFailureCount.Inc()
		return nil, err
	}
	metrics.CheckpointCount.Inc()

	if err := t.fsm.Event(EventSucceed); err != nil {
		return nil, err
	}

	return result, nil
}

// runEpoch runs one pass over the training loader and reports whether
// accuracy reached the threshold.
func (t *training) runEpoch(ctx context.Context, epoch int, train, validation loader.Loader, bar *progressbar.ProgressBar, result *Result) (bool, error) {
	var span trace.Span
	ctx, span = tracer.Start(ctx, config.SpanEpoch)
	span.SetAttributes(config.AttributeEpoch.Int(epoch))
	defer span.End()

	log := logger.WithRunAndEpoch(t.runID, epoch)
	log.Infof("epoch %d started with %d batches", epoch, train.Len())

	it := train.Iterate(ctx)
	defer it.Close()

	valLoss := newValidationLoss(t.config.ValidationLossMode)
	var lossSum float64
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		batch, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return false, err
		}

		loss, err := t.step(batch)
		if err != nil {
			return false, err
		}

		lossSum += loss
		result.Steps++
		result.TrainingLoss = lossSum / float64(step+1)
		metrics.TrainingStepCount.Inc()
		metrics.TrainingLossGauge.Set(result.TrainingLoss)
		if bar != nil {
			bar.Add(1)
		}

		if step%t.config.EvaluateInterval != 0 {
			continue
		}

		if err := t.fsm.Event(EventEvaluate); err != nil {
			return false, err
		}

		eval, err := t.evaluate(ctx, validation, valLoss)
		if err != nil {
			return false, err
		}

		result.Evaluations++
		result.ValidationLoss = eval.Loss
		result.Accuracy = eval.Accuracy
		result.MeanRecall = eval.MeanRecall
		log.Infof("step %d training loss %.6f validation loss %.6f accuracy %.4f mean recall %.4f",
			step, result.TrainingLoss, eval.Loss, eval.Accuracy, eval.MeanRecall)
		logger.TrainLogger.Infow("evaluation", "runID", t.runID, "epoch", epoch, "step", step,
			"trainingLoss", result.TrainingLoss, "validationLoss", eval.Loss, "accuracy", eval.Accuracy, "meanRecall", eval.MeanRecall)

		if t.storage != nil {
			if err := t.storage.CreateEvaluation(t.runID, storage.EvaluationRecord{
				RunID:          t.runID,
				Epoch:          epoch,
				Step:           step,
				TrainingLoss:   result.TrainingLoss,
				ValidationLoss: eval.Loss,
				Accuracy:       eval.Accuracy,
				MeanRecall:     eval.MeanRecall,
				CreatedAt:      time.Now().UnixNano(),
			}); err != nil {
				log.Warnf("create evaluation record failed: %s", err.Error())
			}
		}

		if eval.Accuracy >= t.config.AccuracyThreshold {
			log.Infof("accuracy %.4f reached threshold %.4f at step %d", eval.Accuracy, t.config.AccuracyThreshold, step)
			span.AddEvent(config.EventEarlyStop, trace.WithAttributes(
				config.AttributeStep.Int(step),
				config.AttributeAccuracy.Float64(eval.Accuracy),
			))
			return true, nil
		}

		if err := t.fsm.Event(EventTrain); err != nil {
			return false, err
		}
	}

	log.Infof("epoch %d finished with training loss %.6f", epoch, result.TrainingLoss)
	return false, nil
}

// step runs one optimization step over the batch and returns its loss.
func (t *training) step(batch *loader.Batch) (float64, error) {
	logits, err := t.model.Forward(batch.Inputs)
	if err != nil {
		return 0, err
	}

	loss, dlogits, err := t.loss.Forward(logits, batch.Labels)
	if err != nil {
		return 0, err
	}

	if err := t.model.Backward(dlogits); err != nil {
		return 0, err
	}

	if err := t.optimizer.Step(t.model.Params(), t.model.Grads()); err != nil {
		return 0, err
	}

	return loss, nil
}

// evaluate runs a full pass over the validation loader in evaluation mode.
func (t *training) evaluate(ctx context.Context, validation loader.Loader, valLoss *validationLoss) (*Evaluation, error) {
	var span trace.Span
	ctx, span = tracer.Start(ctx, config.SpanEvaluate)
	defer span.End()

	t.model.SetTraining(false)
	defer t.model.SetTraining(true)
	metrics.EvaluateCount.Inc()

	it := validation.Iterate(ctx)
	defer it.Close()

	classes := t.model.NumClasses()
	totals := make([]int, classes)

	// Rows are labels and columns are predictions.
	confusion := evaluation.ConfusionMatrix{}
	eval := &Evaluation{}
	valLoss.begin()
	for i := 0; ; i++ {
		batch, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		logits, err := t.model.Forward(batch.Inputs)
		if err != nil {
			return nil, err
		}

		loss, _, err := t.loss.Forward(logits, batch.Labels)
		if err != nil {
			return nil, err
		}
		valLoss.add(i, loss)

		for j, prediction := range model.Predict(logits) {
			label := batch.Labels[j]
			if label < 0 || label >= classes {
				return nil, dferrors.Newf(dfcodes.InvalidArgument, "invalid label %d", label)
			}

			reference := strconv.Itoa(label)
			if confusion[reference] == nil {
				confusion[reference] = map[string]int{}
			}
			confusion[reference][strconv.Itoa(prediction)]++

			totals[label]++
			if prediction == label {
				eval.Correct++
			}
		}
	}

	var recalls []float64
	for c, total := range totals {
		if total > 0 {
			recalls = append(recalls, evaluation.GetRecall(strconv.Itoa(c), confusion))
		}
	}

	// Mean of no recall is reported as zero.
	eval.MeanRecall, _ = stats.Mean(recalls)
	eval.Loss = valLoss.value
	eval.Accuracy = float64(eval.Correct) / float64(validation.DatasetLen())
	span.SetAttributes(config.AttributeAccuracy.Float64(eval.Accuracy))

	if logger.IsDebug() {
		logger.WithRun(t.runID).Debugf("evaluation summary by label:\n%s", evaluation.GetSummary(confusion))
	}

	metrics.ValidationLossGauge.Set(eval.Loss)
	metrics.AccuracyGauge.Set(eval.Accuracy)
	return eval, nil
}
