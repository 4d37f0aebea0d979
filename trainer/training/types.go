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

import "d7y.io/xray/pkg/types"

// Result is the outcome of a training run.
type Result struct {
	// RunID is the id of the training run.
	RunID string

	// Epochs is the number of epochs started.
	Epochs int

	// Steps is the number of optimization steps over all epochs.
	Steps int

	// Evaluations is the number of evaluations over all epochs.
	Evaluations int

	// TrainingLoss is the running mean training loss of the last epoch.
	TrainingLoss float64

	// ValidationLoss is the validation loss of the last evaluation.
	ValidationLoss float64

	// Accuracy is the validation accuracy of the last evaluation.
	Accuracy float64

	// MeanRecall is the mean per class recall of the last evaluation.
	MeanRecall float64

	// EarlyStopped is true when accuracy reached the threshold.
	EarlyStopped bool

	// CheckpointPath is where the parameters were written.
	CheckpointPath string
}

// Evaluation is the outcome of one pass over the validation loader.
type Evaluation struct {
	// Loss is the validation loss.
	Loss float64

	// Accuracy is the number of correct predictions over the validation dataset size.
	Accuracy float64

	// MeanRecall is the mean of the recalls of the classes present in validation.
	MeanRecall float64

	// Correct is the number of correct predictions.
	Correct int
}

// validationLoss accumulates the validation loss of an epoch.
type validationLoss struct {
	mode    types.ValidationLossMode
	value   float64
	sum     float64
	batches int
}

func newValidationLoss(mode types.ValidationLossMode) *validationLoss {
	return &validationLoss{mode: mode}
}

// begin starts an evaluation. The renormalized value is carried over.
func (v *validationLoss) begin() {
	v.sum = 0
	v.batches = 0
	if v.mode == types.ValidationLossModeMean {
		v.value = 0
	}
}

// add accumulates the loss of the batch at the zero based index of the evaluation.
func (v *validationLoss) add(index int, loss float64) {
	if v.mode == types.ValidationLossModeMean {
		v.sum += loss
		v.batches++
		v.value = v.sum / float64(v.batches)
		return
	}

	v.value += loss
	v.value /= float64(index + 1)
}
