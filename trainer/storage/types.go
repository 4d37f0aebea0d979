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

package storage

// EvaluationRecord is the result of one evaluation of the training loop.
type EvaluationRecord struct {
	// RunID is the id of the training run.
	RunID string `csv:"runID"`

	// Epoch is the zero based epoch of the evaluation.
	Epoch int `csv:"epoch"`

	// Step is the zero based step of the epoch after which the evaluation ran.
	Step int `csv:"step"`

	// TrainingLoss is the running mean training loss of the epoch.
	TrainingLoss float64 `csv:"trainingLoss"`

	// ValidationLoss is the validation loss of the evaluation.
	ValidationLoss float64 `csv:"validationLoss"`

	// Accuracy is the validation accuracy.
	Accuracy float64 `csv:"accuracy"`

	// MeanRecall is the mean of the per class recalls.
	MeanRecall float64 `csv:"meanRecall"`

	// CreatedAt is the evaluation time in nanoseconds.
	CreatedAt int64 `csv:"createdAt"`
}
