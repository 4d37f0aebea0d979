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

package types

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	// TrainerName is name of trainer.
	TrainerName = "trainer"
)

const (
	// MetricsNamespace is namespace of metrics.
	MetricsNamespace = "xray"

	// TrainerMetricsName is name of trainer metrics.
	TrainerMetricsName = "trainer"
)

// Split is the name of a dataset view.
type Split string

const (
	// SplitTrain is the training view of the datasets.
	SplitTrain Split = "train"

	// SplitTest is the held-out view built from the test splits.
	SplitTest Split = "test"
)

// ValidationLossMode selects how validation loss is accumulated.
type ValidationLossMode string

const (
	// ValidationLossModeRenormalized divides the accumulated loss by the
	// running batch count after every validation batch and keeps the
	// accumulator for the whole epoch.
	ValidationLossModeRenormalized ValidationLossMode = "renormalized"

	// ValidationLossModeMean is the arithmetic mean of the batch losses of
	// one evaluation.
	ValidationLossModeMean ValidationLossMode = "mean"
)

// IsValid reports whether the mode is known.
func (m ValidationLossMode) IsValid() bool {
	return m == ValidationLossModeRenormalized || m == ValidationLossModeMean
}

func (m *ValidationLossMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	switch node.Kind {
	case yaml.ScalarNode:
		if err := node.Decode(&s); err != nil {
			return err
		}
	default:
		return errors.New("invalid validation loss mode")
	}

	mode := ValidationLossMode(s)
	if !mode.IsValid() {
		return fmt.Errorf("unknown validation loss mode %q", s)
	}

	*m = mode
	return nil
}
