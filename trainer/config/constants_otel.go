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


package config

import "go.opentelemetry.io/otel/attribute"

const (
	AttributeRunID       = attribute.Key("d7y.run.id")
	AttributeEpoch       = attribute.Key("d7y.training.epoch")
	AttributeStep        = attribute.Key("d7y.training.step")
	AttributeAccuracy    = attribute.Key("d7y.training.accuracy")
	AttributeObjectKey   = attribute.Key("d7y.checkpoint.object.key")
	AttributeInstitution = attribute.Key("d7y.dataset.institution")
)

const (
	SpanTrain      = "train"
	SpanEpoch      = "epoch"
	SpanEvaluate   = "evaluate"
	SpanBuildSplit = "build-split"
	SpanUpload     = "upload-checkpoint"
)

const (
	EventEarlyStop = "early-stop"
)
