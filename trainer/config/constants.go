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

import "path/filepath"

const (
	// DefaultLogRotateMaxSize is the default maximum size in megabytes of log files before rotation.
	DefaultLogRotateMaxSize = 1024

	// DefaultLogRotateMaxAge is the default number of days to retain old log files.
	DefaultLogRotateMaxAge = 7

	// DefaultLogRotateMaxBackups is the default number of old log files to keep.
	DefaultLogRotateMaxBackups = 20
)

const (
	// DefaultDatasetDir is default datasets root.
	DefaultDatasetDir = "datasets"

	// DefaultTestQuota is default number of test images per class.
	DefaultTestQuota = 30

	// TestDirName is the directory of the test split inside an institution.
	TestDirName = "test"

	// DefaultMaxExtractSize is default bound of the uncompressed size of a dataset archive.
	DefaultMaxExtractSize = "16GiB"
)

var (
	// DefaultClassNames is default ordered class list.
	DefaultClassNames = []string{"Normal", "Viral Pneumonia", "COVID"}

	// DefaultImageExtensions is default accepted image extensions.
	DefaultImageExtensions = []string{".png"}
)

const (
	// DefaultTransformSize is default edge of model input images.
	DefaultTransformSize = 224
)

var (
	// DefaultTransformMean is default normalization mean of ImageNet.
	DefaultTransformMean = []float64{0.485, 0.456, 0.406}

	// DefaultTransformStd is default normalization standard deviation of ImageNet.
	DefaultTransformStd = []float64{0.229, 0.224, 0.225}
)

const (
	// DefaultBatchSize is default batch size.
	DefaultBatchSize = 6

	// DefaultLoaderWorkers is default number of loader workers.
	DefaultLoaderWorkers = 4

	// DefaultLoaderPrefetch is default number of prefetched batches.
	DefaultLoaderPrefetch = 2
)

const (
	// DefaultEpochs is default epoch budget.
	DefaultEpochs = 1

	// DefaultLearningRate is default learning rate of adam.
	DefaultLearningRate = 3e-5

	// DefaultEvaluateInterval is default number of steps between evaluations.
	DefaultEvaluateInterval = 20

	// DefaultAccuracyThreshold is default validation accuracy stopping threshold.
	DefaultAccuracyThreshold = 0.95

	// DefaultFeatureGrid is default pooling grid of the feature extractor.
	DefaultFeatureGrid = 8
)

var (
	// DefaultCheckpointPath is default checkpoint path.
	DefaultCheckpointPath = filepath.Join("results", "model.ckpt")
)

const (
	// DefaultMetricsAddr is default address for metrics server.
	DefaultMetricsAddr = ":8000"
)

const (
	// DefaultObjectStoragePrefix is default prefix of checkpoint object keys.
	DefaultObjectStoragePrefix = "checkpoints"
)

const (
	// DefaultTelemetryServiceName is default service name reported to jaeger.
	DefaultTelemetryServiceName = "xray-trainer"
)
