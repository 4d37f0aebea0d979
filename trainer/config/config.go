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

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/docker/go-units"
	"golang.org/x/exp/slices"

	"d7y.io/xray/cmd/dependency/base"
	"d7y.io/xray/pkg/objectstorage"
	"d7y.io/xray/pkg/types"
)

type Config struct {
	// Base options.
	base.Options `yaml:",inline" mapstructure:",squash"`

	// Server configuration.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Dataset configuration.
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`

	// Transform configuration.
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`

	// Loader configuration.
	Loader LoaderConfig `yaml:"loader" mapstructure:"loader"`

	// Training configuration.
	Training TrainingConfig `yaml:"training" mapstructure:"training"`

	// Storage configuration.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Metrics configuration.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// ObjectStorage configuration.
	ObjectStorage ObjectStorageConfig `yaml:"objectStorage" mapstructure:"objectStorage"`
}

type ServerConfig struct {
	// Server work directory.
	WorkHome string `yaml:"workHome" mapstructure:"workHome"`

	// Server log directory.
	LogDir string `yaml:"logDir" mapstructure:"logDir"`

	// Maximum size in megabytes of log files before rotation (default: 1024)
	LogMaxSize int `yaml:"logMaxSize" mapstructure:"logMaxSize"`

	// Maximum number of days to retain old log files (default: 7)
	LogMaxAge int `yaml:"logMaxAge" mapstructure:"logMaxAge"`

	// Maximum number of old log files to keep (default: 20)
	LogMaxBackups int `yaml:"logMaxBackups" mapstructure:"logMaxBackups"`

	// Server storage data directory, evaluation records are written here.
	DataDir string `yaml:"dataDir" mapstructure:"dataDir"`
}

type DatasetConfig struct {
	// Dir is the datasets root holding institution directories or zip archives.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// ClassNames is the ordered class list, the position of a class is its label.
	ClassNames []string `yaml:"classNames" mapstructure:"classNames"`

	// Extensions are the accepted image extensions, matched ignoring case.
	Extensions []string `yaml:"extensions" mapstructure:"extensions"`

	// TestQuota is the number of images sampled per class into the test split.
	TestQuota int `yaml:"testQuota" mapstructure:"testQuota"`

	// ExcludeTestFromTrain removes the sampled test images from the training view.
	ExcludeTestFromTrain bool `yaml:"excludeTestFromTrain" mapstructure:"excludeTestFromTrain"`

	// MaxExtractSize bounds the uncompressed size of a dataset archive, like 16GiB.
	MaxExtractSize string `yaml:"maxExtractSize" mapstructure:"maxExtractSize"`
}

type TransformConfig struct {
	// Size is the edge of the square image fed to the model.
	Size int `yaml:"size" mapstructure:"size"`

	// Mean is the per channel normalization mean.
	Mean []float64 `yaml:"mean" mapstructure:"mean"`

	// Std is the per channel normalization standard deviation.
	Std []float64 `yaml:"std" mapstructure:"std"`

	// HorizontalFlip enables random horizontal flip of training images.
	HorizontalFlip bool `yaml:"horizontalFlip" mapstructure:"horizontalFlip"`
}

type LoaderConfig struct {
	// BatchSize is the number of examples of a batch.
	BatchSize int `yaml:"batchSize" mapstructure:"batchSize"`

	// Workers is the number of goroutines loading examples.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// Prefetch is the number of batches prepared ahead.
	Prefetch int `yaml:"prefetch" mapstructure:"prefetch"`

	// Shuffle permutes the indices every pass.
	Shuffle bool `yaml:"shuffle" mapstructure:"shuffle"`
}

type TrainingConfig struct {
	// Epochs is the epoch budget.
	Epochs int `yaml:"epochs" mapstructure:"epochs"`

	// LearningRate of the optimizer.
	LearningRate float64 `yaml:"learningRate" mapstructure:"learningRate"`

	// EvaluateInterval evaluates every n training steps, step 0 included.
	EvaluateInterval int `yaml:"evaluateInterval" mapstructure:"evaluateInterval"`

	// AccuracyThreshold stops training once validation accuracy reaches it.
	AccuracyThreshold float64 `yaml:"accuracyThreshold" mapstructure:"accuracyThreshold"`

	// ValidationLossMode is renormalized or mean.
	ValidationLossMode types.ValidationLossMode `yaml:"validationLossMode" mapstructure:"validationLossMode"`

	// CheckpointPath is where the trained parameters are written.
	CheckpointPath string `yaml:"checkpointPath" mapstructure:"checkpointPath"`

	// InitialCheckpoint loads head parameters before training when set.
	InitialCheckpoint string `yaml:"initialCheckpoint" mapstructure:"initialCheckpoint"`

	// FeatureGrid is the pooling grid of the frozen feature extractor.
	FeatureGrid int `yaml:"featureGrid" mapstructure:"featureGrid"`

	// Seed of the random sources, 0 seeds from the clock.
	Seed int64 `yaml:"seed" mapstructure:"seed"`

	// Progress shows a progress bar of training steps on the console.
	Progress bool `yaml:"progress" mapstructure:"progress"`
}

type StorageConfig struct {
	// KeepRecords keeps evaluation records when the trainer stops.
	KeepRecords bool `yaml:"keepRecords" mapstructure:"keepRecords"`
}

type MetricsConfig struct {
	// Enable metrics service.
	Enable bool `yaml:"enable" mapstructure:"enable"`

	// Metrics service address.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type ObjectStorageConfig struct {
	// Enable uploads the checkpoint after training.
	Enable bool `yaml:"enable" mapstructure:"enable"`

	// Name is the object storage service, s3 or oss.
	Name string `yaml:"name" mapstructure:"name"`

	// Region is storage region.
	Region string `yaml:"region" mapstructure:"region"`

	// Endpoint is datacenter endpoint.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// AccessKey is access key ID.
	AccessKey string `yaml:"accessKey" mapstructure:"accessKey"`

	// SecretKey is access key secret.
	SecretKey string `yaml:"secretKey" mapstructure:"secretKey"`

	// BucketName is the bucket of checkpoints, created when missing.
	BucketName string `yaml:"bucketName" mapstructure:"bucketName"`

	// Prefix of the checkpoint object keys.
	Prefix string `yaml:"prefix" mapstructure:"prefix"`

	// UploadRateLimit is the upload bandwidth per second, such as 16MiB. Empty is unlimited.
	UploadRateLimit string `yaml:"uploadRateLimit" mapstructure:"uploadRateLimit"`
}

// New default configuration.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			LogMaxSize:    DefaultLogRotateMaxSize,
			LogMaxAge:     DefaultLogRotateMaxAge,
			LogMaxBackups: DefaultLogRotateMaxBackups,
		},
		Dataset: DatasetConfig{
			Dir:            DefaultDatasetDir,
			ClassNames:     append([]string(nil), DefaultClassNames...),
			Extensions:     append([]string(nil), DefaultImageExtensions...),
			TestQuota:      DefaultTestQuota,
			MaxExtractSize: DefaultMaxExtractSize,
		},
		Transform: TransformConfig{
			Size:           DefaultTransformSize,
			Mean:           append([]float64(nil), DefaultTransformMean...),
			Std:            append([]float64(nil), DefaultTransformStd...),
			HorizontalFlip: true,
		},
		Loader: LoaderConfig{
			BatchSize: DefaultBatchSize,
			Workers:   DefaultLoaderWorkers,
			Prefetch:  DefaultLoaderPrefetch,
			Shuffle:   true,
		},
		Training: TrainingConfig{
			Epochs:             DefaultEpochs,
			LearningRate:       DefaultLearningRate,
			EvaluateInterval:   DefaultEvaluateInterval,
			AccuracyThreshold:  DefaultAccuracyThreshold,
			ValidationLossMode: types.ValidationLossModeRenormalized,
			CheckpointPath:     DefaultCheckpointPath,
			FeatureGrid:        DefaultFeatureGrid,
		},
		Storage: StorageConfig{
			KeepRecords: true,
		},
		Metrics: MetricsConfig{
			Enable: false,
			Addr:   DefaultMetricsAddr,
		},
		ObjectStorage: ObjectStorageConfig{
			Enable: false,
			Name:   objectstorage.BackendS3,
			Prefix: DefaultObjectStoragePrefix,
		},
	}
}

// Validate config parameters.
func (cfg *Config) Validate() error {
	if cfg.Dataset.Dir == "" {
		return errors.New("dataset requires parameter dir")
	}

	if len(cfg.Dataset.ClassNames) == 0 {
		return errors.New("dataset requires parameter classNames")
	}

	for i, name := range cfg.Dataset.ClassNames {
		if name == "" {
			return errors.New("dataset classNames must not be empty")
		}

		if slices.Index(cfg.Dataset.ClassNames, name) != i {
			return fmt.Errorf("dataset classNames has duplicate class %s", name)
		}

		if name == TestDirName {
			return fmt.Errorf("dataset classNames must not contain %s", TestDirName)
		}
	}

	if len(cfg.Dataset.Extensions) == 0 {
		return errors.New("dataset requires parameter extensions")
	}

	if cfg.Dataset.TestQuota <= 0 {
		return errors.New("dataset requires parameter testQuota")
	}

	if size, err := units.RAMInBytes(cfg.Dataset.MaxExtractSize); err != nil || size <= 0 {
		return errors.New("dataset requires parameter maxExtractSize")
	}

	if cfg.Transform.Size <= 0 {
		return errors.New("transform requires parameter size")
	}

	if len(cfg.Transform.Mean) != 3 || len(cfg.Transform.Std) != 3 {
		return errors.New("transform requires three channel mean and std")
	}

	for _, std := range cfg.Transform.Std {
		if std <= 0 {
			return errors.New("transform std must be positive")
		}
	}

	if cfg.Loader.BatchSize <= 0 {
		return errors.New("loader requires parameter batchSize")
	}

	if cfg.Loader.Workers <= 0 {
		return errors.New("loader requires parameter workers")
	}

	if cfg.Loader.Prefetch < 0 {
		return errors.New("loader prefetch must not be negative")
	}

	if cfg.Training.Epochs <= 0 {
		return errors.New("training requires parameter epochs")
	}

	if cfg.Training.LearningRate <= 0 {
		return errors.New("training requires parameter learningRate")
	}

	if cfg.Training.EvaluateInterval <= 0 {
		return errors.New("training requires parameter evaluateInterval")
	}

	if cfg.Training.AccuracyThreshold <= 0 || cfg.Training.AccuracyThreshold > 1 {
		return errors.New("training accuracyThreshold must be in (0, 1]")
	}

	if !cfg.Training.ValidationLossMode.IsValid() {
		return errors.New("training requires parameter validationLossMode")
	}

	if cfg.Training.CheckpointPath == "" {
		return errors.New("training requires parameter checkpointPath")
	}

	if cfg.Training.FeatureGrid <= 0 || cfg.Training.FeatureGrid > cfg.Transform.Size {
		return errors.New("training featureGrid must be in [1, transform size]")
	}

	if cfg.Metrics.Enable {
		if cfg.Metrics.Addr == "" {
			return errors.New("metrics requires parameter addr")
		}
	}

	if cfg.ObjectStorage.Enable {
		if !slices.Contains(objectstorage.Backends, cfg.ObjectStorage.Name) {
			return errors.New("objectStorage requires parameter name")
		}

		if cfg.ObjectStorage.Endpoint == "" {
			return errors.New("objectStorage requires parameter endpoint")
		}

		if cfg.ObjectStorage.AccessKey == "" {
			return errors.New("objectStorage requires parameter accessKey")
		}

		if cfg.ObjectStorage.SecretKey == "" {
			return errors.New("objectStorage requires parameter secretKey")
		}

		if cfg.ObjectStorage.BucketName == "" {
			return errors.New("objectStorage requires parameter bucketName")
		}

		if cfg.ObjectStorage.UploadRateLimit != "" {
			if limit, err := units.RAMInBytes(cfg.ObjectStorage.UploadRateLimit); err != nil || limit <= 0 {
				return errors.New("objectStorage uploadRateLimit must be a positive size")
			}
		}
	}

	return nil
}

// Convert fills derived parameters.
func (cfg *Config) Convert() error {
	if cfg.Training.CheckpointPath != "" && !filepath.IsAbs(cfg.Training.CheckpointPath) && cfg.Server.WorkHome != "" {
		cfg.Training.CheckpointPath = filepath.Join(cfg.Server.WorkHome, cfg.Training.CheckpointPath)
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultTelemetryServiceName
	}

	return nil
}
