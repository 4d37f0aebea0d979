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

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"d7y.io/xray/pkg/types"
	"d7y.io/xray/trainer/config"
	"d7y.io/xray/version"
)

// Training job counters.
var (
	TrainStartedCount  = counter("training_started_total", "Number of training jobs started.")
	TrainFailureCount  = counter("training_failure_total", "Number of training jobs that failed.")
	TrainFinishedCount = counterVec("training_finished_total", "Number of training jobs finished, by early stop.", "early_stopped")
)

// Step and evaluation metrics of the running job.
var (
	TrainingStepCount   = counter("training_step_total", "Number of optimizer steps taken.")
	TrainingLossGauge   = gauge("training_loss", "Running mean training loss of the current epoch.")
	EvaluateCount       = counter("evaluate_total", "Number of evaluations run against the test split.")
	ValidationLossGauge = gauge("validation_loss", "Validation loss of the last evaluation.")
	AccuracyGauge       = gauge("accuracy", "Validation accuracy of the last evaluation.")
)

// Checkpoint persistence and publishing.
var (
	CheckpointCount         = counter("checkpoint_total", "Number of checkpoints written.")
	CheckpointFailureCount  = counter("checkpoint_failure_total", "Number of checkpoint writes that failed.")
	UploadModelCount        = counter("upload_total", "Number of checkpoints uploaded to object storage.")
	UploadModelFailureCount = counter("upload_failure_total", "Number of checkpoint uploads that failed.")
)

var (
	// DatasetSizeGauge counts images of the assembled datasets.
	DatasetSizeGauge = gaugeVec("dataset_size", "Number of images by split and class.", "split", "class")

	VersionGauge = gaugeVec("version", "Build information of the trainer.",
		"major", "minor", "git_version", "git_commit", "platform", "build_time", "go_version")
)

func counter(name, help string) prometheus.Counter {
	return promauto.NewCounter(prometheus.CounterOpts{
		Namespace: types.MetricsNamespace, Subsystem: types.TrainerMetricsName, Name: name, Help: help,
	})
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: types.MetricsNamespace, Subsystem: types.TrainerMetricsName, Name: name, Help: help,
	}, labels)
}

func gauge(name, help string) prometheus.Gauge {
	return promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: types.MetricsNamespace, Subsystem: types.TrainerMetricsName, Name: name, Help: help,
	})
}

func gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: types.MetricsNamespace, Subsystem: types.TrainerMetricsName, Name: name, Help: help,
	}, labels)
}

// New returns the server exposing /metrics on cfg.Addr, it is started by the caller.
func New(cfg *config.MetricsConfig) *http.Server {
	VersionGauge.WithLabelValues(version.Major, version.Minor, version.GitVersion, version.GitCommit,
		version.Platform, version.BuildTime, version.GoVersion).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: cfg.Addr, Handler: mux}
}
