// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

/*
Package metrics provides Prometheus instrumentation for training and serving.

Collectors are registered on the default registry with promauto. The training
job has no scrape endpoint, so it writes the registry to a node_exporter
textfile once the run finishes (WriteTextfile). The serving binary exposes
the same registry at /metrics.

Training Metrics:
  - reelrank_training_batches_total, reelrank_training_examples_total
  - reelrank_training_batch_duration_seconds (histogram)
  - reelrank_training_epoch_loss, reelrank_training_epoch_rmse (gauges, last epoch)
  - reelrank_evaluation_loss, reelrank_evaluation_rmse
  - reelrank_dataset_ratings, reelrank_model_parameters, reelrank_index_candidates

Serving Metrics:
  - reelrank_inference_requests_total (labels: method, endpoint, status)
  - reelrank_inference_request_duration_seconds (labels: method, endpoint)
  - reelrank_inference_active_requests
  - reelrank_inference_cache_lookups_total (label: result)
*/
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Training Metrics
	TrainingBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelrank_training_batches_total",
			Help: "Total number of optimizer steps taken",
		},
	)

	TrainingExamples = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelrank_training_examples_total",
			Help: "Total number of training examples processed across all epochs",
		},
	)

	TrainingBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelrank_training_batch_duration_seconds",
			Help:    "Wall time of one forward, backward and update step",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	TrainingEpochLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelrank_training_epoch_loss",
			Help: "Mean squared error of the most recent training epoch",
		},
	)

	TrainingEpochRMSE = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelrank_training_epoch_rmse",
			Help: "Root mean squared error of the most recent training epoch",
		},
	)

	TrainingEpochs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelrank_training_epochs_total",
			Help: "Total number of completed training epochs",
		},
	)

	EvaluationLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelrank_evaluation_loss",
			Help: "Mean squared error on the held-out split",
		},
	)

	EvaluationRMSE = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelrank_evaluation_rmse",
			Help: "Root mean squared error on the held-out split",
		},
	)

	DatasetRatings = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelrank_dataset_ratings",
			Help: "Number of ratings per split",
		},
		[]string{"split"}, // "all", "train", "test"
	)

	ModelParameters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelrank_model_parameters",
			Help: "Number of trainable parameters in the ranking model",
		},
	)

	IndexCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelrank_index_candidates",
			Help: "Number of candidate titles in the retrieval index",
		},
	)

	// Serving Metrics
	InferenceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_inference_requests_total",
			Help: "Total number of inference HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	InferenceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelrank_inference_request_duration_seconds",
			Help:    "Inference request latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	InferenceActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelrank_inference_active_requests",
			Help: "Number of inference requests currently being served",
		},
	)

	InferenceCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_inference_cache_lookups_total",
			Help: "Per-user query cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelrank_app_info",
			Help: "Run identity and build information",
		},
		[]string{"component", "run_id", "go_version"},
	)
)

// RecordBatch records one optimizer step.
func RecordBatch(examples int, duration time.Duration) {
	TrainingBatches.Inc()
	TrainingExamples.Add(float64(examples))
	TrainingBatchDuration.Observe(duration.Seconds())
}

// RecordEpoch records the summary of a finished epoch.
func RecordEpoch(loss, rmse float64) {
	TrainingEpochs.Inc()
	TrainingEpochLoss.Set(loss)
	TrainingEpochRMSE.Set(rmse)
}

// RecordEvaluation records held-out metrics.
func RecordEvaluation(loss, rmse float64) {
	EvaluationLoss.Set(loss)
	EvaluationRMSE.Set(rmse)
}

// RecordDataset records the size of the full dataset and both splits.
func RecordDataset(all, train, test int) {
	DatasetRatings.WithLabelValues("all").Set(float64(all))
	DatasetRatings.WithLabelValues("train").Set(float64(train))
	DatasetRatings.WithLabelValues("test").Set(float64(test))
}

// RecordInferenceRequest records an inference request metric.
func RecordInferenceRequest(method, endpoint, statusCode string, duration time.Duration) {
	InferenceRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	InferenceRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight inference requests.
func TrackActiveRequest(inc bool) {
	if inc {
		InferenceActiveRequests.Inc()
	} else {
		InferenceActiveRequests.Dec()
	}
}

// RecordCacheLookup counts one query cache lookup.
func RecordCacheLookup(hit bool) {
	if hit {
		InferenceCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	InferenceCacheLookups.WithLabelValues("miss").Inc()
}

// SetAppInfo publishes the component name and run ID, replacing any run ID
// previously set for the component.
func SetAppInfo(component, runID string) {
	AppInfo.DeletePartialMatch(prometheus.Labels{"component": component})
	AppInfo.WithLabelValues(component, runID, runtime.Version()).Set(1)
}

// WriteTextfile writes every metric in the default registry to path in the
// Prometheus text format, creating the parent directory if absent.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
