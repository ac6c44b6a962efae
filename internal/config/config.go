// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package config loads reelrank configuration from layered sources using koanf.
//
// Layers, lowest priority first:
//
//  1. Struct defaults (defaultConfig)
//  2. Optional YAML file named by CONFIG_PATH
//  3. Environment: the managed platform's SM_* contract, SM_HP_* hyperparameters,
//     LOG_* and REELRANK_<SECTION>_<KEY>
//  4. Command-line flags that were explicitly set
//
// The training job additionally requires every platform variable in
// RequiredTrainingEnv to be present before anything else is read.
package config

import (
	"path/filepath"
	"time"
)

// Config is the full reelrank configuration. It is not modified after Load.
type Config struct {
	Platform    PlatformConfig    `koanf:"platform"`
	Training    TrainingConfig    `koanf:"training"`
	Dataset     DatasetConfig     `koanf:"dataset"`
	Export      ExportConfig      `koanf:"export"`
	TensorBoard TensorBoardConfig `koanf:"tensorboard"`
	Logging     LoggingConfig     `koanf:"logging"`
	Serve       ServeConfig       `koanf:"serve"`
}

// PlatformConfig is the training platform's environment contract.
type PlatformConfig struct {
	TrainData     string   `koanf:"train_data" validate:"required"`
	OutputDir     string   `koanf:"output_dir" validate:"required"`
	OutputDataDir string   `koanf:"output_data_dir" validate:"required"`
	ModelDir      string   `koanf:"model_dir" validate:"required"`
	Hosts         []string `koanf:"hosts" validate:"min=1,dive,required"`
	CurrentHost   string   `koanf:"current_host" validate:"required"`
	NumGPUs       int      `koanf:"num_gpus" validate:"gte=0"`
}

// TrainingConfig controls model shape and the fit loop.
type TrainingConfig struct {
	Epochs             int     `koanf:"epochs" validate:"gte=1"`
	LearningRate       float64 `koanf:"learning_rate" validate:"gt=0"`
	EmbeddingDimension int     `koanf:"embedding_dimension" validate:"gte=1"`
	HiddenUnits        []int   `koanf:"hidden_units" validate:"min=1,dive,gte=1"`
	TrainBatchSize     int     `koanf:"train_batch_size" validate:"gte=1"`
	EvalBatchSize      int     `koanf:"eval_batch_size" validate:"gte=1"`
	Seed               int64   `koanf:"seed"`
	TrainFraction      float64 `koanf:"train_fraction" validate:"gt=0,lt=1"`

	// GradientShards is the number of slices a batch is split into for
	// parallel gradient computation. Results depend on it, not on Workers.
	GradientShards int `koanf:"gradient_shards" validate:"gte=1"`

	// Workers bounds concurrent shards; 0 means runtime.NumCPU().
	Workers int `koanf:"workers" validate:"gte=0"`
}

// DatasetConfig selects which MovieLens release to read and how.
type DatasetConfig struct {
	Variant string `koanf:"variant" validate:"oneof=100k 1m 20m 25m latest-small"`
	Format  string `koanf:"format" validate:"oneof=auto tfds raw parquet"`

	// Version pins a tfds dataset version directory; empty picks the newest.
	Version string `koanf:"version"`
}

// ExportConfig controls the exported index and the files copied next to it.
// The serving entrypoint and dependency manifest are always exported;
// CodeFiles adds operator files from CodeSourceDir.
type ExportConfig struct {
	IndexK        int      `koanf:"index_k" validate:"gte=1"`
	DisplayK      int      `koanf:"display_k" validate:"gte=1"`
	QueryUser     string   `koanf:"query_user"`
	CodeFiles     []string `koanf:"code_files"`
	CodeSourceDir string   `koanf:"code_source_dir"`
}

// TensorBoardConfig toggles event-file output.
type TensorBoardConfig struct {
	Enabled bool `koanf:"enabled"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ServeConfig configures the inference endpoint.
type ServeConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ModelDir        string        `koanf:"model_dir" validate:"required"`
	DefaultK        int           `koanf:"default_k" validate:"gte=1"`
	MaxK            int           `koanf:"max_k" validate:"gtefield=DefaultK"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// ReloadInterval re-reads the exported model periodically. Zero loads once.
	ReloadInterval time.Duration `koanf:"reload_interval" validate:"gte=0"`

	// CacheSize bounds the per-user query cache. Zero disables it.
	CacheSize int           `koanf:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

// defaultConfig returns the values used when no other layer sets a key.
func defaultConfig() *Config {
	return &Config{
		Training: TrainingConfig{
			Epochs:             1,
			LearningRate:       0.5,
			EmbeddingDimension: 256,
			HiddenUnits:        []int{256, 64},
			TrainBatchSize:     8192,
			EvalBatchSize:      4096,
			Seed:               42,
			TrainFraction:      0.8,
			GradientShards:     8,
		},
		Dataset: DatasetConfig{
			Variant: "100k",
			Format:  "auto",
		},
		Export: ExportConfig{
			IndexK:        10,
			DisplayK:      5,
			QueryUser:     "42",
			CodeFiles:     []string{},
			CodeSourceDir: ".",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Serve: ServeConfig{
			Addr:            ":8080",
			ModelDir:        "/opt/ml/model",
			DefaultK:        10,
			MaxK:            100,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CacheSize:       10000,
			CacheTTL:        5 * time.Minute,
		},
	}
}

// TensorBoardDir is where event files go when TensorBoard is enabled.
func (c *Config) TensorBoardDir() string {
	return filepath.Join(c.Platform.ModelDir, "tensorboard")
}

// SavedModelDir is the versioned directory holding the exported index.
func (c *Config) SavedModelDir() string {
	return SavedModelDir(c.Platform.ModelDir)
}

// CodeDir receives the inference handler and dependency manifest.
func (c *Config) CodeDir() string {
	return filepath.Join(c.Platform.ModelDir, "code")
}

// MetricsFile is the Prometheus textfile written after training.
func (c *Config) MetricsFile() string {
	return filepath.Join(c.Platform.OutputDataDir, "metrics.prom")
}

// SavedModelDir returns <modelDir>/tensorflow/saved_model/0. The serving
// binary uses it to find the index under its own model directory.
func SavedModelDir(modelDir string) string {
	return filepath.Join(modelDir, "tensorflow", "saved_model", "0")
}
