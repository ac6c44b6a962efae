// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Command train fits the ranking model on MovieLens ratings, evaluates it on
// the held-out split and exports a brute-force top-k index with its manifest
// and serving bundle.
//
// The platform contract is read from the environment. All of these must be
// set or the job exits before loading data:
//
//	SM_CHANNEL_TRAIN, SM_OUTPUT_DIR, SM_OUTPUT_DATA_DIR, SM_MODEL_DIR,
//	SM_HOSTS, SM_CURRENT_HOST, SM_NUM_GPUS
//
// Hyperparameters come from flags, REELRANK_* variables or the YAML file
// named by CONFIG_PATH (flags win):
//
//	train --epochs 3 --learning_rate 0.5 --embedding_dimension 32
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/reelrank/internal/config"
	"github.com/tomtom215/reelrank/internal/logging"
	"github.com/tomtom215/reelrank/internal/trainer"
)

func main() {
	// Logging from LOG_* until the configuration is known.
	logging.Init(logging.ConfigFromEnv())

	cfg, err := config.LoadTraining(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := trainer.Run(ctx, cfg)
	if err != nil {
		stop()
		logging.Fatal().Err(err).Msg("Training failed")
	}

	logging.Info().
		Str("run_id", result.RunID).
		Dur("duration", result.Duration).
		Str("model_dir", cfg.Platform.ModelDir).
		Msg("Training complete")
}
