// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Command serve answers /ping and /invocations from an index exported by
// train. The model directory is loaded in the background; /ping reports 503
// until it is available.
//
//	serve --addr :8080 --model_dir /opt/ml/model
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/reelrank/internal/config"
	"github.com/tomtom215/reelrank/internal/inference"
	"github.com/tomtom215/reelrank/internal/logging"
	"github.com/tomtom215/reelrank/internal/metrics"
	"github.com/tomtom215/reelrank/internal/supervisor"
	"github.com/tomtom215/reelrank/internal/supervisor/services"
)

func main() {
	logging.Init(logging.ConfigFromEnv())

	cfg, err := config.LoadServing(os.Args[1:], os.Stderr)
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

	sc := cfg.Serve
	logging.Info().
		Str("addr", sc.Addr).
		Str("model_dir", sc.ModelDir).
		Int("default_k", sc.DefaultK).
		Int("max_k", sc.MaxK).
		Dur("reload_interval", sc.ReloadInterval).
		Msg("Starting inference server")

	handler := inference.NewHandler(sc.DefaultK, sc.MaxK)
	handler.UseCache(sc.CacheSize, sc.CacheTTL)
	load := func(ctx context.Context) error {
		m, err := inference.LoadModel(ctx, sc.ModelDir)
		if err != nil {
			return err
		}
		handler.SetModel(m)
		metrics.SetAppInfo("serve", m.Manifest.RunID)
		return nil
	}

	server := &http.Server{
		Addr:              sc.Addr,
		Handler:           inference.NewRouter(handler),
		ReadTimeout:       sc.ReadTimeout,
		ReadHeaderTimeout: sc.ReadTimeout,
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: sc.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddModelService(services.NewModelService(load, 0, sc.ReloadInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, sc.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	logging.Info().Msg("Inference server stopped")
}
