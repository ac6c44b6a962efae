// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/reelrank/internal/logging"
)

// LoadFunc reads the exported model and installs it for serving.
type LoadFunc func(ctx context.Context) error

// ModelService loads the exported model, retrying until the first load
// succeeds. With a positive reload interval it keeps reloading on that
// schedule; otherwise it exits with suture.ErrDoNotRestart after the first
// success.
type ModelService struct {
	load           LoadFunc
	retryInterval  time.Duration
	reloadInterval time.Duration
	logger         zerolog.Logger
	name           string
}

// NewModelService creates the loader. A non-positive retryInterval means 1s.
func NewModelService(load LoadFunc, retryInterval, reloadInterval time.Duration) *ModelService {
	if retryInterval <= 0 {
		retryInterval = time.Second
	}
	return &ModelService{
		load:           load,
		retryInterval:  retryInterval,
		reloadInterval: reloadInterval,
		logger:         logging.WithComponent("model-loader"),
		name:           "model-loader",
	}
}

// Serve implements suture.Service.
func (s *ModelService) Serve(ctx context.Context) error {
	if err := s.loadUntilReady(ctx); err != nil {
		return err
	}
	if s.reloadInterval <= 0 {
		return suture.ErrDoNotRestart
	}

	ticker := time.NewTicker(s.reloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// A failed reload keeps the previous model in service.
			if err := s.load(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Model reload failed, keeping current model")
				continue
			}
			s.logger.Info().Msg("Model reloaded")
		}
	}
}

func (s *ModelService) loadUntilReady(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := s.load(ctx)
		if err == nil {
			s.logger.Info().Int("attempt", attempt).Msg("Model loaded")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", s.retryInterval).Msg("Model not loadable yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryInterval):
		}
	}
}

func (s *ModelService) String() string {
	return s.name
}
