// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/reelrank/internal/dataset"
)

// ErrNoExamples is returned when Fit or Evaluate receives no ratings.
var ErrNoExamples = errors.New("no examples")

// TrainConfig controls the fit loop.
type TrainConfig struct {
	// Epochs is the number of passes over the training split.
	// Default: 1.
	Epochs int

	// LearningRate is the Adagrad step size.
	// Default: 0.5.
	LearningRate float64

	// BatchSize is the training batch size.
	// Default: 8192.
	BatchSize int

	// EvalBatchSize is the evaluation batch size.
	// Default: 4096.
	EvalBatchSize int

	// Shards is the number of contiguous slices each batch is cut into.
	// Results depend on Shards but not on Workers.
	// Default: 8.
	Shards int

	// Workers bounds concurrently running shards.
	// Default: runtime.NumCPU().
	Workers int

	// Seed shuffles the training split once per Fit. 0 is a valid seed.
	Seed int64
}

// BatchMetrics is reported after every optimizer step.
type BatchMetrics struct {
	Epoch    int
	Batch    int
	Examples int
	Loss     float64
	Duration time.Duration
}

// EpochMetrics summarizes one pass over the training split. Loss and RMSE
// are computed from predictions made before each batch's update.
type EpochMetrics struct {
	Epoch    int
	Examples int
	Loss     float64
	RMSE     float64
	Duration time.Duration
}

// EvalMetrics summarizes Evaluate.
type EvalMetrics struct {
	Examples int
	Loss     float64
	RMSE     float64
}

// Callbacks receive progress from Fit. Nil fields are skipped.
type Callbacks struct {
	OnBatchEnd func(BatchMetrics)
	OnEpochEnd func(EpochMetrics)
}

// Trainer fits a Model with Adagrad on mean squared error. A Trainer owns
// per-shard scratch buffers and is not safe for concurrent use.
type Trainer struct {
	model     *Model
	config    TrainConfig
	optimizer *Adagrad // allocated by the first Fit
	callbacks Callbacks

	shards     []*gradients
	workspaces []*workspace
}

// NewTrainer returns a trainer for m. Zero config fields take defaults.
func NewTrainer(m *Model, cfg TrainConfig, cb Callbacks) *Trainer {
	if cfg.Epochs <= 0 {
		cfg.Epochs = 1
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8192
	}
	if cfg.EvalBatchSize <= 0 {
		cfg.EvalBatchSize = 4096
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 8
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	t := &Trainer{
		model:     m,
		config:    cfg,
		callbacks: cb,
	}
	for i := 0; i < cfg.Shards; i++ {
		t.shards = append(t.shards, newGradients(m))
		t.workspaces = append(t.workspaces, newWorkspace(m))
	}
	return t
}

// Config returns the effective training configuration.
func (t *Trainer) Config() TrainConfig {
	return t.config
}

// Fit trains on ratings for the configured number of epochs.
func (t *Trainer) Fit(ctx context.Context, ratings []dataset.Rating) ([]EpochMetrics, error) {
	if len(ratings) == 0 {
		return nil, fmt.Errorf("fit: %w", ErrNoExamples)
	}

	t.model.mu.Lock()
	defer t.model.mu.Unlock()

	if t.optimizer == nil {
		t.optimizer = NewAdagrad(t.model, t.config.LearningRate)
	}
	batches := t.encode(dataset.Shuffled(ratings, t.config.Seed), t.config.BatchSize)

	history := make([]EpochMetrics, 0, t.config.Epochs)
	for epoch := 1; epoch <= t.config.Epochs; epoch++ {
		start := time.Now()
		var sqErr float64
		var seen int

		for b, batch := range batches {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			batchStart := time.Now()

			total, err := t.gradient(ctx, batch, true)
			if err != nil {
				return history, err
			}
			t.optimizer.apply(t.model, total)

			sqErr += total.sqErr
			seen += total.examples
			if t.callbacks.OnBatchEnd != nil {
				t.callbacks.OnBatchEnd(BatchMetrics{
					Epoch:    epoch,
					Batch:    b + 1,
					Examples: total.examples,
					Loss:     total.sqErr / float64(total.examples),
					Duration: time.Since(batchStart),
				})
			}
		}

		m := EpochMetrics{
			Epoch:    epoch,
			Examples: seen,
			Loss:     sqErr / float64(seen),
			RMSE:     math.Sqrt(sqErr / float64(seen)),
			Duration: time.Since(start),
		}
		history = append(history, m)
		if t.callbacks.OnEpochEnd != nil {
			t.callbacks.OnEpochEnd(m)
		}
	}

	t.model.markTrained()
	return history, nil
}

// Evaluate computes loss and RMSE on ratings without updating the model.
func (t *Trainer) Evaluate(ctx context.Context, ratings []dataset.Rating) (EvalMetrics, error) {
	if len(ratings) == 0 {
		return EvalMetrics{}, fmt.Errorf("evaluate: %w", ErrNoExamples)
	}

	t.model.mu.RLock()
	defer t.model.mu.RUnlock()

	var sqErr float64
	var seen int
	for _, batch := range t.encode(ratings, t.config.EvalBatchSize) {
		total, err := t.gradient(ctx, batch, false)
		if err != nil {
			return EvalMetrics{}, err
		}
		sqErr += total.sqErr
		seen += total.examples
	}
	return EvalMetrics{
		Examples: seen,
		Loss:     sqErr / float64(seen),
		RMSE:     math.Sqrt(sqErr / float64(seen)),
	}, nil
}

// encodedExample is a rating with its features already looked up.
type encodedExample struct {
	user   int
	movie  int
	rating float32
}

func (t *Trainer) encode(ratings []dataset.Rating, batchSize int) [][]encodedExample {
	all := make([]encodedExample, len(ratings))
	for i, r := range ratings {
		all[i] = encodedExample{
			user:   t.model.users.Lookup(r.UserID),
			movie:  t.model.movies.Lookup(r.MovieTitle),
			rating: r.UserRating,
		}
	}
	var batches [][]encodedExample
	for lo := 0; lo < len(all); lo += batchSize {
		batches = append(batches, all[lo:min(lo+batchSize, len(all))])
	}
	return batches
}

// gradient runs the batch through the model shard by shard and returns the
// shard-ordered sum. With backprop false only the squared error is
// collected.
func (t *Trainer) gradient(ctx context.Context, batch []encodedExample, backprop bool) (*gradients, error) {
	n := len(batch)
	shards := min(t.config.Shards, n)
	scale := float32(2) / float32(n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.config.Workers)
	for s := 0; s < shards; s++ {
		lo, hi := s*n/shards, (s+1)*n/shards
		grads, ws := t.shards[s], t.workspaces[s]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			grads.reset()
			dim := t.model.config.EmbeddingDimension
			for _, ex := range batch[lo:hi] {
				pred := ws.forward(ex.user, ex.movie)
				diff := pred - ex.rating
				grads.sqErr += float64(diff) * float64(diff)
				grads.examples++
				if !backprop {
					continue
				}
				ws.backward(scale*diff, grads)
				addRow(grads.users, ex.user, ws.grad[0][:dim])
				addRow(grads.movies, ex.movie, ws.grad[0][dim:])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := t.shards[0]
	for s := 1; s < shards; s++ {
		total.merge(t.shards[s])
	}
	return total, nil
}
