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
	"testing"

	"github.com/tomtom215/reelrank/internal/dataset"
)

// toyRatings gives each user a fixed bias so the model has signal to learn.
func toyRatings() []dataset.Rating {
	var out []dataset.Rating
	for u := 0; u < 12; u++ {
		for mv := 0; mv < 10; mv++ {
			out = append(out, dataset.Rating{
				UserID:     fmt.Sprint(u),
				MovieTitle: fmt.Sprintf("Movie %d", mv),
				UserRating: float32(1 + (u+mv)%5),
			})
		}
	}
	return out
}

func newToyTrainer(t *testing.T, workers int, cb Callbacks) (*Model, *Trainer) {
	t.Helper()
	ratings := toyRatings()
	m, err := NewModel(Config{EmbeddingDimension: 8, HiddenUnits: []int{16, 8}, Seed: 3},
		dataset.UniqueUserIDs(ratings), dataset.UniqueMovieTitles(ratings))
	if err != nil {
		t.Fatal(err)
	}
	tr := NewTrainer(m, TrainConfig{
		Epochs:        20,
		LearningRate:  0.1,
		BatchSize:     32,
		EvalBatchSize: 50,
		Shards:        4,
		Workers:       workers,
		Seed:          42,
	}, cb)
	return m, tr
}

func TestNewTrainerDefaults(t *testing.T) {
	t.Parallel()

	m := smallModel(t)
	cfg := NewTrainer(m, TrainConfig{}, Callbacks{}).Config()
	if cfg.Epochs != 1 || cfg.LearningRate != 0.5 || cfg.BatchSize != 8192 ||
		cfg.EvalBatchSize != 4096 || cfg.Shards != 8 || cfg.Workers < 1 || cfg.Seed != 0 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestFitReducesLoss(t *testing.T) {
	t.Parallel()

	var epochs []EpochMetrics
	batches := 0
	m, tr := newToyTrainer(t, 2, Callbacks{
		OnEpochEnd: func(e EpochMetrics) { epochs = append(epochs, e) },
		OnBatchEnd: func(BatchMetrics) { batches++ },
	})

	history, err := tr.Fit(context.Background(), toyRatings())
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if len(history) != 20 || len(epochs) != 20 {
		t.Fatalf("history = %d epochs, callbacks = %d", len(history), len(epochs))
	}
	// 120 examples in batches of 32 -> 4 batches per epoch.
	if batches != 80 {
		t.Errorf("batch callbacks = %d, want 80", batches)
	}
	if history[0].Examples != 120 {
		t.Errorf("examples per epoch = %d", history[0].Examples)
	}
	if last, first := history[len(history)-1].RMSE, history[0].RMSE; last >= first {
		t.Errorf("RMSE did not improve: first %v, last %v", first, last)
	}
	if math.Abs(history[0].RMSE-math.Sqrt(history[0].Loss)) > 1e-9 {
		t.Errorf("RMSE %v is not sqrt(loss %v)", history[0].RMSE, history[0].Loss)
	}
	if !m.IsTrained() || m.Version() != 1 {
		t.Errorf("trained = %v, version = %d", m.IsTrained(), m.Version())
	}
}

func TestFitDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	ratings := toyRatings()
	run := func(workers int) (EvalMetrics, []float32) {
		m, tr := newToyTrainer(t, workers, Callbacks{})
		if _, err := tr.Fit(context.Background(), ratings); err != nil {
			t.Fatal(err)
		}
		eval, err := tr.Evaluate(context.Background(), ratings)
		if err != nil {
			t.Fatal(err)
		}
		return eval, m.UserVector("3")
	}

	evalA, vecA := run(1)
	evalB, vecB := run(4)
	if evalA.RMSE != evalB.RMSE {
		t.Errorf("RMSE differs: %v vs %v", evalA.RMSE, evalB.RMSE)
	}
	for i := range vecA {
		if vecA[i] != vecB[i] {
			t.Fatalf("user vector differs at %d: %v vs %v", i, vecA[i], vecB[i])
		}
	}
}

func TestEvaluateDoesNotUpdate(t *testing.T) {
	t.Parallel()

	m, tr := newToyTrainer(t, 2, Callbacks{})
	before := m.UserVector("1")

	eval, err := tr.Evaluate(context.Background(), toyRatings())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if eval.Examples != 120 || eval.RMSE <= 0 {
		t.Errorf("eval = %+v", eval)
	}
	after := m.UserVector("1")
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("Evaluate changed model weights")
		}
	}
	if m.IsTrained() {
		t.Error("Evaluate marked the model trained")
	}
	if tr.optimizer != nil {
		t.Error("Evaluate allocated optimizer state")
	}
}

func TestFitAllocatesOptimizerOnce(t *testing.T) {
	t.Parallel()

	_, tr := newToyTrainer(t, 1, Callbacks{})
	if tr.optimizer != nil {
		t.Fatal("NewTrainer allocated optimizer state")
	}
	if _, err := tr.Fit(context.Background(), toyRatings()); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	first := tr.optimizer
	if first == nil {
		t.Fatal("Fit did not allocate the optimizer")
	}
	if _, err := tr.Fit(context.Background(), toyRatings()); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if tr.optimizer != first {
		t.Error("second Fit replaced the optimizer, losing accumulators")
	}
}

func TestFitErrors(t *testing.T) {
	t.Parallel()

	_, tr := newToyTrainer(t, 1, Callbacks{})
	if _, err := tr.Fit(context.Background(), nil); !errors.Is(err, ErrNoExamples) {
		t.Errorf("Fit(nil) error = %v, want ErrNoExamples", err)
	}
	if _, err := tr.Evaluate(context.Background(), nil); !errors.Is(err, ErrNoExamples) {
		t.Errorf("Evaluate(nil) error = %v, want ErrNoExamples", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Fit(ctx, toyRatings()); !errors.Is(err, context.Canceled) {
		t.Errorf("Fit(canceled) error = %v, want context.Canceled", err)
	}
}

func TestAdagradStep(t *testing.T) {
	t.Parallel()

	o := &Adagrad{LearningRate: 0.5, Epsilon: DefaultEpsilon}
	params := []float32{1}
	accum := []float32{DefaultInitialAccumulator}
	o.step(params, []float32{2}, accum)

	// accum = 0.1 + 4 = 4.1; param = 1 - 0.5*2/(sqrt(4.1)+1e-7)
	want := 1 - 0.5*2/(math.Sqrt(4.1)+1e-7)
	if math.Abs(float64(params[0])-want) > 1e-6 {
		t.Errorf("param = %v, want %v", params[0], want)
	}
	if math.Abs(float64(accum[0])-4.1) > 1e-6 {
		t.Errorf("accum = %v, want 4.1", accum[0])
	}
}

func TestAdagradStepVector(t *testing.T) {
	t.Parallel()

	o := &Adagrad{LearningRate: 1, Epsilon: DefaultEpsilon}
	params := []float32{0, 1, -1}
	grads := []float32{3, 0, -4}
	accum := []float32{0, 2, 0}
	o.step(params, grads, accum)

	wantAccum := []float64{9, 2, 16}
	wantParams := []float64{-3 / (3 + 1e-7), 1, -1 + 4/(4+1e-7)}
	for i := range params {
		if math.Abs(float64(accum[i])-wantAccum[i]) > 1e-5 {
			t.Errorf("accum[%d] = %v, want %v", i, accum[i], wantAccum[i])
		}
		if math.Abs(float64(params[i])-wantParams[i]) > 1e-5 {
			t.Errorf("params[%d] = %v, want %v", i, params[i], wantParams[i])
		}
	}
}

func TestAdagradSparseLeavesUntouchedRows(t *testing.T) {
	t.Parallel()

	m := smallModel(t)
	o := NewAdagrad(m, 0.5)
	g := newGradients(m)
	g.users[2] = []float32{1, 1, 1}

	row1 := append([]float32(nil), m.userEmbedding.Row(1)...)
	row2 := append([]float32(nil), m.userEmbedding.Row(2)...)
	o.apply(m, g)

	for i := range row1 {
		if m.userEmbedding.Row(1)[i] != row1[i] {
			t.Fatal("untouched row changed")
		}
		if m.userEmbedding.Row(2)[i] == row2[i] {
			t.Fatal("touched row did not change")
		}
	}
	if o.userAccum[0] != DefaultInitialAccumulator {
		t.Error("untouched accumulator changed")
	}
}
