// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package trainer runs one training job end to end: load the ratings, split
// them, fit the ranking model, evaluate it, build the retrieval index, show a
// sample recommendation and export everything to the model directory.
package trainer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/reelrank/internal/config"
	"github.com/tomtom215/reelrank/internal/dataset"
	"github.com/tomtom215/reelrank/internal/deploy"
	"github.com/tomtom215/reelrank/internal/export"
	"github.com/tomtom215/reelrank/internal/index"
	"github.com/tomtom215/reelrank/internal/logging"
	"github.com/tomtom215/reelrank/internal/metrics"
	"github.com/tomtom215/reelrank/internal/ranking"
	"github.com/tomtom215/reelrank/internal/tensorboard"
)

// Result summarizes a finished job.
type Result struct {
	RunID    string
	Epochs   []ranking.EpochMetrics
	Eval     ranking.EvalMetrics
	Sample   []index.Result
	Export   *export.Result
	Duration time.Duration
}

// Job holds the state of one run. Use Run unless the steps need to be
// driven individually.
type Job struct {
	cfg    *config.Config
	runID  string
	logger zerolog.Logger

	data  *dataset.Dataset
	train []dataset.Rating
	test  []dataset.Rating

	model *ranking.Model
	index *index.BruteForce
	board *tensorboard.Run

	// boardErr keeps the first event-file failure seen inside a callback.
	boardErr error
}

// NewJob prepares a job with a fresh run ID.
func NewJob(cfg *config.Config) *Job {
	runID := logging.NewRunID()
	return &Job{
		cfg:   cfg,
		runID: runID,
		logger: logging.With().
			Str("component", "trainer").
			Str("run_id", runID).
			Logger(),
	}
}

// RunID returns the job's run ID.
func (j *Job) RunID() string {
	return j.runID
}

// Run executes every step of the job in order.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	return NewJob(cfg).Run(ctx)
}

// Run executes every step of the job in order.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx = logging.ContextWithRunID(ctx, j.runID)
	metrics.SetAppInfo("train", j.runID)
	j.logSettings()

	if err := j.loadData(ctx); err != nil {
		return nil, err
	}
	if err := j.buildModel(); err != nil {
		return nil, err
	}

	if j.cfg.TensorBoard.Enabled {
		board, err := tensorboard.OpenRun(j.cfg.TensorBoardDir())
		if err != nil {
			return nil, fmt.Errorf("open tensorboard run: %w", err)
		}
		j.board = board
		defer func() {
			if err := board.Close(); err != nil {
				j.logger.Warn().Err(err).Msg("Failed to close TensorBoard event files")
			}
		}()
	}

	epochs, err := j.fit(ctx)
	if err != nil {
		return nil, err
	}
	eval, err := j.evaluate(ctx, len(epochs))
	if err != nil {
		return nil, err
	}

	if err := j.buildIndex(); err != nil {
		return nil, err
	}
	sample := j.sampleRecommendations()

	exported, err := j.export(ctx, epochs, eval, start)
	if err != nil {
		return nil, err
	}

	if err := metrics.WriteTextfile(j.cfg.MetricsFile()); err != nil {
		j.logger.Warn().Err(err).Str("path", j.cfg.MetricsFile()).Msg("Failed to write metrics textfile")
	}

	res := &Result{
		RunID:    j.runID,
		Epochs:   epochs,
		Eval:     eval,
		Sample:   sample,
		Export:   exported,
		Duration: time.Since(start),
	}
	j.logger.Info().
		Dur("duration", res.Duration).
		Str("model_dir", j.cfg.Platform.ModelDir).
		Msg("Training job complete")
	return res, nil
}

// logSettings records every resolved setting before any work starts.
func (j *Job) logSettings() {
	c := j.cfg
	j.logger.Info().
		Str("train_data", c.Platform.TrainData).
		Str("output_dir", c.Platform.OutputDir).
		Str("output_data_dir", c.Platform.OutputDataDir).
		Str("model_dir", c.Platform.ModelDir).
		Strs("hosts", c.Platform.Hosts).
		Str("current_host", c.Platform.CurrentHost).
		Int("num_gpus", c.Platform.NumGPUs).
		Msg("Platform settings")

	j.logger.Info().
		Int("epochs", c.Training.Epochs).
		Float64("learning_rate", c.Training.LearningRate).
		Int("embedding_dimension", c.Training.EmbeddingDimension).
		Ints("hidden_units", c.Training.HiddenUnits).
		Int("train_batch_size", c.Training.TrainBatchSize).
		Int("eval_batch_size", c.Training.EvalBatchSize).
		Int64("seed", c.Training.Seed).
		Float64("train_fraction", c.Training.TrainFraction).
		Int("gradient_shards", c.Training.GradientShards).
		Int("workers", c.Training.Workers).
		Bool("enable_tensorboard", c.TensorBoard.Enabled).
		Str("dataset_variant", c.Dataset.Variant).
		Str("dataset_format", c.Dataset.Format).
		Msg("Training settings")

	if c.Platform.NumGPUs > 0 {
		j.logger.Warn().Int("num_gpus", c.Platform.NumGPUs).Msg("GPUs are not used; training runs on the CPU")
	}
	if len(c.Platform.Hosts) > 1 {
		j.logger.Warn().Strs("hosts", c.Platform.Hosts).Msg("Multiple hosts configured; this host trains independently")
	}
}

// loadData reads the dataset, shuffles it once with the seed and splits it.
func (j *Job) loadData(ctx context.Context) error {
	start := time.Now()
	data, err := dataset.Load(ctx, dataset.Options{
		Dir:     j.cfg.Platform.TrainData,
		Variant: j.cfg.Dataset.Variant,
		Format:  j.cfg.Dataset.Format,
		Version: j.cfg.Dataset.Version,
	})
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	j.data = data

	shuffled := dataset.Shuffled(data.Ratings, j.cfg.Training.Seed)
	j.train, j.test = dataset.Split(shuffled, j.cfg.Training.TrainFraction)
	metrics.RecordDataset(len(data.Ratings), len(j.train), len(j.test))

	j.logger.Info().
		Str("source", data.Source).
		Int("ratings", len(data.Ratings)).
		Int("movies", len(data.Movies)).
		Int("train", len(j.train)).
		Int("test", len(j.test)).
		Dur("duration", time.Since(start)).
		Msg("Loaded dataset")
	return nil
}

// buildModel derives both vocabularies from the ratings and initializes
// the model.
func (j *Job) buildModel() error {
	users := dataset.UniqueUserIDs(j.data.Ratings)
	titles := dataset.UniqueMovieTitles(j.data.Ratings)

	model, err := ranking.NewModel(ranking.Config{
		EmbeddingDimension: j.cfg.Training.EmbeddingDimension,
		HiddenUnits:        j.cfg.Training.HiddenUnits,
		Seed:               j.cfg.Training.Seed,
	}, users, titles)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	j.model = model
	metrics.ModelParameters.Set(float64(model.ParamCount()))

	j.logger.Info().
		Int("users", len(users)).
		Int("movies", len(titles)).
		Int("parameters", model.ParamCount()).
		Msg("Built ranking model")
	return nil
}

func (j *Job) fit(ctx context.Context) ([]ranking.EpochMetrics, error) {
	t := ranking.NewTrainer(j.model, ranking.TrainConfig{
		Epochs:        j.cfg.Training.Epochs,
		LearningRate:  j.cfg.Training.LearningRate,
		BatchSize:     j.cfg.Training.TrainBatchSize,
		EvalBatchSize: j.cfg.Training.EvalBatchSize,
		Shards:        j.cfg.Training.GradientShards,
		Workers:       j.cfg.Training.Workers,
		Seed:          j.cfg.Training.Seed,
	}, ranking.Callbacks{
		OnBatchEnd: j.onBatchEnd,
		OnEpochEnd: j.onEpochEnd,
	})

	epochs, err := t.Fit(ctx, j.train)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}
	if j.boardErr != nil {
		return nil, fmt.Errorf("write tensorboard events: %w", j.boardErr)
	}
	return epochs, nil
}

func (j *Job) onBatchEnd(m ranking.BatchMetrics) {
	metrics.RecordBatch(m.Examples, m.Duration)
	j.logger.Debug().
		Int("epoch", m.Epoch).
		Int("batch", m.Batch).
		Float64("loss", m.Loss).
		Dur("duration", m.Duration).
		Msg("Batch complete")
}

func (j *Job) onEpochEnd(m ranking.EpochMetrics) {
	metrics.RecordEpoch(m.Loss, m.RMSE)
	j.logger.Info().
		Int("epoch", m.Epoch).
		Int("examples", m.Examples).
		Float64("loss", m.Loss).
		Float64("rmse", m.RMSE).
		Dur("duration", m.Duration).
		Msg("Epoch complete")

	if j.board != nil && j.boardErr == nil {
		j.boardErr = j.board.Epoch(m.Epoch, m.Loss, m.RMSE)
	}
}

// evaluate scores the held-out split. An empty split is logged and skipped.
func (j *Job) evaluate(ctx context.Context, step int) (ranking.EvalMetrics, error) {
	if len(j.test) == 0 {
		j.logger.Warn().Msg("Test split is empty; skipping evaluation")
		return ranking.EvalMetrics{}, nil
	}
	t := ranking.NewTrainer(j.model, ranking.TrainConfig{
		EvalBatchSize: j.cfg.Training.EvalBatchSize,
		Shards:        j.cfg.Training.GradientShards,
		Workers:       j.cfg.Training.Workers,
	}, ranking.Callbacks{})

	eval, err := t.Evaluate(ctx, j.test)
	if err != nil {
		return eval, fmt.Errorf("evaluate model: %w", err)
	}
	metrics.RecordEvaluation(eval.Loss, eval.RMSE)
	if j.board != nil {
		if err := j.board.Evaluation(step, eval.Loss, eval.RMSE); err != nil {
			return eval, fmt.Errorf("write tensorboard events: %w", err)
		}
	}

	j.logger.Info().
		Int("examples", eval.Examples).
		Float64("loss", eval.Loss).
		Str("rmse", fmt.Sprintf("%.3f", eval.RMSE)).
		Msg("Evaluation complete")
	return eval, nil
}

// buildIndex indexes the catalog titles, falling back to the rated titles
// when the dataset carries no catalog.
func (j *Job) buildIndex() error {
	candidates := dataset.CatalogTitles(j.data.Movies)
	if len(candidates) == 0 {
		candidates = j.model.Movies().Terms()
	}
	idx, err := index.FromModel(j.model, candidates, j.cfg.Export.IndexK)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	j.index = idx

	s := idx.Summary()
	metrics.IndexCandidates.Set(float64(s.Candidates))
	j.logger.Info().
		Int("candidates", s.Candidates).
		Int("queries", s.Queries).
		Int("dimension", s.Dimension).
		Int("k", s.K).
		Msg("Built brute-force index")
	return nil
}

// sampleRecommendations logs the top titles for the configured query user.
func (j *Job) sampleRecommendations() []index.Result {
	user := j.cfg.Export.QueryUser
	if user == "" {
		return nil
	}
	res, err := j.index.Query(user, j.cfg.Export.DisplayK)
	if err != nil {
		j.logger.Warn().Err(err).Str("user_id", user).Msg("Sample query failed")
		return nil
	}

	titles := make([]string, len(res))
	for i, r := range res {
		titles[i] = r.Title
	}
	j.logger.Info().
		Str("user_id", user).
		Bool("known_user", j.index.Known(user)).
		Strs("titles", titles).
		Msg(fmt.Sprintf("Recommendations for user %s", user))
	return res
}

//nolint:gocritic // eval is a small value type
func (j *Job) export(ctx context.Context, epochs []ranking.EpochMetrics, eval ranking.EvalMetrics, start time.Time) (*export.Result, error) {
	var trainRMSE float64
	if len(epochs) > 0 {
		trainRMSE = epochs[len(epochs)-1].RMSE
	}
	mc := j.model.Config()

	res, err := export.Export(ctx, j.index, export.Manifest{
		RunID:     j.runID,
		CreatedAt: time.Now().UTC(),
		Model: export.ModelInfo{
			EmbeddingDimension: mc.EmbeddingDimension,
			HiddenUnits:        mc.HiddenUnits,
			Parameters:         j.model.ParamCount(),
		},
		Training: export.TrainingInfo{
			DatasetVariant: j.cfg.Dataset.Variant,
			Epochs:         j.cfg.Training.Epochs,
			LearningRate:   j.cfg.Training.LearningRate,
			Seed:           j.cfg.Training.Seed,
			TrainExamples:  len(j.train),
			TestExamples:   len(j.test),
			TrainRMSE:      trainRMSE,
			TestRMSE:       eval.RMSE,
			DurationMS:     time.Since(start).Milliseconds(),
		},
	}, export.Options{
		SavedModelDir: j.cfg.SavedModelDir(),
		CodeDir:       j.cfg.CodeDir(),
		Bundle:        deploy.Bundle(),
		CodeFiles:     j.cfg.Export.CodeFiles,
		CodeSourceDir: j.cfg.Export.CodeSourceDir,
	})
	if err != nil {
		return nil, fmt.Errorf("export model: %w", err)
	}
	if len(res.Missing) > 0 {
		j.logger.Warn().Strs("missing", res.Missing).Msg("Some code files were not copied")
	}
	j.logger.Info().
		Str("saved_model_dir", j.cfg.SavedModelDir()).
		Int64("training_duration_ms", res.Manifest.Training.DurationMS).
		Msg("Model exported")
	return res, nil
}
