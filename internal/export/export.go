// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package export lays out a trained index in the model directory the
// hosting platform uploads:
//
//	<model_dir>/tensorflow/saved_model/0/index.gob.gz
//	<model_dir>/tensorflow/saved_model/0/metadata.json
//	<model_dir>/code/serving.json
//	<model_dir>/code/serve.sh
//	<model_dir>/code/go.mod
//	<model_dir>/code/<code files>
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/reelrank/internal/deploy"
	"github.com/tomtom215/reelrank/internal/index"
	"github.com/tomtom215/reelrank/internal/logging"
	"github.com/tomtom215/reelrank/internal/storage"
)

const (
	// ManifestFile is written next to the index artifact.
	ManifestFile = "metadata.json"

	// ServingFile describes how to start the inference handler.
	ServingFile = "serving.json"

	// FormatVersion is bumped when the manifest or index layout changes.
	FormatVersion = 1
)

// ModelInfo records the shape of the model the index came from.
type ModelInfo struct {
	EmbeddingDimension int   `json:"embedding_dimension"`
	HiddenUnits        []int `json:"hidden_units"`
	Parameters         int   `json:"parameters"`
}

// TrainingInfo records how the model was trained.
type TrainingInfo struct {
	DatasetVariant string  `json:"dataset_variant"`
	Epochs         int     `json:"epochs"`
	LearningRate   float64 `json:"learning_rate"`
	Seed           int64   `json:"seed"`
	TrainExamples  int     `json:"train_examples"`
	TestExamples   int     `json:"test_examples"`
	TrainRMSE      float64 `json:"train_rmse"`
	TestRMSE       float64 `json:"test_rmse"`
	DurationMS     int64   `json:"duration_ms"`
}

// Manifest is the content of metadata.json.
type Manifest struct {
	FormatVersion int              `json:"format_version"`
	RunID         string           `json:"run_id"`
	CreatedAt     time.Time        `json:"created_at"`
	Index         index.Summary    `json:"index"`
	Model         ModelInfo        `json:"model"`
	Training      TrainingInfo     `json:"training"`
	Artifact      storage.Metadata `json:"artifact"`
}

// ServingSpec is the content of code/serving.json.
type ServingSpec struct {
	Command   []string          `json:"command"`
	Index     string            `json:"index"`
	Endpoints map[string]string `json:"endpoints"`
	CodeFiles []string          `json:"code_files"`
}

// Options locates the output directories and the files to copy.
type Options struct {
	SavedModelDir string
	CodeDir       string

	// Bundle is written into CodeDir before CodeFiles are copied.
	Bundle []deploy.File

	// CodeFiles are copied from CodeSourceDir into CodeDir. Missing files are
	// logged and skipped.
	CodeFiles     []string
	CodeSourceDir string
}

// Result reports what Export wrote.
type Result struct {
	Manifest  Manifest
	Copied    []string
	Missing   []string
	IndexPath string
}

// Export writes the index, its manifest, the serving description and the
// code files. manifest.Index and manifest.Artifact are filled in here.
//
//nolint:gocritic // opts and manifest are small value types
func Export(ctx context.Context, idx *index.BruteForce, manifest Manifest, opts Options) (*Result, error) {
	log := logging.WithComponent("export")

	store, err := storage.NewStore(opts.SavedModelDir)
	if err != nil {
		return nil, err
	}

	artifact, err := idx.Save(ctx, store, storage.Metadata{
		RunID:     manifest.RunID,
		TrainedAt: manifest.CreatedAt,
		Examples:  manifest.Training.TrainExamples,
		UserCount: idx.Summary().Queries,
		// Candidates are the movies the index can return.
		MovieCount:         idx.Summary().Candidates,
		TrainingDurationMS: manifest.Training.DurationMS,
	})
	if err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}

	manifest.FormatVersion = FormatVersion
	manifest.Index = idx.Summary()
	manifest.Artifact = artifact
	if err := writeJSON(filepath.Join(opts.SavedModelDir, ManifestFile), manifest); err != nil {
		return nil, err
	}

	res := &Result{Manifest: manifest, IndexPath: store.Path(index.ArtifactName)}
	log.Info().
		Str("path", res.IndexPath).
		Str("checksum", artifact.Checksum).
		Int64("size_bytes", artifact.SizeBytes).
		Msg("Index exported")

	if err := os.MkdirAll(opts.CodeDir, 0o750); err != nil {
		return nil, fmt.Errorf("create code directory: %w", err)
	}
	for _, f := range opts.Bundle {
		if err := os.WriteFile(filepath.Join(opts.CodeDir, f.Name), f.Data, f.Mode); err != nil { //nolint:gosec // the entrypoint must stay executable
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
		res.Copied = append(res.Copied, f.Name)
	}
	for _, name := range opts.CodeFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src := filepath.Join(opts.CodeSourceDir, name)
		dst := filepath.Join(opts.CodeDir, filepath.Base(name))
		err := copyFile(src, dst)
		switch {
		case err == nil:
			res.Copied = append(res.Copied, filepath.Base(name))
		case errors.Is(err, os.ErrNotExist):
			res.Missing = append(res.Missing, name)
			log.Warn().Str("file", src).Msg("Code file not found, skipping")
		default:
			return nil, fmt.Errorf("copy %s: %w", name, err)
		}
	}

	rel, err := filepath.Rel(filepath.Dir(opts.CodeDir), opts.SavedModelDir)
	if err != nil {
		rel = opts.SavedModelDir
	}
	serving := ServingSpec{
		Command: []string{"reelrank-serve", "--model_dir", filepath.Dir(opts.CodeDir)},
		Index:   filepath.ToSlash(filepath.Join(rel, index.ArtifactName+".gob.gz")),
		Endpoints: map[string]string{
			"health":    "GET /ping",
			"inference": "POST /invocations",
			"metrics":   "GET /metrics",
		},
		CodeFiles: res.Copied,
	}
	if err := writeJSON(filepath.Join(opts.CodeDir, ServingFile), serving); err != nil {
		return nil, err
	}
	return res, nil
}

// ReadManifest reads metadata.json from a saved model directory.
func ReadManifest(savedModelDir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(savedModelDir, ManifestFile)) //nolint:gosec // path is the configured model directory
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported manifest format_version %d", m.FormatVersion)
	}
	return &m, nil
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o640); err != nil { //nolint:gosec // readable by the serving group
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // src is an operator-configured code file
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }() //nolint:errcheck // read-only file

	out, err := os.Create(dst) //nolint:gosec // dst is inside the code directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close() //nolint:errcheck // already returning the copy error
		return err
	}
	return out.Close()
}
