// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// ErrMissingEnv is matched by errors.Is for a MissingEnvError.
var ErrMissingEnv = errors.New("missing required environment variable")

// MissingEnvError lists every required variable that was absent.
type MissingEnvError struct {
	Names []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingEnv, strings.Join(e.Names, ", "))
}

// Is reports ErrMissingEnv.
func (e *MissingEnvError) Is(target error) bool {
	return target == ErrMissingEnv
}

// RequiredTrainingEnv is the platform contract the training job refuses to
// start without. Flags may override the values but not the presence.
var RequiredTrainingEnv = []string{
	"SM_CHANNEL_TRAIN",
	"SM_OUTPUT_DIR",
	"SM_OUTPUT_DATA_DIR",
	"SM_MODEL_DIR",
	"SM_HOSTS",
	"SM_CURRENT_HOST",
	"SM_NUM_GPUS",
}

// checkRequiredEnv returns a *MissingEnvError naming every unset variable.
func checkRequiredEnv(names []string) error {
	var missing []string
	for _, name := range names {
		if _, ok := os.LookupEnv(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingEnvError{Names: missing}
	}
	return nil
}

// envMappings maps lowercased variable names that do not follow the
// REELRANK_<SECTION>_<KEY> scheme onto koanf paths.
var envMappings = map[string]string{
	"sm_channel_train":   "platform.train_data",
	"sm_output_dir":      "platform.output_dir",
	"sm_output_data_dir": "platform.output_data_dir",
	"sm_model_dir":       "platform.model_dir",
	"sm_hosts":           "platform.hosts",
	"sm_current_host":    "platform.current_host",
	"sm_num_gpus":        "platform.num_gpus",

	// Hyperparameters the platform exports alongside the CLI arguments.
	"sm_hp_epochs":              "training.epochs",
	"sm_hp_learning_rate":       "training.learning_rate",
	"sm_hp_embedding_dimension": "training.embedding_dimension",
	"sm_hp_dataset_variant":     "dataset.variant",
	"sm_hp_enable_tensorboard":  "tensorboard.enabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

var envSections = []string{"platform", "training", "dataset", "export", "tensorboard", "logging", "serve"}

// envTransformFunc turns an environment variable name into a koanf path.
// Unrecognized variables map to "" and are skipped by the provider.
//
// Examples:
//   - SM_CHANNEL_TRAIN -> platform.train_data
//   - SM_HP_EPOCHS -> training.epochs
//   - REELRANK_SERVE_MODEL_DIR -> serve.model_dir
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if path, ok := envMappings[key]; ok {
		return path
	}
	rest, ok := strings.CutPrefix(key, "reelrank_")
	if !ok {
		return ""
	}
	for _, section := range envSections {
		if field, ok := strings.CutPrefix(rest, section+"_"); ok && field != "" {
			return section + "." + field
		}
	}
	return ""
}

// decodeHosts accepts the platform's JSON list form (["algo-1","algo-2"])
// or a plain comma-separated list.
func decodeHosts(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var hosts []string
		if err := json.Unmarshal([]byte(s), &hosts); err != nil {
			return nil, fmt.Errorf("decode hosts %q: %w", s, err)
		}
		return hosts, nil
	}
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}
