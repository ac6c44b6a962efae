// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type flagKind int

const (
	stringFlag flagKind = iota
	intFlag
	floatFlag
	boolFlag
)

// flagDef binds one command-line flag to a koanf path.
type flagDef struct {
	name  string
	path  string
	kind  flagKind
	usage string
}

// TrainingFlags are accepted by the training job. Any other flag on the
// command line is ignored, since the platform forwards every hyperparameter.
var TrainingFlags = []flagDef{
	{"epochs", "training.epochs", intFlag, "number of training epochs"},
	{"learning_rate", "training.learning_rate", floatFlag, "Adagrad learning rate"},
	{"embedding_dimension", "training.embedding_dimension", intFlag, "embedding width of both towers"},
	{"enable_tensorboard", "tensorboard.enabled", boolFlag, "write TensorBoard event files"},
	{"dataset_variant", "dataset.variant", stringFlag, "MovieLens variant: 100k, 1m, 20m, 25m, latest-small"},
	{"dataset_format", "dataset.format", stringFlag, "dataset layout: auto, tfds, raw, parquet"},
	{"seed", "training.seed", intFlag, "shuffle and initialization seed"},
	{"train_data", "platform.train_data", stringFlag, "training channel directory"},
	{"output_dir", "platform.output_dir", stringFlag, "job output directory"},
	{"output_data_dir", "platform.output_data_dir", stringFlag, "auxiliary output directory"},
	{"hosts", "platform.hosts", stringFlag, "cluster hosts as a JSON list or comma-separated"},
	{"current_host", "platform.current_host", stringFlag, "name of this host"},
	{"num_gpus", "platform.num_gpus", intFlag, "GPUs available to this host"},
}

// ServingFlags are accepted by the serving binary.
var ServingFlags = []flagDef{
	{"addr", "serve.addr", stringFlag, "listen address"},
	{"model_dir", "serve.model_dir", stringFlag, "directory holding the exported model"},
	{"default_k", "serve.default_k", intFlag, "results per query when k is omitted"},
	{"reload_interval", "serve.reload_interval", stringFlag, "re-read the exported model at this interval, 0 loads once"},
	{"cache_size", "serve.cache_size", intFlag, "per-user query cache entries, 0 disables"},
}

// parseFlags returns the explicitly set flags keyed by koanf path.
// Arguments naming unknown flags, and their values, are dropped.
func parseFlags(name string, defs []flagDef, args []string, usageOut io.Writer) (map[string]interface{}, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(usageOut)

	byName := make(map[string]flagDef, len(defs))
	for _, d := range defs {
		byName[d.name] = d
		switch d.kind {
		case intFlag:
			fs.Int64(d.name, 0, d.usage)
		case floatFlag:
			fs.Float64(d.name, 0, d.usage)
		case boolFlag:
			fs.Bool(d.name, false, d.usage)
		default:
			fs.String(d.name, "", d.usage)
		}
	}

	if err := fs.Parse(normalizeArgs(args, byName)); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	set := make(map[string]interface{})
	fs.Visit(func(f *flag.Flag) {
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		set[byName[f.Name].path] = getter.Get()
	})
	return set, nil
}

// normalizeArgs rewrites known flags to the --name=value form and drops the
// rest. The platform passes "--key value" pairs, including for booleans.
func normalizeArgs(args []string, known map[string]flagDef) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-h" || arg == "-help" || arg == "--help" {
			out = append(out, arg)
			continue
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" || arg == "--" {
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		nextIsValue := i+1 < len(args) && !strings.HasPrefix(args[i+1], "--")

		def, ok := known[name]
		if !ok {
			if !hasValue && nextIsValue {
				i++
			}
			continue
		}

		if !hasValue {
			if def.kind == boolFlag && nextIsValue {
				// A bool only takes the next token when it parses as one.
				if _, err := strconv.ParseBool(args[i+1]); err != nil {
					nextIsValue = false
				}
			}
			switch {
			case nextIsValue:
				value = args[i+1]
				i++
			case def.kind == boolFlag:
				value = "true"
			default:
				// Let the flag package report the missing argument.
				out = append(out, "--"+name)
				continue
			}
		}
		out = append(out, "--"+name+"="+value)
	}
	return out
}
