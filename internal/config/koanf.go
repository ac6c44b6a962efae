// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/reelrank/internal/validation"
)

// ConfigPathEnvVar names an optional YAML file layered over the defaults.
const ConfigPathEnvVar = "CONFIG_PATH"

// LoadTraining builds the training job configuration from args (without
// the program name). Missing platform variables fail before any other
// source is consulted.
func LoadTraining(args []string, usageOut io.Writer) (*Config, error) {
	if err := checkRequiredEnv(RequiredTrainingEnv); err != nil {
		return nil, err
	}
	cfg, err := load("train", TrainingFlags, args, usageOut)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateTraining(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadServing builds the serving configuration. Platform variables are
// optional here.
func LoadServing(args []string, usageOut io.Writer) (*Config, error) {
	cfg, err := load("serve", ServingFlags, args, usageOut)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateServing(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func load(name string, flags []flagDef, args []string, usageOut io.Writer) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional YAML file
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Layer 4: flags that were set on the command line
	set, err := parseFlags(name, flags, args, usageOut)
	if err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(set, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	if err := normalizeHosts(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// normalizeHosts decodes platform.hosts when it arrived as a string from
// the environment or a flag.
func normalizeHosts(k *koanf.Koanf) error {
	raw, ok := k.Get("platform.hosts").(string)
	if !ok {
		return nil
	}
	hosts, err := decodeHosts(raw)
	if err != nil {
		return err
	}
	if err := k.Set("platform.hosts", hosts); err != nil {
		return fmt.Errorf("failed to set platform.hosts: %w", err)
	}
	return nil
}

// ValidateTraining checks every section the training job reads.
func (c *Config) ValidateTraining() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if !slices.Contains(c.Platform.Hosts, c.Platform.CurrentHost) {
		return fmt.Errorf("platform.current_host %q is not in platform.hosts [%s]",
			c.Platform.CurrentHost, strings.Join(c.Platform.Hosts, ", "))
	}
	return nil
}

// ValidateServing checks the serve and logging sections.
func (c *Config) ValidateServing() error {
	return errors.Join(
		validation.ValidateStruct(&c.Serve),
		validation.ValidateStruct(&c.Logging),
	)
}
