// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"comet.yaml",
	"comet.yml",
	"/etc/comet/comet.yaml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "COMET_CONFIG"

// envPrefix namespaces the environment variables read by Load.
const envPrefix = "COMET_"

// Load builds a Config from layered sources, lowest priority first:
//
//  1. struct defaults (Default())
//  2. optional YAML file (COMET_CONFIG or DefaultConfigPaths)
//  3. COMET_* environment variables (COMET_ACCOUNT_ID -> account_id,
//     COMET_LOG_LEVEL -> log.level)
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps COMET_LOG_LEVEL to log.level and COMET_ACCOUNT_ID to
// account_id. The first underscore after a known section name becomes a
// dot; everything else stays a flat snake_case key.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if rest, ok := strings.CutPrefix(s, "log_"); ok {
		return "log." + rest
	}
	return s
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
