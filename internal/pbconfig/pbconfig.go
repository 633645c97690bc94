// Copyright 2026 The PageBackup Authors.
//
// SPDX-License-Identifier: Apache-2.0

// Package pbconfig defines a JSON-driven process configuration with
// defaults (§7). The pgpb CLI does not load it; its subcommands take the
// same settings from command-line flags.
package pbconfig

import (
	"encoding/json"
	"os"
	"runtime"

	"github.com/pkg/errors"
)

// Config is the top-level process configuration.
type Config struct {
	LogLevel string `json:"log_level"`

	BackendType   string `json:"backend_type"`
	BackendConfig string `json:"backend_config"`

	RemoteAgentPath string `json:"remote_agent_path,omitempty"`

	ChecksumEnabled bool   `json:"checksum_enabled"`
	CompressAlg     string `json:"compress_alg"`
	CompressLevel   int    `json:"compress_level"`

	// WorkerConcurrency bounds the D3 worker pool; zero means
	// runtime.NumCPU().
	WorkerConcurrency int `json:"worker_concurrency"`
}

// Default returns a Config with the teacher-style sane defaults.
func Default() Config {
	return Config{
		LogLevel:        "info",
		BackendType:     "local",
		ChecksumEnabled: true,
		CompressAlg:     "zlib",
		CompressLevel:   6,
	}
}

// Concurrency resolves WorkerConcurrency to a usable worker count.
func (c Config) Concurrency() int {
	if c.WorkerConcurrency > 0 {
		return c.WorkerConcurrency
	}
	return runtime.NumCPU()
}

// Load reads a Config from a JSON file at path, filling unset fields from
// Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config file %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config file %s", path)
	}
	return cfg, nil
}
