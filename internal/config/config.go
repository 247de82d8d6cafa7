// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package config defines the per-instance SDK configuration and its
// koanf-based loading pipeline (struct defaults -> optional YAML file ->
// COMET_* environment variables).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// SDKVersion is reported as the t query parameter on every request.
const SDKVersion = "1.0.0"

// Config holds the full configuration for one Comet instance.
type Config struct {
	// AccountID identifies the account; sent as the z query parameter and
	// the X-Comet-Account-ID header.
	AccountID string `koanf:"account_id" validate:"required"`

	// Token authenticates requests; sent as the X-Comet-Token header.
	Token string `koanf:"token" validate:"required"`

	// Region selects a regional handshake host ({region}.cometdata.io).
	// Empty uses the global host.
	Region string `koanf:"region" validate:"omitempty,alphanum,max=16"`

	// Domain pins the collection domain, bypassing the handshake. Normally
	// empty; the handshake supplies it.
	Domain string `koanf:"domain" validate:"omitempty,fqdn"`

	// StorePath is the directory for the badger store. Required.
	StorePath string `koanf:"store_path" validate:"required"`

	// Offline starts the instance with network sends disabled.
	Offline bool `koanf:"offline"`

	// BatchSize caps events per POST. Wire contract allows at most 50.
	BatchSize int `koanf:"batch_size" validate:"min=1,max=50"`

	// FlushInterval is the debounce window between an enqueue and the
	// network flush it schedules.
	FlushInterval time.Duration `koanf:"flush_interval" validate:"min=100ms,max=1m"`

	// MaxFlushBatches caps the batches drained by one flush invocation.
	// 0 means drain until empty.
	MaxFlushBatches int `koanf:"max_flush_batches" validate:"min=0"`

	// SessionTimeout is the background inactivity window after which the
	// next resume starts a new session.
	SessionTimeout time.Duration `koanf:"session_timeout" validate:"min=1m"`

	// EventLifetime is how long unsent events survive in the store.
	EventLifetime time.Duration `koanf:"event_lifetime" validate:"min=1h"`

	// MinFreeDiskBytes rejects store writes when free disk drops below it.
	MinFreeDiskBytes uint64 `koanf:"min_free_disk_bytes"`

	// HTTPTimeout applies to connect and read on every request.
	HTTPTimeout time.Duration `koanf:"http_timeout" validate:"min=1s,max=2m"`

	// LaunchRequeueDelay spaces retries of events deferred behind the
	// app-launch event.
	LaunchRequeueDelay time.Duration `koanf:"launch_requeue_delay" validate:"min=10ms"`

	// LaunchRequeueMax bounds those retries before the event is queued anyway.
	LaunchRequeueMax int `koanf:"launch_requeue_max" validate:"min=1"`

	Log LogConfig `koanf:"log"`
}

// LogConfig configures the shared logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error off disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// Default returns a Config with production defaults. AccountID, Token and
// StorePath must still be supplied by the caller.
func Default() *Config {
	return &Config{
		BatchSize:          50,
		FlushInterval:      2 * time.Second,
		MaxFlushBatches:    10,
		SessionTimeout:     20 * time.Minute,
		EventLifetime:      5 * 24 * time.Hour,
		MinFreeDiskBytes:   20 << 20, // 20MB
		HTTPTimeout:        10 * time.Second,
		LaunchRequeueDelay: 300 * time.Millisecond,
		LaunchRequeueMax:   10,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration against the struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("config: field %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// HandshakeHost returns the handshake hostname, honoring the region.
func (c *Config) HandshakeHost() string {
	if c.Region != "" {
		return c.Region + ".cometdata.io"
	}
	return "gw.cometdata.io"
}
