// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package comet is an analytics and engagement SDK: tracking calls are
// validated, queued durably on disk, and delivered to the collection
// backend in batched, debounced HTTP posts. The backend steers the
// client through response directives: domain migration, mute windows,
// in-app notifications, profile sync and frequency-cap tuning.
//
// Every public call is fire-and-forget. Validation problems are
// logged and attached to the next outgoing event; nothing ever panics
// or errors across this boundary once an Instance is built.
package comet

import (
	"github.com/cometsdk/comet-go/internal/config"
)

// Config carries the account credentials and tuning knobs for one
// instance. Start from DefaultConfig and fill in the credentials.
type Config = config.Config

// DefaultConfig returns the baseline configuration. Callers fill in
// AccountID and Token at minimum.
func DefaultConfig() Config {
	return *config.Default()
}
