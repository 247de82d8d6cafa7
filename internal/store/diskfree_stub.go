// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

//go:build !unix

package store

import "errors"

// freeDiskBytes has no portable implementation here; callers treat the
// error as "probe unavailable" and skip the low-disk check.
func freeDiskBytes(string) (uint64, error) {
	return 0, errors.New("free-disk probe not supported on this platform")
}
