// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package transport

import (
	"net/url"

	"github.com/cometsdk/comet-go/internal/config"
	"github.com/cometsdk/comet-go/internal/store"
)

// NewForTest returns a sender that talks plain HTTP to an httptest
// server, for tests in other packages.
func NewForTest(cfg *config.Config, st *store.Store, serverURL string) *Sender {
	s := New(cfg, st)
	s.scheme = "http"
	if u, err := url.Parse(serverURL); err == nil {
		s.handshakeHost = u.Host
	}
	return s
}
