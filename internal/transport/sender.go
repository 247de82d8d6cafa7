// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package transport performs the batched HTTP exchange with the
// collection backend: the /hello handshake that acquires a collection
// domain, the /a1 batch POST, and the server-directed domain-migration
// and mute signals carried in response headers.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cometsdk/comet-go/internal/config"
	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/store"
)

var (
	// ErrMuted is returned while the backend has muted this device.
	ErrMuted = errors.New("transport: device is muted")
	// ErrNoDomain is returned when no collection domain is known yet.
	ErrNoDomain = errors.New("transport: no collection domain, handshake required")
)

const (
	headerAccountID = "X-Comet-Account-ID"
	headerToken     = "X-Comet-Token"
	headerMute      = "X-Comet-Mute"
	headerDomain    = "X-Comet-Domain-Name"

	// Consecutive send failures before the domain is considered stale.
	failureThreshold = 5

	muteWindow = 24 * time.Hour

	maxErrorBody = 512
)

// Result reports the outcome of a successful POST.
type Result struct {
	// Body is the response payload, a JSON object of server directives.
	Body []byte
	// DomainChanged is set when the server migrated the collection
	// domain mid-flight. The batch must be treated as unacknowledged.
	DomainChanged bool
	// Muted is set when the server muted the device on this exchange.
	Muted bool
}

// Sender owns domain/mute state and the per-instance failure counter.
// Domain and mute survive restarts through the store; the failure
// counter is in-memory only.
type Sender struct {
	cfg    *config.Config
	st     *store.Store
	client *http.Client

	// scheme and handshakeHost exist so tests can point at an
	// httptest server.
	scheme        string
	handshakeHost string
	now           func() time.Time

	mu       sync.Mutex
	failures int
}

// New returns a sender using cfg's account credentials and timeouts.
func New(cfg *config.Config, st *store.Store) *Sender {
	return &Sender{
		cfg:    cfg,
		st:     st,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		scheme: "https",
		now:    time.Now,
	}
}

// Domain returns the active collection domain: the persisted one from
// the last handshake or migration, falling back to the configured
// domain. Empty means a handshake is required.
func (s *Sender) Domain() string {
	domain, err := s.st.GetKVString(store.KeyDomain)
	if err != nil {
		logging.Warn().Err(err).Msg("domain read failed")
	}
	if domain != "" {
		return domain
	}
	return s.cfg.Domain
}

// NeedsHandshake reports whether a /hello exchange must precede the
// next send: no domain known, or too many consecutive failures.
func (s *Sender) NeedsHandshake() bool {
	s.mu.Lock()
	failures := s.failures
	s.mu.Unlock()
	return s.Domain() == "" || failures > failureThreshold
}

// Muted reports whether the device is inside the mute window. Expiry
// is checked lazily here, never scheduled.
func (s *Sender) Muted() bool {
	ts, err := s.st.GetKVInt64(store.KeyMutedAt)
	if err != nil {
		logging.Warn().Err(err).Msg("mute timestamp read failed")
		return false
	}
	if ts == 0 {
		return false
	}
	if s.now().Sub(time.Unix(ts, 0)) < muteWindow {
		return true
	}
	if err := s.st.DeleteKV(store.KeyMutedAt); err != nil {
		logging.Warn().Err(err).Msg("mute timestamp clear failed")
	}
	return false
}

// Handshake performs the /hello exchange against the handshake host
// and adopts the domain or mute signal from the response headers.
func (s *Sender) Handshake(ctx context.Context) error {
	if s.Muted() {
		return ErrMuted
	}

	host := s.handshakeHost
	if host == "" {
		host = s.cfg.HandshakeHost()
	}
	url := fmt.Sprintf("%s://%s/hello", s.scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build handshake request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordFailure()
		return fmt.Errorf("handshake: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		s.recordFailure()
		return fmt.Errorf("handshake: unexpected status %d", resp.StatusCode)
	}

	muted, _ := s.processHeaders(resp.Header)
	s.resetFailures()
	if muted {
		return ErrMuted
	}
	if s.Domain() == "" {
		return ErrNoDomain
	}
	logging.Debug().Str("domain", s.Domain()).Msg("handshake complete")
	return nil
}

// Send POSTs one batch body to the collection endpoint. The body is
// the caller-built JSON array; it is passed through untouched.
func (s *Sender) Send(ctx context.Context, body []byte) (*Result, error) {
	if s.Muted() {
		return nil, ErrMuted
	}
	domain := s.Domain()
	if domain == "" {
		return nil, ErrNoDomain
	}

	url := fmt.Sprintf("%s://%s/a1?os=Go&t=%s&z=%s&ts=%d",
		s.scheme, domain, config.SDKVersion, s.cfg.AccountID, s.now().Unix())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.recordFailure()
		return nil, fmt.Errorf("send batch: status %d: %s",
			resp.StatusCode, readBodyForError(resp.Body))
	}

	muted, domainChanged := s.processHeaders(resp.Header)
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	s.resetFailures()
	s.markRequest()
	return &Result{Body: respBody, DomainChanged: domainChanged, Muted: muted}, nil
}

// Mute enters the mute window now and drops the cached domain. Queue
// clearing is the caller's job.
func (s *Sender) Mute() {
	if err := s.st.SetKVInt64(store.KeyMutedAt, s.now().Unix()); err != nil {
		logging.Warn().Err(err).Msg("mute timestamp persist failed")
	}
	if err := s.st.DeleteKV(store.KeyDomain); err != nil {
		logging.Warn().Err(err).Msg("domain clear failed")
	}
	logging.Info().Msg("device muted for 24h")
}

// Failures returns the consecutive-failure count.
func (s *Sender) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Sender) setHeaders(req *http.Request) {
	req.Header.Set(headerAccountID, s.cfg.AccountID)
	req.Header.Set(headerToken, s.cfg.Token)
}

// processHeaders applies mute and domain-migration signals. Returns
// whether the device was muted and whether the domain changed.
func (s *Sender) processHeaders(h http.Header) (muted, domainChanged bool) {
	if strings.EqualFold(h.Get(headerMute), "true") {
		s.Mute()
		return true, false
	}
	newDomain := h.Get(headerDomain)
	if newDomain != "" && newDomain != s.Domain() {
		if err := s.st.SetKVString(store.KeyDomain, newDomain); err != nil {
			logging.Warn().Err(err).Msg("domain persist failed")
		} else {
			logging.Info().Str("domain", newDomain).Msg("collection domain changed")
			domainChanged = true
		}
	}
	return false, domainChanged
}

func (s *Sender) recordFailure() {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
}

func (s *Sender) resetFailures() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

// markRequest records first/last successful request timestamps, echoed
// back in subsequent batch headers.
func (s *Sender) markRequest() {
	now := s.now().Unix()
	first, err := s.st.GetKVInt64(store.KeyFirstRequestTS)
	if err == nil && first == 0 {
		err = s.st.SetKVInt64(store.KeyFirstRequestTS, now)
	}
	if err == nil {
		err = s.st.SetKVInt64(store.KeyLastRequestTS, now)
	}
	if err != nil {
		logging.Warn().Err(err).Msg("request timestamp persist failed")
	}
}

// readBodyForError returns a short prefix of the response body for
// inclusion in error messages.
func readBodyForError(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return "<no body>"
	}
	return string(b)
}
