// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package session tracks the lifecycle of one analytics session:
// NoSession -> Active -> NoSession.
//
// Session ids are epoch seconds at creation; id 0 means no active session.
// The inactivity timeout is evaluated lazily on the next foreground resume,
// never by a background timer. If the process dies while backgrounded the
// session simply ends at its last recorded foreground timestamp; downstream
// analytics depend on that boundary placement, so it stays.
package session

import (
	"sync"
	"time"

	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/store"
)

// Tracker owns session state for one instance. Mutation happens on the
// dispatcher executor; public getters may run on any goroutine.
type Tracker struct {
	st      *store.Store
	timeout time.Duration

	mu                sync.RWMutex
	sessionID         int64
	firstSession      bool
	lastSessionLength int64 // seconds
	lastSeenAt        time.Time
	screenName        string
	screenCount       int

	utmSource   string
	utmMedium   string
	utmCampaign string
}

// New restores persisted last-session bookkeeping from st.
func New(st *store.Store, timeout time.Duration) *Tracker {
	t := &Tracker{st: st, timeout: timeout}
	if ts, err := st.GetKVInt64(store.KeyLastSeenAt); err == nil && ts > 0 {
		t.lastSeenAt = time.Unix(ts, 0)
	}
	return t
}

// Resume handles a foreground transition. The lazy timeout check happens
// here: an expired session is destroyed first, then a new one is created
// if none is active. Returns true when a new session was created.
func (t *Tracker) Resume(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sessionID != 0 && !t.lastSeenAt.IsZero() && now.Sub(t.lastSeenAt) > t.timeout {
		logging.Debug().Int64("session", t.sessionID).Msg("session expired on resume")
		t.destroyLocked()
	}
	if t.sessionID != 0 {
		t.lastSeenAt = now
		return false
	}
	t.createLocked(now)
	return true
}

// Pause handles a background transition: it only records the last-seen
// timestamp. Timeout detection is deferred to the next Resume.
func (t *Tracker) Pause(now time.Time) {
	t.mu.Lock()
	t.lastSeenAt = now
	t.mu.Unlock()
	t.persistLastSeen(now)
}

// EnsureActive creates a session if none is active (first tracked event
// after launch or timeout). Returns true when a session was created.
func (t *Tracker) EnsureActive(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID != 0 {
		return false
	}
	t.createLocked(now)
	return true
}

// createLocked starts a new session: first-session flag from the absence
// of a stored prior id, last-session-length from the previous session's
// persisted span.
func (t *Tracker) createLocked(now time.Time) {
	prevID, _ := t.st.GetKVInt64(store.KeyLastSessionID)
	prevSeen, _ := t.st.GetKVInt64(store.KeyLastSeenAt)

	t.firstSession = prevID == 0
	t.lastSessionLength = 0
	if prevID > 0 && prevSeen >= prevID {
		t.lastSessionLength = prevSeen - prevID
	}

	t.sessionID = now.Unix()
	t.lastSeenAt = now
	t.screenName = ""
	t.screenCount = 0

	if err := t.st.SetKVInt64(store.KeyLastSessionID, t.sessionID); err != nil {
		logging.Warn().Err(err).Msg("session id persist failed")
	}
	t.persistLastSeen(now)

	logging.Debug().
		Int64("session", t.sessionID).
		Bool("first", t.firstSession).
		Int64("last_session_length", t.lastSessionLength).
		Msg("session created")
}

// Destroy ends the session: id back to 0, attribution and screen state
// cleared. Called on identity switch and by the lazy timeout.
func (t *Tracker) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyLocked()
}

func (t *Tracker) destroyLocked() {
	t.sessionID = 0
	t.screenName = ""
	t.screenCount = 0
	t.utmSource = ""
	t.utmMedium = ""
	t.utmCampaign = ""
}

// ResetForNewUser drops the session and its persisted bookkeeping so
// the next session under a new identity counts as a first session.
func (t *Tracker) ResetForNewUser() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyLocked()
	t.lastSeenAt = time.Time{}
	if err := t.st.DeleteKV(store.KeyLastSessionID, store.KeyLastSeenAt); err != nil {
		logging.Warn().Err(err).Msg("session bookkeeping clear failed")
	}
}

// IsActive reports whether a session is active.
func (t *Tracker) IsActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID != 0
}

// Current returns the session id (0 when none), first-session flag and
// last-session length in seconds.
func (t *Tracker) Current() (id int64, first bool, lastLength int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID, t.firstSession, t.lastSessionLength
}

// RecordScreen notes a screen view. The screen counter advances only when
// the name differs from the current screen.
func (t *Tracker) RecordScreen(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name == t.screenName {
		return
	}
	t.screenName = name
	t.screenCount++
}

// Screen returns the current screen name and count.
func (t *Tracker) Screen() (string, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.screenName, t.screenCount
}

// SetUTM records source/medium/campaign attribution for the session.
func (t *Tracker) SetUTM(source, medium, campaign string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.utmSource, t.utmMedium, t.utmCampaign = source, medium, campaign
}

// UTM returns the current attribution triple.
func (t *Tracker) UTM() (source, medium, campaign string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.utmSource, t.utmMedium, t.utmCampaign
}

func (t *Tracker) persistLastSeen(now time.Time) {
	if err := t.st.SetKVInt64(store.KeyLastSeenAt, now.Unix()); err != nil {
		logging.Warn().Err(err).Msg("session last-seen persist failed")
	}
}
