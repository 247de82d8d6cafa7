// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package fcap decides whether an in-app notification may display, based
// on per-campaign and global counters: lifetime, per-day (reset at local
// day rollover) and per-session (reset when a session is created). The
// global maxima are server-tunable and persisted together with the
// counters.
package fcap

import (
	"sync"
	"time"

	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/store"
)

// Default global limits, used until the server pushes its own.
const (
	DefaultDayMax     = 10
	DefaultSessionMax = 10
)

// Campaign carries the cap-relevant attributes of one notification.
// Zero or negative campaign limits mean unlimited.
type Campaign struct {
	ID            string
	ExcludeCaps   bool
	MaxPerDay     int
	MaxPerSession int
	MaxLifetime   int
}

type campaignCounts struct {
	Lifetime int `json:"lifetime"`
	Day      int `json:"day"`
}

// persisted is the stored counter state.
type persisted struct {
	Date       string                     `json:"date"`
	GlobalDay  int                        `json:"globalDay"`
	DayMax     int                        `json:"dayMax"`
	SessionMax int                        `json:"sessionMax"`
	Campaigns  map[string]*campaignCounts `json:"campaigns"`
}

// Manager owns the counters for one instance. Session counters are
// in-memory only; everything else is persisted write-through.
type Manager struct {
	mu sync.Mutex
	st *store.Store

	state         persisted
	globalSession int
	sessionByCamp map[string]int
	now           func() time.Time
}

// New loads persisted counters from st.
func New(st *store.Store) *Manager {
	m := &Manager{
		st:            st,
		sessionByCamp: make(map[string]int),
		now:           time.Now,
	}
	m.state.DayMax = DefaultDayMax
	m.state.SessionMax = DefaultSessionMax
	if _, err := st.GetKVJSON(store.KeyFcapCounters, &m.state); err != nil {
		logging.Warn().Err(err).Msg("fcap counters load failed, starting fresh")
	}
	if m.state.Campaigns == nil {
		m.state.Campaigns = make(map[string]*campaignCounts)
	}
	return m
}

// CanShow reports whether c may display now. It never mutates counters,
// so repeated calls are idempotent.
func (m *Manager) CanShow(c Campaign) bool {
	if c.ExcludeCaps {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	if m.state.GlobalDay >= m.state.DayMax {
		return false
	}
	if m.globalSession >= m.state.SessionMax {
		return false
	}
	if c.MaxPerSession > 0 && m.sessionByCamp[c.ID] >= c.MaxPerSession {
		return false
	}

	counts := m.state.Campaigns[c.ID]
	if counts == nil {
		return true
	}
	if c.MaxPerDay > 0 && counts.Day >= c.MaxPerDay {
		return false
	}
	if c.MaxLifetime > 0 && counts.Lifetime >= c.MaxLifetime {
		return false
	}
	return true
}

// DidShow increments every applicable counter by exactly one and persists.
func (m *Manager) DidShow(c Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	m.state.GlobalDay++
	m.globalSession++
	m.sessionByCamp[c.ID]++

	counts := m.state.Campaigns[c.ID]
	if counts == nil {
		counts = &campaignCounts{}
		m.state.Campaigns[c.ID] = counts
	}
	counts.Lifetime++
	counts.Day++

	m.persistLocked()
}

// UpdateLimits applies server-pushed global maxima. Takes effect for
// subsequent checks immediately; running counters are not reset.
func (m *Manager) UpdateLimits(dayMax, sessionMax int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dayMax > 0 {
		m.state.DayMax = dayMax
	}
	if sessionMax > 0 {
		m.state.SessionMax = sessionMax
	}
	m.persistLocked()
}

// Limits returns the current global maxima.
func (m *Manager) Limits() (dayMax, sessionMax int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DayMax, m.state.SessionMax
}

// SessionCreated resets per-session counters. Wired to session creation.
func (m *Manager) SessionCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalSession = 0
	m.sessionByCamp = make(map[string]int)
}

// ChangeUser resets every counter. Called on identity switch.
func (m *Manager) ChangeUser() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.GlobalDay = 0
	m.state.Campaigns = make(map[string]*campaignCounts)
	m.globalSession = 0
	m.sessionByCamp = make(map[string]int)
	m.persistLocked()
}

// RemoveCampaigns drops counters for campaigns the server marked stale.
func (m *Manager) RemoveCampaigns(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.state.Campaigns, id)
		delete(m.sessionByCamp, id)
	}
	m.persistLocked()
}

// rolloverLocked resets daily counters when the local day changed.
func (m *Manager) rolloverLocked() {
	today := m.now().Format("20060102")
	if m.state.Date == today {
		return
	}
	m.state.Date = today
	m.state.GlobalDay = 0
	for _, counts := range m.state.Campaigns {
		counts.Day = 0
	}
}

func (m *Manager) persistLocked() {
	if err := m.st.SetKVJSON(store.KeyFcapCounters, &m.state); err != nil {
		logging.Warn().Err(err).Msg("fcap counters persist failed")
	}
}
