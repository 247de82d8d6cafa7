// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package inapp serializes in-app notification display: one slot, a
// FIFO backlog, foreground deferral and frequency-cap filtering.
// Rendering itself is delegated to an external Renderer; this package
// only decides what may show and when.
package inapp

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/cometsdk/comet-go/internal/executor"
	"github.com/cometsdk/comet-go/internal/fcap"
	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/metrics"
	"github.com/cometsdk/comet-go/internal/store"
)

// Notification is a display-ready in-app message.
type Notification struct {
	CampaignID    string `json:"campaignId"`
	Type          string `json:"type"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	ExcludeCaps   bool   `json:"excludeCaps"`
	MaxPerDay     int    `json:"maxPerDay"`
	MaxPerSession int    `json:"maxPerSession"`
	MaxLifetime   int    `json:"maxLifetime"`

	// Raw preserves the full server payload for the renderer.
	Raw json.RawMessage `json:"-"`
}

func (n *Notification) campaign() fcap.Campaign {
	return fcap.Campaign{
		ID:            n.CampaignID,
		ExcludeCaps:   n.ExcludeCaps,
		MaxPerDay:     n.MaxPerDay,
		MaxPerSession: n.MaxPerSession,
		MaxLifetime:   n.MaxLifetime,
	}
}

// Renderer displays a notification. Implementations call
// Gate.Dismiss with the campaign id once the user closes it.
type Renderer interface {
	Show(n *Notification)
}

// Gate is the Idle/Displaying state machine. At most one notification
// occupies the displaying slot; the rest wait in FIFO order. Raw
// payloads awaiting preparation are persisted so a crash between
// receive and show loses nothing.
type Gate struct {
	st       *store.Store
	caps     *fcap.Manager
	prep     *executor.Executor
	renderer Renderer

	mu         sync.Mutex
	foreground bool
	displaying *Notification
	backlog    []*Notification
}

// New builds a gate. prep is the notification executor; preparation
// never runs on the network executor so parsing cannot stall flushes.
func New(st *store.Store, caps *fcap.Manager, prep *executor.Executor, r Renderer) *Gate {
	return &Gate{st: st, caps: caps, prep: prep, renderer: r}
}

// RestorePending re-queues raw payloads persisted before a restart.
func (g *Gate) RestorePending() {
	g.schedulePrep()
}

// Enqueue merges a raw server-sent notification array into the
// persisted pending list and schedules preparation. Safe to call from
// the network executor.
func (g *Gate) Enqueue(raw json.RawMessage) {
	var incoming []json.RawMessage
	if err := json.Unmarshal(raw, &incoming); err != nil {
		logging.Warn().Err(err).Msg("in-app payload is not an array")
		return
	}
	if len(incoming) == 0 {
		return
	}

	g.mu.Lock()
	var pending []json.RawMessage
	if _, err := g.st.GetKVJSON(store.KeyPendingInApps, &pending); err != nil {
		logging.Warn().Err(err).Msg("pending in-app load failed")
	}
	pending = append(pending, incoming...)
	if err := g.st.SetKVJSON(store.KeyPendingInApps, pending); err != nil {
		logging.Warn().Err(err).Msg("pending in-app persist failed")
	}
	g.mu.Unlock()

	g.schedulePrep()
}

func (g *Gate) schedulePrep() {
	g.prep.Post(func(context.Context) {
		g.prepareAll()
	})
}

// prepareAll drains the persisted pending list into display-ready
// notifications, then attempts to show.
func (g *Gate) prepareAll() {
	g.mu.Lock()
	var pending []json.RawMessage
	if _, err := g.st.GetKVJSON(store.KeyPendingInApps, &pending); err != nil {
		logging.Warn().Err(err).Msg("pending in-app load failed")
	}
	if err := g.st.DeleteKV(store.KeyPendingInApps); err != nil {
		logging.Warn().Err(err).Msg("pending in-app clear failed")
	}
	g.mu.Unlock()

	for _, raw := range pending {
		n, err := prepare(raw)
		if err != nil {
			logging.Warn().Err(err).Msg("in-app payload rejected")
			continue
		}
		g.enqueueOrShow(n)
	}
}

func prepare(raw json.RawMessage) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	n.Raw = raw
	return &n, nil
}

// enqueueOrShow is the gate decision: backlog when backgrounded or a
// notification is already displaying, otherwise show the first
// cap-permitted candidate.
func (g *Gate) enqueueOrShow(n *Notification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// Tail-append keeps arrival order even when an enqueue lands
	// during the unlocked render window.
	g.backlog = append(g.backlog, n)
	if !g.foreground || g.displaying != nil {
		return
	}
	g.showNextLocked()
}

// showNextLocked pops backlog entries until one passes the frequency
// caps. Rejected entries are dropped, not re-queued.
func (g *Gate) showNextLocked() {
	if g.renderer == nil {
		return
	}
	for len(g.backlog) > 0 {
		n := g.backlog[0]
		g.backlog = g.backlog[1:]
		if !g.caps.CanShow(n.campaign()) {
			logging.Debug().Str("campaign", n.CampaignID).Msg("in-app blocked by frequency cap")
			continue
		}
		g.displaying = n
		g.caps.DidShow(n.campaign())
		metrics.InAppShows.Inc()
		logging.Debug().Str("campaign", n.CampaignID).Msg("in-app displaying")
		// Render outside the lock; the renderer may call Dismiss
		// synchronously.
		g.mu.Unlock()
		g.renderer.Show(n)
		g.mu.Lock()
		return
	}
}

// Dismiss clears the displaying slot if id matches the showing
// campaign, then advances the backlog. A stale id is ignored.
func (g *Gate) Dismiss(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.displaying == nil || g.displaying.CampaignID != id {
		logging.Debug().Str("campaign", id).Msg("stale in-app dismiss ignored")
		return
	}
	g.displaying = nil
	if g.foreground {
		g.showNextLocked()
	}
}

// SetForeground flips foreground state. Entering the foreground
// attempts to show deferred notifications.
func (g *Gate) SetForeground(fg bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.foreground = fg
	if fg && g.displaying == nil {
		g.showNextLocked()
	}
}

// Displaying returns the campaign id in the display slot, or "".
func (g *Gate) Displaying() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.displaying == nil {
		return ""
	}
	return g.displaying.CampaignID
}

// ClearBacklog drops all queued notifications. Used on identity switch.
func (g *Gate) ClearBacklog() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backlog = nil
	g.displaying = nil
	if err := g.st.DeleteKV(store.KeyPendingInApps); err != nil {
		logging.Warn().Err(err).Msg("pending in-app clear failed")
	}
}
