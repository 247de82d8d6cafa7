// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package response interprets the directive object the backend returns
// with every acknowledged batch: pending in-app notifications, device
// identity, profile sync, ARP, running counters, log-level overrides
// and frequency-cap tuning.
package response

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/cometsdk/comet-go/internal/fcap"
	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/profile"
	"github.com/cometsdk/comet-go/internal/store"
)

// Deps are the collaborators the handlers mutate. Any nil collaborator
// disables the handlers that need it.
type Deps struct {
	Store   *store.Store
	Profile *profile.Cache
	Fcap    *fcap.Manager
	ARP     *ARP

	// SetDeviceID force-overwrites the local device identifier.
	SetDeviceID func(id string)
	// EnqueueInApps receives the raw in-app notification array.
	EnqueueInApps func(raw json.RawMessage)
	// Inbox receives the opaque inbox payload, if a consumer is wired.
	Inbox func(raw json.RawMessage)
}

type handler struct {
	name string
	fn   func(body map[string]json.RawMessage) error
}

// Processor runs the directive handlers in a fixed order. A panic or
// error in one handler is logged and never blocks the rest; batch
// deletion proceeds regardless.
type Processor struct {
	deps     Deps
	handlers []handler
}

// New builds the processor with the canonical handler order.
func New(deps Deps) *Processor {
	p := &Processor{deps: deps}
	p.handlers = []handler{
		{"inapp_notifs", p.handleInApps},
		{"g", p.handleDeviceID},
		{"syncWithUpstream", p.handleProfileSync},
		{"arp", p.handleARP},
		{"counters", p.handleCounters},
		{"console", p.handleConsole},
		{"dbg_lvl", p.handleDebugLevel},
		{"fcap", p.handleFcap},
		{"inbox_notifs", p.handleInbox},
	}
	return p
}

// Process parses body and runs every handler against it.
func (p *Processor) Process(body []byte) {
	if len(body) == 0 {
		return
	}
	var directives map[string]json.RawMessage
	if err := json.Unmarshal(body, &directives); err != nil {
		logging.Warn().Err(err).Msg("response body is not a directive object")
		return
	}
	for _, h := range p.handlers {
		p.runOne(h, directives)
	}
}

func (p *Processor) runOne(h handler, directives map[string]json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("handler", h.name).
				Interface("panic", r).
				Msg("response handler panicked")
		}
	}()
	if err := h.fn(directives); err != nil {
		logging.Warn().Err(err).Str("handler", h.name).Msg("response handler failed")
	}
}

func (p *Processor) handleInApps(body map[string]json.RawMessage) error {
	raw, ok := body["inapp_notifs"]
	if !ok || p.deps.EnqueueInApps == nil {
		return nil
	}
	p.deps.EnqueueInApps(raw)
	return nil
}

func (p *Processor) handleDeviceID(body map[string]json.RawMessage) error {
	raw, ok := body["g"]
	if !ok || p.deps.SetDeviceID == nil {
		return nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return fmt.Errorf("parse device id: %w", err)
	}
	if id != "" {
		p.deps.SetDeviceID(id)
	}
	return nil
}

// handleProfileSync merges the authoritative profile/event state the
// server sends when a sync was requested. The snapshot arrives under
// syncWithUpstream; bare top-level profile/events members are accepted
// for older backends.
func (p *Processor) handleProfileSync(body map[string]json.RawMessage) error {
	if p.deps.Profile == nil {
		return nil
	}
	if raw, ok := body["syncWithUpstream"]; ok {
		return p.deps.Profile.MergeUpstream(raw)
	}
	_, hasProfile := body["profile"]
	_, hasEvents := body["events"]
	if !hasProfile && !hasEvents {
		return nil
	}
	sync := make(map[string]json.RawMessage, 2)
	if raw, ok := body["profile"]; ok {
		sync["profile"] = raw
	}
	if raw, ok := body["events"]; ok {
		sync["events"] = raw
	}
	merged, err := json.Marshal(sync)
	if err != nil {
		return err
	}
	return p.deps.Profile.MergeUpstream(merged)
}

func (p *Processor) handleARP(body map[string]json.RawMessage) error {
	raw, ok := body["arp"]
	if !ok || p.deps.ARP == nil {
		return nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return fmt.Errorf("parse arp: %w", err)
	}
	p.deps.ARP.Merge(params)
	return nil
}

// handleCounters persists the server-assigned _i/_j markers echoed in
// the next batch header.
func (p *Processor) handleCounters(body map[string]json.RawMessage) error {
	for key, kvKey := range map[string]string{
		"_i": store.KeyCounterI,
		"_j": store.KeyCounterJ,
	} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			logging.Debug().Str("key", key).Msg("counter not a number, ignored")
			continue
		}
		if err := p.deps.Store.SetKVInt64(kvKey, v); err != nil {
			return fmt.Errorf("persist %s: %w", key, err)
		}
	}
	return nil
}

func (p *Processor) handleConsole(body map[string]json.RawMessage) error {
	raw, ok := body["console"]
	if !ok {
		return nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return fmt.Errorf("parse console: %w", err)
	}
	for _, line := range lines {
		logging.Debug().Str("source", "server").Msg(line)
	}
	return nil
}

func (p *Processor) handleDebugLevel(body map[string]json.RawMessage) error {
	raw, ok := body["dbg_lvl"]
	if !ok {
		return nil
	}
	var lvl string
	if err := json.Unmarshal(raw, &lvl); err != nil {
		// Some backends send the level as a bare number.
		var n int
		if err2 := json.Unmarshal(raw, &n); err2 != nil {
			return fmt.Errorf("parse dbg_lvl: %w", err)
		}
		lvl = numericLevel(n)
	}
	logging.SetLevelString(lvl)
	return nil
}

// numericLevel maps the wire's numeric verbosity to a level name.
func numericLevel(n int) string {
	switch {
	case n <= 0:
		return "info"
	case n == 1:
		return "debug"
	default:
		return "trace"
	}
}

// handleFcap applies the global daily (imp) and per-session (ims)
// display maxima and prunes counters for stale campaigns.
func (p *Processor) handleFcap(body map[string]json.RawMessage) error {
	if p.deps.Fcap == nil {
		return nil
	}
	day, session := 0, 0
	if raw, ok := body["imp"]; ok {
		if err := json.Unmarshal(raw, &day); err != nil {
			return fmt.Errorf("parse imp: %w", err)
		}
	}
	if raw, ok := body["ims"]; ok {
		if err := json.Unmarshal(raw, &session); err != nil {
			return fmt.Errorf("parse ims: %w", err)
		}
	}
	if day > 0 || session > 0 {
		p.deps.Fcap.UpdateLimits(day, session)
	}
	if raw, ok := body["inapp_stale"]; ok {
		var stale []string
		if err := json.Unmarshal(raw, &stale); err != nil {
			return fmt.Errorf("parse inapp_stale: %w", err)
		}
		if len(stale) > 0 {
			p.deps.Fcap.RemoveCampaigns(stale)
		}
	}
	return nil
}

func (p *Processor) handleInbox(body map[string]json.RawMessage) error {
	raw, ok := body["inbox_notifs"]
	if !ok || p.deps.Inbox == nil {
		return nil
	}
	p.deps.Inbox(raw)
	return nil
}
