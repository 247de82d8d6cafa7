// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package profile mirrors the last-known remote profile locally: plain
// fields, multi-value (set-like) fields and per-event first/last/count
// stats. Local pushes update it optimistically before any network ack;
// server sync responses overwrite it authoritatively.
//
// The mirror is persisted write-through into the instance store so a
// restart keeps the last-known state.
package profile

import (
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/store"
)

// EventDetail tracks local stats for one event name.
type EventDetail struct {
	Count     int   `json:"count"`
	FirstTime int64 `json:"firstTime"`
	LastTime  int64 `json:"lastTime"`
}

// snapshot is the persisted form of the cache.
type snapshot struct {
	Fields map[string]interface{} `json:"fields"`
	Events map[string]EventDetail `json:"events"`
}

// Cache is the in-memory + persisted profile mirror. Mutation happens on
// the dispatcher executor; reads may come from any goroutine, hence the
// RWMutex.
type Cache struct {
	mu     sync.RWMutex
	st     *store.Store
	fields map[string]interface{}
	events map[string]EventDetail
}

// New loads the persisted mirror (if any) from st.
func New(st *store.Store) *Cache {
	c := &Cache{
		st:     st,
		fields: make(map[string]interface{}),
		events: make(map[string]EventDetail),
	}
	var snap snapshot
	ok, err := st.GetKVJSON(store.KeyProfileCache, &snap)
	if err != nil {
		logging.Warn().Err(err).Msg("profile cache load failed, starting empty")
		return c
	}
	if ok {
		if snap.Fields != nil {
			c.fields = snap.Fields
		}
		if snap.Events != nil {
			c.events = snap.Events
		}
	}
	return c
}

// Get returns the last-known value of a profile field, or nil.
func (c *Cache) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fields[key]
}

// Set stores a field value optimistically.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.fields[key] = value
	c.mu.Unlock()
	c.persist()
}

// Remove deletes a field.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	delete(c.fields, key)
	c.mu.Unlock()
	c.persist()
}

// FieldCount reports the number of cached fields.
func (c *Cache) FieldCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fields)
}

// RecordEvent updates the per-event stats for one occurrence at ts.
func (c *Cache) RecordEvent(name string, ts time.Time) EventDetail {
	epoch := ts.Unix()
	c.mu.Lock()
	d := c.events[name]
	d.Count++
	if d.FirstTime == 0 {
		d.FirstTime = epoch
	}
	d.LastTime = epoch
	c.events[name] = d
	c.mu.Unlock()
	c.persist()
	return d
}

// EventDetailFor returns the stats for an event name (zero value if never
// seen locally).
func (c *Cache) EventDetailFor(name string) EventDetail {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events[name]
}

// Reset drops every cached field and event stat. Called on identity switch.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.fields = make(map[string]interface{})
	c.events = make(map[string]EventDetail)
	c.mu.Unlock()
	c.persist()
}

// MergeUpstream applies a server-authoritative snapshot: profile fields
// overwrite local values key by key; event stats overwrite wholesale per
// event name.
func (c *Cache) MergeUpstream(raw json.RawMessage) error {
	var up struct {
		Profile map[string]interface{} `json:"profile"`
		Events  map[string]EventDetail `json:"events"`
	}
	if err := json.Unmarshal(raw, &up); err != nil {
		return err
	}

	c.mu.Lock()
	for k, v := range up.Profile {
		c.fields[k] = v
	}
	for name, d := range up.Events {
		c.events[name] = d
	}
	c.mu.Unlock()
	c.persist()
	return nil
}

func (c *Cache) persist() {
	c.mu.RLock()
	snap := snapshot{Fields: c.fields, Events: c.events}
	data, err := json.Marshal(&snap)
	c.mu.RUnlock()
	if err != nil {
		logging.Warn().Err(err).Msg("profile cache marshal failed")
		return
	}
	if err := c.st.SetKV(store.KeyProfileCache, data); err != nil {
		logging.Warn().Err(err).Msg("profile cache persist failed")
	}
}
