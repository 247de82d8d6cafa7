// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package identity owns the device GUID and the cached mapping from
// user identity keys (Identity, Email, Phone) to GUIDs, which drives
// the OnUserLogin switch decision: same user, known user, or new user.
package identity

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/store"
)

// identityKeys are the profile fields that identify a user, in
// resolution priority order.
var identityKeys = []string{"Identity", "Email", "Phone"}

// Kind classifies a switch resolution.
type Kind int

const (
	// KindOwn means the candidate identity already belongs to the
	// current device; push profile fields, no reset.
	KindOwn Kind = iota
	// KindCached restores a previously seen user's GUID.
	KindCached
	// KindMinted assigns a fresh GUID to a never-seen user.
	KindMinted
)

func (k Kind) String() string {
	switch k {
	case KindCached:
		return "cached"
	case KindMinted:
		return "minted"
	default:
		return "own"
	}
}

// DeviceID is the persisted device GUID, readable from any goroutine.
type DeviceID struct {
	st *store.Store

	mu sync.Mutex
	id string
}

// fallbackIDPrefix marks GUIDs minted while the primary id slot was
// unreadable, so the backend can tell them from real device ids.
const fallbackIDPrefix = "__f"

// LoadDeviceID restores the GUID or mints one on first run. When the
// primary slot cannot be read, a separately persisted fallback id is
// used instead of overwriting an identity that may still exist.
func LoadDeviceID(st *store.Store) *DeviceID {
	d := &DeviceID{st: st}
	id, err := st.GetKVString(store.KeyDeviceID)
	if err != nil {
		logging.Warn().Err(err).Msg("device id read failed, using fallback id")
		d.id = loadFallbackID(st)
		return d
	}
	if id == "" {
		id = uuid.New().String()
		if err := st.SetKVString(store.KeyDeviceID, id); err != nil {
			logging.Warn().Err(err).Msg("device id persist failed")
		}
		logging.Debug().Str("id", id).Msg("minted device id")
	}
	d.id = id
	return d
}

// loadFallbackID restores or mints the marked fallback GUID.
func loadFallbackID(st *store.Store) string {
	id, _ := st.GetKVString(store.KeyFallbackID)
	if id == "" {
		id = fallbackIDPrefix + uuid.New().String()
		if err := st.SetKVString(store.KeyFallbackID, id); err != nil {
			logging.Warn().Err(err).Msg("fallback id persist failed")
		}
	}
	return id
}

// Get returns the current GUID.
func (d *DeviceID) Get() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// Set force-overwrites the GUID. Used for the server's g directive
// and for identity switches.
func (d *DeviceID) Set(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	d.id = id
	d.mu.Unlock()
	if err := d.st.SetKVString(store.KeyDeviceID, id); err != nil {
		logging.Warn().Err(err).Msg("device id persist failed")
	}
}

// Resolver maps identity keys to GUIDs and coalesces concurrent
// switches for the same payload.
type Resolver struct {
	st *store.Store

	mu       sync.Mutex
	cache    map[string]string
	inflight string
}

// NewResolver loads the persisted identity cache.
func NewResolver(st *store.Store) *Resolver {
	r := &Resolver{st: st, cache: make(map[string]string)}
	if _, err := st.GetKVJSON(store.KeyIdentityCache, &r.cache); err != nil {
		logging.Warn().Err(err).Msg("identity cache load failed")
	}
	if r.cache == nil {
		r.cache = make(map[string]string)
	}
	return r
}

// Resolve decides what GUID the candidate profile maps to. current is
// the device's present GUID. Profiles with no identity keys resolve
// to the current device.
func (r *Resolver) Resolve(current string, prof map[string]interface{}) (string, Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	haveKeys := false
	for _, key := range identityKeys {
		v, ok := prof[key]
		if !ok {
			continue
		}
		haveKeys = true
		if guid, ok := r.cache[cacheKey(key, v)]; ok {
			if guid == current {
				return current, KindOwn
			}
			return guid, KindCached
		}
	}
	if !haveKeys {
		return current, KindOwn
	}
	return uuid.New().String(), KindMinted
}

// Remember associates the profile's identity keys with guid.
func (r *Resolver) Remember(guid string, prof map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for _, key := range identityKeys {
		if v, ok := prof[key]; ok {
			r.cache[cacheKey(key, v)] = guid
			changed = true
		}
	}
	if !changed {
		return
	}
	if err := r.st.SetKVJSON(store.KeyIdentityCache, r.cache); err != nil {
		logging.Warn().Err(err).Msg("identity cache persist failed")
	}
}

// BeginSwitch marks a switch for prof in flight. It returns false when
// an identical switch is already running, which coalesces duplicate
// OnUserLogin calls.
func (r *Resolver) BeginSwitch(prof map[string]interface{}) bool {
	key := serialize(prof)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight == key {
		return false
	}
	r.inflight = key
	return true
}

// EndSwitch clears the in-flight marker.
func (r *Resolver) EndSwitch() {
	r.mu.Lock()
	r.inflight = ""
	r.mu.Unlock()
}

func cacheKey(key string, value interface{}) string {
	return fmt.Sprintf("%s_%v", key, value)
}

// serialize renders prof deterministically so identical payloads
// compare equal regardless of map iteration order.
func serialize(prof map[string]interface{}) string {
	keys := make([]string, 0, len(prof))
	for k := range prof {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b []byte
	for _, k := range keys {
		v, _ := json.Marshal(prof[k])
		b = append(b, k...)
		b = append(b, '=')
		b = append(b, v...)
		b = append(b, ';')
	}
	return string(b)
}
