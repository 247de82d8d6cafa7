// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package response

import (
	"sync"

	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/store"
)

// maxARPStringLen rejects oversized string values the server may send.
const maxARPStringLen = 100

// ARP holds the server-supplied additional request parameters that are
// echoed back in every batch header, cookie-style. Values are persisted
// per account and guarded by a mutex because the queue reads a snapshot
// while the response processor writes merges.
type ARP struct {
	mu     sync.Mutex
	st     *store.Store
	values map[string]interface{}
}

// NewARP loads the persisted parameter set.
func NewARP(st *store.Store) *ARP {
	a := &ARP{st: st, values: make(map[string]interface{})}
	if _, err := st.GetKVJSON(store.KeyARP, &a.values); err != nil {
		logging.Warn().Err(err).Msg("arp load failed, starting fresh")
	}
	if a.values == nil {
		a.values = make(map[string]interface{})
	}
	return a
}

// Merge applies a server-sent parameter map. Only numbers, bools and
// strings under 100 chars are accepted. The sentinel value -1 deletes
// the key instead of storing it.
func (a *ARP) Merge(params map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range params {
		switch val := v.(type) {
		case float64:
			if val == -1 {
				delete(a.values, k)
			} else {
				a.values[k] = val
			}
		case int:
			if val == -1 {
				delete(a.values, k)
			} else {
				a.values[k] = val
			}
		case bool:
			a.values[k] = val
		case string:
			if len(val) <= maxARPStringLen {
				a.values[k] = val
			} else {
				logging.Debug().Str("key", k).Msg("arp string value too long, rejected")
			}
		default:
			logging.Debug().Str("key", k).Msg("arp value type rejected")
		}
	}
	a.persistLocked()
}

// Snapshot returns a copy safe to embed in an outgoing batch header.
func (a *ARP) Snapshot() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]interface{}, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Clear drops every parameter. Used on mute and identity switch.
func (a *ARP) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values = make(map[string]interface{})
	if err := a.st.DeleteKV(store.KeyARP); err != nil {
		logging.Warn().Err(err).Msg("arp clear failed")
	}
}

func (a *ARP) persistLocked() {
	if err := a.st.SetKVJSON(store.KeyARP, a.values); err != nil {
		logging.Warn().Err(err).Msg("arp persist failed")
	}
}
