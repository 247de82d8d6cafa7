// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Well-known KV keys. The store directory is already per-account, so keys
// need no further suffixing.
const (
	KeyDeviceID       = "deviceId"
	KeyFallbackID     = "fallbackId"
	KeyDomain         = "domain"
	KeyMutedAt        = "mutedAt"
	KeyFirstRequestTS = "firstRequestTs"
	KeyLastRequestTS  = "lastRequestTs"
	KeyCounterI       = "counterI"
	KeyCounterJ       = "counterJ"
	KeyARP            = "arp"
	KeyIdentityCache  = "identityCache"
	KeyPendingInApps  = "pendingInApps"
	KeyProfileCache   = "profileCache"
	KeyFcapCounters   = "fcapCounters"
	KeyLastSessionID  = "lastSessionId"
	KeyLastSeenAt     = "lastSeenAt"
)

// GetKV returns the value for key, or nil when the key is absent.
func (s *Store) GetKV(key string) ([]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	s.mu.RUnlock()

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(kvPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, s.engineFailure("kv get", err)
	}
	return out, nil
}

// SetKV stores a value under key.
func (s *Store) SetKV(key string, value []byte) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(kvPrefix+key), value)
	})
	if err != nil {
		return s.engineFailure("kv set", err)
	}
	return nil
}

// DeleteKV removes a key. Deleting an absent key is not an error.
func (s *Store) DeleteKV(keys ...string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(kvPrefix + key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.engineFailure("kv delete", err)
	}
	return nil
}

// GetKVString returns the string value for key, "" when absent.
func (s *Store) GetKVString(key string) (string, error) {
	b, err := s.GetKV(key)
	return string(b), err
}

// SetKVString stores a string value.
func (s *Store) SetKVString(key, value string) error {
	return s.SetKV(key, []byte(value))
}

// GetKVInt64 returns the int64 value for key, 0 when absent.
func (s *Store) GetKVInt64(key string) (int64, error) {
	b, err := s.GetKV(key)
	if err != nil || len(b) == 0 {
		return 0, err
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("kv %s: %w", key, err)
	}
	return n, nil
}

// SetKVInt64 stores an int64 value.
func (s *Store) SetKVInt64(key string, value int64) error {
	return s.SetKV(key, []byte(strconv.FormatInt(value, 10)))
}

// GetKVJSON unmarshals the value for key into v. Absent keys leave v
// untouched and return false.
func (s *Store) GetKVJSON(key string, v interface{}) (bool, error) {
	b, err := s.GetKV(key)
	if err != nil || len(b) == 0 {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("kv %s: %w", key, err)
	}
	return true, nil
}

// SetKVJSON marshals v and stores it under key.
func (s *Store) SetKVJSON(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv %s: %w", key, err)
	}
	return s.SetKV(key, b)
}
