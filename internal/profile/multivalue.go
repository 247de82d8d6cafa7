// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package profile

import "github.com/cometsdk/comet-go/internal/validation"

// MultiValueOp selects how incoming values combine with an existing
// multi-value field.
type MultiValueOp int

const (
	// SetValues replaces the field.
	SetValues MultiValueOp = iota
	// AddValues appends values not already present.
	AddValues
	// RemoveValues deletes matching values, preserving the order of the rest.
	RemoveValues
)

// ApplyMultiValue merges values into the multi-value field key and returns
// the resulting slice. Existing scalar string values are promoted to a
// one-element set first. The result is capped at validation.MaxMultiValues
// with FIFO eviction of the oldest entries.
func (c *Cache) ApplyMultiValue(key string, values []string, op MultiValueOp) []string {
	current := c.currentMultiValue(key)

	var next []string
	switch op {
	case SetValues:
		next = append(next, values...)
	case AddValues:
		next = append(next, current...)
		for _, v := range values {
			if !contains(next, v) {
				next = append(next, v)
			}
		}
	case RemoveValues:
		for _, v := range current {
			if !contains(values, v) {
				next = append(next, v)
			}
		}
	}

	if len(next) > validation.MaxMultiValues {
		next = next[len(next)-validation.MaxMultiValues:]
	}

	c.Set(key, next)
	return next
}

// currentMultiValue reads the field as a string slice, promoting scalars.
func (c *Cache) currentMultiValue(key string) []string {
	switch v := c.Get(key).(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
