// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package validation sanitizes event names, property keys and property
// values before they are queued.
//
// The functions are pure: they return the cleaned input together with an
// optional non-fatal Result describing what was altered. Fatal conditions
// (restricted event names, unsupported value types, oversized arrays) are
// returned as errors and abort the originating call. Non-fatal Results are
// collected into a RecordQueue and shipped with the next outgoing event.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Context selects the rule set for CleanObjectValue.
type Context int

const (
	// Event context: primitive values only.
	Event Context = iota
	// Profile context: primitives plus string arrays (multi-value fields).
	Profile
)

// Length limits enforced by the cleaners.
const (
	MaxEventNameLength = 32
	MaxKeyLength       = 120
	MaxValueLength     = 512
	MaxMultiValues     = 100
	MaxMultiValueBytes = 40
)

// Error codes attached to outgoing events. The numeric table is local to
// this SDK; only stability across releases matters, not the values.
const (
	CodeEventNameTruncated  = 510
	CodeCharsRemoved        = 511
	CodeInvalidValueType    = 512
	CodeRestrictedEventName = 513
	CodeKeyTruncated        = 520
	CodeValueTruncated      = 521
	CodeArrayTooLong        = 522
	CodeMultiValueTruncated = 523
)

// ErrRestrictedName rejects reserved system event names.
var ErrRestrictedName = errors.New("restricted event name")

// ErrInvalidType rejects unsupported property value types.
var ErrInvalidType = errors.New("unsupported property value type")

// ErrArrayTooLong rejects multi-value arrays above MaxMultiValues.
var ErrArrayTooLong = errors.New("multi-value array too long")

// Result describes a non-fatal cleanup applied to caller input.
type Result struct {
	Code    int    `json:"c"`
	Message string `json:"d"`
}

// restrictedNames are event names reserved for SDK system events. User
// calls with these names are dropped (case-insensitive match).
var restrictedNames = []string{
	"App Launched",
	"App Uninstalled",
	"Notification Sent",
	"Notification Viewed",
	"Notification Clicked",
	"Session Concluded",
	"UTM Visited",
	"Stayed",
}

const nameDisallowed = `.:$'"\`
const valueDisallowed = `'"\`

// IsRestrictedName reports whether name collides with a reserved system
// event name.
func IsRestrictedName(name string) bool {
	for _, r := range restrictedNames {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

// CleanEventName strips disallowed characters and truncates to
// MaxEventNameLength. Restricted names are rejected with ErrRestrictedName.
func CleanEventName(name string) (string, *Result, error) {
	if IsRestrictedName(name) {
		return "", &Result{
			Code:    CodeRestrictedEventName,
			Message: fmt.Sprintf("%s is a restricted event name", name),
		}, ErrRestrictedName
	}

	cleaned, stripped := stripRunes(strings.TrimSpace(name), nameDisallowed)
	var res *Result
	if stripped {
		res = &Result{
			Code:    CodeCharsRemoved,
			Message: fmt.Sprintf("event name %s contained reserved characters", cleaned),
		}
	}
	if len(cleaned) > MaxEventNameLength {
		cleaned = cleaned[:MaxEventNameLength]
		res = &Result{
			Code:    CodeEventNameTruncated,
			Message: fmt.Sprintf("event name truncated to %d characters: %s", MaxEventNameLength, cleaned),
		}
	}
	return cleaned, res, nil
}

// CleanObjectKey strips disallowed characters and truncates to MaxKeyLength.
func CleanObjectKey(key string) (string, *Result) {
	cleaned, stripped := stripRunes(strings.TrimSpace(key), nameDisallowed)
	var res *Result
	if stripped {
		res = &Result{
			Code:    CodeCharsRemoved,
			Message: fmt.Sprintf("property key %s contained reserved characters", cleaned),
		}
	}
	if len(cleaned) > MaxKeyLength {
		cleaned = cleaned[:MaxKeyLength]
		res = &Result{
			Code:    CodeKeyTruncated,
			Message: fmt.Sprintf("property key truncated to %d characters: %s", MaxKeyLength, cleaned),
		}
	}
	return cleaned, res
}

// CleanObjectValue sanitizes a property value. In Profile context string
// slices are accepted as multi-value fields; everywhere else only
// primitives pass. Oversized arrays are rejected outright, never truncated.
func CleanObjectValue(value interface{}, ctx Context) (interface{}, *Result, error) {
	switch v := value.(type) {
	case string:
		return cleanStringValue(v)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v, nil, nil
	case []string:
		if ctx != Profile {
			return nil, typeResult(value), ErrInvalidType
		}
		return cleanStringSlice(v)
	case []interface{}:
		if ctx != Profile {
			return nil, typeResult(value), ErrInvalidType
		}
		ss := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, typeResult(item), ErrInvalidType
			}
			ss = append(ss, s)
		}
		return cleanStringSlice(ss)
	default:
		return nil, typeResult(value), ErrInvalidType
	}
}

// CleanMultiValue sanitizes one element of a multi-value (set) property:
// lower-cased, reserved characters stripped, capped at MaxMultiValueBytes.
func CleanMultiValue(value string) (string, *Result) {
	cleaned, stripped := stripRunes(strings.ToLower(strings.TrimSpace(value)), valueDisallowed)
	var res *Result
	if stripped {
		res = &Result{
			Code:    CodeCharsRemoved,
			Message: fmt.Sprintf("multi-value %s contained reserved characters", cleaned),
		}
	}
	if len(cleaned) > MaxMultiValueBytes {
		cleaned = cleaned[:MaxMultiValueBytes]
		res = &Result{
			Code:    CodeMultiValueTruncated,
			Message: fmt.Sprintf("multi-value truncated to %d bytes: %s", MaxMultiValueBytes, cleaned),
		}
	}
	return cleaned, res
}

func cleanStringValue(v string) (interface{}, *Result, error) {
	cleaned, stripped := stripRunes(strings.TrimSpace(v), valueDisallowed)
	var res *Result
	if stripped {
		res = &Result{
			Code:    CodeCharsRemoved,
			Message: "property value contained reserved characters",
		}
	}
	if len(cleaned) > MaxValueLength {
		cleaned = cleaned[:MaxValueLength]
		res = &Result{
			Code:    CodeValueTruncated,
			Message: fmt.Sprintf("property value truncated to %d characters", MaxValueLength),
		}
	}
	return cleaned, res, nil
}

func cleanStringSlice(values []string) (interface{}, *Result, error) {
	if len(values) > MaxMultiValues {
		return nil, &Result{
			Code:    CodeArrayTooLong,
			Message: fmt.Sprintf("array exceeds %d items and was dropped", MaxMultiValues),
		}, ErrArrayTooLong
	}
	cleaned := make([]string, 0, len(values))
	var res *Result
	for _, v := range values {
		c, r := CleanMultiValue(v)
		if r != nil && res == nil {
			res = r
		}
		cleaned = append(cleaned, c)
	}
	return cleaned, res, nil
}

func typeResult(value interface{}) *Result {
	return &Result{
		Code:    CodeInvalidValueType,
		Message: fmt.Sprintf("property value of type %T is not supported", value),
	}
}

// stripRunes removes every rune in cutset from s, reporting whether
// anything was removed.
func stripRunes(s, cutset string) (string, bool) {
	if !strings.ContainsAny(s, cutset) {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(cutset, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), true
}
