// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestCleanEventName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantCode int
		wantErr  error
	}{
		{"plain", "Product Viewed", "Product Viewed", 0, nil},
		{"strips reserved chars", `Prod.uct:View$ed`, "ProductViewed", CodeCharsRemoved, nil},
		{"strips quotes and backslash", `a'b"c\d`, "abcd", CodeCharsRemoved, nil},
		{"truncates long name", strings.Repeat("x", 40), strings.Repeat("x", 32), CodeEventNameTruncated, nil},
		{"restricted exact", "App Launched", "", CodeRestrictedEventName, ErrRestrictedName},
		{"restricted case-insensitive", "app launched", "", CodeRestrictedEventName, ErrRestrictedName},
		{"trims space", "  Added To Cart  ", "Added To Cart", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, res, err := CleanEventName(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CleanEventName(%q) err = %v, want %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Errorf("CleanEventName(%q) = %q, want %q", tt.input, got, tt.want)
			}
			checkCode(t, res, tt.wantCode)
		})
	}
}

func TestCleanObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantCode int
	}{
		{"plain", "color", "color", 0},
		{"strips dollar", "pri$ce", "price", CodeCharsRemoved},
		{"truncates", strings.Repeat("k", 130), strings.Repeat("k", 120), CodeKeyTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, res := CleanObjectKey(tt.input)
			if got != tt.want {
				t.Errorf("CleanObjectKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
			checkCode(t, res, tt.wantCode)
		})
	}
}

func TestCleanObjectValue_Primitives(t *testing.T) {
	for _, v := range []interface{}{int(1), int64(2), float64(3.5), float32(1.25), true, uint8(9)} {
		got, res, err := CleanObjectValue(v, Event)
		if err != nil {
			t.Fatalf("CleanObjectValue(%v) err = %v", v, err)
		}
		if got != v {
			t.Errorf("CleanObjectValue(%v) = %v, want unchanged", v, got)
		}
		if res != nil {
			t.Errorf("CleanObjectValue(%v) unexpected result %+v", v, res)
		}
	}
}

func TestCleanObjectValue_Strings(t *testing.T) {
	got, res, err := CleanObjectValue(`re'd`, Event)
	if err != nil {
		t.Fatal(err)
	}
	if got != "red" {
		t.Errorf("got %q, want %q", got, "red")
	}
	checkCode(t, res, CodeCharsRemoved)

	long := strings.Repeat("v", 600)
	got, res, err = CleanObjectValue(long, Event)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.(string)) != MaxValueLength {
		t.Errorf("len = %d, want %d", len(got.(string)), MaxValueLength)
	}
	checkCode(t, res, CodeValueTruncated)
}

func TestCleanObjectValue_Arrays(t *testing.T) {
	// Arrays are a Profile-only feature.
	if _, _, err := CleanObjectValue([]string{"a"}, Event); !errors.Is(err, ErrInvalidType) {
		t.Errorf("array in Event context: err = %v, want ErrInvalidType", err)
	}

	got, _, err := CleanObjectValue([]string{"A", "B"}, Profile)
	if err != nil {
		t.Fatal(err)
	}
	ss := got.([]string)
	if ss[0] != "a" || ss[1] != "b" {
		t.Errorf("multi-values not lower-cased: %v", ss)
	}

	// Mixed []interface{} of strings is accepted; anything else rejected.
	if _, _, err := CleanObjectValue([]interface{}{"a", 1}, Profile); !errors.Is(err, ErrInvalidType) {
		t.Errorf("mixed array: err = %v, want ErrInvalidType", err)
	}

	// Over the cardinality cap: rejected outright, no truncation.
	big := make([]string, MaxMultiValues+1)
	for i := range big {
		big[i] = "v"
	}
	_, res, err := CleanObjectValue(big, Profile)
	if !errors.Is(err, ErrArrayTooLong) {
		t.Fatalf("oversized array: err = %v, want ErrArrayTooLong", err)
	}
	checkCode(t, res, CodeArrayTooLong)
}

func TestCleanObjectValue_Unsupported(t *testing.T) {
	_, res, err := CleanObjectValue(map[string]string{"k": "v"}, Profile)
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("err = %v, want ErrInvalidType", err)
	}
	checkCode(t, res, CodeInvalidValueType)
}

func TestCleanMultiValue(t *testing.T) {
	got, res := CleanMultiValue("  RoCK  ")
	if got != "rock" {
		t.Errorf("got %q, want %q", got, "rock")
	}
	if res != nil {
		t.Errorf("unexpected result %+v", res)
	}

	got, res = CleanMultiValue(strings.Repeat("a", 50))
	if len(got) != MaxMultiValueBytes {
		t.Errorf("len = %d, want %d", len(got), MaxMultiValueBytes)
	}
	checkCode(t, res, CodeMultiValueTruncated)
}

func TestRecordQueue_Overflow(t *testing.T) {
	q := NewRecordQueue()
	for i := 0; i < recordQueueCap; i++ {
		q.Push(&Result{Code: i})
	}
	if q.Len() != recordQueueCap {
		t.Fatalf("Len = %d, want %d", q.Len(), recordQueueCap)
	}

	// One more push drops the oldest ten.
	q.Push(&Result{Code: 999})
	if q.Len() != recordQueueCap-recordDropCount+1 {
		t.Fatalf("Len = %d after overflow", q.Len())
	}
	drained := q.Drain()
	if drained[0].Code != recordDropCount {
		t.Errorf("oldest surviving code = %d, want %d", drained[0].Code, recordDropCount)
	}
	if drained[len(drained)-1].Code != 999 {
		t.Errorf("newest code = %d, want 999", drained[len(drained)-1].Code)
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty after Drain")
	}
}

func TestRecordQueue_NilPush(t *testing.T) {
	q := NewRecordQueue()
	q.Push(nil)
	if q.Len() != 0 {
		t.Errorf("nil push should be ignored")
	}
	if q.Drain() != nil {
		t.Errorf("Drain on empty queue should return nil")
	}
}

func checkCode(t *testing.T, res *Result, want int) {
	t.Helper()
	if want == 0 {
		if res != nil {
			t.Errorf("unexpected validation result %+v", res)
		}
		return
	}
	if res == nil {
		t.Fatalf("expected validation result with code %d, got nil", want)
	}
	if res.Code != want {
		t.Errorf("result code = %d, want %d", res.Code, want)
	}
}
