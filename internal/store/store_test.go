// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{
		Path:      t.TempDir(),
		AccountID: "TEST-ACCT",
		EntryTTL:  5 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func payload(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"evtName":"e%d","ep":%d}`, i, i))
}

func addN(t *testing.T, s *Store, table Table, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.Add(table, payload(i))
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestAddFetch_FIFO(t *testing.T) {
	s := openTestStore(t)
	ids := addN(t, s, Events, 5)

	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("row ids not monotonic: %v", ids)
		}
	}

	batch, err := s.Fetch(Events, 3)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(batch.Payloads) != 3 {
		t.Fatalf("Fetch() returned %d payloads, want 3", len(batch.Payloads))
	}
	if batch.LastID != ids[2] {
		t.Errorf("LastID = %d, want %d", batch.LastID, ids[2])
	}
	for i, p := range batch.Payloads {
		if string(p) != string(payload(i)) {
			t.Errorf("payload[%d] = %s, want %s (FIFO violated)", i, p, payload(i))
		}
	}
}

func TestDeleteUpTo_PrefixOnly(t *testing.T) {
	s := openTestStore(t)
	ids := addN(t, s, Events, 5)

	batch, err := s.Fetch(Events, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteUpTo(Events, batch.LastID); err != nil {
		t.Fatalf("DeleteUpTo() error = %v", err)
	}

	rest, err := s.Fetch(Events, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest.Payloads) != 2 {
		t.Fatalf("after delete: %d rows remain, want 2", len(rest.Payloads))
	}
	// Remaining rows keep original order and content.
	if string(rest.Payloads[0]) != string(payload(3)) || string(rest.Payloads[1]) != string(payload(4)) {
		t.Errorf("remaining rows reordered or altered: %s, %s", rest.Payloads[0], rest.Payloads[1])
	}
	if rest.LastID != ids[4] {
		t.Errorf("LastID = %d, want %d", rest.LastID, ids[4])
	}
}

func TestTablesAreIndependent(t *testing.T) {
	s := openTestStore(t)
	addN(t, s, Events, 2)
	addN(t, s, ProfileEvents, 3)

	if n, _ := s.Count(Events); n != 2 {
		t.Errorf("Count(Events) = %d, want 2", n)
	}
	if n, _ := s.Count(ProfileEvents); n != 3 {
		t.Errorf("Count(ProfileEvents) = %d, want 3", n)
	}

	if err := s.DeleteAll(Events); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(Events); n != 0 {
		t.Errorf("Count(Events) after DeleteAll = %d", n)
	}
	if n, _ := s.Count(ProfileEvents); n != 3 {
		t.Errorf("DeleteAll(Events) touched profile table: %d rows", n)
	}
}

func TestFetch_EmptyTable(t *testing.T) {
	s := openTestStore(t)
	batch, err := s.Fetch(Events, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Empty() || batch.LastID != 0 {
		t.Errorf("empty table Fetch = %+v, want empty batch", batch)
	}
}

func TestPurgeExpired(t *testing.T) {
	s := openTestStore(t)
	addN(t, s, Events, 3)

	// Nothing is older than an hour.
	purged, err := s.PurgeExpired(Events, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 0 {
		t.Errorf("purged %d rows, want 0", purged)
	}

	// Everything is older than a negative horizon.
	purged, err = s.PurgeExpired(Events, -time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 3 {
		t.Errorf("purged %d rows, want 3", purged)
	}
	if n, _ := s.Count(Events); n != 0 {
		t.Errorf("%d rows remain after purge", n)
	}
}

func TestIDsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	opt := Options{Path: dir, AccountID: "A"}

	s, err := Open(opt)
	if err != nil {
		t.Fatal(err)
	}
	id1, err := s.Add(Events, payload(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(opt)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	id2, err := s2.Add(Events, payload(2))
	if err != nil {
		t.Fatal(err)
	}
	if id2 <= id1 {
		t.Errorf("id after reopen = %d, not greater than %d", id2, id1)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := Open(Options{Path: t.TempDir(), AccountID: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(Events, payload(0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Add after Close: err = %v, want ErrClosed", err)
	}
	if _, err := s.Fetch(Events, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Fetch after Close: err = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("double Close: err = %v", err)
	}
}

func TestKV(t *testing.T) {
	s := openTestStore(t)

	// Absent key is nil, not an error.
	v, err := s.GetKV(KeyDomain)
	if err != nil || v != nil {
		t.Errorf("GetKV(absent) = %v, %v", v, err)
	}

	if err := s.SetKVString(KeyDomain, "in1.cometdata.io"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetKVString(KeyDomain)
	if err != nil || got != "in1.cometdata.io" {
		t.Errorf("GetKVString = %q, %v", got, err)
	}

	if err := s.SetKVInt64(KeyCounterI, 42); err != nil {
		t.Fatal(err)
	}
	n, err := s.GetKVInt64(KeyCounterI)
	if err != nil || n != 42 {
		t.Errorf("GetKVInt64 = %d, %v", n, err)
	}
	if n, _ := s.GetKVInt64(KeyCounterJ); n != 0 {
		t.Errorf("GetKVInt64(absent) = %d, want 0", n)
	}

	arp := map[string]interface{}{"k": "v"}
	if err := s.SetKVJSON(KeyARP, arp); err != nil {
		t.Fatal(err)
	}
	var back map[string]interface{}
	ok, err := s.GetKVJSON(KeyARP, &back)
	if err != nil || !ok || back["k"] != "v" {
		t.Errorf("GetKVJSON = %v, %v, %v", back, ok, err)
	}

	if err := s.DeleteKV(KeyDomain, KeyCounterI); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetKVString(KeyDomain); got != "" {
		t.Errorf("deleted key still present: %q", got)
	}
}
