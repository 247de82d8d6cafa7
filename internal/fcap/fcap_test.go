// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package fcap

import (
	"testing"
	"time"

	"github.com/cometsdk/comet-go/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Options{
		Path:      t.TempDir(),
		AccountID: "ACCT-1",
		InMemory:  true,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCampaignLifetimeCap(t *testing.T) {
	m := New(newTestStore(t))
	c := Campaign{ID: "camp-1", MaxLifetime: 2}

	for i := 0; i < 2; i++ {
		if !m.CanShow(c) {
			t.Fatalf("show %d: blocked before lifetime cap reached", i)
		}
		m.DidShow(c)
	}
	if m.CanShow(c) {
		t.Fatal("lifetime cap reached but CanShow returned true")
	}
}

func TestCampaignDailyCapRollsOver(t *testing.T) {
	m := New(newTestStore(t))
	day := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return day }

	c := Campaign{ID: "camp-1", MaxPerDay: 1}
	m.DidShow(c)
	if m.CanShow(c) {
		t.Fatal("daily cap reached but CanShow returned true")
	}

	day = day.AddDate(0, 0, 1)
	if !m.CanShow(c) {
		t.Fatal("daily cap did not reset on day rollover")
	}
}

func TestGlobalDailyCap(t *testing.T) {
	m := New(newTestStore(t))
	m.UpdateLimits(2, 100)

	m.DidShow(Campaign{ID: "a"})
	m.DidShow(Campaign{ID: "b"})
	if m.CanShow(Campaign{ID: "c"}) {
		t.Fatal("global daily cap reached but CanShow returned true")
	}
	if !m.CanShow(Campaign{ID: "c", ExcludeCaps: true}) {
		t.Fatal("ExcludeCaps campaign must bypass all caps")
	}
}

func TestSessionCapResetsOnNewSession(t *testing.T) {
	m := New(newTestStore(t))
	m.UpdateLimits(100, 1)

	m.DidShow(Campaign{ID: "a"})
	if m.CanShow(Campaign{ID: "b"}) {
		t.Fatal("session cap reached but CanShow returned true")
	}
	m.SessionCreated()
	if !m.CanShow(Campaign{ID: "b"}) {
		t.Fatal("session counters not reset by SessionCreated")
	}
}

func TestCampaignSessionCap(t *testing.T) {
	m := New(newTestStore(t))
	c := Campaign{ID: "camp-1", MaxPerSession: 1}
	other := Campaign{ID: "camp-2"}

	if !m.CanShow(c) {
		t.Fatal("blocked before any show")
	}
	m.DidShow(c)
	if m.CanShow(c) {
		t.Fatal("per-session campaign cap reached but CanShow returned true")
	}
	if !m.CanShow(other) {
		t.Fatal("unrelated campaign blocked by another campaign's session cap")
	}
	m.SessionCreated()
	if !m.CanShow(c) {
		t.Fatal("per-session campaign counter not reset by SessionCreated")
	}
}

func TestCountersSurviveReload(t *testing.T) {
	st := newTestStore(t)
	m := New(st)
	c := Campaign{ID: "camp-1", MaxLifetime: 1}
	m.DidShow(c)
	m.UpdateLimits(7, 3)

	m2 := New(st)
	if m2.CanShow(c) {
		t.Fatal("lifetime counter lost across reload")
	}
	dayMax, sessionMax := m2.Limits()
	if dayMax != 7 || sessionMax != 3 {
		t.Fatalf("limits = (%d, %d), want (7, 3)", dayMax, sessionMax)
	}
}

func TestChangeUserResetsEverything(t *testing.T) {
	m := New(newTestStore(t))
	c := Campaign{ID: "camp-1", MaxLifetime: 1}
	m.DidShow(c)

	m.ChangeUser()
	if !m.CanShow(c) {
		t.Fatal("ChangeUser did not reset campaign counters")
	}
}

func TestRemoveCampaigns(t *testing.T) {
	m := New(newTestStore(t))
	c := Campaign{ID: "stale", MaxLifetime: 1}
	m.DidShow(c)

	m.RemoveCampaigns([]string{"stale"})
	if !m.CanShow(c) {
		t.Fatal("removed campaign still capped")
	}
}
