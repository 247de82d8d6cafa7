// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package queue

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/cometsdk/comet-go/internal/config"
	"github.com/cometsdk/comet-go/internal/executor"
	"github.com/cometsdk/comet-go/internal/fcap"
	"github.com/cometsdk/comet-go/internal/profile"
	"github.com/cometsdk/comet-go/internal/response"
	"github.com/cometsdk/comet-go/internal/session"
	"github.com/cometsdk/comet-go/internal/store"
	"github.com/cometsdk/comet-go/internal/transport"
	"github.com/cometsdk/comet-go/internal/validation"
)

// capture records every batch body a test server receives.
type capture struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (c *capture) add(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, b)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func (c *capture) first() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		return nil
	}
	return c.bodies[0]
}

type fixture struct {
	d      *Dispatcher
	st     *store.Store
	sender *transport.Sender
	cap    *capture
}

// newFixture assembles a dispatcher against an httptest backend with
// a short debounce window.
func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.AccountID = "ACCT-1"
	cfg.Token = "TOKEN-1"
	cfg.FlushInterval = 50 * time.Millisecond
	cfg.LaunchRequeueDelay = 20 * time.Millisecond

	st, err := store.Open(store.Options{
		Path:      t.TempDir(),
		AccountID: cfg.AccountID,
		InMemory:  true,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rec := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.add(b)
		if handler != nil {
			handler(w, r)
			return
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	sender := transport.NewForTest(cfg, st, srv.URL)
	u, _ := url.Parse(srv.URL)
	if err := st.SetKVString(store.KeyDomain, u.Host); err != nil {
		t.Fatalf("seed domain: %v", err)
	}

	ex := executor.New("net")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ex.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	tracker := session.New(st, cfg.SessionTimeout)
	tracker.Resume(time.Now())
	cache := profile.New(st)
	arp := response.NewARP(st)

	d := New(Deps{
		Config:    cfg,
		Store:     st,
		Sender:    sender,
		Session:   tracker,
		Profile:   cache,
		ARP:       arp,
		Records:   validation.NewRecordQueue(),
		Processor: response.New(response.Deps{Store: st, Profile: cache, Fcap: fcap.New(st), ARP: arp}),
		Exec:      ex,
		Sched:     executor.NewScheduler(ex),
		DeviceID:  func() string { return "dev-1" },
	})
	return &fixture{d: d, st: st, sender: sender, cap: rec}
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", desc)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestFlushSendsMetaFirstAndDeletesBatch(t *testing.T) {
	f := newFixture(t, nil)

	f.d.Queue(TypeEvent, EventAppLaunched, nil)
	f.d.Queue(TypeEvent, "Product Viewed", map[string]interface{}{"sku": "X1"})

	waitFor(t, "batch send", func() bool { return f.cap.count() > 0 })
	waitFor(t, "batch deletion", func() bool {
		n, _ := f.st.Count(store.Events)
		return n == 0
	})

	var batch []map[string]interface{}
	if err := json.Unmarshal(f.cap.first(), &batch); err != nil {
		t.Fatalf("body is not a JSON array: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("batch length = %d, want meta + 2 events", len(batch))
	}
	if batch[0]["type"] != "meta" || batch[0]["g"] != "dev-1" {
		t.Fatalf("first element = %v, want meta header", batch[0])
	}
	if batch[1]["evtName"] != EventAppLaunched {
		t.Fatalf("first event = %v, want %s", batch[1]["evtName"], EventAppLaunched)
	}
	if batch[2]["evtData"].(map[string]interface{})["sku"] != "X1" {
		t.Fatalf("event data not carried: %v", batch[2])
	}
	if _, ok := batch[1]["s"]; !ok {
		t.Fatal("events not annotated with session id")
	}
}

func TestRaisedEventsDeferBehindAppLaunch(t *testing.T) {
	f := newFixture(t, nil)
	f.d.SetOffline(true) // inspect the store, not the wire

	f.d.Queue(TypeEvent, "Early Bird", nil)
	time.Sleep(60 * time.Millisecond)
	f.d.Queue(TypeEvent, EventAppLaunched, nil)

	waitFor(t, "both events persisted", func() bool {
		n, _ := f.st.Count(store.Events)
		return n == 2
	})

	batch, err := f.st.Fetch(store.Events, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var first map[string]interface{}
	if err := json.Unmarshal(batch.Payloads[0], &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first["evtName"] != EventAppLaunched {
		t.Fatalf("first persisted event = %v, want %s", first["evtName"], EventAppLaunched)
	}
}

func TestSendFailureKeepsRows(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	})

	f.d.Queue(TypeEvent, EventAppLaunched, nil)
	waitFor(t, "send attempt", func() bool { return f.cap.count() > 0 })

	time.Sleep(100 * time.Millisecond)
	n, _ := f.st.Count(store.Events)
	if n != 1 {
		t.Fatalf("row count after failed send = %d, want 1 (nothing deleted)", n)
	}
}

func TestMuteClearsAllQueues(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Comet-Mute", "true")
		w.Write([]byte(`{}`))
	})

	f.d.Queue(TypeEvent, EventAppLaunched, nil)
	f.d.Queue(TypeProfile, "", map[string]interface{}{"Name": "Ada"})

	waitFor(t, "mute processing", func() bool { return f.sender.Muted() })
	waitFor(t, "queues cleared", func() bool {
		ne, _ := f.st.Count(store.Events)
		np, _ := f.st.Count(store.ProfileEvents)
		return ne == 0 && np == 0
	})
}

func TestDomainChangeLeavesBatchUnacknowledged(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Comet-Domain-Name", "elsewhere.invalid")
		w.Write([]byte(`{}`))
	})

	f.d.Queue(TypeEvent, EventAppLaunched, nil)
	waitFor(t, "send attempt", func() bool { return f.cap.count() > 0 })

	time.Sleep(100 * time.Millisecond)
	n, _ := f.st.Count(store.Events)
	if n != 1 {
		t.Fatalf("row count after domain change = %d, want 1 (treated as unacked)", n)
	}
	if got := f.sender.Domain(); got != "elsewhere.invalid" {
		t.Fatalf("domain = %q, want elsewhere.invalid", got)
	}
}

func TestOptOutDropsEverything(t *testing.T) {
	f := newFixture(t, nil)
	f.d.SetOptOut(true)

	f.d.Queue(TypeEvent, EventAppLaunched, nil)
	f.d.Queue(TypeProfile, "", map[string]interface{}{"Name": "Ada"})

	time.Sleep(100 * time.Millisecond)
	ne, _ := f.st.Count(store.Events)
	np, _ := f.st.Count(store.ProfileEvents)
	if ne != 0 || np != 0 {
		t.Fatalf("counts = (%d, %d), want (0, 0) while opted out", ne, np)
	}
}

func TestProfilePushUsesProfileTable(t *testing.T) {
	f := newFixture(t, nil)
	f.d.SetOffline(true)

	f.d.Queue(TypeProfile, "", map[string]interface{}{"Name": "Ada"})
	waitFor(t, "profile row", func() bool {
		n, _ := f.st.Count(store.ProfileEvents)
		return n == 1
	})

	batch, _ := f.st.Fetch(store.ProfileEvents, 1)
	var rec map[string]interface{}
	if err := json.Unmarshal(batch.Payloads[0], &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["type"] != "profile" {
		t.Fatalf("type = %v, want profile", rec["type"])
	}
	if rec["profile"].(map[string]interface{})["Name"] != "Ada" {
		t.Fatalf("profile payload missing: %v", rec)
	}
}
