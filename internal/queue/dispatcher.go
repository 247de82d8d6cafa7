// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package queue is the heart of the pipeline: a single-writer
// dispatcher that annotates tracking calls, persists them to the
// durable store, and drains them to the backend in debounced, batched
// flushes. All queue mutation happens on the network executor.
package queue

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"

	"github.com/cometsdk/comet-go/internal/config"
	"github.com/cometsdk/comet-go/internal/executor"
	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/metrics"
	"github.com/cometsdk/comet-go/internal/profile"
	"github.com/cometsdk/comet-go/internal/response"
	"github.com/cometsdk/comet-go/internal/session"
	"github.com/cometsdk/comet-go/internal/store"
	"github.com/cometsdk/comet-go/internal/transport"
	"github.com/cometsdk/comet-go/internal/validation"
)

// EventAppLaunched is the system event that must reach the backend
// before any other raised event from the same launch.
const EventAppLaunched = "App Launched"

const flushTimer = "flush"

// Type tags an outgoing record on the wire.
type Type int

const (
	TypeEvent Type = iota
	TypeProfile
	TypePage
	TypePing
	TypeData
)

func (t Type) wire() string {
	switch t {
	case TypeProfile:
		return "profile"
	case TypePage:
		return "page"
	case TypePing:
		return "ping"
	case TypeData:
		return "data"
	default:
		return "event"
	}
}

func (t Type) table() store.Table {
	if t == TypeProfile {
		return store.ProfileEvents
	}
	return store.Events
}

// Deps wires the dispatcher's collaborators.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Sender    *transport.Sender
	Session   *session.Tracker
	Profile   *profile.Cache
	ARP       *response.ARP
	Records   *validation.RecordQueue
	Processor *response.Processor
	Exec      *executor.Executor
	Sched     *executor.Scheduler

	// DeviceID supplies the current device identity for batch headers.
	DeviceID func() string
}

// pending is one record travelling through the enqueue pipeline.
type pending struct {
	typ      Type
	name     string
	data     map[string]interface{}
	attempts int
	force    bool
	bo       backoff.BackOff
}

// Dispatcher serializes enqueue, persist and flush.
type Dispatcher struct {
	deps Deps

	mu           sync.Mutex
	optOut       bool
	offline      bool
	launchQueued bool
	requeueSeq   int
}

// New builds a dispatcher. Offline starts from config.
func New(deps Deps) *Dispatcher {
	return &Dispatcher{deps: deps, offline: deps.Config.Offline}
}

// Queue accepts a record asynchronously and returns immediately.
func (q *Dispatcher) Queue(typ Type, name string, data map[string]interface{}) {
	ev := pending{typ: typ, name: name, data: data}
	q.deps.Exec.Post(func(ctx context.Context) {
		q.process(ctx, ev)
	})
}

// QueueInline runs the enqueue pipeline on the caller's executor
// context. For tasks already running on the network executor.
func (q *Dispatcher) QueueInline(ctx context.Context, typ Type, name string, data map[string]interface{}) {
	q.deps.Exec.Do(ctx, func(ctx context.Context) {
		q.process(ctx, pending{typ: typ, name: name, data: data})
	})
}

// process is the per-record pipeline: opt-out gate, app-launch
// ordering deferral, annotate, persist, flush schedule.
func (q *Dispatcher) process(ctx context.Context, ev pending) {
	if q.OptedOut() {
		metrics.EventsDropped.WithLabelValues("opt_out").Inc()
		return
	}

	if ev.typ == TypeEvent && ev.name == EventAppLaunched {
		q.mu.Lock()
		q.launchQueued = true
		q.mu.Unlock()
	} else if q.shouldDefer(ev) {
		q.requeue(ev)
		return
	}

	payload, err := json.Marshal(q.annotate(ev))
	if err != nil {
		logging.Error().Err(err).Str("event", ev.name).Msg("event marshal failed")
		metrics.EventsDropped.WithLabelValues("store_error").Inc()
		return
	}

	table := ev.typ.table()
	if _, err := q.deps.Store.Add(table, payload); err != nil {
		reason := "store_error"
		if err == store.ErrLowDisk {
			reason = "low_disk"
		}
		logging.Warn().Err(err).Str("event", ev.name).Msg("event dropped")
		metrics.EventsDropped.WithLabelValues(reason).Inc()
		return
	}
	metrics.EventsQueued.WithLabelValues(string(table)).Inc()

	if ev.typ == TypeEvent || ev.typ == TypePage {
		q.deps.Profile.RecordEvent(ev.name, time.Now())
	}

	q.scheduleFlush()
}

// shouldDefer holds raised events back until App Launched is queued,
// preserving launch-first ordering.
func (q *Dispatcher) shouldDefer(ev pending) bool {
	if ev.force {
		return false
	}
	if ev.typ != TypeEvent && ev.typ != TypePage {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.launchQueued
}

// requeue retries a deferred event with constant backoff. Past the
// retry budget the event is queued anyway rather than lost.
func (q *Dispatcher) requeue(ev pending) {
	if ev.attempts >= q.deps.Config.LaunchRequeueMax {
		logging.Debug().Str("event", ev.name).Msg("launch never queued, enqueueing deferred event anyway")
		ev.force = true
		q.deps.Exec.Post(func(ctx context.Context) {
			q.process(ctx, ev)
		})
		return
	}
	if ev.bo == nil {
		ev.bo = backoff.NewConstantBackOff(q.deps.Config.LaunchRequeueDelay)
	}
	ev.attempts++

	q.mu.Lock()
	q.requeueSeq++
	name := fmt.Sprintf("requeue-%d", q.requeueSeq)
	q.mu.Unlock()

	q.deps.Sched.Schedule(name, ev.bo.NextBackOff(), func(ctx context.Context) {
		q.process(ctx, ev)
	})
}

// annotate wraps the payload with session, screen and ordering state.
func (q *Dispatcher) annotate(ev pending) map[string]interface{} {
	id, first, lastLen := q.deps.Session.Current()
	_, screens := q.deps.Session.Screen()

	m := map[string]interface{}{
		"type": ev.typ.wire(),
		"ep":   time.Now().Unix(),
		"s":    id,
		"pg":   screens,
		"f":    first,
		"lsl":  lastLen,
	}
	switch ev.typ {
	case TypeProfile:
		m["profile"] = ev.data
	default:
		m["evtName"] = ev.name
		if ev.data != nil {
			m["evtData"] = ev.data
		}
	}
	if verrs := q.deps.Records.Drain(); len(verrs) > 0 {
		m["verrs"] = verrs
	}
	return m
}

// scheduleFlush debounces: only the latest pending flush survives.
func (q *Dispatcher) scheduleFlush() {
	q.deps.Sched.Schedule(flushTimer, q.deps.Config.FlushInterval, q.flushTask)
}

// Flush forces an immediate flush cycle, bypassing the debounce.
func (q *Dispatcher) Flush() {
	q.deps.Sched.Cancel(flushTimer)
	q.deps.Exec.Post(q.flushTask)
}

// FlushNow runs one flush cycle inline. Callers must already be on
// the network executor.
func (q *Dispatcher) FlushNow(ctx context.Context) {
	q.deps.Exec.Do(ctx, q.flushTask)
}

// flushTask drains up to MaxFlushBatches batches: events table first,
// then profile table. Any failure stops the cycle without deleting.
func (q *Dispatcher) flushTask(ctx context.Context) {
	if q.IsOffline() {
		return
	}
	if q.deps.Sender.Muted() {
		return
	}
	start := time.Now()
	defer func() {
		metrics.FlushDuration.Observe(time.Since(start).Seconds())
		q.updateDepth()
	}()

	q.purgeExpired()

	if q.deps.Sender.NeedsHandshake() {
		if err := q.deps.Sender.Handshake(ctx); err != nil {
			if err == transport.ErrMuted {
				q.onMuted(ctx)
				return
			}
			logging.Warn().Err(err).Msg("handshake failed, flush rescheduled")
			q.scheduleFlush()
			return
		}
	}

	maxBatches := q.deps.Config.MaxFlushBatches
	for sent := 0; maxBatches == 0 || sent < maxBatches; sent++ {
		table := store.Events
		batch, err := q.deps.Store.Fetch(table, q.deps.Config.BatchSize)
		if err != nil {
			logging.Error().Err(err).Msg("queue fetch failed")
			return
		}
		if batch.Empty() {
			table = store.ProfileEvents
			if batch, err = q.deps.Store.Fetch(table, q.deps.Config.BatchSize); err != nil {
				logging.Error().Err(err).Msg("queue fetch failed")
				return
			}
		}
		if batch.Empty() {
			return
		}

		res, err := q.deps.Sender.Send(ctx, q.buildBody(batch.Payloads))
		if err != nil {
			metrics.SendFailures.Inc()
			logging.Warn().Err(err).Msg("batch send failed, flush rescheduled")
			q.scheduleFlush()
			return
		}
		if res.Muted {
			metrics.MuteActivations.Inc()
			q.onMuted(ctx)
			return
		}
		if res.DomainChanged {
			// The batch may have landed on the old domain. Treat it
			// as unacknowledged and resend against the new one.
			q.scheduleFlush()
			return
		}

		q.deps.Processor.Process(res.Body)
		if err := q.deps.Store.DeleteUpTo(table, batch.LastID); err != nil {
			logging.Error().Err(err).Msg("batch delete failed")
			return
		}
		metrics.BatchesSent.Inc()
	}

	// Batch budget exhausted with rows possibly left; go again soon.
	q.scheduleFlush()
}

// buildBody assembles the wire body as a literal JSON array with the
// meta header first. Payloads are already serialized; they are spliced
// in as-is, never re-encoded.
func (q *Dispatcher) buildBody(payloads []json.RawMessage) []byte {
	var b bytes.Buffer
	b.WriteByte('[')
	hdr, err := json.Marshal(q.header())
	if err != nil {
		logging.Error().Err(err).Msg("header marshal failed")
		hdr = []byte("{}")
	}
	b.Write(hdr)
	for _, p := range payloads {
		b.WriteByte(',')
		b.Write(p)
	}
	b.WriteByte(']')
	return b.Bytes()
}

// header builds the meta record: identity, credentials, ARP echo,
// attribution and the server-assigned running counters.
func (q *Dispatcher) header() map[string]interface{} {
	h := map[string]interface{}{
		"type": "meta",
		"g":    q.deps.DeviceID(),
		"id":   q.deps.Config.AccountID,
		"tk":   q.deps.Config.Token,
	}
	if i, err := q.deps.Store.GetKVInt64(store.KeyCounterI); err == nil && i != 0 {
		h["_i"] = i
	}
	if j, err := q.deps.Store.GetKVInt64(store.KeyCounterJ); err == nil && j != 0 {
		h["_j"] = j
	}
	if frt, err := q.deps.Store.GetKVInt64(store.KeyFirstRequestTS); err == nil && frt != 0 {
		h["frt"] = frt
	}
	if lrt, err := q.deps.Store.GetKVInt64(store.KeyLastRequestTS); err == nil && lrt != 0 {
		h["lrt"] = lrt
	}
	if arp := q.deps.ARP.Snapshot(); len(arp) > 0 {
		h["arp"] = arp
	}
	if src, med, camp := q.deps.Session.UTM(); src != "" || med != "" || camp != "" {
		h["ref"] = map[string]string{"us": src, "um": med, "uc": camp}
	}
	return h
}

// onMuted clears everything the mute window invalidates. The sender
// has already persisted the mute timestamp and dropped the domain.
func (q *Dispatcher) onMuted(ctx context.Context) {
	logging.Info().Msg("mute directive received, clearing queues")
	q.deps.Exec.Do(ctx, func(context.Context) {
		q.ClearQueues()
	})
}

// ClearQueues drops all pending rows and per-user request context.
// Used on mute and identity switch.
func (q *Dispatcher) ClearQueues() {
	for _, table := range []store.Table{store.Events, store.ProfileEvents} {
		if err := q.deps.Store.DeleteAll(table); err != nil {
			logging.Error().Err(err).Str("table", string(table)).Msg("queue clear failed")
		}
	}
	q.deps.ARP.Clear()
	if err := q.deps.Store.DeleteKV(store.KeyFirstRequestTS, store.KeyLastRequestTS); err != nil {
		logging.Warn().Err(err).Msg("request timestamp clear failed")
	}
	q.updateDepth()
}

// ResetLaunch forgets that App Launched was queued. Identity switch
// calls this before re-firing the launch event.
func (q *Dispatcher) ResetLaunch() {
	q.mu.Lock()
	q.launchQueued = false
	q.mu.Unlock()
}

// SetOptOut toggles the drop-everything gate.
func (q *Dispatcher) SetOptOut(v bool) {
	q.mu.Lock()
	q.optOut = v
	q.mu.Unlock()
}

// OptedOut is safe to read from any goroutine.
func (q *Dispatcher) OptedOut() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.optOut
}

// SetOffline toggles network sends while still queueing locally.
func (q *Dispatcher) SetOffline(v bool) {
	q.mu.Lock()
	q.offline = v
	q.mu.Unlock()
	if !v {
		q.Flush()
	}
}

// IsOffline is safe to read from any goroutine.
func (q *Dispatcher) IsOffline() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.offline
}

func (q *Dispatcher) purgeExpired() {
	for _, table := range []store.Table{store.Events, store.ProfileEvents} {
		if n, err := q.deps.Store.PurgeExpired(table, q.deps.Config.EventLifetime); err == nil && n > 0 {
			logging.Debug().Int("purged", n).Str("table", string(table)).Msg("expired events dropped")
		}
	}
}

func (q *Dispatcher) updateDepth() {
	for _, table := range []store.Table{store.Events, store.ProfileEvents} {
		if n, err := q.deps.Store.Count(table); err == nil {
			metrics.QueueDepth.WithLabelValues(string(table)).Set(float64(n))
		}
	}
}
