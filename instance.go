// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package comet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/cometsdk/comet-go/internal/config"
	"github.com/cometsdk/comet-go/internal/executor"
	"github.com/cometsdk/comet-go/internal/fcap"
	"github.com/cometsdk/comet-go/internal/identity"
	"github.com/cometsdk/comet-go/internal/inapp"
	"github.com/cometsdk/comet-go/internal/logging"
	"github.com/cometsdk/comet-go/internal/metrics"
	"github.com/cometsdk/comet-go/internal/profile"
	"github.com/cometsdk/comet-go/internal/queue"
	"github.com/cometsdk/comet-go/internal/response"
	"github.com/cometsdk/comet-go/internal/session"
	"github.com/cometsdk/comet-go/internal/store"
	"github.com/cometsdk/comet-go/internal/transport"
	"github.com/cometsdk/comet-go/internal/validation"
)

// EventCharged is the purchase event name used by PushChargedEvent.
const EventCharged = "Charged"

// Instance is one account's pipeline: durable store, session tracker,
// dispatcher, transport and in-app gate, supervised as a unit.
type Instance struct {
	cfg *config.Config
	st  *store.Store

	netExec   *executor.Executor
	notifExec *executor.Executor
	sched     *executor.Scheduler
	sup       *suture.Supervisor

	tracker    *session.Tracker
	cache      *profile.Cache
	caps       *fcap.Manager
	arp        *response.ARP
	records    *validation.RecordQueue
	sender     *transport.Sender
	gate       *inapp.Gate
	dispatcher *queue.Dispatcher
	deviceID   *identity.DeviceID
	resolver   *identity.Resolver

	renderer       Renderer
	inbox          InboxSink
	tokens         TokenProvider
	deviceIDSource DeviceIDProvider

	// senderFactory lets tests point the transport at a local server.
	senderFactory func(*config.Config, *store.Store) *transport.Sender

	mu      sync.Mutex
	cancel  context.CancelFunc
	errCh   <-chan error
	started bool
}

// NewInstance builds a stopped instance from cfg. Call Start before
// tracking.
func NewInstance(cfg Config, opts ...Option) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	st, err := store.Open(store.Options{
		Path:             cfg.StorePath,
		AccountID:        cfg.AccountID,
		MinFreeDiskBytes: cfg.MinFreeDiskBytes,
		EntryTTL:         cfg.EventLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	i := &Instance{cfg: &cfg, st: st}
	for _, opt := range opts {
		opt(i)
	}
	i.build()
	return i, nil
}

// build wires the pipeline. Split out so tests can rebuild against an
// in-memory store.
func (i *Instance) build() {
	i.netExec = executor.New("net")
	i.notifExec = executor.New("notif")
	i.sched = executor.NewScheduler(i.netExec)

	i.tracker = session.New(i.st, i.cfg.SessionTimeout)
	i.cache = profile.New(i.st)
	i.caps = fcap.New(i.st)
	i.arp = response.NewARP(i.st)
	i.records = validation.NewRecordQueue()
	if i.senderFactory != nil {
		i.sender = i.senderFactory(i.cfg, i.st)
	} else {
		i.sender = transport.New(i.cfg, i.st)
	}
	i.deviceID = identity.LoadDeviceID(i.st)
	if i.deviceIDSource != nil {
		i.deviceID.Set(i.deviceIDSource.DeviceID())
	}
	i.resolver = identity.NewResolver(i.st)
	i.gate = inapp.New(i.st, i.caps, i.notifExec, i.renderer)

	processor := response.New(response.Deps{
		Store:         i.st,
		Profile:       i.cache,
		Fcap:          i.caps,
		ARP:           i.arp,
		SetDeviceID:   i.deviceID.Set,
		EnqueueInApps: i.gate.Enqueue,
		Inbox:         i.inboxSink(),
	})

	i.dispatcher = queue.New(queue.Deps{
		Config:    i.cfg,
		Store:     i.st,
		Sender:    i.sender,
		Session:   i.tracker,
		Profile:   i.cache,
		ARP:       i.arp,
		Records:   i.records,
		Processor: processor,
		Exec:      i.netExec,
		Sched:     i.sched,
		DeviceID:  i.deviceID.Get,
	})

	handler := &sutureslog.Handler{Logger: logging.Slog()}
	i.sup = suture.New("comet-"+i.cfg.AccountID, suture.Spec{
		EventHook: handler.MustHook(),
	})
	i.sup.Add(i.netExec)
	i.sup.Add(i.notifExec)
}

func (i *Instance) inboxSink() func(json.RawMessage) {
	if i.inbox == nil {
		return nil
	}
	return func(raw json.RawMessage) { i.inbox.HandleInbox(raw) }
}

// Start runs the executors under supervision until ctx is cancelled or
// Close is called. The returned channel yields the supervisor's exit.
func (i *Instance) Start(ctx context.Context) <-chan error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return i.errCh
	}
	ctx, i.cancel = context.WithCancel(ctx)
	i.errCh = i.sup.ServeBackground(ctx)
	i.started = true

	i.gate.RestorePending()
	logging.Info().Str("account", i.cfg.AccountID).Msg("instance started")
	return i.errCh
}

// Close stops the executors and closes the store.
func (i *Instance) Close() error {
	i.mu.Lock()
	if i.cancel != nil {
		i.cancel()
		if i.errCh != nil {
			<-i.errCh
		}
	}
	i.sched.CancelAll()
	i.started = false
	i.mu.Unlock()
	return i.st.Close()
}

// Resume signals a foreground transition: the lazy session-timeout
// check runs, a session is created if needed, and deferred in-app
// notifications may display.
func (i *Instance) Resume() {
	now := time.Now()
	if i.tracker.Resume(now) {
		i.onSessionCreated()
	}
	i.gate.SetForeground(true)
}

// Pause signals a background transition: last-seen is recorded, in-app
// display defers, and pending events flush.
func (i *Instance) Pause() {
	i.tracker.Pause(time.Now())
	i.gate.SetForeground(false)
	i.dispatcher.Flush()
}

// onSessionCreated fires the launch-ordering events for a new session.
func (i *Instance) onSessionCreated() {
	i.caps.SessionCreated()
	i.dispatcher.Queue(queue.TypeEvent, queue.EventAppLaunched, nil)
	// Initial profile sync request.
	i.dispatcher.Queue(queue.TypePing, "", nil)
}

// PushEvent validates and queues a custom event. Restricted system
// names are dropped with a validation record.
func (i *Instance) PushEvent(name string, data map[string]interface{}) {
	clean, res, err := validation.CleanEventName(name)
	i.records.Push(res)
	if err != nil {
		logging.Warn().Err(err).Str("event", name).Msg("event rejected")
		return
	}
	i.ensureSession()
	i.dispatcher.Queue(queue.TypeEvent, clean, i.cleanData(data, validation.Event))
}

// PushChargedEvent queues a purchase event with per-item sanitization.
func (i *Instance) PushChargedEvent(details map[string]interface{}, items []map[string]interface{}) {
	data := i.cleanData(details, validation.Event)
	if data == nil {
		data = make(map[string]interface{})
	}
	cleanItems := make([]interface{}, 0, len(items))
	for _, item := range items {
		cleanItems = append(cleanItems, i.cleanData(item, validation.Event))
	}
	data["Items"] = cleanItems
	i.ensureSession()
	i.dispatcher.Queue(queue.TypeEvent, EventCharged, data)
}

// PushProfile validates fields, applies them to the local cache
// optimistically, and queues a profile push.
func (i *Instance) PushProfile(fields map[string]interface{}) {
	clean := i.cleanData(fields, validation.Profile)
	if len(clean) == 0 {
		return
	}
	for k, v := range clean {
		i.cache.Set(k, v)
	}
	i.ensureSession()
	i.dispatcher.Queue(queue.TypeProfile, "", clean)
}

// MultiValueOp re-exports the profile merge operations.
type MultiValueOp = profile.MultiValueOp

// Multi-value operations for set-like profile fields.
const (
	SetValues    = profile.SetValues
	AddValues    = profile.AddValues
	RemoveValues = profile.RemoveValues
)

// PushMultiValue merges values into the set-like profile field key and
// queues the resulting state.
func (i *Instance) PushMultiValue(key string, values []string, op MultiValueOp) {
	cleanKey, res := validation.CleanObjectKey(key)
	i.records.Push(res)
	if cleanKey == "" {
		return
	}
	cleanValues := make([]string, 0, len(values))
	for _, v := range values {
		cv, r := validation.CleanMultiValue(v)
		i.records.Push(r)
		if cv != "" {
			cleanValues = append(cleanValues, cv)
		}
	}
	merged := i.cache.ApplyMultiValue(cleanKey, cleanValues, op)
	i.ensureSession()
	i.dispatcher.Queue(queue.TypeProfile, "", map[string]interface{}{cleanKey: merged})
}

// RecordScreen notes a screen visit and queues a page event. Repeat
// visits to the same screen do not advance the screen counter.
func (i *Instance) RecordScreen(name string) {
	i.ensureSession()
	i.tracker.RecordScreen(name)
	i.dispatcher.Queue(queue.TypePage, name, nil)
}

// SetUTM records attribution parameters echoed in batch headers.
func (i *Instance) SetUTM(source, medium, campaign string) {
	i.tracker.SetUTM(source, medium, campaign)
}

// PushNotificationViewed ingests a push-viewed signal. System event,
// bypasses restricted-name validation.
func (i *Instance) PushNotificationViewed(campaignID string) {
	i.notificationEvent("notificationViewed", campaignID)
}

// PushNotificationClicked ingests a push-clicked signal.
func (i *Instance) PushNotificationClicked(campaignID string) {
	i.notificationEvent("notificationClicked", campaignID)
}

func (i *Instance) notificationEvent(name, campaignID string) {
	if campaignID == "" {
		return
	}
	i.ensureSession()
	i.dispatcher.Queue(queue.TypeEvent, name, map[string]interface{}{"campaignId": campaignID})
}

// DismissInApp reports that the user closed the displaying in-app
// notification. Stale ids are ignored.
func (i *Instance) DismissInApp(campaignID string) {
	i.gate.Dismiss(campaignID)
}

// OnUserLogin switches the active identity. Resolution and the reset
// sequence run on the network executor; duplicate concurrent calls for
// the same payload coalesce into one switch.
func (i *Instance) OnUserLogin(fields map[string]interface{}) {
	clean := i.cleanData(fields, validation.Profile)
	if len(clean) == 0 {
		return
	}
	if !i.resolver.BeginSwitch(clean) {
		logging.Debug().Msg("identical identity switch already in flight")
		return
	}
	i.netExec.Post(func(ctx context.Context) {
		defer i.resolver.EndSwitch()
		i.switchIdentity(ctx, clean)
	})
}

// switchIdentity runs the strict reset order: flush and clear queues,
// reset caches and counters, clear session, adopt the GUID, re-fire
// launch, push the profile, re-register tokens.
func (i *Instance) switchIdentity(ctx context.Context, fields map[string]interface{}) {
	current := i.deviceID.Get()
	guid, kind := i.resolver.Resolve(current, fields)
	metrics.IdentitySwitches.WithLabelValues(kind.String()).Inc()

	if kind == identity.KindOwn {
		i.resolver.Remember(current, fields)
		for k, v := range fields {
			i.cache.Set(k, v)
		}
		i.dispatcher.QueueInline(ctx, queue.TypeProfile, "", fields)
		return
	}

	logging.Info().Str("kind", kind.String()).Msg("switching identity")

	i.dispatcher.FlushNow(ctx)
	i.dispatcher.ClearQueues()
	i.cache.Reset()
	i.caps.ChangeUser()
	i.gate.ClearBacklog()
	i.tracker.ResetForNewUser()
	i.deviceID.Set(guid)
	i.resolver.Remember(guid, fields)
	i.dispatcher.ResetLaunch()

	i.tracker.EnsureActive(time.Now())
	i.caps.SessionCreated()
	i.dispatcher.QueueInline(ctx, queue.TypeEvent, queue.EventAppLaunched, nil)

	for k, v := range fields {
		i.cache.Set(k, v)
	}
	i.dispatcher.QueueInline(ctx, queue.TypeProfile, "", fields)

	if i.tokens != nil {
		for provider, token := range i.tokens.Tokens() {
			if token == "" {
				continue
			}
			i.dispatcher.QueueInline(ctx, queue.TypeData, "", map[string]interface{}{
				"tokenType": provider,
				"token":     token,
			})
		}
	}
}

// SetOptOut toggles the drop-everything gate. The transition itself is
// reported to the backend as a profile flag.
func (i *Instance) SetOptOut(optOut bool) {
	if optOut {
		i.dispatcher.Queue(queue.TypeProfile, "", map[string]interface{}{"optOut": true})
		// Flip the gate behind the queued flag so the flag itself
		// still reaches the wire.
		i.netExec.Post(func(context.Context) {
			i.dispatcher.SetOptOut(true)
		})
		return
	}
	i.dispatcher.SetOptOut(false)
	i.dispatcher.Queue(queue.TypeProfile, "", map[string]interface{}{"optOut": false})
}

// SetOffline toggles network sends. Events still queue locally while
// offline; going online triggers a flush.
func (i *Instance) SetOffline(offline bool) {
	i.dispatcher.SetOffline(offline)
}

// Flush forces an immediate flush cycle.
func (i *Instance) Flush() {
	i.dispatcher.Flush()
}

// DeviceID returns the current device GUID.
func (i *Instance) DeviceID() string {
	return i.deviceID.Get()
}

// ensureSession lazily creates a session on the first tracked call
// after launch or timeout.
func (i *Instance) ensureSession() {
	if i.tracker.EnsureActive(time.Now()) {
		i.onSessionCreated()
	}
}

// cleanData sanitizes an attribute map, collecting validation records.
func (i *Instance) cleanData(data map[string]interface{}, ctx validation.Context) map[string]interface{} {
	if data == nil {
		return nil
	}
	clean := make(map[string]interface{}, len(data))
	for k, v := range data {
		key, res := validation.CleanObjectKey(k)
		i.records.Push(res)
		if key == "" {
			continue
		}
		value, res, err := validation.CleanObjectValue(v, ctx)
		i.records.Push(res)
		if err != nil {
			logging.Debug().Err(err).Str("key", k).Msg("attribute dropped")
			continue
		}
		clean[key] = value
	}
	return clean
}
