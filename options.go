// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package comet

import (
	"github.com/goccy/go-json"

	"github.com/cometsdk/comet-go/internal/inapp"
)

// Renderer displays prepared in-app notifications. The host calls
// Instance.DismissInApp when the user closes one.
type Renderer = inapp.Renderer

// Notification is a display-ready in-app message handed to a Renderer.
type Notification = inapp.Notification

// InboxSink consumes the opaque inbox payload the backend may attach
// to a response. The SDK does not interpret it.
type InboxSink interface {
	HandleInbox(raw json.RawMessage)
}

// TokenProvider supplies push tokens by provider type, re-registered
// after an identity switch.
type TokenProvider interface {
	Tokens() map[string]string
}

// DeviceIDProvider supplies an externally sourced device GUID. When it
// returns non-empty, the SDK adopts it instead of minting one.
type DeviceIDProvider interface {
	DeviceID() string
}

// Option customizes an Instance at construction.
type Option func(*Instance)

// WithRenderer wires the in-app display collaborator. Without one,
// notifications stay queued and are never marked shown.
func WithRenderer(r Renderer) Option {
	return func(i *Instance) { i.renderer = r }
}

// WithInboxSink wires the inbox payload consumer.
func WithInboxSink(s InboxSink) Option {
	return func(i *Instance) { i.inbox = s }
}

// WithTokenProvider wires push-token re-registration.
func WithTokenProvider(p TokenProvider) Option {
	return func(i *Instance) { i.tokens = p }
}

// WithDeviceIDProvider wires an external device GUID source, consulted
// once at construction.
func WithDeviceIDProvider(p DeviceIDProvider) Option {
	return func(i *Instance) { i.deviceIDSource = p }
}
