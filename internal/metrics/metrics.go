// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package metrics instruments the SDK pipeline with Prometheus
// collectors. Registration uses the default registry via promauto; a
// host application that scrapes its own registry can gather these
// through prometheus.DefaultGatherer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsQueued counts events accepted into the durable queue,
	// labelled by table ("evt", "prof").
	EventsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comet_events_queued_total",
			Help: "Total number of events persisted to the local queue",
		},
		[]string{"table"},
	)

	// EventsDropped counts events rejected before persistence.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comet_events_dropped_total",
			Help: "Total number of events dropped before persistence",
		},
		[]string{"reason"}, // "opt_out", "low_disk", "store_error"
	)

	// FlushDuration observes one full flush cycle, network included.
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "comet_flush_duration_seconds",
			Help:    "Duration of queue flush cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BatchesSent counts acknowledged batch POSTs.
	BatchesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comet_batches_sent_total",
		Help: "Total number of batches acknowledged by the backend",
	})

	// SendFailures counts failed batch POSTs.
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comet_send_failures_total",
		Help: "Total number of failed batch sends",
	})

	// InAppShows counts notifications handed to the renderer.
	InAppShows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comet_inapp_shows_total",
		Help: "Total number of in-app notifications displayed",
	})

	// MuteActivations counts server-directed mute windows entered.
	MuteActivations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comet_mute_activations_total",
		Help: "Total number of mute windows entered",
	})

	// QueueDepth is the number of rows pending in the local queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "comet_queue_depth",
			Help: "Current number of events pending in the local queue",
		},
		[]string{"table"},
	)

	// IdentitySwitches counts identity resolutions by kind.
	IdentitySwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comet_identity_switches_total",
			Help: "Total number of identity switches",
		},
		[]string{"kind"}, // "own", "cached", "minted"
	)
)
