// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package executor serializes SDK work onto a single goroutine so that
// queue, session and profile state never need fine-grained locking on
// the hot path. Each Executor is a suture service; supervision restarts
// the loop if a task panics through the recover guard.
package executor

import (
	"context"
	"fmt"

	"github.com/cometsdk/comet-go/internal/logging"
)

// Task is a unit of work. The context it receives carries the owner
// token of the executor it runs on and is cancelled on shutdown.
type Task func(ctx context.Context)

type ownerKey struct{}

const defaultBuffer = 512

// Executor runs posted tasks one at a time, in post order.
type Executor struct {
	name string
	jobs chan Task
}

// New returns a stopped executor. Run it under a supervisor via Serve.
func New(name string) *Executor {
	return &Executor{
		name: name,
		jobs: make(chan Task, defaultBuffer),
	}
}

// Serve drains the task queue until ctx is cancelled. It implements
// suture.Service.
func (e *Executor) Serve(ctx context.Context) error {
	ctx = context.WithValue(ctx, ownerKey{}, e)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-e.jobs:
			e.run(ctx, task)
		}
	}
}

func (e *Executor) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("executor", e.name).
				Interface("panic", r).
				Msg("task panicked")
		}
	}()
	task(ctx)
}

// Post enqueues task for asynchronous execution. Safe from any
// goroutine, including tasks already running on this executor.
func (e *Executor) Post(task Task) {
	select {
	case e.jobs <- task:
	default:
		logging.Warn().Str("executor", e.name).Msg("task queue full, dropping task")
	}
}

// Do runs task inline when ctx already belongs to this executor, and
// posts it otherwise. Inline execution keeps nested calls from
// deadlocking on their own queue and preserves caller ordering.
func (e *Executor) Do(ctx context.Context, task Task) {
	if e.Owns(ctx) {
		task(ctx)
		return
	}
	e.Post(task)
}

// Owns reports whether ctx originated from this executor's loop.
func (e *Executor) Owns(ctx context.Context) bool {
	owner, _ := ctx.Value(ownerKey{}).(*Executor)
	return owner == e
}

// String identifies the executor in supervisor logs.
func (e *Executor) String() string {
	return fmt.Sprintf("executor-%s", e.name)
}
