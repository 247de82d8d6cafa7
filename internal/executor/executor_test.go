// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package executor

import (
	"context"
	"sync"
	"testing"
	"time"
)

// startExecutor runs e.Serve on a goroutine and stops it on cleanup.
func startExecutor(t *testing.T, e *Executor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestPostRunsInOrder(t *testing.T) {
	e := New("test")
	startExecutor(t, e)

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 1; i <= 3; i++ {
		i := i
		e.Post(func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	for i, v := range got {
		if v != i+1 {
			t.Fatalf("tasks ran out of order: %v", got)
		}
	}
}

func TestDoRunsInlineOnOwnLoop(t *testing.T) {
	e := New("test")
	startExecutor(t, e)

	done := make(chan bool, 1)
	e.Post(func(ctx context.Context) {
		inline := false
		e.Do(ctx, func(context.Context) { inline = true })
		done <- inline
	})
	if !<-done {
		t.Fatal("Do from executor context did not run inline")
	}
}

func TestDoPostsFromForeignContext(t *testing.T) {
	e := New("test")
	startExecutor(t, e)

	done := make(chan struct{})
	e.Do(context.Background(), func(ctx context.Context) {
		if !e.Owns(ctx) {
			t.Error("posted task context not owned by executor")
		}
		close(done)
	})
	<-done
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	e := New("test")
	startExecutor(t, e)

	e.Post(func(context.Context) { panic("boom") })

	done := make(chan struct{})
	e.Post(func(context.Context) { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not survive task panic")
	}
}

func TestSchedulerDebounces(t *testing.T) {
	e := New("test")
	startExecutor(t, e)
	s := NewScheduler(e)

	var mu sync.Mutex
	fired := 0
	for i := 0; i < 5; i++ {
		s.Schedule("flush", 30*time.Millisecond, func(context.Context) {
			mu.Lock()
			fired++
			mu.Unlock()
		})
	}
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1 (re-arming must cancel the pending timer)", fired)
	}
}

func TestSchedulerCancel(t *testing.T) {
	e := New("test")
	startExecutor(t, e)
	s := NewScheduler(e)

	fired := make(chan struct{}, 1)
	s.Schedule("flush", 30*time.Millisecond, func(context.Context) {
		fired <- struct{}{}
	})
	s.Cancel("flush")

	select {
	case <-fired:
		t.Fatal("cancelled timer still fired")
	case <-time.After(100 * time.Millisecond):
	}
}
