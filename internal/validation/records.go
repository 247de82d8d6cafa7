// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package validation

import "sync"

const (
	recordQueueCap  = 50
	recordDropCount = 10
)

// RecordQueue collects non-fatal validation Results until the dispatcher
// drains them into the next outgoing event. Bounded at 50 entries; on
// overflow the oldest 10 are dropped so a burst of malformed input cannot
// grow memory without bound.
type RecordQueue struct {
	mu      sync.Mutex
	results []Result
}

// NewRecordQueue returns an empty RecordQueue.
func NewRecordQueue() *RecordQueue {
	return &RecordQueue{}
}

// Push appends a result. Nil results are ignored so cleaner return values
// can be pushed unconditionally.
func (q *RecordQueue) Push(res *Result) {
	if res == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.results) >= recordQueueCap {
		q.results = append(q.results[:0], q.results[recordDropCount:]...)
	}
	q.results = append(q.results, *res)
}

// Drain returns all pending results and empties the queue.
func (q *RecordQueue) Drain() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.results) == 0 {
		return nil
	}
	out := make([]Result, len(q.results))
	copy(out, q.results)
	q.results = q.results[:0]
	return out
}

// Len reports the number of pending results.
func (q *RecordQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.results)
}
