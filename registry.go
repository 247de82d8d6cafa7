// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

package comet

import (
	"fmt"
	"sync"
)

// Registry maps account ids to running instances, so an application
// embedding several accounts gets one isolated pipeline per account.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Instance
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]*Instance)}
}

// Instance returns the instance for cfg.AccountID, building it on
// first use. Later calls with the same account id return the original
// instance and ignore the new config.
func (r *Registry) Instance(cfg Config, opts ...Option) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[cfg.AccountID]; ok {
		return inst, nil
	}
	inst, err := NewInstance(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build instance for account %q: %w", cfg.AccountID, err)
	}
	r.instances[cfg.AccountID] = inst
	return inst, nil
}

// Close shuts down every registered instance.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, inst := range r.instances {
		if err := inst.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close instance %q: %w", id, err)
		}
		delete(r.instances, id)
	}
	return firstErr
}
