// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline implements the work pipeline (spec.md §4.D): the
// deferred setup/retire workers and the startup scanner, all
// internal/service.Service implementations wired into one run.Group by
// cmd/pacctd. The periodic estimator and sampler services live in their own
// packages (internal/estimator, internal/rapl) since they own domain logic
// the pipeline only schedules.
package pipeline

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/saturneric/pacct-energy/internal/counter"
	"github.com/saturneric/pacct-energy/internal/model"
	"github.com/saturneric/pacct-energy/internal/registry"
)

// SetupWorker attaches hardware counters to newly forked tasks (spec.md
// §4.D item 1). Enqueue is the bpftrace Hooks.NeedsSetup callback; it must
// never block, so a saturated queue simply drops the pid. A dropped pid is
// not queued again: its record keeps NeedsSetup set, but later switch events
// only set that flag and do not call Enqueue, so the record stays not ready.
type SetupWorker struct {
	logger   *slog.Logger
	registry *registry.Registry
	table    [model.NumCounters]model.CounterDescriptor
	sem      chan struct{}
	queue    chan int32
}

// NewSetupWorker bounds concurrent in-flight attaches to budget (spec.md's
// SETUP_BUDGET, default 32).
func NewSetupWorker(reg *registry.Registry, table [model.NumCounters]model.CounterDescriptor, budget int, logger *slog.Logger) *SetupWorker {
	return &SetupWorker{
		logger:   logger.With("service", "setup-worker"),
		registry: reg,
		table:    table,
		sem:      make(chan struct{}, budget),
		queue:    make(chan int32, budget*4),
	}
}

func (w *SetupWorker) Name() string { return "setup-worker" }

func (w *SetupWorker) Enqueue(pid int32) {
	select {
	case w.queue <- pid:
	default:
		w.logger.Warn("setup queue saturated, dropping candidate", "pid", pid)
	}
}

func (w *SetupWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pid := <-w.queue:
			w.sem <- struct{}{}
			go func(pid int32) {
				defer func() { <-w.sem }()
				w.setup(pid)
			}(pid)
			runtime.Gosched()
		}
	}
}

func (w *SetupWorker) setup(pid int32) {
	rec, err := w.registry.Lookup(pid)
	if err != nil {
		return
	}
	defer w.registry.Put(rec)

	if rec.Ready.Load() {
		return
	}

	for i, d := range w.table {
		h, err := counter.Attach(pid, d.EventCode, d.Umask)
		if err != nil {
			rec.Event[i] = registry.CounterSlot{Errored: true}
			w.logger.Debug("counter attach failed, slot disabled", "pid", pid, "slot", i, "error", err)
			continue
		}
		rec.Event[i] = registry.CounterSlot{Handle: h}
	}
	rec.NeedsSetup.Store(false)
	rec.Ready.Store(true)
}
