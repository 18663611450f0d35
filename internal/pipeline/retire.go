// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/saturneric/pacct-energy/internal/counter"
	"github.com/saturneric/pacct-energy/internal/registry"
)

// RetireWorker drains exited tasks from the registry's retiring list and
// releases their counter handles when the task's last reference drops
// (spec.md §4.D item 2). It installs itself as the registry's finalizer, so
// any caller dropping a task's final reference — not just this worker — ends
// up releasing that task's counters.
type RetireWorker struct {
	logger   *slog.Logger
	registry *registry.Registry
	clock    clock.Clock
	period   time.Duration
}

func NewRetireWorker(reg *registry.Registry, cl clock.Clock, period time.Duration, logger *slog.Logger) *RetireWorker {
	w := &RetireWorker{
		logger:   logger.With("service", "retire-worker"),
		registry: reg,
		clock:    cl,
		period:   period,
	}
	registry.SetFinalizer(w.releaseCounters)
	return w
}

func (w *RetireWorker) Name() string { return "retire-worker" }

func (w *RetireWorker) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			for _, t := range w.registry.DrainRetiring() {
				w.registry.Put(t)
			}
		}
	}
}

// releaseCounters is the registry finalizer: it runs exactly once per task,
// when its last reference drops, regardless of which caller dropped it.
func (w *RetireWorker) releaseCounters(t *registry.TracedTask) {
	for i := range t.Event {
		slot := t.Event[i]
		if slot.Errored || slot.Handle == nil {
			continue
		}
		h, ok := slot.Handle.(counter.Handle)
		if !ok {
			continue
		}
		if err := counter.Release(h); err != nil {
			w.logger.Warn("failed to release counter handle", "pid", t.PID, "slot", i, "error", err)
		}
	}
}
