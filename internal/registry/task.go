// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"container/list"
	"sync/atomic"

	"github.com/saturneric/pacct-energy/internal/model"
)

// CounterSlot is what the setup worker leaves behind in TracedTask.Event
// for each table row: either an attached handle, or an error sentinel the
// rest of the system silently ignores (spec.md §3 invariant 3).
type CounterSlot struct {
	Handle  any // holds a counter.Handle; typed any to avoid an import cycle
	Errored bool
}

// TracedTask is the central per-process accounting record (spec.md §3).
type TracedTask struct {
	PID  int32
	Comm string // up to 16 bytes, captured at creation

	refCount atomic.Int32

	Ready      atomic.Bool
	NeedsSetup atomic.Bool
	Retiring   atomic.Bool

	Event [model.NumCounters]CounterSlot // setup worker only (incl. destructor release)

	// Counts is touched only by the single CPU-affine ring-buffer consumer
	// goroutine that owns this pid at any instant (spec.md §3 invariant 5).
	Counts [model.NumCounters]uint64

	DiffCounts [model.NumCounters]atomic.Uint64

	LastExecRuntimeNs   atomic.Int64
	DeltaExecRuntimeAcc atomic.Int64

	LastTimestampNs  atomic.Int64
	DeltaTimestampAcc atomic.Int64

	TotalExecRuntimeAcc int64 // estimator-only, no concurrent writer

	Energy  atomic.Uint64 // µJ
	PowerA  atomic.Int64  // mW, running average
	PowerI  atomic.Int64  // mW, instant (smoothed)
	PowerW  atomic.Int64  // mW, wall-referenced (smoothed)

	RecordCount atomic.Uint64

	liveElem     *list.Element
	retiringElem *list.Element
}

// Acquire takes a strong reference. Constant-time, lock-free.
func (t *TracedTask) Acquire() {
	t.refCount.Add(1)
}

// Release drops a strong reference, returning true if this was the last
// one (the caller must then finalize the record: release counter handles
// and drop it from whatever structure still references it).
func (t *TracedTask) Release() bool {
	return t.refCount.Add(-1) == 0
}

// RefCount reports the current strong reference count (diagnostics only).
func (t *TracedTask) RefCount() int32 {
	return t.refCount.Load()
}
