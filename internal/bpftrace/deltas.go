// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package bpftrace

import (
	"log/slog"

	"github.com/saturneric/pacct-energy/internal/model"
	"github.com/saturneric/pacct-energy/internal/registry"
)

// scaledReader is satisfied by counter.Handle; declared locally so this
// package depends on the read behavior, not the concrete attach/release
// lifecycle that lives in internal/counter.
type scaledReader interface {
	ReadScaled() (uint64, error)
}

// saturatingSub returns a-b, clamped to 0 instead of wrapping, tolerating the
// rare case where a monotonic source briefly reports a non-monotonic pair
// (counter reprogrammed mid-flight, clock skew across updates).
func saturatingSub(a, b uint64) uint64 {
	if a <= b {
		return 0
	}
	return a - b
}

// readCounterSlots takes one scaled reading per attached, non-errored slot
// (spec.md §4.A read_scaled), implementing spec.md §4.C record_deltas step
// 4. A read failure leaves that slot's reading at the task's last known
// value, so the slot simply contributes no delta this interval rather than
// corrupting diff_counts with a zero.
func readCounterSlots(rec *registry.TracedTask, logger *slog.Logger) [model.NumCounters]uint64 {
	var vals [model.NumCounters]uint64
	for i := range rec.Event {
		slot := rec.Event[i]
		if slot.Errored || slot.Handle == nil {
			vals[i] = rec.Counts[i]
			continue
		}
		h, ok := slot.Handle.(scaledReader)
		if !ok {
			vals[i] = rec.Counts[i]
			continue
		}
		v, err := h.ReadScaled()
		if err != nil {
			if logger != nil {
				logger.Debug("counter read failed, slot held at last value", "pid", rec.PID, "slot", i, "error", err)
			}
			vals[i] = rec.Counts[i]
			continue
		}
		vals[i] = v
	}
	return vals
}

// recordDeltas is spec.md §4.C's record_deltas: fold one ring buffer record
// into its TracedTask, accumulating wall-clock time, exec-runtime, and
// per-counter deltas since the last record for this pid. It runs only from
// the ring-buffer consumer goroutine for a given pid at a time (spec.md §3
// invariant 5), so Counts itself needs no synchronization; everything else
// it touches is atomic because the estimator reads it concurrently.
func recordDeltas(rec *registry.TracedTask, ev RawEvent, logger *slog.Logger) {
	firstObservation := rec.LastExecRuntimeNs.Load() == 0 || rec.LastTimestampNs.Load() == 0

	if !firstObservation {
		deltaExec := saturatingSub(ev.ExecRuntimeNs, uint64(rec.LastExecRuntimeNs.Load()))
		deltaWall := saturatingSub(ev.TimestampNs, uint64(rec.LastTimestampNs.Load()))
		rec.DeltaExecRuntimeAcc.Add(int64(deltaExec))
		rec.DeltaTimestampAcc.Add(int64(deltaWall))
	}
	rec.LastExecRuntimeNs.Store(int64(ev.ExecRuntimeNs))
	rec.LastTimestampNs.Store(int64(ev.TimestampNs))

	counts := readCounterSlots(rec, logger)
	for i := range rec.Event {
		if rec.Event[i].Errored {
			continue
		}
		if !firstObservation {
			delta := saturatingSub(counts[i], rec.Counts[i])
			rec.DiffCounts[i].Add(delta)
		}
		rec.Counts[i] = counts[i]
	}

	rec.RecordCount.Add(1)
}
