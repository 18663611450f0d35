// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package bpftrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturneric/pacct-energy/internal/registry"
)

// fakeCounterHandle stands in for an attached counter.Handle in tests,
// returning a caller-set scaled value instead of doing a real read().
type fakeCounterHandle struct {
	value uint64
	err   error
}

func (f fakeCounterHandle) ReadScaled() (uint64, error) {
	return f.value, f.err
}

func TestRecordDeltasFirstObservationSeedsBaselineOnly(t *testing.T) {
	reg := registry.New()
	rec, err := reg.LookupOrCreate(1, "p", true)
	require.NoError(t, err)
	defer reg.Put(rec)
	rec.Event[0] = registry.CounterSlot{Handle: fakeCounterHandle{value: 10}}

	ev := RawEvent{Pid: 1, TimestampNs: 1000, ExecRuntimeNs: 500}
	recordDeltas(rec, ev, nil)

	assert.Equal(t, int64(0), rec.DeltaTimestampAcc.Load())
	assert.Equal(t, int64(0), rec.DeltaExecRuntimeAcc.Load())
	assert.Equal(t, uint64(0), rec.DiffCounts[0].Load())
	assert.Equal(t, uint64(10), rec.Counts[0])
}

func TestRecordDeltasAccumulatesAcrossCalls(t *testing.T) {
	reg := registry.New()
	rec, err := reg.LookupOrCreate(1, "p", true)
	require.NoError(t, err)
	defer reg.Put(rec)

	rec.Event[0] = registry.CounterSlot{Handle: fakeCounterHandle{value: 10}}
	ev1 := RawEvent{Pid: 1, TimestampNs: 1000, ExecRuntimeNs: 500}
	recordDeltas(rec, ev1, nil)

	rec.Event[0] = registry.CounterSlot{Handle: fakeCounterHandle{value: 35}}
	ev2 := RawEvent{Pid: 1, TimestampNs: 1800, ExecRuntimeNs: 650}
	recordDeltas(rec, ev2, nil)

	assert.Equal(t, int64(800), rec.DeltaTimestampAcc.Load())
	assert.Equal(t, int64(150), rec.DeltaExecRuntimeAcc.Load())
	assert.Equal(t, uint64(25), rec.DiffCounts[0].Load())
	assert.Equal(t, uint64(35), rec.Counts[0])
}

func TestRecordDeltasSaturatesOnNonMonotonicCounter(t *testing.T) {
	reg := registry.New()
	rec, err := reg.LookupOrCreate(1, "p", true)
	require.NoError(t, err)
	defer reg.Put(rec)

	rec.Event[0] = registry.CounterSlot{Handle: fakeCounterHandle{value: 100}}
	ev1 := RawEvent{Pid: 1, TimestampNs: 1000, ExecRuntimeNs: 500}
	recordDeltas(rec, ev1, nil)

	// Counter reprogrammed and reports a lower value than last time.
	rec.Event[0] = registry.CounterSlot{Handle: fakeCounterHandle{value: 40}}
	ev2 := RawEvent{Pid: 1, TimestampNs: 1500, ExecRuntimeNs: 600}
	recordDeltas(rec, ev2, nil)

	assert.Equal(t, uint64(0), rec.DiffCounts[0].Load())
	assert.Equal(t, uint64(40), rec.Counts[0])
}

func TestRecordDeltasSkipsErroredSlots(t *testing.T) {
	reg := registry.New()
	rec, err := reg.LookupOrCreate(1, "p", true)
	require.NoError(t, err)
	defer reg.Put(rec)
	rec.Event[0] = registry.CounterSlot{Errored: true}

	ev1 := RawEvent{Pid: 1, TimestampNs: 1000, ExecRuntimeNs: 500}
	recordDeltas(rec, ev1, nil)

	ev2 := RawEvent{Pid: 1, TimestampNs: 2000, ExecRuntimeNs: 1000}
	recordDeltas(rec, ev2, nil)

	assert.Equal(t, uint64(0), rec.DiffCounts[0].Load())
	assert.Equal(t, uint64(0), rec.Counts[0])
}

func TestRecordDeltasHoldsLastValueOnReadError(t *testing.T) {
	reg := registry.New()
	rec, err := reg.LookupOrCreate(1, "p", true)
	require.NoError(t, err)
	defer reg.Put(rec)

	rec.Event[0] = registry.CounterSlot{Handle: fakeCounterHandle{value: 50}}
	ev1 := RawEvent{Pid: 1, TimestampNs: 1000, ExecRuntimeNs: 500}
	recordDeltas(rec, ev1, nil)

	rec.Event[0] = registry.CounterSlot{Handle: fakeCounterHandle{err: assert.AnError}}
	ev2 := RawEvent{Pid: 1, TimestampNs: 2000, ExecRuntimeNs: 1000}
	recordDeltas(rec, ev2, nil)

	assert.Equal(t, uint64(0), rec.DiffCounts[0].Load())
	assert.Equal(t, uint64(50), rec.Counts[0])
}
