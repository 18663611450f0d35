// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package bpftrace

// EventType identifies which of the three tracepoints produced a ring
// buffer record.
type EventType uint32

const (
	EventFork EventType = iota
	EventExit
	EventSwitch
)

// RawEvent is the wire layout shipped by the BPF program over the ring
// buffer, one record per fork/exit/switch. It carries only what the kernel
// side can observe about a task at that instant — not the hardware counter
// values: each attached counter here is a pid-scoped perf_event_open handle
// (cpu=-1, multiplexed across whatever core the task runs on), which only
// the owning process's file descriptor can read — a BPF program has no way
// to reach into an arbitrary other process's fd table, so these can't be
// fed through a BPF map the way a per-CPU system-wide counter would be.
// record_deltas (deltas.go) reads them directly via internal/counter once
// it has the TracedTask for this pid.
type RawEvent struct {
	Type          EventType
	Pid           int32
	CPU           uint32
	Comm          [16]byte
	_             [4]byte // alignment padding before the C struct's __u64 ts_ns
	TimestampNs   uint64
	ExecRuntimeNs uint64
}

// CommString trims the trailing NULs the kernel pads comm with.
func (e RawEvent) CommString() string {
	n := 0
	for n < len(e.Comm) && e.Comm[n] != 0 {
		n++
	}
	return string(e.Comm[:n])
}
