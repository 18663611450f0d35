// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package counter implements the per-process hardware counter backend
// (spec.md §4.A): attach, enable, scaled read, and release of one raw
// perf_event per (pid, event_code, umask) pair.
//
// Attach may block (it is a syscall that can sleep under memory pressure)
// and must only ever be called from a worker goroutine, never from the
// ring-buffer consumer (internal/bpftrace).
package counter

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrAttachFailed wraps any error returned while creating or enabling a
// counter; callers store an error sentinel in the owning slot and continue.
var ErrAttachFailed = errors.New("counter: attach failed")

// Handle is an opaque attached counter.
type Handle struct {
	fd int
}

// perfReadFormat mirrors the kernel's read_format layout when
// PERF_FORMAT_TOTAL_TIME_ENABLED|PERF_FORMAT_TOTAL_TIME_RUNNING is set.
type perfReadFormat struct {
	Value       uint64
	TimeEnabled uint64
	TimeRunning uint64
}

// Attach creates a disabled raw hardware counter bound to pid for the event
// encoded by eventCode/umask, then enables it. On failure it returns
// ErrAttachFailed wrapping the underlying errno.
func Attach(pid int32, eventCode, umask uint8) (Handle, error) {
	attr := &unix.PerfEventAttr{
		Type:        unix.PERF_TYPE_RAW,
		Size:        uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config:      uint64(eventCode) | uint64(umask)<<8,
		Bits:        unix.PerfBitDisabled,
		Read_format: unix.PERF_FORMAT_TOTAL_TIME_ENABLED | unix.PERF_FORMAT_TOTAL_TIME_RUNNING,
	}

	fd, err := unix.PerfEventOpen(attr, int(pid), -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: perf_event_open pid=%d event=0x%x umask=0x%x: %v",
			ErrAttachFailed, pid, eventCode, umask, err)
	}

	h := Handle{fd: fd}
	if err := Enable(h); err != nil {
		unix.Close(fd)
		return Handle{}, err
	}
	return h, nil
}

// Enable issues PERF_EVENT_IOC_ENABLE on an attached handle.
func Enable(h Handle) error {
	if err := unix.IoctlSetInt(h.fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		return fmt.Errorf("%w: enable fd=%d: %v", ErrAttachFailed, h.fd, err)
	}
	return nil
}

// ReadScaled returns raw*enabled/running when running>0 (correcting for
// time-multiplexed counters), else raw, per spec.md §4.A. It is a plain
// read() on the perf_event fd — non-blocking in practice, so it is safe to
// call from the context-switch fast path, not just from a worker.
func (h Handle) ReadScaled() (uint64, error) {
	buf := make([]byte, int(unsafe.Sizeof(perfReadFormat{})))
	n, err := unix.Read(h.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("read counter fd=%d: %w", h.fd, err)
	}
	if n < len(buf) {
		return 0, fmt.Errorf("short read on counter fd=%d: got %d bytes", h.fd, n)
	}

	rf := (*perfReadFormat)(unsafe.Pointer(&buf[0]))
	if rf.TimeRunning == 0 {
		return rf.Value, nil
	}
	return rf.Value * rf.TimeEnabled / rf.TimeRunning, nil
}

// Release closes the underlying perf_event file descriptor. A zero-valued
// Handle holds fd 0, so callers skip slots that were never attached, which
// the owning TracedTask marks with CounterSlot.Errored or a nil Handle.
func Release(h Handle) error {
	return unix.Close(h.fd)
}
