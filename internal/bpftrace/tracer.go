// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package bpftrace implements the tracepoint adapters (spec.md §4.C): it
// attaches a small BPF program to sched_process_fork, sched_process_exit,
// and sched_switch, and drains the program's ring buffer on a dedicated
// goroutine. That goroutine is the system's only genuinely non-sleepable,
// non-blocking context — the BPF program itself runs in the kernel and can
// never be scheduled away mid-update; record_deltas below performs atomic
// arithmetic on already-resident Go memory plus one non-blocking read() per
// attached counter fd, mirroring that constraint in userspace.
package bpftrace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"github.com/saturneric/pacct-energy/internal/registry"
)

const ringbufMapName = "events"

// Hooks are the fast-path actions the tracer delegates out to (enqueueing
// setup/retire work, in the style of spec.md's on_fork/on_exit). They must
// never block.
type Hooks struct {
	// NeedsSetup is called once per fork, after the registry record has
	// been created, to schedule the setup worker (spec.md §4.C on_fork).
	NeedsSetup func(pid int32)
	// ScheduleRetire is called once per exit, after the record has moved
	// to the retiring list, to schedule the retire worker.
	ScheduleRetire func(t *registry.TracedTask)
}

// Tracer owns the BPF program links and the ring buffer reader.
type Tracer struct {
	logger     *slog.Logger
	objectPath string
	registry   *registry.Registry
	hooks      Hooks

	coll       *ebpf.Collection
	forkLink   link.Link
	exitLink   link.Link
	switchLink link.Link
	reader     *ringbuf.Reader
}

// New constructs a Tracer. objectPath points at the compiled BPF object
// (built out-of-band with clang from internal/bpftrace/bpf/tracer.bpf.c;
// this module has no go generate or bpf2go step — not embedded in the
// binary, loaded at runtime the way the teacher's libbpf-mode attacher resolves
// kepler.bpf.o, so the same binary can be pointed at a rebuilt object
// without recompiling Go code).
func New(objectPath string, reg *registry.Registry, hooks Hooks, logger *slog.Logger) *Tracer {
	return &Tracer{
		logger:     logger.With("service", "bpftrace"),
		objectPath: objectPath,
		registry:   reg,
		hooks:      hooks,
	}
}

func (t *Tracer) Name() string { return "bpftrace-tracer" }

func (t *Tracer) Init(ctx context.Context) error {
	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("failed to remove memlock rlimit: %w", err)
	}

	spec, err := ebpf.LoadCollectionSpec(t.objectPath)
	if err != nil {
		return fmt.Errorf("failed to load bpf object %s: %w", t.objectPath, err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return fmt.Errorf("failed to instantiate bpf collection: %w", err)
	}
	t.coll = coll

	forkProg, ok := coll.Programs["pacctd_sched_process_fork"]
	if !ok {
		coll.Close()
		return fmt.Errorf("bpf object missing program pacctd_sched_process_fork")
	}
	exitProg, ok := coll.Programs["pacctd_sched_process_exit"]
	if !ok {
		coll.Close()
		return fmt.Errorf("bpf object missing program pacctd_sched_process_exit")
	}
	switchProg, ok := coll.Programs["pacctd_sched_switch"]
	if !ok {
		coll.Close()
		return fmt.Errorf("bpf object missing program pacctd_sched_switch")
	}

	t.forkLink, err = link.AttachTracing(link.TracingOptions{Program: forkProg, AttachType: ebpf.AttachTraceRawTp})
	if err != nil {
		coll.Close()
		return fmt.Errorf("failed to attach sched_process_fork: %w", err)
	}
	t.exitLink, err = link.AttachTracing(link.TracingOptions{Program: exitProg, AttachType: ebpf.AttachTraceRawTp})
	if err != nil {
		t.Shutdown()
		return fmt.Errorf("failed to attach sched_process_exit: %w", err)
	}
	t.switchLink, err = link.AttachTracing(link.TracingOptions{Program: switchProg, AttachType: ebpf.AttachTraceRawTp})
	if err != nil {
		t.Shutdown()
		return fmt.Errorf("failed to attach sched_switch: %w", err)
	}

	ringMap, ok := coll.Maps[ringbufMapName]
	if !ok {
		t.Shutdown()
		return fmt.Errorf("bpf object missing ring buffer map %q", ringbufMapName)
	}
	reader, err := ringbuf.NewReader(ringMap)
	if err != nil {
		t.Shutdown()
		return fmt.Errorf("failed to create ring buffer reader: %w", err)
	}
	t.reader = reader

	return nil
}

func (t *Tracer) Run(ctx context.Context) error {
	defer t.reader.Close()

	go func() {
		<-ctx.Done()
		_ = t.reader.Close()
	}()

	for {
		record, err := t.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return nil
			}
			t.logger.Error("failed reading bpf ring buffer", "error", err)
			continue
		}

		ev, err := decodeEvent(record.RawSample)
		if err != nil {
			t.logger.Error("failed to decode ring buffer record", "error", err)
			continue
		}

		t.handle(ev)
	}
}

func (t *Tracer) Shutdown() error {
	if t.forkLink != nil {
		t.forkLink.Close()
	}
	if t.exitLink != nil {
		t.exitLink.Close()
	}
	if t.switchLink != nil {
		t.switchLink.Close()
	}
	if t.coll != nil {
		t.coll.Close()
	}
	return nil
}

// handle dispatches a single decoded event, implementing spec.md §4.C's
// on_fork/on_exit/on_switch. It never blocks and never allocates beyond
// what the event itself required.
func (t *Tracer) handle(ev RawEvent) {
	switch ev.Type {
	case EventFork:
		t.onFork(ev)
	case EventExit:
		t.onExit(ev)
	case EventSwitch:
		t.onSwitch(ev)
	}
}

func (t *Tracer) onFork(ev RawEvent) {
	rec, err := t.registry.LookupOrCreate(ev.Pid, ev.CommString(), true)
	if err != nil {
		// AllocationFailed class. LookupOrCreate with create set does not
		// return an error in the current registry; any error skips this
		// fork, and nothing is logged here.
		return
	}
	rec.NeedsSetup.Store(true)
	if t.hooks.NeedsSetup != nil {
		t.hooks.NeedsSetup(rec.PID)
	}
	t.registry.Put(rec) // drop the caller reference; the live list keeps its own
}

func (t *Tracer) onExit(ev RawEvent) {
	rec, err := t.registry.Lookup(ev.Pid)
	if err != nil {
		return
	}
	defer t.registry.Put(rec) // drop this callback's transient reference

	recordDeltas(rec, ev, t.logger)
	rec.Retiring.Store(true)
	t.registry.DetachLive(rec) // drops the live list's reference
	rec.Acquire()              // the retiring list needs its own reference
	t.registry.EnqueueRetiring(rec)
	if t.hooks.ScheduleRetire != nil {
		t.hooks.ScheduleRetire(rec)
	}
}

func (t *Tracer) onSwitch(ev RawEvent) {
	rec, err := t.registry.Lookup(ev.Pid)
	if err != nil {
		return
	}
	defer t.registry.Put(rec)

	if !rec.Ready.Load() {
		rec.NeedsSetup.Store(true)
		return
	}
	recordDeltas(rec, ev, t.logger)
}
