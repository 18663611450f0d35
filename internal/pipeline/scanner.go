// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/procfs"
	"k8s.io/utils/clock"

	"github.com/saturneric/pacct-energy/internal/registry"
)

// NeedsSetupFunc schedules setup for a pid, the same hook bpftrace's on_fork
// uses; the scanner shares it so processes already running at startup get
// counters attached exactly as if they had just forked.
type NeedsSetupFunc func(pid int32)

// Scanner is the one-shot startup service (spec.md §4.D item 5): after a
// short delay (letting the tracepoint adapters attach first, so no process
// is missed), it enumerates /proc and inserts every already-running process
// into the registry, grounded on the teacher's procfs-based process reader.
type Scanner struct {
	logger     *slog.Logger
	registry   *registry.Registry
	fs         procfs.FS
	clock      clock.Clock
	delay      time.Duration
	needsSetup NeedsSetupFunc

	done chan struct{}
}

func NewScanner(fs procfs.FS, reg *registry.Registry, cl clock.Clock, delay time.Duration, needsSetup NeedsSetupFunc, logger *slog.Logger) *Scanner {
	return &Scanner{
		logger:     logger.With("service", "scanner"),
		registry:   reg,
		fs:         fs,
		clock:      cl,
		delay:      delay,
		needsSetup: needsSetup,
		done:       make(chan struct{}),
	}
}

func (s *Scanner) Name() string { return "scanner" }

func (s *Scanner) Run(ctx context.Context) error {
	timer := s.clock.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C():
	}

	s.scan()
	close(s.done)

	<-ctx.Done()
	return nil
}

func (s *Scanner) scan() {
	procs, err := s.fs.AllProcs()
	if err != nil {
		s.logger.Warn("failed to enumerate /proc", "error", err)
		return
	}

	for _, p := range procs {
		comm, err := p.Comm()
		if err != nil {
			comm = ""
		}
		rec, err := s.registry.LookupOrCreate(int32(p.PID), comm, true)
		if err != nil {
			s.logger.Debug("failed to register already-running process", "pid", p.PID, "error", err)
			continue
		}
		rec.NeedsSetup.Store(true)
		if s.needsSetup != nil {
			s.needsSetup(rec.PID)
		}
		s.registry.Put(rec)
	}

	s.logger.Info("startup scan complete", "processes", len(procs))
}
