// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package estimator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/saturneric/pacct-energy/internal/model"
	"github.com/saturneric/pacct-energy/internal/registry"
)

// smoothingDivisor is the inverse of the exponential smoothing weight
// spec.md §4.E assigns the newest instant/wall power sample (weight 1/4,
// applied as integer division).
const smoothingDivisor = 4

// Service is the internal/service.Runner that drives the periodic fold
// (spec.md §4.D item 3).
type Service struct {
	logger   *slog.Logger
	registry *registry.Registry
	table    [model.NumCounters]model.CounterDescriptor
	clock    clock.Clock
	period   time.Duration
	limiter  *rate.Limiter
}

func New(reg *registry.Registry, table [model.NumCounters]model.CounterDescriptor, cl clock.Clock, period time.Duration, logger *slog.Logger) *Service {
	return &Service{
		logger:   logger.With("service", "estimator"),
		registry: reg,
		table:    table,
		clock:    cl,
		period:   period,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (s *Service) Name() string { return "estimator" }

func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.tick()
		}
	}
}

func (s *Service) tick() {
	s.registry.ForEachLive(func(t *registry.TracedTask) {
		if !t.Ready.Load() {
			return
		}
		s.foldOne(t)
	})
}

// foldOne implements spec.md §4.E steps 1–7 for a single task: consume this
// tick's accumulated deltas, fold them into an energy delta, and derive
// instant, wall-referenced, and running-average power from the result.
func (s *Service) foldOne(t *registry.TracedTask) {
	var diffs [model.NumCounters]uint64
	for i := range diffs {
		diffs[i] = t.DiffCounts[i].Swap(0)
	}
	deltaExecNs := t.DeltaExecRuntimeAcc.Swap(0)
	deltaWallNs := t.DeltaTimestampAcc.Swap(0)

	deltaUJ := foldEnergyDeltaUJ(s.table, diffs)
	switch deltaUJ {
	case overflowSentinel:
		if s.limiter.Allow() {
			s.logger.Warn("numeric anomaly: energy fold overflowed fixed-point scale, clamping to zero", "pid", t.PID)
		}
		deltaUJ = 0
	case underflowSentinel:
		if s.limiter.Allow() {
			s.logger.Warn("numeric anomaly: energy fold net negative, clamping to zero", "pid", t.PID)
		}
		deltaUJ = 0
	}
	t.Energy.Add(deltaUJ)
	t.RecordCount.Add(1)

	if deltaExecNs > 0 {
		t.TotalExecRuntimeAcc += deltaExecNs
	}
	// spec.md §4.E steps 6-7: instant/wall power are only updated on ticks
	// that actually folded energy; an idle tick (acc == 0) leaves the prior
	// smoothed value untouched rather than decaying it toward zero.
	if deltaUJ != 0 {
		if deltaExecNs < 1000 {
			deltaExecNs = 1000 // spec.md §4.E step 6: dt in µs, >= 1
		}
		instant := microjoulesPerNanosecondToMW(int64(deltaUJ), deltaExecNs)
		t.PowerI.Store(ewma(t.PowerI.Load(), instant))

		wallNs := deltaWallNs
		if wallNs < 1000 {
			wallNs = 1000
		}
		wall := microjoulesPerNanosecondToMW(int64(deltaUJ), wallNs)
		t.PowerW.Store(ewma(t.PowerW.Load(), wall))
	}
	if t.TotalExecRuntimeAcc > 0 {
		avg := microjoulesPerNanosecondToMW(int64(t.Energy.Load()), t.TotalExecRuntimeAcc)
		if avg < 0 {
			if s.limiter.Allow() {
				s.logger.Warn("numeric anomaly: negative average power, clamping", "pid", t.PID)
			}
			avg = 0
		}
		t.PowerA.Store(avg)
	}
}

// microjoulesPerNanosecondToMW converts a µJ-over-ns rate to mW:
// P(mW) = E(µJ)/t(ns) * 1e6, since µJ/ns = kW and 1kW = 1e6mW.
func microjoulesPerNanosecondToMW(microjoules, nanoseconds int64) int64 {
	if nanoseconds == 0 {
		return 0
	}
	return microjoules * 1_000_000 / nanoseconds
}

func ewma(prev, sample int64) int64 {
	return prev - prev/smoothingDivisor + sample/smoothingDivisor
}
