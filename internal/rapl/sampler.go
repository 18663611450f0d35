// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// OnSample receives the summed package power (mW) for every sampler tick,
// used by the power-cap controller and the Prometheus collector.
type OnSample func(packageMW int64)

// Sampler is the periodic package-power service (spec.md §4.D item 4),
// summing every socket's Reader each tick and invoking OnSample.
type Sampler struct {
	logger   *slog.Logger
	readers  []*Reader
	clock    clock.Clock
	period   time.Duration
	onSample OnSample
}

// NewSampler opens one Reader per cpu in cpus (one representative core per
// package is enough — RAPL registers are package-wide).
func NewSampler(pathTemplate string, cpus []int, cl clock.Clock, period time.Duration, onSample OnSample, logger *slog.Logger) (*Sampler, error) {
	readers := make([]*Reader, 0, len(cpus))
	for _, cpu := range cpus {
		r, err := Open(pathTemplate, cpu)
		if err != nil {
			for _, opened := range readers {
				opened.Close()
			}
			return nil, err
		}
		readers = append(readers, r)
	}

	return &Sampler{
		logger:   logger.With("service", "rapl-sampler"),
		readers:  readers,
		clock:    cl,
		period:   period,
		onSample: onSample,
	}, nil
}

func (s *Sampler) Name() string { return "rapl-sampler" }

func (s *Sampler) Run(ctx context.Context) error {
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

func (s *Sampler) tick() {
	now := s.clock.Now()
	var total int64
	for _, r := range s.readers {
		mw, err := r.SampleMW(now)
		if err != nil {
			s.logger.Warn("msr sample failed", "error", err)
			continue
		}
		total += mw
	}
	if s.onSample != nil {
		s.onSample(total)
	}
}

func (s *Sampler) Shutdown() error {
	var firstErr error
	for _, r := range s.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
