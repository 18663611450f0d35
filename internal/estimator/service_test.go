// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package estimator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/saturneric/pacct-energy/internal/model"
	"github.com/saturneric/pacct-energy/internal/registry"
)

func TestServiceTickFoldsDeltasIntoEnergyAndPower(t *testing.T) {
	reg := registry.New()
	rec, err := reg.LookupOrCreate(1234, "testproc", true)
	require.NoError(t, err)
	rec.Ready.Store(true)
	rec.DiffCounts[0].Store(EnergyScale) // EnergyScale counts on slot 0
	rec.DeltaExecRuntimeAcc.Store(int64(10 * time.Millisecond))
	rec.DeltaTimestampAcc.Store(int64(20 * time.Millisecond))
	reg.Put(rec)

	table := [model.NumCounters]model.CounterDescriptor{{Koeff: 1000}}
	fake := clocktesting.NewFakeClock(time.Now())
	period := 30 * time.Millisecond
	logger := slog.New(slog.NewTextHandler(nullWriter{}, nil))

	svc := New(reg, table, fake, period, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// Let Run block on the ticker before stepping, otherwise the step can
	// race the goroutine's NewTicker call.
	time.Sleep(10 * time.Millisecond)
	fake.Step(period)
	time.Sleep(10 * time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	live, err := reg.Lookup(1234)
	require.NoError(t, err)
	defer reg.Put(live)

	assert.Equal(t, uint64(1000), live.Energy.Load())
	assert.Greater(t, live.PowerI.Load(), int64(0))
	assert.Greater(t, live.PowerW.Load(), int64(0))
	assert.Greater(t, live.PowerA.Load(), int64(0))
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
