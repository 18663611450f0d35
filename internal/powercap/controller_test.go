// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package powercap

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, targetMW, hysteresisMW int64, stepKHz int) (*Controller, string) {
	t.Helper()
	dir := t.TempDir()
	maxPattern := filepath.Join(dir, "cpu%d_scaling_max_freq")
	minFreqPattern := filepath.Join(dir, "cpu%d_cpuinfo_min_freq")
	maxFreqPattern := filepath.Join(dir, "cpu%d_cpuinfo_max_freq")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu0_cpuinfo_min_freq"), []byte("400000"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu0_cpuinfo_max_freq"), []byte("3000000"), 0o644))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c, err := New(maxPattern, minFreqPattern, maxFreqPattern, []int{0}, targetMW, hysteresisMW, stepKHz, logger)
	require.NoError(t, err)
	return c, dir
}

func readCeiling(t *testing.T, dir string, cpu int) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "cpu"+strconv.Itoa(cpu)+"_scaling_max_freq"))
	require.NoError(t, err)
	n, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	return n
}

func TestNewFailsWhenCPUInfoFreqUnreadable(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	_, err := New(
		filepath.Join(dir, "cpu%d_scaling_max_freq"),
		filepath.Join(dir, "cpu%d_cpuinfo_min_freq"),
		filepath.Join(dir, "cpu%d_cpuinfo_max_freq"),
		[]int{0}, 30_000, 800, 100_000, logger,
	)
	assert.Error(t, err)
}

func TestObserveAboveTargetStepsDown(t *testing.T) {
	c, dir := newTestController(t, 30_000, 800, 100_000)
	c.Observe(31_000)
	assert.Equal(t, 2_900_000, readCeiling(t, dir, 0))
	assert.Equal(t, 2_900_000, c.Ceiling(0))
}

func TestObserveBelowTargetStepsUp(t *testing.T) {
	c, dir := newTestController(t, 30_000, 800, 100_000)
	c.Observe(31_000) // first step down, so there's room to step back up
	assert.Equal(t, 2_900_000, readCeiling(t, dir, 0))

	c.Observe(29_000) // below target-hysteresis, steps up
	assert.Equal(t, 3_000_000, readCeiling(t, dir, 0))
}

func TestObserveInsideBandHolds(t *testing.T) {
	c, _ := newTestController(t, 30_000, 800, 100_000)
	c.Observe(30_500) // within [29200, 30800]
	assert.Equal(t, 3_000_000, c.Ceiling(0))
}

func TestObserveNeverStepsBelowFloor(t *testing.T) {
	c, dir := newTestController(t, 30_000, 0, 10_000_000)
	c.Observe(31_000)
	assert.Equal(t, 400_000, readCeiling(t, dir, 0))
}
