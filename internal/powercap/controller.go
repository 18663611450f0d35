// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package powercap implements the optional power-cap controller (spec.md
// §4.G): a hysteresis-banded step controller over per-core cpufreq ceilings,
// driven by the sampler's package-power readings. It is a pure step
// controller, not a PID loop — spec.md deliberately keeps it simple.
package powercap

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Controller holds the hysteresis band and the cpufreq ceiling state for
// every managed core.
type Controller struct {
	logger *slog.Logger

	targetMW     int64
	hysteresisMW int64
	stepKHz      int

	maxFreqPattern string // e.g. "/sys/devices/system/cpu/cpu%d/cpufreq/scaling_max_freq"
	cpus           []int

	mu         sync.Mutex
	floorKHz   map[int]int
	ceilKHz    map[int]int
	currentKHz map[int]int
}

// New constructs a Controller, reading each managed core's actual
// cpuinfo_min_freq/cpuinfo_max_freq from sysfs so Step never drives a core
// below or above what the platform itself reports as its limits.
// minFreqPattern/maxFreqPattern are typically
// "/sys/devices/system/cpu/cpu%d/cpufreq/cpuinfo_{min,max}_freq";
// scalingMaxFreqPattern is the file Step writes to apply a ceiling.
func New(scalingMaxFreqPattern, minFreqPattern, maxFreqPattern string, cpus []int, targetMW, hysteresisMW int64, stepKHz int, logger *slog.Logger) (*Controller, error) {
	floor := make(map[int]int, len(cpus))
	ceil := make(map[int]int, len(cpus))
	current := make(map[int]int, len(cpus))

	for _, cpu := range cpus {
		minKHz, err := readKHzFile(minFreqPattern, cpu)
		if err != nil {
			return nil, fmt.Errorf("powercap: read cpuinfo_min_freq for cpu %d: %w", cpu, err)
		}
		maxKHz, err := readKHzFile(maxFreqPattern, cpu)
		if err != nil {
			return nil, fmt.Errorf("powercap: read cpuinfo_max_freq for cpu %d: %w", cpu, err)
		}
		floor[cpu] = minKHz
		ceil[cpu] = maxKHz
		current[cpu] = maxKHz
	}

	return &Controller{
		logger:         logger.With("service", "power-cap-controller"),
		targetMW:       targetMW,
		hysteresisMW:   hysteresisMW,
		stepKHz:        stepKHz,
		maxFreqPattern: scalingMaxFreqPattern,
		cpus:           cpus,
		floorKHz:       floor,
		ceilKHz:        ceil,
		currentKHz:     current,
	}, nil
}

func readKHzFile(pattern string, cpu int) (int, error) {
	path := fmt.Sprintf(pattern, cpu)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (c *Controller) Name() string { return "power-cap-controller" }

// Observe applies one hysteresis step given the latest sampled package
// power (spec.md §4.G): above target+band, step every core's ceiling down;
// below target-band, step up (clamped to that core's cpuinfo_max_freq);
// inside the band, hold.
func (c *Controller) Observe(sampledMW int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case sampledMW > c.targetMW+c.hysteresisMW:
		c.stepAllLocked(-c.stepKHz)
	case sampledMW < c.targetMW-c.hysteresisMW:
		c.stepAllLocked(c.stepKHz)
	}
}

func (c *Controller) stepAllLocked(deltaKHz int) {
	for _, cpu := range c.cpus {
		next := c.currentKHz[cpu] + deltaKHz
		if next < c.floorKHz[cpu] {
			next = c.floorKHz[cpu]
		}
		if next > c.ceilKHz[cpu] {
			next = c.ceilKHz[cpu]
		}
		if next == c.currentKHz[cpu] {
			continue
		}

		path := fmt.Sprintf(c.maxFreqPattern, cpu)
		if err := os.WriteFile(path, []byte(strconv.Itoa(next)), 0o644); err != nil {
			c.logger.Warn("failed to write cpufreq ceiling", "cpu", cpu, "khz", next, "error", err)
			continue
		}
		c.currentKHz[cpu] = next
	}
}

// Ceiling reports the controller's current ceiling for cpu, for tests and
// diagnostics.
func (c *Controller) Ceiling(cpu int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentKHz[cpu]
}
