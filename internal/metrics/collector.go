// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics implements the Prometheus surface (spec.md §4.H
// expansion): a collector publishing every live task's cumulative energy
// and smoothed power, plus the package power the sampler last observed,
// grounded on the teacher's internal/exporter/prometheus collector.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/saturneric/pacct-energy/internal/registry"
)

const namespace = "pacctd"

// Collector implements prometheus.Collector over the live task registry.
type Collector struct {
	registry *registry.Registry

	processEnergy       *prometheus.Desc
	processPowerInstant *prometheus.Desc
	processPowerAverage *prometheus.Desc
	processPowerWall    *prometheus.Desc
	packagePower        *prometheus.Desc
	buildInfo           *prometheus.Desc
	version             string

	mu        sync.RWMutex
	packageMW int64
}

// New constructs a Collector. version is reported once via the build-info
// gauge, the way the teacher's binaries stamp a version gauge at startup.
func New(reg *registry.Registry, version string) *Collector {
	return &Collector{
		registry: reg,
		version:  version,
		processEnergy: prometheus.NewDesc(
			namespace+"_process_energy_joules_total",
			"Cumulative estimated energy consumed by a traced process.",
			[]string{"pid", "comm"}, nil,
		),
		processPowerInstant: prometheus.NewDesc(
			namespace+"_process_power_mw",
			"Instantaneous smoothed power estimate for a traced process.",
			[]string{"pid", "comm"}, nil,
		),
		processPowerAverage: prometheus.NewDesc(
			namespace+"_process_power_average_mw",
			"Lifetime running-average power estimate for a traced process.",
			[]string{"pid", "comm"}, nil,
		),
		processPowerWall: prometheus.NewDesc(
			namespace+"_process_power_wall_mw",
			"Wall-clock-referenced smoothed power estimate for a traced process.",
			[]string{"pid", "comm"}, nil,
		),
		packagePower: prometheus.NewDesc(
			namespace+"_package_power_mw",
			"Most recently sampled package power from the RAPL energy register.",
			nil, nil,
		),
		buildInfo: prometheus.NewDesc(
			namespace+"_build_info",
			"Build information, value is always 1.",
			[]string{"version"}, nil,
		),
	}
}

// ObservePackagePower records the sampler's latest package power reading;
// wired as the rapl.Sampler's OnSample callback.
func (c *Collector) ObservePackagePower(mw int64) {
	c.mu.Lock()
	c.packageMW = mw
	c.mu.Unlock()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.processEnergy
	ch <- c.processPowerInstant
	ch <- c.processPowerAverage
	ch <- c.processPowerWall
	ch <- c.packagePower
	ch <- c.buildInfo
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.buildInfo, prometheus.GaugeValue, 1, c.version)

	c.mu.RLock()
	pkg := c.packageMW
	c.mu.RUnlock()
	ch <- prometheus.MustNewConstMetric(c.packagePower, prometheus.GaugeValue, float64(pkg))

	c.registry.ForEachLive(func(t *registry.TracedTask) {
		pid := formatPID(t.PID)
		comm := t.Comm
		ch <- prometheus.MustNewConstMetric(c.processEnergy, prometheus.CounterValue, float64(t.Energy.Load())/1_000_000, pid, comm)
		ch <- prometheus.MustNewConstMetric(c.processPowerInstant, prometheus.GaugeValue, float64(t.PowerI.Load()), pid, comm)
		ch <- prometheus.MustNewConstMetric(c.processPowerAverage, prometheus.GaugeValue, float64(t.PowerA.Load()), pid, comm)
		ch <- prometheus.MustNewConstMetric(c.processPowerWall, prometheus.GaugeValue, float64(t.PowerW.Load()), pid, comm)
	})
}

func formatPID(pid int32) string {
	return strconv.Itoa(int(pid))
}
