// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Command pacctd is the per-process energy accounting and power-capping
// daemon: it attaches to sched_process_fork/exit/switch, estimates energy
// from hardware performance counters, samples package power over RAPL MSRs,
// and optionally caps CPU frequency to hold package power near a target.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"
	"k8s.io/utils/clock"

	"github.com/saturneric/pacct-energy/internal/bpftrace"
	"github.com/saturneric/pacct-energy/internal/config"
	"github.com/saturneric/pacct-energy/internal/dump"
	"github.com/saturneric/pacct-energy/internal/estimator"
	"github.com/saturneric/pacct-energy/internal/logger"
	"github.com/saturneric/pacct-energy/internal/metrics"
	"github.com/saturneric/pacct-energy/internal/model"
	"github.com/saturneric/pacct-energy/internal/pipeline"
	"github.com/saturneric/pacct-energy/internal/powercap"
	"github.com/saturneric/pacct-energy/internal/rapl"
	"github.com/saturneric/pacct-energy/internal/registry"
	"github.com/saturneric/pacct-energy/internal/service"
	"github.com/saturneric/pacct-energy/internal/surface"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	cfg := config.Default()

	app := kingpin.New("pacctd", "Per-process energy accounting and power-capping daemon.")
	configFile := app.Flag("config", "path to a YAML config file").String()
	bpfObject := app.Flag("bpf-object", "path to the compiled tracepoint BPF object").Default("/usr/lib/pacctd/tracer.bpf.o").String()
	dumpMode := app.Flag("dump", "render one stdout snapshot 5s after startup and exit").Bool()
	config.RegisterFlags(app, cfg)

	if _, err := app.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *configFile != "" {
		loaded, err := config.FromFile(*configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
		config.RegisterFlags(app, cfg)
		if _, err := app.Parse(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	table := model.DefaultTable
	if cfg.CounterTablePath != "" {
		loaded, err := model.LoadTable(cfg.CounterTablePath)
		if err != nil {
			log.Error("failed to load counter table", "error", err)
			os.Exit(1)
		}
		table = loaded
	}

	reg := registry.New()
	realClock := clock.RealClock{}

	setupWorker := pipeline.NewSetupWorker(reg, table, cfg.Pipeline.SetupBudget, log)
	retireWorker := pipeline.NewRetireWorker(reg, realClock, cfg.RetireInterval(), log)

	tracer := bpftrace.New(*bpfObject, reg, bpftrace.Hooks{
		NeedsSetup:     setupWorker.Enqueue,
		ScheduleRetire: func(*registry.TracedTask) {},
	}, log)

	procFS, err := procfs.NewDefaultFS()
	if err != nil {
		log.Error("failed to open procfs", "error", err)
		os.Exit(1)
	}
	scanner := pipeline.NewScanner(procFS, reg, realClock, cfg.ScannerDelay(), setupWorker.Enqueue, log)

	estimatorSvc := estimator.New(reg, table, realClock, cfg.EstimatorPeriod(), log)

	metricsCollector := metrics.New(reg, version)
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(metricsCollector)

	var capController *powercap.Controller
	if cfg.PowerCap.Enabled {
		capController, err = powercap.New(
			"/sys/devices/system/cpu/cpu%d/cpufreq/scaling_max_freq",
			"/sys/devices/system/cpu/cpu%d/cpufreq/cpuinfo_min_freq",
			"/sys/devices/system/cpu/cpu%d/cpufreq/cpuinfo_max_freq",
			cpuList(),
			int64(cfg.PowerCap.TargetMW),
			int64(cfg.PowerCap.HysteresisMW),
			cfg.PowerCap.StepKHz,
			log,
		)
		if err != nil {
			log.Error("failed to start power-cap controller", "error", err)
			os.Exit(1)
		}
	}

	sampler, err := rapl.NewSampler(cfg.RAPL.MSRPath, []int{0}, realClock, cfg.SamplerPeriod(), func(mw int64) {
		metricsCollector.ObservePackagePower(mw)
		if capController != nil {
			capController.Observe(mw)
		}
	}, log)
	if err != nil {
		log.Warn("RAPL sampler unavailable, package power will not be reported", "error", err)
	}

	handler := surface.NewHandler(reg, log)
	httpSvc := surface.NewService(cfg.HTTP.Address, cfg.HTTP.TLSConfigFile, handler, promReg, log)

	services := []service.Service{setupWorker, retireWorker, tracer, scanner, estimatorSvc, httpSvc}
	if sampler != nil {
		services = append(services, sampler)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Init(ctx, log, services); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	if *dumpMode {
		runDumpMode(ctx, reg)
		return
	}

	if err := service.Run(ctx, log, services); err != nil {
		log.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func runDumpMode(ctx context.Context, reg *registry.Registry) {
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
	dump.Write(os.Stdout, reg)
}

// cpuList enumerates the logical CPUs the power-cap controller should
// manage. Multi-package topology discovery is out of scope (spec.md §1
// Non-goals); every core is treated uniformly.
func cpuList() []int {
	n := runtime.NumCPU()
	cpus := make([]int, n)
	for i := range cpus {
		cpus[i] = i
	}
	return cpus
}
