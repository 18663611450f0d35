// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads pacctd's configuration from a YAML file with
// command-line flag overrides, following the same Load/Validate shape the
// rest of the fleet uses.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
)

type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	// RAPL controls the package energy sampler (component F).
	RAPL struct {
		PMUType  int    `yaml:"pmu_type"`
		MSRPath  string `yaml:"msr_path"`
		PeriodMs int    `yaml:"period_ms"`
	}

	// PowerCap controls the optional hysteresis controller (component G).
	PowerCap struct {
		Enabled      bool `yaml:"enabled"`
		TargetMW     int  `yaml:"target_mw"`
		HysteresisMW int  `yaml:"hysteresis_mw"`
		StepKHz      int  `yaml:"step_khz"`
	}

	// Pipeline controls the worker budgets and periods (component D).
	Pipeline struct {
		SetupBudget      int `yaml:"setup_budget"`
		EstimatorPeriod  int `yaml:"estimator_period_ms"`
		ScannerDelayMs   int `yaml:"scanner_delay_ms"`
		RetireIntervalMs int `yaml:"retire_interval_ms"`
	}

	HTTP struct {
		Address       string `yaml:"address"`
		TLSConfigFile string `yaml:"tls_config_file"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		RAPL     RAPL     `yaml:"rapl"`
		PowerCap PowerCap `yaml:"power_cap"`
		Pipeline Pipeline `yaml:"pipeline"`
		HTTP     HTTP     `yaml:"http"`

		// CounterTablePath optionally overrides the built-in
		// CounterDescriptor table with a CSV file.
		CounterTablePath string `yaml:"counter_table_path"`
	}
)

// Flag names, exposed so cmd/pacctd can bind kingpin.
const (
	LogLevelFlag     = "log.level"
	LogFormatFlag    = "log.format"
	RAPLPMUTypeFlag  = "rapl-pmu-type"
	EnablePowerCap   = "enable-power-cap"
	TargetMWFlag     = "target-mw"
	HysteresisMWFlag = "hysteresis-mw"
	StepKHzFlag      = "step-khz"
	HTTPAddressFlag  = "http.address"
	CounterTableFlag = "counter-table"
)

func Default() *Config {
	return &Config{
		Log: Log{Level: "info", Format: "text"},
		RAPL: RAPL{
			PMUType:  32,
			MSRPath:  "/dev/cpu/%d/msr",
			PeriodMs: 150,
		},
		PowerCap: PowerCap{
			Enabled:      false,
			TargetMW:     30000,
			HysteresisMW: 800,
			StepKHz:      100000,
		},
		Pipeline: Pipeline{
			SetupBudget:      32,
			EstimatorPeriod:  30,
			ScannerDelayMs:   100,
			RetireIntervalMs: 50,
		},
		HTTP: HTTP{Address: "127.0.0.1:9420"},
	}
}

// Load reads and validates a Config from r, defaults filling anything the
// file omits.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile loads configuration from a path; a missing file yields defaults.
func FromFile(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

func (c *Config) Validate() error {
	if c.Pipeline.SetupBudget <= 0 {
		return fmt.Errorf("pipeline.setup_budget must be positive, got %d", c.Pipeline.SetupBudget)
	}
	if c.Pipeline.EstimatorPeriod <= 0 {
		return fmt.Errorf("pipeline.estimator_period_ms must be positive, got %d", c.Pipeline.EstimatorPeriod)
	}
	if c.RAPL.PeriodMs <= 0 {
		return fmt.Errorf("rapl.period_ms must be positive, got %d", c.RAPL.PeriodMs)
	}
	if c.Pipeline.RetireIntervalMs <= 0 {
		return fmt.Errorf("pipeline.retire_interval_ms must be positive, got %d", c.Pipeline.RetireIntervalMs)
	}
	if c.PowerCap.HysteresisMW < 0 {
		return fmt.Errorf("power_cap.hysteresis_mw cannot be negative, got %d", c.PowerCap.HysteresisMW)
	}
	if c.PowerCap.StepKHz <= 0 {
		return fmt.Errorf("power_cap.step_khz must be positive, got %d", c.PowerCap.StepKHz)
	}
	return nil
}

// EstimatorPeriod returns the configured estimator tick as a time.Duration.
func (c *Config) EstimatorPeriod() time.Duration {
	return time.Duration(c.Pipeline.EstimatorPeriod) * time.Millisecond
}

// SamplerPeriod returns the configured RAPL sampler tick as a time.Duration.
func (c *Config) SamplerPeriod() time.Duration {
	return time.Duration(c.RAPL.PeriodMs) * time.Millisecond
}

// ScannerDelay returns the one-shot scanner's startup delay.
func (c *Config) ScannerDelay() time.Duration {
	return time.Duration(c.Pipeline.ScannerDelayMs) * time.Millisecond
}

// RetireInterval returns the configured retire-worker drain tick.
func (c *Config) RetireInterval() time.Duration {
	return time.Duration(c.Pipeline.RetireIntervalMs) * time.Millisecond
}

// RegisterFlags binds kingpin flags that override Config fields after
// parsing, mirroring the teacher's flag-then-file precedence.
func RegisterFlags(app *kingpin.Application, cfg *Config) {
	app.Flag(LogLevelFlag, "log level (debug|info|warn|error)").Default(cfg.Log.Level).StringVar(&cfg.Log.Level)
	app.Flag(LogFormatFlag, "log format (text|json)").Default(cfg.Log.Format).StringVar(&cfg.Log.Format)
	app.Flag(RAPLPMUTypeFlag, "RAPL PMU type identifier").Default(fmt.Sprint(cfg.RAPL.PMUType)).IntVar(&cfg.RAPL.PMUType)
	app.Flag(EnablePowerCap, "turn on the power-cap controller").Default(fmt.Sprint(cfg.PowerCap.Enabled)).BoolVar(&cfg.PowerCap.Enabled)
	app.Flag(TargetMWFlag, "target package power in mW").Default(fmt.Sprint(cfg.PowerCap.TargetMW)).IntVar(&cfg.PowerCap.TargetMW)
	app.Flag(HysteresisMWFlag, "hysteresis band half-width in mW").Default(fmt.Sprint(cfg.PowerCap.HysteresisMW)).IntVar(&cfg.PowerCap.HysteresisMW)
	app.Flag(StepKHzFlag, "frequency ceiling step in kHz").Default(fmt.Sprint(cfg.PowerCap.StepKHz)).IntVar(&cfg.PowerCap.StepKHz)
	app.Flag(HTTPAddressFlag, "bind address for the per-task surface and metrics").Default(cfg.HTTP.Address).StringVar(&cfg.HTTP.Address)
	app.Flag(CounterTableFlag, "optional CSV override of the CounterDescriptor table").StringVar(&cfg.CounterTablePath)
}
