// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package rapl implements the package-level energy sampler (spec.md §4.F):
// reads the running-average power limit energy-status register over MSRs,
// resolved in favor of MSR access (spec.md §9 Open Question (d)) since it
// generalizes across sockets without depending on a perf_event PMU type
// being registered for "power" events.
package rapl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"os"
	"time"
)

// MSR addresses read from /dev/cpu/%d/msr, matching the teacher's
// internal/device/msr_reader.go catalog.
const (
	msrRaplPowerUnit   = 0x606
	msrPkgEnergyStatus = 0x611
)

// ErrMSRRead wraps any failure reading or opening an MSR device file.
var ErrMSRRead = errors.New("rapl: msr read failed")

// Reader samples one package's energy-status register over time, converting
// each raw read to microjoules immediately and differencing on that already
// converted value rather than on the raw 32-bit register.
type Reader struct {
	f               *os.File
	energyUnitShift uint

	lastUJ   uint64
	lastAt   time.Time
	haveLast bool
}

// Open derives the energy unit from MSR_RAPL_POWER_UNIT and leaves the file
// open for repeated MSR_PKG_ENERGY_STATUS reads. pathTemplate is typically
// "/dev/cpu/%d/msr"; cpu identifies any core in the target package (RAPL
// registers are package-wide, reachable from any sibling core).
func Open(pathTemplate string, cpu int) (*Reader, error) {
	path := fmt.Sprintf(pathTemplate, cpu)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMSRRead, path, err)
	}

	r := &Reader{f: f}
	unit, err := r.read(msrRaplPowerUnit)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.energyUnitShift = energyUnitShift(unit)
	return r, nil
}

func (r *Reader) read(addr int64) (uint64, error) {
	var buf [8]byte
	if _, err := r.f.ReadAt(buf[:], addr); err != nil {
		return 0, fmt.Errorf("%w: offset 0x%x: %v", ErrMSRRead, addr, err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// energyUnitShift derives the RAPL energy unit's right-shift amount from the
// raw MSR_RAPL_POWER_UNIT value: bits 8:12 encode ESU, where one raw energy
// count is worth 1/2^ESU joules.
func energyUnitShift(rawPowerUnit uint64) uint {
	return uint((rawPowerUnit >> 8) & 0x1f)
}

// energyStatusToUJ converts the lower 32 bits of MSR_PKG_ENERGY_STATUS to
// microjoules: raw*1e6 >> shift. Only the low 32 bits are defined by the
// register; the upper bits of a raw MSR read are reserved.
func energyStatusToUJ(raw uint64, shift uint) uint64 {
	return (uint64(uint32(raw)) * 1_000_000) >> shift
}

// energyDeltaToMW converts a microjoule delta observed over dt into average
// mW, following the original module's differentiation literally rather than
// a direct µJ/ns→mW conversion: numerator = deltaUJ*1e12/dtNs computed with
// a 128-bit intermediate (mul_u64_u64_div_u64 in the kernel source), then
// right-shifted by 32. The shift does not correspond to a dimensional
// conversion; it reproduces the fixed-point scaling the original sampler
// applies, which this module matches byte-for-byte rather than "correcting"
// since exact energy-model calibration is out of scope.
func energyDeltaToMW(deltaUJ uint64, dtNs int64) int64 {
	if dtNs <= 0 {
		return 0
	}

	hi, lo := bits.Mul64(deltaUJ, 1_000_000_000_000)
	if hi >= uint64(dtNs) {
		// Quotient would overflow 64 bits; this only happens for a deltaUJ
		// so large (multiple wraps between samples) that the reading is
		// meaningless anyway.
		return math.MaxInt64
	}
	numerator, _ := bits.Div64(hi, lo, uint64(dtNs))
	return int64(numerator >> 32)
}

// SampleMW reads the current energy-status counter and returns the average
// package power in mW since the previous call, measured against now. The
// first call after Open has no prior sample and returns 0.
//
// deltaUJ is computed as curUJ-lastUJ with ordinary uint64 wraparound: if
// the underlying 32-bit register wrapped between reads, curUJ's converted
// value can be smaller than lastUJ's, and the subtraction wraps modulo 2^64
// rather than reporting a negative delta (spec.md §9's wraparound-tolerance
// note, applied here to the already-converted energy value rather than the
// raw register, matching the original sampler's own differencing point).
func (r *Reader) SampleMW(now time.Time) (int64, error) {
	raw, err := r.read(msrPkgEnergyStatus)
	if err != nil {
		return 0, err
	}
	curUJ := energyStatusToUJ(raw, r.energyUnitShift)

	if !r.haveLast {
		r.lastUJ = curUJ
		r.lastAt = now
		r.haveLast = true
		return 0, nil
	}

	deltaUJ := curUJ - r.lastUJ
	dtNs := now.Sub(r.lastAt).Nanoseconds()
	r.lastUJ = curUJ
	r.lastAt = now

	return energyDeltaToMW(deltaUJ, dtNs), nil
}

func (r *Reader) Close() error {
	return r.f.Close()
}
