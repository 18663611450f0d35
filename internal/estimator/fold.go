// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package estimator implements the periodic energy estimator (spec.md
// §4.E): it folds each live task's accumulated counter deltas through the
// CounterDescriptor linear model into a microjoule energy delta, then
// derives instant/wall/average power from it.
package estimator

import (
	"math/bits"

	"github.com/saturneric/pacct-energy/internal/model"
)

// EnergyScale is the fixed-point denominator: koeff is µJ-per-count scaled
// by EnergyScale (picojoules per count), so the fold's raw 128-bit sum
// divides back down to µJ.
const EnergyScale = 1_000_000

// overflowSentinel is returned by foldEnergyDeltaUJ when the 128-bit fold
// can't be scaled back into 64 bits; the caller logs a NumericAnomaly and
// clamps to zero rather than wrapping silently.
const overflowSentinel = ^uint64(0)

// underflowSentinel is returned when the credited (negative-koeff) terms
// outweigh the debited ones; the caller logs a NumericAnomaly and clamps to
// zero the same way it does for overflowSentinel.
const underflowSentinel = ^uint64(0) - 1

// foldEnergyDeltaUJ sums koeff_i * diffCounts_i across every non-errored
// slot. Each product is computed to full 128-bit width with bits.Mul64
// before being added into a running 128-bit accumulator (bits.Add64) so that
// eight products — each individually safe in 64 bits — can't silently wrap
// when summed. Positive and negative coefficients accumulate into separate
// magnitudes and are subtracted once, after folding, rather than per-term,
// so a negative koeff (e.g. a stall-cycle credit) can offset the positive
// terms without an intermediate underflow.
func foldEnergyDeltaUJ(table [model.NumCounters]model.CounterDescriptor, diffs [model.NumCounters]uint64) uint64 {
	var posHi, posLo, negHi, negLo uint64

	for i, d := range table {
		if d.Koeff == 0 || diffs[i] == 0 {
			continue
		}
		mag := uint64(d.Koeff)
		neg := d.Koeff < 0
		if neg {
			mag = uint64(-d.Koeff)
		}

		hi, lo := bits.Mul64(mag, diffs[i])
		if neg {
			var carry uint64
			negLo, carry = bits.Add64(negLo, lo, 0)
			negHi, _ = bits.Add64(negHi, hi, carry)
		} else {
			var carry uint64
			posLo, carry = bits.Add64(posLo, lo, 0)
			posHi, _ = bits.Add64(posHi, hi, carry)
		}
	}

	loDiff, borrow := bits.Sub64(posLo, negLo, 0)
	hiDiff, underflow := bits.Sub64(posHi, negHi, borrow)
	if underflow != 0 {
		// net negative fold this tick: the task's credited (negative-koeff)
		// events outweighed its debited ones; contributes no energy.
		return underflowSentinel
	}
	if hiDiff >= EnergyScale {
		return overflowSentinel
	}

	quo, _ := bits.Div64(hiDiff, loDiff, EnergyScale)
	return quo
}
