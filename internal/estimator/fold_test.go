// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saturneric/pacct-energy/internal/model"
)

func TestFoldEnergyDeltaUJSimple(t *testing.T) {
	table := [model.NumCounters]model.CounterDescriptor{
		{Koeff: 1000}, // 1000/EnergyScale µJ per count
	}
	var diffs [model.NumCounters]uint64
	diffs[0] = EnergyScale // EnergyScale counts at koeff 1000 -> 1000 µJ

	got := foldEnergyDeltaUJ(table, diffs)
	assert.Equal(t, uint64(1000), got)
}

func TestFoldEnergyDeltaUJNegativeCoefficientOffsets(t *testing.T) {
	table := [model.NumCounters]model.CounterDescriptor{
		{Koeff: 2000},
		{Koeff: -500},
	}
	var diffs [model.NumCounters]uint64
	diffs[0] = EnergyScale
	diffs[1] = EnergyScale

	got := foldEnergyDeltaUJ(table, diffs)
	assert.Equal(t, uint64(1500), got)
}

func TestFoldEnergyDeltaUJNetNegativeReturnsUnderflowSentinel(t *testing.T) {
	table := [model.NumCounters]model.CounterDescriptor{
		{Koeff: 100},
		{Koeff: -900},
	}
	var diffs [model.NumCounters]uint64
	diffs[0] = EnergyScale
	diffs[1] = EnergyScale

	got := foldEnergyDeltaUJ(table, diffs)
	assert.Equal(t, underflowSentinel, got)
}

func TestFoldEnergyDeltaUJSkipsZeroSlots(t *testing.T) {
	table := [model.NumCounters]model.CounterDescriptor{
		{Koeff: 50},
	}
	var diffs [model.NumCounters]uint64 // all zero

	got := foldEnergyDeltaUJ(table, diffs)
	assert.Equal(t, uint64(0), got)
}
