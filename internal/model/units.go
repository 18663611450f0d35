// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package model holds the types shared by every accounting component: the
// energy/power unit wrappers and the CounterDescriptor table that drives
// the linear energy model.
package model

import "fmt"

// Energy is an accumulated µJ count.
type Energy uint64

func (e Energy) MicroJoules() uint64 { return uint64(e) }
func (e Energy) Joules() float64     { return float64(e) / 1_000_000 }
func (e Energy) String() string      { return fmt.Sprintf("%dµJ", uint64(e)) }

// Power is an instantaneous/average mW reading. Signed because smoothed
// intermediates can transiently dip below zero before being clamped.
type Power int64

const (
	MilliWatt Power = 1
	Watt            = 1000 * MilliWatt
)

func (p Power) MilliWatts() int64 { return int64(p) }
func (p Power) Watts() float64    { return float64(p) / float64(Watt) }
func (p Power) String() string    { return fmt.Sprintf("%dmW", int64(p)) }
