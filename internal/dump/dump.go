// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package dump renders a one-shot stdout snapshot of the live task registry
// for the --dump debug mode, grounded on the teacher's
// internal/exporter/stdout/stdout.go tablewriter usage.
package dump

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/saturneric/pacct-energy/internal/registry"
)

// Write renders every live task as one table row: pid, comm, cumulative
// energy (µJ), and the three power fields (mW).
func Write(w io.Writer, reg *registry.Registry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PID", "COMM", "ENERGY_UJ", "POWER_I_MW", "POWER_A_MW", "POWER_W_MW"})

	reg.ForEachLive(func(t *registry.TracedTask) {
		table.Append([]string{
			strconv.Itoa(int(t.PID)),
			t.Comm,
			strconv.FormatUint(t.Energy.Load(), 10),
			strconv.FormatInt(t.PowerI.Load(), 10),
			strconv.FormatInt(t.PowerA.Load(), 10),
			strconv.FormatInt(t.PowerW.Load(), 10),
		})
	})

	table.Render()
}
