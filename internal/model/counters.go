// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/jszwec/csvutil"
)

// NumCounters is N in spec.md §3: the fixed width of every per-task counter
// array (event[], counts[], diff_counts[]) and of the CounterDescriptor
// table itself.
const NumCounters = 8

// CounterDescriptor names one hardware event programmed into a counter slot
// and its signed coefficient in the linear energy model. The table is
// shared, read-only after module init (spec.md §3 invariant 6).
type CounterDescriptor struct {
	EventCode uint8 `csv:"event_code"`
	Umask     uint8 `csv:"umask"`
	Koeff     int64 `csv:"koeff"`
}

// DefaultTable is the build-time coefficient vector. The specific event
// encodings are a placeholder catalog: spec.md §1 deliberately keeps the
// hardware counter encoding opaque to this package, so these values stand in
// for whatever descriptor table a deployment builds against.
var DefaultTable = [NumCounters]CounterDescriptor{
	{EventCode: 0x3c, Umask: 0x00, Koeff: 95},    // unhalted core cycles
	{EventCode: 0xc0, Umask: 0x00, Koeff: 110},   // instructions retired
	{EventCode: 0x2e, Umask: 0x41, Koeff: 760},   // LLC misses
	{EventCode: 0x0d, Umask: 0x03, Koeff: -40},   // int_misc.recovery_cycles
	{EventCode: 0xa2, Umask: 0x01, Koeff: 35},    // resource_stalls.any
	{EventCode: 0x24, Umask: 0xe4, Koeff: 220},   // l2_rqsts.all_code_rd
	{EventCode: 0x48, Umask: 0x01, Koeff: 180},   // l1d_pend_miss.pending
	{EventCode: 0xb0, Umask: 0x01, Koeff: 12},    // offcore_requests.demand_data_rd
}

// LoadTable decodes a CounterDescriptor table from a CSV file with columns
// event_code,umask,koeff, overriding DefaultTable at startup. Exactly
// NumCounters rows are expected; extra rows are ignored and a short file is
// an error, since every slot in a TracedTask must correspond to some row.
func LoadTable(path string) ([NumCounters]CounterDescriptor, error) {
	var table [NumCounters]CounterDescriptor

	f, err := os.Open(path)
	if err != nil {
		return table, fmt.Errorf("failed to open counter table %s: %w", path, err)
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		return table, fmt.Errorf("failed to create csv decoder: %w", err)
	}

	i := 0
	for {
		var row CounterDescriptor
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return table, fmt.Errorf("failed to decode counter table row %d: %w", i, err)
		}
		if i >= NumCounters {
			break
		}
		table[i] = row
		i++
	}

	if i < NumCounters {
		return table, fmt.Errorf("counter table %s has %d rows, want %d", path, i, NumCounters)
	}
	return table, nil
}
