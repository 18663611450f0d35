// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package bpftrace

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// decodeEvent unmarshals one ring buffer record into a RawEvent. RawEvent's
// fields are all fixed-width and in the BPF program's native layout, so a
// single binary.Read suffices — the same pattern the teacher's exporter uses
// to decode its own ring buffer records.
func decodeEvent(raw []byte) (RawEvent, error) {
	var ev RawEvent
	if err := binary.Read(bytes.NewReader(raw), binary.NativeEndian, &ev); err != nil {
		return RawEvent{}, fmt.Errorf("decode ring buffer record: %w", err)
	}
	return ev, nil
}
