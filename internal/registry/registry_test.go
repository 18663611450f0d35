// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupOrCreateMissWithoutCreate(t *testing.T) {
	r := New()
	_, err := r.LookupOrCreate(1, "", false)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLookupOrCreateInsertsAndHits(t *testing.T) {
	r := New()
	created, err := r.LookupOrCreate(42, "proc", true)
	require.NoError(t, err)
	assert.Equal(t, int32(42), created.PID)
	assert.Equal(t, int32(2), created.RefCount()) // list + caller
	r.Put(created)

	hit, err := r.Lookup(42)
	require.NoError(t, err)
	assert.Same(t, created, hit)
	r.Put(hit)
}

func TestFinalizeRunsOnlyOnLastRelease(t *testing.T) {
	var finalized []int32
	SetFinalizer(func(t *TracedTask) { finalized = append(finalized, t.PID) })
	defer SetFinalizer(nil)

	r := New()
	t1, err := r.LookupOrCreate(7, "p", true)
	require.NoError(t, err)

	t1.Acquire() // simulate a third holder
	r.Put(t1)    // drops the caller's ref from LookupOrCreate; list + extra still held

	assert.Empty(t, finalized)

	r.DetachLive(t1) // drops the list's ref; the extra acquire is still outstanding
	assert.Empty(t, finalized)

	r.Put(t1) // drops the last (extra) ref
	assert.Equal(t, []int32{7}, finalized)
}

func TestDrainRetiringIsFIFO(t *testing.T) {
	r := New()
	a, _ := r.LookupOrCreate(1, "", true)
	b, _ := r.LookupOrCreate(2, "", true)

	r.DetachLive(a)
	a.Acquire()
	r.EnqueueRetiring(a)

	r.DetachLive(b)
	b.Acquire()
	r.EnqueueRetiring(b)

	drained := r.DrainRetiring()
	require.Len(t, drained, 2)
	assert.Equal(t, int32(1), drained[0].PID)
	assert.Equal(t, int32(2), drained[1].PID)

	for _, task := range drained {
		r.Put(task)
	}
	r.Put(a)
	r.Put(b)

	assert.True(t, r.Empty())
}

func TestForEachLiveAcquiresAndReleases(t *testing.T) {
	r := New()
	t1, _ := r.LookupOrCreate(99, "", true)
	r.Put(t1)

	var seen []int32
	r.ForEachLive(func(t *TracedTask) {
		seen = append(seen, t.PID)
		assert.Equal(t, int32(2), t.RefCount()) // list + this callback's temporary ref
	})

	assert.Equal(t, []int32{99}, seen)
	assert.Equal(t, int32(1), t1.RefCount()) // back down to just the list
}
