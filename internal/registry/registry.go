// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the reference-counted task registry
// (spec.md §4.B): a live list, a retiring list, and one lock guarding list
// membership and the refcount transitions that happen during lookup.
package registry

import (
	"container/list"
	"errors"
	"sync"
)

// ErrNotFound is returned by Lookup when no record exists for a pid.
var ErrNotFound = errors.New("registry: task not found")

// Registry holds the live and retiring lists. The zero value is not usable;
// construct with New.
type Registry struct {
	mu sync.Mutex

	live     *list.List
	liveIdx  map[int32]*TracedTask
	retiring *list.List
}

func New() *Registry {
	return &Registry{
		live:     list.New(),
		liveIdx:  make(map[int32]*TracedTask),
		retiring: list.New(),
	}
}

// LookupOrCreate scans live for pid. On a hit it acquires a reference and
// returns the existing record. On a miss, if create is false it returns
// ErrNotFound; otherwise it allocates a new record (no blocking allocator
// involved — a composite literal only), inserts it into live with the
// list's own reference, and returns it with one additional reference for
// the caller.
func (r *Registry) LookupOrCreate(pid int32, comm string, create bool) (*TracedTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.liveIdx[pid]; ok {
		t.Acquire()
		return t, nil
	}
	if !create {
		return nil, ErrNotFound
	}

	t := &TracedTask{PID: pid, Comm: comm}
	t.refCount.Store(2) // one for the list, one for the caller
	t.liveElem = r.live.PushBack(t)
	r.liveIdx[pid] = t
	return t, nil
}

// Lookup is LookupOrCreate(pid, "", false).
func (r *Registry) Lookup(pid int32) (*TracedTask, error) {
	return r.LookupOrCreate(pid, "", false)
}

// Put drops a reference acquired via Lookup/LookupOrCreate/ForEachLive,
// finalizing the record (releasing its counter handles) if this was the
// last one. Every holder of a reference outside this package must release
// it through Put rather than calling TracedTask.Release directly, or the
// finalizer never runs.
func (r *Registry) Put(t *TracedTask) {
	if t.Release() {
		finalize(t)
	}
}

// DetachLive removes t from the live list. The caller must already hold a
// reference; this drops the list's reference, which may free the record if
// it was the last one.
func (r *Registry) DetachLive(t *TracedTask) {
	r.mu.Lock()
	if t.liveElem != nil {
		r.live.Remove(t.liveElem)
		t.liveElem = nil
		delete(r.liveIdx, t.PID)
	}
	r.mu.Unlock()

	if t.Release() {
		finalize(t)
	}
}

// EnqueueRetiring appends t to the retiring list, transferring the caller's
// reference to the list (the caller should not use t afterward without a
// fresh Acquire).
func (r *Registry) EnqueueRetiring(t *TracedTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.retiringElem = r.retiring.PushBack(t)
}

// DrainRetiring removes and returns every record currently on the retiring
// list, FIFO. It does not drop the list's reference: each returned record
// still carries it, and the caller drops it with Put (the retire worker does
// so, which runs the finalizer that releases counter handles).
func (r *Registry) DrainRetiring() []*TracedTask {
	r.mu.Lock()
	drained := make([]*TracedTask, 0, r.retiring.Len())
	for e := r.retiring.Front(); e != nil; {
		next := e.Next()
		t := e.Value.(*TracedTask)
		r.retiring.Remove(e)
		t.retiringElem = nil
		drained = append(drained, t)
		e = next
	}
	r.mu.Unlock()
	return drained
}

// ForEachLive calls fn for every record on the live list, taking a
// reference before the callback and releasing it after, so fn never holds
// the registry lock (spec.md §4.D item 3/4: estimator and sampler iterate
// outside the lock).
func (r *Registry) ForEachLive(fn func(*TracedTask)) {
	r.mu.Lock()
	refs := make([]*TracedTask, 0, r.live.Len())
	for e := r.live.Front(); e != nil; e = e.Next() {
		t := e.Value.(*TracedTask)
		t.Acquire()
		refs = append(refs, t)
	}
	r.mu.Unlock()

	for _, t := range refs {
		fn(t)
		if t.Release() {
			finalize(t)
		}
	}
}

// Empty reports whether both lists are empty — used by shutdown tests
// (spec.md §8 property 4).
func (r *Registry) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live.Len() == 0 && r.retiring.Len() == 0
}

// finalizer is invoked when a TracedTask's refcount reaches zero. It is
// package-level so the retire worker (which owns counter release) can
// install the real one without this package importing internal/counter.
var finalizer func(*TracedTask)

// SetFinalizer installs the function called when a record's last reference
// drops, responsible for releasing counter handles.
func SetFinalizer(fn func(*TracedTask)) {
	finalizer = fn
}

func finalize(t *TracedTask) {
	if finalizer != nil {
		finalizer(t)
	}
}
