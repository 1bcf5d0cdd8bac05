// Package allocator implements a dynamic, index-addressed free-list memory
// allocator over one or more contiguous regions obtained from a backing
// allocator. It is the free-list state machine: block splitting and
// coalescing, grow/shrink of the region pool, and the invariants tying
// primary regions to the blocks carved from them.
//
// The allocator is single-threaded; callers must provide their own
// synchronization for concurrent use.
package allocator

import (
	"fmt"
	"log"
)

// minAllocSize is the smallest remainder Allocate will carve off when
// splitting a block. A split is declined below this, leaving the caller
// with over-provisioned slack rather than spawning a sliver descriptor
// nobody can usefully allocate into later.
const minAllocSize uintptr = 64

// Allocator owns the registry and the backing allocator, and exposes the
// free-list operations (Allocate, Free, Resize, Clear) plus the derived
// size accessors and diagnostic Stats.
type Allocator struct {
	reg     registry
	backing Backing
	cfg     *Config
}

// Construct builds an allocator, reserving descriptor storage for
// maxDescriptors and performing an initial Resize(baseSize). A baseSize
// of 0 leaves the allocator empty; the first Allocate then grows the
// pool from nothing, exactly as a later Resize from empty would.
func Construct(baseSize uintptr, maxDescriptors int, opts ...Option) (*Allocator, error) {
	cfg := defaultConfig()
	cfg.MaxDescriptorsHint = maxDescriptors

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validateBackingVersion(); err != nil {
		return nil, err
	}

	a := &Allocator{
		reg:     newRegistry(cfg.MaxDescriptorsHint),
		backing: cfg.Backing,
		cfg:     cfg,
	}

	if baseSize > 0 {
		if _, err := a.Resize(baseSize); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Allocate services a best-fit allocation request, growing the pool via
// Resize when no existing free block can satisfy it. size must be
// greater than zero; calling with size==0 is a caller bug, not a runtime
// condition, so it is reported as a panic rather than an error value. In
// a debug-enabled allocator (WithDebug(true)) that panic is recovered at
// this call and turned into an error instead, so a misbehaving caller
// embedded in a larger program doesn't bring the whole process down
// while its author is still chasing the bug down.
func (a *Allocator) Allocate(size uintptr) (addr uintptr, err error) {
	if a.cfg.EnableDebug {
		defer func() {
			if r := recover(); r != nil {
				pe, ok := r.(*PreconditionError)
				if !ok {
					panic(r)
				}

				log.Printf("allocator: recovered precondition violation: %s", pe.Message)

				err = pe
			}
		}()
	}

	if size == 0 {
		panicPrecondition("Allocate called with size 0")
	}

	reg := &a.reg

	if size > reg.freeSize {
		a.debugf("Allocate(%d): insufficient free space (%d free), growing pool", size, reg.freeSize)

		if _, err := a.Resize(reg.totalSize + size); err != nil {
			return 0, err
		}
	}

	bestID := a.bestFit(size)

	if bestID == invalidIndex {
		a.debugf("Allocate(%d): no single free block fits, growing pool", size)

		if _, err := a.Resize(reg.totalSize + size); err != nil {
			return 0, err
		}

		bestID = reg.tail
	}

	b := reg.at(bestID)
	addr = b.memory

	if b.size > size && b.size-size >= minAllocSize {
		remainder := block{
			size:             b.size - size,
			memory:           b.memory + size,
			isFree:           true,
			isPrimary:        false,
			next:             b.next,
			isAdjacentToNext: b.isAdjacentToNext,
		}

		remID := reg.allocateSlot(remainder)
		a.debugf("Allocate(%d): splitting descriptor #%d, remainder #%d of %d bytes", size, bestID, remID, remainder.size)

		b = reg.at(bestID) // allocateSlot may have grown reg.blocks; re-fetch.
		b.size = size      // the granted range shrinks to exactly what was requested.
		b.next = remID
		b.isAdjacentToNext = true

		if reg.tail == bestID {
			reg.tail = remID
		}

		b.isFree = false
		reg.freeSize -= size
	} else {
		b.isFree = false
		// A too-small remainder means the whole block is consumed, not just
		// size bytes of it: free_size must drop by b.size so it never
		// overstates how many bytes are truly still allocatable.
		reg.freeSize -= b.size
	}

	return addr, nil
}

// bestFit walks the whole list selecting the smallest free block with
// size >= request, ties broken by first occurrence. It always walks the
// full list rather than stopping at the first exact match, since a
// later exact match is a strictly better fit than an earlier oversized
// one.
func (a *Allocator) bestFit(size uintptr) uint32 {
	reg := &a.reg
	best := invalidIndex
	bestSize := uintptr(0)

	for id := reg.head; id != invalidIndex; id = reg.at(id).next {
		b := reg.at(id)
		if !b.isFree || b.size < size {
			continue
		}

		if best == invalidIndex || b.size < bestSize {
			best = id
			bestSize = b.size
		}
	}

	return best
}

// Free locates the descriptor owning addr, marks it free, and coalesces
// with adjacent free neighbours forward then backward, so a contiguous
// free|target|free run collapses into one descriptor in a single call.
// It returns false if addr is not currently held by this allocator.
func (a *Allocator) Free(addr uintptr) bool {
	reg := &a.reg

	prev := invalidIndex
	cur := reg.head

	for cur != invalidIndex {
		if reg.at(cur).memory == addr {
			break
		}

		prev = cur
		cur = reg.at(cur).next
	}

	if cur == invalidIndex {
		a.debugf("Free(%#x): address not held by this allocator", addr)

		return false
	}

	c := reg.at(cur)
	c.isFree = true
	reg.freeSize += c.size

	if c.next != invalidIndex && c.isAdjacentToNext {
		n := reg.at(c.next)
		if n.isFree {
			absorbed := c.next
			c.size += n.size
			c.isAdjacentToNext = n.isAdjacentToNext
			c.next = n.next

			if reg.tail == absorbed {
				reg.tail = cur
			}

			reg.invalidate(absorbed)
			a.debugf("Free(%#x): merged forward with descriptor #%d", addr, absorbed)
		}
	}

	if prev != invalidIndex {
		p := reg.at(prev)
		if p.isAdjacentToNext && p.isFree {
			p.size += c.size
			p.isAdjacentToNext = c.isAdjacentToNext
			p.next = c.next

			if reg.tail == cur {
				reg.tail = prev
			}

			reg.invalidate(cur)
			a.debugf("Free(%#x): merged backward into descriptor #%d", addr, prev)
		}
	}

	return true
}

// Resize grows or shrinks the pool's total size toward target.
//
// Growth always succeeds unless the backing allocator itself fails
// with an out-of-memory error. Shrink releases primary regions that are
// free and not merged into a neighbour, stopping once total size or
// free size reaches target; it reports a shrink-unsatisfied error if no
// amount of releasing gets there, keeping whatever shrinkage did
// happen. Resize returns true once the pool is at or under target, and
// false only when a shrink could not reach it.
func (a *Allocator) Resize(target uintptr) (bool, error) {
	reg := &a.reg

	switch {
	case reg.totalSize == 0 && reg.head == invalidIndex:
		return a.resizeFromEmpty(target)
	case target > reg.totalSize:
		return a.grow(target)
	case target == reg.totalSize:
		return true, nil
	default:
		return a.shrink(target)
	}
}

func (a *Allocator) resizeFromEmpty(target uintptr) (bool, error) {
	reg := &a.reg

	a.debugf("Resize(%d): acquiring the first primary region from an empty pool", target)

	addr, err := a.backing.Acquire(target)
	if err != nil {
		return false, errOutOfBackingMemory(target, err)
	}

	id := reg.allocateSlot(block{
		memory:    addr,
		size:      target,
		isFree:    true,
		isPrimary: true,
		next:      invalidIndex,
	})
	reg.head = id
	reg.tail = id
	reg.totalSize = target
	reg.freeSize = target

	return true, nil
}

func (a *Allocator) grow(target uintptr) (bool, error) {
	reg := &a.reg
	delta := target - reg.totalSize

	a.debugf("Resize(%d): growing by %d bytes as a new primary region", target, delta)

	addr, err := a.backing.Acquire(delta)
	if err != nil {
		return false, errOutOfBackingMemory(delta, err)
	}

	id := reg.allocateSlot(block{
		memory:    addr,
		size:      delta,
		isFree:    true,
		isPrimary: true,
		next:      invalidIndex,
	})

	if reg.tail != invalidIndex {
		tail := reg.at(reg.tail)
		tail.next = id
		tail.isAdjacentToNext = false // distinct primary regions, never coalesced across.
	}

	if reg.head == invalidIndex {
		reg.head = id
	}

	reg.tail = id
	reg.totalSize = target
	reg.freeSize += delta

	return true, nil
}

func (a *Allocator) shrink(target uintptr) (bool, error) {
	reg := &a.reg

	if reg.freeSize < target {
		return false, errShrinkUnsatisfied(target, reg.totalSize)
	}

	prev := invalidIndex
	cur := reg.head

	for cur != invalidIndex && reg.totalSize > target && reg.freeSize > target {
		b := reg.at(cur)
		next := b.next

		// A region is only releasable once it is whole again: a split by
		// Allocate leaves the front half primary but merged into its
		// remainder (is_adjacent_to_next), and that merge has to be undone
		// by a later Free before the region is a standalone candidate for
		// release.
		if !(b.isPrimary && b.isFree && !b.isAdjacentToNext) {
			prev = cur
			cur = next

			continue
		}

		addr, size := b.memory, b.size

		a.debugf("Resize(%d): releasing primary region %#x (%d bytes)", target, addr, size)

		if err := a.backing.Release(addr); err != nil {
			return false, fmt.Errorf("resize: releasing primary region %#x: %w", addr, err)
		}

		if prev == invalidIndex {
			reg.head = next
		} else {
			reg.at(prev).next = next
		}

		if reg.tail == cur {
			reg.tail = prev
		}

		reg.totalSize -= size
		reg.freeSize -= size
		reg.invalidate(cur)

		cur = next
	}

	if reg.totalSize > target {
		return false, errShrinkUnsatisfied(target, reg.totalSize)
	}

	return true, nil
}

// Clear releases every primary region via the backing allocator and
// resets all registry state to empty. Caller-held addresses are
// invalidated by this call.
func (a *Allocator) Clear() {
	a.debugf("Clear: releasing all primary regions")

	reg := &a.reg

	cur := reg.head
	for cur != invalidIndex {
		b := reg.at(cur)
		next := b.next

		if b.isPrimary {
			_ = a.backing.Release(b.memory)
		}

		cur = next
	}

	reg.reset()
}

// TotalSize returns the sum of live descriptor sizes.
func (a *Allocator) TotalSize() uintptr { return a.reg.totalSize }

// FreeSize returns the sum of free live descriptor sizes.
func (a *Allocator) FreeSize() uintptr { return a.reg.freeSize }

// OccupiedSize returns TotalSize() - FreeSize().
func (a *Allocator) OccupiedSize() uintptr { return a.reg.totalSize - a.reg.freeSize }

// debugf emits a diagnostic line at an allocator decision point when the
// allocator was constructed with WithDebug(true). It only writes a log
// line, never takes a behavioural branch, so enabling it cannot change what
// an allocator does, only what it reports while doing it.
func (a *Allocator) debugf(format string, args ...any) {
	if !a.cfg.EnableDebug {
		return
	}

	log.Printf("allocator: "+format, args...)
}
