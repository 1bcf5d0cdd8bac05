package allocator

import "testing"

func TestAllocateSlot(t *testing.T) {
	t.Run("AppendsBelowThreshold", func(t *testing.T) {
		r := newRegistry(8)

		id := r.allocateSlot(block{size: 10, next: invalidIndex})
		r.invalidate(id)

		if r.useFreeBin {
			t.Fatal("bin should not latch on below freeIDsThreshold")
		}

		next := r.allocateSlot(block{size: 20, next: invalidIndex})
		if int(next) != len(r.blocks)-1 {
			t.Fatalf("expected a freshly appended slot, got index %d of %d", next, len(r.blocks))
		}
	})

	t.Run("ReusesRecycleBinOnceLatched", func(t *testing.T) {
		r := newRegistry(8)

		var ids []uint32
		for i := 0; i < freeIDsThreshold+1; i++ {
			ids = append(ids, r.allocateSlot(block{size: uintptr(i), next: invalidIndex}))
		}

		for _, id := range ids {
			r.invalidate(id)
		}

		if !r.useFreeBin {
			t.Fatal("expected use_free_bin to latch on after exceeding freeIDsThreshold")
		}

		before := len(r.blocks)
		reused := r.allocateSlot(block{size: 999, next: invalidIndex})

		if len(r.blocks) != before {
			t.Fatalf("allocateSlot appended a new slot instead of reusing one: len=%d, want %d", len(r.blocks), before)
		}

		if r.blocks[reused].size != 999 {
			t.Fatalf("reused slot holds wrong descriptor: got size %d", r.blocks[reused].size)
		}
	})
}

func TestInvalidate(t *testing.T) {
	t.Run("LatchesOffWhenBinDrains", func(t *testing.T) {
		r := newRegistry(8)

		var ids []uint32
		for i := 0; i < freeIDsThreshold+2; i++ {
			ids = append(ids, r.allocateSlot(block{size: uintptr(i), next: invalidIndex}))
		}

		for _, id := range ids {
			r.invalidate(id)
		}

		if !r.useFreeBin {
			t.Fatal("expected bin latched on")
		}

		for len(r.freeIDs) > 0 {
			r.allocateSlot(block{next: invalidIndex})
		}

		if r.useFreeBin {
			t.Fatal("expected use_free_bin to latch off once the bin drains")
		}
	})
}

func TestRegistryReset(t *testing.T) {
	t.Run("ClearsEverything", func(t *testing.T) {
		r := newRegistry(8)
		r.allocateSlot(block{size: 10, next: invalidIndex})
		r.head = 0
		r.tail = 0
		r.totalSize = 10
		r.freeSize = 10

		r.reset()

		if len(r.blocks) != 0 || r.head != invalidIndex || r.tail != invalidIndex {
			t.Fatal("reset did not clear registry state")
		}

		if r.totalSize != 0 || r.freeSize != 0 || r.useFreeBin {
			t.Fatal("reset did not clear size/bin state")
		}
	})
}
