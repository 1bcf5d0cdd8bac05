package allocator

import (
	"fmt"
	"strings"
)

// Stats produces a diagnostic snapshot of the registry: the allocator's
// live descriptor chain plus the recycle bin contents. It is purely
// read-only and has no behavioural effect; the exact layout is
// diagnostic only, never a compatibility surface, and is gated behind
// Config.EnableStats so disabling it costs nothing at runtime.
func (a *Allocator) Stats() string {
	if !a.cfg.EnableStats {
		return "stats disabled (constructed with WithStats(false))"
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "allocator %p: total=%d free=%d occupied=%d use_free_bin=%t\n",
		a, a.reg.totalSize, a.reg.freeSize, a.reg.totalSize-a.reg.freeSize, a.reg.useFreeBin)

	for id := a.reg.head; id != invalidIndex; id = a.reg.at(id).next {
		b := a.reg.at(id)
		fmt.Fprintf(&sb, "  #%d size=%d free=%t primary=%t next=%s adjacent=%t memory=%#x\n",
			id, b.size, b.isFree, b.isPrimary, idString(b.next), b.isAdjacentToNext, b.memory)
	}

	fmt.Fprintf(&sb, "  free_ids=%v\n", a.reg.freeIDs)

	return sb.String()
}

func idString(id uint32) string {
	if id == invalidIndex {
		return "⊥"
	}

	return fmt.Sprintf("%d", id)
}
