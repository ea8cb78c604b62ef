package vmspace

import (
	"testing"

	"defs"
	"mem"
	"slab"
)

// freshMem resets both the physical page allocator and the
// page-granularity slab cache vmspace now carves every mapped page
// from, so one test's allocations never leak stale slab state (a
// destroyed slab's real backing address) into the next test's fresh
// Physmem arena.
func freshMem(t *testing.T, npages int) {
	t.Helper()
	*mem.Physmem = mem.Physmem_t{}
	mem.Phys_init(npages)
	slab.PageCache = slab.MkCache(mem.PGSIZE, nil)
}

func TestCreateBackedInstallsPages(t *testing.T) {
	freshMem(t, 64)
	as, err := MkAddrspace()
	if err != defs.OK {
		t.Fatalf("MkAddrspace: %v", err)
	}
	if err := as.CreateBacked(0x1000, mem.PGSIZE*2); err != defs.OK {
		t.Fatalf("CreateBacked: %v", err)
	}
	if !as.tt.IsMapped(0x1000) || !as.tt.IsMapped(0x1000+uintptr(mem.PGSIZE)) {
		t.Fatalf("expected both pages mapped")
	}
}

func TestCreateBackedRejectsOverlap(t *testing.T) {
	freshMem(t, 64)
	as, _ := MkAddrspace()
	if err := as.CreateBacked(0x1000, mem.PGSIZE); err != defs.OK {
		t.Fatalf("first CreateBacked: %v", err)
	}
	if err := as.CreateBacked(0x1000, mem.PGSIZE); err != defs.INVALID {
		t.Fatalf("expected INVALID on overlapping mapping, got %v", err)
	}
}

func TestCreateBackedRejectsBeyondCeiling(t *testing.T) {
	freshMem(t, 64)
	as, _ := MkAddrspace()
	if err := as.CreateBacked(as.end[arenaMappings]-uintptr(mem.PGSIZE/2), mem.PGSIZE); err != defs.INVALID {
		t.Fatalf("expected INVALID past the mappings ceiling, got %v", err)
	}
}

func TestCreatePhysicalAdvancesCursor(t *testing.T) {
	freshMem(t, 64)
	as, _ := MkAddrspace()
	v1, err := as.CreatePhysical(0x9000, mem.PGSIZE)
	if err != defs.OK {
		t.Fatalf("CreatePhysical 1: %v", err)
	}
	v2, err := as.CreatePhysical(0xa000, mem.PGSIZE)
	if err != defs.OK {
		t.Fatalf("CreatePhysical 2: %v", err)
	}
	if v2 != v1+uintptr(mem.PGSIZE) {
		t.Fatalf("expected monotonically advancing cursor, got %x then %x", v1, v2)
	}
}

func TestCreateStackStaysInStacksArena(t *testing.T) {
	freshMem(t, 64)
	as, _ := MkAddrspace()
	base, length, err := as.CreateStack(mem.PGSIZE)
	if err != defs.OK {
		t.Fatalf("CreateStack: %v", err)
	}
	if base < as.base[arenaStacks] || base+uintptr(length) > as.end[arenaStacks] {
		t.Fatalf("stack placed outside the stacks arena: base=%x len=%d", base, length)
	}
}

func TestExtendHeapZeroIsNoop(t *testing.T) {
	freshMem(t, 64)
	as, _ := MkAddrspace()
	before := as.cursor[arenaHeap]
	oldEnd, newEnd, err := as.ExtendHeap(0)
	if err != defs.OK || oldEnd != before || newEnd != before {
		t.Fatalf("ExtendHeap(0) should be a no-op, got old=%x new=%x err=%v", oldEnd, newEnd, err)
	}
}

func TestExtendHeapGrowsAndMaps(t *testing.T) {
	freshMem(t, 64)
	as, _ := MkAddrspace()
	oldEnd, newEnd, err := as.ExtendHeap(mem.PGSIZE)
	if err != defs.OK {
		t.Fatalf("ExtendHeap: %v", err)
	}
	if newEnd != oldEnd+uintptr(mem.PGSIZE) {
		t.Fatalf("expected heap to grow by one page")
	}
	if !as.tt.IsMapped(oldEnd) {
		t.Fatalf("expected the new heap page mapped")
	}
}

// totalFreePages sums the free block counts across every buddy order,
// weighted by block size, since freed pages coalesce upward and may
// leave the order-0 list empty.
func totalFreePages() int {
	n := 0
	for k := 0; k <= mem.MAXORDER; k++ {
		n += mem.Physmem.OrderFree(k) << uint(k)
	}
	return n
}

func TestDestroyFreesAllPages(t *testing.T) {
	freshMem(t, 64)
	as, _ := MkAddrspace()
	as.CreateBacked(0x1000, mem.PGSIZE)
	as.CreateStack(mem.PGSIZE)
	as.ExtendHeap(mem.PGSIZE)

	as.Destroy()
	if got := totalFreePages(); got != 64 {
		t.Fatalf("expected Destroy to return every owned page, %d of 64 free", got)
	}
}

func TestCreateBackedBacksOutPartialAllocation(t *testing.T) {
	// Exhaust memory down to exactly one free page, then ask for a
	// two-page mapping: the first page's allocation succeeds, the
	// second fails, and the first must be freed rather than leaked.
	freshMem(t, 8)
	as, _ := MkAddrspace()
	// Drain remaining pages except one.
	var drained []mem.Pa_t
	for {
		p, ok := mem.Physmem.AllocPage()
		if !ok {
			break
		}
		drained = append(drained, p)
	}
	// Give back exactly one page so CreateBacked's first page succeeds
	// and its second fails.
	mem.Physmem.Free(drained[len(drained)-1])
	drained = drained[:len(drained)-1]

	if err := as.CreateBacked(0x1000, mem.PGSIZE*2); err != defs.NO_MEM {
		t.Fatalf("expected NO_MEM, got %v", err)
	}
	if as.tt.IsMapped(0x1000) {
		t.Fatalf("expected the partially installed mapping to be backed out")
	}
}
