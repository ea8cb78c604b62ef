package ttbl

import (
	"testing"

	"defs"
	"mem"
)

func freshMem(t *testing.T, npages int) {
	t.Helper()
	*mem.Physmem = mem.Physmem_t{}
	mem.Phys_init(npages)
}

func TestMapPageRoundTrip(t *testing.T) {
	freshMem(t, 8)
	tt, err := MkTranslationTable(0)
	if err != defs.OK {
		t.Fatalf("MkTranslationTable: %v", err)
	}
	phys, ok := mem.Physmem.AllocPage()
	if !ok {
		t.Fatalf("alloc failed")
	}
	const virt = 0x1000
	if err := tt.MapPage(virt, phys, defs.PROT_USER_READWRITE); err != defs.OK {
		t.Fatalf("MapPage: %v", err)
	}
	if !tt.IsMapped(virt) {
		t.Fatalf("expected virt mapped")
	}
	if err := tt.MapPage(virt, phys, defs.PROT_USER_READWRITE); err != defs.INVALID {
		t.Fatalf("expected INVALID remapping an occupied page, got %v", err)
	}
	dealloc, err := tt.UnmapPage(virt)
	if err != defs.OK {
		t.Fatalf("UnmapPage: %v", err)
	}
	if !dealloc {
		t.Fatalf("expected the lone mapping's second-level table to be deallocated")
	}
	if tt.IsMapped(virt) {
		t.Fatalf("expected virt unmapped")
	}
}

func TestUnmapPageOnlyDeallocatesAtZero(t *testing.T) {
	freshMem(t, 8)
	tt, _ := MkTranslationTable(0)
	p0, _ := mem.Physmem.AllocPage()
	p1, _ := mem.Physmem.AllocPage()
	if err := tt.MapPage(0x1000, p0, defs.PROT_USER_READ); err != defs.OK {
		t.Fatalf("map 0: %v", err)
	}
	if err := tt.MapPage(0x2000, p1, defs.PROT_USER_READ); err != defs.OK {
		t.Fatalf("map 1: %v", err)
	}
	dealloc, err := tt.UnmapPage(0x1000)
	if err != defs.OK || dealloc {
		t.Fatalf("unmapping one of two pages in a megabyte should not deallocate the second-level table, got dealloc=%v err=%v", dealloc, err)
	}
	dealloc, err = tt.UnmapPage(0x2000)
	if err != defs.OK || !dealloc {
		t.Fatalf("unmapping the last page in a megabyte should deallocate, got dealloc=%v err=%v", dealloc, err)
	}
}

func TestMapSectionConflictsWithPage(t *testing.T) {
	freshMem(t, 8)
	tt, _ := MkTranslationTable(0)
	p, _ := mem.Physmem.AllocPage()
	if err := tt.MapPage(0x1000, p, defs.PROT_USER_READ); err != defs.OK {
		t.Fatalf("MapPage: %v", err)
	}
	if err := tt.MapSection(0, 0x100000, defs.PROT_KERNEL); err != defs.INVALID {
		t.Fatalf("expected INVALID installing a section over a coarse megabyte, got %v", err)
	}
}

func TestSetUserTableFlushesOnlyOnChange(t *testing.T) {
	freshMem(t, 8)
	a, _ := MkTranslationTable(0)
	b, _ := MkTranslationTable(0)
	before := TLBFlushes
	SetUserTable(a)
	if TLBFlushes != before+1 {
		t.Fatalf("expected one flush installing a new table")
	}
	SetUserTable(a)
	if TLBFlushes != before+1 {
		t.Fatalf("expected no flush reinstalling the same table")
	}
	SetUserTable(b)
	if TLBFlushes != before+2 {
		t.Fatalf("expected one flush switching tables")
	}
}

func TestCopyAcrossAddressSpaces(t *testing.T) {
	freshMem(t, 8)
	src, _ := MkTranslationTable(0)
	dst, _ := MkTranslationTable(0)

	srcPhys, _ := mem.Physmem.AllocPage()
	dstPhys, _ := mem.Physmem.AllocPage()
	src.MapPage(0x1000, srcPhys, defs.PROT_USER_READ)
	dst.MapPage(0x2000, dstPhys, defs.PROT_USER_READWRITE)

	srcPg := mem.Physmem.Dmap(srcPhys)
	for i := range srcPg[:16] {
		srcPg[i] = byte(i + 1)
	}

	n, err := Copy(src, 0x1000, 16, dst, 0x2000, 16)
	if err != defs.OK || n != 16 {
		t.Fatalf("Copy: n=%d err=%v", n, err)
	}
	dstPg := mem.Physmem.Dmap(dstPhys)
	for i := 0; i < 16; i++ {
		if dstPg[i] != byte(i+1) {
			t.Fatalf("byte %d: got %d want %d", i, dstPg[i], i+1)
		}
	}
}

func TestCopyFaultsOnUnmappedSource(t *testing.T) {
	freshMem(t, 8)
	src, _ := MkTranslationTable(0)
	dst, _ := MkTranslationTable(0)
	dstPhys, _ := mem.Physmem.AllocPage()
	dst.MapPage(0x2000, dstPhys, defs.PROT_USER_READWRITE)

	n, err := Copy(src, 0x1000, 16, dst, 0x2000, 16)
	if err != defs.FAULT || n != 0 {
		t.Fatalf("expected all-or-nothing FAULT copying from unmapped source, got n=%d err=%v", n, err)
	}
}

func TestCopyFaultsOnReadOnlyDestination(t *testing.T) {
	freshMem(t, 8)
	src, _ := MkTranslationTable(0)
	dst, _ := MkTranslationTable(0)
	srcPhys, _ := mem.Physmem.AllocPage()
	dstPhys, _ := mem.Physmem.AllocPage()
	src.MapPage(0x1000, srcPhys, defs.PROT_USER_READ)
	dst.MapPage(0x2000, dstPhys, defs.PROT_USER_READ)

	n, err := Copy(src, 0x1000, 16, dst, 0x2000, 16)
	if err != defs.FAULT || n != 0 {
		t.Fatalf("expected FAULT copying into a read-only destination, got n=%d err=%v", n, err)
	}
}

func TestCopySpansPageBoundary(t *testing.T) {
	freshMem(t, 8)
	src, _ := MkTranslationTable(0)
	dst, _ := MkTranslationTable(0)

	sp0, _ := mem.Physmem.AllocPage()
	sp1, _ := mem.Physmem.AllocPage()
	dp0, _ := mem.Physmem.AllocPage()
	dp1, _ := mem.Physmem.AllocPage()
	src.MapPage(0x1000, sp0, defs.PROT_USER_READ)
	src.MapPage(0x2000, sp1, defs.PROT_USER_READ)
	dst.MapPage(0x3000, dp0, defs.PROT_USER_READWRITE)
	dst.MapPage(0x4000, dp1, defs.PROT_USER_READWRITE)

	mem.Physmem.Dmap(sp0)[mem.PGSIZE-1] = 0xaa
	mem.Physmem.Dmap(sp1)[0] = 0xbb

	n, err := Copy(src, 0x1000+uintptr(mem.PGSIZE-1), 2, dst, 0x3000+uintptr(mem.PGSIZE-1), 2)
	if err != defs.OK || n != 2 {
		t.Fatalf("Copy across page boundary: n=%d err=%v", n, err)
	}
	if mem.Physmem.Dmap(dp0)[mem.PGSIZE-1] != 0xaa || mem.Physmem.Dmap(dp1)[0] != 0xbb {
		t.Fatalf("bytes straddling the page boundary were not both transferred")
	}
}

func TestDestroyFreesBackingPages(t *testing.T) {
	freshMem(t, 8)
	tt, _ := MkTranslationTable(0)
	p, _ := mem.Physmem.AllocPage()
	tt.MapPage(0x1000, p, defs.PROT_USER_READ)
	freeBefore := mem.Physmem.OrderFree(0)
	tt.Destroy()
	if mem.Physmem.OrderFree(0) <= freeBefore {
		t.Fatalf("expected Destroy to return pages to the allocator")
	}
}
