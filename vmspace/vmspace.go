// Package vmspace implements the per-process address space: a
// translation table plus three disjoint arenas (mappings, stacks, heap)
// within [0, mem.KERNEL_MODE_OFFSET), each holding an ordered list of
// backed or physical Mapping variants.
//
// Mapping_t holds a []mem.Pa_t of owned pages, an ordinary Go-managed
// slice; routing the descriptor itself through slab.Cache_t would mean
// storing a real Go pointer inside mem.Physmem's GC-invisible byte
// arena, the same unsoundness slab's own package doc rules out for
// small objects. Mapping_t therefore stays an ordinary heap-allocated
// Go struct, but every physical page it owns is carved from
// slab.PageCache, not handed out by mem.Physmem directly;
// allocPage/freePage below are the only two call sites that touch the
// page allocator, and both go through slab.
package vmspace

import (
	"bounds"
	"defs"
	"mem"
	"res"
	"slab"
	"sys"
	"ttbl"
	"util"
)

// allocPage carves one page-sized object from slab.PageCache and
// recovers its physical address for page-table installation.
func allocPage() (mem.Pa_t, bool) {
	obj, ok := slab.PageCache.Alloc()
	if !ok {
		return 0, false
	}
	return mem.Physmem.Pa(obj), true
}

// freePage returns p's page to slab.PageCache, the inverse of
// allocPage.
func freePage(p mem.Pa_t) {
	slab.PageCache.Free(mem.Physmem.Dmap(p))
}

const (
	arenaMappings = iota
	arenaStacks
	arenaHeap
	numArenas
)

const quarter = mem.KERNEL_MODE_OFFSET / 4

/// MappingKind discriminates a Mapping_t's backing.
type MappingKind int

const (
	BACKED MappingKind = iota
	PHYSICAL
)

/// Mapping_t is one mapping installed in an address space: either a
/// backed mapping owning a sequence of allocated pages or a physical
/// mapping over a fixed, externally-owned physical range.
type Mapping_t struct {
	kind  MappingKind
	virt  uintptr
	len   int
	pages []mem.Pa_t // BACKED: owned pages, in virt order
	phys  mem.Pa_t   // PHYSICAL: fixed base
}

func (m *Mapping_t) end() uintptr { return m.virt + uintptr(m.len) }

/// Addrspace_t is one process's address space: a translation table and
/// three disjoint arenas. Lock order: Addrspace_t's own lock is a
/// subsystem lock, acquired before the scheduler lock and never while
/// mem's or a slab cache's lock is held.
type Addrspace_t struct {
	lock sys.Spinlock_t
	tt   *ttbl.TranslationTable_t

	base, end [numArenas]uintptr
	cursor    [numArenas]uintptr
	mappings  [numArenas][]*Mapping_t
}

/// MkAddrspace creates a fresh address space over a freshly allocated
/// user translation table.
func MkAddrspace() (*Addrspace_t, defs.Err_t) {
	tt, err := ttbl.MkTranslationTable(0)
	if err != defs.OK {
		return nil, err
	}
	as := &Addrspace_t{tt: tt}
	as.base[arenaMappings], as.end[arenaMappings] = 0, quarter
	as.base[arenaStacks], as.end[arenaStacks] = quarter, 2*quarter
	as.base[arenaHeap], as.end[arenaHeap] = 2*quarter, mem.KERNEL_MODE_OFFSET
	as.cursor = as.base
	return as, defs.OK
}

/// Translation returns the address space's translation table, for
/// sched's context-switch installation via ttbl.SetUserTable.
func (as *Addrspace_t) Translation() *ttbl.TranslationTable_t { return as.tt }

// overlaps reports whether [virt, virt+len) intersects any mapping
// already installed in arena, scanning the arena's ordered list.
func (as *Addrspace_t) overlaps(arena int, virt uintptr, len int) bool {
	lo, hi := virt, virt+uintptr(len)
	for _, m := range as.mappings[arena] {
		if lo < m.end() && m.virt < hi {
			return true
		}
	}
	return false
}

// insertSorted keeps an arena's mapping list in ascending virt order, so
// Destroy and overlap checks both see a consistent ordered list.
func insertSorted(list []*Mapping_t, m *Mapping_t) []*Mapping_t {
	i := 0
	for i < len(list) && list[i].virt < m.virt {
		i++
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = m
	return list
}

// installPages maps m's pages one at a time starting at m.virt, backing
// out everything already installed on the first failure.
func (as *Addrspace_t) installPages(m *Mapping_t, prot defs.Prot_t) defs.Err_t {
	charge := res.NewCharge()
	for i, p := range m.pages {
		bounds.Bounds(bounds.B_VM_USERDMAP)
		if !charge.Take() {
			as.backOut(m, i, prot)
			return defs.NO_MEM
		}
		virt := m.virt + uintptr(i*mem.PGSIZE)
		if err := as.tt.MapPage(virt, p, prot); err != defs.OK {
			as.backOut(m, i, prot)
			return err
		}
	}
	return defs.OK
}

func (as *Addrspace_t) backOut(m *Mapping_t, installed int, prot defs.Prot_t) {
	for i := 0; i < installed; i++ {
		as.tt.UnmapPage(m.virt + uintptr(i*mem.PGSIZE))
	}
}

/// CreateBacked installs a backed mapping at the caller-chosen virt,
/// rounding len up to the page size. Fails with INVALID if the range
/// exceeds the mappings arena's ceiling or overlaps an existing
/// mapping, NO_MEM if pages cannot be allocated or installed.
func (as *Addrspace_t) CreateBacked(virt uintptr, length int) defs.Err_t {
	length = util.Roundup(length, mem.PGSIZE)
	as.lock.Lock()
	defer as.lock.Unlock()

	if virt < as.base[arenaMappings] || virt+uintptr(length) > as.end[arenaMappings] {
		return defs.INVALID
	}
	if as.overlaps(arenaMappings, virt, length) {
		return defs.INVALID
	}

	npages := length / mem.PGSIZE
	pages := make([]mem.Pa_t, 0, npages)
	for i := 0; i < npages; i++ {
		p, ok := allocPage()
		if !ok {
			for _, q := range pages {
				freePage(q)
			}
			return defs.NO_MEM
		}
		pages = append(pages, p)
	}

	m := &Mapping_t{kind: BACKED, virt: virt, len: length, pages: pages}
	if err := as.installPages(m, defs.PROT_USER_READWRITE); err != defs.OK {
		for _, q := range pages {
			freePage(q)
		}
		return err
	}
	as.mappings[arenaMappings] = insertSorted(as.mappings[arenaMappings], m)
	return defs.OK
}

/// CreatePhysical installs a fixed-physical-range mapping at the next
/// available address past the mappings arena's cursor, advancing the
/// cursor monotonically.
func (as *Addrspace_t) CreatePhysical(phys mem.Pa_t, length int) (uintptr, defs.Err_t) {
	length = util.Roundup(length, mem.PGSIZE)
	as.lock.Lock()
	defer as.lock.Unlock()

	virt := as.cursor[arenaMappings]
	if virt+uintptr(length) > as.end[arenaMappings] {
		return 0, defs.NO_MEM
	}
	as.cursor[arenaMappings] = virt + uintptr(length)

	npages := length / mem.PGSIZE
	m := &Mapping_t{kind: PHYSICAL, virt: virt, len: length, phys: phys}
	for i := 0; i < npages; i++ {
		vp := virt + uintptr(i*mem.PGSIZE)
		pp := phys + mem.Pa_t(i*mem.PGSIZE)
		if err := as.tt.MapPage(vp, pp, defs.PROT_USER_READWRITE); err != defs.OK {
			as.backOut(m, i, defs.PROT_USER_READWRITE)
			return 0, err
		}
	}
	as.mappings[arenaMappings] = insertSorted(as.mappings[arenaMappings], m)
	return virt, defs.OK
}

/// CreateStack installs a backed mapping in the stacks arena, advancing
/// the stacks cursor monotonically, and returns the mapping's base and
/// its page-rounded length.
func (as *Addrspace_t) CreateStack(length int) (uintptr, int, defs.Err_t) {
	length = util.Roundup(length, mem.PGSIZE)
	as.lock.Lock()
	virt := as.cursor[arenaStacks]
	if virt+uintptr(length) > as.end[arenaStacks] {
		as.lock.Unlock()
		return 0, 0, defs.NO_MEM
	}
	as.cursor[arenaStacks] = virt + uintptr(length)
	as.lock.Unlock()

	npages := length / mem.PGSIZE
	pages := make([]mem.Pa_t, 0, npages)
	for i := 0; i < npages; i++ {
		p, ok := allocPage()
		if !ok {
			for _, q := range pages {
				freePage(q)
			}
			return 0, 0, defs.NO_MEM
		}
		pages = append(pages, p)
	}
	m := &Mapping_t{kind: BACKED, virt: virt, len: length, pages: pages}

	as.lock.Lock()
	defer as.lock.Unlock()
	if err := as.installPages(m, defs.PROT_USER_READWRITE); err != defs.OK {
		for _, q := range pages {
			freePage(q)
		}
		return 0, 0, err
	}
	as.mappings[arenaStacks] = insertSorted(as.mappings[arenaStacks], m)
	return virt, length, defs.OK
}

/// ExtendHeap grows the heap arena by increment bytes (a multiple of
/// the page size), allocating a new backed mapping at the current heap
/// cursor, and reports the old and new cursor. Calling with increment
/// zero returns the current cursor without side effect.
func (as *Addrspace_t) ExtendHeap(increment int) (uintptr, uintptr, defs.Err_t) {
	if increment%mem.PGSIZE != 0 || increment < 0 {
		return 0, 0, defs.INVALID
	}
	as.lock.Lock()
	oldEnd := as.cursor[arenaHeap]
	if increment == 0 {
		as.lock.Unlock()
		return oldEnd, oldEnd, defs.OK
	}
	newEnd := oldEnd + uintptr(increment)
	if newEnd > as.end[arenaHeap] {
		as.lock.Unlock()
		return 0, 0, defs.NO_MEM
	}
	as.lock.Unlock()

	npages := increment / mem.PGSIZE
	pages := make([]mem.Pa_t, 0, npages)
	for i := 0; i < npages; i++ {
		p, ok := allocPage()
		if !ok {
			for _, q := range pages {
				freePage(q)
			}
			return 0, 0, defs.NO_MEM
		}
		pages = append(pages, p)
	}
	m := &Mapping_t{kind: BACKED, virt: oldEnd, len: increment, pages: pages}

	as.lock.Lock()
	defer as.lock.Unlock()
	if err := as.installPages(m, defs.PROT_USER_READWRITE); err != defs.OK {
		for _, q := range pages {
			freePage(q)
		}
		return 0, 0, err
	}
	as.mappings[arenaHeap] = insertSorted(as.mappings[arenaHeap], m)
	as.cursor[arenaHeap] = oldEnd + uintptr(increment)
	return oldEnd, as.cursor[arenaHeap], defs.OK
}

func (as *Addrspace_t) destroyMapping(m *Mapping_t) {
	npages := m.len / mem.PGSIZE
	for i := 0; i < npages; i++ {
		as.tt.UnmapPage(m.virt + uintptr(i*mem.PGSIZE))
	}
	if m.kind == BACKED {
		for _, p := range m.pages {
			freePage(p)
		}
	}
}

/// Destroy unmaps and deletes every mapping in reverse arena priority,
/// heap first, then stacks, then mappings, and frees the translation
/// table itself.
func (as *Addrspace_t) Destroy() {
	as.lock.Lock()
	defer as.lock.Unlock()
	order := [numArenas]int{arenaHeap, arenaStacks, arenaMappings}
	for _, arena := range order {
		for _, m := range as.mappings[arena] {
			as.destroyMapping(m)
		}
		as.mappings[arena] = nil
	}
	as.tt.Destroy()
}
