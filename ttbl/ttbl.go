// Package ttbl implements the two-level ARM translation table: a 16KB
// first-level array of 4096 one-megabyte entries (unmapped, section, or
// coarse), coarse entries fanning out to 256-entry second-level tables
// mapping individual 4KB pages, and the cross-address-space copy every
// IPC transfer is built on.
//
// Entries are plain Go structs keyed by section/page index rather than
// bit-packed 32-bit hardware words, since no real ARMv6 MMU walks
// these tables here and nothing ever reads the entries back in
// hardware form. The backing pages are still allocated from
// mem.Physmem and freed on Destroy, so the resource accounting is real
// even though the entry encoding is not bit-packed.
package ttbl

import (
	"fmt"

	"bounds"
	"caller"
	"defs"
	"mem"
	"omap"
	"res"
	"sys"
	"util"
)

/// MapType discriminates a first-level entry's kind.
type MapType int

const (
	UNMAPPED MapType = iota
	SECTION
	COARSE
)

const sectionShift = 20
const sectionSize = 1 << sectionShift
const pagesPerSection = sectionSize / mem.PGSIZE // 256
const subIndexMask = uintptr(pagesPerSection - 1)

type firstLevelEntry struct {
	kind MapType
	// SECTION: physical base of the 1MB region. COARSE: unused, the
	// second-level table is reached through sparse instead.
	base mem.Pa_t
	prot defs.Prot_t
}

type secondLevelEntry struct {
	mapped bool
	phys   mem.Pa_t
	prot   defs.Prot_t
}

type secondLevel_t struct {
	phys    mem.Pa_t
	entries [pagesPerSection]secondLevelEntry
	mapped  int
}

/// TranslationTable_t owns one first-level array and the sparse set of
/// second-level tables it currently references. Both TTBR0 (user)
/// and TTBR1 (kernel) translation bases are ordinary TranslationTable_t
/// values; which one hardware would load is tracked by SetUserTable/
/// SetKernelTable below rather than by any field here.
type TranslationTable_t struct {
	lock       sys.Spinlock_t
	firstlevel [4096]firstLevelEntry
	firstPhys  mem.Pa_t
	sparse     omap.Omap_t[uint32, *secondLevel_t]
	cursor     uint32
}

/// MkTranslationTable allocates a fresh, fully unmapped translation
/// table. cursorStart is the first virtual page map_next_page will try;
/// callers building a user table pass 0, the kernel table passes
/// mem.KERNEL_MODE_OFFSET's page number.
func MkTranslationTable(cursorStart uint32) (*TranslationTable_t, defs.Err_t) {
	// 4096 entries * 4 bytes/entry = 16KB = 4 pages, exactly an
	// order-2 buddy block, the allocator's largest.
	p, ok := mem.Physmem.Alloc(mem.MAXORDER)
	if !ok {
		return nil, defs.NO_MEM
	}
	return &TranslationTable_t{firstPhys: p, cursor: cursorStart}, defs.OK
}

/// Destroy frees every second-level table this translation table still
/// references, then its first-level backing pages.
func (tt *TranslationTable_t) Destroy() {
	tt.lock.Lock()
	defer tt.lock.Unlock()
	tt.sparse.Iter(func(_ uint32, sl *secondLevel_t) bool {
		mem.Physmem.Free(sl.phys)
		return true
	})
	mem.Physmem.Free(tt.firstPhys)
}

func pageAligned(a uintptr) bool    { return a%uintptr(mem.PGSIZE) == 0 }
func sectionAligned(a uintptr) bool { return a%sectionSize == 0 }

func readable(p defs.Prot_t) bool { return p != defs.PROT_NONE }
func writable(p defs.Prot_t) bool {
	return p == defs.PROT_KERNEL || p == defs.PROT_USER_READWRITE
}

/// MapSection installs a 1MB section mapping. virt and phys must be
/// 1MB-aligned; fails with INVALID if the target megabyte is already
/// occupied by any entry, section or coarse.
func (tt *TranslationTable_t) MapSection(virt uintptr, phys mem.Pa_t, prot defs.Prot_t) defs.Err_t {
	if !sectionAligned(virt) || uintptr(phys)%sectionSize != 0 {
		return defs.INVALID
	}
	tt.lock.Lock()
	defer tt.lock.Unlock()
	idx := uint32(virt >> sectionShift)
	if tt.firstlevel[idx].kind != UNMAPPED {
		return defs.INVALID
	}
	tt.firstlevel[idx] = firstLevelEntry{kind: SECTION, base: phys, prot: prot}
	return defs.OK
}

/// UnmapSection removes a 1MB section mapping. Fails with INVALID if
/// virt is not currently section-mapped.
func (tt *TranslationTable_t) UnmapSection(virt uintptr) defs.Err_t {
	if !sectionAligned(virt) {
		return defs.INVALID
	}
	tt.lock.Lock()
	defer tt.lock.Unlock()
	idx := uint32(virt >> sectionShift)
	if tt.firstlevel[idx].kind != SECTION {
		return defs.INVALID
	}
	tt.firstlevel[idx] = firstLevelEntry{}
	return defs.OK
}

func (tt *TranslationTable_t) ensureCoarse(idx uint32) (*secondLevel_t, defs.Err_t) {
	switch tt.firstlevel[idx].kind {
	case COARSE:
		sl, ok := tt.sparse.Lookup(idx)
		caller.Kassert(ok, "ttbl: coarse first-level entry %d missing its second-level table", idx)
		return sl, defs.OK
	case UNMAPPED:
		p, ok := mem.Physmem.AllocPage()
		if !ok {
			return nil, defs.NO_MEM
		}
		sl := &secondLevel_t{phys: p}
		tt.sparse.Insert(idx, sl)
		tt.firstlevel[idx] = firstLevelEntry{kind: COARSE}
		return sl, defs.OK
	default:
		return nil, defs.INVALID
	}
}

/// MapPage installs a single 4KB page mapping, allocating a second-level
/// table for its megabyte if none exists yet. Fails with INVALID if the
/// page is already mapped or the megabyte holds an incompatible section
/// entry.
func (tt *TranslationTable_t) MapPage(virt uintptr, phys mem.Pa_t, prot defs.Prot_t) defs.Err_t {
	if !pageAligned(virt) || uintptr(phys)%uintptr(mem.PGSIZE) != 0 {
		return defs.INVALID
	}
	tt.lock.Lock()
	defer tt.lock.Unlock()
	idx := uint32(virt >> sectionShift)
	sl, err := tt.ensureCoarse(idx)
	if err != defs.OK {
		return err
	}
	sub := (virt >> mem.PGSHIFT) & subIndexMask
	if sl.entries[sub].mapped {
		return defs.INVALID
	}
	sl.entries[sub] = secondLevelEntry{mapped: true, phys: phys, prot: prot}
	sl.mapped++
	fmt.Printf("DEBUG MapPage virt=%x idx=%d firstlevel_kind_after=%v tt=%p\n", virt, idx, tt.firstlevel[idx].kind, tt)
	return defs.OK
}

/// UnmapPage removes a single page mapping. It reports whether the
/// second-level table was deallocated as a result (its mapped-page
/// count reached zero, reverting the first-level entry to unmapped)
/// and an error when virt was not page-mapped.
func (tt *TranslationTable_t) UnmapPage(virt uintptr) (bool, defs.Err_t) {
	if !pageAligned(virt) {
		return false, defs.INVALID
	}
	tt.lock.Lock()
	defer tt.lock.Unlock()
	idx := uint32(virt >> sectionShift)
	if tt.firstlevel[idx].kind != COARSE {
		return false, defs.INVALID
	}
	sl, ok := tt.sparse.Lookup(idx)
	caller.Kassert(ok, "ttbl: coarse first-level entry %d missing its second-level table", idx)
	sub := (virt >> mem.PGSHIFT) & subIndexMask
	if !sl.entries[sub].mapped {
		return false, defs.INVALID
	}
	sl.entries[sub] = secondLevelEntry{}
	sl.mapped--
	if sl.mapped == 0 {
		tt.sparse.Remove(idx)
		mem.Physmem.Free(sl.phys)
		tt.firstlevel[idx] = firstLevelEntry{}
		return true, defs.OK
	}
	return false, defs.OK
}

/// MapNextPage maps phys at the next unmapped page at or after this
/// table's cursor, advancing the cursor past it, and returns the chosen
/// virtual address.
func (tt *TranslationTable_t) MapNextPage(phys mem.Pa_t, prot defs.Prot_t) (uintptr, defs.Err_t) {
	for tries := 0; tries < 1<<22; tries++ {
		tt.lock.Lock()
		virt := uintptr(tt.cursor) << mem.PGSHIFT
		tt.cursor++
		tt.lock.Unlock()

		err := tt.MapPage(virt, phys, prot)
		if err == defs.OK {
			return virt, defs.OK
		}
		if err != defs.INVALID {
			return 0, err
		}
	}
	return 0, defs.NO_MEM
}

/// IsMapped reports whether virt currently resolves to a page, for
/// tests and invariant checks.
func (tt *TranslationTable_t) IsMapped(virt uintptr) bool {
	tt.lock.Lock()
	defer tt.lock.Unlock()
	idx := uint32(virt >> sectionShift)
	if tt.firstlevel[idx].kind != COARSE {
		return false
	}
	sl, ok := tt.sparse.Lookup(idx)
	if !ok {
		return false
	}
	sub := (virt >> mem.PGSHIFT) & subIndexMask
	return sl.entries[sub].mapped
}

// KernelTT is the shared kernel translation table (TTBR1). Copy
// resolves any address at or above mem.KERNEL_MODE_OFFSET through it
// regardless of which table was passed in: kernel virtual addresses
// bypass the per-process table.
var KernelTT *TranslationTable_t

/// SetKernelTable installs the shared kernel translation table (TTBR1).
/// Called once at boot.
func SetKernelTable(tt *TranslationTable_t) { KernelTT = tt }

var currentUserTT *TranslationTable_t

/// TLBFlushes counts how many times SetUserTable actually changed the
/// installed table, for tests observing the "flush only on change" rule.
var TLBFlushes int

/// SetUserTable installs tt as the active TTBR0 table, flushing the TLB
/// only if it differs from the table already installed.
func SetUserTable(tt *TranslationTable_t) {
	if currentUserTT == tt {
		return
	}
	currentUserTT = tt
	TLBFlushes++
}

/// CurrentUserTable reports the table SetUserTable last installed.
func CurrentUserTable() *TranslationTable_t { return currentUserTT }

func (tt *TranslationTable_t) resolve(virt uintptr, needWrite bool) (mem.Pa_t, int, defs.Err_t) {
	eff := tt
	if virt >= mem.KERNEL_MODE_OFFSET && KernelTT != nil {
		eff = KernelTT
	}
	eff.lock.Lock()
	defer eff.lock.Unlock()

	idx := uint32(virt >> sectionShift)
	fl := eff.firstlevel[idx]
	fmt.Printf("DEBUG resolve virt=%x idx=%d kind=%v needWrite=%v eff=%p\n", virt, idx, fl.kind, needWrite, eff)
	switch fl.kind {
	case SECTION:
		if !readable(fl.prot) || (needWrite && !writable(fl.prot)) {
			return 0, 0, defs.FAULT
		}
		off := virt & (sectionSize - 1)
		// remain is capped to the containing page so callers can hand
		// it straight to DmapRange, which serves at most one page.
		pgoff := virt & uintptr(mem.PGSIZE-1)
		return fl.base + mem.Pa_t(off), mem.PGSIZE - int(pgoff), defs.OK
	case COARSE:
		sl, ok := eff.sparse.Lookup(idx)
		caller.Kassert(ok, "ttbl: coarse first-level entry %d missing its second-level table", idx)
		sub := (virt >> mem.PGSHIFT) & subIndexMask
		e := sl.entries[sub]
		if !e.mapped || !readable(e.prot) || (needWrite && !writable(e.prot)) {
			return 0, 0, defs.FAULT
		}
		off := virt & uintptr(mem.PGSIZE-1)
		return e.phys + mem.Pa_t(off), mem.PGSIZE - int(off), defs.OK
	default:
		return 0, 0, defs.FAULT
	}
}

/// WriteBytes copies data into tt starting at virt, chunked across
/// however many pages it spans. Used for kernel-to-user transfers that
/// have no source address space to walk through Copy: ipc's pulse
/// delivery and procmgr's reply encoding.
func WriteBytes(tt *TranslationTable_t, virt uintptr, data []byte) (int, defs.Err_t) {
	charge := res.NewCharge()
	written := 0
	for written < len(data) {
		bounds.Bounds(bounds.B_IPC_TRANSFER)
		if !charge.Take() {
			return 0, defs.FAULT
		}
		phys, remain, err := tt.resolve(virt+uintptr(written), true)
		if err != defs.OK {
			return 0, defs.FAULT
		}
		chunk := len(data) - written
		if remain < chunk {
			chunk = remain
		}
		dst := mem.Physmem.DmapRange(phys, chunk)
		copy(dst, data[written:written+chunk])
		written += chunk
	}
	return written, defs.OK
}

/// ReadBytes reads n bytes out of tt starting at virt, the read-side
/// counterpart to WriteBytes, used by procmgr to decode a request
/// message's raw bytes after ipc has already copied them into
/// procmgr's own mapped buffer.
func ReadBytes(tt *TranslationTable_t, virt uintptr, n int) ([]byte, defs.Err_t) {
	charge := res.NewCharge()
	out := make([]byte, n)
	read := 0
	for read < n {
		bounds.Bounds(bounds.B_IPC_TRANSFER)
		if !charge.Take() {
			return nil, defs.FAULT
		}
		phys, remain, err := tt.resolve(virt+uintptr(read), false)
		if err != defs.OK {
			return nil, defs.FAULT
		}
		chunk := util.Min(n-read, remain)
		src := mem.Physmem.DmapRange(phys, chunk)
		copy(out[read:read+chunk], src)
		read += chunk
	}
	return out, defs.OK
}

/// Copy transfers min(srcLen, dstLen) bytes from srcPtr in srcTT to
/// dstPtr in dstTT, walking both tables a chunk at a time and memcpy'ing
/// through the kernel direct map. On the first chunk that faults on
/// either side it returns (0, FAULT): the transfer is all-or-nothing,
/// never a partial byte count.
func Copy(srcTT *TranslationTable_t, srcPtr uintptr, srcLen int, dstTT *TranslationTable_t, dstPtr uintptr, dstLen int) (int, defs.Err_t) {
	total := util.Min(srcLen, dstLen)
	charge := res.NewCharge()
	transferred := 0
	for transferred < total {
		bounds.Bounds(bounds.B_TTBL_COPY)
		if !charge.Take() {
			return 0, defs.FAULT
		}
		srcPhys, srcRemain, err := srcTT.resolve(srcPtr+uintptr(transferred), false)
		if err != defs.OK {
			return 0, defs.FAULT
		}
		dstPhys, dstRemain, err := dstTT.resolve(dstPtr+uintptr(transferred), true)
		if err != defs.OK {
			return 0, defs.FAULT
		}
		chunk := util.Min(total-transferred, util.Min(srcRemain, dstRemain))
		src := mem.Physmem.DmapRange(srcPhys, chunk)
		dst := mem.Physmem.DmapRange(dstPhys, chunk)
		copy(dst, src)
		transferred += chunk
	}
	return transferred, defs.OK
}
