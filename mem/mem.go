// Package mem implements the kernel's physical page allocator: a buddy
// allocator over simulated board RAM, plus the kernel's direct map
// through which all physical memory is reachable for cross-address-space
// copies (ttbl.Copy) and page-table bookkeeping.
//
// Free lists are linked by array index rather than intrusive pointers,
// and a single spinlock serializes allocation; the target is one ARMv6
// core, so there are no per-CPU free lists.
package mem

import "sys"

/// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks the byte offset within a page.
const PGOFFSET Pa_t = Pa_t(PGSIZE - 1)

/// PGMASK masks the page-aligned portion of an address.
const PGMASK Pa_t = ^PGOFFSET

/// MAXORDER is the highest buddy order the allocator serves: order k
/// covers blocks of 2^k pages, so orders 0..MAXORDER cover block sizes
/// of 1, 2, and 4 pages.
const MAXORDER = 2

/// Pa_t is a physical address. Pages carry no reference count and no
/// descriptor struct; the caller owns a returned page exclusively, and
/// free-list membership is tracked out of line by Physmem_t's
/// per-order block arrays.
type Pa_t uintptr

// level_t is one buddy order's bookkeeping: a free list of block
// indices linked by array index, plus two bitmaps: which blocks are
// allocated to a user, and which blocks currently sit on the free
// list at all (a block that has been split into two level-1 children,
// or that has been coalesced into its level+1 parent, is neither).
type level_t struct {
	allocated []uint64
	onlist    []uint64
	freenext  []int32
	freehead  int32
}

func bitslice(n int) []uint64 {
	return make([]uint64, (n+63)/64)
}

func bitget(bm []uint64, i int32) bool {
	return bm[i/64]&(1<<uint(i%64)) != 0
}

func bitset(bm []uint64, i int32) {
	bm[i/64] |= 1 << uint(i%64)
}

func bitclear(bm []uint64, i int32) {
	bm[i/64] &^= 1 << uint(i%64)
}

func (l *level_t) push(blk int32) {
	l.freenext[blk] = l.freehead
	l.freehead = blk
	bitset(l.onlist, blk)
}

func (l *level_t) pop() (int32, bool) {
	if l.freehead == -1 {
		return -1, false
	}
	blk := l.freehead
	l.freehead = l.freenext[blk]
	bitclear(l.onlist, blk)
	return blk, true
}

// remove deletes blk from the free list; blk must be present, as is
// always true when coalesce calls it (the buddy was just confirmed
// on-list).
func (l *level_t) remove(blk int32) {
	bitclear(l.onlist, blk)
	if l.freehead == blk {
		l.freehead = l.freenext[blk]
		return
	}
	for n := l.freehead; n != -1; n = l.freenext[n] {
		if l.freenext[n] == blk {
			l.freenext[n] = l.freenext[blk]
			return
		}
	}
	panic("mem: remove of block not on free list")
}

/// Physmem_t is the buddy allocator over one contiguous heap region of
/// simulated board RAM, serialized by a single spinlock.
type Physmem_t struct {
	lock     sys.Spinlock_t
	heapBase Pa_t
	npages   int
	levels   [MAXORDER + 1]level_t
	ram      []byte
}

/// Physmem is the kernel-wide physical page allocator singleton,
/// initialized once by Phys_init before any caller runs, never lazily
/// inside an allocation path.
var Physmem = &Physmem_t{}

/// Phys_init reserves npages page-sized blocks of simulated board RAM
/// and seeds the buddy free lists, coalesced maximally: every page
/// free, grouped into order-MAXORDER blocks, matching the state a
/// freshly booted allocator would be in before any caller has run.
/// Initialization is detected from the allocator's own state, so tests
/// may reset the singleton to its zero value and initialize again.
func Phys_init(npages int) *Physmem_t {
	if Physmem.ram != nil {
		panic("mem: already initialized")
	}
	phys := Physmem
	align := 1 << MAXORDER
	npages -= npages % align
	if npages <= 0 {
		panic("mem: not enough pages for one top-order block")
	}
	phys.npages = npages
	phys.heapBase = 0
	phys.ram = make([]byte, npages*PGSIZE)
	for k := 0; k <= MAXORDER; k++ {
		nb := npages >> uint(k)
		phys.levels[k] = level_t{
			allocated: bitslice(nb),
			onlist:    bitslice(nb),
			freenext:  make([]int32, nb),
			freehead:  -1,
		}
	}
	top := &phys.levels[MAXORDER]
	for b := top.nblocks() - 1; b >= 0; b-- {
		top.push(int32(b))
	}
	return phys
}

func (l *level_t) nblocks() int { return len(l.freenext) }

func (phys *Physmem_t) takeFree(order int) (int32, bool) {
	lvl := &phys.levels[order]
	if blk, ok := lvl.pop(); ok {
		return blk, true
	}
	if order == MAXORDER {
		return -1, false
	}
	pblk, ok := phys.takeFree(order + 1)
	if !ok {
		return -1, false
	}
	left, right := pblk*2, pblk*2+1
	phys.levels[order].push(right)
	phys.levels[order].push(left)
	blk, _ := phys.levels[order].pop()
	return blk, true
}

/// Alloc allocates a block of 2^order pages and returns its base
/// physical address. Allocation of an unavailable order returns
/// failure without panic.
func (phys *Physmem_t) Alloc(order int) (Pa_t, bool) {
	if order < 0 || order > MAXORDER {
		panic("mem: bad order")
	}
	phys.lock.Lock()
	defer phys.lock.Unlock()
	blk, ok := phys.takeFree(order)
	if !ok {
		return 0, false
	}
	bitset(phys.levels[order].allocated, blk)
	pageIdx := int64(blk) << uint(order)
	return phys.heapBase + Pa_t(pageIdx)*Pa_t(PGSIZE), true
}

/// AllocPage allocates a single page, the common case for slab and
/// page-table backing.
func (phys *Physmem_t) AllocPage() (Pa_t, bool) {
	return phys.Alloc(0)
}

func (phys *Physmem_t) coalesce(order int, blk int32) {
	for order < MAXORDER {
		buddy := blk ^ 1
		lvl := &phys.levels[order]
		if bitget(lvl.allocated, buddy) || !bitget(lvl.onlist, buddy) {
			break
		}
		lvl.remove(buddy)
		blk /= 2
		order++
	}
	phys.levels[order].push(blk)
}

/// Free returns the block at p, whatever order it was allocated at, to
/// the buddy free lists. The order is recovered from the per-level
/// allocated bitmaps (lowest order whose bit is set); the block is then
/// coalesced with its buddy whenever the buddy is itself free and whole.
func (phys *Physmem_t) Free(p Pa_t) {
	phys.lock.Lock()
	defer phys.lock.Unlock()
	pageIdx := int32((p - phys.heapBase) / Pa_t(PGSIZE))
	order := 0
	blk := pageIdx
	for order <= MAXORDER {
		if bitget(phys.levels[order].allocated, blk) {
			break
		}
		blk >>= 1
		order++
	}
	if order > MAXORDER {
		panic("mem: free of address not currently allocated")
	}
	bitclear(phys.levels[order].allocated, blk)
	phys.coalesce(order, blk)
}

/// OrderFree reports how many blocks are currently free at the given
/// order, for tests and diagnostics.
func (phys *Physmem_t) OrderFree(order int) int {
	phys.lock.Lock()
	defer phys.lock.Unlock()
	n := 0
	lvl := &phys.levels[order]
	for b := lvl.freehead; b != -1; b = lvl.freenext[b] {
		n++
	}
	return n
}

/// BitAllocated reports whether the per-level bitmap bit for the block
/// containing p at the given order is set. A block sits on level k's
/// free list iff its level-k bit is clear; tests assert that invariant
/// through this accessor.
func (phys *Physmem_t) BitAllocated(order int, p Pa_t) bool {
	phys.lock.Lock()
	defer phys.lock.Unlock()
	pageIdx := int32((p - phys.heapBase) / Pa_t(PGSIZE))
	blk := pageIdx >> uint(order)
	return bitget(phys.levels[order].allocated, blk)
}
