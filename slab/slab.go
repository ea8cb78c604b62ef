// Package slab implements the kernel's small- and large-object caches:
// homogeneous pools of fixed-size objects carved out of pages allocated
// from mem.Physmem. A slab is destroyed when its handed-out refcount
// returns to zero; freed bufctls go back to the free-list head so the
// next allocation reuses warm storage.
//
// A small object's owning slab is recovered from the object's address
// masked down to the page boundary. Overlaying the descriptor onto the
// page's own tail bytes would not be sound here: mem's simulated RAM is
// a plain []byte arena the garbage collector does not scan for
// pointers, so a *slab_t stashed there would be invisible to the GC.
// The masked page base therefore keys an ordinary Go map holding the
// descriptor out of line. Large objects (size > PGSIZE/8) resolve
// through a balanced map keyed by the object's own address, the same
// omap used by ttbl and name.
package slab

import (
	"unsafe"

	"mem"
	"omap"
	"sys"
)

// maxSmallObjectSize is PGSIZE/8: the boundary between the small
// (intra-page) and large (out-of-band descriptor) slab layouts.
const maxSmallObjectSize = mem.PGSIZE / 8

/// Ops is the pluggable per-object-type behavior a Cache_t invokes
/// outside its spinlock; the lock covers only free-list manipulation,
/// never construction or destruction. The size-class-specific slab
/// allocate/free/resolve behavior is fixed internally by Cache_t based
/// on object size rather than made pluggable, since the kernel has
/// exactly two size classes.
type Ops interface {
	/// Construct initializes a freshly carved object's storage.
	Construct(obj []byte)
	/// Destruct tears down an object's storage before it is returned
	/// to its slab's free list.
	Destruct(obj []byte)
}

type bufctl_t struct {
	next int32
}

type slab_t struct {
	phys     mem.Pa_t
	objcount int
	refcount int
	freehead int32
	bufs     []bufctl_t
}

/// Cache_t is one object cache: a homogeneous pool of fixed-size
/// objects. The cache is serialized by a single spinlock held only
/// across the free-list manipulation in Alloc/Free.
type Cache_t struct {
	lock    sys.Spinlock_t
	ops     Ops
	objsize int
	small   bool

	slabs  []*slab_t
	pageOf map[uintptr]*slab_t
	bufctl omap.Omap_t[uintptr, *slab_t]
}

/// MkCache creates a cache of objects of the given size. ops may be nil
/// if the object type needs no construction/destruction step.
func MkCache(objsize int, ops Ops) *Cache_t {
	if objsize <= 0 || objsize > mem.PGSIZE {
		panic("slab: bad object size")
	}
	return &Cache_t{
		ops:     ops,
		objsize: objsize,
		small:   objsize <= maxSmallObjectSize,
		pageOf:  make(map[uintptr]*slab_t),
	}
}

func (c *Cache_t) objAt(sl *slab_t, idx int32) []byte {
	pg := mem.Physmem.Dmap(sl.phys)
	off := int(idx) * c.objsize
	return pg[off : off+c.objsize]
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// newSlab carves a fresh page into objcount object slots (small
// objects: as many as fit; large objects: exactly one, with the
// remainder of the page unused).
func (c *Cache_t) newSlab() (*slab_t, bool) {
	p, ok := mem.Physmem.AllocPage()
	if !ok {
		return nil, false
	}
	n := mem.PGSIZE / c.objsize
	if !c.small {
		n = 1
	}
	sl := &slab_t{phys: p, objcount: n, freehead: -1, bufs: make([]bufctl_t, n)}
	for i := n - 1; i >= 0; i-- {
		sl.bufs[i].next = sl.freehead
		sl.freehead = int32(i)
	}
	if c.small {
		pg := mem.Physmem.Dmap(p)
		c.pageOf[addrOf(pg)] = sl
	} else {
		c.bufctl.Insert(addrOf(c.objAt(sl, 0)), sl)
	}
	return sl, true
}

func (c *Cache_t) takeSlot() ([]byte, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var sl *slab_t
	for _, s := range c.slabs {
		if s.freehead != -1 {
			sl = s
			break
		}
	}
	if sl == nil {
		ns, ok := c.newSlab()
		if !ok {
			return nil, false
		}
		c.slabs = append(c.slabs, ns)
		sl = ns
	}
	bc := sl.freehead
	sl.freehead = sl.bufs[bc].next
	sl.refcount++
	return c.objAt(sl, bc), true
}

/// Alloc hands out one object, constructing it (outside the cache
/// lock) before returning it.
func (c *Cache_t) Alloc() ([]byte, bool) {
	obj, ok := c.takeSlot()
	if !ok {
		return nil, false
	}
	if c.ops != nil {
		c.ops.Construct(obj)
	}
	return obj, true
}

func (c *Cache_t) resolve(obj []byte) (*slab_t, int32) {
	addr := addrOf(obj)
	if c.small {
		base := addr &^ uintptr(mem.PGSIZE-1)
		sl, ok := c.pageOf[base]
		if !ok {
			panic("slab: free of object from an unknown page")
		}
		idx := int32((addr - base) / uintptr(c.objsize))
		return sl, idx
	}
	sl, ok := c.bufctl.Lookup(addr)
	if !ok {
		panic("slab: free of an unknown large object")
	}
	return sl, 0
}

func (c *Cache_t) destroySlab(sl *slab_t) {
	if c.small {
		pg := mem.Physmem.Dmap(sl.phys)
		delete(c.pageOf, addrOf(pg))
	} else {
		c.bufctl.Remove(addrOf(c.objAt(sl, 0)))
	}
	for i, s := range c.slabs {
		if s == sl {
			c.slabs = append(c.slabs[:i], c.slabs[i+1:]...)
			break
		}
	}
	mem.Physmem.Free(sl.phys)
}

/// Free destructs obj (outside the cache lock) and returns its bufctl
/// to its slab's free-list head for reuse locality, destroying the
/// slab once its refcount reaches zero.
func (c *Cache_t) Free(obj []byte) {
	if c.ops != nil {
		c.ops.Destruct(obj)
	}
	c.lock.Lock()
	defer c.lock.Unlock()

	sl, idx := c.resolve(obj)
	sl.bufs[idx].next = sl.freehead
	sl.freehead = idx
	sl.refcount--
	if sl.refcount == 0 {
		c.destroySlab(sl)
	}
}

/// Nslabs reports how many slabs currently back this cache, for tests.
func (c *Cache_t) Nslabs() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.slabs)
}

// PageCache is the kernel-wide page-granularity object cache backing
// every mapped page a vmspace.Addrspace_t owns. Its object size is
// exactly mem.PGSIZE, which falls in the large-object class (one
// object per slab, one slab per page) rather than the small,
// intra-page class. It needs no Ops: a freshly mapped page's zeroing
// is vmspace's own concern (CreateBacked/CreateStack/ExtendHeap zero
// through mem.Physmem.Zero after allocation), not slab's.
var PageCache = MkCache(mem.PGSIZE, nil)
