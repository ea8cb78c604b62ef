package slab

import (
	"testing"

	"mem"
)

func freshMem(t *testing.T, npages int) {
	t.Helper()
	*mem.Physmem = mem.Physmem_t{}
	mem.Phys_init(npages)
}

type counter struct{ constructed, destructed int }

func (c *counter) Construct(obj []byte) { c.constructed++ }
func (c *counter) Destruct(obj []byte)  { c.destructed++ }

func TestSmallObjectAllocFree(t *testing.T) {
	freshMem(t, 4)
	ops := &counter{}
	c := MkCache(64, ops)
	if !c.small {
		t.Fatalf("64-byte objects should use the small layout")
	}
	a, ok := c.Alloc()
	if !ok {
		t.Fatalf("alloc failed")
	}
	b, ok := c.Alloc()
	if !ok {
		t.Fatalf("alloc failed")
	}
	if c.Nslabs() != 1 {
		t.Fatalf("two small objects should share one slab, got %d slabs", c.Nslabs())
	}
	a[0] = 1
	b[0] = 2
	c.Free(a)
	if ops.destructed != 1 {
		t.Fatalf("destruct not called")
	}
	c.Free(b)
	if c.Nslabs() != 0 {
		t.Fatalf("slab should be destroyed once refcount reaches zero")
	}
}

func TestLargeObjectUsesOneSlabEach(t *testing.T) {
	freshMem(t, 4)
	c := MkCache(mem.PGSIZE/2, nil)
	if c.small {
		t.Fatalf("half-page objects should use the large layout")
	}
	a, ok := c.Alloc()
	if !ok {
		t.Fatalf("alloc failed")
	}
	_, ok = c.Alloc()
	if !ok {
		t.Fatalf("alloc failed")
	}
	if c.Nslabs() != 2 {
		t.Fatalf("large objects get one slab each, got %d", c.Nslabs())
	}
	c.Free(a)
	if c.Nslabs() != 1 {
		t.Fatalf("freeing one large object should destroy only its slab")
	}
}

func TestFreeListReuseLocality(t *testing.T) {
	freshMem(t, 4)
	c := MkCache(64, nil)
	a, _ := c.Alloc()
	c.Free(a)
	b, _ := c.Alloc()
	if addrOf(a) != addrOf(b) {
		t.Fatalf("expected the just-freed bufctl to be reused first")
	}
}

func TestFreeOfUnknownObjectPanics(t *testing.T) {
	freshMem(t, 4)
	c := MkCache(64, nil)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic freeing an object from an unknown page")
		}
	}()
	bogus := make([]byte, 64)
	c.Free(bogus)
}
