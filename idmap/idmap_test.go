package idmap

import "testing"

func TestSetGetDel(t *testing.T) {
	ht := MkHash(4)
	if _, ok := ht.Get(1); ok {
		t.Fatalf("Get on empty table found a value")
	}
	if v, added := ht.Set(1, "one"); !added || v != "one" {
		t.Fatalf("Set(1) = %v, %v, want \"one\", true", v, added)
	}
	if v, ok := ht.Get(1); !ok || v != "one" {
		t.Fatalf("Get(1) = %v, %v, want \"one\", true", v, ok)
	}
	ht.Del(1)
	if _, ok := ht.Get(1); ok {
		t.Fatalf("Get(1) after Del still found a value")
	}
}

// TestSetExistingKeyIsRejected matches procmgr's use of Hashtable_t as
// a strictly-allocated id table: a caller never re-Sets an id already
// in use, so Set reports the existing value instead of overwriting it.
func TestSetExistingKeyIsRejected(t *testing.T) {
	ht := MkHash(4)
	ht.Set(5, "first")
	v, added := ht.Set(5, "second")
	if added {
		t.Fatalf("Set on an existing key reported added=true")
	}
	if v != "first" {
		t.Fatalf("Set on an existing key returned %v, want the original value", v)
	}
}

func TestDelMissingKeyPanics(t *testing.T) {
	ht := MkHash(4)
	defer func() {
		if recover() == nil {
			t.Fatalf("Del of a missing key should panic")
		}
	}()
	ht.Del(42)
}

func TestSizeAndElems(t *testing.T) {
	ht := MkHash(4)
	for i := 0; i < 10; i++ {
		ht.Set(i, i*i)
	}
	if ht.Size() != 10 {
		t.Fatalf("Size() = %d, want 10", ht.Size())
	}
	seen := make(map[int]bool)
	for _, p := range ht.Elems() {
		if p.Value.(int) != p.Key*p.Key {
			t.Fatalf("pair %v has the wrong value", p)
		}
		seen[p.Key] = true
	}
	if len(seen) != 10 {
		t.Fatalf("Elems returned %d distinct keys, want 10", len(seen))
	}
	ht.Del(3)
	if ht.Size() != 9 {
		t.Fatalf("Size() after Del = %d, want 9", ht.Size())
	}
}

func TestIterStopsWhenTrue(t *testing.T) {
	ht := MkHash(4)
	ht.Set(1, "a")
	ht.Set(2, "b")
	found := ht.Iter(func(k int, v interface{}) bool {
		return k == 1
	})
	if !found {
		t.Fatalf("Iter did not report finding key 1")
	}
}
