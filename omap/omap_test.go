package omap

import "testing"

func TestInsertLookupOverwrite(t *testing.T) {
	var m Omap_t[int, string]
	m.Insert(5, "five")
	m.Insert(3, "three")
	m.Insert(5, "FIVE")

	if v, ok := m.Lookup(5); !ok || v != "FIVE" {
		t.Fatalf("Lookup(5) = %q, %v, want \"FIVE\", true", v, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (overwrite must not grow the map)", m.Len())
	}
}

func TestIterAscendingOrder(t *testing.T) {
	var m Omap_t[int, int]
	for _, k := range []int{5, 1, 9, 3, 7, 2, 8, 4, 6} {
		m.Insert(k, k*10)
	}
	var seen []int
	m.Iter(func(k, v int) bool {
		seen = append(seen, k)
		if v != k*10 {
			t.Fatalf("value for key %d = %d, want %d", k, v, k*10)
		}
		return true
	})
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("Iter order not ascending: %v", seen)
		}
	}
	if len(seen) != 9 {
		t.Fatalf("Iter visited %d keys, want 9", len(seen))
	}
}

func TestIterStopsEarly(t *testing.T) {
	var m Omap_t[int, int]
	for i := 0; i < 10; i++ {
		m.Insert(i, i)
	}
	count := 0
	m.Iter(func(k, v int) bool {
		count++
		return k < 3
	})
	if count != 4 {
		t.Fatalf("Iter visited %d entries before stopping, want 4 (0..3 inclusive, 3 being the false-returning call)", count)
	}
}

func TestRemoveRebalances(t *testing.T) {
	var m Omap_t[int, int]
	keys := []int{10, 20, 30, 40, 50, 25, 5}
	for _, k := range keys {
		m.Insert(k, k)
	}
	if !m.Remove(20) {
		t.Fatalf("Remove(20) = false, want true")
	}
	if m.Remove(20) {
		t.Fatalf("second Remove(20) = true, want false")
	}
	if m.Len() != len(keys)-1 {
		t.Fatalf("Len() = %d, want %d", m.Len(), len(keys)-1)
	}
	var seen []int
	m.Iter(func(k, _ int) bool {
		seen = append(seen, k)
		return true
	})
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("tree order broken after Remove: %v", seen)
		}
	}
}

func TestMinOnEmptyAndNonEmpty(t *testing.T) {
	var m Omap_t[int, string]
	if _, _, ok := m.Min(); ok {
		t.Fatalf("Min() on empty map reported ok=true")
	}
	m.Insert(7, "seven")
	m.Insert(2, "two")
	m.Insert(9, "nine")
	k, v, ok := m.Min()
	if !ok || k != 2 || v != "two" {
		t.Fatalf("Min() = %d, %q, %v, want 2, \"two\", true", k, v, ok)
	}
}

func TestHasReflectsPresence(t *testing.T) {
	var m Omap_t[string, int]
	if m.Has("x") {
		t.Fatalf("Has(\"x\") on empty map = true")
	}
	m.Insert("x", 1)
	if !m.Has("x") {
		t.Fatalf("Has(\"x\") after Insert = false")
	}
	m.Remove("x")
	if m.Has("x") {
		t.Fatalf("Has(\"x\") after Remove = true")
	}
}
