// Package omap implements the balanced ordered map the kernel uses
// wherever a table must support both fast lookup and in-order
// iteration: translation-table second-level tables, the process-id
// table, and the name registry. The AVL tree is generic over any
// ordered key type since the same structure is needed keyed by
// defs.Pid_t, virtual addresses, and path-name strings.
package omap

import "cmp"

// node is one AVL tree node. height is cached on the node rather than
// recomputed from subtree heights on every rotation.
type node[K cmp.Ordered, V any] struct {
	key    K
	val    V
	left   *node[K, V]
	right  *node[K, V]
	height int
}

/// Omap_t is an ordered map from K to V backed by an AVL tree.
/// The zero value is an empty map ready to use.
type Omap_t[K cmp.Ordered, V any] struct {
	root *node[K, V]
	n    int
}

/// Len returns the number of entries in the map.
func (m *Omap_t[K, V]) Len() int {
	return m.n
}

func height[K cmp.Ordered, V any](n *node[K, V]) int {
	if n == nil {
		return 0
	}
	return n.height
}

func fixheight[K cmp.Ordered, V any](n *node[K, V]) {
	lh, rh := height(n.left), height(n.right)
	if lh > rh {
		n.height = lh + 1
	} else {
		n.height = rh + 1
	}
}

func balance[K cmp.Ordered, V any](n *node[K, V]) int {
	return height(n.right) - height(n.left)
}

func rotright[K cmp.Ordered, V any](n *node[K, V]) *node[K, V] {
	l := n.left
	n.left = l.right
	l.right = n
	fixheight(n)
	fixheight(l)
	return l
}

func rotleft[K cmp.Ordered, V any](n *node[K, V]) *node[K, V] {
	r := n.right
	n.right = r.left
	r.left = n
	fixheight(n)
	fixheight(r)
	return r
}

func rebalance[K cmp.Ordered, V any](n *node[K, V]) *node[K, V] {
	fixheight(n)
	switch b := balance(n); {
	case b == 2:
		if balance(n.right) < 0 {
			n.right = rotright(n.right)
		}
		return rotleft(n)
	case b == -2:
		if balance(n.left) > 0 {
			n.left = rotleft(n.left)
		}
		return rotright(n)
	}
	return n
}

/// Lookup returns the value stored at key and whether it was present.
func (m *Omap_t[K, V]) Lookup(key K) (V, bool) {
	n := m.root
	for n != nil {
		switch {
		case key == n.key:
			return n.val, true
		case key < n.key:
			n = n.left
		default:
			n = n.right
		}
	}
	var zero V
	return zero, false
}

/// Has reports whether key is present.
func (m *Omap_t[K, V]) Has(key K) bool {
	_, ok := m.Lookup(key)
	return ok
}

func insert[K cmp.Ordered, V any](n *node[K, V], key K, val V, grew *bool) *node[K, V] {
	if n == nil {
		*grew = true
		return &node[K, V]{key: key, val: val, height: 1}
	}
	switch {
	case key == n.key:
		n.val = val
	case key < n.key:
		n.left = insert(n.left, key, val, grew)
	default:
		n.right = insert(n.right, key, val, grew)
	}
	return rebalance(n)
}

/// Insert adds or overwrites the value stored at key.
func (m *Omap_t[K, V]) Insert(key K, val V) {
	grew := false
	m.root = insert(m.root, key, val, &grew)
	if grew {
		m.n++
	}
}

func minnode[K cmp.Ordered, V any](n *node[K, V]) *node[K, V] {
	for n.left != nil {
		n = n.left
	}
	return n
}

func remove[K cmp.Ordered, V any](n *node[K, V], key K, removed *bool) *node[K, V] {
	if n == nil {
		return nil
	}
	switch {
	case key < n.key:
		n.left = remove(n.left, key, removed)
	case key > n.key:
		n.right = remove(n.right, key, removed)
	default:
		*removed = true
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		succ := minnode(n.right)
		n.key, n.val = succ.key, succ.val
		dummy := false
		n.right = remove(n.right, succ.key, &dummy)
	}
	return rebalance(n)
}

/// Remove deletes key from the map, reporting whether it was present.
func (m *Omap_t[K, V]) Remove(key K) bool {
	removed := false
	m.root = remove(m.root, key, &removed)
	if removed {
		m.n--
	}
	return removed
}

/// Iter calls f on every (key, value) pair in ascending key order. It
/// stops early if f returns false.
func (m *Omap_t[K, V]) Iter(f func(K, V) bool) {
	var walk func(n *node[K, V]) bool
	walk = func(n *node[K, V]) bool {
		if n == nil {
			return true
		}
		if !walk(n.left) {
			return false
		}
		if !f(n.key, n.val) {
			return false
		}
		return walk(n.right)
	}
	walk(m.root)
}

/// Min returns the smallest key in the map and whether the map is
/// non-empty.
func (m *Omap_t[K, V]) Min() (K, V, bool) {
	if m.root == nil {
		var zk K
		var zv V
		return zk, zv, false
	}
	n := minnode(m.root)
	return n.key, n.val, true
}
