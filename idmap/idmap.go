// Package idmap implements the per-process id-to-handle table used by
// procmgr for its channel, connection, and outstanding-message maps.
// Keys are the small monotonically-assigned int ids handed out per
// process, so the table is specialized to int keys: a sharded bucket
// array whose reads walk the chain with atomic pointer loads and never
// block behind a writer on another key.
package idmap

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

type elem_t struct {
	key   int
	value interface{}
	next  *elem_t
}

type bucket_t struct {
	sync.RWMutex
	first *elem_t
}

func (b *bucket_t) len() int {
	b.RLock()
	defer b.RUnlock()
	l := 0
	for e := b.first; e != nil; e = e.next {
		l++
	}
	return l
}

func (b *bucket_t) elems() []Pair_t {
	b.RLock()
	defer b.RUnlock()
	p := make([]Pair_t, 0)
	for e := b.first; e != nil; e = e.next {
		p = append(p, Pair_t{Key: e.key, Value: e.value})
	}
	return p
}

// Hashtable_t maps small int ids to arbitrary values. Reads walk a
// bucket chain using atomic pointer loads so Get never blocks behind a
// concurrent Set/Del on another key; mutation holds the owning
// bucket's lock.
type Hashtable_t struct {
	table    []*bucket_t
	capacity int
	maxchain int
}

// MkHash allocates a new Hashtable_t with size buckets.
func MkHash(size int) *Hashtable_t {
	ht := &Hashtable_t{capacity: size, table: make([]*bucket_t, size), maxchain: 1}
	for i := range ht.table {
		ht.table[i] = &bucket_t{}
	}
	return ht
}

func (ht *Hashtable_t) String() string {
	s := ""
	for i, b := range ht.table {
		if b.first != nil {
			s += fmt.Sprintf("b %d:\n", i)
			for e := b.first; e != nil; e = loadptr(&e.next) {
				s += fmt.Sprintf("(%d), ", e.key)
			}
			s += "\n"
		}
	}
	return s
}

// Size returns the total number of elements stored in the table.
func (ht *Hashtable_t) Size() int {
	n := 0
	for _, b := range ht.table {
		n += b.len()
	}
	return n
}

// Pair_t is a key/value tuple returned by Elems.
type Pair_t struct {
	Key   int
	Value interface{}
}

// Elems returns all key/value pairs currently stored.
func (ht *Hashtable_t) Elems() []Pair_t {
	p := make([]Pair_t, 0)
	for _, b := range ht.table {
		p = append(p, b.elems()...)
	}
	return p
}

func (ht *Hashtable_t) bucket(key int) *bucket_t {
	return ht.table[khash(key)%uint32(len(ht.table))]
}

// Get looks up key and returns its value.
func (ht *Hashtable_t) Get(key int) (interface{}, bool) {
	b := ht.bucket(key)
	n := 0
	for e := loadptr(&b.first); e != nil; e = loadptr(&e.next) {
		if e.key == key {
			return e.value, true
		}
		n++
		if n > ht.maxchain {
			ht.maxchain = n
		}
	}
	return nil, false
}

// Set inserts a key/value pair, keeping the bucket chain sorted by
// key so Del can stop early. Returns false if key already existed.
func (ht *Hashtable_t) Set(key int, value interface{}) (interface{}, bool) {
	b := ht.bucket(key)
	b.Lock()
	defer b.Unlock()

	add := func(last *elem_t) {
		if last == nil {
			storeptr(&b.first, &elem_t{key: key, value: value, next: b.first})
		} else {
			storeptr(&last.next, &elem_t{key: key, value: value, next: last.next})
		}
	}

	var last *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			return e.value, false
		}
		if key < e.key {
			add(last)
			return value, true
		}
		last = e
	}
	add(last)
	return value, true
}

// Del removes key from the table. Panics if key is not present;
// callers only ever delete an id they previously registered.
func (ht *Hashtable_t) Del(key int) {
	b := ht.bucket(key)
	b.Lock()
	defer b.Unlock()

	var last *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			if last == nil {
				storeptr(&b.first, e.next)
			} else {
				storeptr(&last.next, e.next)
			}
			return
		}
		if key < e.key {
			break
		}
		last = e
	}
	panic("del of non-existing key")
}

// Iter applies f to each key/value pair, stopping early if f returns true.
func (ht *Hashtable_t) Iter(f func(int, interface{}) bool) bool {
	for _, b := range ht.table {
		for e := b.first; e != nil; e = loadptr(&e.next) {
			if f(e.key, e.value) {
				return true
			}
		}
	}
	return false
}

func khash(key int) uint32 {
	return uint32(2654435761) * uint32(key)
}

func loadptr(e **elem_t) *elem_t {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(e))
	return (*elem_t)(atomic.LoadPointer(ptr))
}

func storeptr(p **elem_t, n *elem_t) {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(p))
	atomic.StorePointer(ptr, unsafe.Pointer(n))
}
