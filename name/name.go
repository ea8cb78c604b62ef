// Package name implements the kernel-resident name registry: a single
// global map from full path string to the channel a server registered
// under it, guarded by one spinlock. The map is the same omap.Omap_t
// AVL tree ttbl uses for its sparse second-level table, keyed here by
// the path's string form since ustr.Ustr ([]uint8) is not itself
// cmp.Ordered.
package name

import (
	"defs"
	"ipc"
	"omap"
	"sys"
	"ustr"
)

// Record_t is the registry's entry for one registered path, returned
// to the registering process so it can later Unregister the same name.
// It lives in the owning process's channel-name bookkeeping and is
// destroyed when the channel is destroyed.
type Record_t struct {
	path ustr.Ustr
	ch   *ipc.Channel_t
}

// Path reports the full path this record was registered under.
func (r *Record_t) Path() ustr.Ustr { return r.path }

// Registry_t is the process-manager-wide name table. There is exactly
// one, Global; its zero value is ready to use, the same no-init-step
// pattern the other package-level singletons follow.
type Registry_t struct {
	lock   sys.Spinlock_t
	byPath omap.Omap_t[string, *Record_t]
}

var Global = &Registry_t{}

// Register binds path to ch, failing with defs.INVALID if the path is
// already registered; names are unique.
func (r *Registry_t) Register(path ustr.Ustr, ch *ipc.Channel_t) (*Record_t, defs.Err_t) {
	key := path.String()

	r.lock.Lock()
	defer r.lock.Unlock()

	if r.byPath.Has(key) {
		return nil, defs.INVALID
	}
	rec := &Record_t{path: append(ustr.Ustr{}, path...), ch: ch}
	r.byPath.Insert(key, rec)
	return rec, defs.OK
}

// Unregister removes rec from the registry. It is a no-op if rec has
// already been unregistered, which process exit teardown relies on.
func (r *Registry_t) Unregister(rec *Record_t) {
	key := rec.path.String()

	r.lock.Lock()
	defer r.lock.Unlock()
	r.byPath.Remove(key)
}

// Lookup resolves path to the channel currently registered under it,
// failing with defs.INVALID if nothing is registered there; this is
// the NameOpen half of NameAttach/NameOpen.
func (r *Registry_t) Lookup(path ustr.Ustr) (*ipc.Channel_t, defs.Err_t) {
	key := path.String()

	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.byPath.Lookup(key)
	if !ok {
		return nil, defs.INVALID
	}
	return rec.ch, defs.OK
}
