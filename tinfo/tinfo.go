// Package tinfo tracks per-thread signal/self-abort bookkeeping for
// procmgr's PM_SIGNAL handler: a process that faults during syscall
// handling is scheduled to self-abort via a Signal message to the
// process manager. Notes are reached through the owning Process_t's
// table keyed by thread id; sched.Current() is the single source of
// truth for the running thread.
package tinfo

import (
	"sync"

	"defs"
)

/// Tnote_t stores one thread's signal/self-abort state.
type Tnote_t struct {
	State    interface{}
	Alive    bool
	Killed   bool
	Isdoomed bool
	// protects Killed, Killnaps.Cond and Kerr, and is a leaf lock
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
}

/// MkTnote creates a freshly alive, unkilled thread note.
func MkTnote() *Tnote_t {
	t := &Tnote_t{Alive: true}
	t.Killnaps.Killch = make(chan bool)
	t.Killnaps.Cond = sync.NewCond(&t.Mutex)
	return t
}

/// Doomed reports whether the thread is marked as doomed.
func (t *Tnote_t) Doomed() bool {
	return t.Isdoomed
}

// Signal marks the thread killed with the given error, the effect of a
// PM_SIGNAL request: the next cooperative check point (a syscall
// return, a charge-budget check) observes Killed and self-aborts with
// Kerr. Safe to call more than once; only the first call's err sticks.
func (t *Tnote_t) Signal(err defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	if t.Killed {
		return
	}
	t.Killed = true
	t.Killnaps.Kerr = err
	close(t.Killnaps.Killch)
	t.Killnaps.Cond.Broadcast()
}

/// Threadinfo_t tracks all thread notes belonging to one process.
type Threadinfo_t struct {
	Notes map[defs.Tid_t]*Tnote_t
	sync.Mutex
}

/// Init initializes the thread info map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

// Add registers a freshly created thread's note.
func (t *Threadinfo_t) Add(tid defs.Tid_t) *Tnote_t {
	t.Lock()
	defer t.Unlock()
	n := MkTnote()
	t.Notes[tid] = n
	return n
}

// Remove drops tid's note, once the thread has exited.
func (t *Threadinfo_t) Remove(tid defs.Tid_t) {
	t.Lock()
	defer t.Unlock()
	delete(t.Notes, tid)
}

// Lookup finds tid's note, if the thread is still alive.
func (t *Threadinfo_t) Lookup(tid defs.Tid_t) (*Tnote_t, bool) {
	t.Lock()
	defer t.Unlock()
	n, ok := t.Notes[tid]
	return n, ok
}
