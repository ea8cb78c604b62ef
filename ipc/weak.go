package ipc

import "sync"

// weak_t is an explicit weak-reference handle: a pointer that can be
// cleared out from under its holder and upgraded to a strong reference
// only while it is still alive. Connection_t's reference to its
// Channel_t is one of these, and Message_t's reference to its owning
// Connection_t is another; together they break the
// connection->channel->message->connection cycle. The weak handle is
// kept explicit rather than left to Go's GC because the observable
// semantics (INVALID once the target closes) matter, not just memory
// reclamation. The lock is shared by every copy of the handle, so a
// clear through one copy is seen by all of them.
type weak_t[T any] struct {
	mu     *sync.Mutex
	target *T
}

func mkWeak[T any](t *T) weak_t[T] {
	return weak_t[T]{mu: new(sync.Mutex), target: t}
}

// upgrade returns the target and true if it is still alive, or (nil,
// false) once clear has run or the handle was never bound: the natural
// signal for defs.INVALID on a closed channel.
func (w *weak_t[T]) upgrade() (*T, bool) {
	if w.mu == nil {
		return nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target, w.target != nil
}

func (w *weak_t[T]) clear() {
	if w.mu == nil {
		return
	}
	w.mu.Lock()
	w.target = nil
	w.mu.Unlock()
}
