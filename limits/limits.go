// Package limits tracks system-wide ceilings on kernel object counts, so
// that allocation paths in procmgr/ipc can report defs.NO_MEM before the
// underlying slab caches are actually driven to exhaustion by a runaway
// client.
package limits

import "unsafe"
import "sync/atomic"

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

/// Syslimit_t tracks system-wide resource limits.
type Syslimit_t struct {
	// protected by procmgr's pid-map lock
	Sysprocs int
	// protected by sched's runqueue lock
	Threads int
	// remaining headroom, decremented on create, incremented on destroy
	Channels    Sysatomic_t
	Connections Sysatomic_t
	Messages    Sysatomic_t
	NameRecords Sysatomic_t
}

/// Syslimit describes the configured system-wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs:    1 << 14,
		Threads:     1 << 16,
		Channels:    1 << 16,
		Connections: 1 << 16,
		Messages:    1 << 16,
		NameRecords: 1 << 12,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

/// Take decrements the limit by one and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
