// Package sys provides the synchronization primitives every other
// subsystem is built on: a non-sleeping spinlock that disables interrupts
// for its duration, a one-shot initializer, and a sleeping counting
// semaphore.
package sys

import "sync"

/// IrqState_t is the saved interrupt-enable state returned by an
/// IrqDisable/IrqSave style operation, so it can be restored precisely
/// rather than unconditionally re-enabled. On real ARMv6 hardware this
/// would be the I-bit of CPSR; here it is simulated so unit tests can
/// exercise nested disable/enable without real interrupts.
type IrqState_t bool

var irqLock sync.Mutex
var irqEnabled = true

/// IrqDisable disables interrupts and returns the previous enabled state.
func IrqDisable() IrqState_t {
	irqLock.Lock()
	prev := irqEnabled
	irqEnabled = false
	irqLock.Unlock()
	return IrqState_t(prev)
}

/// IrqRestore restores interrupts to the state captured by IrqDisable.
func IrqRestore(prev IrqState_t) {
	irqLock.Lock()
	irqEnabled = bool(prev)
	irqLock.Unlock()
}

/// IrqEnabled reports whether interrupts are currently enabled.
func IrqEnabled() bool {
	irqLock.Lock()
	defer irqLock.Unlock()
	return irqEnabled
}

/// Spinlock_t is a non-sleeping mutual-exclusion primitive. Acquiring one
/// disables interrupts for its duration; holders must never suspend.
/// It is implemented atop sync.Mutex rather than a literal
/// compare-and-swap busy-loop since there is no real multiprocessor bus
/// to spin on; the discipline (disable interrupts, never block while
/// held) is preserved.
type Spinlock_t struct {
	mu   sync.Mutex
	save IrqState_t
}

/// Lock acquires the spinlock, disabling interrupts.
func (l *Spinlock_t) Lock() {
	s := IrqDisable()
	l.mu.Lock()
	l.save = s
}

/// Unlock releases the spinlock, restoring the interrupt state that was
/// in effect when Lock was called.
func (l *Spinlock_t) Unlock() {
	s := l.save
	l.mu.Unlock()
	IrqRestore(s)
}

/// LockNoIrqSave acquires the spinlock without recording interrupt state,
/// for use from a context (e.g. an IRQ handler) that manages interrupt
/// masking itself.
func (l *Spinlock_t) LockNoIrqSave() {
	l.mu.Lock()
}

/// UnlockNoIrqRestore releases a lock taken with LockNoIrqSave.
func (l *Spinlock_t) UnlockNoIrqRestore() {
	l.mu.Unlock()
}

/// Once_t is a one-time initialization control.
type Once_t struct {
	once sync.Once
}

/// Do invokes f the first time Do is called on this Once_t, never again
/// afterward. Multiple goroutines calling Do concurrently block until the
/// first call completes.
func (o *Once_t) Do(f func()) {
	o.once.Do(f)
}
