// Package res bounds the number of iterations a single kernel operation
// may take through a long-running loop (a multi-page cross-address-space
// copy, an iovec walk) so that a hostile or buggy size argument cannot
// wedge the kernel indefinitely with interrupts disabled. Callers charge
// once per loop iteration and bail out with defs.NO_MEM when a generous
// ceiling is exceeded.
package res

import "sync/atomic"

// perCallCeiling bounds how many chunks a single bounded loop may charge
// before res.Charge reports exhaustion. It is generous: the point is to
// catch runaway loops (corrupted length fields, cyclic structures), not
// to constrain legitimate transfers.
const perCallCeiling = 1 << 20

// Charge_t tracks consumption for a single bounded operation. Create one
// with NewCharge at the top of a bounded loop and call Take once per
// iteration.
type Charge_t struct {
	spent int64
}

// NewCharge returns a fresh budget for one bounded loop invocation.
func NewCharge() *Charge_t {
	return &Charge_t{}
}

// Take charges one unit against the budget and reports whether the
// operation may continue. tag identifies the call site for diagnostics;
// it does not currently affect the ceiling (see bounds.Tag_t).
func (c *Charge_t) Take() bool {
	n := atomic.AddInt64(&c.spent, 1)
	return n <= perCallCeiling
}
