// Package irq implements the device-independent interrupt dispatch
// core: a per-IRQ table of one optional kernel handler plus a list of
// user handlers, reference-counted masking, and delivery of
// PULSE_INTERRUPT to every attached user handler's connection on
// dispatch. Controller and Timer are the interfaces a concrete device
// driver (PL190, SP804 on this target) would implement and register at
// boot.
package irq

import (
	"sys"

	"defs"
	"ipc"
)

// Controller is the device-independent interrupt controller contract:
// init, per-IRQ mask/unmask, the controller's line count, and polling
// for the currently raised line. A concrete driver (PL190 on this
// target) registers one via SetController at boot.
type Controller interface {
	Init()
	Mask(irqNumber int)
	Unmask(irqNumber int)
	SupportedCount() int
	Raised() int
}

// Timer is the device-independent periodic timer contract. A concrete
// driver (SP804 on this target) registers one via SetTimer; the core
// calls StartPeriodic(1000) once the process manager is running.
type Timer interface {
	Init()
	ClearInterrupt()
	StartPeriodic(periodMs int)
}

var controller Controller
var timer Timer

// SetController registers the device's interrupt controller driver.
func SetController(c Controller) { controller = c }

// SetTimer registers the device's periodic timer driver.
func SetTimer(t Timer) { timer = t }

// UserHandler is one process's attachment to an IRQ line, created and
// torn down by the PM_INTERRUPT_ATTACH/DETACH handlers. Param is
// opaque data the attaching process supplied, echoed back as the
// pulse's value on dispatch.
type UserHandler struct {
	irqNumber int
	pid       defs.Pid_t
	conn      *ipc.Connection_t
	param     uintptr

	masked bool
}

type line_t struct {
	kernel  func()
	users   []*UserHandler
	maskcnt int
}

// Dispatcher_t is the kernel-wide IRQ table, one line_t per supported
// line. There is exactly one, Global.
type Dispatcher_t struct {
	lock  sys.Spinlock_t
	lines []line_t
}

var Global = &Dispatcher_t{}

// Init sizes the dispatch table to the controller's supported line
// count and initializes the controller and timer drivers.
func Init() {
	Global.lock.Lock()
	defer Global.lock.Unlock()
	Global.lines = make([]line_t, controller.SupportedCount())
	controller.Init()
	timer.Init()
}

// AttachKernelHandler installs f as irqNumber's kernel-mode handler,
// used for the timer tick and any other line the core itself services
// directly rather than via user pulses.
func AttachKernelHandler(irqNumber int, f func()) {
	Global.lock.Lock()
	defer Global.lock.Unlock()
	Global.lines[irqNumber].kernel = f
}

// AttachUserHandler registers h on its irqNumber's user-handler list
// and unmasks the line if this is its first attachment. Masking is
// reference-counted so attach/detach cycles leave the physical mask
// consistent.
func AttachUserHandler(h *UserHandler) {
	Global.lock.Lock()
	defer Global.lock.Unlock()
	ln := &Global.lines[h.irqNumber]
	ln.users = append(ln.users, h)
	if ln.maskcnt == 0 {
		controller.Unmask(h.irqNumber)
	}
	ln.maskcnt++
}

// DetachUserHandler removes h from its line's user-handler list,
// masking the line again once the last handler detaches.
func DetachUserHandler(h *UserHandler) {
	Global.lock.Lock()
	defer Global.lock.Unlock()
	ln := &Global.lines[h.irqNumber]
	for i, u := range ln.users {
		if u == h {
			ln.users = append(ln.users[:i], ln.users[i+1:]...)
			break
		}
	}
	ln.maskcnt--
	if ln.maskcnt == 0 {
		controller.Mask(h.irqNumber)
	}
}

// CompleteUserHandler re-arms h: a user handler that received a pulse
// is masked on delivery and must explicitly complete once it has
// finished servicing the device before it can be notified again.
func CompleteUserHandler(h *UserHandler) defs.Err_t {
	Global.lock.Lock()
	defer Global.lock.Unlock()
	if !h.masked {
		return defs.INVALID
	}
	h.masked = false
	return defs.OK
}

// MakeUserHandler constructs a handler record for pid's attachment to
// irqNumber over conn, carrying the opaque param the attaching process
// supplied.
func MakeUserHandler(irqNumber int, pid defs.Pid_t, conn *ipc.Connection_t, param uintptr) *UserHandler {
	return &UserHandler{irqNumber: irqNumber, pid: pid, conn: conn, param: param}
}

// Dispatch runs irqNumber's kernel handler if one is attached, then
// posts defs.PULSE_INTERRUPT with each unmasked user handler's param
// as the pulse value to every attached user handler's connection. Each
// user handler is masked on delivery until the owning process calls
// CompleteUserHandler.
func Dispatch(irqNumber int) {
	Global.lock.Lock()
	ln := &Global.lines[irqNumber]
	kernel := ln.kernel
	var toNotify []*UserHandler
	for _, h := range ln.users {
		if !h.masked {
			h.masked = true
			toNotify = append(toNotify, h)
		}
	}
	Global.lock.Unlock()

	if kernel != nil {
		kernel()
	}
	for _, h := range toNotify {
		h.conn.SendAsync(defs.PULSE_INTERRUPT, h.param)
	}
}
