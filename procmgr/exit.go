package procmgr

import (
	"defs"
	"ipc"
	"name"
	"sched"
)

// reap tears down p's process-level resources: every channel it owns
// is closed (so other processes' connections into them observe
// defs.INVALID), every name it registered is withdrawn, its address
// space is destroyed, it is removed from the pid table, and its parent
// is notified if armed for child-wait with PULSE_CHILD_FINISH carrying
// the exited pid in the pulse value. A second call is a no-op since
// everything it touches has already been emptied.
//
// Called both from handleExit/handleSignal (a process that asked the
// process manager, over IPC, to end itself) and from Spawn's thread
// wrapper (a process whose entry function simply returned); the same
// teardown runs either way.
func reap(p *Process_t) {
	p.lock.Lock()
	if p.exited {
		p.lock.Unlock()
		return
	}
	p.exited = true
	names := p.names
	p.names = nil
	p.lock.Unlock()

	p.channels.Iter(func(_ int, v interface{}) bool {
		v.(*ipc.Channel_t).Close()
		return false
	})
	for _, rec := range names {
		name.Global.Unregister(rec)
	}

	removeProcess(p.Pid)
	notifyParent(p)

	p.AS.Destroy()
}

// notifyParent delivers PULSE_CHILD_FINISH to child's parent if the
// parent is currently armed for a child-wait notification
// (PM_CHILD_WAIT_ATTACH/ARM), disarming it afterward: one notification
// per arm.
func notifyParent(child *Process_t) {
	parent, ok := ProcessLookup(child.Parent)
	if !ok {
		return
	}
	parent.Thread.Acct.Add(&child.Thread.Acct)

	parent.lock.Lock()
	conn := parent.childWaitConn
	armed := parent.childWaitArmed
	if armed {
		parent.childWaitArmed = false
	}
	parent.lock.Unlock()

	if armed && conn != nil {
		conn.SendAsync(defs.PULSE_CHILD_FINISH, uintptr(child.Pid))
	}
}

// forceFinish drives p's thread directly into FINISHED without going
// through its own body/runFirst trampoline, then joins it: the
// IPC-driven exit path, which sends no reply. reap itself must stay
// thread-state-agnostic: it is also reached from Spawn's closure when
// entry returns naturally, which already Finishes its own thread via
// runFirst's trampoline, and a second Finish of the same thread would
// double-close its join channel. Callers that drive exit over IPC
// (handleExit, handleSignal) call reap then this, never the other way
// around.
func forceFinish(p *Process_t) {
	sched.BeginTransaction()
	sched.Finish(p.Thread)
	sched.EndTransaction()
	p.Thread.WaitFinished()
}
