package procmgr

import (
	"defs"
	"ipc"
	"irq"
	"mem"
	"name"
)

// handlerFunc answers one request from sender, already resolved to its
// Process_t. Returning nil means the request is discarded with no
// reply, the Exit/Signal path where the sender no longer exists to
// receive one.
type handlerFunc func(sender *Process_t, req *Request_t) *Reply_t

var dispatchTable map[defs.ProcMgrType]handlerFunc

func init() {
	dispatchTable = map[defs.ProcMgrType]handlerFunc{
		defs.PM_EXIT:                  handleExit,
		defs.PM_SIGNAL:                handleSignal,
		defs.PM_GETPID:                handleGetPid,
		defs.PM_SPAWN:                 handleSpawnMessage,
		defs.PM_INTERRUPT_ATTACH:      handleInterruptAttach,
		defs.PM_INTERRUPT_DETACH:      handleInterruptDetach,
		defs.PM_INTERRUPT_COMPLETE:    handleInterruptComplete,
		defs.PM_MAP_PHYS:              handleMapPhys,
		defs.PM_NAME_ATTACH:           handleNameAttach,
		defs.PM_NAME_OPEN:             handleNameOpen,
		defs.PM_CHILD_WAIT_ATTACH:     handleChildWaitAttach,
		defs.PM_CHILD_WAIT_DETACH:     handleChildWaitDetach,
		defs.PM_CHILD_WAIT_ARM:        handleChildWaitArm,
		defs.PM_SBRK:                  handleSbrk,
	}
}

// handleExit answers a process's request to end itself. No reply is
// sent: by the time reap returns, sender's address space is already
// destroyed, so a reply would copy into a torn-down translation table
// and wake an exited thread into memory that no longer exists. Instead
// the sender's thread is forced FINISHED directly, the same state a
// reply would eventually have driven it to, without ever resuming it.
func handleExit(sender *Process_t, req *Request_t) *Reply_t {
	reap(sender)
	forceFinish(sender)
	return nil
}

// handleSignal is a process's request to self-abort, the path a
// process that faulted during syscall handling is steered down. It
// tears down exactly like Exit; Req.Arg0 carries the error that
// triggered the self-abort, recorded on the thread's note for
// observability.
func handleSignal(sender *Process_t, req *Request_t) *Reply_t {
	if note, found := sender.Notes.Lookup(sender.Thread.Tid); found {
		note.Signal(defs.Err_t(int32(req.Arg0)))
	}
	reap(sender)
	forceFinish(sender)
	return nil
}

func handleGetPid(sender *Process_t, req *Request_t) *Reply_t {
	return &Reply_t{Status: defs.OK, Val0: uint32(sender.Pid)}
}

// handleSpawnMessage answers the message-dispatched PM_SPAWN: a Go
// closure entry point cannot travel over IPC, so the only real spawn
// path is the direct Spawn function boot code calls. An ELF-loading
// spawn would need the loader, which lives outside the core.
func handleSpawnMessage(sender *Process_t, req *Request_t) *Reply_t {
	return &Reply_t{Status: defs.NO_SYS}
}

func handleInterruptAttach(sender *Process_t, req *Request_t) *Reply_t {
	conn, ok := sender.LookupConnection(defs.Coid_t(req.Arg1))
	if !ok {
		return &Reply_t{Status: defs.INVALID}
	}
	h := irq.MakeUserHandler(int(req.Arg0), sender.Pid, conn, uintptr(req.Arg2))
	irq.AttachUserHandler(h)

	sender.lock.Lock()
	id := sender.nextHandler
	sender.nextHandler++
	sender.handlers[id] = h
	sender.lock.Unlock()

	return &Reply_t{Status: defs.OK, Val0: id}
}

func handleInterruptDetach(sender *Process_t, req *Request_t) *Reply_t {
	sender.lock.Lock()
	h, ok := sender.handlers[req.Arg0]
	if ok {
		delete(sender.handlers, req.Arg0)
	}
	sender.lock.Unlock()
	if !ok {
		return &Reply_t{Status: defs.INVALID}
	}
	irq.DetachUserHandler(h)
	return &Reply_t{Status: defs.OK}
}

func handleInterruptComplete(sender *Process_t, req *Request_t) *Reply_t {
	sender.lock.Lock()
	h, ok := sender.handlers[req.Arg0]
	sender.lock.Unlock()
	if !ok {
		return &Reply_t{Status: defs.INVALID}
	}
	return &Reply_t{Status: irq.CompleteUserHandler(h)}
}

func handleMapPhys(sender *Process_t, req *Request_t) *Reply_t {
	virt, err := sender.AS.CreatePhysical(mem.Pa_t(req.Arg0), int(req.Arg1))
	if err != defs.OK {
		return &Reply_t{Status: err}
	}
	return &Reply_t{Status: defs.OK, Val0: uint32(virt)}
}

func handleNameAttach(sender *Process_t, req *Request_t) *Reply_t {
	ch, ok := sender.LookupChannel(defs.Chid_t(req.Arg0))
	if !ok {
		return &Reply_t{Status: defs.INVALID}
	}
	rec, err := name.Global.Register(req.Path, ch)
	if err != defs.OK {
		return &Reply_t{Status: err}
	}
	sender.lock.Lock()
	sender.names = append(sender.names, rec)
	sender.lock.Unlock()
	return &Reply_t{Status: defs.OK}
}

func handleNameOpen(sender *Process_t, req *Request_t) *Reply_t {
	ch, err := name.Global.Lookup(req.Path)
	if err != defs.OK {
		return &Reply_t{Status: err}
	}
	conn := ipc.MkConnection(ch)
	coid, err := sender.RegisterConnection(conn)
	if err != defs.OK {
		return &Reply_t{Status: err}
	}
	return &Reply_t{Status: defs.OK, Val0: uint32(coid)}
}

func handleChildWaitAttach(sender *Process_t, req *Request_t) *Reply_t {
	ch, ok := sender.LookupChannel(defs.Chid_t(req.Arg0))
	if !ok {
		return &Reply_t{Status: defs.INVALID}
	}
	conn := ipc.MkConnection(ch)
	sender.lock.Lock()
	sender.childWaitConn = conn
	sender.childWaitArmed = false
	sender.lock.Unlock()
	return &Reply_t{Status: defs.OK}
}

func handleChildWaitDetach(sender *Process_t, req *Request_t) *Reply_t {
	sender.lock.Lock()
	sender.childWaitConn = nil
	sender.childWaitArmed = false
	sender.lock.Unlock()
	return &Reply_t{Status: defs.OK}
}

func handleChildWaitArm(sender *Process_t, req *Request_t) *Reply_t {
	sender.lock.Lock()
	if sender.childWaitConn == nil {
		sender.lock.Unlock()
		return &Reply_t{Status: defs.INVALID}
	}
	sender.childWaitArmed = true
	sender.lock.Unlock()
	return &Reply_t{Status: defs.OK}
}

func handleSbrk(sender *Process_t, req *Request_t) *Reply_t {
	oldEnd, _, err := sender.AS.ExtendHeap(int(req.Arg0))
	if err != defs.OK {
		return &Reply_t{Status: err}
	}
	return &Reply_t{Status: defs.OK, Val0: uint32(oldEnd)}
}
