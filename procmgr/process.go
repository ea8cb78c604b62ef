// Package procmgr implements process lifecycle (create/spawn/exit),
// the per-process channel/connection/message id tables, and the
// process manager's own syscall and message dispatch. The pid table
// sits under one spinlock, the same single-lock-over-the-whole-table
// shape mem.Physmem_t uses.
package procmgr

import (
	"sync/atomic"

	"defs"
	"idmap"
	"ipc"
	"irq"
	"limits"
	"name"
	"omap"
	"sched"
	"sys"
	"tinfo"
	"vmspace"
)

// Process_t is one process: an address space, its one thread (this
// kernel has no multi-threaded processes), and the three per-process
// id tables (channels, connections, outstanding messages).
type Process_t struct {
	lock sys.Spinlock_t

	Pid    defs.Pid_t
	Parent defs.Pid_t
	AS     *vmspace.Addrspace_t
	Thread *sched.Thread_t
	Notes  tinfo.Threadinfo_t

	channels    *idmap.Hashtable_t
	connections *idmap.Hashtable_t
	messages    *idmap.Hashtable_t
	nextChid    defs.Chid_t
	nextCoid    defs.Coid_t
	nextMsgid   defs.Msgid_t

	names []*name.Record_t

	handlers    map[uint32]*irq.UserHandler
	nextHandler uint32

	childWaitConn  *ipc.Connection_t
	childWaitArmed bool

	exited bool
}

var pidLock sys.Spinlock_t
var pidTable omap.Omap_t[defs.Pid_t, *Process_t]
var nextPid = defs.PROCMGR_PID

var tidCounter int64

func allocTid() defs.Tid_t {
	return defs.Tid_t(atomic.AddInt64(&tidCounter, 1))
}

// newProcess allocates a fresh pid and address space for a process
// whose parent is parent, failing with defs.NO_MEM once
// limits.Syslimit.Sysprocs live processes already exist. The very
// first call, from Bootstrap, yields defs.PROCMGR_PID.
func newProcess(parent defs.Pid_t) (*Process_t, defs.Err_t) {
	as, err := vmspace.MkAddrspace()
	if err != defs.OK {
		return nil, err
	}

	pidLock.Lock()
	defer pidLock.Unlock()
	if pidTable.Len() >= limits.Syslimit.Sysprocs {
		as.Destroy()
		return nil, defs.NO_MEM
	}
	pid := nextPid
	nextPid++

	p := &Process_t{
		Pid: pid, Parent: parent, AS: as,
		channels:    idmap.MkHash(16),
		connections: idmap.MkHash(16),
		messages:    idmap.MkHash(16),
		handlers:    make(map[uint32]*irq.UserHandler),
	}
	p.Notes.Init()
	pidTable.Insert(pid, p)
	return p, defs.OK
}

// ProcessLookup resolves pid to its live Process_t.
func ProcessLookup(pid defs.Pid_t) (*Process_t, bool) {
	pidLock.Lock()
	defer pidLock.Unlock()
	return pidTable.Lookup(pid)
}

func removeProcess(pid defs.Pid_t) {
	pidLock.Lock()
	defer pidLock.Unlock()
	pidTable.Remove(pid)
}

// RegisterChannel assigns ch the next channel id in p's table, failing
// with defs.NO_MEM if the system-wide channel ceiling is already
// exhausted.
func (p *Process_t) RegisterChannel(ch *ipc.Channel_t) (defs.Chid_t, defs.Err_t) {
	if !limits.Syslimit.Channels.Take() {
		return 0, defs.NO_MEM
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	id := p.nextChid
	p.nextChid++
	p.channels.Set(int(id), ch)
	return id, defs.OK
}

// LookupChannel resolves id to a channel this process registered.
func (p *Process_t) LookupChannel(id defs.Chid_t) (*ipc.Channel_t, bool) {
	v, ok := p.channels.Get(int(id))
	if !ok {
		return nil, false
	}
	return v.(*ipc.Channel_t), true
}

// UnregisterChannel drops id from p's channel table and gives back its
// system-wide channel slot.
func (p *Process_t) UnregisterChannel(id defs.Chid_t) {
	p.channels.Del(int(id))
	limits.Syslimit.Channels.Give()
}

// RegisterConnection assigns conn the next connection id in p's table.
// The very first connection any process registers (every process's
// initial connection to the process manager) lands at id 0, matching
// defs.PROCMGR_COID.
func (p *Process_t) RegisterConnection(conn *ipc.Connection_t) (defs.Coid_t, defs.Err_t) {
	if !limits.Syslimit.Connections.Take() {
		return 0, defs.NO_MEM
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	id := p.nextCoid
	p.nextCoid++
	p.connections.Set(int(id), conn)
	return id, defs.OK
}

// LookupConnection resolves id to a connection this process registered.
func (p *Process_t) LookupConnection(id defs.Coid_t) (*ipc.Connection_t, bool) {
	v, ok := p.connections.Get(int(id))
	if !ok {
		return nil, false
	}
	return v.(*ipc.Connection_t), true
}

// UnregisterConnection drops id from p's connection table.
func (p *Process_t) UnregisterConnection(id defs.Coid_t) {
	p.connections.Del(int(id))
	limits.Syslimit.Connections.Give()
}

// RegisterMessage assigns m the next message id in p's table, scoping
// an outstanding (received, not yet replied) message to its receiver;
// this is the handle MSGRECV hands back and MSGREPLY/MSGGETLEN/MSGREAD
// take.
func (p *Process_t) RegisterMessage(m *ipc.Message_t) (defs.Msgid_t, defs.Err_t) {
	if !limits.Syslimit.Messages.Take() {
		return 0, defs.NO_MEM
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	id := p.nextMsgid
	p.nextMsgid++
	p.messages.Set(int(id), m)
	return id, defs.OK
}

// LookupMessage resolves id to an outstanding message this process
// received.
func (p *Process_t) LookupMessage(id defs.Msgid_t) (*ipc.Message_t, bool) {
	v, ok := p.messages.Get(int(id))
	if !ok {
		return nil, false
	}
	return v.(*ipc.Message_t), true
}

// UnregisterMessage drops id from p's message table, once it has been
// replied to.
func (p *Process_t) UnregisterMessage(id defs.Msgid_t) {
	p.messages.Del(int(id))
	limits.Syslimit.Messages.Give()
}
