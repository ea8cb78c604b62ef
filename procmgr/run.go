package procmgr

import (
	"defs"
	"ipc"
	"mem"
	"sched"
	"ttbl"
)

var procmgrProcess *Process_t

// reqBufVirt is the process manager's own staging buffer for decoding
// requests and encoding replies, one page in its mappings arena. The
// message format is carried as raw bytes through ipc's
// cross-address-space copy, so procmgr needs somewhere in its own
// address space to receive into and reply from.
const reqBufVirt = 0x1000
const maxReqSize = 256

// Bootstrap creates the process manager itself: process id
// defs.PROCMGR_PID, channel id defs.PROCMGR_CHID, and its Run loop
// thread. Called exactly once at kernel init, before any call to
// Spawn.
func Bootstrap() *Process_t {
	pm, err := newProcess(defs.SELF_PID)
	if err != defs.OK {
		panic("procmgr: cannot create process manager: " + err.String())
	}
	if pm.Pid != defs.PROCMGR_PID {
		panic("procmgr: Bootstrap must run before any other process is created")
	}
	procmgrProcess = pm

	ch := ipc.MkChannel()
	chid, _ := pm.RegisterChannel(ch)
	if chid != defs.PROCMGR_CHID {
		panic("procmgr: process manager's channel did not land at PROCMGR_CHID")
	}

	if err := pm.AS.CreateBacked(reqBufVirt, mem.PGSIZE); err != defs.OK {
		panic("procmgr: cannot map its own request buffer: " + err.String())
	}

	tid := allocTid()
	pm.Thread = sched.MkThread(tid, pm.Pid, pm.AS.Translation(), sched.IO, func() {
		Run(pm)
	})
	sched.BeginTransaction()
	sched.MakeReady(pm.Thread)
	sched.EndTransaction()
	return pm
}

// Run is the process manager's body: an infinite receive loop on
// channel 0, dispatching each request against dispatchTable and
// replying.
func Run(pm *Process_t) {
	ch, ok := pm.LookupChannel(defs.PROCMGR_CHID)
	if !ok {
		panic("procmgr: Run called before Bootstrap")
	}
	for {
		m, n, err := ch.Receive(pm.Thread, pm.AS.Translation(), reqBufVirt, maxReqSize)
		if err != defs.OK || m == nil {
			continue
		}

		raw, rerr := ttbl.ReadBytes(pm.AS.Translation(), reqBufVirt, n)
		if rerr != defs.OK {
			continue
		}
		req, derr := DecodeRequest(raw)
		var reply *Reply_t
		if derr != defs.OK {
			reply = &Reply_t{Status: defs.INVALID}
		} else if sender, ok := ProcessLookup(m.SenderPid()); ok {
			reply = dispatchOne(sender, req)
		} else {
			reply = &Reply_t{Status: defs.EXITING}
		}
		if reply == nil {
			continue
		}

		wire := EncodeReply(reply)
		if _, werr := ttbl.WriteBytes(pm.AS.Translation(), reqBufVirt, wire); werr != defs.OK {
			continue
		}
		m.Reply(pm.Thread, defs.OK, reqBufVirt, len(wire))
	}
}

func dispatchOne(sender *Process_t, req *Request_t) *Reply_t {
	h, ok := dispatchTable[req.Type]
	if !ok {
		return &Reply_t{Status: defs.NO_SYS}
	}
	return h(sender, req)
}

// Spawn creates a child process of parent and starts entry running on
// it. With no ELF loader in the core, entry is a Go closure given the
// new Process_t directly, the boot/test equivalent of loading and
// jumping to a program's entry point. The child's initial connection
// (id 0) is wired to the process manager's channel before entry runs.
// However entry returns, the process is torn down exactly as if it had
// sent the process manager a PM_EXIT request.
func Spawn(parent *Process_t, entry func(child *Process_t)) (*Process_t, defs.Err_t) {
	child, err := newProcess(parent.Pid)
	if err != defs.OK {
		return nil, err
	}

	pmCh, ok := procmgrProcess.LookupChannel(defs.PROCMGR_CHID)
	if !ok {
		return nil, defs.EXITING
	}

	tid := allocTid()
	child.Thread = sched.MkThread(tid, child.Pid, child.AS.Translation(), sched.NORMAL, func() {
		conn := ipc.MkConnection(pmCh)
		if coid, cerr := child.RegisterConnection(conn); cerr != defs.OK || coid != defs.PROCMGR_COID {
			reap(child)
			return
		}
		entry(child)
		reap(child)
	})
	child.Notes.Add(tid)

	sched.BeginTransaction()
	sched.MakeReady(child.Thread)
	sched.EndTransaction()
	return child, defs.OK
}

// Syscall is the single dispatch entry point a software-interrupt trap
// handler would call. caller must be the currently running thread of
// the process issuing the syscall. need_resched is checked and, if
// set, consumed at syscall exit under the scheduler lock: the current
// thread is re-queued and the next thread selected. The timer tick
// (cmd/kernel) and an async send to a waiting receiver
// (ipc.Connection_t.SendAsync) are the two sources that set it.
func Syscall(caller *sched.Thread_t, num int, a0, a1, a2, a3, a4 uintptr) (int, defs.Err_t) {
	result, err := dispatchSyscall(caller, num, a0, a1, a2, a3, a4)

	sched.BeginTransaction()
	if sched.ResetNeedResched() {
		sched.MakeReady(caller)
		sched.RunNextThread()
	}
	sched.EndTransaction()

	return result, err
}

func dispatchSyscall(caller *sched.Thread_t, num int, a0, a1, a2, a3, a4 uintptr) (int, defs.Err_t) {
	proc, ok := ProcessLookup(caller.Pid)
	if !ok {
		return 0, defs.EXITING
	}
	tt := proc.AS.Translation()

	switch num {
	case defs.SYS_CHANNEL_CREATE:
		ch := ipc.MkChannel()
		id, err := proc.RegisterChannel(ch)
		return int(id), err

	case defs.SYS_CHANNEL_DESTROY:
		ch, ok := proc.LookupChannel(defs.Chid_t(a0))
		if !ok {
			return 0, defs.INVALID
		}
		ch.Close()
		proc.UnregisterChannel(defs.Chid_t(a0))
		return 0, defs.OK

	case defs.SYS_CONNECT:
		target, ok := ProcessLookup(defs.Pid_t(a0))
		if !ok {
			return 0, defs.INVALID
		}
		ch, ok := target.LookupChannel(defs.Chid_t(a1))
		if !ok {
			return 0, defs.INVALID
		}
		conn := ipc.MkConnection(ch)
		id, err := proc.RegisterConnection(conn)
		return int(id), err

	case defs.SYS_DISCONNECT:
		proc.UnregisterConnection(defs.Coid_t(a0))
		return 0, defs.OK

	case defs.SYS_MSGSEND:
		conn, ok := proc.LookupConnection(defs.Coid_t(a0))
		if !ok {
			return 0, defs.INVALID
		}
		return conn.Send(caller, tt, a1, int(a2), a3, int(a4))

	case defs.SYS_MSGRECV:
		ch, ok := proc.LookupChannel(defs.Chid_t(a0))
		if !ok {
			return 0, defs.INVALID
		}
		m, n, err := ch.Receive(caller, tt, a2, int(a3))
		if err != defs.OK {
			return 0, err
		}
		if m == nil {
			// a pulse, not a synchronous message: no msgid to hand back.
			return n, defs.OK
		}
		id, merr := proc.RegisterMessage(m)
		if merr != defs.OK {
			return 0, merr
		}
		var idbuf [4]byte
		idbuf[0] = byte(id)
		idbuf[1] = byte(id >> 8)
		idbuf[2] = byte(id >> 16)
		idbuf[3] = byte(id >> 24)
		if _, werr := ttbl.WriteBytes(tt, a1, idbuf[:]); werr != defs.OK {
			return 0, defs.FAULT
		}
		return n, defs.OK

	case defs.SYS_MSGREPLY:
		m, ok := proc.LookupMessage(defs.Msgid_t(a0))
		if !ok {
			return 0, defs.INVALID
		}
		n, err := m.Reply(caller, defs.Err_t(int32(a1)), a2, int(a3))
		proc.UnregisterMessage(defs.Msgid_t(a0))
		return n, err

	case defs.SYS_MSGGETLEN:
		m, ok := proc.LookupMessage(defs.Msgid_t(a0))
		if !ok {
			return 0, defs.INVALID
		}
		return m.Len(), defs.OK

	case defs.SYS_MSGREAD:
		m, ok := proc.LookupMessage(defs.Msgid_t(a0))
		if !ok {
			return 0, defs.INVALID
		}
		return m.Read(tt, a1, int(a2))

	default:
		return 0, defs.NO_SYS
	}
}
