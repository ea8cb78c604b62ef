package main

import (
	"defs"
	"klog"
	"mem"
	"procmgr"
	"ttbl"
	"ustr"
)

// spawnDemo starts the two demonstration processes: a name-registered
// echo server and a client that opens it by name, sends one message
// through the process manager's syscall surface, and logs the reply.
// There is no ELF loader in the core, so each "program" is a Go
// closure handed to procmgr.Spawn directly.
func spawnDemo(pm *procmgr.Process_t) {
	if _, err := procmgr.Spawn(pm, echoServer); err != defs.OK {
		klog.Printf("booting: failed to spawn echo server: %s", err.String())
	}
	if _, err := procmgr.Spawn(pm, echoClient); err != defs.OK {
		klog.Printf("booting: failed to spawn echo client: %s", err.String())
	}
}

const demoBufVirt = 0x2000
const demoBufLen = mem.PGSIZE

// pmCall marshals req, sends it to the process manager over the
// caller's connection 0 (defs.PROCMGR_COID, wired by procmgr.Spawn
// before entry runs), and decodes the reply: the same request/reply
// cycle procmgr.Run itself services, run here from the client side.
func pmCall(p *procmgr.Process_t, req *procmgr.Request_t) (*procmgr.Reply_t, defs.Err_t) {
	tt := p.AS.Translation()
	wire := procmgr.EncodeRequest(req)
	if _, err := ttbl.WriteBytes(tt, demoBufVirt, wire); err != defs.OK {
		return nil, err
	}
	n, err := procmgr.Syscall(p.Thread, defs.SYS_MSGSEND,
		uintptr(defs.PROCMGR_COID), demoBufVirt, uintptr(len(wire)), demoBufVirt, uintptr(demoBufLen))
	if err != defs.OK {
		return nil, err
	}
	raw, rerr := ttbl.ReadBytes(tt, demoBufVirt, n)
	if rerr != defs.OK {
		return nil, rerr
	}
	return procmgr.DecodeReply(raw)
}

func echoServer(p *procmgr.Process_t) {
	if err := p.AS.CreateBacked(demoBufVirt, demoBufLen); err != defs.OK {
		klog.Printf("echo: cannot map its buffer: %s", err.String())
		return
	}

	chid, err := procmgr.Syscall(p.Thread, defs.SYS_CHANNEL_CREATE, 0, 0, 0, 0, 0)
	if err != defs.OK {
		klog.Printf("echo: cannot create channel: %s", err.String())
		return
	}

	reply, err := pmCall(p, &procmgr.Request_t{
		Type: defs.PM_NAME_ATTACH,
		Arg0: uint32(chid),
		Path: ustr.Ustr("echo"),
	})
	if err != defs.OK || reply.Status != defs.OK {
		klog.Printf("echo: cannot register name: %s", err.String())
		return
	}
	klog.Printf("echo: registered as %q on channel %d", "echo", chid)

	ch, _ := p.LookupChannel(defs.Chid_t(chid))
	tt := p.AS.Translation()
	for i := 0; i < 1; i++ {
		m, n, rerr := ch.Receive(p.Thread, tt, demoBufVirt, demoBufLen)
		if rerr != defs.OK {
			klog.Printf("echo: receive failed: %s", rerr.String())
			return
		}
		if m == nil {
			continue
		}
		payload, _ := ttbl.ReadBytes(tt, demoBufVirt, n)
		klog.Printf("echo: received %q, replying", string(payload))
		m.Reply(p.Thread, defs.OK, demoBufVirt, n)
	}
}

func echoClient(p *procmgr.Process_t) {
	if err := p.AS.CreateBacked(demoBufVirt, demoBufLen); err != defs.OK {
		klog.Printf("syscall-client: cannot map its buffer: %s", err.String())
		return
	}

	reply, err := pmCall(p, &procmgr.Request_t{
		Type: defs.PM_NAME_OPEN,
		Path: ustr.Ustr("echo"),
	})
	if err != defs.OK || reply.Status != defs.OK {
		klog.Printf("syscall-client: cannot open %q yet: %s", "echo", err.String())
		return
	}
	coid := reply.Val0

	tt := p.AS.Translation()
	msg := []byte("hello from syscall-client")
	if _, werr := ttbl.WriteBytes(tt, demoBufVirt, msg); werr != defs.OK {
		klog.Printf("syscall-client: cannot stage message: %s", werr.String())
		return
	}

	n, serr := procmgr.Syscall(p.Thread, defs.SYS_MSGSEND,
		uintptr(coid), demoBufVirt, uintptr(len(msg)), demoBufVirt, uintptr(demoBufLen))
	if serr != defs.OK {
		klog.Printf("syscall-client: send failed: %s", serr.String())
		return
	}
	echoed, _ := ttbl.ReadBytes(tt, demoBufVirt, n)
	klog.Printf("syscall-client: echo replied %q", string(echoed))
}
