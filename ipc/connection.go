package ipc

import (
	"defs"
	"sched"
	"ttbl"
)

// Connection_t is the client-side handle Send targets. Its reference
// to the channel is weak: once the channel closes, every subsequent
// Send observes defs.INVALID rather than dereferencing a dead pointer.
type Connection_t struct {
	channel weak_t[Channel_t]
}

// MkConnection opens a connection to ch, registering it so Close can
// find and disconnect it later.
func MkConnection(ch *Channel_t) *Connection_t {
	conn := &Connection_t{channel: mkWeak(ch)}
	ch.addConnection(conn)
	return conn
}

// Send performs a synchronous send. If the channel has no
// receive-blocked message, a new Message_t is enqueued on the
// channel's send-blocked list and the caller blocks in state SEND.
// Otherwise the head of the receive-blocked list is popped, its
// payload transferred immediately, its thread gifted this sender's
// effective priority and made ready, and the caller blocks in state
// REPLY until that receiver calls Reply.
func (conn *Connection_t) Send(sender *sched.Thread_t, senderTT *ttbl.TranslationTable_t, msgPtr uintptr, msgLen int, replyPtr uintptr, replyLen int) (int, defs.Err_t) {
	ch, ok := conn.channel.upgrade()
	if !ok {
		return 0, defs.INVALID
	}

	ch.lock.Lock()
	if ch.closed {
		ch.lock.Unlock()
		return 0, defs.INVALID
	}

	if ch.recvHead == nil {
		m := &Message_t{
			kind: syncKind, conn: mkWeak(conn),
			sender: sender, senderPid: sender.Pid, senderTT: senderTT,
			msgPtr: msgPtr, msgLen: msgLen, replyPtr: replyPtr, replyLen: replyLen,
		}
		ch.pushSend(m)
		ch.lock.Unlock()

		sched.BeginTransaction()
		sched.MakeUnready(sender, sched.SEND)
		sched.RunNextThread()
		sched.EndTransaction()

		return m.result, m.status
	}

	m := ch.popRecv()
	ch.lock.Unlock()

	m.sender = sender
	m.senderPid = sender.Pid
	m.senderTT = senderTT
	m.msgPtr, m.msgLen = msgPtr, msgLen
	m.replyPtr, m.replyLen = replyPtr, replyLen
	m.conn = mkWeak(conn)

	n, cerr := ttbl.Copy(senderTT, msgPtr, msgLen, m.receiverTT, m.rbufPtr, m.rbufLen)
	m.deliveredLen = n
	m.deliverErr = cerr

	if cerr != defs.OK {
		// The hand-off never happened: the receiver resumes with the
		// copy error and gets no message handle, so nobody would ever
		// reply. The sender must not block.
		sched.BeginTransaction()
		sched.MakeReady(m.receiver)
		sched.EndTransaction()
		return 0, defs.FAULT
	}

	sched.BeginTransaction()
	if int(sender.EffectivePriority()) > int(m.receiver.EffectivePriority()) {
		sched.SetEffectivePriority(m.receiver, sender.EffectivePriority())
	}
	sched.MakeReady(m.receiver)
	sched.MakeUnready(sender, sched.REPLY)
	sched.RunNextThread()
	sched.EndTransaction()

	return m.result, m.status
}

// SendAsync performs an asynchronous pulse send. A waiting receiver is
// handed the pulse immediately and a reschedule is posted; otherwise
// the pulse is queued inline, with no sender thread and no reply
// expected.
func (conn *Connection_t) SendAsync(pulseType int8, value uintptr) defs.Err_t {
	ch, ok := conn.channel.upgrade()
	if !ok {
		return defs.INVALID
	}

	ch.lock.Lock()
	if ch.closed {
		ch.lock.Unlock()
		return defs.INVALID
	}

	if ch.recvHead == nil {
		m := &Message_t{kind: asyncKind, conn: mkWeak(conn), pulseType: pulseType, pulseValue: value}
		ch.pushSend(m)
		ch.lock.Unlock()
		return defs.OK
	}

	recv := ch.popRecv()
	ch.lock.Unlock()

	n, err := deliverPulse(pulseType, value, recv.receiverTT, recv.rbufPtr, recv.rbufLen)
	recv.deliveredLen = n
	recv.deliverErr = err

	sched.BeginTransaction()
	sched.MakeReady(recv.receiver)
	sched.SetNeedResched()
	sched.EndTransaction()

	return defs.OK
}
