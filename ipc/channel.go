package ipc

import (
	"defs"
	"sched"
	"sys"
	"ttbl"
)

// Channel_t is the server-side rendezvous point: two intrusive queues
// of blocked Message_t, one per direction, plus the set of connections
// that currently reference it (needed only to notify them when the
// channel closes).
type Channel_t struct {
	lock sys.Spinlock_t

	sendHead, sendTail *Message_t
	recvHead, recvTail *Message_t

	connections []*Connection_t
	closed      bool
}

// MkChannel creates a fresh, empty channel.
func MkChannel() *Channel_t {
	return &Channel_t{}
}

func pushList(head, tail **Message_t, m *Message_t) {
	m.next = nil
	if *tail == nil {
		*head, *tail = m, m
		return
	}
	(*tail).next = m
	*tail = m
}

func popList(head, tail **Message_t) *Message_t {
	m := *head
	if m == nil {
		return nil
	}
	*head = m.next
	if *head == nil {
		*tail = nil
	}
	m.next = nil
	return m
}

func (c *Channel_t) pushSend(m *Message_t) { pushList(&c.sendHead, &c.sendTail, m) }
func (c *Channel_t) popSend() *Message_t   { return popList(&c.sendHead, &c.sendTail) }
func (c *Channel_t) pushRecv(m *Message_t) { pushList(&c.recvHead, &c.recvTail, m) }
func (c *Channel_t) popRecv() *Message_t   { return popList(&c.recvHead, &c.recvTail) }

func (c *Channel_t) addConnection(conn *Connection_t) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.connections = append(c.connections, conn)
}

// Close marks the channel closed, disconnects every connection (so a
// subsequent Send observes defs.INVALID) and wakes every currently
// send-blocked sender with defs.INVALID.
func (c *Channel_t) Close() {
	c.lock.Lock()
	c.closed = true
	var woken []*sched.Thread_t
	for m := c.sendHead; m != nil; m = m.next {
		m.status = defs.INVALID
		if m.sender != nil {
			woken = append(woken, m.sender)
		}
	}
	c.sendHead, c.sendTail = nil, nil
	conns := c.connections
	c.connections = nil
	c.lock.Unlock()

	for _, conn := range conns {
		conn.channel.clear()
	}
	if len(woken) == 0 {
		return
	}
	// Scheduler lock acquired only after the channel lock has been
	// released; the lock order is fixed, subsystem lock before
	// scheduler lock, never the reverse.
	sched.BeginTransaction()
	for _, t := range woken {
		sched.MakeReady(t)
	}
	sched.EndTransaction()
}

// Receive blocks for, or immediately takes, the next message. If no
// message is already send-blocked, the caller blocks in state RECEIVE
// until a Send arrives to populate this same Message_t. Otherwise the
// head of the send-blocked list is popped and its payload transferred
// immediately: a sync sender remains Reply-blocked until this
// receiver's thread replies, while an async pulse is consumed and
// freed on the spot.
func (c *Channel_t) Receive(receiver *sched.Thread_t, tt *ttbl.TranslationTable_t, buf uintptr, buflen int) (*Message_t, int, defs.Err_t) {
	for {
		c.lock.Lock()
		if c.sendHead == nil {
			m := &Message_t{kind: syncKind, receiver: receiver, receiverTT: tt, rbufPtr: buf, rbufLen: buflen}
			c.pushRecv(m)
			c.lock.Unlock()

			sched.BeginTransaction()
			sched.MakeUnready(receiver, sched.RECEIVE)
			sched.RunNextThread()
			sched.EndTransaction()

			if m.deliverErr != defs.OK {
				return nil, 0, m.deliverErr
			}
			return m, m.deliveredLen, defs.OK
		}

		m := c.popSend()
		c.lock.Unlock()

		// A sender that has since exited leaves its pending send
		// discarded rather than delivered: its thread was forced
		// Finished by procmgr's Exit reap before any receiver could
		// see it.
		if m.kind == syncKind && m.sender.State() == sched.FINISHED {
			continue
		}

		if m.kind == asyncKind {
			n, err := deliverPulse(m.pulseType, m.pulseValue, tt, buf, buflen)
			return nil, n, err
		}

		n, err := ttbl.Copy(m.senderTT, m.msgPtr, m.msgLen, tt, buf, buflen)
		if err != defs.OK {
			// The sender's payload could not be transferred; wake it
			// with the fault rather than leaving it send-blocked on a
			// message no receiver holds.
			m.result, m.status = 0, defs.FAULT
			sched.BeginTransaction()
			sched.MakeReady(m.sender)
			sched.EndTransaction()
			return nil, 0, defs.FAULT
		}
		m.receiver = receiver
		m.receiverTT = tt
		m.rbufPtr, m.rbufLen = buf, buflen

		// The sender gifts its effective priority for the duration of
		// the send->reply window regardless of which side arrived
		// first; Send's pop path does the same for the reverse
		// ordering.
		sched.BeginTransaction()
		if int(m.sender.EffectivePriority()) > int(receiver.EffectivePriority()) {
			sched.SetEffectivePriority(receiver, m.sender.EffectivePriority())
		}
		sched.MakeUnready(m.sender, sched.REPLY)
		sched.EndTransaction()

		return m, n, defs.OK
	}
}
