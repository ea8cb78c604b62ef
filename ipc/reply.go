package ipc

import (
	"defs"
	"sched"
	"ttbl"
)

// Reply completes a synchronous exchange. It must be called by the
// same thread that received m. On success the reply payload is copied
// receiver->sender through the cross-address-space copy and the byte
// count becomes the sender's Send result; on any other status that
// status is recorded instead. The sender is made ready, any priority
// inheritance granted at send time is released, and the replying
// thread itself is made ready before the next thread runs.
func (m *Message_t) Reply(replier *sched.Thread_t, status defs.Err_t, buf uintptr, buflen int) (int, defs.Err_t) {
	if m.kind != syncKind || m.receiver != replier {
		return 0, defs.INVALID
	}
	// The sender exited while this message sat Reply-blocked; the
	// reply has nowhere to land.
	if m.sender.State() == sched.FINISHED {
		return 0, defs.INVALID
	}

	if status == defs.OK {
		n, err := ttbl.Copy(m.receiverTT, buf, buflen, m.senderTT, m.replyPtr, m.replyLen)
		if err != defs.OK {
			m.result, m.status = 0, defs.FAULT
		} else {
			m.result, m.status = n, defs.OK
		}
	} else {
		m.result, m.status = 0, status
	}

	sched.BeginTransaction()
	sched.MakeReady(m.sender)
	sched.RevertPriority(replier)
	sched.MakeReady(replier)
	sched.RunNextThread()
	sched.EndTransaction()

	return m.result, m.status
}
