// Package ipc implements synchronous Send/Receive/Reply and
// asynchronous pulses over channels and connections, with
// cross-address-space payload transfer and priority inheritance.
// Each channel carries one sys.Spinlock_t held only across queue
// manipulation; ttbl.Copy is the payload transfer primitive.
package ipc

import (
	"encoding/binary"

	"defs"
	"sched"
	"ttbl"
)

type kind_t int

const (
	syncKind kind_t = iota
	asyncKind
)

// Message_t is one in-flight message, queued on whichever of a
// channel's two blocked lists its counterpart has not yet reached.
// Sync messages carry both buffer descriptors and a reply result;
// async pulses carry only the inline type+value payload and are freed
// at delivery.
type Message_t struct {
	kind kind_t
	conn weak_t[Connection_t]

	sender    *sched.Thread_t // nil for async pulses
	senderPid defs.Pid_t
	senderTT  *ttbl.TranslationTable_t
	msgPtr    uintptr
	msgLen    int
	replyPtr  uintptr
	replyLen  int

	pulseType  int8
	pulseValue uintptr

	receiver   *sched.Thread_t
	receiverTT *ttbl.TranslationTable_t
	rbufPtr    uintptr
	rbufLen    int

	// filled in by whichever of Send/Receive runs second, and read
	// back by the side that blocked first once it resumes.
	deliveredLen int
	deliverErr   defs.Err_t

	result int
	status defs.Err_t

	next *Message_t // intrusive link in a channel's blocked list
}

// Len reports the sender's full message length, even if the receiver's
// own buffer was shorter; this backs the MSGGETLEN syscall.
func (m *Message_t) Len() int { return m.msgLen }

// SenderPid reports the pid of the process that sent m, so a receiver
// (procmgr, chiefly) can resolve the sender's own Process_t without
// carrying a back-reference into ipc.
func (m *Message_t) SenderPid() defs.Pid_t { return m.senderPid }

// Read re-copies the sender's payload into a (possibly different)
// destination, backing the MSGREAD syscall: useful when a receiver's
// first MSGRECV buffer was deliberately shorter than the sender's
// message.
func (m *Message_t) Read(tt *ttbl.TranslationTable_t, buf uintptr, buflen int) (int, defs.Err_t) {
	if m.kind != syncKind {
		return 0, defs.INVALID
	}
	return ttbl.Copy(m.senderTT, m.msgPtr, m.msgLen, tt, buf, buflen)
}

const pulseWireSize = 8 // 1 type + 3 pad + 4 pointer-sized value (ARMv6 is 32-bit)

// encodePulse lays out the pulse wire format: one signed 8-bit type
// field, three bytes of padding, one pointer-sized value.
func encodePulse(typ int8, value uintptr) [pulseWireSize]byte {
	var w [pulseWireSize]byte
	w[0] = byte(typ)
	binary.LittleEndian.PutUint32(w[4:8], uint32(value))
	return w
}

// deliverPulse writes a pulse's wire encoding into the receiver's
// buffer, truncating to buflen, and returns the byte count written.
func deliverPulse(typ int8, value uintptr, tt *ttbl.TranslationTable_t, buf uintptr, buflen int) (int, defs.Err_t) {
	wire := encodePulse(typ, value)
	n := len(wire)
	if buflen < n {
		n = buflen
	}
	return ttbl.WriteBytes(tt, buf, wire[:n])
}
