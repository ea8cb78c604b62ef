package procmgr

import (
	"encoding/binary"

	"defs"
	"ustr"
)

// Request_t is the process-manager message format: a type
// discriminator plus three generic register-sized payload slots
// (irq_number/coid/param, physaddr/len, chid, increment, whichever the
// type needs) and an optional variable-length path tail carrying a
// path_len field followed by the path bytes (Spawn, NameAttach,
// NameOpen). The tagged union is flattened to fixed register-sized
// slots the same way the syscall surface itself already is.
type Request_t struct {
	Type defs.ProcMgrType
	Arg0 uint32
	Arg1 uint32
	Arg2 uint32
	Path ustr.Ustr
}

// Reply_t is the corresponding reply: a status field plus two generic
// result slots, the per-type reply union flattened the same way.
type Reply_t struct {
	Status defs.Err_t
	Val0   uint32
	Val1   uint32
}

const requestHeaderSize = 4 + 4 + 4 + 4 + 4 // Type, Arg0, Arg1, Arg2, PathLen
const replyWireSize = 4 + 4 + 4             // Status, Val0, Val1

// EncodeRequest lays out r's wire form: Type, Arg0..Arg2, PathLen, then
// Path's raw bytes.
func EncodeRequest(r *Request_t) []byte {
	buf := make([]byte, requestHeaderSize+len(r.Path))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Type))
	binary.LittleEndian.PutUint32(buf[4:8], r.Arg0)
	binary.LittleEndian.PutUint32(buf[8:12], r.Arg1)
	binary.LittleEndian.PutUint32(buf[12:16], r.Arg2)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(r.Path)))
	copy(buf[requestHeaderSize:], r.Path)
	return buf
}

// DecodeRequest parses EncodeRequest's wire form back into a Request_t,
// failing with defs.INVALID if buf is too short for its own header or
// its declared path length.
func DecodeRequest(buf []byte) (*Request_t, defs.Err_t) {
	if len(buf) < requestHeaderSize {
		return nil, defs.INVALID
	}
	pathLen := int(binary.LittleEndian.Uint32(buf[16:20]))
	if len(buf) < requestHeaderSize+pathLen {
		return nil, defs.INVALID
	}
	r := &Request_t{
		Type: defs.ProcMgrType(binary.LittleEndian.Uint32(buf[0:4])),
		Arg0: binary.LittleEndian.Uint32(buf[4:8]),
		Arg1: binary.LittleEndian.Uint32(buf[8:12]),
		Arg2: binary.LittleEndian.Uint32(buf[12:16]),
		Path: append(ustr.Ustr{}, buf[requestHeaderSize:requestHeaderSize+pathLen]...),
	}
	return r, defs.OK
}

// EncodeReply lays out r's wire form: Status, Val0, Val1.
func EncodeReply(r *Reply_t) []byte {
	buf := make([]byte, replyWireSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Status))
	binary.LittleEndian.PutUint32(buf[4:8], r.Val0)
	binary.LittleEndian.PutUint32(buf[8:12], r.Val1)
	return buf
}

// DecodeReply parses EncodeReply's wire form.
func DecodeReply(buf []byte) (*Reply_t, defs.Err_t) {
	if len(buf) < replyWireSize {
		return nil, defs.INVALID
	}
	r := &Reply_t{
		Status: defs.Err_t(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		Val0:   binary.LittleEndian.Uint32(buf[4:8]),
		Val1:   binary.LittleEndian.Uint32(buf[8:12]),
	}
	return r, defs.OK
}
