package trace

import (
	"encoding/json"
)

// JSON forms of the ops, one object per op with its tag in "op".
// Byte payloads use encoding/json's base64.

type msp map[string]interface{}

func (o *OpNop) MarshalJSON() ([]byte, error)  { return json.Marshal(msp{"op": OP_NOP}) }
func (o *OpExit) MarshalJSON() ([]byte, error) { return json.Marshal(msp{"op": OP_EXIT}) }

func (o *OpJmp) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_JMP, "addr": o.Addr, "size": o.Size})
}

func (o *OpStep) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_STEP, "size": o.Size})
}

func (o *OpReg) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_REG, "num": o.Num, "val": o.Val})
}

func (o *OpSpReg) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_SPREG, "num": o.Num, "val": o.Val})
}

func (o *OpMemRead) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_MEM_READ, "addr": o.Addr, "size": o.Size})
}

func (o *OpMemWrite) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_MEM_WRITE, "addr": o.Addr, "data": o.Data})
}

func (o *OpMemMap) MarshalJSON() ([]byte, error) {
	m := msp{"op": OP_MEM_MAP, "addr": o.Addr, "size": o.Size, "prot": o.Prot}
	if o.Desc != "" {
		m["desc"] = o.Desc
	}
	if o.File != "" {
		m["file"], m["off"], m["len"] = o.File, o.Off, o.Len
	}
	return json.Marshal(m)
}

func (o *OpMemUnmap) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_MEM_UNMAP, "addr": o.Addr, "size": o.Size})
}

func (o *OpMemProt) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_MEM_PROT, "addr": o.Addr, "size": o.Size, "prot": o.Prot})
}

func (o *OpSyscall) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_SYSCALL, "num": o.Num, "args": o.Args, "ret": o.Ret, "desc": o.Desc, "ops": o.Ops})
}

func (o *OpKeyframe) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_KEYFRAME, "pid": o.Pid, "ops": o.Ops})
}

func (o *OpFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(msp{"op": OP_FRAME, "pid": o.Pid, "ops": o.Ops})
}
