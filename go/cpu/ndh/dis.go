package ndh

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models"
)

type argKind uint8

const (
	argReg argKind = iota
	argIndirect
	argU8
	argU16
)

type arg struct {
	kind argKind
	val  uint16
}

func (a arg) String() string {
	switch a.kind {
	case argU8, argU16:
		return fmt.Sprintf("%#x", a.val)
	case argIndirect:
		return "[" + regName(int(a.val)) + "]"
	}
	return regName(int(a.val))
}

func regName(n int) string {
	if name, ok := regNames[n]; ok {
		return name
	}
	return fmt.Sprintf("r%d", n)
}

// Insn is one decoded NDH instruction.
type Insn struct {
	addr  uint64
	op    byte
	flag  byte
	name  string
	args  []arg
	bytes []byte
}

func (i *Insn) String() string {
	if len(i.args) == 0 {
		return i.name
	}
	return i.name + " " + i.OpStr()
}

func (i *Insn) Addr() uint64     { return i.addr }
func (i *Insn) Bytes() []byte    { return i.bytes }
func (i *Insn) Len() int         { return len(i.bytes) }
func (i *Insn) Mnemonic() string { return i.name }

func (i *Insn) OpStr() string {
	args := make([]string, len(i.args))
	for n, a := range i.args {
		args[n] = a.String()
	}
	return strings.Join(args, ", ")
}

func (i *Insn) next() uint64 {
	return i.addr + uint64(len(i.bytes))
}

// relative branches land at the end of the instruction plus the operand, modulo 64k
func (i *Insn) rel(off uint64) uint64 {
	return (i.next() + off) & 0xffff
}

func (i *Insn) Flow() dbt.Flow {
	switch i.op {
	case OP_JMPL, OP_JMPS:
		return dbt.FlowJump
	case OP_JZ, OP_JNZ, OP_JA, OP_JB:
		return dbt.FlowCondJump
	case OP_CALL:
		return dbt.FlowCall
	case OP_RET:
		return dbt.FlowRet
	case OP_SYSCALL:
		return dbt.FlowTrap
	case OP_END:
		return dbt.FlowHalt
	}
	return dbt.FlowNone
}

func (i *Insn) Target() (uint64, bool) {
	switch i.Flow() {
	case dbt.FlowJump, dbt.FlowCondJump, dbt.FlowCall:
		a := i.args[0]
		if a.kind == argU8 || a.kind == argU16 {
			return i.rel(uint64(a.val)), true
		}
	}
	return 0, false
}

// flag bits reported by FlagsRead and FlagsWritten
const (
	FlagZ = 1 << iota
	FlagA
	FlagB
)

func (i *Insn) FlagsRead() uint64 {
	switch i.op {
	case OP_JZ, OP_JNZ:
		return FlagZ
	case OP_JA:
		return FlagA
	case OP_JB:
		return FlagB
	}
	return 0
}

func (i *Insn) FlagsWritten() uint64 {
	switch i.op {
	case OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_AND, OP_OR, OP_XOR, OP_NOT, OP_TEST:
		return FlagZ
	case OP_CMP:
		return FlagZ | FlagA | FlagB
	}
	return 0
}

func (i *Insn) Operands() []dbt.Operand {
	out := make([]dbt.Operand, len(i.args))
	for n, a := range i.args {
		switch a.kind {
		case argReg:
			out[n] = dbt.Operand{Kind: dbt.OperandReg, Size: 2, Reg: regName(int(a.val))}
		case argIndirect:
			out[n] = dbt.Operand{Kind: dbt.OperandMem, Size: 1, Mem: dbt.MemRef{Base: regName(int(a.val))}}
		default:
			op := dbt.Operand{Kind: dbt.OperandImm, Size: argSize(a.kind), Imm: int64(a.val)}
			if target, ok := i.Target(); ok {
				op.Kind, op.Imm = dbt.OperandRel, int64(target)
			}
			out[n] = op
		}
	}
	return out
}

// operand layout for each addressing mode byte
var flagArgs = map[byte][]argKind{
	OP_FLAG_REG_REG:                 {argReg, argReg},
	OP_FLAG_REG_DIRECT08:            {argReg, argU8},
	OP_FLAG_REG_DIRECT16:            {argReg, argU16},
	OP_FLAG_REG:                     {argReg},
	OP_FLAG_DIRECT16:                {argU16},
	OP_FLAG_DIRECT08:                {argU8},
	OP_FLAG_REGINDIRECT_REG:         {argIndirect, argReg},
	OP_FLAG_REGINDIRECT_DIRECT08:    {argIndirect, argU8},
	OP_FLAG_REGINDIRECT_DIRECT16:    {argIndirect, argU16},
	OP_FLAG_REGINDIRECT_REGINDIRECT: {argIndirect, argIndirect},
	OP_FLAG_REG_REGINDIRECT:         {argReg, argIndirect},
}

func argSize(k argKind) int {
	if k == argU16 {
		return 2
	}
	return 1
}

// Dis decodes NDH machine code. The zero value is ready to use.
type Dis struct{}

func (d *Dis) MaxInsnLen() int { return MaxInsnLen }

// Decode decodes exactly one instruction from the front of code.
// Truncated input yields a NeedMoreBytes error, never a partial instruction.
func (d *Dis) Decode(code []byte, addr uint64) (dbt.Insn, error) {
	if len(code) == 0 {
		return nil, dbt.NeedMore(addr, 1)
	}
	opb := code[0]
	data, ok := opcodes[opb]
	if !ok {
		return nil, dbt.Invalid(addr, 0, "unknown opcode %#02x", opb)
	}
	ins := &Insn{addr: addr, op: opb, name: data.name}
	kinds, off := data.fixed, 1
	if data.flagged {
		if len(code) < 2 {
			return nil, dbt.NeedMore(addr, 2-len(code))
		}
		ins.flag = code[1]
		kinds, ok = flagArgs[ins.flag]
		if !ok || len(kinds) != data.arity {
			return nil, dbt.Invalid(addr, 1, "bad addressing mode %#02x for %s", ins.flag, data.name)
		}
		off = 2
	}
	need := off
	for _, k := range kinds {
		need += argSize(k)
	}
	if len(code) < need {
		return nil, dbt.NeedMore(addr, need-len(code))
	}
	ins.args = make([]arg, len(kinds))
	for n, k := range kinds {
		switch k {
		case argU16:
			ins.args[n] = arg{k, binary.LittleEndian.Uint16(code[off:])}
		case argReg, argIndirect:
			if code[off] > maxOperandReg {
				return nil, dbt.Invalid(addr, off, "bad register %#02x", code[off])
			}
			ins.args[n] = arg{k, uint16(code[off])}
		default:
			ins.args[n] = arg{k, uint16(code[off])}
		}
		off += argSize(k)
	}
	ins.bytes = append([]byte(nil), code[:off]...)
	return ins, nil
}

// Dis disassembles linearly, stopping quietly at the first byte that doesn't decode.
func (d *Dis) Dis(mem []byte, addr uint64) ([]models.Ins, error) {
	insns, _ := dbt.Disas(d, mem, addr)
	out := make([]models.Ins, len(insns))
	for i, ins := range insns {
		out[i] = ins
	}
	return out, nil
}
