// Package dbt is the architecture-agnostic translation engine: it turns guest
// code into cached blocks of bound instruction semantics and runs them.
package dbt

import (
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// Flow classifies how an instruction leaves the straight-line path.
type Flow int

const (
	FlowNone Flow = iota
	FlowJump
	FlowCondJump
	FlowCall
	FlowRet
	FlowIndirect
	FlowTrap
	FlowHalt
)

// Ends reports whether an instruction with this flow terminates a block.
func (f Flow) Ends() bool {
	return f != FlowNone
}

func (f Flow) String() string {
	switch f {
	case FlowNone:
		return "none"
	case FlowJump:
		return "jump"
	case FlowCondJump:
		return "cond"
	case FlowCall:
		return "call"
	case FlowRet:
		return "ret"
	case FlowIndirect:
		return "indirect"
	case FlowTrap:
		return "trap"
	case FlowHalt:
		return "halt"
	}
	return "unknown"
}

// Insn is a decoded instruction. Implementations are immutable.
// It satisfies models.Ins.
type Insn interface {
	Addr() uint64
	Bytes() []byte
	Mnemonic() string
	OpStr() string
	Len() int
	Flow() Flow
	// Target is the static destination of direct jumps and calls.
	Target() (uint64, bool)
	Operands() []Operand
	// flag masks in the back-end's own flag bit layout
	FlagsRead() uint64
	FlagsWritten() uint64
}

// Exec runs one bound instruction against the state it was bound to.
type Exec func() Outcome

// Core is one architecture back-end instantiated for one guest context:
// a decoder, a semantics table bound to that context's state, and the
// register file it mutates.
type Core interface {
	Decode(code []byte, addr uint64) (Insn, error)
	MaxInsnLen() int
	// Bind looks up the semantics for ins. Unknown opcodes are an InternalError.
	Bind(ins Insn) (Exec, error)

	Regs() *cpu.Regs
	PC() uint64
	SetPC(pc uint64)
}

// Decoder is the execution-free part of a Core, used by disassemblers.
type Decoder interface {
	Decode(code []byte, addr uint64) (Insn, error)
	MaxInsnLen() int
}

// Disas decodes code linearly, stopping at the first decode error.
// Undecodable trailing bytes are returned as the error.
func Disas(d Decoder, code []byte, addr uint64) ([]Insn, error) {
	var out []Insn
	for len(code) > 0 {
		ins, err := d.Decode(code, addr)
		if err != nil {
			return out, err
		}
		out = append(out, ins)
		n := ins.Len()
		code = code[n:]
		addr += uint64(n)
	}
	return out, nil
}
