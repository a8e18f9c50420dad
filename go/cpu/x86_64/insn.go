package x86_64

import (
	"fmt"
	"strings"

	"github.com/lunixbochs/transcorn/go/dbt"
)

// Reg is a general purpose register number as encoded, or one of the
// pseudo registers below.
type Reg uint8

const (
	RegRIP  Reg = 16
	RegFS   Reg = 0xfd
	RegGS   Reg = 0xfe
	RegNone Reg = 0xff
)

var (
	reg64 = [16]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
	reg32 = [16]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi", "r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
	reg16 = [16]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di", "r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
	reg8  = [16]string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil", "r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}
	reg8h = [4]string{"ah", "ch", "dh", "bh"}
)

func xmmName(r Reg) string { return fmt.Sprintf("xmm%d", r) }

func regName(r Reg, size int, high bool) string {
	switch {
	case r == RegRIP:
		if size == 4 {
			return "eip"
		}
		return "rip"
	case high:
		return reg8h[r&3]
	case r >= 16:
		return "?"
	}
	switch size {
	case 1:
		return reg8[r]
	case 2:
		return reg16[r]
	case 4:
		return reg32[r]
	}
	return reg64[r]
}

type Kind uint8

const (
	KindReg Kind = iota
	KindImm
	KindMem
	KindRel
	KindXmm
)

type Mem struct {
	// RegFS, RegGS or RegNone
	Seg   Reg
	Base  Reg
	Index Reg
	Scale uint8
	Disp  int64
}

type Operand struct {
	Kind Kind
	// width in bytes; zero for an address-only memory operand (lea)
	Size int
	Reg  Reg
	// ah, ch, dh, bh
	High bool
	// immediate, sign-extended to Size, or the branch displacement
	Imm int64
	Mem Mem
}

// Insn is one decoded instruction. Fields are read-only after decoding.
type Insn struct {
	addr uint64
	raw  []byte

	Op   Op
	Cond uint8
	Args []Operand
	// operand size in bytes
	Size int
	// address size in bytes, 8 unless overridden with 0x67
	AddrSize int
	// 0xf3 or 0xf2 on string instructions
	Rep  byte
	Lock bool
}

func (i *Insn) Addr() uint64  { return i.addr }
func (i *Insn) Bytes() []byte { return i.raw }
func (i *Insn) Len() int      { return len(i.raw) }
func (i *Insn) next() uint64  { return i.addr + uint64(len(i.raw)) }

func sizeSuffix(size int) string {
	switch size {
	case 1:
		return "b"
	case 2:
		return "w"
	case 4:
		return "d"
	}
	return "q"
}

func (i *Insn) baseName() string {
	switch i.Op {
	case JCC, SETCC, CMOVCC:
		return i.Op.String() + condNames[i.Cond&15]
	case CBW:
		return [...]string{2: "cbw", 4: "cwde", 8: "cdqe"}[i.Size]
	case CWD:
		return [...]string{2: "cwd", 4: "cdq", 8: "cqo"}[i.Size]
	case MOVS, CMPS, STOS, LODS, SCAS, INS, OUTS:
		return i.Op.String() + sizeSuffix(i.Size)
	case PUSHF, POPF:
		if i.Size == 2 {
			return strings.TrimSuffix(i.Op.String(), "q")
		}
	case JRCXZ:
		if i.AddrSize == 4 {
			return "jecxz"
		}
	case MOVD:
		if i.Size == 8 {
			return "movq"
		}
	}
	return i.Op.String()
}

func (i *Insn) Mnemonic() string {
	name := i.baseName()
	switch {
	case i.Lock:
		name = "lock " + name
	case i.Rep == 0xf3:
		name = "rep " + name
	case i.Rep == 0xf2:
		name = "repne " + name
	}
	return name
}

// printed operands of the string instructions, XED style
func (i *Insn) shownArgs() []Operand {
	switch i.Op {
	case INS, OUTS:
		return nil
	case STOS:
		return i.Args[:1]
	case LODS, SCAS:
		return i.Args[1:]
	}
	return i.Args
}

func (i *Insn) OpStr() string {
	shown := i.shownArgs()
	args := make([]string, len(shown))
	for n, a := range shown {
		args[n] = i.argString(a)
	}
	return strings.Join(args, ", ")
}

func (i *Insn) String() string {
	if len(i.shownArgs()) == 0 {
		return i.Mnemonic()
	}
	return i.Mnemonic() + " " + i.OpStr()
}

func (i *Insn) argString(a Operand) string {
	switch a.Kind {
	case KindReg:
		return regName(a.Reg, a.Size, a.High)
	case KindXmm:
		return xmmName(a.Reg)
	case KindImm:
		if int64(int32(a.Imm)) == a.Imm {
			return fmt.Sprintf("%#x", a.Imm)
		}
		return fmt.Sprintf("%#x", uint64(a.Imm))
	case KindRel:
		return fmt.Sprintf("%#x", i.next()+uint64(a.Imm))
	}
	m := a.Mem
	var s strings.Builder
	switch a.Size {
	case 1:
		s.WriteString("byte ")
	case 2:
		s.WriteString("word ")
	case 4:
		s.WriteString("dword ")
	case 8:
		s.WriteString("qword ")
	case 16:
		s.WriteString("xmmword ")
	}
	s.WriteString("ptr ")
	switch m.Seg {
	case RegFS:
		s.WriteString("fs:")
	case RegGS:
		s.WriteString("gs:")
	}
	s.WriteByte('[')
	have := false
	if m.Base != RegNone {
		s.WriteString(regName(m.Base, i.AddrSize, false))
		have = true
	}
	if m.Index != RegNone {
		if have {
			s.WriteByte('+')
		}
		fmt.Fprintf(&s, "%s*%d", regName(m.Index, i.AddrSize, false), m.Scale)
		have = true
	}
	if m.Disp != 0 {
		if !have && (m.Disp >= 0 || int64(int32(m.Disp)) != m.Disp) {
			fmt.Fprintf(&s, "%#x", uint64(m.Disp))
		} else {
			fmt.Fprintf(&s, "%+#x", m.Disp)
		}
	}
	s.WriteByte(']')
	return s.String()
}

func (i *Insn) Flow() dbt.Flow {
	switch i.Op {
	case JMP:
		if i.Args[0].Kind == KindRel {
			return dbt.FlowJump
		}
		return dbt.FlowIndirect
	case JCC, LOOP, LOOPE, LOOPNE, JRCXZ:
		return dbt.FlowCondJump
	case CALL:
		return dbt.FlowCall
	case RET:
		return dbt.FlowRet
	case SYSCALL, INT, INT3:
		return dbt.FlowTrap
	}
	return dbt.FlowNone
}

func (i *Insn) Target() (uint64, bool) {
	switch i.Op {
	case JMP, JCC, CALL, LOOP, LOOPE, LOOPNE, JRCXZ:
		if a := i.Args[0]; a.Kind == KindRel {
			return i.next() + uint64(a.Imm), true
		}
	}
	return 0, false
}

func (i *Insn) FlagsRead() uint64 {
	switch i.Op {
	case JCC, SETCC, CMOVCC:
		return condFlags[(i.Cond&15)>>1]
	}
	return opFlags[i.Op].read
}

func (i *Insn) FlagsWritten() uint64 { return opFlags[i.Op].written }

func (i *Insn) Operands() []dbt.Operand {
	out := make([]dbt.Operand, len(i.Args))
	for n, a := range i.Args {
		op := dbt.Operand{Size: a.Size, Imm: a.Imm}
		switch a.Kind {
		case KindReg:
			op.Kind = dbt.OperandReg
			op.Reg = regName(a.Reg, a.Size, a.High)
		case KindXmm:
			op.Kind = dbt.OperandReg
			op.Reg = xmmName(a.Reg)
		case KindImm:
			op.Kind = dbt.OperandImm
		case KindRel:
			op.Kind = dbt.OperandRel
			op.Imm = int64(i.next() + uint64(a.Imm))
		case KindMem:
			op.Kind = dbt.OperandMem
			op.Mem = dbt.MemRef{Scale: int(a.Mem.Scale), Disp: a.Mem.Disp}
			switch a.Mem.Seg {
			case RegFS:
				op.Mem.Seg = "fs"
			case RegGS:
				op.Mem.Seg = "gs"
			}
			if a.Mem.Base != RegNone {
				op.Mem.Base = regName(a.Mem.Base, i.AddrSize, false)
			}
			if a.Mem.Index != RegNone {
				op.Mem.Index = regName(a.Mem.Index, i.AddrSize, false)
			}
		}
		out[n] = op
	}
	return out
}
