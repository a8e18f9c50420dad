package x86_64

import (
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// SyscallTrap is the trap kind reported by the syscall instruction.
// INT n reports n.
const SyscallTrap = 0x100

// access reads and writes one decoded operand.
type access struct {
	size int
	get  func() (uint64, error)
	set  func(v uint64) error
}

// ea returns the effective address calculation for m, including the
// fs/gs base.
func (c *Core) ea(ins *Insn, m Mem) func() uint64 {
	next := ins.next()
	mask := sizeMask(ins.AddrSize)
	disp := uint64(m.Disp)
	return func() uint64 {
		var a uint64
		switch m.Base {
		case RegNone:
		case RegRIP:
			a = next
		default:
			a = c.regs.Get(int(m.Base))
		}
		if m.Index != RegNone {
			a += c.regs.Get(int(m.Index)) * uint64(m.Scale)
		}
		a = (a + disp) & mask
		switch m.Seg {
		case RegFS:
			a += c.regs.Get(FS_BASE)
		case RegGS:
			a += c.regs.Get(GS_BASE)
		}
		return a
	}
}

func (c *Core) operand(ins *Insn, a Operand) access {
	size := a.Size
	switch a.Kind {
	case KindReg:
		r, high := a.Reg, a.High
		return access{
			size: size,
			get:  func() (uint64, error) { return c.getReg(r, size, high), nil },
			set: func(v uint64) error {
				c.setReg(r, size, high, v)
				return nil
			},
		}
	case KindMem:
		addr := c.ea(ins, a.Mem)
		return access{
			size: size,
			get: func() (uint64, error) {
				return c.mem.ReadUint(addr(), size, cpu.PROT_READ)
			},
			set: func(v uint64) error {
				return c.mem.WriteUint(addr(), size, cpu.PROT_WRITE, v&sizeMask(size))
			},
		}
	}
	v := uint64(a.Imm) & sizeMask(size)
	return access{
		size: size,
		get:  func() (uint64, error) { return v, nil },
		set: func(uint64) error {
			return dbt.Internalf("x86_64: write to immediate operand")
		},
	}
}

func (c *Core) operands(ins *Insn) []access {
	acc := make([]access, len(ins.Args))
	for i, a := range ins.Args {
		acc[i] = c.operand(ins, a)
	}
	return acc
}

func nop() dbt.Outcome { return dbt.Next }

func (c *Core) flagOp(fn func(f uint64) uint64) dbt.Exec {
	return func() dbt.Outcome {
		c.regs.Set(RFLAGS, fn(c.flags()))
		return dbt.Next
	}
}

func (c *Core) priv(ins *Insn) dbt.Exec {
	pc, name := ins.addr, ins.Mnemonic()
	return func() dbt.Outcome {
		return dbt.Faulted(&cpu.PrivError{PC: pc, Mnemonic: name})
	}
}

// Bind returns the semantics of ins against this core's registers and memory.
func (c *Core) Bind(di dbt.Insn) (dbt.Exec, error) {
	ins, ok := di.(*Insn)
	if !ok {
		return nil, dbt.Internalf("x86_64: foreign instruction %T", di)
	}
	switch ins.Op {
	case ADD:
		return c.arith(ins, true, func(a, b uint64, size int) (uint64, uint64) {
			return addFlags(a, b, 0, size)
		}), nil
	case ADC:
		return c.arith(ins, true, func(a, b uint64, size int) (uint64, uint64) {
			return addFlags(a, b, c.carry(), size)
		}), nil
	case SUB:
		return c.arith(ins, true, func(a, b uint64, size int) (uint64, uint64) {
			return subFlags(a, b, 0, size)
		}), nil
	case SBB:
		return c.arith(ins, true, func(a, b uint64, size int) (uint64, uint64) {
			return subFlags(a, b, c.carry(), size)
		}), nil
	case CMP:
		return c.arith(ins, false, func(a, b uint64, size int) (uint64, uint64) {
			return subFlags(a, b, 0, size)
		}), nil
	case AND:
		return c.logic(ins, true, func(a, b uint64) uint64 { return a & b }), nil
	case OR:
		return c.logic(ins, true, func(a, b uint64) uint64 { return a | b }), nil
	case XOR:
		return c.logic(ins, true, func(a, b uint64) uint64 { return a ^ b }), nil
	case TEST:
		return c.logic(ins, false, func(a, b uint64) uint64 { return a & b }), nil
	case INC, DEC, NOT, NEG:
		return c.unary(ins), nil
	case MUL, IMUL:
		if ins.Op == IMUL && len(ins.Args) > 1 {
			return c.imulN(ins), nil
		}
		return c.mul(ins), nil
	case DIV, IDIV:
		return c.div(ins), nil

	case ROL, ROR, RCL, RCR, SHL, SHR, SAR:
		return c.shift(ins), nil
	case SHLD, SHRD:
		return c.shiftDouble(ins), nil
	case BT, BTS, BTR, BTC:
		return c.bitTest(ins), nil
	case BSF, BSR, TZCNT, LZCNT, POPCNT:
		return c.bitScan(ins), nil
	case BSWAP:
		return c.bswap(ins), nil

	case MOV, MOVZX:
		return c.move(ins, nil), nil
	case MOVSX, MOVSXD:
		from := ins.Args[1].Size
		return c.move(ins, func(v uint64) uint64 { return signExtend(v, from) }), nil
	case LEA:
		// lea yields the offset; a segment override doesn't add its base
		m := ins.Args[1].Mem
		m.Seg = RegNone
		dst := c.operand(ins, ins.Args[0])
		addr := c.ea(ins, m)
		return func() dbt.Outcome {
			dst.set(addr())
			return dbt.Next
		}, nil
	case XCHG:
		return c.xchg(ins), nil
	case CMPXCHG:
		return c.cmpxchg(ins), nil
	case XADD:
		return c.xadd(ins), nil
	case CMOVCC:
		return c.cmov(ins), nil
	case SETCC:
		dst, cc := c.operand(ins, ins.Args[0]), ins.Cond
		return func() dbt.Outcome {
			var v uint64
			if c.cond(cc) {
				v = 1
			}
			if err := dst.set(v); err != nil {
				return dbt.Faulted(err)
			}
			return dbt.Next
		}, nil

	case PUSH:
		return c.pushOp(ins), nil
	case POP:
		return c.popOp(ins), nil
	case PUSHF, POPF:
		return c.pushf(ins), nil
	case LAHF:
		return func() dbt.Outcome {
			c.setReg(RAX, 1, true, c.flags()&0xd5|2)
			return dbt.Next
		}, nil
	case SAHF:
		return func() dbt.Outcome {
			c.setFlags(0xd5, c.getReg(RAX, 1, true))
			return dbt.Next
		}, nil
	case CBW, CWD:
		return c.convert(ins), nil
	case CLC:
		return c.flagOp(func(f uint64) uint64 { return f &^ FlagCF }), nil
	case STC:
		return c.flagOp(func(f uint64) uint64 { return f | FlagCF }), nil
	case CMC:
		return c.flagOp(func(f uint64) uint64 { return f ^ FlagCF }), nil
	case CLD:
		return c.flagOp(func(f uint64) uint64 { return f &^ FlagDF }), nil
	case STD:
		return c.flagOp(func(f uint64) uint64 { return f | FlagDF }), nil
	case LEAVE:
		return c.leave(ins), nil

	case JMP, JCC, LOOP, LOOPE, LOOPNE, JRCXZ:
		return c.jump(ins), nil
	case CALL:
		return c.call(ins), nil
	case RET:
		return c.ret(ins), nil

	case MOVS, CMPS, STOS, LODS, SCAS:
		return c.str(ins), nil

	case SYSCALL:
		next := ins.next()
		return func() dbt.Outcome {
			c.regs.Set(RCX, next)
			c.regs.Set(R11, c.flags())
			return dbt.Trapped(SyscallTrap)
		}, nil
	case INT:
		n := int(ins.Args[0].Imm)
		return func() dbt.Outcome { return dbt.Trapped(n) }, nil
	case INT3:
		return func() dbt.Outcome { return dbt.Trapped(3) }, nil
	case UD2:
		fault := &dbt.InvalidOpcode{PC: ins.addr, Bytes: ins.raw}
		return func() dbt.Outcome { return dbt.Faulted(fault) }, nil
	case HLT, IN, OUT, INS, OUTS, CLI, STI:
		return c.priv(ins), nil
	case MOVAPS, MOVUPS, MOVDQA, MOVDQU, MOVD, MOVQ,
		PXOR, POR, PAND, PANDN, PCMPEQB, PCMPEQW, PCMPEQD, PMOVMSKB:
		return c.sse(ins), nil
	case NOP, PAUSE, ENDBR64:
		return nop, nil
	case CPUID:
		return c.cpuid, nil
	}
	return nil, dbt.Internalf("x86_64: no semantics for %s", ins.Op)
}
