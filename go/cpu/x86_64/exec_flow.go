package x86_64

import (
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// move copies the source to the destination, optionally converting it.
func (c *Core) move(ins *Insn, conv func(uint64) uint64) dbt.Exec {
	acc := c.operands(ins)
	dst, src := acc[0], acc[1]
	return func() dbt.Outcome {
		v, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		if conv != nil {
			v = conv(v)
		}
		if err := dst.set(v); err != nil {
			return dbt.Faulted(err)
		}
		return dbt.Next
	}
}

func (c *Core) xchg(ins *Insn) dbt.Exec {
	acc := c.operands(ins)
	x, y := acc[0], acc[1]
	return func() dbt.Outcome {
		a, err := x.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		b, err := y.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		if err := x.set(b); err != nil {
			return dbt.Faulted(err)
		}
		if err := y.set(a); err != nil {
			return dbt.Faulted(err)
		}
		return dbt.Next
	}
}

func (c *Core) cmpxchg(ins *Insn) dbt.Exec {
	acc := c.operands(ins)
	dst, src := acc[0], acc[1]
	size, mem := dst.size, ins.Args[0].Kind == KindMem
	return func() dbt.Outcome {
		a, err := dst.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		ax := c.getReg(RAX, size, false)
		_, f := subFlags(ax, a, 0, size)
		if ax == a {
			v, _ := src.get()
			if err := dst.set(v); err != nil {
				return dbt.Faulted(err)
			}
		} else {
			// a memory destination sees a write cycle even on a miss
			if mem {
				if err := dst.set(a); err != nil {
					return dbt.Faulted(err)
				}
			}
			c.setReg(RAX, size, false, a)
		}
		c.setFlags(arithFlags, f)
		return dbt.Next
	}
}

func (c *Core) xadd(ins *Insn) dbt.Exec {
	acc := c.operands(ins)
	dst, src := acc[0], acc[1]
	size, mem := dst.size, ins.Args[0].Kind == KindMem
	return func() dbt.Outcome {
		a, err := dst.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		b, _ := src.get()
		sum, f := addFlags(a, b, 0, size)
		// with two registers the destination write lands last
		if mem {
			if err := dst.set(sum); err != nil {
				return dbt.Faulted(err)
			}
			src.set(a)
		} else {
			src.set(a)
			dst.set(sum)
		}
		c.setFlags(arithFlags, f)
		return dbt.Next
	}
}

func (c *Core) cmov(ins *Insn) dbt.Exec {
	acc := c.operands(ins)
	dst, src := acc[0], acc[1]
	cc := ins.Cond
	return func() dbt.Outcome {
		// the source is read even when the condition fails
		v, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		if !c.cond(cc) {
			// 32-bit cmov still zero extends
			v, _ = dst.get()
		}
		dst.set(v)
		return dbt.Next
	}
}

func (c *Core) pushOp(ins *Insn) dbt.Exec {
	src := c.operand(ins, ins.Args[0])
	size := ins.Size
	return func() dbt.Outcome {
		v, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		if err := c.push(size, v); err != nil {
			return dbt.Faulted(err)
		}
		return dbt.Next
	}
}

func (c *Core) popOp(ins *Insn) dbt.Exec {
	dst := c.operand(ins, ins.Args[0])
	size := ins.Size
	return func() dbt.Outcome {
		sp := c.regs.Get(RSP)
		v, err := c.pop(size)
		if err != nil {
			return dbt.Faulted(err)
		}
		if err := dst.set(v); err != nil {
			c.regs.Set(RSP, sp)
			return dbt.Faulted(err)
		}
		return dbt.Next
	}
}

func (c *Core) pushf(ins *Insn) dbt.Exec {
	size := ins.Size
	if ins.Op == PUSHF {
		return func() dbt.Outcome {
			if err := c.push(size, c.flags()&sizeMask(size)); err != nil {
				return dbt.Faulted(err)
			}
			return dbt.Next
		}
	}
	mask := popfMask & sizeMask(size)
	return func() dbt.Outcome {
		v, err := c.pop(size)
		if err != nil {
			return dbt.Faulted(err)
		}
		c.setFlags(mask, v)
		return dbt.Next
	}
}

// convert implements cbw/cwde/cdqe and cwd/cdq/cqo.
func (c *Core) convert(ins *Insn) dbt.Exec {
	size := ins.Size
	if ins.Op == CBW {
		return func() dbt.Outcome {
			v := signExtend(c.getReg(RAX, size/2, false), size/2)
			c.setReg(RAX, size, false, v)
			return dbt.Next
		}
	}
	return func() dbt.Outcome {
		var v uint64
		if c.getReg(RAX, size, false)&signBit(size) != 0 {
			v = sizeMask(size)
		}
		c.setReg(RDX, size, false, v)
		return dbt.Next
	}
}

func (c *Core) leave(ins *Insn) dbt.Exec {
	size := ins.Size
	return func() dbt.Outcome {
		bp := c.regs.Get(RBP)
		v, err := c.mem.ReadUint(bp, size, cpu.PROT_READ)
		if err != nil {
			return dbt.Faulted(err)
		}
		c.regs.Set(RSP, bp+uint64(size))
		c.setReg(RBP, size, false, v)
		return dbt.Next
	}
}

func (c *Core) jump(ins *Insn) dbt.Exec {
	target, direct := ins.Target()
	if !direct {
		src := c.operand(ins, ins.Args[0])
		return func() dbt.Outcome {
			v, err := src.get()
			if err != nil {
				return dbt.Faulted(err)
			}
			return dbt.Jumped(v)
		}
	}
	amask := sizeMask(ins.AddrSize)
	cc, op := ins.Cond, ins.Op
	// loop counters follow the address size
	loop := func() bool {
		n := (c.regs.Get(RCX) - 1) & amask
		c.setReg(RCX, ins.AddrSize, false, n)
		return n != 0
	}
	var taken func() bool
	switch op {
	case JMP:
		return func() dbt.Outcome { return dbt.Jumped(target) }
	case JCC:
		taken = func() bool { return c.cond(cc) }
	case LOOP:
		taken = loop
	case LOOPE:
		taken = func() bool { return loop() && c.flag(FlagZF) }
	case LOOPNE:
		taken = func() bool { return loop() && !c.flag(FlagZF) }
	case JRCXZ:
		taken = func() bool { return c.regs.Get(RCX)&amask == 0 }
	}
	return func() dbt.Outcome {
		if taken() {
			return dbt.Jumped(target)
		}
		return dbt.Next
	}
}

func (c *Core) call(ins *Insn) dbt.Exec {
	next := ins.next()
	target, direct := ins.Target()
	if direct {
		return func() dbt.Outcome {
			if err := c.push(8, next); err != nil {
				return dbt.Faulted(err)
			}
			return dbt.Called(target, next)
		}
	}
	src := c.operand(ins, ins.Args[0])
	return func() dbt.Outcome {
		v, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		if err := c.push(8, next); err != nil {
			return dbt.Faulted(err)
		}
		return dbt.Called(v, next)
	}
}

func (c *Core) ret(ins *Insn) dbt.Exec {
	var extra uint64
	if len(ins.Args) > 0 {
		extra = uint64(ins.Args[0].Imm)
	}
	return func() dbt.Outcome {
		v, err := c.pop(8)
		if err != nil {
			return dbt.Faulted(err)
		}
		c.regs.Set(RSP, c.regs.Get(RSP)+extra)
		return dbt.Returned(v)
	}
}

// str runs one string instruction. With a rep prefix the whole loop runs
// here; a fault leaves rcx, rsi and rdi at the faulting iteration so the
// instruction can restart.
func (c *Core) str(ins *Insn) dbt.Exec {
	size, op, rep := ins.Size, ins.Op, ins.Rep
	asize := ins.AddrSize
	amask := sizeMask(asize)
	var srcAddr func() uint64
	for _, a := range ins.Args {
		if a.Kind == KindMem && a.Mem.Base == RSI {
			srcAddr = c.ea(ins, a.Mem)
		}
	}
	dstAddr := func() uint64 { return c.regs.Get(RDI) & amask }
	step := func(r int, delta uint64) {
		c.setReg(Reg(r), asize, false, c.regs.Get(r)+delta)
	}
	read := func(addr uint64) (uint64, error) {
		return c.mem.ReadUint(addr, size, cpu.PROT_READ)
	}
	write := func(addr, v uint64) error {
		return c.mem.WriteUint(addr, size, cpu.PROT_WRITE, v)
	}
	once := func(delta uint64) error {
		switch op {
		case MOVS:
			v, err := read(srcAddr())
			if err != nil {
				return err
			}
			if err := write(dstAddr(), v); err != nil {
				return err
			}
			step(RSI, delta)
			step(RDI, delta)
		case CMPS:
			a, err := read(srcAddr())
			if err != nil {
				return err
			}
			b, err := read(dstAddr())
			if err != nil {
				return err
			}
			_, f := subFlags(a, b, 0, size)
			c.setFlags(arithFlags, f)
			step(RSI, delta)
			step(RDI, delta)
		case STOS:
			if err := write(dstAddr(), c.getReg(RAX, size, false)); err != nil {
				return err
			}
			step(RDI, delta)
		case LODS:
			v, err := read(srcAddr())
			if err != nil {
				return err
			}
			c.setReg(RAX, size, false, v)
			step(RSI, delta)
		case SCAS:
			b, err := read(dstAddr())
			if err != nil {
				return err
			}
			_, f := subFlags(c.getReg(RAX, size, false), b, 0, size)
			c.setFlags(arithFlags, f)
			step(RDI, delta)
		}
		return nil
	}
	compares := op == CMPS || op == SCAS
	return func() dbt.Outcome {
		for {
			if rep != 0 && c.regs.Get(RCX)&amask == 0 {
				return dbt.Next
			}
			delta := uint64(size)
			if c.flag(FlagDF) {
				delta = -delta
			}
			if err := once(delta); err != nil {
				return dbt.Faulted(err)
			}
			if rep == 0 {
				return dbt.Next
			}
			step(RCX, ^uint64(0))
			if compares && (rep == 0xf3) != c.flag(FlagZF) {
				return dbt.Next
			}
		}
	}
}

var cpuidLeaves = map[uint32][4]uint32{
	// "TranscornEmu" in ebx, edx, ecx
	0:          {0x1, 0x6e617254, 0x756d456e, 0x726f6373},
	1:          {0x00000f00, 0, 1 << 23, 1 << 15},
	0x80000000: {0x80000001, 0, 0, 0},
	0x80000001: {0, 0, 1 << 5, 1<<11 | 1<<29},
}

// cpuid reports a minimal integer-only processor.
func (c *Core) cpuid() dbt.Outcome {
	leaf := cpuidLeaves[uint32(c.regs.Get(RAX))]
	c.regs.Set(RAX, uint64(leaf[0]))
	c.regs.Set(RBX, uint64(leaf[1]))
	c.regs.Set(RCX, uint64(leaf[2]))
	c.regs.Set(RDX, uint64(leaf[3]))
	return dbt.Next
}
