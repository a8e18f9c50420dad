package ndh

import (
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type load func() (uint64, error)

// store returns the value as it landed, truncated to the operand width
type store func(val uint64) (uint64, error)

// indirect operands are single bytes
func (c *Core) load(a arg) load {
	n := int(a.val)
	switch a.kind {
	case argReg:
		return func() (uint64, error) { return c.regs.Get(n), nil }
	case argIndirect:
		return func() (uint64, error) {
			return c.mem.ReadUint(c.regs.Get(n), 1, cpu.PROT_READ)
		}
	}
	val := uint64(a.val)
	return func() (uint64, error) { return val, nil }
}

func (c *Core) store(a arg) store {
	n := int(a.val)
	switch a.kind {
	case argReg:
		return func(val uint64) (uint64, error) {
			val &= 0xffff
			c.regs.Set(n, val)
			return val, nil
		}
	case argIndirect:
		return func(val uint64) (uint64, error) {
			val &= 0xff
			return val, c.mem.WriteUint(c.regs.Get(n), 1, cpu.PROT_WRITE, val)
		}
	}
	return nil
}

func (c *Core) flag(enum int, set bool) {
	if set {
		c.regs.Set(enum, 1)
	} else {
		c.regs.Set(enum, 0)
	}
}

func (c *Core) isSet(enum int) bool { return c.regs.Get(enum) != 0 }

func (c *Core) binop(ins *Insn, fn func(a, b uint64) uint64) dbt.Exec {
	la, lb, st := c.load(ins.args[0]), c.load(ins.args[1]), c.store(ins.args[0])
	return func() dbt.Outcome {
		a, err := la()
		if err != nil {
			return dbt.Faulted(err)
		}
		b, err := lb()
		if err != nil {
			return dbt.Faulted(err)
		}
		v, err := st(fn(a, b))
		if err != nil {
			return dbt.Faulted(err)
		}
		c.flag(ZF, v == 0)
		return dbt.Next
	}
}

// unop doesn't touch the flags unless setZF is set
func (c *Core) unop(ins *Insn, setZF bool, fn func(a uint64) uint64) dbt.Exec {
	la, st := c.load(ins.args[0]), c.store(ins.args[0])
	return func() dbt.Outcome {
		a, err := la()
		if err != nil {
			return dbt.Faulted(err)
		}
		v, err := st(fn(a))
		if err != nil {
			return dbt.Faulted(err)
		}
		if setZF {
			c.flag(ZF, v == 0)
		}
		return dbt.Next
	}
}

func (c *Core) branch(ins *Insn, cond func() bool) dbt.Exec {
	target, _ := ins.Target()
	return func() dbt.Outcome {
		if cond == nil || cond() {
			return dbt.Jumped(target)
		}
		return dbt.Next
	}
}

func (c *Core) push(ins *Insn) dbt.Exec {
	size := 2
	if ins.args[0].kind == argU8 {
		size = 1
	}
	la := c.load(ins.args[0])
	return func() dbt.Outcome {
		val, err := la()
		if err != nil {
			return dbt.Faulted(err)
		}
		sp := (c.regs.Get(SP) - uint64(size)) & 0xffff
		if err := c.mem.WriteUint(sp, size, cpu.PROT_WRITE, val); err != nil {
			return dbt.Faulted(err)
		}
		c.regs.Set(SP, sp)
		return dbt.Next
	}
}

func (c *Core) pop(ins *Insn) dbt.Exec {
	st := c.store(ins.args[0])
	return func() dbt.Outcome {
		sp := c.regs.Get(SP)
		val, err := c.mem.ReadUint(sp, 2, cpu.PROT_READ)
		if err != nil {
			return dbt.Faulted(err)
		}
		c.regs.Set(SP, sp+2)
		// a popped [sp] is addressed after the increment, as is pop sp
		if _, err := st(val); err != nil {
			c.regs.Set(SP, sp)
			return dbt.Faulted(err)
		}
		return dbt.Next
	}
}

func (c *Core) call(ins *Insn) dbt.Exec {
	la := c.load(ins.args[0])
	next := ins.next()
	return func() dbt.Outcome {
		off, err := la()
		if err != nil {
			return dbt.Faulted(err)
		}
		sp := (c.regs.Get(SP) - 2) & 0xffff
		if err := c.mem.WriteUint(sp, 2, cpu.PROT_WRITE, next); err != nil {
			return dbt.Faulted(err)
		}
		c.regs.Set(SP, sp)
		return dbt.Called(ins.rel(off), next)
	}
}

func (c *Core) ret() dbt.Exec {
	return func() dbt.Outcome {
		sp := c.regs.Get(SP)
		addr, err := c.mem.ReadUint(sp, 2, cpu.PROT_READ)
		if err != nil {
			return dbt.Faulted(err)
		}
		c.regs.Set(SP, sp+2)
		return dbt.Returned(addr)
	}
}

// Bind returns the semantics of ins against this core's registers and memory.
func (c *Core) Bind(di dbt.Insn) (dbt.Exec, error) {
	ins, ok := di.(*Insn)
	if !ok {
		return nil, dbt.Internalf("ndh: foreign instruction %T", di)
	}
	switch ins.op {
	case OP_NOP:
		return func() dbt.Outcome { return dbt.Next }, nil
	case OP_MOV:
		lb, st := c.load(ins.args[1]), c.store(ins.args[0])
		return func() dbt.Outcome {
			v, err := lb()
			if err == nil {
				_, err = st(v)
			}
			if err != nil {
				return dbt.Faulted(err)
			}
			return dbt.Next
		}, nil
	case OP_XCHG:
		a, b := int(ins.args[0].val), int(ins.args[1].val)
		return func() dbt.Outcome {
			va, vb := c.regs.Get(a), c.regs.Get(b)
			c.regs.Set(a, vb)
			c.regs.Set(b, va)
			return dbt.Next
		}, nil

	case OP_ADD:
		return c.binop(ins, func(a, b uint64) uint64 { return a + b }), nil
	case OP_SUB:
		return c.binop(ins, func(a, b uint64) uint64 { return a - b }), nil
	case OP_MUL:
		return c.binop(ins, func(a, b uint64) uint64 { return a * b }), nil
	case OP_AND:
		return c.binop(ins, func(a, b uint64) uint64 { return a & b }), nil
	case OP_OR:
		return c.binop(ins, func(a, b uint64) uint64 { return a | b }), nil
	case OP_XOR:
		return c.binop(ins, func(a, b uint64) uint64 { return a ^ b }), nil
	case OP_DIV:
		lb := c.load(ins.args[1])
		inner := c.binop(ins, func(a, b uint64) uint64 { return a / b })
		return func() dbt.Outcome {
			b, err := lb()
			if err != nil {
				return dbt.Faulted(err)
			}
			if b == 0 {
				return dbt.Faulted(&cpu.ArithError{PC: ins.addr, Kind: cpu.DivideError})
			}
			return inner()
		}, nil
	case OP_INC:
		return c.unop(ins, false, func(a uint64) uint64 { return a + 1 }), nil
	case OP_DEC:
		return c.unop(ins, false, func(a uint64) uint64 { return a - 1 }), nil
	case OP_NOT:
		return c.unop(ins, true, func(a uint64) uint64 { return ^a }), nil

	case OP_CMP:
		la, lb := c.load(ins.args[0]), c.load(ins.args[1])
		return func() dbt.Outcome {
			a, err := la()
			if err != nil {
				return dbt.Faulted(err)
			}
			b, err := lb()
			if err != nil {
				return dbt.Faulted(err)
			}
			c.flag(ZF, a == b)
			c.flag(AF, a < b)
			c.flag(BF, a > b)
			return dbt.Next
		}, nil
	case OP_TEST:
		a, b := int(ins.args[0].val), int(ins.args[1].val)
		return func() dbt.Outcome {
			c.flag(ZF, c.regs.Get(a) == 0 && c.regs.Get(b) == 0)
			return dbt.Next
		}, nil

	case OP_JMPL, OP_JMPS:
		return c.branch(ins, nil), nil
	case OP_JZ:
		return c.branch(ins, func() bool { return c.isSet(ZF) }), nil
	case OP_JNZ:
		return c.branch(ins, func() bool { return !c.isSet(ZF) }), nil
	case OP_JA:
		return c.branch(ins, func() bool { return c.isSet(AF) }), nil
	case OP_JB:
		return c.branch(ins, func() bool { return c.isSet(BF) }), nil
	case OP_CALL:
		return c.call(ins), nil
	case OP_RET:
		return c.ret(), nil
	case OP_PUSH:
		return c.push(ins), nil
	case OP_POP:
		return c.pop(ins), nil

	case OP_SYSCALL:
		return func() dbt.Outcome { return dbt.Trapped(0) }, nil
	case OP_END:
		return func() dbt.Outcome { return dbt.Halted(models.ExitStatus(0)) }, nil
	}
	return nil, dbt.Internalf("ndh: no semantics for opcode %#02x", ins.op)
}
