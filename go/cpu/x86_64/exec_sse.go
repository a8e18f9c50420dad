package x86_64

import (
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// xmm is one 128-bit register value, low quadword first.
type xmm [2]uint64

func (c *Core) getXmm(r Reg) xmm {
	return xmm{c.regs.Get(XMM0 + 2*int(r)), c.regs.Get(XMM0 + 2*int(r) + 1)}
}

func (c *Core) setXmm(r Reg, v xmm) {
	c.regs.Set(XMM0+2*int(r), v[0])
	c.regs.Set(XMM0+2*int(r)+1, v[1])
}

// vector reads and writes an xmm operand or its memory form. A read shorter
// than 16 bytes zero extends; a write of 8 bytes stores the low quadword.
type vector struct {
	get func() (xmm, error)
	set func(v xmm) error
}

func (c *Core) vector(ins *Insn, a Operand, aligned bool) vector {
	if a.Kind == KindXmm {
		r := a.Reg
		return vector{
			get: func() (xmm, error) {
				v := c.getXmm(r)
				if a.Size == 8 {
					v[1] = 0
				}
				return v, nil
			},
			set: func(v xmm) error {
				if a.Size == 8 {
					v[1] = 0
				}
				c.setXmm(r, v)
				return nil
			},
		}
	}
	addr, size := c.ea(ins, a.Mem), a.Size
	return vector{
		get: func() (xmm, error) {
			at := addr()
			if aligned && at&15 != 0 {
				return xmm{}, &cpu.MemError{Addr: at, Size: size, Enum: cpu.MEM_READ_UNALIGNED}
			}
			var v xmm
			for i := 0; i*8 < size; i++ {
				q, err := c.mem.ReadUint(at+uint64(i*8), 8, cpu.PROT_READ)
				if err != nil {
					return xmm{}, err
				}
				v[i] = q
			}
			return v, nil
		},
		set: func(v xmm) error {
			at := addr()
			if aligned && at&15 != 0 {
				return &cpu.MemError{Addr: at, Size: size, Enum: cpu.MEM_WRITE_UNALIGNED}
			}
			if !c.mem.Accessible(at, uint64(size), cpu.PROT_WRITE) {
				// nothing is stored when any part of the range faults
				return c.mem.WriteProt(at, make([]byte, size), cpu.PROT_WRITE)
			}
			for i := 0; i*8 < size; i++ {
				if err := c.mem.WriteUint(at+uint64(i*8), 8, cpu.PROT_WRITE, v[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// lanes applies fn to each size-byte lane of a and b.
func lanes(a, b xmm, size int, fn func(x, y uint64) uint64) xmm {
	mask := sizeMask(size)
	var out xmm
	for q := range out {
		for sh := 0; sh < 64; sh += size * 8 {
			x, y := a[q]>>sh&mask, b[q]>>sh&mask
			out[q] |= fn(x, y) & mask << sh
		}
	}
	return out
}

func cmpEq(x, y uint64) uint64 {
	if x == y {
		return ^uint64(0)
	}
	return 0
}

// sse binds the supported SSE2 integer and move forms.
func (c *Core) sse(ins *Insn) dbt.Exec {
	switch ins.Op {
	case MOVD:
		// movd/movq between a general register or memory and an xmm
		dst, src := ins.Args[0], ins.Args[1]
		if dst.Kind == KindXmm {
			from, r := c.operand(ins, src), dst.Reg
			return func() dbt.Outcome {
				v, err := from.get()
				if err != nil {
					return dbt.Faulted(err)
				}
				c.setXmm(r, xmm{v})
				return dbt.Next
			}
		}
		to, r := c.operand(ins, dst), src.Reg
		return func() dbt.Outcome {
			if err := to.set(c.getXmm(r)[0] & sizeMask(to.size)); err != nil {
				return dbt.Faulted(err)
			}
			return dbt.Next
		}
	case PMOVMSKB:
		dst, r := c.operand(ins, ins.Args[0]), ins.Args[1].Reg
		return func() dbt.Outcome {
			v := c.getXmm(r)
			var mask uint64
			for i := 0; i < 16; i++ {
				if v[i/8]>>(uint(i%8)*8+7)&1 != 0 {
					mask |= 1 << i
				}
			}
			dst.set(mask)
			return dbt.Next
		}
	}

	var fn func(a, b xmm) xmm
	switch ins.Op {
	case PXOR:
		fn = func(a, b xmm) xmm { return xmm{a[0] ^ b[0], a[1] ^ b[1]} }
	case POR:
		fn = func(a, b xmm) xmm { return xmm{a[0] | b[0], a[1] | b[1]} }
	case PAND:
		fn = func(a, b xmm) xmm { return xmm{a[0] & b[0], a[1] & b[1]} }
	case PANDN:
		fn = func(a, b xmm) xmm { return xmm{^a[0] & b[0], ^a[1] & b[1]} }
	case PCMPEQB:
		fn = func(a, b xmm) xmm { return lanes(a, b, 1, cmpEq) }
	case PCMPEQW:
		fn = func(a, b xmm) xmm { return lanes(a, b, 2, cmpEq) }
	case PCMPEQD:
		fn = func(a, b xmm) xmm { return lanes(a, b, 4, cmpEq) }
	}
	// packed ops take their memory operand aligned, like movaps and movdqa
	aligned := fn != nil || ins.Op == MOVAPS || ins.Op == MOVDQA
	dst := c.vector(ins, ins.Args[0], aligned)
	src := c.vector(ins, ins.Args[1], aligned)
	return func() dbt.Outcome {
		v, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		if fn != nil {
			v = fn(c.getXmm(ins.Args[0].Reg), v)
		}
		if err := dst.set(v); err != nil {
			return dbt.Faulted(err)
		}
		return dbt.Next
	}
}
