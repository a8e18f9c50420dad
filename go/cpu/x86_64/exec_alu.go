package x86_64

import (
	"math/bits"

	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// arith runs a two operand op that sets all six arithmetic flags.
func (c *Core) arith(ins *Insn, write bool, fn func(a, b uint64, size int) (uint64, uint64)) dbt.Exec {
	acc := c.operands(ins)
	dst, src := acc[0], acc[1]
	size := dst.size
	return func() dbt.Outcome {
		a, err := dst.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		b, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		res, f := fn(a, b, size)
		if write {
			if err := dst.set(res); err != nil {
				return dbt.Faulted(err)
			}
		}
		c.setFlags(arithFlags, f)
		return dbt.Next
	}
}

func (c *Core) logic(ins *Insn, write bool, fn func(a, b uint64) uint64) dbt.Exec {
	acc := c.operands(ins)
	dst, src := acc[0], acc[1]
	size := dst.size
	return func() dbt.Outcome {
		a, err := dst.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		b, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		res := fn(a, b) & sizeMask(size)
		if write {
			if err := dst.set(res); err != nil {
				return dbt.Faulted(err)
			}
		}
		c.setFlags(logicMask, logicFlags(res, size))
		return dbt.Next
	}
}

func (c *Core) unary(ins *Insn) dbt.Exec {
	dst := c.operand(ins, ins.Args[0])
	size, op := dst.size, ins.Op
	return func() dbt.Outcome {
		a, err := dst.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		var res, f uint64
		mask := uint64(arithFlags)
		switch op {
		case INC:
			res, f = addFlags(a, 1, 0, size)
			mask &^= FlagCF
		case DEC:
			res, f = subFlags(a, 1, 0, size)
			mask &^= FlagCF
		case NEG:
			res, f = subFlags(0, a, 0, size)
		case NOT:
			res, mask = ^a, 0
		}
		if err := dst.set(res); err != nil {
			return dbt.Faulted(err)
		}
		c.setFlags(mask, f)
		return dbt.Next
	}
}

// mulWide returns the double width product of a and b split in two halves
// of size bytes, and whether the high half is significant.
func mulWide(a, b uint64, size int, signed bool) (lo, hi uint64, over bool) {
	if size == 8 {
		hi, lo = bits.Mul64(a, b)
		if !signed {
			return lo, hi, hi != 0
		}
		if int64(a) < 0 {
			hi -= b
		}
		if int64(b) < 0 {
			hi -= a
		}
		return lo, hi, hi != uint64(int64(lo)>>63)
	}
	m := sizeMask(size)
	var p uint64
	if signed {
		p = signExtend(a, size) * signExtend(b, size)
		over = signExtend(p, size) != p
	} else {
		p = (a & m) * (b & m)
		over = p>>(uint(size)*8) != 0
	}
	return p & m, (p >> (uint(size) * 8)) & m, over
}

func (c *Core) mul(ins *Insn) dbt.Exec {
	src := c.operand(ins, ins.Args[0])
	size, signed := src.size, ins.Op == IMUL
	return func() dbt.Outcome {
		b, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		lo, hi, over := mulWide(c.getReg(RAX, size, false), b, size, signed)
		if size == 1 {
			c.setReg(RAX, 2, false, hi<<8|lo)
		} else {
			c.setReg(RAX, size, false, lo)
			c.setReg(RDX, size, false, hi)
		}
		c.setFlags(FlagCF|FlagOF, b2f(over, FlagCF|FlagOF))
		return dbt.Next
	}
}

// imulN is the two and three operand imul, truncated to the destination.
func (c *Core) imulN(ins *Insn) dbt.Exec {
	acc := c.operands(ins)
	dst, x, y := acc[0], acc[0], acc[1]
	if len(acc) == 3 {
		x, y = acc[1], acc[2]
	}
	size := dst.size
	return func() dbt.Outcome {
		a, err := x.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		b, err := y.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		lo, _, over := mulWide(a, b, size, true)
		if err := dst.set(lo); err != nil {
			return dbt.Faulted(err)
		}
		c.setFlags(FlagCF|FlagOF, b2f(over, FlagCF|FlagOF))
		return dbt.Next
	}
}

func neg128(hi, lo uint64) (uint64, uint64) {
	l, borrow := bits.Sub64(0, lo, 0)
	h, _ := bits.Sub64(0, hi, borrow)
	return h, l
}

// divWide divides hi:lo by d, all values size bytes wide. ok is false when
// the quotient doesn't fit.
func divWide(hi, lo, d uint64, size int, signed bool) (q, r uint64, ok bool) {
	n := uint(size) * 8
	m := sizeMask(size)
	if !signed {
		if hi >= d {
			return 0, 0, false
		}
		if size == 8 {
			q, r = bits.Div64(hi, lo, d)
			return q, r, true
		}
		x := hi<<n | lo
		return x / d, x % d, true
	}
	if size < 8 {
		x := int64(signExtend(hi<<n|lo, size*2))
		y := int64(signExtend(d, size))
		sq, sr := x/y, x%y
		if uint64(sq) != signExtend(uint64(sq), size) {
			return 0, 0, false
		}
		return uint64(sq) & m, uint64(sr) & m, true
	}
	neg, dneg := int64(hi) < 0, int64(d) < 0
	if neg {
		hi, lo = neg128(hi, lo)
	}
	if dneg {
		d = -d
	}
	if hi >= d {
		return 0, 0, false
	}
	q, r = bits.Div64(hi, lo, d)
	if neg != dneg {
		if q > 1<<63 {
			return 0, 0, false
		}
		q = -q
	} else if q >= 1<<63 {
		return 0, 0, false
	}
	if neg {
		r = -r
	}
	return q, r, true
}

func (c *Core) div(ins *Insn) dbt.Exec {
	src := c.operand(ins, ins.Args[0])
	size, signed, pc := src.size, ins.Op == IDIV, ins.addr
	return func() dbt.Outcome {
		d, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		if d == 0 {
			return dbt.Faulted(&cpu.ArithError{PC: pc, Kind: cpu.DivideError})
		}
		var hi, lo uint64
		if size == 1 {
			ax := c.getReg(RAX, 2, false)
			hi, lo = ax>>8, ax&0xff
		} else {
			hi, lo = c.getReg(RDX, size, false), c.getReg(RAX, size, false)
		}
		q, r, ok := divWide(hi, lo, d, size, signed)
		if !ok {
			return dbt.Faulted(&cpu.ArithError{PC: pc, Kind: cpu.DivideError})
		}
		if size == 1 {
			c.setReg(RAX, 2, false, r<<8|q)
		} else {
			c.setReg(RAX, size, false, q)
			c.setReg(RDX, size, false, r)
		}
		return dbt.Next
	}
}

func countMask(size int) uint64 {
	if size == 8 {
		return 63
	}
	return 31
}

// shiftOp applies a shift or rotate by a nonzero masked count. It returns
// the result, the new flags and which flags are defined.
func shiftOp(op Op, a, n uint64, size int, cf uint64) (res, f, mask uint64) {
	width := uint64(size) * 8
	m, msb := sizeMask(size), signBit(size)
	a &= m
	switch op {
	case SHL:
		res = a << n & m
		cout := n <= width && (a>>(width-n))&1 != 0
		f = szp(res, size) | b2f(cout, FlagCF)
		mask = FlagCF | FlagSF | FlagZF | FlagPF
		if n == 1 {
			f |= b2f((res&msb != 0) != cout, FlagOF)
			mask |= FlagOF
		}
	case SHR:
		res = a >> n
		f = szp(res, size) | b2f((a>>(n-1))&1 != 0, FlagCF)
		mask = FlagCF | FlagSF | FlagZF | FlagPF
		if n == 1 {
			f |= b2f(a&msb != 0, FlagOF)
			mask |= FlagOF
		}
	case SAR:
		s := int64(signExtend(a, size))
		res = uint64(s>>n) & m
		f = szp(res, size) | b2f((s>>(n-1))&1 != 0, FlagCF)
		mask = FlagCF | FlagSF | FlagZF | FlagPF
		if n == 1 {
			mask |= FlagOF
		}
	case ROL:
		r := n % width
		res = (a<<r | a>>(width-r)) & m
		cout := res&1 != 0
		f, mask = b2f(cout, FlagCF), FlagCF
		if n == 1 {
			f |= b2f((res&msb != 0) != cout, FlagOF)
			mask |= FlagOF
		}
	case ROR:
		r := n % width
		res = (a>>r | a<<(width-r)) & m
		f, mask = b2f(res&msb != 0, FlagCF), FlagCF
		if n == 1 {
			f |= b2f((res&msb != 0) != (res&(msb>>1) != 0), FlagOF)
			mask |= FlagOF
		}
	case RCL:
		res = a
		for i := n % (width + 1); i > 0; i-- {
			out := res >> (width - 1) & 1
			res = (res<<1 | cf) & m
			cf = out
		}
		f, mask = b2f(cf != 0, FlagCF), FlagCF
		if n == 1 {
			f |= b2f((res&msb != 0) != (cf != 0), FlagOF)
			mask |= FlagOF
		}
	case RCR:
		if n == 1 {
			f |= b2f((a&msb != 0) != (cf != 0), FlagOF)
			mask |= FlagOF
		}
		res = a
		for i := n % (width + 1); i > 0; i-- {
			out := res & 1
			res = res>>1 | cf<<(width-1)
			cf = out
		}
		f |= b2f(cf != 0, FlagCF)
		mask |= FlagCF
	}
	return res, f, mask
}

func (c *Core) shift(ins *Insn) dbt.Exec {
	acc := c.operands(ins)
	dst, count := acc[0], acc[1]
	size, op := dst.size, ins.Op
	return func() dbt.Outcome {
		n, err := count.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		// a zero count changes nothing, not even the flags
		if n &= countMask(size); n == 0 {
			return dbt.Next
		}
		a, err := dst.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		res, f, mask := shiftOp(op, a, n, size, c.carry())
		if err := dst.set(res); err != nil {
			return dbt.Faulted(err)
		}
		c.setFlags(mask, f)
		return dbt.Next
	}
}

func (c *Core) shiftDouble(ins *Insn) dbt.Exec {
	acc := c.operands(ins)
	dst, src, count := acc[0], acc[1], acc[2]
	size, left := dst.size, ins.Op == SHLD
	width := uint64(size) * 8
	m, msb := sizeMask(size), signBit(size)
	return func() dbt.Outcome {
		n, err := count.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		if n &= countMask(size); n == 0 {
			return dbt.Next
		}
		a, err := dst.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		b, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		var res uint64
		var cout bool
		// counts past the width are undefined for 16-bit operands; the
		// unsigned shifts below just run out of bits
		if left {
			res = (a<<n | b>>(width-n)) & m
			cout = (a>>(width-n))&1 != 0
		} else {
			res = (a>>n | b<<(width-n)) & m
			cout = (a>>(n-1))&1 != 0
		}
		if err := dst.set(res); err != nil {
			return dbt.Faulted(err)
		}
		f := szp(res, size) | b2f(cout, FlagCF)
		mask := uint64(FlagCF | FlagSF | FlagZF | FlagPF)
		if n == 1 {
			f |= b2f((res&msb != 0) != (a&msb != 0), FlagOF)
			mask |= FlagOF
		}
		c.setFlags(mask, f)
		return dbt.Next
	}
}

func (c *Core) bitTest(ins *Insn) dbt.Exec {
	dstArg, srcArg := ins.Args[0], ins.Args[1]
	dst, src := c.operand(ins, dstArg), c.operand(ins, srcArg)
	size, op := dstArg.Size, ins.Op
	width := uint64(size) * 8
	var addr func() uint64
	if dstArg.Kind == KindMem {
		addr = c.ea(ins, dstArg.Mem)
	}
	// register offsets into memory address a bit string around the operand
	bitString := addr != nil && srcArg.Kind == KindReg
	shift := uint(bits.TrailingZeros64(width))
	return func() dbt.Outcome {
		off, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		var at, v uint64
		if addr != nil {
			at = addr()
			if bitString {
				at += uint64(int64(signExtend(off, size)) >> shift * int64(size))
			}
			v, err = c.mem.ReadUint(at, size, cpu.PROT_READ)
		} else {
			v, err = dst.get()
		}
		if err != nil {
			return dbt.Faulted(err)
		}
		bit := uint64(1) << (off & (width - 1))
		cf := v&bit != 0
		switch op {
		case BTS:
			v |= bit
		case BTR:
			v &^= bit
		case BTC:
			v ^= bit
		}
		if op != BT {
			if addr != nil {
				err = c.mem.WriteUint(at, size, cpu.PROT_WRITE, v)
			} else {
				err = dst.set(v)
			}
			if err != nil {
				return dbt.Faulted(err)
			}
		}
		c.setFlags(FlagCF, b2f(cf, FlagCF))
		return dbt.Next
	}
}

func (c *Core) bitScan(ins *Insn) dbt.Exec {
	acc := c.operands(ins)
	dst, src := acc[0], acc[1]
	size, op := dst.size, ins.Op
	width := size * 8
	return func() dbt.Outcome {
		v, err := src.get()
		if err != nil {
			return dbt.Faulted(err)
		}
		var res, f, mask uint64
		switch op {
		case BSF, BSR:
			mask = FlagZF
			if v == 0 {
				// destination is left alone
				c.setFlags(mask, FlagZF)
				return dbt.Next
			}
			if op == BSF {
				res = uint64(bits.TrailingZeros64(v))
			} else {
				res = uint64(63 - bits.LeadingZeros64(v))
			}
		case TZCNT:
			res = uint64(bits.TrailingZeros64(v))
			if v == 0 {
				res = uint64(width)
			}
			f, mask = b2f(v == 0, FlagCF)|b2f(res == 0, FlagZF), FlagCF|FlagZF
		case LZCNT:
			res = uint64(bits.LeadingZeros64(v) - (64 - width))
			f, mask = b2f(v == 0, FlagCF)|b2f(res == 0, FlagZF), FlagCF|FlagZF
		case POPCNT:
			res = uint64(bits.OnesCount64(v))
			f, mask = b2f(v == 0, FlagZF), arithFlags
		}
		if err := dst.set(res); err != nil {
			return dbt.Faulted(err)
		}
		c.setFlags(mask, f)
		return dbt.Next
	}
}

func (c *Core) bswap(ins *Insn) dbt.Exec {
	dst := c.operand(ins, ins.Args[0])
	size := dst.size
	return func() dbt.Outcome {
		v, _ := dst.get()
		if size == 8 {
			v = bits.ReverseBytes64(v)
		} else {
			v = uint64(bits.ReverseBytes32(uint32(v)))
		}
		dst.set(v)
		return dbt.Next
	}
}
