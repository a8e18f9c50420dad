package x86_64

import (
	"math/bits"
)

const (
	FlagCF = 1 << 0
	FlagPF = 1 << 2
	FlagAF = 1 << 4
	FlagZF = 1 << 6
	FlagSF = 1 << 7
	FlagTF = 1 << 8
	FlagIF = 1 << 9
	FlagDF = 1 << 10
	FlagOF = 1 << 11
	FlagAC = 1 << 18
	FlagID = 1 << 21

	arithFlags = FlagCF | FlagPF | FlagAF | FlagZF | FlagSF | FlagOF
	// AF is undefined after logic ops and shifts
	logicMask = arithFlags &^ FlagAF
	// what popf may change in user mode
	popfMask = arithFlags | FlagTF | FlagDF | FlagAC | FlagID
)

func b2f(b bool, flag uint64) uint64 {
	if b {
		return flag
	}
	return 0
}

func parity(v uint64) bool {
	return bits.OnesCount8(uint8(v))&1 == 0
}

// szp computes SF, ZF and PF for a result of size bytes.
func szp(res uint64, size int) uint64 {
	res &= sizeMask(size)
	return b2f(res&signBit(size) != 0, FlagSF) |
		b2f(res == 0, FlagZF) |
		b2f(parity(res), FlagPF)
}

// addFlags returns a+b+carry and its flags.
func addFlags(a, b, carry uint64, size int) (uint64, uint64) {
	m := sizeMask(size)
	a, b = a&m, b&m
	sum, cout := bits.Add64(a, b, carry)
	res := sum & m
	var cf bool
	if size == 8 {
		cf = cout != 0
	} else {
		cf = sum > m
	}
	f := szp(res, size) | b2f(cf, FlagCF)
	f |= b2f((a^b^res)&0x10 != 0, FlagAF)
	f |= b2f((a^res)&(b^res)&signBit(size) != 0, FlagOF)
	return res, f
}

// subFlags returns a-b-borrow and its flags.
func subFlags(a, b, borrow uint64, size int) (uint64, uint64) {
	m := sizeMask(size)
	a, b = a&m, b&m
	diff, bout := bits.Sub64(a, b, borrow)
	res := diff & m
	var cf bool
	if size == 8 {
		cf = bout != 0
	} else {
		cf = a < b+borrow
	}
	f := szp(res, size) | b2f(cf, FlagCF)
	f |= b2f((a^b^res)&0x10 != 0, FlagAF)
	f |= b2f((a^b)&(a^res)&signBit(size) != 0, FlagOF)
	return res, f
}

// logicFlags clears CF and OF. Apply it through logicMask.
func logicFlags(res uint64, size int) uint64 {
	return szp(res, size)
}

func (c *Core) flags() uint64 { return c.regs.Get(RFLAGS) }

// setFlags replaces the bits in mask with the matching bits of f.
func (c *Core) setFlags(mask, f uint64) {
	c.regs.Set(RFLAGS, c.regs.Get(RFLAGS)&^mask|f&mask)
}

func (c *Core) flag(f uint64) bool { return c.regs.Get(RFLAGS)&f != 0 }

func (c *Core) carry() uint64 {
	return c.regs.Get(RFLAGS) & FlagCF
}

// cond evaluates a condition code against the current flags.
func (c *Core) cond(cc uint8) bool {
	f := c.flags()
	cf, zf, sf, of, pf := f&FlagCF != 0, f&FlagZF != 0, f&FlagSF != 0, f&FlagOF != 0, f&FlagPF != 0
	var r bool
	switch cc >> 1 {
	case 0:
		r = of
	case 1:
		r = cf
	case 2:
		r = zf
	case 3:
		r = cf || zf
	case 4:
		r = sf
	case 5:
		r = pf
	case 6:
		r = sf != of
	case 7:
		r = zf || sf != of
	}
	if cc&1 != 0 {
		return !r
	}
	return r
}
