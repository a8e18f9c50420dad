package x86_64

import (
	"encoding/binary"

	"github.com/lunixbochs/transcorn/go/dbt"
)

const maxInsnLen = 15

// Decoder decodes 64-bit mode x86 machine code. The zero value is ready to use.
type Decoder struct{}

func (Decoder) MaxInsnLen() int { return maxInsnLen }

type decodeState struct {
	code []byte
	addr uint64
	pos  int
}

func (d *decodeState) need(n int) error {
	if d.pos+n > maxInsnLen {
		return dbt.Invalid(d.addr, maxInsnLen, "instruction longer than %d bytes", maxInsnLen)
	}
	if have := len(d.code) - d.pos; have < n {
		return dbt.NeedMore(d.addr, n-have)
	}
	return nil
}

// imm reads a little-endian value of size bytes, sign-extended.
func (d *decodeState) imm(size int) (int64, error) {
	if err := d.need(size); err != nil {
		return 0, err
	}
	p := d.code[d.pos:]
	d.pos += size
	switch size {
	case 1:
		return int64(int8(p[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(p))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(p))), nil
	}
	return int64(binary.LittleEndian.Uint64(p)), nil
}

func byteReg(r Reg, rex byte, size int) Operand {
	if size == 1 && rex == 0 && r >= 4 && r < 8 {
		return Operand{Kind: KindReg, Size: 1, Reg: r - 4, High: true}
	}
	return Operand{Kind: KindReg, Size: size, Reg: r}
}

func isStringOp(op Op) bool {
	switch op {
	case MOVS, CMPS, STOS, LODS, SCAS, INS, OUTS:
		return true
	}
	return false
}

var (
	nopEntry   = entry{op: NOP}
	pauseEntry = entry{op: PAUSE}
)

// Decode decodes one instruction from the front of code. It never reads
// past the bytes the encoding needs.
func (Decoder) Decode(code []byte, addr uint64) (dbt.Insn, error) {
	d := &decodeState{code: code, addr: addr}
	var (
		rex       byte
		rep       byte
		lock      bool
		opsize16  bool
		addr32    bool
		lockPos   int
		opsizePos int
		seg       = RegNone
	)
prefixes:
	for {
		if err := d.need(1); err != nil {
			return nil, err
		}
		b := code[d.pos]
		switch {
		case b == 0xf0:
			lock, lockPos = true, d.pos
		case b == 0xf2 || b == 0xf3:
			rep = b
		case b == 0x26 || b == 0x2e || b == 0x36 || b == 0x3e:
			// ignored in 64-bit mode
			seg = RegNone
		case b == 0x64:
			seg = RegFS
		case b == 0x65:
			seg = RegGS
		case b == 0x66:
			opsize16, opsizePos = true, d.pos
		case b == 0x67:
			addr32 = true
		case b&0xf0 == 0x40:
			// REX only counts immediately before the opcode
			rex = b
			d.pos++
			continue
		default:
			break prefixes
		}
		rex = 0
		d.pos++
	}

	opPos := d.pos
	opcode := code[d.pos]
	d.pos++
	ent := &oneByte[opcode]
	if opcode == 0x0f {
		if err := d.need(1); err != nil {
			return nil, err
		}
		opPos = d.pos
		opcode = code[d.pos]
		d.pos++
		ent = &twoByte[opcode]
	} else if opcode == 0x90 && rex&1 == 0 {
		ent = &nopEntry
		if rep == 0xf3 {
			ent = &pauseEntry
		}
	}
	if rep == 0xf3 && ent.f3 != nil {
		ent = ent.f3
		rep = 0
	}
	if opsize16 && ent.p66 != nil {
		ent = ent.p66
		opsize16 = false
	}
	if ent.op == ENDBR64 {
		if err := d.need(1); err != nil {
			return nil, err
		}
		if code[d.pos] != 0xfa {
			return nil, dbt.Invalid(addr, d.pos, "unsupported 0f 1e form")
		}
		d.pos++
	}

	var modrm byte
	modrmPos := -1
	grouped := false
	if ent.flags&fModRM != 0 {
		if err := d.need(1); err != nil {
			return nil, err
		}
		modrmPos = d.pos
		modrm = code[d.pos]
		d.pos++
		if ent.group != nil {
			ent = &ent.group[(modrm>>3)&7]
			grouped = true
		}
	}
	if ent.op == opInvalid {
		if grouped {
			return nil, dbt.Invalid(addr, modrmPos, "undefined opcode extension /%d", (modrm>>3)&7)
		}
		return nil, dbt.Invalid(addr, opPos, "unsupported opcode %#02x", opcode)
	}
	if ent.flags&fSSE != 0 && (opsize16 || rep != 0) {
		return nil, dbt.Invalid(addr, opPos, "unsupported prefix on %s", ent.op)
	}

	size := 4
	switch {
	case ent.flags&fByte != 0:
		size = 1
	case ent.flags&fForce64 != 0:
		if opsize16 {
			return nil, dbt.Invalid(addr, opsizePos, "operand size prefix on %s", ent.op)
		}
		size = 8
	case ent.flags&fDef64 != 0:
		size = 8
		if opsize16 && rex&8 == 0 {
			size = 2
		}
	case rex&8 != 0:
		size = 8
	case opsize16:
		size = 2
	}
	if ent.flags&fNo66 != 0 && opsize16 {
		return nil, dbt.Invalid(addr, opsizePos, "operand size prefix on %s", ent.op)
	}
	switch ent.op {
	case IN, OUT, INS, OUTS:
		if size == 8 {
			size = 4
		}
	}
	addrSize := 8
	if addr32 {
		addrSize = 4
	}

	// ModRM operands
	var rm, reg Operand
	if modrmPos >= 0 {
		mod := modrm >> 6
		reg = byteReg(Reg((modrm>>3)&7|(rex&4)<<1), rex, size)
		low := modrm & 7
		if mod == 3 {
			if ent.flags&fMemOnly != 0 {
				return nil, dbt.Invalid(addr, modrmPos, "%s needs a memory operand", ent.op)
			}
			rm = byteReg(Reg(low|(rex&1)<<3), rex, size)
		} else {
			m := Mem{Seg: seg, Base: RegNone, Index: RegNone}
			dispSize := 0
			switch {
			case low == 4:
				if err := d.need(1); err != nil {
					return nil, err
				}
				sib := code[d.pos]
				d.pos++
				if idx := (sib>>3)&7 | (rex&2)<<2; idx != 4 {
					m.Index = Reg(idx)
					m.Scale = 1 << (sib >> 6)
				}
				if sib&7 == 5 && mod == 0 {
					dispSize = 4
				} else {
					m.Base = Reg(sib&7 | (rex&1)<<3)
				}
			case low == 5 && mod == 0:
				m.Base = RegRIP
				dispSize = 4
			default:
				m.Base = Reg(low | (rex&1)<<3)
			}
			switch mod {
			case 1:
				dispSize = 1
			case 2:
				dispSize = 4
			}
			if dispSize > 0 {
				disp, err := d.imm(dispSize)
				if err != nil {
					return nil, err
				}
				m.Disp = disp
			}
			rm = Operand{Kind: KindMem, Size: size, Mem: m}
		}
	}

	args := make([]Operand, 0, 3)
	for _, a := range ent.args {
		var arg Operand
		switch a {
		case aNone:
			continue
		case aEb, aEv, aEw, aEd:
			w := size
			switch a {
			case aEb:
				w = 1
			case aEw:
				w = 2
			case aEd:
				w = 4
			}
			arg = rm
			if arg.Kind == KindReg {
				arg = byteReg(Reg(modrm&7|(rex&1)<<3), rex, w)
			}
			arg.Size = w
		case aM:
			arg = rm
			arg.Size = 0
		case aGb, aGv:
			arg = reg
		case aIb, aIz, aIv:
			n := 1
			if a == aIz {
				n = 4
				if size == 2 {
					n = 2
				}
			} else if a == aIv {
				n = size
			}
			v, err := d.imm(n)
			if err != nil {
				return nil, err
			}
			arg = Operand{Kind: KindImm, Size: size, Imm: v}
		case aIbu, aIw:
			n := 1
			if a == aIw {
				n = 2
			}
			v, err := d.imm(n)
			if err != nil {
				return nil, err
			}
			arg = Operand{Kind: KindImm, Size: n, Imm: int64(uint64(v) & sizeMask(n))}
		case aJb, aJz:
			n := 1
			if a == aJz {
				n = 4
			}
			v, err := d.imm(n)
			if err != nil {
				return nil, err
			}
			arg = Operand{Kind: KindRel, Size: 8, Imm: v}
		case aAL:
			arg = Operand{Kind: KindReg, Size: 1, Reg: RAX}
		case aRAX:
			arg = Operand{Kind: KindReg, Size: size, Reg: RAX}
		case aCL:
			arg = Operand{Kind: KindReg, Size: 1, Reg: RCX}
		case aDX:
			arg = Operand{Kind: KindReg, Size: 2, Reg: RDX}
		case aOne:
			arg = Operand{Kind: KindImm, Size: 1, Imm: 1}
		case aZb, aZv:
			arg = byteReg(Reg(opcode&7|(rex&1)<<3), rex, size)
		case aOb, aOv:
			v, err := d.imm(addrSize)
			if err != nil {
				return nil, err
			}
			m := Mem{Seg: seg, Base: RegNone, Index: RegNone, Disp: int64(uint64(v) & sizeMask(addrSize))}
			arg = Operand{Kind: KindMem, Size: size, Mem: m}
		case aV:
			arg = Operand{Kind: KindXmm, Size: 16, Reg: Reg((modrm>>3)&7 | (rex&4)<<1)}
		case aW, aWq, aU:
			w := 16
			if a == aWq {
				w = 8
			}
			if rm.Kind == KindMem {
				if a == aU {
					return nil, dbt.Invalid(addr, modrmPos, "%s needs a register operand", ent.op)
				}
				arg = rm
				arg.Size = w
			} else {
				arg = Operand{Kind: KindXmm, Size: w, Reg: Reg(modrm&7 | (rex&1)<<3)}
			}
		case aXb, aXv:
			arg = Operand{Kind: KindMem, Size: size, Mem: Mem{Seg: seg, Base: RSI, Index: RegNone}}
		case aYb, aYv:
			// es can't be overridden
			arg = Operand{Kind: KindMem, Size: size, Mem: Mem{Seg: RegNone, Base: RDI, Index: RegNone}}
		}
		args = append(args, arg)
	}

	if lock && (!ent.op.lockable() || len(args) == 0 || args[0].Kind != KindMem) {
		return nil, dbt.Invalid(addr, lockPos, "lock prefix not allowed on %s", ent.op)
	}
	if !isStringOp(ent.op) {
		rep = 0
	}
	return &Insn{
		addr:     addr,
		raw:      append([]byte(nil), code[:d.pos]...),
		Op:       ent.op,
		Cond:     ent.cond,
		Args:     args,
		Size:     size,
		AddrSize: addrSize,
		Rep:      rep,
		Lock:     lock,
	}, nil
}
