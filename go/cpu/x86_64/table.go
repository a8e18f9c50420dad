package x86_64

// operand templates
type argType uint8

const (
	aNone argType = iota
	aEb           // r/m8
	aEv           // r/m of the operand size
	aEw           // r/m16
	aEd           // r/m32
	aGb           // ModRM.reg, byte
	aGv           // ModRM.reg, operand size
	aM            // memory only, no access width
	aIb           // imm8 sign-extended to the operand size
	aIbu          // imm8 zero-extended (counts, vectors)
	aIw           // imm16 zero-extended
	aIz           // imm16 or imm32, sign-extended
	aIv           // imm16, imm32 or imm64 (mov r, imm)
	aJb           // rel8
	aJz           // rel32
	aAL
	aRAX // accumulator at operand size
	aCL
	aDX // port register
	aOne
	aZb // register in the low opcode bits, byte
	aZv // register in the low opcode bits, operand size
	aOb // moffs, byte
	aOv // moffs, operand size
	aXb // string source [rsi]
	aXv
	aYb // string destination [rdi]
	aYv
	aV   // xmm in ModRM.reg
	aW   // xmm or m128 in ModRM.rm
	aWq  // xmm or m64
	aU   // xmm in ModRM.rm, register only
)

type entryFlags uint16

const (
	fModRM entryFlags = 1 << iota
	// operand size defaults to 64 bits; 0x66 selects 16
	fDef64
	// always 64 bits, 0x66 is rejected
	fForce64
	// operand size is fixed at 8 bits by the opcode
	fByte
	// ModRM must encode a memory operand
	fMemOnly
	// 0x66 is rejected
	fNo66
	// takes no operand size or rep prefix beyond the one selecting it
	fSSE
)

type entry struct {
	op    Op
	args  [3]argType
	flags entryFlags
	cond  uint8
	// opcode extension in ModRM.reg selects the entry
	group *[8]entry
	// alternate encoding when 0xf3 is present
	f3 *entry
	// alternate encoding when 0x66 is present
	p66 *entry
}

var (
	oneByte [256]entry
	twoByte [256]entry
)

func e(op Op, flags entryFlags, args ...argType) entry {
	ent := entry{op: op, flags: flags}
	copy(ent.args[:], args)
	for _, a := range args {
		switch a {
		case aEb, aEv, aEw, aEd, aGb, aGv, aM:
			ent.flags |= fModRM
		case aV, aW, aWq, aU:
			ent.flags |= fModRM | fSSE
		}
	}
	return ent
}

// sse builds an entry selected by a mandatory prefix: none, 0x66 or 0xf3.
// A nil variant leaves that prefix undefined.
func sse(none, p66, f3 *entry) entry {
	ent := entry{f3: f3, p66: p66}
	if none != nil {
		ent.op, ent.args, ent.flags = none.op, none.args, none.flags
	}
	return ent
}

func ep(op Op, flags entryFlags, args ...argType) *entry {
	ent := e(op, flags, args...)
	return &ent
}

func group(g [8]entry) entry {
	return entry{group: &g, flags: fModRM}
}

func init() {
	t := &oneByte
	// the eight classic ALU ops share one layout
	alu := []Op{ADD, OR, ADC, SBB, AND, SUB, XOR, CMP}
	for i, op := range alu {
		base := i * 8
		t[base+0] = e(op, fByte, aEb, aGb)
		t[base+1] = e(op, 0, aEv, aGv)
		t[base+2] = e(op, fByte, aGb, aEb)
		t[base+3] = e(op, 0, aGv, aEv)
		t[base+4] = e(op, fByte, aAL, aIb)
		t[base+5] = e(op, 0, aRAX, aIz)
	}
	for i := 0; i < 8; i++ {
		t[0x50+i] = e(PUSH, fDef64, aZv)
		t[0x58+i] = e(POP, fDef64, aZv)
		t[0xb0+i] = e(MOV, fByte, aZb, aIb)
		t[0xb8+i] = e(MOV, 0, aZv, aIv)
	}
	for i := 1; i < 8; i++ {
		t[0x90+i] = e(XCHG, 0, aZv, aRAX)
	}
	// with REX.B this is xchg r8, rax; the decoder special cases nop and pause
	t[0x90] = e(XCHG, 0, aZv, aRAX)
	t[0x63] = e(MOVSXD, 0, aGv, aEd)
	t[0x68] = e(PUSH, fDef64, aIz)
	t[0x69] = e(IMUL, 0, aGv, aEv, aIz)
	t[0x6a] = e(PUSH, fDef64, aIb)
	t[0x6b] = e(IMUL, 0, aGv, aEv, aIb)
	t[0x6c] = e(INS, fByte, aYb, aDX)
	t[0x6d] = e(INS, 0, aYv, aDX)
	t[0x6e] = e(OUTS, fByte, aDX, aXb)
	t[0x6f] = e(OUTS, 0, aDX, aXv)
	for cc := 0; cc < 16; cc++ {
		t[0x70+cc] = e(JCC, fForce64, aJb)
		t[0x70+cc].cond = uint8(cc)
	}

	grp1 := func(flags entryFlags, dst, src argType) entry {
		var g [8]entry
		for i, op := range alu {
			g[i] = e(op, flags, dst, src)
		}
		return group(g)
	}
	t[0x80] = grp1(fByte, aEb, aIb)
	t[0x81] = grp1(0, aEv, aIz)
	t[0x83] = grp1(0, aEv, aIb)
	t[0x84] = e(TEST, fByte, aEb, aGb)
	t[0x85] = e(TEST, 0, aEv, aGv)
	t[0x86] = e(XCHG, fByte, aEb, aGb)
	t[0x87] = e(XCHG, 0, aEv, aGv)
	t[0x88] = e(MOV, fByte, aEb, aGb)
	t[0x89] = e(MOV, 0, aEv, aGv)
	t[0x8a] = e(MOV, fByte, aGb, aEb)
	t[0x8b] = e(MOV, 0, aGv, aEv)
	t[0x8d] = e(LEA, fMemOnly, aGv, aM)
	t[0x8f] = group([8]entry{0: e(POP, fDef64, aEv)})

	t[0x98] = e(CBW, 0)
	t[0x99] = e(CWD, 0)
	t[0x9c] = e(PUSHF, fDef64)
	t[0x9d] = e(POPF, fDef64)
	t[0x9e] = e(SAHF, 0)
	t[0x9f] = e(LAHF, 0)
	t[0xa0] = e(MOV, fByte, aAL, aOb)
	t[0xa1] = e(MOV, 0, aRAX, aOv)
	t[0xa2] = e(MOV, fByte, aOb, aAL)
	t[0xa3] = e(MOV, 0, aOv, aRAX)
	t[0xa4] = e(MOVS, fByte, aYb, aXb)
	t[0xa5] = e(MOVS, 0, aYv, aXv)
	t[0xa6] = e(CMPS, fByte, aXb, aYb)
	t[0xa7] = e(CMPS, 0, aXv, aYv)
	t[0xa8] = e(TEST, fByte, aAL, aIb)
	t[0xa9] = e(TEST, 0, aRAX, aIz)
	t[0xaa] = e(STOS, fByte, aYb, aAL)
	t[0xab] = e(STOS, 0, aYv, aRAX)
	t[0xac] = e(LODS, fByte, aAL, aXb)
	t[0xad] = e(LODS, 0, aRAX, aXv)
	t[0xae] = e(SCAS, fByte, aAL, aYb)
	t[0xaf] = e(SCAS, 0, aRAX, aYv)

	shifts := []Op{ROL, ROR, RCL, RCR, SHL, SHR, SHL, SAR}
	grp2 := func(flags entryFlags, dst, count argType) entry {
		var g [8]entry
		for i, op := range shifts {
			g[i] = e(op, flags, dst, count)
		}
		// /6 is an undocumented alias of shl
		g[6] = entry{}
		return group(g)
	}
	t[0xc0] = grp2(fByte, aEb, aIbu)
	t[0xc1] = grp2(0, aEv, aIbu)
	t[0xc2] = e(RET, fForce64, aIw)
	t[0xc3] = e(RET, fForce64)
	t[0xc6] = group([8]entry{0: e(MOV, fByte, aEb, aIb)})
	t[0xc7] = group([8]entry{0: e(MOV, 0, aEv, aIz)})
	t[0xc9] = e(LEAVE, fDef64)
	t[0xcc] = e(INT3, 0)
	t[0xcd] = e(INT, 0, aIbu)
	t[0xd0] = grp2(fByte, aEb, aOne)
	t[0xd1] = grp2(0, aEv, aOne)
	t[0xd2] = grp2(fByte, aEb, aCL)
	t[0xd3] = grp2(0, aEv, aCL)

	t[0xe0] = e(LOOPNE, fForce64, aJb)
	t[0xe1] = e(LOOPE, fForce64, aJb)
	t[0xe2] = e(LOOP, fForce64, aJb)
	t[0xe3] = e(JRCXZ, fForce64, aJb)
	t[0xe4] = e(IN, fByte, aAL, aIbu)
	t[0xe5] = e(IN, 0, aRAX, aIbu)
	t[0xe6] = e(OUT, fByte, aIbu, aAL)
	t[0xe7] = e(OUT, 0, aIbu, aRAX)
	t[0xe8] = e(CALL, fForce64, aJz)
	t[0xe9] = e(JMP, fForce64, aJz)
	t[0xeb] = e(JMP, fForce64, aJb)
	t[0xec] = e(IN, fByte, aAL, aDX)
	t[0xed] = e(IN, 0, aRAX, aDX)
	t[0xee] = e(OUT, fByte, aDX, aAL)
	t[0xef] = e(OUT, 0, aDX, aRAX)
	t[0xf4] = e(HLT, 0)
	t[0xf5] = e(CMC, 0)
	t[0xf6] = group([8]entry{
		0: e(TEST, fByte, aEb, aIb),
		2: e(NOT, fByte, aEb),
		3: e(NEG, fByte, aEb),
		4: e(MUL, fByte, aEb),
		5: e(IMUL, fByte, aEb),
		6: e(DIV, fByte, aEb),
		7: e(IDIV, fByte, aEb),
	})
	t[0xf7] = group([8]entry{
		0: e(TEST, 0, aEv, aIz),
		2: e(NOT, 0, aEv),
		3: e(NEG, 0, aEv),
		4: e(MUL, 0, aEv),
		5: e(IMUL, 0, aEv),
		6: e(DIV, 0, aEv),
		7: e(IDIV, 0, aEv),
	})
	t[0xf8] = e(CLC, 0)
	t[0xf9] = e(STC, 0)
	t[0xfa] = e(CLI, 0)
	t[0xfb] = e(STI, 0)
	t[0xfc] = e(CLD, 0)
	t[0xfd] = e(STD, 0)
	t[0xfe] = group([8]entry{
		0: e(INC, fByte, aEb),
		1: e(DEC, fByte, aEb),
	})
	t[0xff] = group([8]entry{
		0: e(INC, 0, aEv),
		1: e(DEC, 0, aEv),
		2: e(CALL, fForce64, aEv),
		4: e(JMP, fForce64, aEv),
		6: e(PUSH, fDef64, aEv),
	})

	t2 := &twoByte
	t2[0x05] = e(SYSCALL, 0)
	t2[0x0b] = e(UD2, 0)
	// f3 0f 1e fa
	t2[0x1e] = entry{f3: &entry{op: ENDBR64}}
	t2[0x1f] = group([8]entry{0: e(NOP, 0, aEv)})
	t2[0xa2] = e(CPUID, 0)
	for cc := 0; cc < 16; cc++ {
		t2[0x40+cc] = e(CMOVCC, 0, aGv, aEv)
		t2[0x40+cc].cond = uint8(cc)
		t2[0x80+cc] = e(JCC, fForce64, aJz)
		t2[0x80+cc].cond = uint8(cc)
		t2[0x90+cc] = e(SETCC, fByte, aEb)
		t2[0x90+cc].cond = uint8(cc)
	}
	t2[0xa3] = e(BT, 0, aEv, aGv)
	t2[0xa4] = e(SHLD, 0, aEv, aGv, aIbu)
	t2[0xa5] = e(SHLD, 0, aEv, aGv, aCL)
	t2[0xab] = e(BTS, 0, aEv, aGv)
	t2[0xac] = e(SHRD, 0, aEv, aGv, aIbu)
	t2[0xad] = e(SHRD, 0, aEv, aGv, aCL)
	t2[0xaf] = e(IMUL, 0, aGv, aEv)
	t2[0xb0] = e(CMPXCHG, fByte, aEb, aGb)
	t2[0xb1] = e(CMPXCHG, 0, aEv, aGv)
	t2[0xb3] = e(BTR, 0, aEv, aGv)
	t2[0xb6] = e(MOVZX, 0, aGv, aEb)
	t2[0xb7] = e(MOVZX, 0, aGv, aEw)
	ent := e(POPCNT, 0, aGv, aEv)
	t2[0xb8] = entry{f3: &ent}
	t2[0xba] = group([8]entry{
		4: e(BT, 0, aEv, aIbu),
		5: e(BTS, 0, aEv, aIbu),
		6: e(BTR, 0, aEv, aIbu),
		7: e(BTC, 0, aEv, aIbu),
	})
	t2[0xbb] = e(BTC, 0, aEv, aGv)
	tz, lz := e(TZCNT, 0, aGv, aEv), e(LZCNT, 0, aGv, aEv)
	t2[0xbc] = e(BSF, 0, aGv, aEv)
	t2[0xbc].f3 = &tz
	t2[0xbd] = e(BSR, 0, aGv, aEv)
	t2[0xbd].f3 = &lz
	t2[0xbe] = e(MOVSX, 0, aGv, aEb)
	t2[0xbf] = e(MOVSX, 0, aGv, aEw)
	t2[0xc0] = e(XADD, fByte, aEb, aGb)
	t2[0xc1] = e(XADD, 0, aEv, aGv)
	for i := 0; i < 8; i++ {
		t2[0xc8+i] = e(BSWAP, fNo66, aZv)
	}

	t2[0x10] = sse(ep(MOVUPS, 0, aV, aW), nil, nil)
	t2[0x11] = sse(ep(MOVUPS, 0, aW, aV), nil, nil)
	t2[0x28] = sse(ep(MOVAPS, 0, aV, aW), nil, nil)
	t2[0x29] = sse(ep(MOVAPS, 0, aW, aV), nil, nil)
	t2[0x6e] = sse(nil, ep(MOVD, 0, aV, aEv), nil)
	t2[0x6f] = sse(nil, ep(MOVDQA, 0, aV, aW), ep(MOVDQU, 0, aV, aW))
	t2[0x7e] = sse(nil, ep(MOVD, 0, aEv, aV), ep(MOVQ, 0, aV, aWq))
	t2[0x7f] = sse(nil, ep(MOVDQA, 0, aW, aV), ep(MOVDQU, 0, aW, aV))
	t2[0xd6] = sse(nil, ep(MOVQ, 0, aWq, aV), nil)
	t2[0xd7] = sse(nil, ep(PMOVMSKB, 0, aGv, aU), nil)
	for code, op := range map[byte]Op{
		0x74: PCMPEQB, 0x75: PCMPEQW, 0x76: PCMPEQD,
		0xdb: PAND, 0xdf: PANDN, 0xeb: POR, 0xef: PXOR,
	} {
		t2[code] = sse(nil, ep(op, 0, aV, aW), nil)
	}
}

// flags each op reads and writes; undefined results count as written
type flagUse struct{ read, written uint64 }

var opFlags = [opCount]flagUse{
	ADD: {0, arithFlags}, SUB: {0, arithFlags}, CMP: {0, arithFlags}, NEG: {0, arithFlags},
	ADC: {FlagCF, arithFlags}, SBB: {FlagCF, arithFlags},
	AND: {0, arithFlags}, OR: {0, arithFlags}, XOR: {0, arithFlags}, TEST: {0, arithFlags},
	INC: {0, arithFlags &^ FlagCF}, DEC: {0, arithFlags &^ FlagCF},
	MUL: {0, arithFlags}, IMUL: {0, arithFlags}, DIV: {0, arithFlags}, IDIV: {0, arithFlags},
	ROL: {0, FlagCF | FlagOF}, ROR: {0, FlagCF | FlagOF},
	RCL: {FlagCF, FlagCF | FlagOF}, RCR: {FlagCF, FlagCF | FlagOF},
	SHL: {0, arithFlags}, SHR: {0, arithFlags}, SAR: {0, arithFlags},
	SHLD: {0, arithFlags}, SHRD: {0, arithFlags},
	BT: {0, arithFlags}, BTS: {0, arithFlags}, BTR: {0, arithFlags}, BTC: {0, arithFlags},
	BSF: {0, arithFlags}, BSR: {0, arithFlags},
	TZCNT: {0, arithFlags}, LZCNT: {0, arithFlags}, POPCNT: {0, arithFlags},
	CMPXCHG: {0, arithFlags}, XADD: {0, arithFlags},
	PUSHF: {popfMask, 0}, POPF: {0, popfMask},
	LAHF: {arithFlags &^ FlagOF, 0}, SAHF: {0, arithFlags &^ FlagOF},
	CLC: {0, FlagCF}, STC: {0, FlagCF}, CMC: {FlagCF, FlagCF},
	CLD: {0, FlagDF}, STD: {0, FlagDF},
	LOOPE: {FlagZF, 0}, LOOPNE: {FlagZF, 0},
	MOVS: {FlagDF, 0}, STOS: {FlagDF, 0}, LODS: {FlagDF, 0},
	CMPS: {FlagDF, arithFlags}, SCAS: {FlagDF, arithFlags},
	INS: {FlagDF, 0}, OUTS: {FlagDF, 0},
}

// flags tested by each condition pair, indexed by cc>>1
var condFlags = [8]uint64{
	FlagOF, FlagCF, FlagZF, FlagCF | FlagZF,
	FlagSF, FlagPF, FlagSF | FlagOF, FlagZF | FlagSF | FlagOF,
}
