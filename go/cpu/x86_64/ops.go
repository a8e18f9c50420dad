package x86_64

// Op is the closed set of instructions this back-end decodes.
type Op uint8

const (
	opInvalid Op = iota

	ADD
	OR
	ADC
	SBB
	AND
	SUB
	XOR
	CMP
	TEST
	INC
	DEC
	NOT
	NEG
	MUL
	IMUL
	DIV
	IDIV

	ROL
	ROR
	RCL
	RCR
	SHL
	SHR
	SAR
	SHLD
	SHRD

	BT
	BTS
	BTR
	BTC
	BSF
	BSR
	TZCNT
	LZCNT
	POPCNT
	BSWAP

	MOV
	MOVZX
	MOVSX
	MOVSXD
	LEA
	XCHG
	CMPXCHG
	XADD
	CMOVCC
	SETCC

	PUSH
	POP
	PUSHF
	POPF
	LAHF
	SAHF
	CBW
	CWD
	CLC
	STC
	CMC
	CLD
	STD
	LEAVE

	JMP
	JCC
	CALL
	RET
	LOOP
	LOOPE
	LOOPNE
	JRCXZ

	MOVS
	CMPS
	STOS
	LODS
	SCAS

	SYSCALL
	INT
	INT3
	UD2
	HLT
	IN
	OUT
	INS
	OUTS
	CLI
	STI
	NOP
	PAUSE
	ENDBR64
	CPUID

	// SSE2 integer moves and logic on the xmm registers
	MOVAPS
	MOVUPS
	MOVDQA
	MOVDQU
	MOVD
	MOVQ
	PXOR
	POR
	PAND
	PANDN
	PCMPEQB
	PCMPEQW
	PCMPEQD
	PMOVMSKB

	opCount
)

var opNames = [opCount]string{
	ADD: "add", OR: "or", ADC: "adc", SBB: "sbb", AND: "and", SUB: "sub", XOR: "xor", CMP: "cmp",
	TEST: "test", INC: "inc", DEC: "dec", NOT: "not", NEG: "neg",
	MUL: "mul", IMUL: "imul", DIV: "div", IDIV: "idiv",
	ROL: "rol", ROR: "ror", RCL: "rcl", RCR: "rcr", SHL: "shl", SHR: "shr", SAR: "sar",
	SHLD: "shld", SHRD: "shrd",
	BT: "bt", BTS: "bts", BTR: "btr", BTC: "btc", BSF: "bsf", BSR: "bsr",
	TZCNT: "tzcnt", LZCNT: "lzcnt", POPCNT: "popcnt", BSWAP: "bswap",
	MOV: "mov", MOVZX: "movzx", MOVSX: "movsx", MOVSXD: "movsxd", LEA: "lea",
	XCHG: "xchg", CMPXCHG: "cmpxchg", XADD: "xadd", CMOVCC: "cmov", SETCC: "set",
	PUSH: "push", POP: "pop", PUSHF: "pushfq", POPF: "popfq", LAHF: "lahf", SAHF: "sahf",
	CBW: "cbw", CWD: "cwd", CLC: "clc", STC: "stc", CMC: "cmc", CLD: "cld", STD: "std",
	LEAVE: "leave",
	JMP: "jmp", JCC: "j", CALL: "call", RET: "ret",
	LOOP: "loop", LOOPE: "loope", LOOPNE: "loopne", JRCXZ: "jrcxz",
	MOVS: "movs", CMPS: "cmps", STOS: "stos", LODS: "lods", SCAS: "scas",
	SYSCALL: "syscall", INT: "int", INT3: "int3", UD2: "ud2", HLT: "hlt",
	IN: "in", OUT: "out", INS: "ins", OUTS: "outs", CLI: "cli", STI: "sti",
	NOP: "nop", PAUSE: "pause", ENDBR64: "endbr64", CPUID: "cpuid",
	MOVAPS: "movaps", MOVUPS: "movups", MOVDQA: "movdqa", MOVDQU: "movdqu", MOVD: "movd", MOVQ: "movq",
	PXOR: "pxor", POR: "por", PAND: "pand", PANDN: "pandn",
	PCMPEQB: "pcmpeqb", PCMPEQW: "pcmpeqw", PCMPEQD: "pcmpeqd", PMOVMSKB: "pmovmskb",
}

func (o Op) String() string {
	if o < opCount && opNames[o] != "" {
		return opNames[o]
	}
	return "(bad)"
}

// condition codes in encoding order, named the way Intel's XED prints them
var condNames = [16]string{"o", "no", "b", "nb", "z", "nz", "be", "nbe", "s", "ns", "p", "np", "l", "nl", "le", "nle"}

// lockable with a memory destination
func (o Op) lockable() bool {
	switch o {
	case ADD, ADC, AND, BTC, BTR, BTS, CMPXCHG, DEC, INC, NEG, NOT, OR, SBB, SUB, XOR, XADD, XCHG:
		return true
	}
	return false
}
