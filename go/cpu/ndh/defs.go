package ndh

const (
	R0 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	PC
	BP
	SP

	ZF
	AF
	BF
)

// registers an operand byte can name
const maxOperandReg = SP

var regNames = map[int]string{PC: "pc", SP: "sp", BP: "bp"}

const (
	OP_PUSH = 0x01
	OP_POP  = 0x03

	OP_MOV = 0x04

	OP_ADD = 0x06
	OP_SUB = 0x07
	OP_MUL = 0x08
	OP_DIV = 0x09
	OP_INC = 0x0A
	OP_DEC = 0x0B

	OP_OR  = 0x0C
	OP_AND = 0x0D
	OP_XOR = 0x0E
	OP_NOT = 0x0F

	OP_JZ   = 0x10
	OP_JNZ  = 0x11
	OP_JMPS = 0x16
	OP_TEST = 0x17
	OP_CMP  = 0x18
	OP_CALL = 0x19
	OP_RET  = 0x1A
	OP_JMPL = 0x1B
	OP_END  = 0x1C
	OP_XCHG = 0x1D
	OP_JA   = 0x1E
	OP_JB   = 0x1F

	OP_SYSCALL = 0x30
	OP_NOP     = 0x02
)

const (
	OP_FLAG_REG_REG                 = 0x00
	OP_FLAG_REG_DIRECT08            = 0x01
	OP_FLAG_REG_DIRECT16            = 0x02
	OP_FLAG_REG                     = 0x03
	OP_FLAG_DIRECT16                = 0x04
	OP_FLAG_DIRECT08                = 0x05
	OP_FLAG_REGINDIRECT_REG         = 0x06
	OP_FLAG_REGINDIRECT_DIRECT08    = 0x07
	OP_FLAG_REGINDIRECT_DIRECT16    = 0x08
	OP_FLAG_REGINDIRECT_REGINDIRECT = 0x09
	OP_FLAG_REG_REGINDIRECT         = 0x0a
)

// longest encoding: opcode, flag, register, 16-bit immediate
const MaxInsnLen = 5

// opcode describes one mnemonic. Opcodes with flagged set read an
// addressing mode byte and take arity operands laid out by flagArgs.
// The rest have fixed operands.
type opcode struct {
	name    string
	fixed   []argKind
	flagged bool
	arity   int
}

func withMode(name string, arity int) opcode {
	return opcode{name: name, flagged: true, arity: arity}
}

func fixed(name string, kinds ...argKind) opcode {
	return opcode{name: name, fixed: kinds}
}

var opcodes = map[byte]opcode{
	OP_PUSH: withMode("push", 1),
	OP_CALL: withMode("call", 1),
	OP_MOV:  withMode("mov", 2),
	OP_ADD:  withMode("add", 2),
	OP_SUB:  withMode("sub", 2),
	OP_MUL:  withMode("mul", 2),
	OP_DIV:  withMode("div", 2),
	OP_OR:   withMode("or", 2),
	OP_AND:  withMode("and", 2),
	OP_XOR:  withMode("xor", 2),
	OP_CMP:  withMode("cmp", 2),

	OP_POP:  fixed("pop", argReg),
	OP_INC:  fixed("inc", argReg),
	OP_DEC:  fixed("dec", argReg),
	OP_NOT:  fixed("not", argReg),
	OP_TEST: fixed("test", argReg, argReg),
	OP_XCHG: fixed("xchg", argReg, argReg),

	OP_JMPS: fixed("jmps", argU8),
	OP_JMPL: fixed("jmpl", argU16),
	OP_JZ:   fixed("jz", argU16),
	OP_JNZ:  fixed("jnz", argU16),
	OP_JA:   fixed("ja", argU16),
	OP_JB:   fixed("jb", argU16),

	OP_NOP:     fixed("nop"),
	OP_RET:     fixed("ret"),
	OP_END:     fixed("end"),
	OP_SYSCALL: fixed("syscall"),
}
