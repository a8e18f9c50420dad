package dbt

type OperandKind uint8

const (
	OperandReg OperandKind = iota
	OperandImm
	OperandMem
	OperandRel
)

// MemRef is a memory operand's addressing mode. Unused registers are "".
type MemRef struct {
	Seg   string
	Base  string
	Index string
	Scale int
	Disp  int64
}

// Operand is one decoded operand, named the way the disassembler prints it.
type Operand struct {
	Kind OperandKind
	// width in bytes, zero when no value is accessed (lea)
	Size int
	Reg  string
	// immediate, or the branch target for OperandRel
	Imm int64
	Mem MemRef
}
