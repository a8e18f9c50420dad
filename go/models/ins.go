package models

// Ins is a decoded instruction as the disassembler and trace printers see it.
type Ins interface {
	Addr() uint64
	Bytes() []byte
	Mnemonic() string
	OpStr() string
}
