package models

import (
	"encoding/binary"
)

// file load types
const (
	EXEC = iota
	DYN
)

type Loader interface {
	Arch() string
	Bits() int
	ByteOrder() binary.ByteOrder
	OS() string
	Entry() uint64
	Type() int
	Interp() string
	// Header returns the program header offset, raw bytes and count.
	Header() (uint64, []byte, int)
	Symbols() ([]Symbol, error)
	Segments() ([]SegmentData, error)
	DataSegment() (uint64, uint64)
}
