package models

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"

	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type StrucStream struct {
	Stream io.ReadWriter
	Order  binary.ByteOrder
}

// NewStrucStream packs and unpacks structs in guest memory starting at addr.
func NewStrucStream(mem *cpu.Mem, addr uint64) *StrucStream {
	return &StrucStream{Stream: &MemIO{Mem: mem, Addr: addr}, Order: mem.Order()}
}

func (s *StrucStream) Pack(i interface{}) error {
	return struc.PackWithOrder(s.Stream, i, s.Order)
}

func (s *StrucStream) Unpack(i interface{}) error {
	return struc.UnpackWithOrder(s.Stream, i, s.Order)
}

func (s *StrucStream) Sizeof(i interface{}) (int, error) {
	return struc.Sizeof(i)
}
