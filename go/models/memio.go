package models

import (
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// MemIO streams guest memory from Addr onward, ignoring protections.
type MemIO struct {
	Mem  *cpu.Mem
	Addr uint64
}

func (m *MemIO) Read(p []byte) (int, error) {
	if err := m.Mem.MemReadInto(p, m.Addr); err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}

func (m *MemIO) Write(p []byte) (int, error) {
	if err := m.Mem.MemWrite(m.Addr, p); err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}
