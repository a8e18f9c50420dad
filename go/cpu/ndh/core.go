// Package ndh is the back-end for the NDH toy architecture: a 16-bit,
// little-endian machine with eight general registers and three flags.
package ndh

import (
	"encoding/binary"

	"github.com/lunixbochs/transcorn/go/models/cpu"
)

var regEnums = []int{
	R0, R1, R2, R3, R4, R5, R6, R7,
	PC, BP, SP,
	ZF, AF, BF,
}

// NewMem returns an empty 16-bit NDH address space.
func NewMem() *cpu.Mem {
	return cpu.NewMem(16, binary.LittleEndian)
}

// Core is one NDH context bound to an address space.
type Core struct {
	Dis
	regs *cpu.Regs
	mem  *cpu.Mem
}

func NewCore(mem *cpu.Mem) *Core {
	return &Core{
		regs: cpu.NewRegs(16, regEnums),
		mem:  mem,
	}
}

func (c *Core) Regs() *cpu.Regs { return c.regs }
func (c *Core) PC() uint64 { return c.regs.Get(PC) }
func (c *Core) SetPC(pc uint64) { c.regs.Set(PC, pc) }
