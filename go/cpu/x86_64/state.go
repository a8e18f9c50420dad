// Package x86_64 is the AMD64 back-end: a decoder for the general purpose
// integer instruction set in 64-bit mode and its semantics.
package x86_64

import (
	"encoding/binary"

	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// Register file enums. The first sixteen match the ModRM/REX encoding.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP
	RFLAGS
	FS_BASE
	GS_BASE
	// XMM0..XMM15 take two slots each, low quadword first
	XMM0
)

const xmmCount = 16

var regEnums = func() []int {
	out := []int{
		RAX, RCX, RDX, RBX, RSP, RBP, RSI, RDI,
		R8, R9, R10, R11, R12, R13, R14, R15,
		RIP, RFLAGS, FS_BASE, GS_BASE,
	}
	for i := 0; i < xmmCount*2; i++ {
		out = append(out, XMM0+i)
	}
	return out
}()

var RegNames = map[int]string{
	RAX: "rax", RCX: "rcx", RDX: "rdx", RBX: "rbx",
	RSP: "rsp", RBP: "rbp", RSI: "rsi", RDI: "rdi",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",
	RIP: "rip", RFLAGS: "rflags", FS_BASE: "fs_base", GS_BASE: "gs_base",
}

// bit 1 of rflags always reads as set, IF is set in user mode
const initialFlags = 0x202

// user addresses are canonical lower-half, 47 bits
const addressLimit = 1 << 47

// NewMem returns an empty 64-bit little-endian address space.
func NewMem() *cpu.Mem {
	mem := cpu.NewMem(64, binary.LittleEndian)
	mem.SetAddressLimit(addressLimit)
	return mem
}

// Core is one x86_64 context bound to an address space.
type Core struct {
	Decoder
	regs *cpu.Regs
	mem  *cpu.Mem
}

func NewCore(mem *cpu.Mem) *Core {
	c := &Core{
		regs: cpu.NewRegs(64, regEnums),
		mem:  mem,
	}
	c.regs.Set(RFLAGS, initialFlags)
	return c
}

func (c *Core) Regs() *cpu.Regs { return c.regs }
func (c *Core) PC() uint64 { return c.regs.Get(RIP) }
func (c *Core) SetPC(pc uint64) { c.regs.Set(RIP, pc) }

func sizeMask(size int) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return 1<<(uint(size)*8) - 1
}

func signBit(size int) uint64 {
	return 1 << (uint(size)*8 - 1)
}

// signExtend widens the low size bytes of v to 64 bits.
func signExtend(v uint64, size int) uint64 {
	shift := 64 - uint(size)*8
	return uint64(int64(v<<shift) >> shift)
}

func (c *Core) getReg(r Reg, size int, high bool) uint64 {
	v := c.regs.Get(int(r))
	if high {
		return (v >> 8) & 0xff
	}
	return v & sizeMask(size)
}

// setReg follows the 64-bit mode rules: 32-bit writes zero the upper half,
// 8 and 16-bit writes merge into the existing value.
func (c *Core) setReg(r Reg, size int, high bool, v uint64) {
	switch {
	case high:
		old := c.regs.Get(int(r))
		c.regs.Set(int(r), old&^0xff00|(v&0xff)<<8)
	case size == 4:
		c.regs.Set(int(r), v&0xffffffff)
	case size == 8:
		c.regs.Set(int(r), v)
	default:
		m := sizeMask(size)
		old := c.regs.Get(int(r))
		c.regs.Set(int(r), old&^m|v&m)
	}
}

func (c *Core) push(size int, v uint64) error {
	sp := c.regs.Get(RSP) - uint64(size)
	if err := c.mem.WriteUint(sp, size, cpu.PROT_WRITE, v); err != nil {
		return err
	}
	c.regs.Set(RSP, sp)
	return nil
}

func (c *Core) pop(size int) (uint64, error) {
	sp := c.regs.Get(RSP)
	v, err := c.mem.ReadUint(sp, size, cpu.PROT_READ)
	if err != nil {
		return 0, err
	}
	c.regs.Set(RSP, sp+uint64(size))
	return v, nil
}
