package x86_64

import (
	"encoding/binary"

	"github.com/lunixbochs/transcorn/go/cpu/x86_64"
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

var Arch = &models.Arch{
	Name:  "x86_64",
	Bits:  64,
	Order: binary.LittleEndian,

	Dis:     x86_64.Decoder{},
	NewMem:  x86_64.NewMem,
	NewCore: func(mem *cpu.Mem) dbt.Core { return x86_64.NewCore(mem) },

	PC: x86_64.RIP,
	SP: x86_64.RSP,
	Regs: map[string]int{
		"rax":     x86_64.RAX,
		"rbx":     x86_64.RBX,
		"rcx":     x86_64.RCX,
		"rdx":     x86_64.RDX,
		"rsi":     x86_64.RSI,
		"rdi":     x86_64.RDI,
		"rbp":     x86_64.RBP,
		"rsp":     x86_64.RSP,
		"r8":      x86_64.R8,
		"r9":      x86_64.R9,
		"r10":     x86_64.R10,
		"r11":     x86_64.R11,
		"r12":     x86_64.R12,
		"r13":     x86_64.R13,
		"r14":     x86_64.R14,
		"r15":     x86_64.R15,
		"rip":     x86_64.RIP,
		"rflags":  x86_64.RFLAGS,
		"fs_base": x86_64.FS_BASE,
		"gs_base": x86_64.GS_BASE,
	},
	DefaultRegs: []string{
		"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	},
}
