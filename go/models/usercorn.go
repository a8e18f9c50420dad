package models

import (
	"encoding/binary"

	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/log"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// Usercorn is one emulated process: an engine, its address space, the
// loaded image and the kernel servicing its traps.
type Usercorn interface {
	cpu.Cpu
	Arch() *Arch
	OS() string
	Bits() uint
	ByteOrder() binary.ByteOrder
	Config() *Config
	Log() *log.Logger
	Engine() *dbt.Engine
	Dis(addr, size uint64, showBytes bool) (string, error)
	Symbolicate(addr uint64) (string, error)

	Brk(addr uint64) (uint64, error)
	Mmap(addr, size uint64, prot int, fixed bool, desc string) (uint64, error)
	MapStack(base, size uint64) error
	StrucAt(addr uint64) *StrucStream

	PackAddr(buf []byte, n uint64) ([]byte, error)
	UnpackAddr(buf []byte) uint64
	PushBytes(p []byte) (uint64, error)
	Push(n uint64) (uint64, error)
	Pop() (uint64, error)
	ReadRegs(reg []int) ([]uint64, error)
	RegDump() ([]RegVal, error)

	HookSysAdd(before, after SysCb) *SysHook
	HookSysDel(cb *SysHook)

	Exe() string
	Loader() Loader
	Base() uint64
	Entry() uint64
	BinEntry() uint64
	SetEntry(entry uint64)
	SetExit(exit uint64)

	PrefixPath(s string, force bool) string
	Run(args, env []string) error
	// Exit ends the run at the next block boundary with err as its result.
	Exit(err error)
}
