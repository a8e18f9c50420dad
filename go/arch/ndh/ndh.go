package ndh

import (
	"github.com/lunixbochs/transcorn/go/cpu/ndh"
	"github.com/lunixbochs/transcorn/go/dbt"
	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/kernel/linux"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

var NdhRegs = []int{ndh.R1, ndh.R2, ndh.R3, ndh.R4, ndh.R5, ndh.R6}

var sysNums = map[int]string{
	0x01: "exit",
	0x02: "open",
	0x03: "read",
	0x04: "write",
	0x05: "close",
	0x06: "setuid",
	0x07: "setgid",
	0x08: "dup2",
	0x09: "send",
	0x0a: "recv",
	0x0b: "socket",
	0x0c: "listen",
	0x0d: "bind",
	0x0e: "accept",
	0x0f: "chdir",
	0x10: "chmod",
	0x11: "lseek",
	0x12: "getpid",
	0x13: "getuid",
	0x14: "pause",
}

// ABI is the ndh syscall convention: number in r0, arguments in r1-r6,
// result in r0.
type ABI struct{}

func (ABI) Syscall(c cpu.Cpu, kind int) (int, bool) {
	if kind != 0 {
		return 0, false
	}
	num, err := c.RegRead(ndh.R0)
	if err != nil {
		return 0, false
	}
	return int(num), true
}

func (ABI) Name(num int) string { return sysNums[num] }

func (ABI) Args(c cpu.Cpu, n int) ([]uint64, error) {
	return co.RegArgs(c, NdhRegs, n)
}

func (ABI) Return(c cpu.Cpu, ret uint64) error {
	return c.RegWrite(ndh.R0, ret)
}

type NdhKernel struct {
	*linux.LinuxKernel
}

func NewKernel(u models.Usercorn) *NdhKernel {
	k := &NdhKernel{LinuxKernel: linux.DefaultKernel(u, "ndh")}
	k.UsercornInit(k, u)
	return k
}

const stackTop = 0x8000

func NdhInit(u models.Usercorn, args, env []string) error {
	if err := u.MapStack(0, stackTop); err != nil {
		return err
	}
	sp, err := u.RegRead(ndh.SP)
	if err != nil {
		return err
	}
	return u.RegWrite(ndh.BP, sp)
}

func NdhTrap(u models.Usercorn) (dbt.TrapHandler, error) {
	return co.NewProcessBridge(u, ABI{}, NewKernel(u)), nil
}

func init() {
	Arch.RegisterOS(&models.OS{Name: "ndh", Init: NdhInit, NewTrap: NdhTrap})
}
