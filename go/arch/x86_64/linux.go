package x86_64

import (
	"github.com/lunixbochs/transcorn/go/cpu/x86_64"
	"github.com/lunixbochs/transcorn/go/dbt"
	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/kernel/linux"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

var AbiRegs = []int{x86_64.RDI, x86_64.RSI, x86_64.RDX, x86_64.R10, x86_64.R8, x86_64.R9}

// LinuxABI is the syscall instruction convention: number in rax, up to six
// arguments, result in rax.
type LinuxABI struct{}

func (LinuxABI) Syscall(c cpu.Cpu, kind int) (int, bool) {
	if kind != x86_64.SyscallTrap {
		return 0, false
	}
	num, err := c.RegRead(x86_64.RAX)
	if err != nil {
		return 0, false
	}
	return int(num), true
}

func (LinuxABI) Name(num int) string { return linuxSyscalls[num] }

func (LinuxABI) Args(c cpu.Cpu, n int) ([]uint64, error) {
	return co.RegArgs(c, AbiRegs, n)
}

func (LinuxABI) Return(c cpu.Cpu, ret uint64) error {
	return c.RegWrite(x86_64.RAX, ret)
}

const (
	ARCH_SET_GS = 0x1001
	ARCH_SET_FS = 0x1002
	ARCH_GET_FS = 0x1003
	ARCH_GET_GS = 0x1004
)

type LinuxKernel struct {
	*linux.LinuxKernel
}

func NewLinuxKernel(u models.Usercorn) *LinuxKernel {
	k := &LinuxKernel{LinuxKernel: linux.DefaultKernel(u, "x86_64")}
	k.UsercornInit(k, u)
	return k
}

func (k *LinuxKernel) ArchPrctl(code int, addr uint64) uint64 {
	var reg int
	switch code {
	case ARCH_SET_FS, ARCH_GET_FS:
		reg = x86_64.FS_BASE
	case ARCH_SET_GS, ARCH_GET_GS:
		reg = x86_64.GS_BASE
	default:
		return co.Errno(co.EINVAL)
	}
	if code == ARCH_SET_FS || code == ARCH_SET_GS {
		if err := k.Cpu.RegWrite(reg, addr); err != nil {
			return co.Errno(co.EINVAL)
		}
		return 0
	}
	val, err := k.Cpu.RegRead(reg)
	if err != nil {
		return co.Errno(co.EINVAL)
	}
	word, _ := cpu.PackUint(k.Mem().Order(), 8, nil, val)
	if err := co.NewBuf(k, addr).Pack(word); err != nil {
		return co.Errno(co.EFAULT)
	}
	return 0
}

func LinuxInit(u models.Usercorn, args, env []string) error {
	if err := linux.MapStack(u); err != nil {
		return err
	}
	return linux.StackInit(u, args, env)
}

func LinuxTrap(u models.Usercorn) (dbt.TrapHandler, error) {
	return co.NewProcessBridge(u, LinuxABI{}, NewLinuxKernel(u)), nil
}

func init() {
	Arch.RegisterOS(&models.OS{Name: "linux", Init: LinuxInit, NewTrap: LinuxTrap})
}
