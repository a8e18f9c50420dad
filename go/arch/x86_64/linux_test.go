package x86_64

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/transcorn/go/cpu/x86_64"
	"github.com/lunixbochs/transcorn/go/dbt"
	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

func newEngine(t *testing.T, code []byte) *dbt.Engine {
	mem := Arch.NewMem()
	require.NoError(t, mem.MemMapProt(0x1000, cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_EXEC))
	require.NoError(t, mem.MemWrite(0x1000, code))
	require.NoError(t, mem.MemMapProt(0x3000, cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_WRITE))
	return dbt.NewEngine(Arch.NewCore(mem), mem, nil)
}

func TestArch(t *testing.T) {
	enums := Arch.RegEnums()
	assert.Len(t, enums, len(Arch.Regs))
	assert.Equal(t, x86_64.RAX, enums[0])
	assert.NotNil(t, Arch.OS["linux"])

	insns, err := Arch.Disas([]byte{0x48, 0x89, 0xd8, 0x0f, 0x05}, 0x1000)
	require.NoError(t, err)
	require.Len(t, insns, 2)
	assert.Equal(t, "syscall", insns[1].Mnemonic())
}

func TestLinuxABI(t *testing.T) {
	e := newEngine(t, nil)
	for i, reg := range AbiRegs {
		e.RegWrite(reg, uint64(i+1))
	}
	e.RegWrite(x86_64.RAX, 39)

	var abi LinuxABI
	num, ok := abi.Syscall(e, x86_64.SyscallTrap)
	assert.True(t, ok)
	assert.Equal(t, 39, num)
	assert.Equal(t, "getpid", abi.Name(num))
	_, ok = abi.Syscall(e, 3)
	assert.False(t, ok)

	args, err := abi.Args(e, 6)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, args)
	_, err = abi.Args(e, 7)
	assert.Error(t, err)

	require.NoError(t, abi.Return(e, 99))
	rax, _ := e.RegRead(x86_64.RAX)
	assert.EqualValues(t, 99, rax)
}

func TestSyscallNames(t *testing.T) {
	k := NewLinuxKernel(nil)
	// every call the kernel implements should be reachable by number
	names := make(map[string]bool)
	for _, name := range linuxSyscalls {
		names[name] = true
	}
	for _, name := range []string{"read", "write", "openat", "exit_group", "arch_prctl", "clock_gettime", "getrandom"} {
		assert.True(t, names[name], name)
		assert.NotNil(t, co.Lookup(k, name), name)
	}
}

func TestArchPrctl(t *testing.T) {
	e := newEngine(t, nil)
	k := NewLinuxKernel(nil)
	sys := co.Lookup(k, "arch_prctl")
	require.NotNil(t, sys)

	ret, err := sys.Call(e, []uint64{ARCH_SET_FS, 0x7fff0000})
	require.NoError(t, err)
	assert.EqualValues(t, 0, ret)
	fs, _ := e.RegRead(x86_64.FS_BASE)
	assert.EqualValues(t, 0x7fff0000, fs)

	ret, err = sys.Call(e, []uint64{ARCH_GET_FS, 0x3000})
	require.NoError(t, err)
	assert.EqualValues(t, 0, ret)
	data, err := e.MemRead(0x3000, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0xff, 0x7f, 0, 0, 0, 0}, data)

	ret, _ = sys.Call(e, []uint64{0x9999, 0})
	assert.Equal(t, co.Errno(co.EINVAL), ret)
}

// mov eax, 39; syscall; ud2
func TestLinuxTrapThroughEngine(t *testing.T) {
	e := newEngine(t, []byte{0xb8, 0x27, 0, 0, 0, 0x0f, 0x05, 0x0f, 0x0b})
	b := co.NewBridge(LinuxABI{}, NewLinuxKernel(nil))
	e.SetTrapHandler(b)
	err := e.Start(0x1000, 0)
	require.IsType(t, &dbt.InvalidOpcode{}, err)
	rax, _ := e.RegRead(x86_64.RAX)
	assert.NotZero(t, rax)
	assert.Less(t, rax, uint64(1<<31))
	assert.EqualValues(t, 1, b.Count)
}
