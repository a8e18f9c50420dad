package common

import (
	enchex "encoding/hex"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/transcorn/go/cpu/x86_64"
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type testKernel struct {
	KernelBase
	writes   [][]byte
	paths    []string
	exitCode int
}

func (k *testKernel) Write(fd Fd, buf Buf, size Len) uint64 {
	data := make([]byte, size)
	if err := buf.Unpack(data); err != nil {
		return Errno(EFAULT)
	}
	k.writes = append(k.writes, data)
	return uint64(size)
}

func (k *testKernel) Read(fd Fd, buf Obuf, size Len) uint64 {
	if err := buf.Pack([]byte("abc")); err != nil {
		return Errno(EFAULT)
	}
	return 3
}

func (k *testKernel) Open(path string, flags, mode int) int64 {
	k.paths = append(k.paths, path)
	return -2
}

func (k *testKernel) Exit(code int) uint64 {
	k.exitCode = code
	return 44
}

func (k *testKernel) SetTidAddress(p Ptr) int { return 1 }

var testNames = map[int]string{0: "read", 1: "write", 2: "open", 60: "exit", 218: "set_tid_address"}

type testABI struct{}

func (testABI) Syscall(c cpu.Cpu, kind int) (int, bool) {
	if kind != x86_64.SyscallTrap {
		return 0, false
	}
	num, _ := c.RegRead(x86_64.RAX)
	return int(num), true
}

func (testABI) Name(num int) string { return testNames[num] }

func (testABI) Args(c cpu.Cpu, n int) ([]uint64, error) {
	return RegArgs(c, []int{x86_64.RDI, x86_64.RSI, x86_64.RDX, x86_64.R10, x86_64.R8, x86_64.R9}, n)
}

func (testABI) Return(c cpu.Cpu, ret uint64) error {
	return c.RegWrite(x86_64.RAX, ret)
}

const (
	codeAddr = 0x1000
	dataAddr = 0x3000
)

// syscall; ud2 with the registers preloaded
func newEngine(t *testing.T, regs map[int]uint64) (*dbt.Engine, *Bridge, *testKernel) {
	t.Helper()
	mem := x86_64.NewMem()
	code, _ := enchex.DecodeString("0f050f0b")
	require.NoError(t, mem.MemMapProt(codeAddr, cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_EXEC))
	require.NoError(t, mem.MemWrite(codeAddr, code))
	require.NoError(t, mem.MemMapProt(dataAddr, cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_WRITE))
	require.NoError(t, mem.MemWrite(dataAddr, []byte("hello")))
	require.NoError(t, mem.MemWrite(dataAddr+0x200, []byte("/etc/passwd\x00")))
	core := x86_64.NewCore(mem)
	for reg, val := range regs {
		core.Regs().Set(reg, val)
	}
	k := &testKernel{}
	b := NewBridge(testABI{}, k)
	e := dbt.NewEngine(core, mem, nil)
	e.SetTrapHandler(b)
	return e, b, k
}

// runs to the ud2 after the syscall
func run(t *testing.T, e *dbt.Engine) {
	t.Helper()
	err := e.Start(codeAddr, 0)
	require.IsType(t, &dbt.InvalidOpcode{}, err)
	assert.EqualValues(t, codeAddr+2, err.(*dbt.InvalidOpcode).PC)
}

func rax(e *dbt.Engine) uint64 {
	val, _ := e.RegRead(x86_64.RAX)
	return val
}

func TestCamelToSnake(t *testing.T) {
	assert.Equal(t, "getpid", camelToSnakeCase("Getpid"))
	assert.Equal(t, "set_tid_address", camelToSnakeCase("SetTidAddress"))
	assert.Equal(t, "exit_group", camelToSnakeCase("ExitGroup"))
}

func TestLookup(t *testing.T) {
	k := &testKernel{}
	require.NotNil(t, Lookup(k, "set_tid_address"))
	sys := Lookup(k, "write")
	require.NotNil(t, sys)
	assert.Len(t, sys.In, 3)
	// promoted KernelBase methods aren't syscalls
	assert.Nil(t, Lookup(k, "mem"))
	assert.Nil(t, Lookup(k, "usercorn_kernel"))
	assert.Nil(t, Lookup(k, "nope"))
}

func TestKernel(t *testing.T) {
	k := &testKernel{}
	k.UsercornInit(k, nil)
	ret, err := k.UsercornSyscall("exit").Call(nil, []uint64{43})
	require.NoError(t, err)
	assert.Equal(t, 43, k.exitCode)
	assert.EqualValues(t, 44, ret)

	// too few words
	ret, err = k.UsercornSyscall("exit").Call(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Errno(EINVAL), ret)
}

func TestWriteMarshaledOnce(t *testing.T) {
	e, b, k := newEngine(t, map[int]uint64{x86_64.RAX: 1, x86_64.RDI: 1, x86_64.RSI: dataAddr, x86_64.RDX: 5})
	var descs []string
	var before int
	b.HookSysAdd(func(num int, name string, args []uint64, ret uint64, desc string) {
		before++
		assert.Equal(t, "write", name)
		assert.Equal(t, []uint64{1, dataAddr, 5}, args)
	}, func(num int, name string, args []uint64, ret uint64, desc string) {
		descs = append(descs, desc)
	})
	run(t, e)
	assert.Equal(t, [][]byte{[]byte("hello")}, k.writes)
	assert.EqualValues(t, 5, rax(e))
	assert.Equal(t, 1, before)
	assert.Equal(t, []string{`write(1, "hello", 5) = 0x5`}, descs)
	assert.EqualValues(t, 1, b.Count)
}

func TestReadFillsGuestBuffer(t *testing.T) {
	e, b, _ := newEngine(t, map[int]uint64{x86_64.RAX: 0, x86_64.RSI: dataAddr + 0x100, x86_64.RDX: 8})
	var desc string
	b.HookSysAdd(nil, func(num int, name string, args []uint64, ret uint64, d string) { desc = d })
	run(t, e)
	assert.EqualValues(t, 3, rax(e))
	data, err := e.MemRead(dataAddr+0x100, 4)
	require.NoError(t, err)
	assert.Equal(t, "abc\x00", string(data))
	assert.Equal(t, `read(0, 0x3100, 8) = "abc", 0x3`, desc)
}

func TestStringArgument(t *testing.T) {
	e, _, k := newEngine(t, map[int]uint64{x86_64.RAX: 2, x86_64.RDI: dataAddr + 0x200})
	run(t, e)
	assert.Equal(t, []string{"/etc/passwd"}, k.paths)
	// negative results are sign extended
	assert.Equal(t, ^uint64(1), rax(e))
}

func TestUnknownSyscall(t *testing.T) {
	e, _, _ := newEngine(t, map[int]uint64{x86_64.RAX: 999})
	run(t, e)
	assert.Equal(t, Errno(ENOSYS), rax(e))

	e, b, _ := newEngine(t, map[int]uint64{x86_64.RAX: 999})
	b.Stub = true
	run(t, e)
	assert.EqualValues(t, 0, rax(e))
}

func TestMarshalFaultStops(t *testing.T) {
	e, _, k := newEngine(t, map[int]uint64{x86_64.RAX: 1, x86_64.RSI: 0x9000, x86_64.RDX: 5})
	err := e.Start(codeAddr, 0)
	require.IsType(t, &TrapError{}, err)
	assert.Equal(t, "write", err.(*TrapError).Name)
	merr, ok := errors.Cause(err).(*cpu.MemError)
	require.True(t, ok)
	assert.EqualValues(t, 0x9000, merr.Addr)
	assert.Empty(t, k.writes)
	assert.EqualValues(t, codeAddr+2, e.PC())
}

func TestMarshalFaultEfault(t *testing.T) {
	e, b, _ := newEngine(t, map[int]uint64{x86_64.RAX: 2, x86_64.RDI: 0x9000})
	b.Efault = true
	run(t, e)
	assert.Equal(t, Errno(EFAULT), rax(e))
}

func TestUnhandledTrap(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	// int 0x80
	require.NoError(t, e.MemWrite(codeAddr, []byte{0xcd, 0x80}))
	err := e.Start(codeAddr, 0)
	assert.Equal(t, ErrUnhandledTrap, errors.Cause(err))
}

func TestRepr(t *testing.T) {
	assert.Equal(t, `"hi\x0a"`, Repr([]byte("hi\n"), 0))
	assert.Equal(t, `"abcdefg"...`, Repr([]byte("abcdefghijklmnop"), 10))
}
