package usercorn

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
	"github.com/lunixbochs/transcorn/go/models/trace"
)

func code(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// mov eax, 60; mov edi, 3; syscall
const exit3 = "b83c000000" + "bf03000000" + "0f05"

func TestShellcodeExit(t *testing.T) {
	u, err := NewUsercornRaw("x86_64", "linux", code(t, exit3), 0x400000, nil)
	require.NoError(t, err)
	defer u.Close()
	err = u.Run([]string{"sc"}, nil)
	assert.Equal(t, models.ExitStatus(3), err)
	assert.Equal(t, 3, models.ExitCode(err))

	sp, err := u.RegRead(u.Arch().SP)
	require.NoError(t, err)
	assert.True(t, sp > u.StackBase && sp < u.StackBase+u.Config().StackSize)
	argc, err := u.MemRead(sp, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), u.UnpackAddr(argc))
}

// mov r0, 1; mov r1, 7; syscall; end
const ndhExit7 = "0402000100" + "0402010700" + "30" + "1c"

func TestNdhRun(t *testing.T) {
	u, err := NewUsercornRaw("ndh", "ndh", code(t, ndhExit7), 0x8000, nil)
	require.NoError(t, err)
	defer u.Close()
	assert.Equal(t, "ndh", u.OS())
	assert.EqualValues(t, 16, u.Bits())
	assert.Equal(t, models.ExitStatus(7), u.Run(nil, nil))
}

// mov r0, 0x12; syscall; end
func TestNdhEnd(t *testing.T) {
	u, err := NewUsercornRaw("ndh", "ndh", code(t, "040200120030"+"1c"), 0x8000, nil)
	require.NoError(t, err)
	defer u.Close()
	assert.Equal(t, models.ExitStatus(0), u.Run(nil, nil))
}

func TestTraceOutput(t *testing.T) {
	var out, tf bytes.Buffer
	config := models.DefaultConfig()
	config.Output = &out
	config.Trace.Ins = true
	config.Trace.Sys = true
	config.Trace.TraceWriter = nopCloser{&tf}
	var ops []models.Op
	config.Trace.OpCallback = []func(models.Op){func(op models.Op) { ops = append(ops, op) }}

	u, err := NewUsercornRaw("x86_64", "linux", code(t, exit3), 0x400000, config)
	require.NoError(t, err)
	defer u.Close()
	assert.Equal(t, models.ExitStatus(3), u.Run(nil, nil))

	text := out.String()
	assert.Contains(t, text, "syscall")
	assert.Contains(t, text, "exit(")
	assert.NotZero(t, tf.Len())
	assert.Len(t, config.Trace.OpCallback, 1)

	var steps, sys int
	for _, op := range ops {
		switch op.(type) {
		case *trace.OpStep:
			steps++
		case *trace.OpSyscall:
			sys++
		}
	}
	assert.Equal(t, 3, steps)
	assert.Equal(t, 1, sys)
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestBrk(t *testing.T) {
	u, err := NewUsercornRaw("x86_64", "linux", code(t, exit3), 0x400000, nil)
	require.NoError(t, err)
	defer u.Close()

	cur, err := u.Brk(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x401000, cur)

	got, err := u.Brk(0x402010)
	require.NoError(t, err)
	assert.EqualValues(t, 0x402010, got)
	require.NoError(t, u.MemWrite(0x402ff0, []byte{1, 2, 3}))

	got, err = u.Brk(0x401800)
	require.NoError(t, err)
	assert.EqualValues(t, 0x401800, got)
	got, err = u.Brk(0x1000)
	require.NoError(t, err)
	assert.EqualValues(t, 0x401800, got)
}

func TestMmapAndStack(t *testing.T) {
	u, err := NewUsercornRaw("x86_64", "linux", code(t, exit3), 0x400000, nil)
	require.NoError(t, err)
	defer u.Close()

	addr, err := u.Mmap(0, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE, false, "anon")
	require.NoError(t, err)
	assert.NotZero(t, addr)
	require.NoError(t, u.MemWrite(addr+0x1fff, []byte{9}))

	require.NoError(t, u.MapStack(0x10000000, 0x10000))
	sp, err := u.Push(0x1234)
	require.NoError(t, err)
	assert.EqualValues(t, 0x10010000-8, sp)
	val, err := u.Pop()
	require.NoError(t, err)
	assert.EqualValues(t, 0x1234, val)
}

func TestUnknownTarget(t *testing.T) {
	_, err := NewUsercornRaw("vax", "linux", nil, 0, nil)
	assert.Error(t, err)
}
