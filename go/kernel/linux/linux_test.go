package linux

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/transcorn/go/cpu/x86_64"
	"github.com/lunixbochs/transcorn/go/dbt"
	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

func newKernel(t *testing.T) (*LinuxKernel, *dbt.Engine) {
	mem := x86_64.NewMem()
	require.NoError(t, mem.MemMapProt(0x3000, cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_WRITE))
	return NewKernel(nil, "x86_64"), dbt.NewEngine(x86_64.NewCore(mem), mem, nil)
}

func call(t *testing.T, k *LinuxKernel, e *dbt.Engine, name string, args ...uint64) uint64 {
	sys := co.Lookup(k, name)
	require.NotNil(t, sys, name)
	ret, err := sys.Call(e, args)
	require.NoError(t, err)
	return ret
}

func TestInheritsPosix(t *testing.T) {
	k, _ := newKernel(t)
	for _, name := range []string{"read", "write", "mmap", "uname", "prctl", "sigaltstack"} {
		assert.NotNil(t, co.Lookup(k, name), name)
	}
}

func TestPrctl(t *testing.T) {
	k, e := newKernel(t)
	assert.EqualValues(t, 1, call(t, k, e, "prctl", PR_GET_DUMPABLE, 0))
	assert.EqualValues(t, 0, call(t, k, e, "prctl", PR_SET_DUMPABLE, 0))
	assert.EqualValues(t, 0, call(t, k, e, "prctl", PR_GET_DUMPABLE, 0))
	assert.Equal(t, co.Errno(co.EINVAL), call(t, k, e, "prctl", PR_SET_DUMPABLE, 7))
	assert.Equal(t, co.Errno(co.EINVAL), call(t, k, e, "prctl", 0x1234, 0))
}

func TestSigaltstack(t *testing.T) {
	k, e := newKernel(t)
	st := make([]byte, 24)
	binary.LittleEndian.PutUint64(st, 0x7000)
	binary.LittleEndian.PutUint64(st[16:], 0x2000)
	require.NoError(t, e.MemWrite(0x3000, st))

	assert.EqualValues(t, 0, call(t, k, e, "sigaltstack", 0x3000, 0))
	assert.Equal(t, Stack64{Sp: 0x7000, Size: 0x2000}, k.CurrentStack)

	assert.EqualValues(t, 0, call(t, k, e, "sigaltstack", 0, 0x3100))
	out, err := e.MemRead(0x3100, 24)
	require.NoError(t, err)
	assert.Equal(t, st, out)
}
