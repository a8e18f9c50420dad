package ndh

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/transcorn/go/cpu/ndh"
	"github.com/lunixbochs/transcorn/go/dbt"
	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

func TestABI(t *testing.T) {
	mem := Arch.NewMem()
	e := dbt.NewEngine(Arch.NewCore(mem), mem, nil)
	e.RegWrite(ndh.R0, 0x12)
	e.RegWrite(ndh.R1, 7)
	e.RegWrite(ndh.R2, 8)

	var abi ABI
	num, ok := abi.Syscall(e, 0)
	require.True(t, ok)
	assert.Equal(t, "getpid", abi.Name(num))
	_, ok = abi.Syscall(e, 1)
	assert.False(t, ok)
	args, err := abi.Args(e, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 8}, args)
}

// mov r0, 0x12; syscall; end
func TestGetpidTrap(t *testing.T) {
	mem := Arch.NewMem()
	code, _ := hex.DecodeString("040200120030" + "1c")
	require.NoError(t, mem.MemMapProt(0x1000, cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_EXEC))
	require.NoError(t, mem.MemWrite(0x1000, code))
	e := dbt.NewEngine(Arch.NewCore(mem), mem, nil)
	b := co.NewBridge(ABI{}, NewKernel(nil))
	e.SetTrapHandler(b)

	err := e.Start(0x1000, 0)
	assert.Equal(t, models.ExitStatus(0), err)
	assert.EqualValues(t, 1, b.Count)
	r0, _ := e.RegRead(ndh.R0)
	assert.NotZero(t, r0)
}

func TestUnknownCall(t *testing.T) {
	mem := Arch.NewMem()
	e := dbt.NewEngine(Arch.NewCore(mem), mem, nil)
	e.RegWrite(ndh.R0, 0x0b)
	b := co.NewBridge(ABI{}, NewKernel(nil))
	_, err := b.Trap(e, 0, 0)
	require.NoError(t, err)
	r0, _ := e.RegRead(ndh.R0)
	// 16-bit register holds the truncated -ENOSYS
	assert.EqualValues(t, uint16(co.Errno(co.ENOSYS)), r0)
}
