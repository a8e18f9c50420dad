package ndh

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

func newEngine(t *testing.T, addr uint64, code string) (*dbt.Engine, *Core) {
	t.Helper()
	mem := NewMem()
	raw, err := hex.DecodeString(code)
	require.NoError(t, err)
	require.NoError(t, mem.MemMapProt(addr&^cpu.PAGE_MASK, cpu.PAGE_SIZE, cpu.PROT_ALL))
	require.NoError(t, mem.MemWrite(addr, raw))
	require.NoError(t, mem.MemMapProt(0x7000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE))
	core := NewCore(mem)
	core.Regs().Set(SP, 0x8000)
	e := dbt.NewEngine(core, mem, nil)
	e.SetPC(addr)
	return e, core
}

func TestStraightLine(t *testing.T) {
	// mov r0, 5; add r0, 3
	e, core := newEngine(t, 0x1000, "0401000506010003")
	require.NoError(t, e.RunBlock())
	assert.EqualValues(t, 8, core.Regs().Get(R0))
	assert.EqualValues(t, 0x1008, e.PC())
	b := e.Cache().Lookup(0x1000)
	require.NotNil(t, b)
	assert.Len(t, b.Insns, 2)
	assert.Equal(t, dbt.ExitDecode, b.Exit)

	// the next block starts on the zero byte
	err := e.RunBlock()
	require.IsType(t, &dbt.InvalidOpcode{}, err)
	assert.EqualValues(t, 0x1008, err.(*dbt.InvalidOpcode).PC)
}

func TestJumpUnmapped(t *testing.T) {
	// jmpl 0x2000
	e, _ := newEngine(t, 0x1000, "1bfd0f")
	err := e.Start(0x1000, 0xffff)
	require.IsType(t, &cpu.MemError{}, err)
	merr := err.(*cpu.MemError)
	assert.EqualValues(t, 0x2000, merr.Addr)
	assert.Equal(t, cpu.MEM_FETCH_UNMAPPED, merr.Enum)
	assert.EqualValues(t, 0x2000, e.PC())
	assert.Equal(t, dbt.StateFaulted, e.State())
}

func TestSelfModifying(t *testing.T) {
	// mov r1, 0x100b; mov [r1], 0x1c; nop; nop; nop; inc r0; end
	// the store turns the third nop into end
	e, core := newEngine(t, 0x1000, "0402010b100407011c0202020a001c")
	err := e.Start(0x1000, 0xffff)
	assert.Equal(t, models.ExitStatus(0), err)
	assert.True(t, e.Halted())
	assert.EqualValues(t, 0, core.Regs().Get(R0))
	assert.EqualValues(t, 0x100c, e.PC())
	assert.NotZero(t, e.Cache().Stats.Invalidations)
	assert.NoError(t, e.Cache().Check())
}

func TestDivideByZero(t *testing.T) {
	// mov r0, 5; div r0, 0
	e, core := newEngine(t, 0x1000, "0401000509010000")
	err := e.Start(0x1000, 0xffff)
	require.IsType(t, &cpu.ArithError{}, err)
	assert.EqualValues(t, 0x1004, err.(*cpu.ArithError).PC)
	assert.EqualValues(t, 0x1004, e.PC())
	assert.EqualValues(t, 5, core.Regs().Get(R0))
}

func TestCallStack(t *testing.T) {
	// call 0x1010; end
	// 0x1010: mov r0, 0x2a; push r0; pop r1; ret
	code := "19040c00" + "1c" + "0000000000000000000000" + "0401002a" + "010300" + "0301" + "1a"
	e, core := newEngine(t, 0x1000, code)
	err := e.Start(0x1000, 0xffff)
	assert.Equal(t, models.ExitStatus(0), err)
	regs := core.Regs()
	assert.EqualValues(t, 0x2a, regs.Get(R0))
	assert.EqualValues(t, 0x2a, regs.Get(R1))
	assert.EqualValues(t, 0x8000, regs.Get(SP))
	assert.EqualValues(t, 0x1005, e.PC())
}

func TestCompareBranch(t *testing.T) {
	// mov r0, 1; cmp r0, 2; ja +2; inc r1; end
	e, core := newEngine(t, 0x1000, "04010001"+"18010002"+"1e0200"+"0a01"+"1c")
	err := e.Start(0x1000, 0xffff)
	assert.Equal(t, models.ExitStatus(0), err)
	assert.EqualValues(t, 0, core.Regs().Get(R1))
	assert.EqualValues(t, 1, core.Regs().Get(AF))
	assert.EqualValues(t, 0, core.Regs().Get(ZF))
}

func TestWrap16(t *testing.T) {
	// mov r0, 0xffff; add r0, 1
	e, core := newEngine(t, 0x1000, "040200ffff06010001")
	require.NoError(t, e.RunBlock())
	assert.EqualValues(t, 0, core.Regs().Get(R0))
	assert.EqualValues(t, 1, core.Regs().Get(ZF))
}

func TestHelloWorld(t *testing.T) {
	code, err := hex.DecodeString(asmHex)
	require.NoError(t, err)
	mem := NewMem()
	require.NoError(t, mem.MemMapProt(0x8000, 0x1000, cpu.PROT_READ|cpu.PROT_EXEC))
	require.NoError(t, mem.MemWrite(0x8000, code))
	core := NewCore(mem)
	e := dbt.NewEngine(core, mem, nil)

	var out []byte
	e.SetTrapHandler(dbt.TrapFunc(func(c cpu.Cpu, kind int, next uint64) (uint64, error) {
		num, _ := c.RegRead(R0)
		require.EqualValues(t, 4, num)
		buf, _ := c.RegRead(R2)
		size, _ := c.RegRead(R3)
		p, err := c.MemRead(buf, size)
		if err != nil {
			return 0, err
		}
		out = append(out, p...)
		c.RegWrite(R0, size)
		return next, nil
	}))
	err = e.Start(0x8000, 0xffff)
	assert.Equal(t, models.ExitStatus(0), err)
	assert.Equal(t, "Hello World !\n\x00", string(out))
	assert.EqualValues(t, 1, e.Stats.Traps)
}

func TestPopStoreFault(t *testing.T) {
	_, core := newEngine(t, 0x1000, "02")
	require.NoError(t, core.mem.WriteUint(0x7ff0, 2, cpu.PROT_WRITE, 0x2a))
	core.Regs().Set(SP, 0x7ff0)
	core.Regs().Set(R1, 0x9000)
	ins := &Insn{addr: 0x1000, op: OP_POP, name: "pop", args: []arg{{argIndirect, R1}}, bytes: []byte{OP_POP, R1}}
	exec, err := core.Bind(ins)
	require.NoError(t, err)
	out := exec()
	assert.Equal(t, dbt.Fault, out.Kind)
	require.IsType(t, &cpu.MemError{}, out.Err)
	assert.EqualValues(t, 0x9000, out.Err.(*cpu.MemError).Addr)
	assert.EqualValues(t, 0x7ff0, core.Regs().Get(SP))
}
