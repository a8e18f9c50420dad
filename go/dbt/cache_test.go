package dbt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

func TestCacheBuild(t *testing.T) {
	e := newEngine(t, nil, program)
	c := e.Cache()
	b, err := c.LookupOrBuild(codeAddr)
	require.NoError(t, err)
	assert.Len(t, b.Insns, 2)
	assert.EqualValues(t, 10, b.Size)
	assert.Equal(t, dbt.ExitBranch, b.Exit)
	assert.True(t, b.Live())

	again, err := c.LookupOrBuild(codeAddr)
	require.NoError(t, err)
	assert.Same(t, b, again)
	assert.Same(t, b, c.Lookup(codeAddr))
	assert.EqualValues(t, 1, c.Stats.Hits)
	assert.EqualValues(t, 1, c.Stats.Misses)
	assert.EqualValues(t, 1, c.Stats.Builds)

	trap, err := c.LookupOrBuild(0x1100)
	require.NoError(t, err)
	assert.Equal(t, dbt.ExitTrap, trap.Exit)
	assert.Equal(t, 2, c.Len())
	assert.NoError(t, c.Check())
}

func TestCacheInvalidateOnWrite(t *testing.T) {
	e := newEngine(t, nil, program)
	c := e.Cache()
	b, err := c.LookupOrBuild(codeAddr)
	require.NoError(t, err)
	other, err := c.LookupOrBuild(0x1100)
	require.NoError(t, err)

	// mov eax, 7
	require.NoError(t, e.MemWrite(codeAddr+1, []byte{7}))
	assert.False(t, b.Live())
	assert.True(t, other.Live())
	assert.Nil(t, c.Lookup(codeAddr))
	assert.EqualValues(t, 1, c.Stats.Invalidations)
	assert.NoError(t, c.Check())

	fresh, err := c.LookupOrBuild(codeAddr)
	require.NoError(t, err)
	assert.NotSame(t, b, fresh)
	require.NoError(t, e.Start(codeAddr, 0x1100))
	rax, _ := e.RegRead(0)
	assert.EqualValues(t, 7, rax)
}

func TestCacheInvalidateRange(t *testing.T) {
	e := newEngine(t, nil, program)
	c := e.Cache()
	_, err := c.LookupOrBuild(codeAddr)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Invalidate(0x1800, 0x10))
	assert.Equal(t, 1, c.Invalidate(codeAddr+9, 1))
	assert.Equal(t, 0, c.Len())

	_, err = c.LookupOrBuild(codeAddr)
	require.NoError(t, err)
	c.Flush()
	assert.Equal(t, 0, c.Len())
	assert.NoError(t, c.Check())
}

func TestCacheProtect(t *testing.T) {
	e := newEngine(t, nil, program)
	c := e.Cache()
	b, err := c.LookupOrBuild(codeAddr)
	require.NoError(t, err)

	require.NoError(t, e.MemProt(codeAddr, cpu.PAGE_SIZE, cpu.PROT_READ))
	assert.False(t, b.Live())
	_, err = c.LookupOrBuild(codeAddr)
	require.IsType(t, &cpu.MemError{}, err)

	// keeping exec leaves translations alone
	require.NoError(t, e.MemProt(codeAddr, cpu.PAGE_SIZE, cpu.PROT_ALL))
	b, err = c.LookupOrBuild(codeAddr)
	require.NoError(t, err)
	require.NoError(t, e.MemProt(codeAddr, cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_EXEC))
	assert.True(t, b.Live())
}

func TestCacheBlockLimit(t *testing.T) {
	// 12 nops, then jmp to self
	e := newEngine(t, &dbt.Config{MaxBlockInsns: 4}, map[uint64]string{
		codeAddr: "909090909090909090909090" + "ebfe",
	})
	b, err := e.Cache().LookupOrBuild(codeAddr)
	require.NoError(t, err)
	assert.Len(t, b.Insns, 4)
	assert.Equal(t, dbt.ExitLimit, b.Exit)
}
