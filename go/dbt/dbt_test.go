package dbt_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/transcorn/go/cpu/x86_64"
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

const codeAddr = 0x1000

// 0x1000: mov eax, 5
// 0x1005: jmp 0x1100
// 0x1100: syscall
// 0x1102: mov eax, [0]
var program = map[uint64]string{
	0x1000: "b805000000" + "e9f6000000",
	0x1100: "0f05" + "8b042500000000",
}

func newEngine(t *testing.T, conf *dbt.Config, code map[uint64]string) *dbt.Engine {
	t.Helper()
	mem := x86_64.NewMem()
	require.NoError(t, mem.MemMapProt(codeAddr, cpu.PAGE_SIZE, cpu.PROT_ALL))
	for addr, s := range code {
		b, err := hex.DecodeString(s)
		require.NoError(t, err)
		require.NoError(t, mem.MemWrite(addr, b))
	}
	return dbt.NewEngine(x86_64.NewCore(mem), mem, conf)
}
