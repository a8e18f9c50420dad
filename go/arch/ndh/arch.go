package ndh

import (
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/transcorn/go/cpu/ndh"
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

var Arch = &models.Arch{
	Name:  "ndh",
	Bits:  16,
	Order: binary.LittleEndian,

	Dis:     &ndh.Dis{},
	NewMem:  ndh.NewMem,
	NewCore: func(mem *cpu.Mem) dbt.Core { return ndh.NewCore(mem) },

	PC:   ndh.PC,
	SP:   ndh.SP,
	Regs: regMap(),

	DefaultRegs: []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "bp"},
}

// regMap names the general registers r0..r7 followed by the special ones.
func regMap() map[string]int {
	regs := map[string]int{
		"bp": ndh.BP, "sp": ndh.SP, "pc": ndh.PC,
		"zf": ndh.ZF, "af": ndh.AF, "bf": ndh.BF,
	}
	for i := ndh.R0; i <= ndh.R7; i++ {
		regs[fmt.Sprintf("r%d", i-ndh.R0)] = i
	}
	return regs
}
