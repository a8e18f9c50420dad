package models

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type Reg struct {
	Enum    int
	Name    string
	Default bool
}

type RegVal struct {
	Reg
	Val uint64
}

type regList []Reg

func (r regList) Len() int      { return len(r) }
func (r regList) Swap(i, j int) { r[i], r[j] = r[j], r[i] }
func (r regList) Less(i, j int) bool {
	iname, jname := r[i].Name, r[j].Name
	// defaults first, then natural order so r2 sorts before r10
	if r[i].Default != r[j].Default {
		return r[i].Default
	}
	return sortorder.NaturalLess(iname, jname)
}

type regMap map[string]int

func (r regMap) Items() regList {
	ret := make(regList, 0, len(r))
	for name, enum := range r {
		ret = append(ret, Reg{enum, name, false})
	}
	return ret
}

// OS describes how one guest operating system runs on an Arch.
type OS struct {
	Name string
	// Init sets up the initial process state (stack, argv, auxv) after loading.
	Init func(u Usercorn, args, env []string) error
	// NewTrap builds the handler servicing this process's traps.
	NewTrap func(u Usercorn) (dbt.TrapHandler, error)
}

func (o *OS) String() string {
	return fmt.Sprintf("<OS %s>", o.Name)
}

type Arch struct {
	Name  string
	Bits  int
	Order binary.ByteOrder

	// Dis decodes without an address space, for disassembly
	Dis dbt.Decoder
	// NewMem returns an empty address space sized for this arch
	NewMem func() *cpu.Mem
	// NewCore binds a fresh register file and semantics to mem
	NewCore func(mem *cpu.Mem) dbt.Core

	PC          int
	SP          int
	OS          map[string]*OS
	Regs        regMap
	DefaultRegs []string

	regNames map[int]string
	regList  regList
	regEnums []int
}

func (a *Arch) String() string {
	return fmt.Sprintf("<Arch %s>", a.Name)
}

func (a *Arch) RegisterOS(os *OS) {
	if a.OS == nil {
		a.OS = make(map[string]*OS)
	}
	if _, ok := a.OS[os.Name]; ok {
		panic("Duplicate OS " + os.Name)
	}
	a.OS[os.Name] = os
}

func (a *Arch) getRegList() regList {
	if a.regList == nil {
		rl := a.Regs.Items()
		defaults := make(map[string]bool, len(a.DefaultRegs))
		for _, name := range a.DefaultRegs {
			defaults[name] = true
		}
		for i, r := range rl {
			rl[i].Default = defaults[r.Name]
		}
		sort.Sort(rl)
		a.regList = rl
	}
	return a.regList
}

// RegNames maps register enums to names.
func (a *Arch) RegNames() map[int]string {
	if a.regNames == nil {
		a.regNames = make(map[int]string, len(a.Regs))
		for name, enum := range a.Regs {
			a.regNames[enum] = name
		}
	}
	return a.regNames
}

// RegEnums lists every named register in display order.
func (a *Arch) RegEnums() []int {
	if a.regEnums == nil {
		rl := a.getRegList()
		a.regEnums = make([]int, len(rl))
		for i, r := range rl {
			a.regEnums[i] = r.Enum
		}
	}
	return a.regEnums
}

func (a *Arch) RegEnum(name string) (int, error) {
	if enum, ok := a.Regs[strings.ToLower(name)]; ok {
		return enum, nil
	}
	return 0, errors.Errorf("unknown register %q for %s", name, a.Name)
}

// RegDump reads every named register from a register file.
func (a *Arch) RegDump(regs *cpu.Regs) []RegVal {
	rl := a.getRegList()
	ret := make([]RegVal, len(rl))
	for i, r := range rl {
		val, _ := regs.RegRead(r.Enum)
		ret[i] = RegVal{r, val}
	}
	return ret
}

// RegDumpFast reads the registers in RegEnums order without names.
func (a *Arch) RegDumpFast(regs *cpu.Regs) []uint64 {
	enums := a.RegEnums()
	ret := make([]uint64, len(enums))
	for i, e := range enums {
		ret[i], _ = regs.RegRead(e)
	}
	return ret
}

// Disas decodes code without executing it. Trailing bytes that don't decode
// are reported as the error alongside what did decode.
func (a *Arch) Disas(code []byte, addr uint64) ([]dbt.Insn, error) {
	return dbt.Disas(a.Dis, code, addr)
}
