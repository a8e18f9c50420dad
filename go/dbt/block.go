package dbt

import (
	"fmt"
	"strings"
	"sync/atomic"
)

type Exit int

const (
	ExitFallthrough Exit = iota
	ExitBranch
	ExitCall
	ExitReturn
	ExitIndirect
	ExitTrap
	ExitHalt
	// the next instruction didn't decode, it faults if execution gets there
	ExitDecode
	// hit the per-block instruction limit or the end of executable memory
	ExitLimit
)

var exitNames = [...]string{"fallthrough", "branch", "call", "return", "indirect", "trap", "halt", "decode", "limit"}

func (e Exit) String() string {
	if int(e) < len(exitNames) {
		return exitNames[e]
	}
	return "unknown"
}

func exitFor(f Flow) Exit {
	switch f {
	case FlowJump, FlowCondJump:
		return ExitBranch
	case FlowCall:
		return ExitCall
	case FlowRet:
		return ExitReturn
	case FlowIndirect:
		return ExitIndirect
	case FlowTrap:
		return ExitTrap
	case FlowHalt:
		return ExitHalt
	}
	return ExitFallthrough
}

// Block is one translation cache entry: a basic block of decoded
// instructions with their semantics bound.
type Block struct {
	// position in the cache arena, -1 once evicted
	Index int32
	Addr  uint64
	// bytes covered, Addr through Addr+Size-1
	Size  uint64
	Insns []Insn
	Execs []Exec
	Exit  Exit
	// static successors: branch target and/or fallthrough
	Succ  [2]uint64
	NSucc int

	// memory layout sequence the block was last validated against
	seq uint64
}

// Live is false once the block has been evicted. Safe from any goroutine.
func (b *Block) Live() bool { return atomic.LoadInt32(&b.Index) >= 0 }

func (b *Block) End() uint64 { return b.Addr + b.Size }

func (b *Block) Overlaps(addr, size uint64) bool {
	return addr < b.Addr+b.Size && b.Addr < addr+size
}

func (b *Block) String() string {
	var s []string
	for _, ins := range b.Insns {
		s = append(s, fmt.Sprintf("%#x: %s %s", ins.Addr(), ins.Mnemonic(), ins.OpStr()))
	}
	return fmt.Sprintf("block %#x-%#x (%s)\n  %s", b.Addr, b.End(), b.Exit, strings.Join(s, "\n  "))
}

func (b *Block) setSuccessors() {
	last := b.Insns[len(b.Insns)-1]
	target, direct := last.Target()
	switch last.Flow() {
	case FlowJump, FlowCall:
		if direct {
			b.Succ[0], b.NSucc = target, 1
		}
	case FlowCondJump:
		b.Succ[0], b.NSucc = b.End(), 1
		if direct {
			b.Succ[1], b.NSucc = target, 2
		}
	case FlowNone, FlowTrap:
		b.Succ[0], b.NSucc = b.End(), 1
	}
}
