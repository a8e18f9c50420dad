package cpu

import (
	"fmt"
)

// Fault is implemented by every guest-triggerable execution fault.
// Embedders can type switch on the concrete fault to decide whether to
// deliver a signal to the guest or stop.
type Fault interface {
	error
	FaultAddr() uint64
}

type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected exec"
	case MEM_READ_UNALIGNED:
		reason = "unaligned read"
	case MEM_WRITE_UNALIGNED:
		reason = "unaligned write"
	case MEM_FETCH_UNALIGNED:
		reason = "unaligned fetch"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

func (m *MemError) FaultAddr() uint64 { return m.Addr }

// Unmapped reports whether the fault hit memory that isn't mapped at all.
func (m *MemError) Unmapped() bool {
	switch m.Enum {
	case MEM_READ_UNMAPPED, MEM_WRITE_UNMAPPED, MEM_FETCH_UNMAPPED:
		return true
	}
	return false
}

const (
	DivideError = iota
	OverflowTrap
)

// ArithError is raised by division by zero, quotient overflow and
// architectural overflow traps.
type ArithError struct {
	PC   uint64
	Kind int
}

func (a *ArithError) Error() string {
	if a.Kind == OverflowTrap {
		return fmt.Sprintf("overflow trap at %#x", a.PC)
	}
	return fmt.Sprintf("divide error at %#x", a.PC)
}

func (a *ArithError) FaultAddr() uint64 { return a.PC }

// PrivError is raised by instructions that need a privilege level user mode doesn't have.
type PrivError struct {
	PC       uint64
	Mnemonic string
}

func (p *PrivError) Error() string {
	return fmt.Sprintf("privileged instruction %q at %#x", p.Mnemonic, p.PC)
}

func (p *PrivError) FaultAddr() uint64 { return p.PC }
