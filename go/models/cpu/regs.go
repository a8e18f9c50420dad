package cpu

import (
	"github.com/pkg/errors"
)

// MAX_REG caps register enums so the file can be a flat array.
const MAX_REG = 256

// implements register and context methods conforming to cpu.Cpu
// The file is a flat []uint64 indexed by enum, with a second slice marking
// which enums the architecture defines.
type Regs struct {
	mask  uint64
	Vals  []uint64
	valid []bool
}

func NewRegs(bits uint, enums []int) *Regs {
	size := 0
	for _, e := range enums {
		if e+1 > size {
			size = e + 1
		}
	}
	if size > MAX_REG {
		panic(errors.Errorf("register enum too large: %d >= %d", size-1, MAX_REG))
	}
	r := &Regs{
		mask:  ^uint64(0) >> (64 - bits),
		Vals:  make([]uint64, size),
		valid: make([]bool, size),
	}
	for _, e := range enums {
		if e < 0 {
			panic(errors.Errorf("negative register enum: %d", e))
		}
		r.valid[e] = true
	}
	return r
}

func (r *Regs) ok(enum int) bool {
	return enum >= 0 && enum < len(r.valid) && r.valid[enum]
}

func (r *Regs) RegRead(enum int) (uint64, error) {
	if !r.ok(enum) {
		return 0, errors.Errorf("invalid register: %d", enum)
	}
	return r.Vals[enum], nil
}

func (r *Regs) RegWrite(enum int, val uint64) error {
	if !r.ok(enum) {
		return errors.Errorf("invalid register: %d", enum)
	}
	r.Vals[enum] = val & r.mask
	return nil
}

// Get and Set skip validation, for instruction semantics that only use known enums.
func (r *Regs) Get(enum int) uint64 { return r.Vals[enum] }
func (r *Regs) Set(enum int, val uint64) { r.Vals[enum] = val & r.mask }

// Enums lists the defined registers in enum order.
func (r *Regs) Enums() []int {
	var out []int
	for e, ok := range r.valid {
		if ok {
			out = append(out, e)
		}
	}
	return out
}

// handling ContextSave in the register file either requires you to store important cpu state (like flags) in registers
// or wrap ContextSave/ContextRestore with your own functions
func (r *Regs) ContextSave(reuse interface{}) (interface{}, error) {
	var s []uint64
	if reuse != nil {
		var ok bool
		if s, ok = reuse.([]uint64); !ok || len(s) != len(r.Vals) {
			return nil, errors.New("incorrect context type")
		}
	} else {
		s = make([]uint64, len(r.Vals))
	}
	copy(s, r.Vals)
	return s, nil
}

func (r *Regs) ContextRestore(ctx interface{}) error {
	s, ok := ctx.([]uint64)
	if !ok || len(s) != len(r.Vals) {
		return errors.New("incorrect context type")
	}
	copy(r.Vals, s)
	return nil
}
