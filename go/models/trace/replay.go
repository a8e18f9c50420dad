package trace

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// Replay rebuilds register and memory state from a trace and reports each
// instruction along with its side effects.
type Replay struct {
	Arch     *models.Arch
	Mem      *cpu.Mem
	Regs     map[int]uint64
	SpRegs   map[int][]byte
	PC, SP   uint64
	Inscount uint64
	Exited   bool

	// pending is the last unflushed OpStep. Cleared by Flush().
	pending   *OpStep
	pendingPC uint64
	effects   []models.Op
	callbacks []func(pc uint64, op models.Op, effects []models.Op)

	err error
}

func NewReplay(arch *models.Arch, order binary.ByteOrder) *Replay {
	return &Replay{
		Arch:   arch,
		Mem:    cpu.NewMem(uint(arch.Bits), order),
		Regs:   make(map[int]uint64),
		SpRegs: make(map[int][]byte),
	}
}

// Listen registers cb for every instruction, syscall and jump. pc is the
// address the op applies to.
func (r *Replay) Listen(cb func(pc uint64, op models.Op, effects []models.Op)) {
	r.callbacks = append(r.callbacks, cb)
}

// Err is the first state change that couldn't be applied.
func (r *Replay) Err() error { return r.err }

func (r *Replay) fail(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

// update applies the state change in op.
func (r *Replay) update(op models.Op) {
	switch o := op.(type) {
	case *OpJmp:
		r.PC = o.Addr
	case *OpStep:
		r.PC += uint64(o.Size)

	case *OpReg:
		if int(o.Num) == r.Arch.SP {
			r.SP = o.Val
		}
		r.Regs[int(o.Num)] = o.Val
	case *OpSpReg:
		r.SpRegs[int(o.Num)] = o.Val

	case *OpMemMap:
		page, err := r.Mem.MemMapDesc(o.Addr, o.Size, int(o.Prot), o.Desc)
		if err != nil {
			r.fail(errors.Wrapf(err, "replay map %#x", o.Addr))
			return
		}
		if o.File != "" {
			page.File = &cpu.FileDesc{Name: o.File, Off: o.Off, Len: o.Len}
		}
	case *OpMemUnmap:
		r.fail(r.Mem.MemUnmap(o.Addr, o.Size))
	case *OpMemProt:
		r.fail(r.Mem.MemProt(o.Addr, o.Size, int(o.Prot)))
	case *OpMemWrite:
		if err := r.Mem.MemWrite(o.Addr, o.Data); err != nil {
			r.fail(errors.Wrapf(err, "replay write %#x", o.Addr))
		}

	case *OpSyscall:
		for _, v := range o.Ops {
			r.update(v)
		}
	case *OpExit:
		r.Exited = true
	}
}

// Feed is the entry point for ops read from a trace. It calls update() and
// groups side effects with the instruction they follow.
func (r *Replay) Feed(op models.Op) {
	var ops []models.Op
	switch o := op.(type) {
	case *OpFrame:
		ops = o.Ops
	case *OpKeyframe:
		// the keyframe can change state the pending step hasn't reported yet
		r.Flush()
		for _, v := range o.Ops {
			r.update(v)
		}
		return
	default:
		ops = []models.Op{op}
	}

	for _, op := range ops {
		switch o := op.(type) {
		case *OpJmp:
			r.Flush()
			r.Emit(r.PC, o, nil)
			r.update(o)
		case *OpStep:
			r.Flush()
			r.pending = o
			r.pendingPC = r.PC
			r.update(o)
		case *OpSyscall:
			r.Flush()
			r.update(o)
			r.Emit(r.PC, o, o.Ops)
		default:
			r.effects = append(r.effects, op)
		}
	}
	r.Flush()
}

func (r *Replay) Emit(pc uint64, op models.Op, effects []models.Op) {
	for _, cb := range r.callbacks {
		cb(pc, op, effects)
	}
}

// Flush applies and reports the pending instruction's side effects.
func (r *Replay) Flush() {
	if r.pending == nil {
		for _, op := range r.effects {
			r.update(op)
		}
		r.effects = r.effects[:0]
		return
	}
	for _, op := range r.effects {
		r.update(op)
	}
	r.Emit(r.pendingPC, r.pending, r.effects)
	r.Inscount++
	r.effects = nil
	r.pending = nil
}
