package trace

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type span struct{ addr, size uint64 }

// Trace records one OpStep per committed instruction into frames, followed
// by that instruction's memory accesses and register deltas. A frame ends
// at every discontinuity in PC. A register keyframe is emitted every
// config.Keyframe steps.
//
// Trace implements dbt.Tracer. It only reads guest state through
// accessors that neither fault nor fire hooks.
type Trace struct {
	e      *dbt.Engine
	arch   *models.Arch
	config *models.TraceConfig

	regEnums []int
	pcReg    int
	regs     []uint64

	hooks []cpu.Hook

	frame   *OpFrame
	pending []models.Op
	syscall *OpSyscall
	sysMark int
	dirty   []span
	pc      uint64
	steps   int

	w  io.WriteCloser
	tf *TraceWriter

	attached bool
	err      error
}

func NewTrace(e *dbt.Engine, arch *models.Arch, osName string, config *models.TraceConfig) (*Trace, error) {
	enums := arch.RegEnums()
	t := &Trace{
		e:        e,
		arch:     arch,
		config:   config,
		regEnums: enums,
		pcReg:    arch.PC,
	}
	var err error
	t.w = config.TraceWriter
	if t.w == nil && config.Tracefile != "" {
		if t.w, err = os.Create(config.Tracefile); err != nil {
			return nil, errors.Wrapf(err, "failed to create tracefile '%s'", config.Tracefile)
		}
	}
	if t.w != nil {
		if t.tf, err = NewWriter(t.w, arch.Name, osName, arch.Order); err != nil {
			return nil, errors.Wrap(err, "failed to create trace writer")
		}
	}
	return t, nil
}

// Writer returns the file writer, or nil if ops only go to callbacks.
func (t *Trace) Writer() *TraceWriter { return t.tf }

// Err is the first error hit while writing the trace file.
func (t *Trace) Err() error { return t.err }

func (t *Trace) hook(enum int, f interface{}) error {
	hh, err := t.e.HookAdd(enum, f, 1, 0)
	if err != nil {
		return errors.Wrap(err, "HookAdd failed")
	}
	t.hooks = append(t.hooks, hh)
	return nil
}

// Attach emits an initial keyframe with the full register file and memory,
// then starts recording.
func (t *Trace) Attach() error {
	if t.attached {
		return nil
	}
	regs := t.readRegs()
	kf := (&keyframe{regEnums: t.regEnums, regs: regs}).op()
	kf.Ops = append(memOps(t.e.Mem()), kf.Ops...)
	kf.Ops = append(kf.Ops, &OpJmp{Addr: t.e.PC()})
	t.emit(kf)
	t.regs = regs
	t.pc = t.e.PC()

	if err := t.hook(cpu.HOOK_MEM_READ|cpu.HOOK_MEM_WRITE, t.onMem); err != nil {
		return err
	}
	t.e.Mem().WatchMaps(t.onMap)
	t.e.Mem().WatchWrites(t.onWrite)
	t.e.SetTracer(t)
	t.attached = true
	return nil
}

// Detach flushes everything recorded, appends an OpExit and closes the file.
func (t *Trace) Detach() error {
	if !t.attached {
		return t.err
	}
	t.attached = false
	t.e.SetTracer(nil)
	for _, hh := range t.hooks {
		t.e.HookDel(hh)
	}
	t.hooks = nil
	t.pending = nil
	t.append(&OpExit{})
	t.flushFrame()
	if t.tf != nil {
		if err := t.tf.Close(); err != nil && t.err == nil {
			t.err = err
		}
		t.tf = nil
	}
	return t.err
}

func (t *Trace) readRegs() []uint64 {
	return t.arch.RegDumpFast(t.e.Core().Regs())
}

// send passes op to the callbacks. emit also writes it.
func (t *Trace) send(op models.Op) {
	for _, cb := range t.config.OpCallback {
		cb(op)
	}
}

func (t *Trace) emit(op models.Op) {
	t.send(op)
	if t.tf != nil && t.err == nil {
		t.err = t.tf.Pack(op)
	}
}

func (t *Trace) append(op models.Op) {
	t.send(op)
	if t.frame == nil {
		t.frame = &OpFrame{}
	}
	t.frame.Ops = append(t.frame.Ops, op)
}

func (t *Trace) flushFrame() {
	if t.frame != nil && t.tf != nil && t.err == nil {
		t.err = t.tf.Pack(t.frame)
	}
	t.frame = nil
}

// Commit implements dbt.Tracer.
func (t *Trace) Commit(ins dbt.Insn) {
	if !t.attached {
		return
	}
	if addr := ins.Addr(); addr != t.pc {
		t.flushFrame()
		t.append(&OpJmp{Addr: addr})
	}
	t.append(&OpStep{Size: uint8(ins.Len())})
	for _, op := range t.pending {
		t.append(op)
	}
	t.pending = t.pending[:0]

	regs := t.readRegs()
	for i, val := range regs {
		if t.regEnums[i] != t.pcReg && t.regs[i] != val {
			t.append(&OpReg{Num: uint16(t.regEnums[i]), Val: val})
		}
	}
	t.regs = regs
	t.pc = t.e.PC()

	t.steps++
	if t.config.Keyframe > 0 && t.steps >= t.config.Keyframe {
		t.steps = 0
		t.flushFrame()
		t.emit((&keyframe{regEnums: t.regEnums, regs: regs}).op())
	}
}

// Discard implements dbt.Tracer.
func (t *Trace) Discard() {
	t.pending = t.pending[:0]
	t.syscall = nil
	t.dirty = nil
}

func (t *Trace) onMem(_ cpu.Cpu, access int, addr uint64, size int, val int64) {
	if access == cpu.MEM_WRITE {
		data, err := cpu.PackUint(t.arch.Order, size, nil, uint64(val))
		if err == nil {
			t.pending = append(t.pending, &OpMemWrite{Addr: addr, Data: data})
		}
	} else {
		t.pending = append(t.pending, &OpMemRead{Addr: addr, Size: uint32(size)})
	}
}

// onMap runs while the mapping is being changed, so it only records.
func (t *Trace) onMap(ev cpu.MapEvent) {
	if !t.attached {
		return
	}
	var op models.Op
	switch ev.Kind {
	case cpu.MAP_CHANGE:
		op = &OpMemMap{Addr: ev.Addr, Size: ev.Size, Prot: uint8(ev.Prot)}
	case cpu.UNMAP_CHANGE:
		op = &OpMemUnmap{Addr: ev.Addr, Size: ev.Size}
	case cpu.PROT_CHANGE:
		op = &OpMemProt{Addr: ev.Addr, Size: ev.Size, Prot: uint8(ev.Prot)}
	default:
		return
	}
	t.pending = append(t.pending, op)
}

// onWrite tracks kernel writes during a syscall. Guest stores arrive
// through onMem instead.
func (t *Trace) onWrite(addr, size uint64) {
	if t.attached && t.syscall != nil {
		t.dirty = append(t.dirty, span{addr, size})
	}
}

// OnSysPre and OnSysPost have the models.SysCb signature.
func (t *Trace) OnSysPre(num int, name string, args []uint64, ret uint64, desc string) {
	if !t.attached {
		return
	}
	t.syscall = &OpSyscall{Num: uint32(num), Args: append([]uint64(nil), args...)}
	// ops recorded so far belong to the trapping instruction itself
	t.sysMark = len(t.pending)
	t.dirty = nil
}

func (t *Trace) OnSysPost(num int, name string, args []uint64, ret uint64, desc string) {
	sys := t.syscall
	if sys == nil {
		return
	}
	t.syscall = nil
	sys.Ret = ret
	sys.Desc = desc
	// layout changes made by the kernel were queued in pending
	sys.Ops = append(sys.Ops, t.pending[t.sysMark:]...)
	t.pending = t.pending[:t.sysMark]
	mem := t.e.Mem()
	for _, d := range t.dirty {
		if data, err := mem.MemRead(d.addr, d.size); err == nil {
			sys.Ops = append(sys.Ops, &OpMemWrite{Addr: d.addr, Data: data})
		}
	}
	t.dirty = nil
	t.pending = append(t.pending, sys)
}
