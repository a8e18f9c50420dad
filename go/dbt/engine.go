package dbt

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/log"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type State int32

const (
	StateIdle State = iota
	StateFetching
	StateExecuting
	StateContinuing
	StateBranching
	StateTrapping
	StateFaulted
	StateStopped
)

var stateNames = [...]string{"idle", "fetching", "executing", "continuing", "branching", "trapping", "faulted", "stopped"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// TrapHandler services guest traps (system calls). next is the address
// after the trapping instruction; the returned address is where execution
// resumes. An error stops the engine and is returned from Start.
type TrapHandler interface {
	Trap(c cpu.Cpu, kind int, next uint64) (uint64, error)
}

type TrapFunc func(c cpu.Cpu, kind int, next uint64) (uint64, error)

func (f TrapFunc) Trap(c cpu.Cpu, kind int, next uint64) (uint64, error) {
	return f(c, kind, next)
}

// Tracer observes committed instructions. Commit runs after an
// instruction's effects (including a trap's) are visible; Discard runs when
// the current instruction faulted and anything buffered for it is stale.
type Tracer interface {
	Commit(ins Insn)
	Discard()
}

type Config struct {
	// instructions per block, DefaultBlockInsns if zero
	MaxBlockInsns int
	// stop with ErrInsLimit after this many instructions, checked at block boundaries
	MaxIns uint64
	Log    *log.Logger
}

type Stats struct {
	Ins    uint64
	Blocks uint64
	Traps  uint64
}

// Engine runs one guest context. It is confined to one goroutine, except
// for Stop and State which are safe to call from anywhere.
type Engine struct {
	*cpu.Hooks
	core  Core
	mem   *cpu.Mem
	cache *Cache
	log   *log.Logger

	trap   TrapHandler
	tracer Tracer
	maxIns uint64

	state  atomic.Int32
	stop   atomic.Bool
	halted bool

	Stats Stats
}

func NewEngine(core Core, mem *cpu.Mem, conf *Config) *Engine {
	if conf == nil {
		conf = &Config{}
	}
	logger := conf.Log.Or()
	e := &Engine{
		core:   core,
		mem:    mem,
		log:    logger,
		maxIns: conf.MaxIns,
	}
	e.cache = NewCache(mem, core, logger.Named("cache"))
	if conf.MaxBlockInsns > 0 {
		e.cache.MaxInsns = conf.MaxBlockInsns
	}
	e.Hooks = cpu.NewHooks(e, mem)
	return e
}

func (e *Engine) Core() Core { return e.core }
func (e *Engine) Cache() *Cache { return e.cache }
func (e *Engine) State() State { return State(e.state.Load()) }
func (e *Engine) setState(s State) { e.state.Store(int32(s)) }
func (e *Engine) SetTrapHandler(h TrapHandler) { e.trap = h }
func (e *Engine) SetTracer(t Tracer) { e.tracer = t }
func (e *Engine) PC() uint64 { return e.core.PC() }
func (e *Engine) SetPC(pc uint64) { e.core.SetPC(pc) }

// Start runs from begin until PC reaches until, Stop is called, the guest
// halts, or a fault or internal error occurs. Guest faults are returned as
// values; the engine never resolves them itself.
//
// A Stop issued before Start is honored before the first block.
func (e *Engine) Start(begin, until uint64) error {
	e.halted = false
	e.core.SetPC(begin)
	for {
		if e.stop.Swap(false) || e.core.PC() == until {
			e.setState(StateStopped)
			return nil
		}
		if e.maxIns > 0 && e.Stats.Ins >= e.maxIns {
			e.setState(StateStopped)
			return ErrInsLimit
		}
		if err := e.RunBlock(); err != nil {
			return err
		}
		if e.halted {
			return nil
		}
	}
}

// Stop requests a stop at the next block boundary. Safe from any goroutine.
func (e *Engine) Stop() error {
	e.stop.Store(true)
	return nil
}

// Halted reports whether the guest itself ended the last run.
func (e *Engine) Halted() bool {
	return e.halted
}

// RunBlock executes exactly one block at the current PC.
func (e *Engine) RunBlock() error {
	pc := e.core.PC()
	e.setState(StateFetching)
	b, err := e.cache.LookupOrBuild(pc)
	if err != nil {
		if _, ok := err.(*InternalError); ok {
			e.setState(StateStopped)
			e.log.Error("engine", log.Addr(pc), log.Err(err))
		} else {
			e.setState(StateFaulted)
		}
		return err
	}
	e.Stats.Blocks++
	hooked := e.Hooks.Active()
	if hooked {
		e.OnBlock(pc, uint32(b.Size))
	}

	e.setState(StateExecuting)
	for i, exec := range b.Execs {
		ins := b.Insns[i]
		addr := ins.Addr()
		next := addr + uint64(ins.Len())
		if hooked {
			e.core.SetPC(addr)
			e.OnCode(addr, uint32(ins.Len()))
		}
		out := exec()
		switch out.Kind {
		case Continue:
			e.Stats.Ins++
			if e.tracer != nil {
				e.core.SetPC(next)
				e.tracer.Commit(ins)
			}
			// a store into this block evicted it, so the rest is stale
			if !b.Live() && i+1 < len(b.Execs) {
				e.core.SetPC(next)
				e.setState(StateContinuing)
				return nil
			}
			continue

		case Jump, Call, Return:
			e.Stats.Ins++
			e.core.SetPC(out.Target)
			e.setState(StateBranching)
			if e.tracer != nil {
				e.tracer.Commit(ins)
			}
			return nil

		case Trap:
			e.core.SetPC(next)
			e.setState(StateTrapping)
			e.Stats.Traps++
			e.OnIntr(uint32(out.Trap))
			if e.trap == nil {
				e.setState(StateFaulted)
				return errors.Errorf("trap %d at %#x with no handler", out.Trap, addr)
			}
			resume, err := e.trap.Trap(e, out.Trap, next)
			e.Stats.Ins++
			if e.tracer != nil {
				e.tracer.Commit(ins)
			}
			if err != nil {
				e.setState(StateStopped)
				return err
			}
			e.core.SetPC(resume)
			return nil

		case Fault:
			e.core.SetPC(addr)
			e.setState(StateFaulted)
			if e.tracer != nil {
				e.tracer.Discard()
			}
			return out.Err

		case Halt:
			e.Stats.Ins++
			e.core.SetPC(next)
			if e.tracer != nil {
				e.tracer.Commit(ins)
			}
			e.halted = true
			e.setState(StateStopped)
			return out.Err

		default:
			e.core.SetPC(addr)
			e.setState(StateStopped)
			return Internalf("unknown outcome %d at %#x", out.Kind, addr)
		}
	}
	e.core.SetPC(b.End())
	e.setState(StateContinuing)
	return nil
}

// cpu.Cpu implementation

func (e *Engine) Mem() *cpu.Mem { return e.mem }

func (e *Engine) MemMapProt(addr, size uint64, prot int) error { return e.mem.MemMapProt(addr, size, prot) }
func (e *Engine) MemProt(addr, size uint64, prot int) error { return e.mem.MemProt(addr, size, prot) }
func (e *Engine) MemUnmap(addr, size uint64) error { return e.mem.MemUnmap(addr, size) }
func (e *Engine) MemRead(addr, size uint64) ([]byte, error) { return e.mem.MemRead(addr, size) }
func (e *Engine) MemReadInto(p []byte, addr uint64) error { return e.mem.MemReadInto(p, addr) }
func (e *Engine) MemWrite(addr uint64, p []byte) error { return e.mem.MemWrite(addr, p) }

func (e *Engine) RegRead(reg int) (uint64, error) { return e.core.Regs().RegRead(reg) }
func (e *Engine) RegWrite(reg int, val uint64) error { return e.core.Regs().RegWrite(reg, val) }

func (e *Engine) ContextSave(reuse interface{}) (interface{}, error) {
	return e.core.Regs().ContextSave(reuse)
}

func (e *Engine) ContextRestore(ctx interface{}) error {
	return e.core.Regs().ContextRestore(ctx)
}

func (e *Engine) Close() error {
	e.cache.Flush()
	return nil
}
