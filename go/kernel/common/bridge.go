package common

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/log"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// ABI is an architecture's system call convention.
type ABI interface {
	// Syscall returns the call number for a trap, or false if the trap
	// isn't a system call.
	Syscall(c cpu.Cpu, kind int) (int, bool)
	// Name maps a call number to a kernel method name, "" if unknown.
	Name(num int) string
	// Args reads the first n argument words.
	Args(c cpu.Cpu, n int) ([]uint64, error)
	Return(c cpu.Cpu, ret uint64) error
}

// RegArgs reads call arguments from regs in order.
func RegArgs(c cpu.Cpu, regs []int, n int) ([]uint64, error) {
	if n > len(regs) {
		return nil, errors.Errorf("%d syscall args wanted, ABI has %d", n, len(regs))
	}
	ret := make([]uint64, n)
	for i := range ret {
		val, err := c.RegRead(regs[i])
		if err != nil {
			return nil, err
		}
		ret[i] = val
	}
	return ret, nil
}

// Bridge services system call traps from an engine: it decodes the call
// with the ABI, dispatches it to the first kernel that has it and writes
// the result back.
type Bridge struct {
	ABI     ABI
	Kernels []Kernel
	Log     *log.Logger

	// log every call at info level
	Strace bool
	// return -EFAULT instead of stopping on a marshaling fault
	Efault bool
	// unknown calls return 0 instead of -ENOSYS
	Stub bool

	Count uint64
	hooks []*models.SysHook
}

func NewBridge(abi ABI, kernels ...Kernel) *Bridge {
	for _, k := range kernels {
		if k.UsercornKernel().Syscalls == nil {
			initKernel(k)
		}
	}
	return &Bridge{ABI: abi, Kernels: kernels, Log: log.NewNop()}
}

// NewProcessBridge configures a bridge from u's kernel settings.
func NewProcessBridge(u models.Usercorn, abi ABI, kernels ...Kernel) *Bridge {
	b := NewBridge(abi, kernels...)
	conf := u.Config()
	b.Log = u.Log().Named("kernel")
	b.Strace = conf.Strace
	b.Efault = conf.Efault
	b.Stub = conf.StubSyscalls
	return b
}

func (b *Bridge) HookSysAdd(before, after models.SysCb) *models.SysHook {
	hook := &models.SysHook{Before: before, After: after}
	b.hooks = append(b.hooks, hook)
	return hook
}

func (b *Bridge) HookSysDel(hook *models.SysHook) {
	for i, h := range b.hooks {
		if h == hook {
			b.hooks = append(b.hooks[:i], b.hooks[i+1:]...)
			return
		}
	}
}

func (b *Bridge) lookup(name string) *Syscall {
	for _, k := range b.Kernels {
		if sys := Lookup(k, name); sys != nil {
			return sys
		}
	}
	return nil
}

// Trap implements dbt.TrapHandler.
func (b *Bridge) Trap(c cpu.Cpu, kind int, next uint64) (uint64, error) {
	num, ok := b.ABI.Syscall(c, kind)
	if !ok {
		return next, errors.Wrapf(ErrUnhandledTrap, "trap %d before %#x", kind, next)
	}
	b.Count++
	name := b.ABI.Name(num)
	if name == "" {
		name = fmt.Sprintf("sys_%d", num)
	}
	sys := b.lookup(name)
	nargs := 0
	if sys != nil {
		nargs = len(sys.In)
	}
	args, err := b.ABI.Args(c, nargs)
	if err != nil {
		return next, errors.Wrapf(err, "reading %s args", name)
	}
	for _, h := range b.hooks {
		if h.Before != nil {
			h.Before(num, name, args, 0, "")
		}
	}

	var ret uint64
	var desc string
	if sys == nil {
		ret = Errno(ENOSYS)
		if b.Stub {
			ret = 0
		}
		desc = fmt.Sprintf("%s(...) = %s", name, hex(int64(ret)))
		b.Log.Warn("unknown syscall", log.String("name", name), log.Int("num", num))
	} else {
		var in []interface{}
		ret, in, err = sys.call(c, args)
		if err != nil {
			if _, ok := err.(*TrapError); !ok || !b.Efault {
				b.Log.Debug("syscall fault", log.String("name", name), log.Err(err))
				return next, err
			}
			ret = Errno(EFAULT)
			desc = fmt.Sprintf("%s(...) = %s", name, hex(int64(ret)))
		} else if b.Strace || len(b.hooks) > 0 {
			desc = sys.Trace(in) + sys.TraceRet(args, ret)
		}
	}
	if err := b.ABI.Return(c, ret); err != nil {
		return next, errors.Wrapf(err, "returning from %s", name)
	}
	for _, h := range b.hooks {
		if h.After != nil {
			h.After(num, name, args, ret, desc)
		}
	}
	if b.Strace {
		b.Log.Info("syscall", log.String("call", desc))
	}
	return next, nil
}
