package cpu

import (
	"github.com/pkg/errors"
)

type CodeCb func(c Cpu, addr uint64, size uint32)
type IntrCb func(c Cpu, intno uint32)
type MemCb func(c Cpu, access int, addr uint64, size int, val int64)
type MemFaultCb func(c Cpu, access int, addr uint64, size int, val int64) bool

type hookInfo struct {
	htype int
	start uint64
	end   uint64
}

func (h *hookInfo) Type() int {
	return h.htype
}

// start > end means the hook covers all addresses
func (h *hookInfo) Contains(addr uint64) bool {
	return h.start > h.end || addr >= h.start && addr <= h.end
}

type hinfo interface {
	Type() int
}

type codeHook struct {
	hookInfo
	cb CodeCb
}

type intrHook struct {
	hookInfo
	cb IntrCb
}

type memHook struct {
	hookInfo
	cb MemCb
}

type memFaultHook struct {
	hookInfo
	cb MemFaultCb
}

type Hooks struct {
	cpu Cpu

	code     []*codeHook
	block    []*codeHook
	intr     []*intrHook
	mem      []*memHook
	memFault []*memFaultHook
}

// creates &Hook{}, optionally attaching to a *Mem instance
func NewHooks(cpu Cpu, mem *Mem) *Hooks {
	h := &Hooks{cpu: cpu}
	if mem != nil {
		// mem will dispatch memory hooks automatically
		mem.hooks = h
	}
	return h
}

func asCode(cb interface{}) (CodeCb, bool) {
	switch f := cb.(type) {
	case CodeCb:
		return f, true
	case func(Cpu, uint64, uint32):
		return f, true
	}
	return nil, false
}

func (h *Hooks) HookAdd(htype int, cb interface{}, start uint64, end uint64, extra ...int) (Hook, error) {
	info := hookInfo{htype, start, end}
	var hook Hook
	badType := errors.Errorf("wrong callback type %T for hook type %d", cb, htype)
	switch htype {
	case HOOK_BLOCK, HOOK_CODE:
		f, ok := asCode(cb)
		if !ok {
			return nil, badType
		}
		hh := &codeHook{info, f}
		if htype == HOOK_BLOCK {
			h.block = append(h.block, hh)
		} else {
			h.code = append(h.code, hh)
		}
		hook = hh

	case HOOK_INTR:
		var f IntrCb
		switch v := cb.(type) {
		case IntrCb:
			f = v
		case func(Cpu, uint32):
			f = v
		default:
			return nil, badType
		}
		hh := &intrHook{info, f}
		h.intr, hook = append(h.intr, hh), hh

	case HOOK_MEM_READ, HOOK_MEM_WRITE, HOOK_MEM_FETCH, HOOK_MEM_READ | HOOK_MEM_WRITE:
		var f MemCb
		switch v := cb.(type) {
		case MemCb:
			f = v
		case func(Cpu, int, uint64, int, int64):
			f = v
		default:
			return nil, badType
		}
		hh := &memHook{info, f}
		h.mem, hook = append(h.mem, hh), hh

	case HOOK_MEM_ERR:
		var f MemFaultCb
		switch v := cb.(type) {
		case MemFaultCb:
			f = v
		case func(Cpu, int, uint64, int, int64) bool:
			f = v
		default:
			return nil, badType
		}
		hh := &memFaultHook{info, f}
		h.memFault, hook = append(h.memFault, hh), hh

	default:
		return nil, errors.Errorf("unknown hook type: %d", htype)
	}
	return hook, nil
}

func without[T comparable](list []T, v T) []T {
	var tmp []T
	for _, x := range list {
		if x != v {
			tmp = append(tmp, x)
		}
	}
	return tmp
}

func (h *Hooks) HookDel(hh Hook) error {
	switch v := hh.(type) {
	case *codeHook:
		if v.htype == HOOK_BLOCK {
			h.block = without(h.block, v)
		} else {
			h.code = without(h.code, v)
		}
	case *intrHook:
		h.intr = without(h.intr, v)
	case *memHook:
		h.mem = without(h.mem, v)
	case *memFaultHook:
		h.memFault = without(h.memFault, v)
	default:
		return errors.Errorf("not a hook: %T", hh)
	}
	return nil
}

// Active reports whether any code or block hooks are installed.
func (h *Hooks) Active() bool {
	return len(h.code) > 0 || len(h.block) > 0
}

func (h *Hooks) OnBlock(addr uint64, size uint32) {
	for _, v := range h.block {
		if v.Contains(addr) {
			v.cb(h.cpu, addr, size)
		}
	}
}

func (h *Hooks) OnCode(addr uint64, size uint32) {
	for _, v := range h.code {
		if v.Contains(addr) {
			v.cb(h.cpu, addr, size)
		}
	}
}

func (h *Hooks) OnIntr(intno uint32) {
	for _, v := range h.intr {
		v.cb(h.cpu, intno)
	}
}

func (h *Hooks) OnMem(access int, addr uint64, size int, val int64) {
	for _, v := range h.mem {
		if !v.Contains(addr) {
			continue
		}
		switch {
		case access == MEM_READ && v.htype&HOOK_MEM_READ != 0,
			access == MEM_WRITE && v.htype&HOOK_MEM_WRITE != 0,
			access == MEM_FETCH && v.htype&HOOK_MEM_FETCH != 0:
			v.cb(h.cpu, access, addr, size, val)
		}
	}
}

func (h *Hooks) OnFault(access int, addr uint64, size int, val int64) bool {
	for _, v := range h.memFault {
		if v.Contains(addr) {
			if v.cb(h.cpu, access, addr, size, val) {
				return true
			}
		}
	}
	return false
}
