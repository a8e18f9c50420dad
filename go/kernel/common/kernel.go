package common

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lunixbochs/argjoy"
	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// KernelBase is embedded by every kernel. Exported methods of the
// embedding type become system calls named by snake-casing the method
// name, so Getpid serves "getpid" and SetTidAddress serves
// "set_tid_address". A "Literal" prefix keeps the rest of the name as is.
//
// A kernel serves one engine at a time: Cpu and the pending fault belong to
// the syscall in progress. Engines sharing a cpu.Mem need a kernel each.
type KernelBase struct {
	Syscalls map[string]Syscall
	U        models.Usercorn
	// the context whose trap is being serviced
	Cpu    cpu.Cpu
	Argjoy argjoy.Argjoy
	// Pack overrides Buf.Pack for types that need a guest layout.
	// Return argjoy.NoMatch to fall through to struc.
	Pack func(b Buf, i interface{}) error
	// strace string truncation, 0 for no limit
	Strsize int

	fault error
}

func (k *KernelBase) UsercornKernel() *KernelBase {
	return k
}

type Kernel interface {
	UsercornKernel() *KernelBase
}

// Mem is the address space of the current trap.
func (k *KernelBase) Mem() *cpu.Mem {
	if k.Cpu != nil {
		return k.Cpu.Mem()
	}
	return k.U.Mem()
}

// noteFault remembers the first guest memory fault hit while marshaling
// the current call. It returns err unchanged.
func (k *KernelBase) noteFault(err error) error {
	if k.fault == nil {
		if merr, ok := errors.Cause(err).(*cpu.MemError); ok {
			k.fault = merr
		}
	}
	return err
}

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}

var (
	baseMethods = methodSet(reflect.TypeOf(&KernelBase{}))
	uint64Slice = reflect.TypeOf([]uint64(nil))
)

func methodSet(typ reflect.Type) map[string]bool {
	set := make(map[string]bool, typ.NumMethod())
	for i := 0; i < typ.NumMethod(); i++ {
		set[typ.Method(i).Name] = true
	}
	return set
}

func initKernel(kf Kernel) {
	k := kf.UsercornKernel()
	k.Syscalls = make(map[string]Syscall)
	instance := reflect.ValueOf(kf)
	typ := instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		name := method.Name
		if baseMethods[name] {
			continue
		}
		if strings.HasPrefix(name, "Literal") {
			name = strings.Replace(name, "Literal", "", 1)
		} else if r, size := utf8.DecodeRuneInString(name); size <= 0 || !unicode.IsUpper(r) {
			continue
		}
		name = camelToSnakeCase(name)
		in := make([]reflect.Type, method.Type.NumIn()-1)
		for j := 1; j < method.Type.NumIn(); j++ {
			in[j-1] = method.Type.In(j)
		}
		// a leading []uint64 receives the raw argument words
		uintArr := len(in) > 0 && in[0] == uint64Slice
		if uintArr {
			in = in[1:]
		}
		out := make([]reflect.Type, method.Type.NumOut())
		for j := 0; j < method.Type.NumOut(); j++ {
			out[j] = method.Type.Out(j)
		}
		k.Syscalls[name] = Syscall{
			Name:     name,
			Kernel:   k,
			Instance: instance,
			Method:   method,
			In:       in,
			Out:      out,
			UintArr:  uintArr,
		}
	}
	k.Argjoy.Register(k.commonArgCodec)
	k.Argjoy.Register(argjoy.IntToInt)
}

// UsercornInit builds the dispatch table for kf. u may be nil when the
// kernel is only driven through traps.
func (k *KernelBase) UsercornInit(kf Kernel, u models.Usercorn) {
	k.U = u
	initKernel(kf)
}

func (k *KernelBase) UsercornSyscall(name string) *Syscall {
	if sys, ok := k.Syscalls[name]; ok {
		return &sys
	}
	return nil
}

// Lookup finds name in kf, building its table on first use.
func Lookup(kf Kernel, name string) *Syscall {
	k := kf.UsercornKernel()
	if k.Syscalls == nil {
		initKernel(kf)
	}
	return k.UsercornSyscall(name)
}
