package common

import (
	"reflect"

	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type Syscall struct {
	Name     string
	Kernel   *KernelBase
	Instance reflect.Value
	Method   reflect.Method
	In       []reflect.Type
	Out      []reflect.Type
	UintArr  bool
}

var uint64Type = reflect.TypeOf(uint64(0))

// Call converts the raw argument words, calls the kernel method and
// returns its first result as a word. The error is non-nil only for a
// *TrapError: a guest memory fault while marshaling. Bad arguments return
// -EINVAL to the guest instead.
func (sys Syscall) Call(c cpu.Cpu, args []uint64) (uint64, error) {
	ret, _, err := sys.call(c, args)
	return ret, err
}

// call also returns the converted arguments, for tracing.
func (sys Syscall) call(c cpu.Cpu, args []uint64) (uint64, []interface{}, error) {
	k := sys.Kernel
	if c != nil {
		k.Cpu = c
	}
	k.fault = nil
	if len(args) < len(sys.In) {
		return Errno(EINVAL), nil, nil
	}
	converted, err := k.Argjoy.Convert(sys.In, false, args[:len(sys.In)])
	if k.fault != nil {
		return 0, nil, &TrapError{Name: sys.Name, Err: k.fault}
	} else if err != nil {
		return Errno(EINVAL), nil, nil
	}
	in := make([]reflect.Value, 0, len(converted)+2)
	in = append(in, sys.Instance)
	if sys.UintArr {
		in = append(in, reflect.ValueOf(args))
	}
	in = append(in, converted...)
	out := sys.Method.Func.Call(in)
	if k.fault != nil {
		return 0, nil, &TrapError{Name: sys.Name, Err: k.fault}
	}

	vals := make([]interface{}, len(converted))
	for i, v := range converted {
		vals[i] = v.Interface()
	}
	if len(out) > 0 && out[0].Type().ConvertibleTo(uint64Type) {
		return toWord(out[0]), vals, nil
	}
	return 0, vals, nil
}

// toWord sign-extends signed results so -1 comes back as ^0.
func toWord(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(v.Int())
	}
	return v.Convert(uint64Type).Uint()
}
