package common

import (
	"fmt"
	"reflect"
	"strings"
)

// Repr quotes p for strace output, escaping unprintable bytes and
// truncating to strsize characters.
func Repr(p []byte, strsize int) string {
	tmp := make([]string, len(p))
	for i, b := range p {
		if b >= 0x20 && b <= 0x7e && b != '"' && b != '\\' {
			tmp[i] = string(b)
		} else {
			tmp[i] = fmt.Sprintf("\\x%02x", b)
		}
	}
	out := strings.Join(tmp, "")
	if strsize > 0 && len(out) > strsize {
		i := len(tmp)
		for ; i > 0 && len(out) > strsize-3; i-- {
			out = strings.Join(tmp[:i-1], "")
		}
		return "\"" + out + "\"..."
	}
	return "\"" + out + "\""
}

func hex(a interface{}) string {
	tmp := fmt.Sprintf("0x%x", a)
	if strings.HasPrefix(tmp, "0x-") {
		tmp = "-0x" + tmp[3:]
	}
	return tmp
}

func (s Syscall) traceArg(args ...interface{}) string {
	switch arg := args[0].(type) {
	case Obuf:
		return hex(arg.Addr)
	case Buf:
		if len(args) > 1 {
			if length, ok := args[1].(Len); ok {
				if mem, err := s.Kernel.Mem().MemRead(arg.Addr, uint64(length)); err == nil {
					return Repr(mem, s.Kernel.Strsize)
				}
			}
		}
		return hex(arg.Addr)
	case Off:
		return hex(int64(arg))
	case Ptr:
		return hex(uint64(arg))
	case Fd:
		return fmt.Sprintf("%d", int32(arg))
	case string:
		return Repr([]byte(arg), s.Kernel.Strsize)
	case uint64:
		return hex(arg)
	default:
		return fmt.Sprintf("%v", arg)
	}
}

// Trace renders a call from its converted arguments.
func (s Syscall) Trace(in []interface{}) string {
	ret := make([]string, len(in))
	for i := range in {
		ret[i] = s.traceArg(in[i:]...)
	}
	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(ret, ", "))
}

// TraceRet renders the result, including what the call wrote to an Obuf
// followed by a Len.
func (s Syscall) TraceRet(args []uint64, ret uint64) string {
	var out []string
	obuf := reflect.TypeOf(Obuf{})
	for i, typ := range s.In {
		if typ == obuf && len(args) > i+1 {
			length := int64(ret)
			if length >= 0 && uint64(length) <= args[i+1] {
				if mem, err := s.Kernel.Mem().MemRead(args[i], uint64(length)); err == nil {
					out = append(out, Repr(mem, s.Kernel.Strsize))
				}
			}
		}
	}
	if len(s.Out) > 0 {
		out = append(out, hex(int64(ret)))
	}
	if len(out) > 0 {
		return " = " + strings.Join(out, ", ")
	}
	return ""
}
