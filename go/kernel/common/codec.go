package common

import (
	"github.com/lunixbochs/argjoy"
)

// commonArgCodec turns a raw register argument into the typed value a
// syscall handler asked for. Strings are read from guest memory.
func (k *KernelBase) commonArgCodec(arg interface{}, vals []interface{}) error {
	reg, ok := vals[0].(uint64)
	if !ok {
		return argjoy.NoMatch
	}
	switch v := arg.(type) {
	case *Buf:
		*v = NewBuf(k, reg)
	case *Obuf:
		v.Buf = NewBuf(k, reg)
	case *Ptr:
		*v = Ptr(reg)
	case *Len:
		*v = Len(reg)
	case *Off:
		*v = Off(int64(reg))
	case *Fd:
		*v = Fd(int32(reg))
	case *string:
		s, err := k.Mem().ReadStrAt(reg)
		if err != nil {
			return k.noteFault(err)
		}
		*v = s
	default:
		return argjoy.NoMatch
	}
	return nil
}
