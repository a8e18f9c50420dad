package linux

import co "github.com/lunixbochs/transcorn/go/kernel/common"

const (
	SS_ONSTACK    = 1
	SS_DISABLE    = 2
	SS_AUTODISARM = 1 << 31
)

// Stack64 is stack_t on 64-bit targets.
type Stack64 struct {
	Sp    uint64
	Flags int32
	Pad   uint32
	Size  uint64
}

// Sigaltstack only records the stack. Signals are never delivered.
func (k *LinuxKernel) Sigaltstack(nss co.Buf, oss co.Obuf) uint64 {
	if oss.Addr != 0 {
		if err := oss.Pack(&k.CurrentStack); err != nil {
			return co.Errno(co.EFAULT)
		}
	}
	if nss.Addr != 0 {
		var st Stack64
		if err := nss.Unpack(&st); err != nil {
			return co.Errno(co.EFAULT)
		}
		if uint32(st.Flags)&^(SS_DISABLE|SS_AUTODISARM) != 0 {
			return co.Errno(co.EINVAL)
		}
		k.CurrentStack = st
	}
	return 0
}
