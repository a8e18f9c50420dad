package linux

import (
	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/log"
)

const (
	PR_SET_VMA      = 0x53564d41
	PR_GET_DUMPABLE = 0x3
	PR_SET_DUMPABLE = 0x4
	PR_SET_NAME     = 0xf
)

func (k *LinuxKernel) Prctl(code int, arg uint64) uint64 {
	switch code {
	case PR_SET_VMA, PR_SET_NAME:
		return 0
	case PR_GET_DUMPABLE:
		return k.IsDumpable
	case PR_SET_DUMPABLE:
		if arg > 1 {
			return co.Errno(co.EINVAL)
		}
		k.IsDumpable = arg
		return 0
	}
	if k.U != nil {
		k.U.Log().Warn("unsupported prctl option", log.Ptr("code", uint64(code)))
	}
	return co.Errno(co.EINVAL)
}
