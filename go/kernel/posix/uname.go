package posix

import (
	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/models"
)

const utsLen = 65

func (k *PosixKernel) Uname(buf co.Obuf) uint64 {
	un := models.LinuxUname(k.Machine)
	un.Pad(utsLen)
	out := un.Sysname + un.Nodename + un.Release + un.Version + un.Machine + un.Domainname
	if err := buf.Pack(out); err != nil {
		return co.Errno(co.EFAULT)
	}
	return 0
}
