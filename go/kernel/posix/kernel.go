package posix

import (
	"github.com/lunixbochs/transcorn/go/models"
	co "github.com/lunixbochs/transcorn/go/kernel/common"
)

// PosixKernel services the system calls shared by every POSIX guest by
// forwarding them to the host. File descriptors are host descriptors.
type PosixKernel struct {
	co.KernelBase
	// reported by uname
	Machine string
}

// NewKernel returns a kernel bound to u. u may be nil, in which case calls
// that need the process (brk, exit, path prefixing) act on the trapping
// context alone.
func NewKernel(u models.Usercorn, machine string) *PosixKernel {
	k := &PosixKernel{Machine: machine}
	k.UsercornInit(k, u)
	if u != nil {
		k.Strsize = u.Config().Strsize
	}
	return k
}

func (k *PosixKernel) prefix(path string) string {
	if k.U != nil {
		return k.U.PrefixPath(path, false)
	}
	return path
}

func (k *PosixKernel) bits() uint {
	return k.Mem().Bits()
}
