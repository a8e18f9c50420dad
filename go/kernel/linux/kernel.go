// Package linux is the Linux personality on top of the POSIX host kernel.
package linux

import (
	"github.com/lunixbochs/transcorn/go/kernel/posix"
	"github.com/lunixbochs/transcorn/go/models"
)

type LinuxKernel struct {
	*posix.PosixKernel

	IsDumpable   uint64
	CurrentStack Stack64
}

// DefaultKernel returns a kernel whose dispatch table still needs building.
// Embedders that add calls should build it with UsercornInit on the outer type.
func DefaultKernel(u models.Usercorn, machine string) *LinuxKernel {
	return &LinuxKernel{
		PosixKernel: posix.NewKernel(u, machine),
		IsDumpable:  1,
	}
}

func NewKernel(u models.Usercorn, machine string) *LinuxKernel {
	k := DefaultKernel(u, machine)
	k.UsercornInit(k, u)
	return k
}
