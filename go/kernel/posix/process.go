package posix

import (
	"os"

	"github.com/lunixbochs/transcorn/go/models"
)

// Exit stops the guest with code as its status.
func (k *PosixKernel) Exit(code int) {
	if k.U != nil {
		k.U.Exit(models.ExitStatus(code))
	} else if s, ok := k.Cpu.(interface{ Stop() error }); ok {
		s.Stop()
	}
}

func (k *PosixKernel) ExitGroup(code int) {
	k.Exit(code)
}

func (k *PosixKernel) Getpid() int {
	return os.Getpid()
}

func (k *PosixKernel) Getppid() int {
	return os.Getppid()
}

// the guest is single threaded, so its only thread id is its pid
func (k *PosixKernel) Gettid() int {
	return os.Getpid()
}

func (k *PosixKernel) SetTidAddress(tidptr uint64) int {
	return os.Getpid()
}
