package posix

import co "github.com/lunixbochs/transcorn/go/kernel/common"

// Calls a single threaded guest can safely treat as successful no-ops.

func (k *PosixKernel) Ioctl(fd co.Fd, req uint64) {}
func (k *PosixKernel) Fcntl(fd co.Fd, cmd int)    {}

func (k *PosixKernel) RtSigprocmask() {}
func (k *PosixKernel) RtSigaction()   {}
func (k *PosixKernel) SchedYield()    {}
func (k *PosixKernel) Madvise()       {}
func (k *PosixKernel) Mlock()         {}
func (k *PosixKernel) Munlock()       {}
func (k *PosixKernel) SetRobustList() {}
func (k *PosixKernel) Prlimit64()     {}
