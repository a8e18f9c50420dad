package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// guest (Linux) errno values the bridge itself returns
const (
	EFAULT = 14
	EINVAL = 22
	ENOSYS = 38
)

// Errno encodes -errno as a return word.
func Errno(n int) uint64 {
	return uint64(-int64(n))
}

var ErrUnhandledTrap = errors.New("unhandled trap")

// TrapError stops the engine when a system call's guest memory access
// faults during marshaling. Err is the *cpu.MemError.
type TrapError struct {
	Name string
	Err  error
}

func (t *TrapError) Error() string {
	return fmt.Sprintf("syscall %s: %v", t.Name, t.Err)
}

func (t *TrapError) Cause() error { return t.Err }
