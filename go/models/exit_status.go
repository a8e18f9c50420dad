package models

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/dbt"
)

// ExitStatus is returned when the guest exits on its own.
type ExitStatus int

func (e ExitStatus) Error() string {
	return fmt.Sprintf("exit %d", e)
}

// process exit codes for runs that didn't end in a guest exit
const (
	ExitOK       = 0
	ExitFault    = 1
	ExitBinary   = 2
	ExitInternal = 3
)

// ErrInvalidBinary marks a target that can't be loaded. Loaders wrap it.
var ErrInvalidBinary = errors.New("invalid binary")

// ExitCode classifies a run's result into a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	cause := errors.Cause(err)
	if e, ok := cause.(ExitStatus); ok {
		return int(e)
	}
	if cause == ErrInvalidBinary {
		return ExitBinary
	}
	switch cause.(type) {
	case *dbt.InternalError:
		return ExitInternal
	}
	// faults, instruction limits and trap errors all stop the guest early
	return ExitFault
}
