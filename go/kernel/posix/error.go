package posix

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	co "github.com/lunixbochs/transcorn/go/kernel/common"
)

// Errno converts a host error to a negated errno word. Errors that don't
// carry an errno become -EINVAL.
func Errno(err error) uint64 {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return co.Errno(int(errno))
	}
	return co.Errno(co.EINVAL)
}
