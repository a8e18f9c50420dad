package posix

import (
	"github.com/pkg/errors"

	co "github.com/lunixbochs/transcorn/go/kernel/common"
)

var errBadIovec = errors.New("iovec count over IOV_MAX")

type Iovec32 struct {
	Base uint32
	Len  uint32
}

type Iovec64 struct {
	Base uint64
	Len  uint64
}

// iovecs reads count iovecs laid out for the guest word size.
func (k *PosixKernel) iovecs(iov co.Buf, count uint64) ([]Iovec64, error) {
	if count > maxIov {
		return nil, errBadIovec
	}
	st := iov.Struc()
	vecs := make([]Iovec64, 0, count)
	for i := uint64(0); i < count; i++ {
		var vec Iovec64
		if k.bits() == 64 {
			if err := st.Unpack(&vec); err != nil {
				return nil, err
			}
		} else {
			var v32 Iovec32
			if err := st.Unpack(&v32); err != nil {
				return nil, err
			}
			vec = Iovec64{uint64(v32.Base), uint64(v32.Len)}
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

func iovErrno(err error) uint64 {
	if err == errBadIovec {
		return co.Errno(co.EINVAL)
	}
	return co.Errno(co.EFAULT)
}

// vectored runs one transfer per iovec, stopping at the first error or short
// count. A failure after some bytes moved returns the running total.
func (k *PosixKernel) vectored(iov co.Buf, count uint64, fn func(vec Iovec64) uint64) uint64 {
	vecs, err := k.iovecs(iov, count)
	if err != nil {
		return iovErrno(err)
	}
	var total uint64
	for _, vec := range vecs {
		if vec.Len == 0 {
			continue
		}
		n := fn(vec)
		if int64(n) < 0 {
			if total > 0 {
				break
			}
			return n
		}
		total += n
		if n < vec.Len {
			break
		}
	}
	return total
}

func (k *PosixKernel) Readv(fd co.Fd, iov co.Buf, count uint64) uint64 {
	return k.vectored(iov, count, func(vec Iovec64) uint64 {
		return k.Read(fd, co.Obuf{Buf: co.NewBuf(k, vec.Base)}, co.Len(vec.Len))
	})
}

func (k *PosixKernel) Writev(fd co.Fd, iov co.Buf, count uint64) uint64 {
	return k.vectored(iov, count, func(vec Iovec64) uint64 {
		return k.Write(fd, co.NewBuf(k, vec.Base), co.Len(vec.Len))
	})
}
