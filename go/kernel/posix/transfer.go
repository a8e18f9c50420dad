package posix

import (
	co "github.com/lunixbochs/transcorn/go/kernel/common"
)

const (
	// host buffers never grow past this, whatever the guest asks for
	ioChunk = 1 << 16
	// the most a single read or write moves
	maxRW = 0x7ffff000
	// IOV_MAX
	maxIov = 1024
	// PATH_MAX
	maxPath = 4096
)

// rwLen clamps a transfer length, or fails if addr:size can't be a guest
// range at all.
func (k *PosixKernel) rwLen(addr, size uint64) (uint64, bool) {
	if !k.Mem().Addressable(addr, size) {
		return 0, false
	}
	return min(size, maxRW), true
}

// copyOut feeds guest bytes from buf to fn one chunk at a time, stopping at
// a short write or the first unmapped byte, and returns the bytes taken.
func (k *PosixKernel) copyOut(buf co.Buf, size uint64, fn func(p []byte) (int, error)) uint64 {
	size, ok := k.rwLen(buf.Addr, size)
	if !ok {
		return co.Errno(co.EFAULT)
	}
	var tmp []byte
	var done uint64
	for done < size {
		at := buf.At(done)
		n, err := at.Span(min(size-done, ioChunk))
		if err != nil {
			if done == 0 {
				return co.Errno(co.EFAULT)
			}
			break
		}
		if tmp == nil {
			tmp = make([]byte, min(size, ioChunk))
		}
		p := tmp[:n]
		if err := at.Unpack(p); err != nil {
			return co.Errno(co.EFAULT)
		}
		w, err := fn(p)
		if err != nil {
			if done == 0 {
				return Errno(err)
			}
			break
		}
		done += uint64(w)
		if uint64(w) < n {
			break
		}
	}
	return done
}

// copyIn fills guest memory at buf from fn one chunk at a time. Unless more
// is set it stops after the first chunk, since a read of a pipe or terminal
// may not have more to give without blocking.
func (k *PosixKernel) copyIn(buf co.Obuf, size uint64, more bool, fn func(p []byte) (int, error)) uint64 {
	size, ok := k.rwLen(buf.Addr, size)
	if !ok {
		return co.Errno(co.EFAULT)
	}
	var tmp []byte
	var done uint64
	for done < size {
		at := buf.At(done)
		n, err := at.Span(min(size-done, ioChunk))
		if err != nil {
			if done == 0 {
				return co.Errno(co.EFAULT)
			}
			break
		}
		if tmp == nil {
			tmp = make([]byte, min(size, ioChunk))
		}
		r, err := fn(tmp[:n])
		if err != nil {
			if done == 0 {
				return Errno(err)
			}
			break
		}
		if err := at.Pack(tmp[:r]); err != nil {
			return co.Errno(co.EFAULT)
		}
		done += uint64(r)
		if !more || uint64(r) < n {
			break
		}
	}
	return done
}
