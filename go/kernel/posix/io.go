package posix

import (
	"golang.org/x/sys/unix"

	co "github.com/lunixbochs/transcorn/go/kernel/common"
)

const AT_FDCWD = -100

func (k *PosixKernel) Read(fd co.Fd, buf co.Obuf, size co.Len) uint64 {
	return k.copyIn(buf, uint64(size), false, func(p []byte) (int, error) {
		return unix.Read(int(fd), p)
	})
}

func (k *PosixKernel) Write(fd co.Fd, buf co.Buf, size co.Len) uint64 {
	return k.copyOut(buf, uint64(size), func(p []byte) (int, error) {
		return unix.Write(int(fd), p)
	})
}

func (k *PosixKernel) Pread64(fd co.Fd, buf co.Obuf, size co.Len, off co.Off) uint64 {
	pos := int64(off)
	return k.copyIn(buf, uint64(size), true, func(p []byte) (int, error) {
		n, err := unix.Pread(int(fd), p, pos)
		pos += int64(n)
		return n, err
	})
}

func (k *PosixKernel) Pwrite64(fd co.Fd, buf co.Buf, size co.Len, off co.Off) uint64 {
	pos := int64(off)
	return k.copyOut(buf, uint64(size), func(p []byte) (int, error) {
		n, err := unix.Pwrite(int(fd), p, pos)
		pos += int64(n)
		return n, err
	})
}

func (k *PosixKernel) Open(path string, flags int, mode uint32) uint64 {
	return k.Openat(AT_FDCWD, path, flags, mode)
}

func (k *PosixKernel) Openat(dirfd co.Fd, path string, flags int, mode uint32) uint64 {
	if len(path) > 0 && path[0] == '/' {
		path = k.prefix(path)
	}
	fd, err := unix.Openat(int(dirfd), path, flags, mode)
	if err != nil {
		return Errno(err)
	}
	return uint64(fd)
}

// Close leaves the standard descriptors open, since they are shared with
// the emulator.
func (k *PosixKernel) Close(fd co.Fd) uint64 {
	if fd >= 0 && fd <= 2 {
		return 0
	}
	return Errno(unix.Close(int(fd)))
}

func (k *PosixKernel) Lseek(fd co.Fd, offset co.Off, whence int) uint64 {
	off, err := unix.Seek(int(fd), int64(offset), whence)
	if err != nil {
		return Errno(err)
	}
	return uint64(off)
}

func (k *PosixKernel) Dup(oldFd co.Fd) uint64 {
	fd, err := unix.Dup(int(oldFd))
	if err != nil {
		return Errno(err)
	}
	return uint64(fd)
}

func (k *PosixKernel) Pipe(fds co.Obuf) uint64 {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return Errno(err)
	}
	out := make([]byte, 8)
	order := k.Mem().Order()
	order.PutUint32(out, uint32(p[0]))
	order.PutUint32(out[4:], uint32(p[1]))
	if err := fds.Pack(out); err != nil {
		unix.Close(p[0])
		unix.Close(p[1])
		return co.Errno(co.EFAULT)
	}
	return 0
}

func (k *PosixKernel) Unlink(path string) uint64 {
	return Errno(unix.Unlink(k.prefix(path)))
}

func (k *PosixKernel) Access(path string, amode uint32) uint64 {
	return Errno(unix.Access(k.prefix(path), amode))
}

func (k *PosixKernel) Readlink(path string, buf co.Obuf, size co.Len) uint64 {
	var name string
	if path == "/proc/self/exe" && k.U != nil {
		name = k.U.Exe()
	} else {
		tmp := make([]byte, min(uint64(size), maxPath))
		n, err := unix.Readlink(k.prefix(path), tmp)
		if err != nil {
			return Errno(err)
		}
		name = string(tmp[:n])
	}
	if uint64(len(name)) > uint64(size) {
		name = name[:size]
	}
	if err := buf.Pack(name); err != nil {
		return co.Errno(co.EFAULT)
	}
	return uint64(len(name))
}

// Getcwd returns the length written, including the NUL.
func (k *PosixKernel) Getcwd(buf co.Obuf, size co.Len) uint64 {
	wd, err := unix.Getwd()
	if err != nil {
		return Errno(err)
	}
	wd += "\x00"
	if uint64(len(wd)) > uint64(size) {
		return co.Errno(int(unix.ERANGE))
	}
	if err := buf.Pack(wd); err != nil {
		return co.Errno(co.EFAULT)
	}
	return uint64(len(wd))
}
