package posix

import (
	"fmt"

	"golang.org/x/sys/unix"

	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

const (
	MAP_FIXED     = 0x10
	MAP_ANONYMOUS = 0x20
)

// Mmap maps anonymous memory, or copies the file range in for a file
// mapping. Writes to a file mapping are not written back.
func (k *PosixKernel) Mmap(addrHint, size uint64, prot int, flags int, fd co.Fd, off co.Off) uint64 {
	if size == 0 {
		return co.Errno(co.EINVAL)
	}
	fixed := flags&MAP_FIXED != 0
	desc := "mmap"
	anon := flags&MAP_ANONYMOUS != 0 || fd < 0
	if !anon {
		desc = fmt.Sprintf("mmap fd %d", fd)
	}
	var addr uint64
	var err error
	if k.U != nil {
		addr, err = k.U.Mmap(addrHint, size, prot, fixed, desc)
	} else {
		addr, err = k.Mem().Mmap(addrHint, size, prot, fixed, desc)
	}
	if err != nil {
		return co.Errno(int(unix.ENOMEM))
	}
	if !anon {
		n, err := k.mapFile(addr, size, int(fd), int64(off))
		if err != nil {
			k.Mem().MemUnmap(addr, size)
			return Errno(err)
		}
		if page := k.Mem().Find(addr); page != nil {
			page.File = &cpu.FileDesc{Name: desc, Off: uint64(off), Len: n}
		}
	}
	return addr
}

// mapFile copies the file in chunk by chunk until EOF or size bytes.
func (k *PosixKernel) mapFile(addr, size uint64, fd int, off int64) (uint64, error) {
	tmp := make([]byte, min(size, ioChunk))
	var done uint64
	for done < size {
		p := tmp[:min(size-done, ioChunk)]
		n, err := unix.Pread(fd, p, off+int64(done))
		if err != nil {
			return done, err
		}
		if err := k.Mem().MemWrite(addr+done, p[:n]); err != nil {
			return done, err
		}
		done += uint64(n)
		if n < len(p) {
			break
		}
	}
	return done, nil
}

func (k *PosixKernel) Munmap(addr, size uint64) uint64 {
	if err := k.Mem().MemUnmap(addr, size); err != nil {
		return co.Errno(co.EINVAL)
	}
	return 0
}

func (k *PosixKernel) Mprotect(addr, size uint64, prot int) uint64 {
	if err := k.Mem().MemProt(addr, size, prot); err != nil {
		return co.Errno(int(unix.ENOMEM))
	}
	return 0
}

// Brk returns the new break, or the current one if it can't move.
func (k *PosixKernel) Brk(addr uint64) uint64 {
	if k.U == nil {
		return 0
	}
	ret, _ := k.U.Brk(addr)
	return ret
}
