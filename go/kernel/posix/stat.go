package posix

import (
	"golang.org/x/sys/unix"

	co "github.com/lunixbochs/transcorn/go/kernel/common"
)

// LinuxStat is the i386 struct stat.
type LinuxStat struct {
	Dev      uint32
	Ino      uint32
	Mode     uint16
	Nlink    uint16
	Uid, Gid uint32
	Rdev     uint32
	Size     uint32
	Blksize  uint32
	Blkcnt   uint32

	Atime     uint32
	AtimeNsec uint32
	Mtime     uint32
	MtimeNsec uint32
	Ctime     uint32
	CtimeNsec uint32

	Reserved4 uint32
	Reserved5 uint32
}

// LinuxStat64 is the x86_64 struct stat.
type LinuxStat64 struct {
	Dev      uint64
	Ino      uint64
	Nlink    uint64
	Mode     uint32
	Uid, Gid uint32
	Pad0     uint32
	Rdev     uint64
	Size     int64
	Blksize  int64
	Blkcnt   int64

	Atime     uint64
	AtimeNsec uint64
	Mtime     uint64
	MtimeNsec uint64
	Ctime     uint64
	CtimeNsec uint64

	Unused1, Unused2, Unused3 int64
}

// NewLinuxStat lays out a host stat for a guest of the given word size.
func NewLinuxStat(st *unix.Stat_t, bits uint) interface{} {
	atime, mtime, ctime := st.Atim, st.Mtim, st.Ctim
	if bits == 64 {
		return &LinuxStat64{
			Dev:       uint64(st.Dev),
			Ino:       uint64(st.Ino),
			Nlink:     uint64(st.Nlink),
			Mode:      uint32(st.Mode),
			Uid:       st.Uid,
			Gid:       st.Gid,
			Rdev:      uint64(st.Rdev),
			Size:      st.Size,
			Blksize:   int64(st.Blksize),
			Blkcnt:    st.Blocks,
			Atime:     uint64(atime.Sec),
			AtimeNsec: uint64(atime.Nsec),
			Mtime:     uint64(mtime.Sec),
			MtimeNsec: uint64(mtime.Nsec),
			Ctime:     uint64(ctime.Sec),
			CtimeNsec: uint64(ctime.Nsec),
		}
	}
	return &LinuxStat{
		Dev:       uint32(st.Dev),
		Ino:       uint32(st.Ino),
		Mode:      uint16(st.Mode),
		Nlink:     uint16(st.Nlink),
		Uid:       st.Uid,
		Gid:       st.Gid,
		Rdev:      uint32(st.Rdev),
		Size:      uint32(st.Size),
		Blksize:   uint32(st.Blksize),
		Blkcnt:    uint32(st.Blocks),
		Atime:     uint32(atime.Sec),
		AtimeNsec: uint32(atime.Nsec),
		Mtime:     uint32(mtime.Sec),
		MtimeNsec: uint32(mtime.Nsec),
		Ctime:     uint32(ctime.Sec),
		CtimeNsec: uint32(ctime.Nsec),
	}
}

func (k *PosixKernel) packStat(st *unix.Stat_t, buf co.Obuf) uint64 {
	if err := buf.Pack(NewLinuxStat(st, k.bits())); err != nil {
		return co.Errno(co.EFAULT)
	}
	return 0
}

func (k *PosixKernel) Fstat(fd co.Fd, buf co.Obuf) uint64 {
	var st unix.Stat_t
	if err := unix.Fstat(int(fd), &st); err != nil {
		return Errno(err)
	}
	return k.packStat(&st, buf)
}

func (k *PosixKernel) Stat(path string, buf co.Obuf) uint64 {
	var st unix.Stat_t
	if err := unix.Stat(k.prefix(path), &st); err != nil {
		return Errno(err)
	}
	return k.packStat(&st, buf)
}

func (k *PosixKernel) Lstat(path string, buf co.Obuf) uint64 {
	var st unix.Stat_t
	if err := unix.Lstat(k.prefix(path), &st); err != nil {
		return Errno(err)
	}
	return k.packStat(&st, buf)
}
