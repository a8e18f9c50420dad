package posix

import (
	"crypto/rand"
	"time"

	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type Timespec struct {
	Sec  int64
	Nsec int64
}

type Timespec32 struct {
	Sec  int32
	Nsec int32
}

type Timeval struct {
	Sec  int64
	Usec int64
}

type Timeval32 struct {
	Sec  int32
	Usec int32
}

// now is replaced by tests
var now = time.Now

func (k *PosixKernel) ClockGettime(_ int, out co.Obuf) uint64 {
	t := now()
	var ts interface{} = &Timespec{t.Unix(), int64(t.Nanosecond())}
	if k.bits() == 32 {
		ts = &Timespec32{int32(t.Unix()), int32(t.Nanosecond())}
	}
	if err := out.Pack(ts); err != nil {
		return co.Errno(co.EFAULT)
	}
	return 0
}

func (k *PosixKernel) Gettimeofday(tv co.Obuf, tz uint64) uint64 {
	if tv.Addr == 0 {
		return 0
	}
	t := now()
	var val interface{} = &Timeval{t.Unix(), int64(t.Nanosecond() / 1000)}
	if k.bits() == 32 {
		val = &Timeval32{int32(t.Unix()), int32(t.Nanosecond() / 1000)}
	}
	if err := tv.Pack(val); err != nil {
		return co.Errno(co.EFAULT)
	}
	return 0
}

func (k *PosixKernel) Time(tloc co.Obuf) uint64 {
	sec := now().Unix()
	if tloc.Addr != 0 {
		mem := k.Mem()
		word, err := cpu.PackUint(mem.Order(), int(mem.Bits()/8), nil, uint64(sec))
		if err != nil {
			return co.Errno(co.EINVAL)
		}
		if err := tloc.Pack(word); err != nil {
			return co.Errno(co.EFAULT)
		}
	}
	return uint64(sec)
}

func (k *PosixKernel) Getrandom(buf co.Obuf, size co.Len, flags int) uint64 {
	return k.copyIn(buf, uint64(size), true, rand.Read)
}
