package common

import (
	"github.com/lunixbochs/argjoy"
	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type (
	// Buf is a guest pointer the call reads from.
	Buf struct {
		Addr uint64
		K    *KernelBase
	}
	// Obuf is a guest pointer the call writes to.
	Obuf struct{ Buf }
	Len  uint64
	Off  int64
	Fd   int32
	Ptr  uint64
)

func NewBuf(k Kernel, addr uint64) Buf {
	return Buf{K: k.UsercornKernel(), Addr: addr}
}

// faultIO records guest faults on the kernel as they happen.
type faultIO struct {
	models.MemIO
	k *KernelBase
}

func (f *faultIO) Read(p []byte) (int, error) {
	n, err := f.MemIO.Read(p)
	return n, f.k.noteFault(err)
}

func (f *faultIO) Write(p []byte) (int, error) {
	n, err := f.MemIO.Write(p)
	return n, f.k.noteFault(err)
}

// At returns the pointer off bytes past b.
func (b Buf) At(off uint64) Buf { return Buf{Addr: b.Addr + off, K: b.K} }

func (b Obuf) At(off uint64) Obuf { return Obuf{b.Buf.At(off)} }

// Span returns how many bytes from b are mapped, up to max. With nothing
// mapped at b it fails the way an Unpack there would.
func (b Buf) Span(max uint64) (uint64, error) { return b.span(max, cpu.MEM_READ_UNMAPPED) }

// Span is Buf.Span, failing the way a Pack would.
func (b Obuf) Span(max uint64) (uint64, error) { return b.span(max, cpu.MEM_WRITE_UNMAPPED) }

func (b Buf) span(max uint64, enum int) (uint64, error) {
	n := b.K.Mem().Mapped(b.Addr, max)
	if n == 0 && max > 0 {
		return 0, b.K.noteFault(&cpu.MemError{Addr: b.Addr, Size: 1, Enum: enum})
	}
	return n, nil
}

func (b Buf) Struc() *models.StrucStream {
	mem := b.K.Mem()
	return &models.StrucStream{
		Stream: &faultIO{MemIO: models.MemIO{Mem: mem, Addr: b.Addr}, k: b.K},
		Order:  mem.Order(),
	}
}

// Pack writes i to guest memory. Byte slices and strings are copied
// directly; other values go through K.Pack and then struc.
func (b Buf) Pack(i interface{}) error {
	switch v := i.(type) {
	case []byte:
		return b.K.noteFault(b.K.Mem().MemWrite(b.Addr, v))
	case string:
		return b.K.noteFault(b.K.Mem().MemWrite(b.Addr, []byte(v)))
	}
	if b.K.Pack != nil {
		if err := b.K.Pack(b, i); err == nil {
			return nil
		} else if err != argjoy.NoMatch {
			return err
		}
	}
	return errors.Wrap(b.Struc().Pack(i), "struc.Pack() failed")
}

// Unpack fills i from guest memory. A []byte is filled to its length.
func (b Buf) Unpack(i interface{}) error {
	if v, ok := i.([]byte); ok {
		return b.K.noteFault(b.K.Mem().MemReadInto(v, b.Addr))
	}
	return errors.Wrap(b.Struc().Unpack(i), "struc.Unpack() failed")
}

func (b Buf) Sizeof(i interface{}) (int, error) {
	n, err := b.Struc().Sizeof(i)
	return n, errors.Wrap(err, "struc.Sizeof() failed")
}
