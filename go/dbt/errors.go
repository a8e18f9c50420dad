package dbt

import (
	"fmt"

	"github.com/pkg/errors"
)

type DecodeKind int

const (
	InvalidEncoding DecodeKind = iota
	NeedMoreBytes
)

// DecodeError is returned by decoders. For InvalidEncoding, Offset is the
// offending byte within the instruction. For NeedMoreBytes, Need is the
// minimum number of additional bytes known to be required.
type DecodeError struct {
	Addr   uint64
	Kind   DecodeKind
	Offset int
	Need   int
	Msg    string
}

func (d *DecodeError) Error() string {
	if d.Kind == NeedMoreBytes {
		return fmt.Sprintf("decode at %#x: need %d more bytes", d.Addr, d.Need)
	}
	msg := d.Msg
	if msg == "" {
		msg = "invalid encoding"
	}
	return fmt.Sprintf("decode at %#x+%d: %s", d.Addr, d.Offset, msg)
}

func Invalid(addr uint64, off int, format string, a ...interface{}) *DecodeError {
	return &DecodeError{Addr: addr, Kind: InvalidEncoding, Offset: off, Msg: fmt.Sprintf(format, a...)}
}

func NeedMore(addr uint64, n int) *DecodeError {
	if n < 1 {
		n = 1
	}
	return &DecodeError{Addr: addr, Kind: NeedMoreBytes, Need: n}
}

// IsNeedMore reports whether err asks for a longer fetch window.
func IsNeedMore(err error) (int, bool) {
	if d, ok := errors.Cause(err).(*DecodeError); ok && d.Kind == NeedMoreBytes {
		return d.Need, true
	}
	return 0, false
}

// InvalidOpcode is the guest fault raised when execution reaches bytes that
// don't decode, or an instruction architecturally defined to be invalid.
type InvalidOpcode struct {
	PC    uint64
	Bytes []byte
	Err   error
}

func (i *InvalidOpcode) Error() string {
	if i.Err != nil {
		return fmt.Sprintf("invalid opcode at %#x (% x): %v", i.PC, i.Bytes, i.Err)
	}
	return fmt.Sprintf("invalid opcode at %#x (% x)", i.PC, i.Bytes)
}

func (i *InvalidOpcode) FaultAddr() uint64 { return i.PC }

func (i *InvalidOpcode) Cause() error { return i.Err }

// InternalError means the emulator itself is wrong. It always aborts the run.
type InternalError struct {
	Msg string
	Err error
}

func (i *InternalError) Error() string {
	if i.Err != nil {
		return "internal error: " + i.Msg + ": " + i.Err.Error()
	}
	return "internal error: " + i.Msg
}

func Internalf(format string, a ...interface{}) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, a...)}
}

var ErrInsLimit = errors.New("instruction limit reached")
