// Package loader identifies guest executables and describes their segments
// so the runtime can map them.
package loader

import (
	"encoding/binary"

	"github.com/lunixbochs/transcorn/go/models"
)

const (
	EXEC = models.EXEC
	DYN  = models.DYN
)

// ErrInvalidBinary is wrapped by every loader error caused by the target itself.
var ErrInvalidBinary = models.ErrInvalidBinary

// LoaderBase carries the header fields every format reports.
type LoaderBase struct {
	arch      string
	bits      int
	byteOrder binary.ByteOrder
	os        string
	entry     uint64
}

func (l *LoaderBase) Arch() string { return l.arch }
func (l *LoaderBase) Bits() int { return l.bits }
func (l *LoaderBase) OS() string { return l.os }
func (l *LoaderBase) Entry() uint64 {
	return l.entry
}

func (l *LoaderBase) ByteOrder() binary.ByteOrder {
	if l.byteOrder == nil {
		return binary.LittleEndian
	}
	return l.byteOrder
}

// defaults for formats without the information
func (l *LoaderBase) Type() int { return EXEC }
func (l *LoaderBase) Interp() string { return "" }
func (l *LoaderBase) Header() (uint64, []byte, int) { return 0, nil, 0 }
func (l *LoaderBase) Symbols() ([]models.Symbol, error) { return nil, nil }
func (l *LoaderBase) DataSegment() (uint64, uint64) { return 0, 0 }
