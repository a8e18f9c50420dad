package loader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

var ndhMagic = []byte(".NDH")

// NdhBase is where vmndh loads .text.
const NdhBase = 0x8000

func MatchNdh(r io.ReaderAt) bool {
	return bytes.Equal(getMagic(r), ndhMagic)
}

type ndhHeader struct {
	Magic [4]byte
	Size  uint16
}

type NdhLoader struct {
	LoaderBase
	Text    []byte
	TextOff int
}

func NewNdhLoader(r io.ReaderAt) (*NdhLoader, error) {
	var header ndhHeader
	size, err := struc.Sizeof(&header)
	if err != nil {
		return nil, err
	}
	if err := struc.UnpackWithOrder(io.NewSectionReader(r, 0, int64(size)), &header, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(ErrInvalidBinary, "short ndh header")
	}
	if !bytes.Equal(header.Magic[:], ndhMagic) {
		return nil, errors.Wrap(ErrInvalidBinary, "bad ndh magic")
	}
	text := make([]byte, header.Size)
	if _, err := r.ReadAt(text, int64(size)); err != nil {
		return nil, errors.Wrapf(ErrInvalidBinary, "ndh text truncated: %v", err)
	}
	return &NdhLoader{
		LoaderBase: LoaderBase{
			arch:      "ndh",
			bits:      16,
			os:        "ndh",
			entry:     NdhBase,
			byteOrder: binary.LittleEndian,
		},
		Text:    text,
		TextOff: size,
	}, nil
}

func (n *NdhLoader) Segments() ([]models.SegmentData, error) {
	return []models.SegmentData{{
		Off:  uint64(n.TextOff),
		Addr: NdhBase,
		Size: uint64(len(n.Text)),
		Prot: cpu.PROT_READ | cpu.PROT_EXEC,
		DataFunc: func() ([]byte, error) {
			return n.Text, nil
		},
	}}, nil
}
