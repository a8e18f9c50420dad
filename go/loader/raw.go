package loader

import (
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// RawLoader maps a flat image at a fixed base and enters at its first byte.
type RawLoader struct {
	LoaderBase
	Code []byte
	Base uint64
}

func NewRawLoader(code []byte, arch *models.Arch, os string, base uint64) *RawLoader {
	return &RawLoader{
		LoaderBase: LoaderBase{
			arch:      arch.Name,
			bits:      arch.Bits,
			byteOrder: arch.Order,
			os:        os,
			entry:     base,
		},
		Code: code,
		Base: base,
	}
}

func (r *RawLoader) Segments() ([]models.SegmentData, error) {
	if len(r.Code) == 0 {
		return nil, nil
	}
	return []models.SegmentData{{
		Addr: r.Base,
		Size: uint64(len(r.Code)),
		Prot: cpu.PROT_ALL,
		DataFunc: func() ([]byte, error) {
			return r.Code, nil
		},
	}}, nil
}
