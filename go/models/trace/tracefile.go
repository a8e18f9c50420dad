package trace

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models"
)

const (
	TRACE_MAGIC   = "TCRT"
	TRACE_VERSION = 1
)

// TraceHeader is written uncompressed ahead of the snappy op stream.
type TraceHeader struct {
	Magic   string `struc:"[4]byte"`
	Version uint32

	// right-null-padded
	Arch string `struc:"[32]byte"`
	OS   string `struc:"[32]byte"`

	// 0 for little, 1 for big
	CodeOrderNum uint8
	DataOrderNum uint8

	Session []byte `struc:"[16]byte"`

	CodeOrder binary.ByteOrder `struc:"skip"`
	DataOrder binary.ByteOrder `struc:"skip"`
}

// SessionID is the random id the writer stamped on the trace.
func (h *TraceHeader) SessionID() uuid.UUID {
	id, _ := uuid.FromBytes(h.Session)
	return id
}

func orderNum(order binary.ByteOrder) uint8 {
	if order == binary.BigEndian {
		return 1
	}
	return 0
}

func numOrder(n uint8) (binary.ByteOrder, error) {
	switch n {
	case 0:
		return binary.LittleEndian, nil
	case 1:
		return binary.BigEndian, nil
	}
	return nil, errors.Errorf("invalid byte order %d", n)
}

type TraceWriter struct {
	Header TraceHeader

	w  io.WriteCloser
	zw *snappy.Writer
}

func NewWriter(w io.WriteCloser, arch, os string, order binary.ByteOrder) (*TraceWriter, error) {
	if len(arch) > 32 || len(os) > 32 {
		return nil, errors.Errorf("arch/os name too long: %q/%q", arch, os)
	}
	id := uuid.New()
	header := TraceHeader{
		Magic:        TRACE_MAGIC,
		Version:      TRACE_VERSION,
		Arch:         arch,
		OS:           os,
		CodeOrderNum: orderNum(order),
		DataOrderNum: orderNum(order),
		Session:      id[:],
		CodeOrder:    order,
		DataOrder:    order,
	}
	if err := struc.Pack(w, &header); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &TraceWriter{Header: header, w: w, zw: snappy.NewBufferedWriter(w)}, nil
}

// Pack writes one top-level op, normally a frame or keyframe.
func (t *TraceWriter) Pack(op models.Op) error {
	buf := make([]byte, op.Sizeof())
	op.Pack(buf)
	_, err := t.zw.Write(buf)
	return err
}

func (t *TraceWriter) Close() error {
	err := t.zw.Close()
	if cerr := t.w.Close(); err == nil {
		err = cerr
	}
	return err
}

type TraceReader struct {
	Header TraceHeader

	r  io.ReadCloser
	zr *snappy.Reader
}

func NewReader(r io.ReadCloser) (*TraceReader, error) {
	t := &TraceReader{r: r}
	if err := struc.Unpack(r, &t.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	if t.Header.Version != TRACE_VERSION {
		return nil, errors.Errorf("unsupported trace version %d", t.Header.Version)
	}
	t.Header.Arch = strings.TrimRight(t.Header.Arch, "\x00")
	t.Header.OS = strings.TrimRight(t.Header.OS, "\x00")
	var err error
	if t.Header.CodeOrder, err = numOrder(t.Header.CodeOrderNum); err != nil {
		return nil, err
	}
	if t.Header.DataOrder, err = numOrder(t.Header.DataOrderNum); err != nil {
		return nil, err
	}
	t.zr = snappy.NewReader(r)
	return t, nil
}

// Next returns the next top-level op, or io.EOF at the end of the stream.
func (t *TraceReader) Next() (models.Op, error) {
	op, _, err := Unpack(t.zr, false)
	return op, err
}

func (t *TraceReader) Close() error {
	t.zr.Reset(nil)
	return t.r.Close()
}
