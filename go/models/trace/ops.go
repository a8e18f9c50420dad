package trace

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models"
)

var order = binary.LittleEndian

const (
	OP_NOP       = 0
	OP_FRAME     = 1
	OP_KEYFRAME  = 2
	OP_JMP       = 3
	OP_STEP      = 4
	OP_REG       = 5
	OP_SPREG     = 6
	OP_MEM_READ  = 7
	OP_MEM_WRITE = 8
	OP_MEM_MAP   = 9
	OP_MEM_UNMAP = 10
	OP_MEM_PROT  = 11
	OP_SYSCALL   = 12
	OP_EXIT      = 13
)

var opTypes = map[uint8]func() models.Op{
	OP_NOP:       func() models.Op { return &OpNop{} },
	OP_FRAME:     func() models.Op { return &OpFrame{} },
	OP_KEYFRAME:  func() models.Op { return &OpKeyframe{} },
	OP_JMP:       func() models.Op { return &OpJmp{} },
	OP_STEP:      func() models.Op { return &OpStep{} },
	OP_REG:       func() models.Op { return &OpReg{} },
	OP_SPREG:     func() models.Op { return &OpSpReg{} },
	OP_MEM_READ:  func() models.Op { return &OpMemRead{} },
	OP_MEM_WRITE: func() models.Op { return &OpMemWrite{} },
	OP_MEM_MAP:   func() models.Op { return &OpMemMap{} },
	OP_MEM_UNMAP: func() models.Op { return &OpMemUnmap{} },
	OP_MEM_PROT:  func() models.Op { return &OpMemProt{} },
	OP_SYSCALL:   func() models.Op { return &OpSyscall{} },
	OP_EXIT:      func() models.Op { return &OpExit{} },
}

// Unpack reads one tagged op. Frames can't appear inside other ops, so
// nested rejects them.
func Unpack(r io.Reader, nested bool) (models.Op, int, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, 0, err
	}
	mk, ok := opTypes[tag[0]]
	if !ok {
		return nil, 1, errors.Errorf("unknown op: %d", tag[0])
	}
	if nested && (tag[0] == OP_FRAME || tag[0] == OP_KEYFRAME) {
		return nil, 1, errors.New("nested frame")
	}
	op := mk()
	n, err := op.Unpack(r)
	return op, n + 1, err
}

// enc packs little-endian fields into a buffer sized by Sizeof.
type enc struct{ p []byte }

func (e *enc) u8(v uint8) {
	e.p[0] = v
	e.p = e.p[1:]
}

func (e *enc) u16(v uint16) {
	order.PutUint16(e.p, v)
	e.p = e.p[2:]
}

func (e *enc) u32(v uint32) {
	order.PutUint32(e.p, v)
	e.p = e.p[4:]
}

func (e *enc) u64(v uint64) {
	order.PutUint64(e.p, v)
	e.p = e.p[8:]
}

func (e *enc) raw(b []byte) { e.p = e.p[copy(e.p, b):] }

func (e *enc) ops(ops []models.Op) {
	for _, op := range ops {
		op.Pack(e.p)
		e.p = e.p[op.Sizeof():]
	}
}

// dec reads fields until the first error, then returns zeros. n counts
// bytes consumed.
type dec struct {
	r   io.Reader
	n   int
	err error
	tmp [8]byte
}

func (d *dec) fill(p []byte) {
	if d.err != nil {
		return
	}
	n, err := io.ReadFull(d.r, p)
	d.n += n
	d.err = err
}

func (d *dec) fixed(size int) []byte {
	b := d.tmp[:size]
	for i := range b {
		b[i] = 0
	}
	d.fill(b)
	return b
}

func (d *dec) u8() uint8   { return d.fixed(1)[0] }
func (d *dec) u16() uint16 { return order.Uint16(d.fixed(2)) }
func (d *dec) u32() uint32 { return order.Uint32(d.fixed(4)) }
func (d *dec) u64() uint64 { return order.Uint64(d.fixed(8)) }

func (d *dec) raw(size int) []byte {
	if d.err != nil {
		return nil
	}
	// grows with the input, so a corrupt length can't force a huge allocation
	b, err := io.ReadAll(io.LimitReader(d.r, int64(size)))
	d.n += len(b)
	if err == nil && len(b) < size {
		err = io.ErrUnexpectedEOF
	}
	d.err = err
	return b
}

func (d *dec) ops(count int) []models.Op {
	if d.err != nil {
		return nil
	}
	ops := make([]models.Op, 0, min(count, 1024))
	for i := 0; i < count; i++ {
		op, n, err := Unpack(d.r, true)
		d.n += n
		if err != nil {
			d.err = errors.Wrap(err, "unpacking op list")
			return ops
		}
		ops = append(ops, op)
	}
	return ops
}

func (d *dec) done(what string) (int, error) {
	return d.n, errors.Wrap(d.err, what)
}

func opsSize(ops []models.Op) int {
	size := 0
	for _, op := range ops {
		size += op.Sizeof()
	}
	return size
}

type OpNop struct{}

func (o *OpNop) Sizeof() int                     { return 1 }
func (o *OpNop) Pack(p []byte)                   { p[0] = OP_NOP }
func (o *OpNop) Unpack(r io.Reader) (int, error) { return 0, nil }

// OpExit ends a trace.
type OpExit struct{ OpNop }

func (o *OpExit) Pack(p []byte) { p[0] = OP_EXIT }

// OpJmp moves the trace PC to Addr.
type OpJmp struct {
	Addr uint64
	Size uint32
}

func (o *OpJmp) Sizeof() int { return 1 + 8 + 4 }

func (o *OpJmp) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_JMP)
	e.u64(o.Addr)
	e.u32(o.Size)
}

func (o *OpJmp) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Addr, o.Size = d.u64(), d.u32()
	return d.done("jmp unpack")
}

// OpStep is one committed instruction of Size bytes at the trace PC.
type OpStep struct {
	Size uint8
}

func (o *OpStep) Sizeof() int   { return 2 }
func (o *OpStep) Pack(p []byte) { p[0], p[1] = OP_STEP, o.Size }

func (o *OpStep) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Size = d.u8()
	return d.done("step unpack")
}

type OpReg struct {
	Num uint16
	Val uint64
}

func (o *OpReg) Sizeof() int { return 1 + 2 + 8 }

func (o *OpReg) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_REG)
	e.u16(o.Num)
	e.u64(o.Val)
}

func (o *OpReg) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Num, o.Val = d.u16(), d.u64()
	return d.done("reg unpack")
}

// OpSpReg is a register wider than 64 bits.
type OpSpReg struct {
	Num uint16
	Val []byte
}

func (o *OpSpReg) Sizeof() int { return 1 + 2 + 2 + len(o.Val) }

func (o *OpSpReg) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_SPREG)
	e.u16(o.Num)
	e.u16(uint16(len(o.Val)))
	e.raw(o.Val)
}

func (o *OpSpReg) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Num = d.u16()
	o.Val = d.raw(int(d.u16()))
	return d.done("spreg unpack")
}

type OpMemRead struct {
	Addr uint64
	Size uint32
}

func (o *OpMemRead) Sizeof() int { return 1 + 8 + 4 }

func (o *OpMemRead) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_MEM_READ)
	e.u64(o.Addr)
	e.u32(o.Size)
}

func (o *OpMemRead) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Addr, o.Size = d.u64(), d.u32()
	return d.done("read unpack")
}

type OpMemWrite struct {
	Addr uint64
	Data []byte
}

func (o *OpMemWrite) Sizeof() int { return 1 + 8 + 4 + len(o.Data) }

func (o *OpMemWrite) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_MEM_WRITE)
	e.u64(o.Addr)
	e.u32(uint32(len(o.Data)))
	e.raw(o.Data)
}

func (o *OpMemWrite) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Addr = d.u64()
	o.Data = d.raw(int(d.u32()))
	return d.done("write unpack")
}

// OpMemMap records a new mapping. File, Off and Len describe a file
// backing and are empty for anonymous memory.
type OpMemMap struct {
	Addr uint64
	Size uint64
	Prot uint8

	Off  uint64
	Len  uint64
	Desc string
	File string
}

func (o *OpMemMap) Sizeof() int {
	return 1 + 8 + 8 + 1 + 8 + 8 + 2 + 2 + len(o.Desc) + len(o.File)
}

func (o *OpMemMap) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_MEM_MAP)
	e.u64(o.Addr)
	e.u64(o.Size)
	e.u8(o.Prot)
	e.u64(o.Off)
	e.u64(o.Len)
	e.u16(uint16(len(o.Desc)))
	e.u16(uint16(len(o.File)))
	e.raw([]byte(o.Desc))
	e.raw([]byte(o.File))
}

func (o *OpMemMap) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Addr, o.Size, o.Prot = d.u64(), d.u64(), d.u8()
	o.Off, o.Len = d.u64(), d.u64()
	dlen, flen := int(d.u16()), int(d.u16())
	o.Desc = string(d.raw(dlen))
	o.File = string(d.raw(flen))
	return d.done("map unpack")
}

type OpMemUnmap struct {
	Addr uint64
	Size uint64
}

func (o *OpMemUnmap) Sizeof() int { return 1 + 8 + 8 }

func (o *OpMemUnmap) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_MEM_UNMAP)
	e.u64(o.Addr)
	e.u64(o.Size)
}

func (o *OpMemUnmap) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Addr, o.Size = d.u64(), d.u64()
	return d.done("unmap unpack")
}

type OpMemProt struct {
	Addr uint64
	Size uint64
	Prot uint8
}

func (o *OpMemProt) Sizeof() int { return 1 + 8 + 8 + 1 }

func (o *OpMemProt) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_MEM_PROT)
	e.u64(o.Addr)
	e.u64(o.Size)
	e.u8(o.Prot)
}

func (o *OpMemProt) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Addr, o.Size, o.Prot = d.u64(), d.u64(), d.u8()
	return d.done("prot unpack")
}

// OpSyscall is one serviced trap. Ops are the state changes the kernel made.
type OpSyscall struct {
	Num  uint32
	Ret  uint64
	Args []uint64
	Desc string
	Ops  []models.Op
}

func (o *OpSyscall) Sizeof() int {
	return 1 + 4 + 8 + 1 + 2 + 2 + len(o.Args)*8 + len(o.Desc) + opsSize(o.Ops)
}

func (o *OpSyscall) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_SYSCALL)
	e.u32(o.Num)
	e.u64(o.Ret)
	e.u8(uint8(len(o.Args)))
	e.u16(uint16(len(o.Ops)))
	e.u16(uint16(len(o.Desc)))
	for _, v := range o.Args {
		e.u64(v)
	}
	e.raw([]byte(o.Desc))
	e.ops(o.Ops)
}

func (o *OpSyscall) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Num, o.Ret = d.u32(), d.u64()
	nargs, count, dlen := int(d.u8()), int(d.u16()), int(d.u16())
	o.Args = make([]uint64, nargs)
	for i := range o.Args {
		o.Args[i] = d.u64()
	}
	o.Desc = string(d.raw(dlen))
	o.Ops = d.ops(count)
	return d.done("syscall unpack")
}

// OpKeyframe carries full state: every mapping and register.
type OpKeyframe struct {
	Pid uint64
	Ops []models.Op
}

func (o *OpKeyframe) Sizeof() int { return (*OpFrame)(o).Sizeof() }

func (o *OpKeyframe) Pack(p []byte) {
	(*OpFrame)(o).Pack(p)
	p[0] = OP_KEYFRAME
}

func (o *OpKeyframe) Unpack(r io.Reader) (int, error) {
	return (*OpFrame)(o).Unpack(r)
}

// OpFrame groups the ops between two PC discontinuities.
type OpFrame struct {
	Pid uint64
	Ops []models.Op
}

func (o *OpFrame) Sizeof() int { return 1 + 8 + 4 + opsSize(o.Ops) }

func (o *OpFrame) Pack(p []byte) {
	e := enc{p}
	e.u8(OP_FRAME)
	e.u64(o.Pid)
	e.u32(uint32(len(o.Ops)))
	e.ops(o.Ops)
}

func (o *OpFrame) Unpack(r io.Reader) (int, error) {
	d := dec{r: r}
	o.Pid = d.u64()
	o.Ops = d.ops(int(d.u32()))
	return d.done("frame unpack")
}
