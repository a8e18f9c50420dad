package usercorn

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// Task is one guest context: an engine plus the arch-level helpers the
// kernels and loaders build on.
type Task struct {
	cpu.Cpu
	engine *dbt.Engine

	arch  *models.Arch
	os    *models.OS
	Bsz   int
	order binary.ByteOrder
}

func NewTask(e *dbt.Engine, arch *models.Arch, os *models.OS) *Task {
	return &Task{
		Cpu:    e,
		engine: e,
		arch:   arch,
		os:     os,
		Bsz:    arch.Bits / 8,
		order:  arch.Order,
	}
}

func (t *Task) Arch() *models.Arch { return t.arch }
func (t *Task) OS() string { return t.os.Name }
func (t *Task) Bits() uint { return uint(t.arch.Bits) }
func (t *Task) ByteOrder() binary.ByteOrder { return t.order }
func (t *Task) Engine() *dbt.Engine { return t.engine }

func (t *Task) Dis(addr, size uint64, showBytes bool) (string, error) {
	mem, err := t.MemRead(addr, size)
	if err != nil {
		return "", err
	}
	return models.Disas(mem, addr, t.arch, showBytes)
}

func (t *Task) Mmap(addr, size uint64, prot int, fixed bool, desc string) (uint64, error) {
	addr, err := t.Mem().Mmap(addr, size, prot, fixed, desc)
	return addr, errors.Wrap(err, "t.Mmap() failed")
}

func (t *Task) StrucAt(addr uint64) *models.StrucStream {
	return models.NewStrucStream(t.Mem(), addr)
}

func (t *Task) PackAddr(buf []byte, n uint64) ([]byte, error) {
	return cpu.PackUint(t.order, t.Bsz, buf, n)
}

func (t *Task) UnpackAddr(buf []byte) uint64 {
	n, err := cpu.UnpackUint(t.order, t.Bsz, buf)
	if err != nil {
		panic(err)
	}
	return n
}

func (t *Task) PopBytes(p []byte) error {
	sp, err := t.RegRead(t.arch.SP)
	if err != nil {
		return err
	}
	if err := t.MemReadInto(p, sp); err != nil {
		return err
	}
	return t.RegWrite(t.arch.SP, sp+uint64(len(p)))
}

func (t *Task) PushBytes(p []byte) (uint64, error) {
	sp, err := t.RegRead(t.arch.SP)
	if err != nil {
		return 0, err
	}
	sp -= uint64(len(p))
	if err := t.RegWrite(t.arch.SP, sp); err != nil {
		return 0, err
	}
	return sp, t.MemWrite(sp, p)
}

func (t *Task) Push(n uint64) (uint64, error) {
	var tmp [8]byte
	buf, _ := t.PackAddr(tmp[:], n)
	return t.PushBytes(buf)
}

func (t *Task) Pop() (uint64, error) {
	var buf [8]byte
	if err := t.PopBytes(buf[:t.Bsz]); err != nil {
		return 0, err
	}
	return t.UnpackAddr(buf[:t.Bsz]), nil
}

func (t *Task) ReadRegs(regs []int) ([]uint64, error) {
	vals := make([]uint64, len(regs))
	for i, enum := range regs {
		val, err := t.RegRead(enum)
		if err != nil {
			return nil, errors.Wrap(err, "t.ReadRegs() failed")
		}
		vals[i] = val
	}
	return vals, nil
}

func (t *Task) RegDump() ([]models.RegVal, error) {
	return t.arch.RegDump(t.engine.Core().Regs()), nil
}

func (t *Task) RegRead(enum int) (uint64, error) {
	val, err := t.Cpu.RegRead(enum)
	return val, errors.Wrap(err, "t.RegRead() failed")
}

func (t *Task) RegWrite(enum int, val uint64) error {
	return errors.Wrap(t.Cpu.RegWrite(enum, val), "t.RegWrite() failed")
}

func (t *Task) MemRead(addr, size uint64) ([]byte, error) {
	data, err := t.Cpu.MemRead(addr, size)
	return data, errors.Wrap(err, "t.MemRead() failed")
}

func (t *Task) MemWrite(addr uint64, p []byte) error {
	return errors.Wrap(t.Cpu.MemWrite(addr, p), "t.MemWrite() failed")
}

func (t *Task) MemReadInto(p []byte, addr uint64) error {
	return errors.Wrap(t.Cpu.MemReadInto(p, addr), "t.MemReadInto() failed")
}
