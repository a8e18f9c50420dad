package trace

import (
	"bytes"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// keyframe snapshots enough state to restart a replay without the ops
// before it.
type keyframe struct {
	regEnums []int
	regs     []uint64
}

func (k *keyframe) op() *OpKeyframe {
	frame := &OpKeyframe{}
	for i, reg := range k.regs {
		frame.Ops = append(frame.Ops, &OpReg{Num: uint16(k.regEnums[i]), Val: reg})
	}
	return frame
}

// memOps describes every mapping and its nonzero contents. Only backed
// chunks are visited, so huge sparse mappings stay cheap.
func memOps(mem *cpu.Mem) []models.Op {
	var ops []models.Op
	for _, m := range mem.Maps() {
		mo := &OpMemMap{Addr: m.Addr, Size: m.Size, Prot: uint8(m.Prot), Desc: m.Desc}
		if m.File != nil {
			mo.File, mo.Off, mo.Len = m.File.Name, m.File.Off, m.File.Len
		}
		ops = append(ops, mo)
		mem.Resident(m.Addr, m.Size, func(addr uint64, data []byte) {
			start := len(data) - len(bytes.TrimLeft(data, "\x00"))
			data = bytes.TrimRight(data[start:], "\x00")
			if len(data) > 0 {
				ops = append(ops, &OpMemWrite{Addr: addr + uint64(start), Data: bytes.Clone(data)})
			}
		})
	}
	return ops
}
