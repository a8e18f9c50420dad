package trace

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/lunixbochs/struc"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
	"github.com/lunixbochs/transcorn/go/models/trace"
)

type drcovBB struct {
	Start uint32
	Size  uint16
	ModId uint16
}

type module struct {
	id         int
	start, end uint64
	path       string
}

var strucOptions = &struc.Options{Order: binary.LittleEndian}

// drcov collects executed blocks against the executable mappings they fall in.
type drcov struct {
	modules []*module
	keys    map[string]*module

	blocks bytes.Buffer
	count  int

	start, size uint64
}

func (d *drcov) addMod(o *trace.OpMemMap) {
	if o.Prot&cpu.PROT_EXEC == 0 {
		return
	}
	key := fmt.Sprintf("%s|%s|%#x", o.Desc, o.File, o.Addr)
	if _, ok := d.keys[key]; ok {
		return
	}
	path := o.File
	if path == "" {
		path = "[" + o.Desc + "]"
	}
	mod := &module{id: len(d.modules), start: o.Addr, end: o.Addr + o.Size, path: path}
	d.keys[key] = mod
	d.modules = append(d.modules, mod)
	sort.Slice(d.modules, func(i, j int) bool { return d.modules[i].start < d.modules[j].start })
}

func (d *drcov) find(addr uint64) *module {
	i := sort.Search(len(d.modules), func(i int) bool { return d.modules[i].end > addr })
	if i < len(d.modules) && d.modules[i].start <= addr {
		return d.modules[i]
	}
	return nil
}

// flush records the block in progress, if it lies in a known module.
func (d *drcov) flush() error {
	if d.size == 0 {
		return nil
	}
	if mod := d.find(d.start); mod != nil {
		bb := drcovBB{Start: uint32(d.start - mod.start), Size: uint16(d.size), ModId: uint16(mod.id)}
		if err := struc.PackWithOptions(&d.blocks, &bb, strucOptions); err != nil {
			return err
		}
		d.count++
	}
	d.size = 0
	return nil
}

func (d *drcov) feed(ops []models.Op) error {
	for _, op := range ops {
		switch o := op.(type) {
		case *trace.OpMemMap:
			d.addMod(o)
		case *trace.OpSyscall:
			if err := d.feed(o.Ops); err != nil {
				return err
			}
		case *trace.OpJmp:
			if err := d.flush(); err != nil {
				return err
			}
			d.start = o.Addr
		case *trace.OpStep:
			d.size += uint64(o.Size)
		}
	}
	return nil
}

// WriteDrcov converts the blocks executed in tf into a drcov coverage log.
func WriteDrcov(tf *trace.TraceReader, out io.Writer) error {
	d := &drcov{keys: make(map[string]*module)}
	err := each(tf, func(op models.Op) error {
		switch frame := op.(type) {
		case *trace.OpKeyframe:
			return d.feed(frame.Ops)
		case *trace.OpFrame:
			return d.feed(frame.Ops)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := d.flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "DRCOV VERSION: 2\n")
	fmt.Fprintf(out, "DRCOV FLAVOR: drcov-64\n")
	fmt.Fprintf(out, "Module Table: version 2, count %d\n", len(d.modules))
	fmt.Fprintf(out, "Columns: id, base, end, entry, path\n")
	mods := append([]*module(nil), d.modules...)
	sort.Slice(mods, func(i, j int) bool { return mods[i].id < mods[j].id })
	for _, m := range mods {
		fmt.Fprintf(out, "%d, %#016x, %#016x, %#016x, %s\n", m.id, m.start, m.end, 0, m.path)
	}
	fmt.Fprintf(out, "BB Table: %d bbs\n", d.count)
	_, err = d.blocks.WriteTo(out)
	return err
}
