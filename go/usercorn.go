// Package usercorn runs a loaded guest binary: it maps the image, builds
// the engine and kernel for the target arch and OS, and drives execution.
package usercorn

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/arch"
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/loader"
	"github.com/lunixbochs/transcorn/go/log"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
	"github.com/lunixbochs/transcorn/go/models/trace"
)

// load address for position-independent executables
const BASE = 0x400000

type sysHooker interface {
	HookSysAdd(before, after models.SysCb) *models.SysHook
	HookSysDel(hook *models.SysHook)
}

var _ models.Usercorn = (*Usercorn)(nil)

type Usercorn struct {
	*Task

	config *models.Config
	log    *log.Logger
	loader models.Loader
	exe    string

	base     uint64
	entry    uint64
	binEntry uint64
	exit     uint64

	brkStart, brk uint64
	StackBase     uint64

	trap    dbt.TrapHandler
	trace   *trace.Trace
	sysHook []*models.SysHook
	exitErr error
}

// NewUsercorn loads exe and prepares it to run.
func NewUsercorn(exe string, config *models.Config) (*Usercorn, error) {
	l, err := loader.LoadFile(exe)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(exe); err == nil {
		exe = abs
	}
	return NewUsercornLoader(l, exe, config)
}

// NewUsercornRaw maps code at base for the named arch and OS and enters at base.
func NewUsercornRaw(archName, osName string, code []byte, base uint64, config *models.Config) (*Usercorn, error) {
	a, _, err := arch.GetArch(archName, osName)
	if err != nil {
		return nil, err
	}
	return NewUsercornLoader(loader.NewRawLoader(code, a, osName, base), "", config)
}

func NewUsercornLoader(l models.Loader, exe string, config *models.Config) (*Usercorn, error) {
	if config == nil {
		config = models.DefaultConfig()
	} else {
		config.Init()
	}
	a, os, err := arch.GetArch(l.Arch(), l.OS())
	if err != nil {
		return nil, errors.Wrap(err, "unsupported target")
	}
	logger := log.New(config.Debug)

	mem := a.NewMem()
	mem.SetStrictAlign(config.StrictAlign)
	if config.Storage == "host" {
		mem.SetStorage(cpu.NewHostStorage())
	}
	e := dbt.NewEngine(a.NewCore(mem), mem, &dbt.Config{
		MaxBlockInsns: config.BlockSize,
		MaxIns:        config.MaxIns,
		Log:           logger.Named("dbt"),
	})
	u := &Usercorn{
		Task:   NewTask(e, a, os),
		config: config,
		log:    logger,
		loader: l,
		exe:    exe,
	}
	if err := u.mapBinary(); err != nil {
		return nil, err
	}
	if os.NewTrap != nil {
		if u.trap, err = os.NewTrap(u); err != nil {
			return nil, errors.Wrap(err, "kernel setup failed")
		}
		e.SetTrapHandler(u.trap)
	}
	return u, nil
}

// mapBinary maps and fills every loadable segment. Segments sharing a page
// are merged into one mapping with the union of their protections.
func (u *Usercorn) mapBinary() error {
	l := u.loader
	if l.Type() == loader.DYN {
		u.base = BASE
		if u.config.ForceBase != 0 {
			u.base = u.config.ForceBase
		}
	}
	segments, err := l.Segments()
	if err != nil {
		return err
	}
	var merged []*models.Segment
outer:
	for _, seg := range segments {
		s := (&models.Segment{Start: u.base + seg.Addr, End: u.base + seg.Addr + seg.Size, Prot: seg.Prot}).Aligned()
		for _, m := range merged {
			if m.Overlaps(s) {
				m.Merge(s)
				continue outer
			}
		}
		merged = append(merged, s)
	}
	mem := u.Mem()
	var end uint64
	for _, m := range merged {
		u.log.Debug("map segment", log.Addr(m.Start), log.Size(m.End-m.Start), log.Int("prot", m.Prot))
		if _, err := mem.MemMapDesc(m.Start, m.End-m.Start, m.Prot, "exe"); err != nil {
			return errors.Wrapf(err, "mapping segment at %#x", m.Start)
		}
		if m.End > end {
			end = m.End
		}
	}
	for _, seg := range segments {
		data, err := seg.Data()
		if err != nil {
			return err
		}
		if err := mem.MemWrite(u.base+seg.Addr, data); err != nil {
			return errors.Wrapf(err, "writing segment at %#x", u.base+seg.Addr)
		}
	}
	u.entry = u.base + l.Entry()
	u.binEntry = u.entry
	u.brkStart, u.brk = end, end
	return nil
}

func (u *Usercorn) Config() *models.Config { return u.config }
func (u *Usercorn) Log() *log.Logger { return u.log }
func (u *Usercorn) Loader() models.Loader { return u.loader }
func (u *Usercorn) Exe() string { return u.exe }
func (u *Usercorn) Base() uint64 { return u.base }
func (u *Usercorn) Entry() uint64 { return u.entry }
func (u *Usercorn) BinEntry() uint64 { return u.binEntry }
func (u *Usercorn) SetEntry(entry uint64) { u.entry = entry }

// SetExit stops the run when PC reaches exit. Zero means no such address.
func (u *Usercorn) SetExit(exit uint64) { u.exit = exit }

func (u *Usercorn) PrefixPath(path string, force bool) string {
	return u.config.PrefixPath(path, force)
}

func (u *Usercorn) Symbolicate(addr uint64) (string, error) {
	syms, err := u.loader.Symbols()
	if err != nil {
		return "", err
	}
	sym, off, ok := models.Symbolicate(syms, addr-u.base)
	if !ok {
		return "", nil
	}
	if off == 0 {
		return sym.Name, nil
	}
	return sym.Name + "+" + log.Hex(off), nil
}

// Brk moves the program break. Growing maps fresh pages; shrinking keeps
// them. It returns the break in effect afterward.
func (u *Usercorn) Brk(addr uint64) (uint64, error) {
	if addr <= u.brkStart {
		return u.brk, nil
	}
	cur := pageUp(u.brk)
	if addr > cur {
		size := pageUp(addr) - cur
		got, err := u.Mem().Mmap(cur, size, cpu.PROT_READ|cpu.PROT_WRITE, false, "brk")
		if err != nil {
			return u.brk, err
		}
		if got != cur {
			u.Mem().MemUnmap(got, size)
			return u.brk, errors.Errorf("brk: %#x is in use", cur)
		}
	}
	u.brk = addr
	return addr, nil
}

func pageUp(addr uint64) uint64 {
	return (addr + cpu.PAGE_MASK) &^ cpu.PAGE_MASK
}

func (u *Usercorn) MapStack(base, size uint64) error {
	if _, err := u.Mem().MemMapDesc(base, size, cpu.PROT_READ|cpu.PROT_WRITE, "stack"); err != nil {
		return errors.Wrap(err, "mapping stack")
	}
	u.StackBase = base
	return u.RegWrite(u.arch.SP, base+size)
}

func (u *Usercorn) HookSysAdd(before, after models.SysCb) *models.SysHook {
	if h, ok := u.trap.(sysHooker); ok {
		return h.HookSysAdd(before, after)
	}
	return nil
}

func (u *Usercorn) HookSysDel(hook *models.SysHook) {
	if h, ok := u.trap.(sysHooker); ok && hook != nil {
		h.HookSysDel(hook)
	}
}

// Exit ends the run at the next block boundary. Run returns err.
func (u *Usercorn) Exit(err error) {
	if u.exitErr == nil {
		u.exitErr = err
	}
	u.engine.Stop()
}

// Run sets up the process for args and env and executes it to completion.
func (u *Usercorn) Run(args, env []string) error {
	if u.os.Init != nil {
		if err := u.os.Init(u, args, env); err != nil {
			return errors.Wrap(err, "process setup failed")
		}
	}
	if err := u.attachTrace(); err != nil {
		return err
	}
	u.log.Debug("start", log.Ptr("entry", u.entry))
	err := u.engine.Start(u.entry, u.exit)
	if err == nil && u.exitErr != nil {
		err = u.exitErr
	}
	if terr := u.detachTrace(); terr != nil && err == nil {
		err = terr
	}
	return err
}
