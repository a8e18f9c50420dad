package cpu

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

const (
	MAP_CHANGE = iota
	UNMAP_CHANGE
	PROT_CHANGE
)

// MapEvent describes a layout change. For PROT_CHANGE, Prot holds the new protection.
type MapEvent struct {
	Kind int
	Addr uint64
	Size uint64
	Prot int
}

// wraps MemSim to make a Cpu interface-compatible memory model
type Mem struct {
	bits uint
	// methods return an error for addresses that do not fit inside mask
	// calculated by NewMem using ^uint64(0) >> (64 - bits)
	mask uint64
	// Mem.hooks is set when passing *Mem to NewHooks()
	hooks *Hooks
	// MemSim is private, so any cpu-facing functionality needs to be wrapped by Mem
	sim *MemSim

	order  binary.ByteOrder
	strict bool

	// when shared, every access holds mu
	shared bool
	mu     sync.Mutex

	writeWatch []func(addr, size uint64)
	mapWatch   []func(ev MapEvent)
}

func NewMem(bits uint, order binary.ByteOrder) *Mem {
	return &Mem{
		bits:  bits,
		mask:  ^uint64(0) >> (64 - bits),
		sim:   &MemSim{},
		order: order,
	}
}

func (m *Mem) Bits() uint { return m.bits }
func (m *Mem) Order() binary.ByteOrder { return m.order }
func (m *Mem) SetStorage(s Storage) { m.sim.Storage = s }
func (m *Mem) SetStrictAlign(strict bool) { m.strict = strict }

// SetAddressLimit keeps every mapping below top, which must be a power of two.
// Mmap fails rather than placing anything above it.
func (m *Mem) SetAddressLimit(top uint64) {
	if top != 0 && top&(top-1) == 0 {
		m.mask = top - 1
	}
}

// SetShared serializes every access so engines on several goroutines can
// share one address space.
func (m *Mem) SetShared(shared bool) { m.shared = shared }

func (m *Mem) lock() {
	if m.shared {
		m.mu.Lock()
	}
}

func (m *Mem) unlock() {
	if m.shared {
		m.mu.Unlock()
	}
}

// WatchWrites registers fn to run before any write lands, while the memory lock is held.
func (m *Mem) WatchWrites(fn func(addr, size uint64)) {
	m.lock()
	m.writeWatch = append(m.writeWatch, fn)
	m.unlock()
}

// WatchMaps registers fn to run after any map, unmap or protect.
func (m *Mem) WatchMaps(fn func(ev MapEvent)) {
	m.lock()
	m.mapWatch = append(m.mapWatch, fn)
	m.unlock()
}

func (m *Mem) notifyWrite(addr, size uint64) {
	for _, fn := range m.writeWatch {
		fn(addr, size)
	}
}

func (m *Mem) notifyMap(ev MapEvent) {
	for _, fn := range m.mapWatch {
		fn(ev)
	}
}

// Addressable reports whether addr:size fits in the address space at all,
// mapped or not.
func (m *Mem) Addressable(addr, size uint64) bool {
	return size == 0 || m.inRange(addr, size)
}

func (m *Mem) inRange(addr, size uint64) bool {
	end := addr + size
	return end >= addr && (end-1)&m.mask == end-1
}

// alignRange page-aligns addr:size, failing when the range can't fit.
func (m *Mem) alignRange(addr, size uint64) (uint64, uint64, error) {
	if size == 0 || addr+size < addr || addr+size > ^uint64(0)-PAGE_MASK {
		return 0, 0, errors.Errorf("bad range %#x+%#x", addr, size)
	}
	addr, size = PageAlign(addr, size)
	if !m.inRange(addr, size) {
		return 0, 0, errors.New("region outside memory range")
	}
	return addr, size, nil
}

func (m *Mem) MemMapProt(addr, size uint64, prot int) error {
	_, err := m.MemMapDesc(addr, size, prot, "")
	return err
}

// MemMapDesc maps a page-aligned range, replacing anything already there.
func (m *Mem) MemMapDesc(addr, size uint64, prot int, desc string) (*Page, error) {
	addr, size, err := m.alignRange(addr, size)
	if err != nil {
		return nil, err
	}
	m.lock()
	defer m.unlock()
	page, err := m.sim.Map(addr, size, prot, true)
	if err != nil {
		return nil, err
	}
	page.Desc = desc
	m.notifyMap(MapEvent{Kind: MAP_CHANGE, Addr: addr, Size: size, Prot: prot})
	return page, nil
}

// Mmap maps size bytes. If fixed is set the mapping lands exactly at hint,
// otherwise at the first free page-aligned gap at or above hint.
func (m *Mem) Mmap(hint, size uint64, prot int, fixed bool, desc string) (uint64, error) {
	if size == 0 || size > m.mask {
		return 0, errors.Errorf("no free range for %#x bytes", size)
	}
	hint, size = PageAlign(hint, size)
	if !fixed {
		m.lock()
		addr, ok := m.sim.FindFree(hint, size, m.mask)
		if !ok && hint > 0 {
			addr, ok = m.sim.FindFree(PAGE_SIZE, size, m.mask)
		}
		m.unlock()
		if !ok {
			return 0, errors.Errorf("no free range for %#x bytes", size)
		}
		hint = addr
	}
	if _, err := m.MemMapDesc(hint, size, prot, desc); err != nil {
		return 0, err
	}
	return hint, nil
}

func (m *Mem) MemProt(addr, size uint64, prot int) error {
	addr, size = PageAlign(addr, size)
	m.lock()
	defer m.unlock()
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Prot(addr, size, prot)
	m.notifyMap(MapEvent{Kind: PROT_CHANGE, Addr: addr, Size: size, Prot: prot})
	return nil
}

func (m *Mem) MemUnmap(addr, size uint64) error {
	addr, size = PageAlign(addr, size)
	m.lock()
	defer m.unlock()
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return errors.New("range not mapped")
	}
	m.sim.Unmap(addr, size)
	m.notifyMap(MapEvent{Kind: UNMAP_CHANGE, Addr: addr, Size: size})
	return nil
}

func (m *Mem) MemReadInto(p []byte, addr uint64) error {
	m.lock()
	defer m.unlock()
	return m.sim.Read(addr, p, 0)
}

func (m *Mem) MemRead(addr, size uint64) ([]byte, error) {
	m.lock()
	defer m.unlock()
	if bad, mapped, _ := m.sim.check(addr, size, 0); !mapped {
		return nil, &MemError{Addr: bad, Size: clampSize(size), Enum: MEM_READ_UNMAPPED}
	}
	p := make([]byte, size)
	if err := m.sim.Read(addr, p, 0); err != nil {
		return nil, err
	}
	return p, nil
}

func clampSize(size uint64) int {
	return int(min(size, 1<<31-1))
}

// Mapped returns how many bytes starting at addr are mapped, up to max.
func (m *Mem) Mapped(addr, max uint64) uint64 {
	if addr+max < addr {
		max = ^uint64(0) - addr
	}
	m.lock()
	defer m.unlock()
	return m.sim.Contig(addr, max, 0)
}

// Resident calls fn with every piece of addr:size that has backing, in order.
// Everything else in the range reads as zero. fn must not retain data.
func (m *Mem) Resident(addr, size uint64, fn func(addr uint64, data []byte)) {
	m.lock()
	defer m.unlock()
	m.sim.Resident(addr, size, fn)
}

// MemWrite ignores protections, for loaders and the kernel.
func (m *Mem) MemWrite(addr uint64, p []byte) error {
	m.lock()
	defer m.unlock()
	m.notifyWrite(addr, uint64(len(p)))
	return m.sim.Write(addr, p, 0)
}

func (m *Mem) aligned(addr uint64, size int, enum int) error {
	if m.strict && size > 1 && addr&uint64(size-1) != 0 {
		return &MemError{Addr: addr, Size: size, Enum: enum}
	}
	return nil
}

// Read while checking protections. This exists to support a CPU interpreter.
func (m *Mem) ReadProt(addr, size uint64, prot int) ([]byte, error) {
	var p []byte
	m.lock()
	bad, mapped, protGood := m.sim.check(addr, size, prot)
	var err error
	if !mapped {
		err = &MemError{Addr: bad, Size: clampSize(size), Enum: fetchOrRead(prot, true)}
	} else if !protGood {
		err = &MemError{Addr: bad, Size: clampSize(size), Enum: fetchOrRead(prot, false)}
	} else {
		p = make([]byte, size)
		err = m.sim.Read(addr, p, prot)
	}
	m.unlock()
	if err != nil {
		if merr, ok := err.(*MemError); ok && m.hooks != nil {
			m.hooks.OnFault(merr.Enum, addr, int(size), 0)
		}
		return nil, err
	} else if m.hooks != nil {
		if prot&PROT_EXEC == PROT_EXEC {
			m.hooks.OnMem(MEM_FETCH, addr, int(size), 0)
		} else {
			m.hooks.OnMem(MEM_READ, addr, int(size), 0)
		}
	}
	return p, nil
}

// Write while checking protections. This exists to support a CPU interpreter.
// Write hooks trigger in WriteUint for now.
func (m *Mem) WriteProt(addr uint64, p []byte, prot int) error {
	m.lock()
	defer m.unlock()
	m.notifyWrite(addr, uint64(len(p)))
	return m.sim.Write(addr, p, prot)
}

func (m *Mem) ReadUint(addr uint64, size, prot int) (uint64, error) {
	if size > 8 {
		return 0, errors.Errorf("MemReadUint size too large: %d > 8", size)
	}
	enum := MEM_READ_UNALIGNED
	if prot&PROT_EXEC != 0 {
		enum = MEM_FETCH_UNALIGNED
	}
	if err := m.aligned(addr, size, enum); err != nil {
		return 0, err
	}
	var buf [8]byte
	p := buf[:size]
	m.lock()
	err := m.sim.Read(addr, p, prot)
	m.unlock()
	if err != nil {
		if merr, ok := err.(*MemError); ok && m.hooks != nil {
			m.hooks.OnFault(merr.Enum, addr, size, 0)
		}
		return 0, err
	}
	val, err := UnpackUint(m.order, size, p)
	if err == nil && m.hooks != nil {
		m.hooks.OnMem(MEM_READ, addr, size, int64(val))
	}
	return val, err
}

// write hook only triggers here, as we can't fill value in WriteProt
func (m *Mem) WriteUint(addr uint64, size, prot int, val uint64) error {
	var buf [8]byte
	if size > 8 {
		return errors.Errorf("MemWriteUint size too large: %d > 8", size)
	}
	if err := m.aligned(addr, size, MEM_WRITE_UNALIGNED); err != nil {
		return err
	}
	if _, err := PackUint(m.order, size, buf[:], val); err != nil {
		return err
	}
	if m.hooks != nil {
		// before, so tracers can snapshot the old bytes
		m.hooks.OnMem(MEM_WRITE, addr, size, int64(val))
	}
	err := m.WriteProt(addr, buf[:size], prot)
	if err != nil {
		if merr, ok := err.(*MemError); ok && m.hooks != nil {
			m.hooks.OnFault(merr.Enum, addr, size, int64(val))
		}
	}
	return err
}

// Fetch returns up to max executable bytes at addr, stopping at the first
// byte that isn't mapped executable. It faults if addr itself isn't.
func (m *Mem) Fetch(addr uint64, max int) ([]byte, error) {
	m.lock()
	n := m.sim.Contig(addr, uint64(max), PROT_EXEC)
	if n == 0 {
		p := []byte{0}
		err := m.sim.Read(addr, p, PROT_EXEC)
		m.unlock()
		if err == nil {
			// Contig and Read disagree about the same byte
			return nil, errors.Errorf("fetch at %#x: inconsistent region state", addr)
		}
		if merr, ok := err.(*MemError); ok && m.hooks != nil {
			m.hooks.OnFault(merr.Enum, addr, 1, 0)
		}
		return nil, err
	}
	p := make([]byte, n)
	err := m.sim.Read(addr, p, PROT_EXEC)
	m.unlock()
	return p, err
}

// Executable reports whether addr:size is mapped with PROT_EXEC.
func (m *Mem) Executable(addr, size uint64) bool { return m.Accessible(addr, size, PROT_EXEC) }

// Accessible reports whether all of addr:size is mapped with prot.
func (m *Mem) Accessible(addr, size uint64, prot int) bool {
	m.lock()
	defer m.unlock()
	mapped, protGood := m.sim.RangeValid(addr, size, prot)
	return mapped && protGood
}

// ReadStrAt reads a NUL-terminated string, ignoring protections.
func (m *Mem) ReadStrAt(addr uint64) (string, error) {
	var out []byte
	var chunk [64]byte
	for {
		// don't read past the end of the current region
		n := uint64(len(chunk))
		if rem := PAGE_SIZE - addr&PAGE_MASK; rem < n {
			n = rem
		}
		if err := m.MemReadInto(chunk[:n], addr); err != nil {
			return "", err
		}
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			return string(append(out, chunk[:i]...)), nil
		}
		out = append(out, chunk[:n]...)
		addr += n
	}
}

// Maps returns a snapshot of the current regions.
func (m *Mem) Maps() Pages {
	m.lock()
	defer m.unlock()
	out := make(Pages, len(m.sim.Mem))
	for i, p := range m.sim.Mem {
		cp := *p
		out[i] = &cp
	}
	return out
}

func (m *Mem) Find(addr uint64) *Page {
	m.lock()
	defer m.unlock()
	return m.sim.Find(addr)
}

func (m *Mem) Seq() uint64 {
	m.lock()
	defer m.unlock()
	return m.sim.Seq()
}

func (m *Mem) Check() error {
	m.lock()
	defer m.unlock()
	return m.sim.Check()
}

func (m *Mem) Close() error {
	return m.sim.storage().Close()
}
