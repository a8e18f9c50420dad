package cpu

import (
	"sort"

	"github.com/pkg/errors"
)

// MemSim is a sparse address space: a sorted list of non-overlapping regions
// over lazily allocated backing chunks.
type MemSim struct {
	Mem     Pages
	Storage Storage

	chunks    map[uint64][]byte
	lastBase  uint64
	lastChunk []byte

	// last region hit by find, reset whenever the layout changes
	last *Page
	// bumped by every map, unmap and protect
	seq uint64
}

func (m *MemSim) storage() Storage {
	if m.Storage == nil {
		m.Storage = HeapStorage{}
	}
	return m.Storage
}

// Seq changes whenever the region layout or protections change.
func (m *MemSim) Seq() uint64 { return m.seq }

func (m *MemSim) changed() {
	m.last = nil
	m.seq++
}

func (m *MemSim) find(addr uint64) (*Page, int) {
	if l := m.last; l != nil && l.Contains(addr) {
		return l, -1
	}
	i := m.Mem.bsearch(addr)
	if i < 0 {
		return nil, -1
	}
	m.last = m.Mem[i]
	return m.Mem[i], i
}

func (m *MemSim) Find(addr uint64) *Page {
	p, _ := m.find(addr)
	return p
}

// walk calls fn for each region covering addr:size in order.
// It stops at the first gap and returns the address of the first uncovered byte.
func (m *MemSim) walk(addr, size uint64, fn func(p *Page, addr, size uint64) bool) (uint64, bool) {
	end := addr + size
	if size == 0 {
		return addr, true
	} else if end < addr {
		return addr, false
	}
	// fast path: fully inside one region
	if p, _ := m.find(addr); p != nil && end <= p.End() {
		return end, fn(p, addr, size)
	}
	i := m.Mem.bsearch(addr)
	if i < 0 {
		return addr, false
	}
	for _, p := range m.Mem[i:] {
		if !p.Contains(addr) {
			return addr, false
		}
		n := p.End() - addr
		if end-addr < n {
			n = end - addr
		}
		if !fn(p, addr, n) {
			return addr, false
		}
		addr += n
		if addr == end {
			return addr, true
		}
	}
	return addr, false
}

// Checks whether the address range exists in the currently-mapped memory.
// If prot > 0, ensures that each region has the entire protection mask provided.
// bad is the first address that is unmapped or lacks prot.
func (m *MemSim) check(addr, size uint64, prot int) (bad uint64, mapped, protGood bool) {
	protGood = true
	var protBad uint64
	stop, ok := m.walk(addr, size, func(p *Page, a, n uint64) bool {
		if prot > 0 && p.Prot&prot != prot && protGood {
			protGood = false
			protBad = a
		}
		return true
	})
	if !ok {
		if !protGood && protBad < stop {
			return protBad, true, false
		}
		return stop, false, protGood
	}
	return protBad, true, protGood
}

func (m *MemSim) RangeValid(addr, size uint64, prot int) (mapGood bool, protGood bool) {
	_, mapGood, protGood = m.check(addr, size, prot)
	return mapGood, protGood
}

// Maps <addr> - <addr>+<size> and protects with prot.
// If zero is false, bytes of any existing mapping in this range are kept.
// Any overlapping regions will be unmapped, then the mapping list will be sorted by address
// to allow binary search and simpler reads / bound checks.
// No backing is allocated until the mapping is first written.
func (m *MemSim) Map(addr, size uint64, prot int, zero bool) (*Page, error) {
	if size == 0 {
		return nil, errors.New("zero-size mapping")
	}
	if addr+size < addr {
		return nil, errors.Errorf("mapping wraps address space: %#x+%#x", addr, size)
	}
	m.unmap(addr, size, zero)
	page := &Page{Addr: addr, Size: size, Prot: prot}
	i := m.Mem.lowerBound(addr)
	m.Mem = append(m.Mem, nil)
	copy(m.Mem[i+1:], m.Mem[i:])
	m.Mem[i] = page
	m.changed()
	return page, nil
}

// this is *exactly* unmap, but the "middle" pages of each split are re-protected
func (m *MemSim) Prot(addr, size uint64, prot int) {
	pos := m.Mem.lowerBound(addr)
	tmp := make(Pages, 0, len(m.Mem)+2)
	tmp = append(tmp, m.Mem[:pos]...)
	for _, mm := range m.Mem[pos:] {
		if oaddr, osize, ok := mm.Intersect(addr, size); ok {
			left, right := mm.Split(oaddr, osize)
			if left != nil {
				tmp = append(tmp, left)
			}
			tmp = append(tmp, mm)
			mm.Prot = prot
			if right != nil {
				tmp = append(tmp, right)
			}
		} else {
			tmp = append(tmp, mm)
		}
	}
	m.Mem = tmp
	m.changed()
}

func (m *MemSim) Unmap(addr, size uint64) { m.unmap(addr, size, true) }

// unmap drops addr:size from the region list. With clear set the bytes are
// zeroed too, releasing any chunk left without a region.
func (m *MemSim) unmap(addr, size uint64, clear bool) {
	if addr+size < addr {
		size = ^uint64(0) - addr
	}
	pos := m.Mem.lowerBound(addr)
	tmp := make(Pages, 0, len(m.Mem)+1)
	tmp = append(tmp, m.Mem[:pos]...)
	for _, mm := range m.Mem[pos:] {
		if oaddr, osize, ok := mm.Intersect(addr, size); ok {
			if oaddr == mm.Addr && osize == mm.Size {
				continue
			}
			left, right := mm.Split(oaddr, osize)
			if left != nil {
				tmp = append(tmp, left)
			}
			if right != nil {
				tmp = append(tmp, right)
			}
		} else {
			tmp = append(tmp, mm)
		}
	}
	m.Mem = tmp
	if clear {
		m.clearData(addr, size)
	}
	m.changed()
}

func fetchOrRead(prot int, unmapped bool) int {
	if prot&PROT_EXEC == PROT_EXEC {
		if unmapped {
			return MEM_FETCH_UNMAPPED
		}
		return MEM_FETCH_PROT
	}
	if unmapped {
		return MEM_READ_UNMAPPED
	}
	return MEM_READ_PROT
}

// Read fills p from addr. On failure the MemError points at the first byte that failed.
func (m *MemSim) Read(addr uint64, p []byte, prot int) error {
	size := uint64(len(p))
	if bad, mapped, protGood := m.check(addr, size, prot); !mapped {
		return &MemError{Addr: bad, Size: len(p), Enum: fetchOrRead(prot, true)}
	} else if !protGood {
		return &MemError{Addr: bad, Size: len(p), Enum: fetchOrRead(prot, false)}
	}
	m.readData(addr, p)
	return nil
}

// Write copies p to addr, all or nothing. The only error after the range
// checks pass is a failure to allocate backing, which leaves earlier chunks written.
func (m *MemSim) Write(addr uint64, p []byte, prot int) error {
	size := uint64(len(p))
	if bad, mapped, protGood := m.check(addr, size, prot); !mapped {
		return &MemError{Addr: bad, Size: len(p), Enum: MEM_WRITE_UNMAPPED}
	} else if !protGood {
		return &MemError{Addr: bad, Size: len(p), Enum: MEM_WRITE_PROT}
	}
	return m.writeData(addr, p)
}

// Resident calls fn with every allocated piece of backing inside addr:size,
// in address order. Bytes it skips read as zero.
func (m *MemSim) Resident(addr, size uint64, fn func(addr uint64, data []byte)) {
	m.resident(addr, size, fn)
}

// Chunks is the number of allocated backing chunks.
func (m *MemSim) Chunks() int { return len(m.chunks) }

// Contig returns how many bytes starting at addr are mapped with prot, up to max.
func (m *MemSim) Contig(addr, max uint64, prot int) uint64 {
	var n uint64
	m.walk(addr, max, func(p *Page, a, size uint64) bool {
		if p.Prot&prot != prot {
			return false
		}
		n += size
		return true
	})
	return n
}

// FindFree returns the lowest address >= hint where size bytes fit below limit.
func (m *MemSim) FindFree(hint, size, limit uint64) (uint64, bool) {
	addr := hint
	for _, p := range m.Mem[m.Mem.lowerBound(hint):] {
		if addr+size <= p.Addr {
			break
		}
		if p.End() > addr {
			addr = (p.End() + PAGE_MASK) &^ PAGE_MASK
		}
	}
	if addr+size < addr || addr+size > limit {
		return 0, false
	}
	return addr, true
}

// Check verifies the region list invariants: sorted, non-overlapping, with
// every backing chunk whole and still under some region.
func (m *MemSim) Check() error {
	if !sort.IsSorted(m.Mem) {
		return errors.New("region list is not sorted")
	}
	for i, p := range m.Mem {
		if i > 0 && m.Mem[i-1].End() > p.Addr {
			return errors.Errorf("region %s overlaps %s", m.Mem[i-1], p)
		}
	}
	for base, c := range m.chunks {
		if base&CHUNK_MASK != 0 || len(c) != CHUNK_SIZE {
			return errors.Errorf("bad chunk at %#x (%#x bytes)", base, len(c))
		}
		if !m.live(base) {
			return errors.Errorf("chunk at %#x outlived its regions", base)
		}
	}
	return nil
}
