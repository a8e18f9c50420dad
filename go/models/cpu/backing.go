package cpu

import (
	"sort"
)

// CHUNK_SIZE is the unit of backing allocation. A chunk is allocated the
// first time a nonzero byte is written inside it, so untouched parts of a
// mapping cost nothing. Unmapped bytes inside a chunk are kept zero.
const (
	CHUNK_SIZE = 16 * PAGE_SIZE
	CHUNK_MASK = CHUNK_SIZE - 1
)

func chunkBase(addr uint64) uint64 { return addr &^ CHUNK_MASK }

// chunkEnd saturates for the top chunk; the last byte of the address space
// can never be mapped.
func chunkEnd(base uint64) uint64 {
	if end := base + CHUNK_SIZE; end > base {
		return end
	}
	return ^uint64(0)
}

func rangeEnd(addr, size uint64) uint64 {
	if end := addr + size; end >= addr {
		return end
	}
	return ^uint64(0)
}

// chunk returns the backing for base, or nil if nothing was written there.
func (m *MemSim) chunk(base uint64) []byte {
	if m.lastChunk != nil && m.lastBase == base {
		return m.lastChunk
	}
	c := m.chunks[base]
	if c != nil {
		m.lastBase, m.lastChunk = base, c
	}
	return c
}

func (m *MemSim) chunkAlloc(base uint64) ([]byte, error) {
	if c := m.chunk(base); c != nil {
		return c, nil
	}
	c, err := m.storage().Alloc(CHUNK_SIZE)
	if err != nil {
		return nil, err
	}
	if m.chunks == nil {
		m.chunks = make(map[uint64][]byte)
	}
	m.chunks[base] = c
	m.lastBase, m.lastChunk = base, c
	return c, nil
}

func (m *MemSim) chunkFree(base uint64) {
	c := m.chunks[base]
	delete(m.chunks, base)
	if m.lastBase == base {
		m.lastChunk = nil
	}
	m.storage().Free(c)
}

// pieces splits addr:size at chunk boundaries.
func pieces(addr, size uint64, fn func(base, off, n uint64) error) error {
	for size > 0 {
		base := chunkBase(addr)
		off := addr - base
		n := min(size, CHUNK_SIZE-off)
		if err := fn(base, off, n); err != nil {
			return err
		}
		addr += n
		size -= n
	}
	return nil
}

func (m *MemSim) readData(addr uint64, p []byte) {
	pieces(addr, uint64(len(p)), func(base, off, n uint64) error {
		dst := p[:n]
		if c := m.chunk(base); c != nil {
			copy(dst, c[off:])
		} else {
			clear(dst)
		}
		p = p[n:]
		return nil
	})
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func (m *MemSim) writeData(addr uint64, p []byte) error {
	return pieces(addr, uint64(len(p)), func(base, off, n uint64) error {
		src := p[:n]
		p = p[n:]
		c := m.chunk(base)
		if c == nil {
			if allZero(src) {
				return nil
			}
			var err error
			if c, err = m.chunkAlloc(base); err != nil {
				return err
			}
		}
		copy(c[off:], src)
		return nil
	})
}

// chunkBases lists the allocated chunks touching addr:size in address order.
func (m *MemSim) chunkBases(addr, size uint64) []uint64 {
	end := rangeEnd(addr, size)
	var out []uint64
	if (end-chunkBase(addr))/CHUNK_SIZE <= uint64(len(m.chunks)) {
		for base := chunkBase(addr); base < end; base += CHUNK_SIZE {
			if _, ok := m.chunks[base]; ok {
				out = append(out, base)
			}
			if chunkEnd(base) == ^uint64(0) {
				break
			}
		}
		return out
	}
	for base := range m.chunks {
		if chunkEnd(base) > addr && base < end {
			out = append(out, base)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// live reports whether any region still overlaps the chunk at base.
func (m *MemSim) live(base uint64) bool {
	i := m.Mem.lowerBound(base)
	return i < len(m.Mem) && m.Mem[i].Addr < chunkEnd(base)
}

// clearData zeroes addr:size in the backing and frees chunks no region uses.
func (m *MemSim) clearData(addr, size uint64) {
	for _, base := range m.chunkBases(addr, size) {
		if !m.live(base) {
			m.chunkFree(base)
			continue
		}
		start := max(base, addr)
		end := min(chunkEnd(base), rangeEnd(addr, size))
		clear(m.chunks[base][start-base : end-base])
	}
}

// resident calls fn for every allocated piece of addr:size, in order.
func (m *MemSim) resident(addr, size uint64, fn func(addr uint64, data []byte)) {
	for _, base := range m.chunkBases(addr, size) {
		start := max(base, addr)
		end := min(chunkEnd(base), rangeEnd(addr, size))
		fn(start, m.chunks[base][start-base:end-base])
	}
}
