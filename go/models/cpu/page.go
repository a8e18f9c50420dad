package cpu

import (
	"fmt"
	"sort"
	"strings"
)

// FileDesc names the file range a mapping was loaded from.
type FileDesc struct {
	Name string
	Off  uint64
	Len  uint64
}

// at returns the descriptor for the mapping offset by n bytes, or nil once
// the file range is used up.
func (f *FileDesc) at(n uint64) *FileDesc {
	if f == nil || n >= f.Len {
		return nil
	}
	return &FileDesc{Name: f.Name, Off: f.Off + n, Len: f.Len - n}
}

// Page is one contiguous mapping. Its bytes live in the owning MemSim.
type Page struct {
	Addr uint64
	Size uint64
	Prot int

	Desc string
	File *FileDesc
}

func (p *Page) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "0x%x-0x%x %s", p.Addr, p.End(), ProtString(p.Prot))
	if p.Desc != "" {
		fmt.Fprintf(&b, " [%s]", p.Desc)
	}
	if p.File != nil {
		b.WriteString(" " + p.File.Name)
	}
	return b.String()
}

func (p *Page) End() uint64 { return p.Addr + p.Size }

func (p *Page) Contains(addr uint64) bool {
	return addr >= p.Addr && addr < p.End()
}

// Intersect clips addr:size to the page.
func (p *Page) Intersect(addr, size uint64) (start, n uint64, ok bool) {
	start, end := max(p.Addr, addr), min(p.End(), addr+size)
	if end <= start {
		return 0, 0, false
	}
	return start, end - start, true
}

func (p *Page) Overlaps(addr, size uint64) bool {
	_, _, ok := p.Intersect(addr, size)
	return ok
}

// sub returns a copy of p's attributes for addr:size.
func (p *Page) sub(addr, size uint64) *Page {
	off := addr - p.Addr
	return &Page{
		Addr: addr,
		Size: size,
		Prot: p.Prot,
		Desc: p.Desc,
		File: p.File.at(off),
	}
}

// Split shrinks p to addr:size, which must lie inside it, and returns the
// pieces cut off below and above. Either may be nil.
func (p *Page) Split(addr, size uint64) (left, right *Page) {
	end := addr + size
	if end < p.End() {
		right = p.sub(end, p.End()-end)
	}
	if addr > p.Addr {
		left = p.sub(p.Addr, addr-p.Addr)
	}
	mid := p.sub(addr, size)
	*p = *mid
	return left, right
}

// Pages is sorted by address and never overlaps.
type Pages []*Page

func (p Pages) Len() int           { return len(p) }
func (p Pages) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p Pages) Less(i, j int) bool { return p[i].Addr < p[j].Addr }

func (p Pages) String() string {
	lines := make([]string, len(p))
	for i, pg := range p {
		lines[i] = pg.String()
	}
	return strings.Join(lines, "\n")
}

// lowerBound is the index of the first page ending after addr.
func (p Pages) lowerBound(addr uint64) int {
	return sort.Search(len(p), func(i int) bool { return p[i].End() > addr })
}

// bsearch is the index of the page containing addr, or -1.
func (p Pages) bsearch(addr uint64) int {
	if i := p.lowerBound(addr); i < len(p) && p[i].Addr <= addr {
		return i
	}
	return -1
}

func (p Pages) Find(addr uint64) *Page {
	if i := p.bsearch(addr); i >= 0 {
		return p[i]
	}
	return nil
}
