package models

import (
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

// SegmentData is one loadable range of an executable. Off is the file
// offset, Addr the unrelocated load address. Data is read lazily.
type SegmentData struct {
	Off        uint64
	Addr, Size uint64
	Prot       int
	DataFunc   func() ([]byte, error)
}

func (s *SegmentData) Data() ([]byte, error) { return s.DataFunc() }

// ContainsPhys reports whether file offset off falls inside the segment.
func (s *SegmentData) ContainsPhys(off uint64) bool {
	return off >= s.Off && off-s.Off < s.Size
}

// Segment is a guest address range, used to coalesce loader segments
// into page mappings.
type Segment struct {
	Start, End uint64
	Prot       int
}

func (s *Segment) Overlaps(o *Segment) bool {
	return s.Start < o.End && o.Start < s.End
}

// Merge grows s to cover o, with the union of both protections.
func (s *Segment) Merge(o *Segment) {
	s.Start = min(s.Start, o.Start)
	s.End = max(s.End, o.End)
	s.Prot |= o.Prot
}

func (s *Segment) Aligned() *Segment {
	addr, size := cpu.PageAlign(s.Start, s.End-s.Start)
	return &Segment{Start: addr, End: addr + size, Prot: s.Prot}
}
