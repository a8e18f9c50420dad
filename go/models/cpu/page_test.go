package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageSplit(t *testing.T) {
	p := &Page{Addr: 0x1000, Size: 0x3000, Prot: PROT_READ, Desc: "text",
		File: &FileDesc{Name: "a.out", Off: 0x100, Len: 0x1800}}
	left, right := p.Split(0x2000, 0x1000)
	require.NotNil(t, left)
	require.NotNil(t, right)

	assert.Equal(t, "0x1000-0x2000 r-- [text] a.out", left.String())
	assert.Equal(t, uint64(0x2000), p.Addr)
	assert.Equal(t, uint64(0x1000), p.Size)
	assert.Equal(t, "text", right.Desc)
	assert.Equal(t, &FileDesc{Name: "a.out", Off: 0x1100, Len: 0x800}, p.File)
	// the file range ends before the right piece starts
	assert.Nil(t, right.File)
	assert.Equal(t, uint64(0x4000), right.End())
}

func TestPageSplitEdge(t *testing.T) {
	p := &Page{Addr: 0x1000, Size: 0x2000}
	left, right := p.Split(0x1000, 0x1000)
	assert.Nil(t, left)
	require.NotNil(t, right)
	assert.Equal(t, uint64(0x2000), right.Addr)

	_, _, ok := p.Intersect(0x2000, 0x10)
	assert.False(t, ok)
	addr, n, ok := p.Intersect(0x800, 0x1000)
	assert.True(t, ok)
	assert.Equal(t, []uint64{0x1000, 0x800}, []uint64{addr, n})
}

func TestPagesFind(t *testing.T) {
	pages := Pages{
		{Addr: 0x1000, Size: 0x1000},
		{Addr: 0x3000, Size: 0x2000, Desc: "heap"},
	}
	assert.Nil(t, pages.Find(0xfff))
	assert.Equal(t, pages[0], pages.Find(0x1fff))
	assert.Nil(t, pages.Find(0x2000))
	assert.Equal(t, "heap", pages.Find(0x4fff).Desc)
	assert.Nil(t, pages.Find(0x5000))
	assert.Equal(t, 1, pages.lowerBound(0x2000))
}
