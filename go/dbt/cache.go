package dbt

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/log"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

const (
	DefaultBlockInsns = 256
	// bytes fetched at a time while decoding a block
	fetchWindow = 512
	// rebuild attempts when a concurrent write keeps racing a build
	buildRetries = 3

	pageShift = 12
)

type CacheStats struct {
	Hits          uint64
	Misses        uint64
	Builds        uint64
	Invalidations uint64
	Compactions   uint64
}

// Cache maps code addresses to translated blocks. Blocks live in an
// append-only arena and are referenced by index from the address and page
// indexes, so eviction is a matter of clearing those references.
//
// Lookups happen on the owning engine's goroutine. Invalidation can arrive
// from any goroutine writing to shared memory and is serialized by the lock.
type Cache struct {
	sync.Mutex
	mem  *cpu.Mem
	core Core
	log  *log.Logger

	MaxInsns int

	arena  []*Block
	byAddr map[uint64]int32
	pages  map[uint64][]int32
	dead   int

	// building is set while a block is decoded outside the lock;
	// gen moves whenever an invalidation could affect that block.
	building bool
	gen      uint64

	Stats CacheStats
}

func NewCache(mem *cpu.Mem, core Core, logger *log.Logger) *Cache {
	c := &Cache{
		mem:      mem,
		core:     core,
		log:      logger.Or(),
		MaxInsns: DefaultBlockInsns,
		byAddr:   make(map[uint64]int32),
		pages:    make(map[uint64][]int32),
	}
	mem.WatchWrites(func(addr, size uint64) {
		c.Invalidate(addr, size)
	})
	mem.WatchMaps(func(ev cpu.MapEvent) {
		// a protect that keeps exec doesn't change the bytes
		if ev.Kind == cpu.PROT_CHANGE && ev.Prot&cpu.PROT_EXEC != 0 {
			return
		}
		c.Invalidate(ev.Addr, ev.Size)
	})
	return c
}

func (c *Cache) Len() int {
	c.Lock()
	defer c.Unlock()
	return len(c.byAddr)
}

// Lookup returns the live block starting at addr, if any.
func (c *Cache) Lookup(addr uint64) *Block {
	c.Lock()
	defer c.Unlock()
	if i, ok := c.byAddr[addr]; ok {
		return c.arena[i]
	}
	return nil
}

// LookupOrBuild returns the block at addr, decoding and binding it on a miss.
// Guest faults (unmapped or non-executable code, undecodable bytes) are
// returned as errors.
func (c *Cache) LookupOrBuild(addr uint64) (*Block, error) {
	c.Lock()
	if i, ok := c.byAddr[addr]; ok {
		b := c.arena[i]
		c.Stats.Hits++
		c.Unlock()
		if err := c.validate(b); err != nil {
			return nil, err
		}
		return b, nil
	}
	c.Stats.Misses++
	for try := 0; ; try++ {
		c.building = true
		gen := c.gen
		c.Unlock()

		b, err := c.build(addr)

		c.Lock()
		c.building = false
		if err != nil {
			c.Unlock()
			return nil, err
		}
		c.Stats.Builds++
		if gen == c.gen {
			c.insert(b)
			c.Unlock()
			c.log.Debug("block", log.Addr(b.Addr), log.Size(b.Size), log.Int("insns", len(b.Insns)), log.String("exit", b.Exit.String()))
			return b, nil
		}
		if try >= buildRetries {
			// run it once without caching
			c.Unlock()
			return b, nil
		}
	}
}

// validate re-checks execute permission for a cache hit whenever the memory
// layout changed since the block was last checked. Protect and unmap evict
// blocks synchronously, so a failure here means the cache is out of sync.
func (c *Cache) validate(b *Block) error {
	seq := c.mem.Seq()
	if b.seq == seq {
		return nil
	}
	if !c.mem.Executable(b.Addr, b.Size) {
		return Internalf("cached block %#x-%#x is no longer executable", b.Addr, b.End())
	}
	b.seq = seq
	return nil
}

func (c *Cache) build(addr uint64) (*Block, error) {
	max := c.core.MaxInsnLen()
	limit := c.MaxInsns
	if limit <= 0 {
		limit = DefaultBlockInsns
	}
	seq := c.mem.Seq()
	b := &Block{Addr: addr, Index: -1, Exit: ExitLimit, seq: seq}

	var window []byte
	var wbase uint64
	pc := addr
	for len(b.Insns) < limit {
		off := pc - wbase
		if window == nil || off >= uint64(len(window)) || uint64(len(window))-off < uint64(max) {
			code, err := c.mem.Fetch(pc, fetchWindow)
			if err != nil {
				if len(b.Insns) > 0 {
					// end of executable memory, fault if execution gets there
					break
				}
				return nil, err
			}
			window, wbase, off = code, pc, 0
		}
		ins, err := c.core.Decode(window[off:], pc)
		if err != nil {
			if _, ok := IsNeedMore(err); ok {
				// the window already holds every contiguous executable byte
				if len(b.Insns) > 0 {
					b.Exit = ExitLimit
					break
				}
				end := pc + uint64(len(window)) - off
				return nil, c.fetchFault(end)
			}
			if d, ok := errors.Cause(err).(*DecodeError); ok {
				if len(b.Insns) > 0 {
					b.Exit = ExitDecode
					break
				}
				n := d.Offset + 1
				if n > len(window[off:]) {
					n = len(window[off:])
				}
				return nil, &InvalidOpcode{PC: pc, Bytes: append([]byte(nil), window[off:off+uint64(n)]...), Err: d}
			}
			return nil, err
		}
		if ins.Len() <= 0 || ins.Addr() != pc {
			return nil, Internalf("decoder returned %d-byte instruction at %#x for %#x", ins.Len(), ins.Addr(), pc)
		}
		exec, err := c.core.Bind(ins)
		if err != nil {
			if _, ok := err.(*InternalError); ok {
				return nil, err
			}
			return nil, &InternalError{Msg: "bind", Err: err}
		}
		b.Insns = append(b.Insns, ins)
		b.Execs = append(b.Execs, exec)
		pc += uint64(ins.Len())
		if f := ins.Flow(); f.Ends() {
			b.Exit = exitFor(f)
			break
		}
	}
	if len(b.Insns) == 0 {
		return nil, Internalf("empty block at %#x", addr)
	}
	b.Size = pc - addr
	b.setSuccessors()
	return b, nil
}

// fetchFault produces the fault for an instruction running past the end of
// executable memory at addr.
func (c *Cache) fetchFault(addr uint64) error {
	if _, err := c.mem.Fetch(addr, 1); err != nil {
		return err
	}
	return Internalf("decoder wants bytes past %#x, which is executable", addr)
}

func pageRange(addr, size uint64) (uint64, uint64) {
	if size == 0 {
		return addr >> pageShift, addr >> pageShift
	}
	return addr >> pageShift, (addr + size - 1) >> pageShift
}

func (c *Cache) insert(b *Block) {
	if old, ok := c.byAddr[b.Addr]; ok {
		c.evict(old)
	}
	atomic.StoreInt32(&b.Index, int32(len(c.arena)))
	c.arena = append(c.arena, b)
	c.byAddr[b.Addr] = b.Index
	first, last := pageRange(b.Addr, b.Size)
	for p := first; p <= last; p++ {
		c.pages[p] = append(c.pages[p], b.Index)
	}
}

// evict must be called with the lock held.
func (c *Cache) evict(i int32) {
	b := c.arena[i]
	if b == nil {
		return
	}
	if c.byAddr[b.Addr] == i {
		delete(c.byAddr, b.Addr)
	}
	first, last := pageRange(b.Addr, b.Size)
	for p := first; p <= last; p++ {
		list := c.pages[p]
		for j, v := range list {
			if v == i {
				list[j] = list[len(list)-1]
				list = list[:len(list)-1]
				break
			}
		}
		if len(list) == 0 {
			delete(c.pages, p)
		} else {
			c.pages[p] = list
		}
	}
	c.arena[i] = nil
	atomic.StoreInt32(&b.Index, -1)
	c.dead++
	c.Stats.Invalidations++
}

// Invalidate evicts every block overlapping addr:size and returns how many.
func (c *Cache) Invalidate(addr, size uint64) int {
	c.Lock()
	defer c.Unlock()
	if c.building {
		c.gen++
	}
	if len(c.byAddr) == 0 {
		return 0
	}
	var hit []int32
	first, last := pageRange(addr, size)
	if last-first+1 > uint64(len(c.pages)) {
		for i, b := range c.arena {
			if b != nil && b.Overlaps(addr, size) {
				hit = append(hit, int32(i))
			}
		}
	} else {
		for p := first; p <= last; p++ {
			for _, i := range c.pages[p] {
				if c.arena[i].Overlaps(addr, size) {
					hit = append(hit, i)
				}
			}
		}
	}
	n := 0
	for _, i := range hit {
		if c.arena[i] != nil {
			c.evict(i)
			n++
		}
	}
	if n > 0 {
		c.gen++
		c.compact()
	}
	return n
}

// Flush evicts everything.
func (c *Cache) Flush() {
	c.Lock()
	defer c.Unlock()
	for _, b := range c.arena {
		if b != nil {
			atomic.StoreInt32(&b.Index, -1)
		}
	}
	c.Stats.Invalidations += uint64(len(c.byAddr))
	c.arena = nil
	c.byAddr = make(map[uint64]int32)
	c.pages = make(map[uint64][]int32)
	c.dead = 0
	c.gen++
}

// compact drops dead arena slots once they outnumber live ones.
func (c *Cache) compact() {
	if c.dead < 64 || c.dead*2 < len(c.arena) {
		return
	}
	live := make([]*Block, 0, len(c.arena)-c.dead)
	c.byAddr = make(map[uint64]int32, len(live))
	c.pages = make(map[uint64][]int32)
	for _, b := range c.arena {
		if b == nil {
			continue
		}
		atomic.StoreInt32(&b.Index, int32(len(live)))
		live = append(live, b)
		c.byAddr[b.Addr] = b.Index
		first, last := pageRange(b.Addr, b.Size)
		for p := first; p <= last; p++ {
			c.pages[p] = append(c.pages[p], b.Index)
		}
	}
	c.arena = live
	c.dead = 0
	c.Stats.Compactions++
}

// Check verifies the indexes agree with the arena.
func (c *Cache) Check() error {
	c.Lock()
	defer c.Unlock()
	for addr, i := range c.byAddr {
		if int(i) >= len(c.arena) || c.arena[i] == nil || c.arena[i].Addr != addr || c.arena[i].Index != i {
			return Internalf("cache index for %#x points at a dead slot", addr)
		}
	}
	for p, list := range c.pages {
		for _, i := range list {
			b := c.arena[i]
			if b == nil {
				return Internalf("page %#x lists evicted block %d", p<<pageShift, i)
			}
			if first, last := pageRange(b.Addr, b.Size); p < first || p > last {
				return Internalf("page %#x lists block %#x which doesn't touch it", p<<pageShift, b.Addr)
			}
		}
	}
	return nil
}
