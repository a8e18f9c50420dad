package cpu

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Storage allocates the backing chunks for mapped regions.
// Bounds and permission checks happen in MemSim regardless of the backing.
type Storage interface {
	Alloc(size uint64) ([]byte, error)
	// Free is called with the exact slice returned by Alloc once no region
	// overlaps its chunk.
	Free(b []byte)
	Close() error
}

// HeapStorage backs regions with Go slices.
type HeapStorage struct{}

func (HeapStorage) Alloc(size uint64) ([]byte, error) { return make([]byte, size), nil }
func (HeapStorage) Free(b []byte) {}
func (HeapStorage) Close() error { return nil }

// HostStorage backs chunks with anonymous host mappings, keeping guest
// memory out of the Go heap.
type HostStorage struct {
	sync.Mutex
	live map[*byte][]byte
}

func NewHostStorage() *HostStorage {
	return &HostStorage{live: make(map[*byte][]byte)}
}

func (h *HostStorage) Alloc(size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "host mmap(%#x)", size)
	}
	h.Lock()
	h.live[&b[0]] = b
	h.Unlock()
	return b, nil
}

func (h *HostStorage) Free(b []byte) {
	if len(b) == 0 {
		return
	}
	h.Lock()
	orig, ok := h.live[&b[0]]
	delete(h.live, &b[0])
	h.Unlock()
	if ok {
		unix.Munmap(orig)
	}
}

// Live is the number of host mappings not yet freed.
func (h *HostStorage) Live() int {
	h.Lock()
	defer h.Unlock()
	return len(h.live)
}

func (h *HostStorage) Close() error {
	h.Lock()
	defer h.Unlock()
	var first error
	for k, b := range h.live {
		if err := unix.Munmap(b); err != nil && first == nil {
			first = err
		}
		delete(h.live, k)
	}
	return first
}
