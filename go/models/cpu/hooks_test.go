package cpu

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookLog installs one hook of every kind and records what each one sees.
type hookLog struct {
	h     *Hooks
	out   []string
	added []Hook
}

func newHookLog() *hookLog {
	mem := NewMem(64, binary.LittleEndian)
	return &hookLog{h: NewHooks(nil, mem)}
}

func (l *hookLog) logf(format string, args ...interface{}) {
	l.out = append(l.out, fmt.Sprintf(format, args...))
}

func (l *hookLog) install(t testing.TB, start, end uint64) {
	cbs := []struct {
		kind int
		cb   interface{}
	}{
		{HOOK_BLOCK, func(_ Cpu, addr uint64, size uint32) { l.logf("block %#x/%d", addr, size) }},
		{HOOK_CODE, func(_ Cpu, addr uint64, size uint32) { l.logf("code %#x/%d", addr, size) }},
		{HOOK_INTR, func(_ Cpu, intno uint32) { l.logf("intr %d", intno) }},
		{HOOK_MEM_WRITE, func(_ Cpu, access int, addr uint64, size int, val int64) {
			l.logf("write %#x/%d=%d", addr, size, val)
		}},
		{HOOK_MEM_ERR, func(_ Cpu, access int, addr uint64, size int, val int64) bool {
			l.logf("fault %d %#x", access, addr)
			return val == 42
		}},
	}
	for _, c := range cbs {
		hh, err := l.h.HookAdd(c.kind, c.cb, start, end)
		require.NoError(t, err)
		l.added = append(l.added, hh)
	}
}

func (l *hookLog) remove(t testing.TB) {
	for _, hh := range l.added {
		require.NoError(t, l.h.HookDel(hh))
	}
	l.added = nil
}

func (l *hookLog) fire(addr uint64) {
	l.h.OnBlock(addr, 4)
	l.h.OnCode(addr, 2)
	l.h.OnIntr(0x80)
	l.h.OnMem(MEM_WRITE, addr, 8, -1)
	l.h.OnFault(MEM_WRITE_UNMAPPED, addr, 8, 0)
}

func (l *hookLog) take() []string {
	out := l.out
	l.out = nil
	return out
}

var fired = []string{
	"block 0x1000/4", "code 0x1000/2", "intr 128", "write 0x1000/8=-1", "fault 20 0x1000",
}

func TestHooksEmpty(t *testing.T) {
	l := newHookLog()
	l.fire(0x1000)
	assert.Empty(t, l.take())
	assert.False(t, l.h.Active())
}

func TestHooksDispatch(t *testing.T) {
	l := newHookLog()
	l.install(t, 1, 0)
	assert.True(t, l.h.Active())
	l.fire(0x1000)
	assert.Equal(t, fired, l.take())

	// deleting and re-adding must not leave stale entries behind
	l.remove(t)
	l.fire(0x1000)
	assert.Empty(t, l.take())
	l.install(t, 1, 0)
	l.fire(0x1000)
	assert.Equal(t, fired, l.take())
	l.remove(t)

	// the same hook set added twice fires twice, in insertion order
	l.install(t, 1, 0)
	l.install(t, 1, 0)
	l.fire(0x1000)
	var twice []string
	for _, s := range fired {
		twice = append(twice, s, s)
	}
	assert.Equal(t, twice, l.take())
}

func TestHooksFaultResult(t *testing.T) {
	l := newHookLog()
	l.install(t, 1, 0)
	assert.True(t, l.h.OnFault(MEM_READ_UNMAPPED, 0, 1, 42))
	assert.False(t, l.h.OnFault(MEM_READ_UNMAPPED, 0, 1, 0))
}

func TestHooksRange(t *testing.T) {
	l := newHookLog()
	l.install(t, 0x1000, 0x1fff)
	for addr := uint64(0); addr < 0x4000; addr += 0x1000 {
		l.h.OnBlock(addr, 1)
		l.h.OnMem(MEM_WRITE, addr, 1, 0)
	}
	l.h.OnCode(0x1fff, 1)
	l.h.OnCode(0x2000, 1)
	assert.Equal(t, []string{"block 0x1000/1", "write 0x1000/1=0", "code 0x1fff/1"}, l.take())

	// interrupts have no address and always fire
	l.h.OnIntr(3)
	assert.Equal(t, []string{"intr 3"}, l.take())
}

func TestHooksMemKind(t *testing.T) {
	h := NewHooks(nil, nil)
	seen := map[int]int{}
	var cb MemCb = func(_ Cpu, access int, addr uint64, size int, val int64) { seen[access]++ }
	_, err := h.HookAdd(HOOK_MEM_READ, cb, 1, 0)
	require.NoError(t, err)
	_, err = h.HookAdd(HOOK_MEM_READ|HOOK_MEM_WRITE, cb, 1, 0)
	require.NoError(t, err)

	h.OnMem(MEM_READ, 0x10, 4, 0)
	h.OnMem(MEM_WRITE, 0x10, 4, 0)
	h.OnMem(MEM_FETCH, 0x10, 4, 0)
	assert.Equal(t, map[int]int{MEM_READ: 2, MEM_WRITE: 1}, seen)
}

func TestHooksRejects(t *testing.T) {
	h := NewHooks(nil, nil)
	_, err := h.HookAdd(HOOK_CODE, func() {}, 1, 0)
	assert.Error(t, err)
	_, err = h.HookAdd(HOOK_INTR, func(Cpu, uint64, uint32) {}, 1, 0)
	assert.Error(t, err)
	_, err = h.HookAdd(0x7777, func(Cpu, uint32) {}, 1, 0)
	assert.Error(t, err)
	assert.Error(t, h.HookDel("nope"))
}

func BenchmarkHookCode(b *testing.B) {
	h := NewHooks(nil, nil)
	if _, err := h.HookAdd(HOOK_CODE, func(Cpu, uint64, uint32) {}, 0x1000, 0x1fff); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.OnCode(0x1000, 1)
	}
}
