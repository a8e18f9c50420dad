package posix

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/lunixbochs/transcorn/go/cpu/x86_64"
	"github.com/lunixbochs/transcorn/go/dbt"
	co "github.com/lunixbochs/transcorn/go/kernel/common"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

const dataAddr = 0x3000

func newKernel(t *testing.T) (*PosixKernel, *dbt.Engine) {
	t.Helper()
	mem := x86_64.NewMem()
	require.NoError(t, mem.MemMapProt(dataAddr, 4*cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_WRITE))
	e := dbt.NewEngine(x86_64.NewCore(mem), mem, nil)
	return NewKernel(nil, "x86_64"), e
}

func call(t *testing.T, k *PosixKernel, e *dbt.Engine, name string, args ...uint64) uint64 {
	t.Helper()
	sys := co.Lookup(k, name)
	require.NotNil(t, sys, name)
	ret, err := sys.Call(e, args)
	require.NoError(t, err)
	return ret
}

func read(t *testing.T, e *dbt.Engine, addr, size uint64) []byte {
	t.Helper()
	data, err := e.Mem().MemRead(addr, size)
	require.NoError(t, err)
	return data
}

func pipe(t *testing.T, k *PosixKernel, e *dbt.Engine) (uint64, uint64) {
	t.Helper()
	require.EqualValues(t, 0, call(t, k, e, "pipe", dataAddr))
	fds := read(t, e, dataAddr, 8)
	r, w := uint64(binary.LittleEndian.Uint32(fds)), uint64(binary.LittleEndian.Uint32(fds[4:]))
	t.Cleanup(func() {
		unix.Close(int(r))
		unix.Close(int(w))
	})
	return r, w
}

func TestPipeReadWrite(t *testing.T) {
	k, e := newKernel(t)
	r, w := pipe(t, k, e)
	require.NoError(t, e.Mem().MemWrite(dataAddr+0x100, []byte("hello")))
	assert.EqualValues(t, 5, call(t, k, e, "write", w, dataAddr+0x100, 5))
	assert.EqualValues(t, 5, call(t, k, e, "read", r, dataAddr+0x200, 16))
	assert.Equal(t, []byte("hello"), read(t, e, dataAddr+0x200, 5))
}

func TestWritev(t *testing.T) {
	k, e := newKernel(t)
	r, w := pipe(t, k, e)
	mem := e.Mem()
	require.NoError(t, mem.MemWrite(dataAddr+0x100, []byte("foo")))
	require.NoError(t, mem.MemWrite(dataAddr+0x180, []byte("barbaz")))
	iov := make([]byte, 32)
	binary.LittleEndian.PutUint64(iov, dataAddr+0x100)
	binary.LittleEndian.PutUint64(iov[8:], 3)
	binary.LittleEndian.PutUint64(iov[16:], dataAddr+0x180)
	binary.LittleEndian.PutUint64(iov[24:], 6)
	require.NoError(t, mem.MemWrite(dataAddr+0x400, iov))

	assert.EqualValues(t, 9, call(t, k, e, "writev", w, dataAddr+0x400, 2))
	assert.EqualValues(t, 9, call(t, k, e, "read", r, dataAddr+0x200, 16))
	assert.Equal(t, []byte("foobarbaz"), read(t, e, dataAddr+0x200, 9))
}

func TestUname(t *testing.T) {
	k, e := newKernel(t)
	assert.EqualValues(t, 0, call(t, k, e, "uname", dataAddr))
	buf := read(t, e, dataAddr, 6*utsLen)
	assert.Equal(t, "Linux\x00", string(buf[:6]))
	assert.Equal(t, "x86_64\x00", string(buf[4*utsLen:4*utsLen+7]))
}

func TestErrno(t *testing.T) {
	k, e := newKernel(t)
	require.NoError(t, e.Mem().MemWrite(dataAddr, []byte("/nonexistent/transcorn\x00")))
	assert.Equal(t, co.Errno(int(unix.ENOENT)), call(t, k, e, "open", dataAddr, 0, 0))
	assert.Equal(t, co.Errno(int(unix.EBADF)), call(t, k, e, "close", 1000))
	assert.EqualValues(t, 0, call(t, k, e, "close", 1))
	assert.Equal(t, co.Errno(co.EINVAL), Errno(os.ErrClosed))
	assert.EqualValues(t, 0, Errno(nil))
}

func TestOpenFstatLseek(t *testing.T) {
	k, e := newKernel(t)
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))
	require.NoError(t, e.Mem().MemWrite(dataAddr, append([]byte(path), 0)))

	fd := call(t, k, e, "openat", uint64(0xffffff9c), dataAddr, uint64(unix.O_RDONLY), 0)
	require.Less(t, fd, uint64(1<<31), "openat failed: %#x", fd)
	defer call(t, k, e, "close", fd)

	assert.EqualValues(t, 0, call(t, k, e, "fstat", fd, dataAddr+0x400))
	// st_size follows dev, ino, nlink, mode, uid, gid, pad and rdev
	size := binary.LittleEndian.Uint64(read(t, e, dataAddr+0x400+48, 8))
	assert.EqualValues(t, 10, size)

	assert.EqualValues(t, 4, call(t, k, e, "lseek", fd, 4, 0))
	assert.EqualValues(t, 3, call(t, k, e, "read", fd, dataAddr+0x200, 3))
	assert.Equal(t, []byte("456"), read(t, e, dataAddr+0x200, 3))
}

func TestMmapFile(t *testing.T) {
	k, e := newKernel(t)
	path := filepath.Join(t.TempDir(), "mapped")
	require.NoError(t, os.WriteFile(path, []byte("mapped contents"), 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	prot := uint64(cpu.PROT_READ | cpu.PROT_WRITE)
	addr := call(t, k, e, "mmap", 0, 0x2000, prot, 0, uint64(f.Fd()), 0)
	require.NotZero(t, addr)
	assert.Equal(t, []byte("mapped contents"), read(t, e, addr, 15))
	page := e.Mem().Find(addr)
	require.NotNil(t, page)
	require.NotNil(t, page.File)
	assert.EqualValues(t, 15, page.File.Len)

	assert.EqualValues(t, 0, call(t, k, e, "mprotect", addr, 0x1000, uint64(cpu.PROT_READ)))
	assert.EqualValues(t, 0, call(t, k, e, "munmap", addr, 0x2000))
	assert.Nil(t, e.Mem().Find(addr))
	assert.Equal(t, co.Errno(co.EINVAL), call(t, k, e, "munmap", addr, 0x2000))
}

func TestMmapAnonymous(t *testing.T) {
	k, e := newKernel(t)
	prot := uint64(cpu.PROT_READ | cpu.PROT_WRITE)
	addr := call(t, k, e, "mmap", 0x400000, 0x1000, prot, MAP_FIXED|MAP_ANONYMOUS, ^uint64(0), 0)
	assert.EqualValues(t, 0x400000, addr)
	assert.Equal(t, co.Errno(co.EINVAL), call(t, k, e, "mmap", 0, 0, prot, MAP_ANONYMOUS, ^uint64(0), 0))
}

func TestClock(t *testing.T) {
	k, e := newKernel(t)
	fixed := time.Unix(1700000000, 1234)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	assert.EqualValues(t, 0, call(t, k, e, "clock_gettime", 0, dataAddr))
	ts := read(t, e, dataAddr, 16)
	assert.EqualValues(t, 1700000000, binary.LittleEndian.Uint64(ts))
	assert.EqualValues(t, 1234, binary.LittleEndian.Uint64(ts[8:]))

	assert.EqualValues(t, 1700000000, call(t, k, e, "time", dataAddr+0x20))
	assert.EqualValues(t, 1700000000, binary.LittleEndian.Uint64(read(t, e, dataAddr+0x20, 8)))
	assert.EqualValues(t, 1700000000, call(t, k, e, "time", 0))
}

func TestGetcwd(t *testing.T) {
	k, e := newKernel(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	n := call(t, k, e, "getcwd", dataAddr, 0x1000)
	require.EqualValues(t, len(wd)+1, n)
	assert.Equal(t, wd+"\x00", string(read(t, e, dataAddr, n)))
	assert.Equal(t, co.Errno(int(unix.ERANGE)), call(t, k, e, "getcwd", dataAddr, 1))
}

func TestIdentity(t *testing.T) {
	k, e := newKernel(t)
	assert.EqualValues(t, os.Getpid(), call(t, k, e, "getpid"))
	assert.EqualValues(t, os.Getuid(), call(t, k, e, "getuid"))
	assert.EqualValues(t, os.Getpid(), call(t, k, e, "set_tid_address", dataAddr))
	assert.EqualValues(t, 0, call(t, k, e, "rt_sigaction"))
	assert.EqualValues(t, 16, call(t, k, e, "getrandom", dataAddr, 16, 0))
}

func TestReadFault(t *testing.T) {
	k, e := newKernel(t)
	r, w := pipe(t, k, e)
	require.NoError(t, e.Mem().MemWrite(dataAddr+0x100, []byte("x")))
	call(t, k, e, "write", w, dataAddr+0x100, 1)
	_, err := co.Lookup(k, "read").Call(e, []uint64{r, 0x9000000, 1})
	require.Error(t, err)
	assert.IsType(t, &co.TrapError{}, err)
}

func TestHugeLengths(t *testing.T) {
	k, e := newKernel(t)
	r, w := pipe(t, k, e)
	efault := co.Errno(co.EFAULT)
	assert.Equal(t, efault, call(t, k, e, "write", 1, dataAddr, ^uint64(0)))
	assert.Equal(t, efault, call(t, k, e, "read", 0, dataAddr, 1<<62))
	assert.Equal(t, efault, call(t, k, e, "pread64", r, dataAddr, 1<<62, 0))
	assert.Equal(t, efault, call(t, k, e, "pwrite64", w, dataAddr, ^uint64(0), 0))
	assert.Equal(t, efault, call(t, k, e, "getrandom", dataAddr, 1<<62, 0))
	assert.Equal(t, co.Errno(co.EINVAL), call(t, k, e, "writev", w, dataAddr, 1<<40))

	prot := uint64(cpu.PROT_READ | cpu.PROT_WRITE)
	enomem := co.Errno(int(unix.ENOMEM))
	assert.Equal(t, enomem, call(t, k, e, "mmap", 0, 1<<62, prot, MAP_ANONYMOUS, ^uint64(0), 0))
	assert.Equal(t, enomem, call(t, k, e, "mmap", 0, ^uint64(0), prot, MAP_ANONYMOUS, ^uint64(0), 0))
}

func TestWriteStopsAtMappingEnd(t *testing.T) {
	k, e := newKernel(t)
	r, w := pipe(t, k, e)
	end := uint64(dataAddr + 4*cpu.PAGE_SIZE)
	require.NoError(t, e.Mem().MemWrite(end-2, []byte("hi")))
	// a length past the mapping moves what is there
	assert.EqualValues(t, 2, call(t, k, e, "write", w, end-2, 1<<20))
	assert.EqualValues(t, 2, call(t, k, e, "read", r, dataAddr, 16))
	assert.Equal(t, []byte("hi"), read(t, e, dataAddr, 2))
}

func TestLargeSparseMmap(t *testing.T) {
	k, e := newKernel(t)
	prot := uint64(cpu.PROT_READ | cpu.PROT_WRITE)
	addr := call(t, k, e, "mmap", 0, 1<<40, prot, MAP_ANONYMOUS, ^uint64(0), 0)
	require.Less(t, addr, uint64(1<<47), "mmap failed: %#x", addr)
	assert.EqualValues(t, 16, call(t, k, e, "getrandom", addr+1<<39, 16, 0))
	assert.EqualValues(t, 0, call(t, k, e, "munmap", addr, 1<<40))
}
