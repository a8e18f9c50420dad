package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type testPhdr struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

const (
	testBase  = 0x400000
	testCode  = 64 + 56
	testEntry = testBase + testCode
)

// buildElf returns an ELF64 executable with a single RX PT_LOAD that covers
// the header and code, plus bss bytes of zero fill.
func buildElf(t *testing.T, machine elf.Machine, code []byte, bss uint64) []byte {
	t.Helper()
	var buf bytes.Buffer
	fileSize := uint64(testCode + len(code))
	hdr := elf64Header{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   1,
		Entry:     testEntry,
		Phoff:     64,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
	}
	copy(hdr.Ident[:], elfMagic)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &hdr))
	phdr := testPhdr{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Vaddr:  testBase,
		Paddr:  testBase,
		Filesz: fileSize,
		Memsz:  fileSize + bss,
		Align:  0x1000,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &phdr))
	buf.Write(code)
	return buf.Bytes()
}

func TestElf(t *testing.T) {
	code := []byte{0xb8, 0x3c, 0, 0, 0, 0x0f, 0x05}
	l, err := Load(bytes.NewReader(buildElf(t, elf.EM_X86_64, code, 0x20)))
	require.NoError(t, err)
	assert.Equal(t, "x86_64", l.Arch())
	assert.Equal(t, "linux", l.OS())
	assert.Equal(t, 64, l.Bits())
	assert.EqualValues(t, testEntry, l.Entry())
	assert.Equal(t, EXEC, l.Type())
	assert.Equal(t, "", l.Interp())

	phoff, raw, count := l.Header()
	assert.EqualValues(t, 64, phoff)
	assert.Len(t, raw, 56)
	assert.Equal(t, 1, count)

	segs, err := l.Segments()
	require.NoError(t, err)
	require.Len(t, segs, 1)
	seg := segs[0]
	assert.EqualValues(t, testBase, seg.Addr)
	assert.Equal(t, cpu.PROT_READ|cpu.PROT_EXEC, seg.Prot)
	assert.True(t, seg.ContainsPhys(phoff))
	data, err := seg.Data()
	require.NoError(t, err)
	require.Len(t, data, testCode+len(code))
	assert.Equal(t, code, data[testCode:])
	assert.EqualValues(t, testCode+len(code)+0x20, seg.Size)

	syms, err := l.Symbols()
	assert.NoError(t, err)
	assert.Empty(t, syms)
}

func TestElfRejects(t *testing.T) {
	_, err := Load(bytes.NewReader(buildElf(t, elf.EM_ARM, []byte{0}, 0)))
	assert.Equal(t, ErrInvalidBinary, errors.Cause(err))

	_, err = Load(bytes.NewReader(elfMagic))
	assert.Equal(t, ErrInvalidBinary, errors.Cause(err))

	_, err = Load(bytes.NewReader([]byte("#!/bin/sh\n")))
	assert.Equal(t, ErrInvalidBinary, errors.Cause(err))
	assert.Equal(t, models.ExitBinary, models.ExitCode(err))

	_, err = Load(bytes.NewReader(nil))
	assert.Equal(t, ErrInvalidBinary, errors.Cause(err))
}

func TestElfSegmentBounds(t *testing.T) {
	code := []byte{0x0f, 0x05}
	l, err := Load(bytes.NewReader(buildElf(t, elf.EM_X86_64, code, 1<<62)))
	require.NoError(t, err)
	_, err = l.Segments()
	assert.Equal(t, ErrInvalidBinary, errors.Cause(err))

	img := buildElf(t, elf.EM_X86_64, code, 0)
	l, err = Load(bytes.NewReader(img[:len(img)-1]))
	require.NoError(t, err)
	_, err = l.Segments()
	assert.Equal(t, ErrInvalidBinary, errors.Cause(err))
}

func TestNdh(t *testing.T) {
	text := []byte{0x04, 0x02, 0x00, 0x05, 0x00, 0x1c}
	img := append([]byte(".NDH"), byte(len(text)), 0)
	img = append(img, text...)
	l, err := Load(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, "ndh", l.Arch())
	assert.Equal(t, "ndh", l.OS())
	assert.EqualValues(t, NdhBase, l.Entry())
	segs, err := l.Segments()
	require.NoError(t, err)
	require.Len(t, segs, 1)
	data, err := segs[0].Data()
	require.NoError(t, err)
	assert.Equal(t, text, data)
	assert.EqualValues(t, 6, segs[0].Off)

	_, err = Load(bytes.NewReader(append([]byte(".NDH"), 0xff, 0)))
	assert.Equal(t, ErrInvalidBinary, errors.Cause(err))
}

func TestRaw(t *testing.T) {
	arch := &models.Arch{Name: "x86_64", Bits: 64, Order: binary.LittleEndian}
	l := NewRawLoader([]byte{0x90}, arch, "linux", 0x1000)
	assert.EqualValues(t, 0x1000, l.Entry())
	segs, err := l.Segments()
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, cpu.PROT_ALL, segs[0].Prot)
	var _ models.Loader = l
}
