package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"strings"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

var machineMap = map[elf.Machine]string{
	elf.EM_X86_64: "x86_64",
}

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

func MatchElf(r io.ReaderAt) bool {
	return bytes.Equal(getMagic(r), elfMagic)
}

// elf64Header is the fixed part of an ELF64 file header. debug/elf keeps
// the program header offset to itself.
type elf64Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// no PT_LOAD may claim more address space than this
const maxSegment = 1 << 32

type ElfLoader struct {
	LoaderBase
	file   *elf.File
	header elf64Header
	r      io.ReaderAt
	// file length, or -1 when r can't say
	size int64
}

func readerSize(r io.ReaderAt) int64 {
	if s, ok := r.(interface{ Size() int64 }); ok {
		return s.Size()
	}
	return -1
}

// inFile reports whether off:n lies inside the file.
func (e *ElfLoader) inFile(off, n uint64) bool {
	if off+n < off {
		return false
	}
	return e.size < 0 || off+n <= uint64(e.size)
}

func NewElfLoader(r io.ReaderAt) (*ElfLoader, error) {
	file, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidBinary, "elf: %v", err)
	}
	if file.Class != elf.ELFCLASS64 || file.Data != elf.ELFDATA2LSB {
		return nil, errors.Wrapf(ErrInvalidBinary, "elf: unsupported class %s %s", file.Class, file.Data)
	}
	arch, ok := machineMap[file.Machine]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidBinary, "elf: unsupported machine %s", file.Machine)
	}
	if file.Type != elf.ET_EXEC && file.Type != elf.ET_DYN {
		return nil, errors.Wrapf(ErrInvalidBinary, "elf: not an executable (%s)", file.Type)
	}
	l := &ElfLoader{
		LoaderBase: LoaderBase{
			arch:      arch,
			bits:      64,
			byteOrder: binary.LittleEndian,
			os:        "linux",
			entry:     file.Entry,
		},
		file: file,
		r:    r,
		size: readerSize(r),
	}
	hdr := io.NewSectionReader(r, 0, 64)
	if err := struc.UnpackWithOrder(hdr, &l.header, binary.LittleEndian); err != nil {
		return nil, errors.Wrapf(ErrInvalidBinary, "elf header: %v", err)
	}
	return l, nil
}

func (e *ElfLoader) Type() int {
	if e.file.Type == elf.ET_DYN {
		return DYN
	}
	return EXEC
}

func (e *ElfLoader) Interp() string {
	for _, prog := range e.file.Progs {
		if prog.Type == elf.PT_INTERP {
			if !e.inFile(prog.Off, prog.Filesz) {
				return ""
			}
			data := make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(data, 0); err != nil {
				return ""
			}
			return strings.TrimRight(string(data), "\x00")
		}
	}
	return ""
}

func (e *ElfLoader) Header() (uint64, []byte, int) {
	size := uint64(e.header.Phentsize) * uint64(e.header.Phnum)
	var raw []byte
	if e.inFile(e.header.Phoff, size) {
		raw = make([]byte, size)
		if _, err := e.r.ReadAt(raw, int64(e.header.Phoff)); err != nil {
			raw = nil
		}
	}
	return e.header.Phoff, raw, int(e.header.Phnum)
}

func (e *ElfLoader) DataSegment() (uint64, uint64) {
	if sec := e.file.Section(".data"); sec != nil {
		return sec.Addr, sec.Addr + sec.Size
	}
	return 0, 0
}

func progProt(flags elf.ProgFlag) int {
	var prot int
	if flags&elf.PF_R != 0 {
		prot |= cpu.PROT_READ
	}
	if flags&elf.PF_W != 0 {
		prot |= cpu.PROT_WRITE
	}
	if flags&elf.PF_X != 0 {
		prot |= cpu.PROT_EXEC
	}
	return prot
}

// Segments returns the PT_LOAD segments. Data holds only the file bytes;
// the zero fill of the mapping covers .bss.
func (e *ElfLoader) Segments() ([]models.SegmentData, error) {
	var ret []models.SegmentData
	for _, prog := range e.file.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Filesz > prog.Memsz {
			return nil, errors.Wrapf(ErrInvalidBinary, "segment at %#x: file size exceeds memory size", prog.Vaddr)
		}
		if prog.Memsz > maxSegment || prog.Vaddr+prog.Memsz < prog.Vaddr {
			return nil, errors.Wrapf(ErrInvalidBinary, "segment at %#x: memory size %#x", prog.Vaddr, prog.Memsz)
		}
		if !e.inFile(prog.Off, prog.Filesz) {
			return nil, errors.Wrapf(ErrInvalidBinary, "segment at %#x: file range past end of file", prog.Vaddr)
		}
		prog := prog
		ret = append(ret, models.SegmentData{
			Off:  prog.Off,
			Addr: prog.Vaddr,
			Size: prog.Memsz,
			Prot: progProt(prog.Flags),
			DataFunc: func() ([]byte, error) {
				data := make([]byte, prog.Filesz)
				if _, err := prog.ReadAt(data, 0); err != nil && err != io.EOF {
					return nil, errors.Wrapf(ErrInvalidBinary, "segment at %#x: %v", prog.Vaddr, err)
				}
				return data, nil
			},
		})
	}
	if len(ret) == 0 {
		return nil, errors.Wrap(ErrInvalidBinary, "elf: no loadable segments")
	}
	return ret, nil
}

func (e *ElfLoader) Symbols() ([]models.Symbol, error) {
	var out []models.Symbol
	add := func(syms []elf.Symbol, dynamic bool) {
		for _, s := range syms {
			if s.Name == "" || s.Value == 0 {
				continue
			}
			out = append(out, models.Symbol{Name: s.Name, Start: s.Value, End: s.Value + s.Size, Dynamic: dynamic})
		}
	}
	syms, err := e.file.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, errors.Wrap(err, "reading symbols")
	}
	add(syms, false)
	dyn, err := e.file.DynamicSymbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, errors.Wrap(err, "reading dynamic symbols")
	}
	add(dyn, true)
	return out, nil
}
