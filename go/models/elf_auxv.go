package models

import (
	"bytes"
	"crypto/rand"
	"os"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models/cpu"
)

const (
	ELF_AT_NULL   = 0
	ELF_AT_PHDR   = 3
	ELF_AT_PHENT  = 4
	ELF_AT_PHNUM  = 5
	ELF_AT_PAGESZ = 6
	ELF_AT_BASE   = 7
	ELF_AT_FLAGS  = 8
	ELF_AT_ENTRY  = 9
	ELF_AT_UID    = 11
	ELF_AT_EUID   = 12
	ELF_AT_GID    = 13
	ELF_AT_EGID   = 14
	ELF_AT_CLKTCK = 17
	ELF_AT_RANDOM = 25
	ELF_AT_EXECFN = 31
)

type Elf64Auxv struct {
	Type, Val uint64
}

type Elf32Auxv struct {
	Type, Val uint32
}

func setupElfAuxv(u Usercorn, execfn uint64) ([]Elf64Auxv, error) {
	// the program headers are somewhere in a loaded segment
	phdrOff, _, phdrCount := u.Loader().Header()
	segments, err := u.Loader().Segments()
	if err != nil {
		return nil, err
	}
	var phdr uint64
	for _, s := range segments {
		if s.ContainsPhys(phdrOff) {
			phdr = u.Base() + s.Addr + phdrOff - s.Off
			break
		}
	}

	var tmp [16]byte
	if _, err := rand.Read(tmp[:]); err != nil {
		return nil, errors.Wrap(err, "AT_RANDOM")
	}
	randAddr, err := u.PushBytes(tmp[:])
	if err != nil {
		return nil, err
	}
	phent := uint64(56)
	if u.Bits() == 32 {
		phent = 32
	}
	return []Elf64Auxv{
		{ELF_AT_PHDR, phdr},
		{ELF_AT_PHENT, phent},
		{ELF_AT_PHNUM, uint64(phdrCount)},
		{ELF_AT_PAGESZ, cpu.PAGE_SIZE},
		{ELF_AT_BASE, 0},
		{ELF_AT_FLAGS, 0},
		{ELF_AT_ENTRY, u.BinEntry()},
		{ELF_AT_UID, uint64(os.Getuid())},
		{ELF_AT_EUID, uint64(os.Geteuid())},
		{ELF_AT_GID, uint64(os.Getgid())},
		{ELF_AT_EGID, uint64(os.Getegid())},
		{ELF_AT_CLKTCK, 100},
		{ELF_AT_RANDOM, randAddr},
		{ELF_AT_EXECFN, execfn},
		{ELF_AT_NULL, 0},
	}, nil
}

// SetupElfAuxv pushes AT_RANDOM bytes and returns the packed auxiliary vector.
func SetupElfAuxv(u Usercorn, execfn uint64) ([]byte, error) {
	auxv, err := setupElfAuxv(u, execfn)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, a := range auxv {
		var v interface{} = &a
		if u.Bits() == 32 {
			v = &Elf32Auxv{uint32(a.Type), uint32(a.Val)}
		}
		if err := struc.PackWithOrder(&buf, v, u.ByteOrder()); err != nil {
			return nil, errors.Wrap(err, "packing auxv")
		}
	}
	return buf.Bytes(), nil
}
