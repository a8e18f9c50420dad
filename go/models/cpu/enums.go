package cpu

// hook enums are based on Unicorn's so trace consumers keep working
const (
	// hook CPU interrupts (traps)
	HOOK_INTR = 1

	// hook each executed instruction
	HOOK_CODE = 4

	// hook each executed basic block
	HOOK_BLOCK = 8

	// hook (before) each memory read/write
	HOOK_MEM_READ  = 1024
	HOOK_MEM_WRITE = 2048
	HOOK_MEM_FETCH = 4096

	// hook all memory errors
	HOOK_MEM_ERR = 1008
)

// these errors are used for HOOK_MEM_ERR and MemError.Enum
const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_FETCH_UNMAPPED = 21
	MEM_WRITE_PROT     = 12
	MEM_READ_PROT      = 13
	MEM_FETCH_PROT     = 14

	MEM_READ_UNALIGNED  = 24
	MEM_WRITE_UNALIGNED = 25
	MEM_FETCH_UNALIGNED = 26
)

// these constants are used for memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// these constants are used in a hook to specify the type of memory access
const (
	MEM_WRITE = 16
	MEM_READ  = 17
	MEM_FETCH = 18
)

// page granularity for map/unmap/protect
const (
	PAGE_SIZE = 0x1000
	PAGE_MASK = PAGE_SIZE - 1
)

func PageAlign(addr, size uint64) (uint64, uint64) {
	start := addr &^ PAGE_MASK
	end := (addr + size + PAGE_MASK) &^ PAGE_MASK
	return start, end - start
}

func ProtString(prot int) string {
	s := []byte("---")
	if prot&PROT_READ != 0 {
		s[0] = 'r'
	}
	if prot&PROT_WRITE != 0 {
		s[1] = 'w'
	}
	if prot&PROT_EXEC != 0 {
		s[2] = 'x'
	}
	return string(s)
}
