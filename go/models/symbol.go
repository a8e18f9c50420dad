package models

type Symbol struct {
	Name       string
	Start, End uint64
	Dynamic    bool
}

// Contains treats a zero End as an open-ended symbol.
func (s Symbol) Contains(addr uint64) bool {
	return s.Start <= addr && (addr < s.End || s.End == 0)
}

// Symbolicate returns the name of the closest symbol at or below addr, with
// the offset into it.
func Symbolicate(syms []Symbol, addr uint64) (Symbol, uint64, bool) {
	var best Symbol
	found := false
	for _, s := range syms {
		if s.Start <= addr && s.Contains(addr) && (!found || s.Start > best.Start) {
			best, found = s, true
		}
	}
	return best, addr - best.Start, found
}
