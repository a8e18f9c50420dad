package models

import (
	"fmt"
	"io"
	"strings"

	"github.com/mgutz/ansi"
)

var (
	chSame = ansi.ColorCode("default:default")
	chNew  = ansi.ColorCode("default+bu:default")
)

// StatusDiff tracks register values between dumps so each dump can
// highlight what changed.
type StatusDiff struct {
	Bsz     int
	oldRegs map[int]uint64
}

func NewStatusDiff(bits int) *StatusDiff {
	return &StatusDiff{Bsz: bits / 4}
}

func colorPad(s, color string, pad int) string {
	length := len(s)
	s = color + s + ansi.Reset
	if length < pad {
		s = strings.Repeat(" ", pad-length) + s
	}
	return s
}

type Change struct {
	Old, New uint64
	Enum     int
	Name     string
}

func (c *Change) Changed() bool {
	return c.Old != c.New
}

type changeMask struct {
	text    string
	changed bool
}

// mask splits the new hex value into runs of changed and unchanged digits.
func (c *Change) mask(bsz int) []changeMask {
	hexFmt := fmt.Sprintf("%%0%dx", bsz)
	s1, s2 := fmt.Sprintf(hexFmt, c.New), fmt.Sprintf(hexFmt, c.Old)
	var masks []changeMask
	pos := 0
	for i := 1; i <= len(s1); i++ {
		if i == len(s1) || (s1[i] != s2[i]) != (s1[pos] != s2[pos]) {
			masks = append(masks, changeMask{s1[pos:i], s1[pos] != s2[pos]})
			pos = i
		}
	}
	return masks
}

func (c *Change) String(bsz int, color bool) string {
	hexFmt := fmt.Sprintf("%%0%dx", bsz)
	if !c.Changed() {
		return fmt.Sprintf("  %4s 0x"+hexFmt, c.Name, c.New)
	}
	if !color {
		return fmt.Sprintf("+ %4s 0x"+hexFmt, c.Name, c.New)
	}
	var out strings.Builder
	fmt.Fprintf(&out, "  %s 0x", colorPad(c.Name, chNew, 4))
	for _, m := range c.mask(bsz) {
		if m.changed {
			out.WriteString(chNew)
		} else {
			out.WriteString(chSame)
		}
		out.WriteString(m.text)
	}
	out.WriteString(ansi.Reset)
	return out.String()
}

type Changes struct {
	Bsz     int
	Changes []*Change
}

// String lays the registers out column-major, four to a row.
func (cs *Changes) String(color bool) string {
	var out []string
	const cols = 4
	changes := cs.Changes
	rows := (len(changes) + cols - 1) / cols
	for i := 0; i < rows; i++ {
		var line []string
		for j := 0; j < cols; j++ {
			if k := j*rows + i; k < len(changes) {
				line = append(line, changes[k].String(cs.Bsz, color))
			}
		}
		out = append(out, strings.Join(line, " "))
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

func (cs *Changes) Count() int {
	n := 0
	for _, c := range cs.Changes {
		if c.Changed() {
			n++
		}
	}
	return n
}

func (cs *Changes) Find(enum int) *Change {
	for _, c := range cs.Changes {
		if c.Enum == enum {
			return c
		}
	}
	return nil
}

// Changes diffs regs against the previous call. With onlyChanged, only
// default registers that changed are included.
func (s *StatusDiff) Changes(regs []RegVal, onlyChanged bool) *Changes {
	cs := make([]*Change, 0, len(regs))
	for _, reg := range regs {
		if onlyChanged && !reg.Default {
			continue
		}
		change := &Change{Old: s.oldRegs[reg.Enum], New: reg.Val, Enum: reg.Enum, Name: reg.Name}
		if s.oldRegs == nil {
			change.Old = reg.Val
		}
		if !onlyChanged || change.Changed() {
			cs = append(cs, change)
		}
	}
	s.oldRegs = make(map[int]uint64, len(regs))
	for _, r := range regs {
		s.oldRegs[r.Enum] = r.Val
	}
	return &Changes{Bsz: s.Bsz, Changes: cs}
}

func (s *StatusDiff) Print(w io.Writer, regs []RegVal, color, onlyChanged bool) {
	fmt.Fprint(w, s.Changes(regs, onlyChanged).String(color))
}
