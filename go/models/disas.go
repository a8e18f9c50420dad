package models

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lunixbochs/transcorn/go/dbt"
)

// Disas renders code one instruction per line. Bytes that don't decode are
// shown as a .byte line and disassembly resumes after them.
func Disas(code []byte, addr uint64, arch *Arch, showBytes bool, pad ...int) (string, error) {
	if len(code) == 0 {
		return "", nil
	}
	var width int
	if len(pad) > 0 {
		width = pad[0]
	}
	var insns []Ins
	for len(code) > 0 {
		out, err := arch.Disas(code, addr)
		for _, ins := range out {
			insns = append(insns, ins)
			n := ins.Len()
			code, addr = code[n:], addr+uint64(n)
		}
		if err != nil {
			if _, ok := dbt.IsNeedMore(err); ok || len(code) == 0 {
				insns = append(insns, badIns{addr, code})
				break
			}
			insns = append(insns, badIns{addr, code[:1]})
			code, addr = code[1:], addr+1
		}
	}
	for _, ins := range insns {
		if n := len(ins.Bytes()); n > width {
			width = n
		}
	}
	var out []string
	for _, ins := range insns {
		line := fmt.Sprintf("%#x:", ins.Addr())
		if showBytes {
			data := hex.EncodeToString(ins.Bytes())
			line += " " + data + strings.Repeat(" ", width*2-len(data))
		}
		line += " " + ins.Mnemonic()
		if op := ins.OpStr(); op != "" {
			line += " " + op
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n"), nil
}

type badIns struct {
	addr uint64
	data []byte
}

func (b badIns) Addr() uint64     { return b.addr }
func (b badIns) Bytes() []byte    { return b.data }
func (b badIns) Mnemonic() string { return ".byte" }
func (b badIns) OpStr() string {
	parts := make([]string, len(b.data))
	for i, v := range b.data {
		parts[i] = fmt.Sprintf("%#x", v)
	}
	return strings.Join(parts, ", ")
}
