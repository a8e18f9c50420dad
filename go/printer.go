package usercorn

import (
	"fmt"
	"io"
	"strings"

	"github.com/mgutz/ansi"

	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/trace"
)

// printer renders trace ops as text for the -etrace style flags.
type printer struct {
	u     *Usercorn
	w     io.Writer
	color bool

	block, ins, reg, mem, sys bool

	pc    uint64
	names map[int]string
}

func newPrinter(u *Usercorn, tc *models.TraceConfig) *printer {
	all := tc.Everything
	p := &printer{
		u:     u,
		w:     u.config.Output,
		color: u.config.Color,
		block: all || tc.Block,
		ins:   all || tc.Ins,
		reg:   all || tc.Reg,
		mem:   all || tc.Mem,
		sys:   all || tc.Sys,
		names: make(map[int]string),
	}
	for name, enum := range u.arch.Regs {
		p.names[enum] = name
	}
	return p
}

func (p *printer) active() bool {
	return p.block || p.ins || p.reg || p.mem || p.sys
}

func (p *printer) paint(s, style string) string {
	if p.color {
		return ansi.Color(s, style)
	}
	return s
}

func (p *printer) where(addr uint64) string {
	if sym, _ := p.u.Symbolicate(addr); sym != "" {
		return fmt.Sprintf("%#x <%s>", addr, sym)
	}
	return fmt.Sprintf("%#x", addr)
}

func (p *printer) onOp(op models.Op) {
	switch o := op.(type) {
	case *trace.OpKeyframe:
		for _, sub := range o.Ops {
			if jmp, ok := sub.(*trace.OpJmp); ok {
				p.pc = jmp.Addr
			}
		}
	case *trace.OpJmp:
		if p.block {
			fmt.Fprintf(p.w, "%s %s\n", p.paint("->", "cyan"), p.where(o.Addr))
		}
		p.pc = o.Addr
	case *trace.OpStep:
		if p.ins {
			if dis, err := p.u.Dis(p.pc, uint64(o.Size), false); err == nil {
				fmt.Fprintln(p.w, strings.TrimRight(dis, "\n"))
			}
		}
		p.pc += uint64(o.Size)
	case *trace.OpReg:
		if p.reg {
			name, ok := p.names[int(o.Num)]
			if !ok {
				name = fmt.Sprintf("reg%d", o.Num)
			}
			fmt.Fprintf(p.w, "    %s = %#x\n", p.paint(name, "green"), o.Val)
		}
	case *trace.OpMemRead:
		if p.mem {
			fmt.Fprintf(p.w, "    %s %#x [%d]\n", p.paint("R", "yellow"), o.Addr, o.Size)
		}
	case *trace.OpMemWrite:
		if p.mem {
			fmt.Fprintf(p.w, "    %s %#x %x\n", p.paint("W", "red"), o.Addr, o.Data)
		}
	case *trace.OpMemMap:
		if p.mem {
			fmt.Fprintf(p.w, "    map %#x-%#x prot=%d %s\n", o.Addr, o.Addr+o.Size, o.Prot, o.Desc)
		}
	case *trace.OpMemUnmap:
		if p.mem {
			fmt.Fprintf(p.w, "    unmap %#x-%#x\n", o.Addr, o.Addr+o.Size)
		}
	case *trace.OpMemProt:
		if p.mem {
			fmt.Fprintf(p.w, "    prot %#x-%#x prot=%d\n", o.Addr, o.Addr+o.Size, o.Prot)
		}
	case *trace.OpSyscall:
		if p.sys {
			fmt.Fprintln(p.w, o.Desc)
		}
	}
}

func (u *Usercorn) attachTrace() error {
	tc := u.config.Trace
	if !tc.Any() && len(tc.OpCallback) == 0 {
		return nil
	}
	if p := newPrinter(u, &tc); p.active() {
		tc.OpCallback = append(tc.OpCallback[:len(tc.OpCallback):len(tc.OpCallback)], p.onOp)
	}
	tr, err := trace.NewTrace(u.engine, u.arch, u.os.Name, &tc)
	if err != nil {
		return err
	}
	if err := tr.Attach(); err != nil {
		return err
	}
	u.trace = tr
	u.sysHook = append(u.sysHook, u.HookSysAdd(tr.OnSysPre, tr.OnSysPost))
	return nil
}

func (u *Usercorn) detachTrace() error {
	for _, h := range u.sysHook {
		u.HookSysDel(h)
	}
	u.sysHook = nil
	if u.trace == nil {
		return nil
	}
	err := u.trace.Detach()
	u.trace = nil
	return err
}

// Trace is the recorder attached for the current run, if any.
func (u *Usercorn) Trace() *trace.Trace { return u.trace }
