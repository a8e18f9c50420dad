package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lunixbochs/transcorn/go/arch"
	"github.com/lunixbochs/transcorn/go/loader"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/cpu"
)

type disFlags struct {
	archName  string
	addr      uint64
	showBytes bool
	raw       bool
}

// disasFile prints every executable segment of a binary.
func disasFile(w *os.File, path string, f *disFlags) error {
	l, err := loader.LoadFile(path)
	if err != nil {
		return err
	}
	a, _, err := arch.GetArch(l.Arch(), l.OS())
	if err != nil {
		return err
	}
	segs, err := l.Segments()
	if err != nil {
		return err
	}
	for _, seg := range segs {
		if seg.Prot&cpu.PROT_EXEC == 0 {
			continue
		}
		data, err := seg.Data()
		if err != nil {
			return err
		}
		out, err := models.Disas(data, seg.Addr, a, f.showBytes)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "segment %#x-%#x:\n%s", seg.Addr, seg.Addr+seg.Size, out)
	}
	return nil
}

func newDisCmd() *cobra.Command {
	var f disFlags
	c := &cobra.Command{
		Use:   "dis [flags] <file|hex>",
		Short: "Disassemble an executable, or hex code with --arch",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if !f.raw && f.archName == "" {
				return disasFile(os.Stdout, args[0], &f)
			}
			code, err := readCode(args[0], os.Stdin)
			if err != nil {
				return err
			}
			if f.archName == "" {
				return errors.Errorf("hex input needs --arch (one of %v)", arch.Names())
			}
			a, _, err := arch.GetArch(f.archName, defaultOS(f.archName))
			if err != nil {
				return err
			}
			out, err := models.Disas(code, f.addr, a, f.showBytes)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, out)
			return nil
		},
	}
	fs := c.Flags()
	fs.StringVar(&f.archName, "arch", "", "architecture of hex input")
	fs.Uint64Var(&f.addr, "addr", 0, "load address of hex input")
	fs.BoolVar(&f.showBytes, "bytes", false, "show instruction bytes")
	fs.BoolVar(&f.raw, "raw", false, "treat the argument as hex, or - for raw bytes on stdin")
	return c
}

func init() { Register(newDisCmd()) }
