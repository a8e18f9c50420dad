// Package trace is the command for inspecting saved trace files.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lunixbochs/transcorn/go/arch"
	"github.com/lunixbochs/transcorn/go/cmd"
	"github.com/lunixbochs/transcorn/go/models"
	"github.com/lunixbochs/transcorn/go/models/trace"
)

// each reads ops until the end of the trace.
func each(tf *trace.TraceReader, fn func(op models.Op) error) error {
	for {
		op, err := tf.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "error reading next trace operation")
		}
		if err := fn(op); err != nil {
			return err
		}
	}
}

func PrintJson(w io.Writer, tf *trace.TraceReader) error {
	enc := json.NewEncoder(w)
	header := map[string]interface{}{
		"arch":    tf.Header.Arch,
		"os":      tf.Header.OS,
		"version": tf.Header.Version,
		"session": tf.Header.SessionID().String(),
	}
	if err := enc.Encode(header); err != nil {
		return errors.Wrap(err, "error printing header")
	}
	return each(tf, func(op models.Op) error {
		return enc.Encode(op)
	})
}

// PrintPretty replays the trace and prints each instruction with its effects.
func PrintPretty(w io.Writer, tf *trace.TraceReader) error {
	a, _, err := arch.GetArch(tf.Header.Arch, tf.Header.OS)
	if err != nil {
		return errors.Wrap(err, "arch.GetArch() failed")
	}
	names := make(map[int]string)
	for name, enum := range a.Regs {
		names[enum] = name
	}
	replay := trace.NewReplay(a, tf.Header.CodeOrder)
	replay.Listen(func(pc uint64, op models.Op, effects []models.Op) {
		switch o := op.(type) {
		case *trace.OpJmp:
			fmt.Fprintf(w, "-> %#x\n", o.Addr)
		case *trace.OpStep:
			code, err := replay.Mem.MemRead(pc, uint64(o.Size))
			dis := fmt.Sprintf("%#x: <unmapped>\n", pc)
			if err == nil {
				dis, _ = models.Disas(code, pc, a, false)
			}
			fmt.Fprint(w, dis)
		case *trace.OpSyscall:
			fmt.Fprintln(w, o.Desc)
		}
		for _, e := range effects {
			switch o := e.(type) {
			case *trace.OpReg:
				fmt.Fprintf(w, "    %s = %#x\n", names[int(o.Num)], o.Val)
			case *trace.OpMemWrite:
				fmt.Fprintf(w, "    W %#x %x\n", o.Addr, o.Data)
			case *trace.OpMemRead:
				fmt.Fprintf(w, "    R %#x [%d]\n", o.Addr, o.Size)
			}
		}
	})
	err = each(tf, func(op models.Op) error {
		replay.Feed(op)
		return nil
	})
	replay.Flush()
	if err == nil {
		err = replay.Err()
	}
	fmt.Fprintf(w, "%d instructions\n", replay.Inscount)
	return err
}

func newTraceCmd() *cobra.Command {
	var jsonOut, pretty bool
	var drcov string
	c := &cobra.Command{
		Use:   "trace [flags] <tracefile>",
		Short: "Inspect a saved trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if !jsonOut && !pretty && drcov == "" {
				return errors.New("one of --json, --pretty or --drcov is required")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to open trace")
			}
			tf, err := trace.NewReader(f)
			if err != nil {
				f.Close()
				return errors.Wrap(err, "error opening trace file")
			}
			defer tf.Close()
			switch {
			case jsonOut:
				return PrintJson(os.Stdout, tf)
			case pretty:
				return PrintPretty(os.Stdout, tf)
			}
			if !strings.HasSuffix(drcov, ".log") {
				drcov += ".log"
			}
			out, err := os.Create(drcov)
			if err != nil {
				return errors.Wrap(err, "error opening drcov output file")
			}
			defer out.Close()
			return WriteDrcov(tf, out)
		},
	}
	fs := c.Flags()
	fs.BoolVar(&jsonOut, "json", false, "output trace as line-delimited JSON objects")
	fs.BoolVar(&pretty, "pretty", false, "output trace as human-readable text")
	fs.StringVar(&drcov, "drcov", "", "write block coverage to a drcov file")
	return c
}

func init() { cmd.Register(newTraceCmd()) }
