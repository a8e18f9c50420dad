package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	usercorn "github.com/lunixbochs/transcorn/go"
	"github.com/lunixbochs/transcorn/go/models"
)

// RunFlags are the options shared by every command that executes a guest.
type RunFlags struct {
	config string

	trace, strace, mtrace, btrace, etrace, rtrace bool
	tracefile                                    string
	keyframe                                     int

	strsize    int
	inscount   bool
	verbose    bool
	debug      bool
	klog       bool
	prefix     string
	base       uint64
	stubsys    bool
	efault     bool
	blockSize  int
	maxIns     uint64
	storage    string
	strict     bool
	stackSize  uint64
	color      string
	outfile    string
	envSet     []string
	envUnset   []string
	cpuprofile string
	memprofile string
}

// Bind registers the flags on c.
func (f *RunFlags) Bind(c *cobra.Command) {
	fs := c.Flags()
	fs.SetInterspersed(false)
	fs.StringVar(&f.config, "config", "", "YAML config file (default: transcorn/config.yaml in the user config dir)")

	fs.BoolVar(&f.trace, "trace", false, "enable every trace option")
	fs.BoolVar(&f.strace, "strace", false, "trace syscalls")
	fs.BoolVar(&f.mtrace, "mtrace", false, "trace memory access and mapping changes")
	fs.BoolVar(&f.btrace, "btrace", false, "trace block transitions")
	fs.BoolVar(&f.etrace, "etrace", false, "trace execution")
	fs.BoolVar(&f.rtrace, "rtrace", false, "trace register modification")
	fs.StringVar(&f.tracefile, "to", "", "binary trace output file")
	fs.IntVar(&f.keyframe, "keyframe", 0, "register keyframe interval in instructions for -to")
	fs.IntVar(&f.strsize, "strsize", 0, "limit traced strings to this length")

	fs.BoolVar(&f.inscount, "inscount", false, "print instruction count after execution")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "dump registers when the run ends")
	fs.BoolVar(&f.debug, "debug", false, "debug logging")
	fs.BoolVar(&f.klog, "klog", false, "log each syscall through the logger")
	fs.StringVar(&f.prefix, "prefix", "", "library load prefix")
	fs.Uint64Var(&f.base, "base", 0, "force executable base address")
	fs.BoolVar(&f.stubsys, "stubsys", false, "stub missing syscalls")
	fs.BoolVar(&f.efault, "efault", false, "return -EFAULT for syscalls that touch unmapped memory")
	fs.IntVar(&f.blockSize, "block-size", 0, "max instructions per translated block")
	fs.Uint64Var(&f.maxIns, "max-ins", 0, "stop after this many instructions")
	fs.StringVar(&f.storage, "storage", "", "guest memory backing: heap or host")
	fs.BoolVar(&f.strict, "strict-align", false, "fault on misaligned accesses")
	fs.Uint64Var(&f.stackSize, "stack-size", 0, "initial stack size")
	fs.StringVar(&f.color, "color", "auto", "color output: auto, always or never")
	fs.StringVarP(&f.outfile, "output", "o", "", "redirect trace output to file (default stderr)")
	fs.StringArrayVar(&f.envSet, "set", nil, "set environment var in the form name=value")
	fs.StringArrayVar(&f.envUnset, "unset", nil, "unset environment variable")
	fs.StringVar(&f.cpuprofile, "cpuprofile", "", "write cpu profile to file")
	fs.StringVar(&f.memprofile, "memprofile", "", "write mem profile to file")
}

// Config loads the config file and applies every flag set on c over it.
func (f *RunFlags) Config(c *cobra.Command) (*models.Config, error) {
	config, err := models.LoadConfig(f.config)
	if err != nil {
		return nil, err
	}
	fs := c.Flags()
	set := fs.Changed
	if set("prefix") {
		abs, err := filepath.Abs(f.prefix)
		if err != nil {
			return nil, errors.Wrap(err, "bad prefix")
		}
		config.LoadPrefix = abs
	}
	if set("strsize") {
		config.Strsize = f.strsize
	}
	if set("base") {
		config.ForceBase = f.base
	}
	if set("block-size") {
		config.BlockSize = f.blockSize
	}
	if set("max-ins") {
		config.MaxIns = f.maxIns
	}
	if set("storage") {
		if f.storage != "heap" && f.storage != "host" {
			return nil, errors.Errorf("unknown storage backend %q", f.storage)
		}
		config.Storage = f.storage
	}
	if set("stack-size") {
		config.StackSize = f.stackSize
	}
	if set("keyframe") {
		config.Trace.Keyframe = f.keyframe
	}
	config.InsCount = config.InsCount || f.inscount
	config.Verbose = config.Verbose || f.verbose
	config.Debug = config.Debug || f.debug
	config.Strace = config.Strace || f.klog
	config.StubSyscalls = config.StubSyscalls || f.stubsys
	config.Efault = config.Efault || f.efault
	config.StrictAlign = config.StrictAlign || f.strict

	tc := &config.Trace
	if f.tracefile != "" {
		tc.Tracefile = f.tracefile
	}
	tc.Everything = tc.Everything || f.trace
	tc.Block = tc.Block || f.btrace
	tc.Ins = tc.Ins || f.etrace
	tc.Mem = tc.Mem || f.mtrace
	tc.Reg = tc.Reg || f.rtrace
	tc.Sys = tc.Sys || f.strace

	var out io.Writer = colorable.NewColorableStderr()
	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if f.outfile != "" {
		file, err := os.OpenFile(f.outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open output")
		}
		out, tty = file, false
	}
	config.Output = out
	switch f.color {
	case "always":
		config.Color = true
	case "never":
		config.Color = false
	case "auto":
		config.Color = config.Color || tty
	default:
		return nil, errors.Errorf("bad --color value %q", f.color)
	}
	return config, nil
}

// Env merges the host environment with --set and --unset.
func (f *RunFlags) Env(host []string) []string {
	skip := make(map[string]bool)
	var env []string
	for _, v := range f.envSet {
		if name, _, ok := strings.Cut(v, "="); ok {
			skip[name] = true
			env = append(env, v)
		} else {
			fmt.Fprintf(os.Stderr, "warning: skipping invalid env set %q\n", v)
		}
	}
	for _, v := range f.envUnset {
		skip[v] = true
	}
	for _, v := range host {
		if name, _, ok := strings.Cut(v, "="); ok && !skip[name] {
			env = append(env, v)
		}
	}
	return env
}

// profile starts any requested profiling and returns the function that ends it.
func (f *RunFlags) profile() (func(), error) {
	var stops []func()
	if f.cpuprofile != "" {
		file, err := os.Create(f.cpuprofile)
		if err != nil {
			return nil, errors.Wrap(err, "cpu profile")
		}
		if err := pprof.StartCPUProfile(file); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "cpu profile")
		}
		stops = append(stops, func() {
			pprof.StopCPUProfile()
			file.Close()
		})
	}
	if f.memprofile != "" {
		stops = append(stops, func() {
			file, err := os.Create(f.memprofile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not write heap profile: %s\n", err)
				return
			}
			pprof.WriteHeapProfile(file)
			file.Close()
		})
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}, nil
}

// Execute runs u with args and env and reports what the flags ask for
// once it ends.
func (f *RunFlags) Execute(u *usercorn.Usercorn, args, env []string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	stop, err := f.profile()
	if err != nil {
		return err
	}
	defer stop()

	err = u.Run(args, env)
	config := u.Config()
	if config.Verbose {
		if regs, rerr := u.RegDump(); rerr == nil {
			fmt.Fprintln(config.Output, "[registers]")
			models.NewStatusDiff(u.Arch().Bits).Print(config.Output, regs, config.Color, false)
		}
	}
	if config.InsCount {
		stats := u.Engine().Stats
		p := message.NewPrinter(language.English)
		p.Fprintf(config.Output, "inscount: %d instructions, %d blocks, %d traps\n", stats.Ins, stats.Blocks, stats.Traps)
	}
	return err
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints err, with its stack trace when debug is set and one exists.
func PrintError(w io.Writer, err error, debug bool) {
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(w, "Error: %s\n", err)
	if !debug {
		return
	}
	if st, ok := errors.Cause(err).(stackTracer); ok {
		fmt.Fprintf(w, "%+v\n", st.StackTrace())
	} else if st, ok := err.(stackTracer); ok {
		fmt.Fprintf(w, "%+v\n", st.StackTrace())
	}
}
