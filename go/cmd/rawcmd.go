package cmd

import (
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	usercorn "github.com/lunixbochs/transcorn/go"
)

// readCode reads hex from arg, or raw bytes from stdin when arg is "-".
func readCode(arg string, stdin io.Reader) ([]byte, error) {
	if arg == "-" {
		code, err := io.ReadAll(stdin)
		return code, errors.Wrap(err, "failed to read shellcode")
	}
	code, err := hex.DecodeString(strings.Join(strings.Fields(arg), ""))
	return code, errors.Wrap(err, "failed to read shellcode")
}

func newShellcodeCmd() *cobra.Command {
	var flags RunFlags
	var archName, osName string
	var base uint64
	c := &cobra.Command{
		Use:   "shellcode [flags] <hex|->",
		Short: "Run raw code mapped at a base address",
		Args:  cobra.ExactArgs(1),
	}
	flags.Bind(c)
	c.Flags().StringVar(&archName, "arch", "x86_64", "target architecture")
	c.Flags().StringVar(&osName, "os", "", "target OS (default: the arch's first OS)")
	c.Flags().Uint64Var(&base, "entry", 0x1000000, "map address and entry point")
	c.RunE = func(c *cobra.Command, args []string) error {
		config, err := flags.Config(c)
		if err != nil {
			return err
		}
		debugFlag = config.Debug
		code, err := readCode(args[0], os.Stdin)
		if err != nil {
			return err
		}
		if osName == "" {
			osName = defaultOS(archName)
		}
		u, err := usercorn.NewUsercornRaw(archName, osName, code, base, config)
		if err != nil {
			return err
		}
		defer u.Close()
		u.SetExit(base + uint64(len(code)))
		return flags.Execute(u, []string{"shellcode"}, flags.Env(nil))
	}
	return c
}

func defaultOS(archName string) string {
	if archName == "ndh" {
		return "ndh"
	}
	return "linux"
}

func init() { Register(newShellcodeCmd()) }
