package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lunixbochs/transcorn/go/models"
)

var commands []*cobra.Command

// Register adds a subcommand to the launcher. Call it from init.
func Register(c *cobra.Command) {
	commands = append(commands, c)
}

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "transcorn",
		Short: "Run user-mode binaries under a dynamic binary translator",
		Long: `transcorn runs x86_64 Linux and ndh binaries by translating guest code
into cached blocks, servicing system calls on the host.

Examples:
  transcorn run --strace bins/x86_64.linux.elf
  transcorn shellcode --arch x86_64 b83c0000000f05
  transcorn trace --json out.trace`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(commands...)
	return root
}

// debugFlag reports whether --debug was set on the command that ran.
var debugFlag bool

// Main runs the launcher and exits with the guest's status, or with a code
// classifying the failure.
func Main() {
	root := NewRoot()
	err := root.Execute()
	if err != nil {
		if _, ok := err.(models.ExitStatus); !ok {
			PrintError(os.Stderr, err, debugFlag)
		}
	}
	os.Exit(models.ExitCode(err))
}
