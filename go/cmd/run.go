package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	usercorn "github.com/lunixbochs/transcorn/go"
)

func newRunCmd() *cobra.Command {
	var flags RunFlags
	c := &cobra.Command{
		Use:   "run [flags] <exe> [args...]",
		Short: "Run an executable",
		Args:  cobra.MinimumNArgs(1),
	}
	flags.Bind(c)
	c.RunE = func(c *cobra.Command, args []string) error {
		config, err := flags.Config(c)
		if err != nil {
			return err
		}
		debugFlag = config.Debug
		exe := args[0]
		stat, err := os.Stat(exe)
		if err != nil {
			return err
		}
		if stat.Mode().Perm()&0111 == 0 {
			return errors.Errorf("%s: permission denied (no execute bit)", exe)
		}
		u, err := usercorn.NewUsercorn(exe, config)
		if err != nil {
			return err
		}
		defer u.Close()
		return flags.Execute(u, args, flags.Env(os.Environ()))
	}
	return c
}

func init() { Register(newRunCmd()) }
