package linux

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models"
)

const (
	StackTop64 = 0x7fff_ffff_0000
	StackTop32 = 0xc000_0000
)

// MapStack maps Config().StackSize bytes under the top of the user address
// space and points sp at the top.
func MapStack(u models.Usercorn) error {
	top := uint64(StackTop64)
	if u.Bits() == 32 {
		top = StackTop32
	}
	size := u.Config().StackSize
	return u.MapStack(top-size, size)
}

// StackInit lays out the initial process stack the way the kernel does for
// execve: strings at the top, then the auxv, envp, argv and argc, with sp
// left 16-byte aligned on argc.
func StackInit(u models.Usercorn, args, env []string) error {
	push := func(s string) (uint64, error) {
		return u.PushBytes([]byte(s + "\x00"))
	}
	execfn, err := push(u.Exe())
	if err != nil {
		return errors.Wrap(err, "pushing exe name")
	}
	strs := func(in []string) ([]uint64, error) {
		addrs := make([]uint64, len(in))
		for i := len(in) - 1; i >= 0; i-- {
			if addrs[i], err = push(in[i]); err != nil {
				return nil, errors.Wrap(err, "pushing strings")
			}
		}
		return addrs, nil
	}
	envp, err := strs(env)
	if err != nil {
		return err
	}
	argv, err := strs(args)
	if err != nil {
		return err
	}
	auxv, err := models.SetupElfAuxv(u, execfn)
	if err != nil {
		return err
	}

	word := int(u.Bits() / 8)
	words := []uint64{uint64(len(argv))}
	words = append(words, argv...)
	words = append(words, 0)
	words = append(words, envp...)
	words = append(words, 0)
	buf := make([]byte, len(words)*word, len(words)*word+len(auxv))
	for i, w := range words {
		if _, err := u.PackAddr(buf[i*word:], w); err != nil {
			return err
		}
	}
	buf = append(buf, auxv...)

	sp, err := u.RegRead(u.Arch().SP)
	if err != nil {
		return err
	}
	sp = (sp - uint64(len(buf))) &^ 15
	if err := u.MemWrite(sp, buf); err != nil {
		return errors.Wrap(err, "writing initial stack")
	}
	return u.RegWrite(u.Arch().SP, sp)
}
