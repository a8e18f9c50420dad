package loader

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/models"
)

func getMagic(r io.ReaderAt) []byte {
	ret := make([]byte, 4)
	if _, err := r.ReadAt(ret, 0); err != nil {
		return nil
	}
	return ret
}

func LoadFile(path string) (models.Loader, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read binary")
	}
	return Load(bytes.NewReader(p))
}

// Load picks a loader by file magic.
func Load(r io.ReaderAt) (models.Loader, error) {
	var l models.Loader
	var err error
	switch {
	case MatchElf(r):
		l, err = NewElfLoader(r)
	case MatchNdh(r):
		l, err = NewNdhLoader(r)
	default:
		err = errors.Wrap(ErrInvalidBinary, "could not identify file magic")
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}
