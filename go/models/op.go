package models

import "io"

// Op is one trace record. Pack writes exactly Sizeof() bytes, tag included;
// Unpack reads the body after the tag.
type Op interface {
	Sizeof() int
	Pack(p []byte)
	Unpack(r io.Reader) (int, error)
}
