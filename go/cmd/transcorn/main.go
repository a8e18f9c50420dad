package main

import (
	"github.com/lunixbochs/transcorn/go/cmd"

	_ "github.com/lunixbochs/transcorn/go/cmd/trace"
)

func main() { cmd.Main() }
