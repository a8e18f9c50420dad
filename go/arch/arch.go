// Package arch is the registry of guest architectures and the operating
// systems each one can run.
package arch

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/lunixbochs/transcorn/go/arch/ndh"
	"github.com/lunixbochs/transcorn/go/arch/x86_64"
	"github.com/lunixbochs/transcorn/go/dbt"
	"github.com/lunixbochs/transcorn/go/models"
)

var archMap = map[string]*models.Arch{
	"ndh":    ndh.Arch,
	"x86_64": x86_64.Arch,
}

// aliases accepted on the command line and in loader output
var aliases = map[string]string{
	"amd64":  "x86_64",
	"x86-64": "x86_64",
}

func lookup(name string) (*models.Arch, error) {
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	a, ok := archMap[name]
	if !ok {
		return nil, errors.Errorf("arch %q not found", name)
	}
	return a, nil
}

func GetArch(name, os string) (*models.Arch, *models.OS, error) {
	a, err := lookup(name)
	if err != nil {
		return nil, nil, err
	}
	o, ok := a.OS[os]
	if !ok {
		return nil, nil, errors.Errorf("OS %q not found for arch %q", os, a.Name)
	}
	return a, o, nil
}

// Names lists the registered architectures.
func Names() []string {
	names := make([]string, 0, len(archMap))
	for name := range archMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Disas decodes code for the named architecture without executing it.
func Disas(name string, code []byte, addr uint64) ([]dbt.Insn, error) {
	a, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return a.Disas(code, addr)
}
