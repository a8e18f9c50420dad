package models

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
	"gopkg.in/yaml.v3"
)

const ConfigFile = "config.yaml"

type TraceConfig struct {
	// binary trace output file
	Tracefile string `yaml:"file"`
	// used instead of Tracefile when set
	TraceWriter io.WriteCloser `yaml:"-"`
	// called with every op as it is recorded
	OpCallback []func(Op) `yaml:"-"`

	Everything bool `yaml:"all"`
	Block      bool `yaml:"block"`
	Ins        bool `yaml:"ins"`
	Mem        bool `yaml:"mem"`
	Reg        bool `yaml:"reg"`
	Sys        bool `yaml:"sys"`
	// full register keyframe every N steps
	Keyframe int `yaml:"keyframe"`
}

func (t *TraceConfig) Any() bool {
	return t.Everything || t.Block || t.Ins || t.Mem || t.Reg || t.Sys || t.Tracefile != "" || t.TraceWriter != nil
}

type Config struct {
	Output io.Writer `yaml:"-"`

	Color      bool   `yaml:"color"`
	Debug      bool   `yaml:"debug"`
	Verbose    bool   `yaml:"verbose"`
	InsCount   bool   `yaml:"inscount"`
	Strsize    int    `yaml:"strsize"`
	LoadPrefix string `yaml:"prefix"`
	ForceBase  uint64 `yaml:"base"`

	// engine
	BlockSize   int    `yaml:"block_size"`
	MaxIns      uint64 `yaml:"max_ins"`
	StrictAlign bool   `yaml:"strict_align"`
	// "heap" or "host"
	Storage   string `yaml:"storage"`
	StackSize uint64 `yaml:"stack_size"`

	// kernel
	Strace       bool `yaml:"strace"`
	Efault       bool `yaml:"efault"`
	StubSyscalls bool `yaml:"stub_syscalls"`

	Trace TraceConfig `yaml:"trace"`
}

func DefaultConfig() *Config {
	c := &Config{}
	return c.Init()
}

// Init fills unset fields with defaults.
func (c *Config) Init() *Config {
	if c.Output == nil {
		c.Output = os.Stderr
	}
	if c.Strsize == 0 {
		c.Strsize = 30
	}
	if c.StackSize == 0 {
		c.StackSize = 8 * 1024 * 1024
	}
	if c.Storage == "" {
		c.Storage = "heap"
	}
	if c.Trace.Keyframe == 0 {
		c.Trace.Keyframe = 1000
	}
	return c
}

// LoadConfig reads a YAML config over the defaults. With an empty path it
// looks for config.yaml in the user's config folders and returns the
// defaults if there isn't one.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	var data []byte
	var err error
	if path != "" {
		if data, err = os.ReadFile(path); err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
	} else {
		dirs := configdir.New("transcorn", "transcorn")
		folder := dirs.QueryFolderContainsFile(ConfigFile)
		if folder == nil {
			return c, nil
		}
		if data, err = folder.ReadFile(ConfigFile); err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", filepath.Join(folder.Path, ConfigFile))
		}
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if c.Storage != "heap" && c.Storage != "host" {
		return nil, errors.Errorf("unknown storage backend %q", c.Storage)
	}
	return c.Init(), nil
}

func (c *Config) resolveSymlink(path, target string, force bool) string {
	link, err := os.Lstat(target)
	if err == nil && link.Mode()&os.ModeSymlink != 0 {
		if linked, err := os.Readlink(target); err == nil {
			if !strings.HasPrefix(linked, "/") {
				return filepath.Join(filepath.Dir(target), linked)
			}
			return c.PrefixPath(linked, force)
		}
	}
	exists := !os.IsNotExist(err)
	if force || exists {
		return target
	}
	return path
}

// PrefixPath maps an absolute guest path under LoadPrefix if the file exists there.
func (c *Config) PrefixPath(path string, force bool) string {
	if c.LoadPrefix == "" {
		return path
	}
	target := path
	if filepath.IsAbs(path) {
		target = filepath.Join(c.LoadPrefix, path)
	}
	return c.resolveSymlink(path, target, force)
}
