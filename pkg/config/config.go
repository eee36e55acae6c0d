// Package config handles cardfuzz run configuration files.
//
// A configuration may be written as TOML (cardfuzz.toml) or YAML
// (cardfuzz.yaml). Fields left out keep their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/psilLang/cardvm/pkg/game"
	"github.com/psilLang/cardvm/pkg/gen"
	"github.com/psilLang/cardvm/pkg/vm"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config drives a batch of generate-and-run trials.
type Config struct {
	// Seed of the first trial; trial i uses Seed+i.
	Seed    int64 `toml:"seed" yaml:"seed"`
	Trials  int   `toml:"trials" yaml:"trials"`
	Workers int   `toml:"workers" yaml:"workers"`

	// Program lengths are drawn from [MinLength, MaxLength].
	MinLength int `toml:"min-length" yaml:"min-length"`
	MaxLength int `toml:"max-length" yaml:"max-length"`

	// Required is an assembly listing spliced into every program.
	Required string `toml:"required" yaml:"required"`

	// Weights maps mnemonics to draw weights; 0 disables an opcode.
	Weights map[string]int `toml:"weights" yaml:"weights"`

	// Corpus is the SQLite file results are stored in. Empty disables
	// storage.
	Corpus   string `toml:"corpus" yaml:"corpus"`
	StoreAll bool   `toml:"store-all" yaml:"store-all"`

	Verbosity int `toml:"verbosity" yaml:"verbosity"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Seed:      1,
		Trials:    1000,
		Workers:   runtime.NumCPU(),
		MinLength: 1,
		MaxLength: 256,
	}
}

// Load reads a configuration file. The format follows the extension:
// .toml, or .yaml/.yml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(data, filepath.Ext(path), path)
}

// Parse decodes configuration text in the given format (".toml", ".yaml"
// or ".yml"). The name is used only in error messages.
func Parse(data []byte, format, name string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(format) {
	case ".toml", "toml":
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", name, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: %s: unknown key %q", ErrInvalid, name, undecoded[0].String())
		}

	case ".yaml", ".yml", "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse error in %s: %w", name, err)
		}

	default:
		return nil, fmt.Errorf("%w: %s: unsupported format %q", ErrInvalid, name, format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// Validate checks ranges, weights and the required listing.
func (c *Config) Validate() error {
	switch {
	case c.Trials < 0:
		return fmt.Errorf("%w: trials must not be negative", ErrInvalid)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalid)
	case c.MinLength < 0:
		return fmt.Errorf("%w: min-length must not be negative", ErrInvalid)
	case c.MaxLength < c.MinLength:
		return fmt.Errorf("%w: max-length %d below min-length %d", ErrInvalid, c.MaxLength, c.MinLength)
	}
	if _, err := c.WeightTable(); err != nil {
		return err
	}
	if _, err := c.RequiredCode(); err != nil {
		return err
	}
	return nil
}

// WeightTable resolves Weights to opcodes.
func (c *Config) WeightTable() (map[byte]int, error) {
	table := make(map[byte]int, len(c.Weights))
	for name, w := range c.Weights {
		op, ok := vm.OpcodeByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown mnemonic %q in weights", ErrInvalid, name)
		}
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight for %s", ErrInvalid, name)
		}
		table[op] = w
	}
	return table, nil
}

// RequiredCode assembles Required with the board constants defined. It
// returns nil when no sequence is configured.
func (c *Config) RequiredCode() ([]byte, error) {
	if strings.TrimSpace(c.Required) == "" {
		return nil, nil
	}
	code, err := game.NewAssembler().Assemble(c.Required)
	if err != nil {
		return nil, fmt.Errorf("%w: required: %w", ErrInvalid, err)
	}
	if err := gen.CheckSequence(code); err != nil {
		return nil, fmt.Errorf("%w: required: %w", ErrInvalid, err)
	}
	if len(code) > c.MaxLength {
		return nil, fmt.Errorf("%w: required sequence is %d bytes, longer than max-length", ErrInvalid, len(code))
	}
	return code, nil
}

// GeneratorOptions returns the generator options the weights describe.
func (c *Config) GeneratorOptions() ([]gen.Option, error) {
	table, err := c.WeightTable()
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, nil
	}
	return []gen.Option{gen.WithWeights(table)}, nil
}
