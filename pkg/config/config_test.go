package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/psilLang/cardvm/pkg/vm"
)

const tomlConfig = `
seed = 42
trials = 500
workers = 4
min-length = 8
max-length = 64
corpus = "runs.db"

required = """
GET_SELECT_POS
SET_GRAB_POS
GET_SELECT_DEPTH
SET_GRAB_DEPTH
GRAB
"""

[weights]
HALT = 0
move_cards = 5
`

const yamlConfig = `
seed: 7
trials: 20
workers: 2
max-length: 32
required: |
  LITERAL START_OF_TABLEAU
  SET_SELECT_POS
weights:
  HALT_UNLESS: 0
store-all: true
`

func TestParseTOML(t *testing.T) {
	cfg, err := Parse([]byte(tomlConfig), ".toml", "test.toml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Seed != 42 || cfg.Trials != 500 || cfg.Workers != 4 {
		t.Errorf("got seed %d trials %d workers %d", cfg.Seed, cfg.Trials, cfg.Workers)
	}
	if cfg.MinLength != 8 || cfg.MaxLength != 64 || cfg.Corpus != "runs.db" {
		t.Errorf("got lengths %d-%d corpus %q", cfg.MinLength, cfg.MaxLength, cfg.Corpus)
	}

	code, err := cfg.RequiredCode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{vm.OpGetSelectPos, vm.OpSetGrabPos, vm.OpGetSelectDepth, vm.OpSetGrabDepth, vm.OpGrab}
	if !bytes.Equal(code, want) {
		t.Errorf("required: got %v", code)
	}

	table, err := cfg.WeightTable()
	if err != nil {
		t.Fatal(err)
	}
	if table[vm.OpHalt] != 0 || table[vm.OpMoveCards] != 5 || len(table) != 2 {
		t.Errorf("weights: got %v", table)
	}
	opts, err := cfg.GeneratorOptions()
	if err != nil || len(opts) != 1 {
		t.Errorf("options: got %d, %v", len(opts), err)
	}
}

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(yamlConfig), ".yaml", "test.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Seed != 7 || cfg.Trials != 20 || cfg.MaxLength != 32 || !cfg.StoreAll {
		t.Errorf("got %+v", cfg)
	}
	if cfg.MinLength != Default().MinLength {
		t.Errorf("min-length should keep its default, got %d", cfg.MinLength)
	}
	code, err := cfg.RequiredCode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(code, []byte{vm.OpLiteral, 8, vm.OpSetSelectPos}) {
		t.Errorf("required: got %v", code)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	code, err := cfg.RequiredCode()
	if err != nil || code != nil {
		t.Errorf("no required sequence expected, got %v %v", code, err)
	}
	opts, err := cfg.GeneratorOptions()
	if err != nil || opts != nil {
		t.Errorf("no options expected, got %v %v", opts, err)
	}

	empty, err := Parse(nil, ".yaml", "empty.yaml")
	if err != nil {
		t.Fatalf("empty yaml: %v", err)
	}
	if empty.Trials != cfg.Trials {
		t.Errorf("empty file should give defaults, got trials %d", empty.Trials)
	}
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name   string
		format string
		data   string
	}{
		{"negative trials", ".toml", "trials = -1"},
		{"no workers", ".toml", "workers = 0"},
		{"lengths", ".yaml", "min-length: 10\nmax-length: 5"},
		{"unknown mnemonic", ".toml", "[weights]\nFROB = 1"},
		{"negative weight", ".yaml", "weights:\n  ADD: -2"},
		{"bad listing", ".toml", "required = \"LITERAL\""},
		{"literal range", ".toml", "required = \"LITERAL 300\""},
		{"branch into operand", ".toml", "required = \"JUMP 1\\nLITERAL 5\""},
		{"unknown toml key", ".toml", "sead = 3"},
		{"unknown yaml key", ".yaml", "sead: 3"},
		{"format", ".json", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format, tt.name)
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}

	for _, data := range []string{"trials = -1", "[weights]\nFROB = 1", "sead = 3"} {
		if _, err := Parse([]byte(data), ".toml", "x"); !errors.Is(err, ErrInvalid) {
			t.Errorf("%q: expected ErrInvalid, got %v", data, err)
		}
	}
}

func TestRequiredTooLong(t *testing.T) {
	cfg := Default()
	cfg.MaxLength = 2
	cfg.Required = "GRAB\nGRAB\nGRAB"
	if _, err := cfg.RequiredCode(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{"a.toml": tomlConfig, "b.yml": yamlConfig} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
