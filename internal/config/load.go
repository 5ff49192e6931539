package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// schema compiles the embedded schema in a fresh context and returns
// #Config. A cue.Context is not safe for concurrent use, so every parse
// gets its own.
func schema() (*cue.Context, cue.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, cue.Value{}, err
	}
	def := v.LookupPath(cue.ParsePath("#Config"))
	return ctx, def, def.Err()
}

// Load reads a configuration file. Files ending in .cue are CUE; .yaml and
// .yml are YAML.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return ParseCUE(filepath.Base(path), data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Config{}, &Error{Field: "file", Message: fmt.Sprintf("unsupported config format %q", filepath.Ext(path))}
	}
}

// ParseCUE parses CUE source. filename is used in error positions.
func ParseCUE(filename string, src []byte) (Config, error) {
	ctx, def, err := schema()
	if err != nil {
		return Config{}, err
	}
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}
	return decode(def.Unify(v))
}

// ParseYAML parses a YAML document.
func ParseYAML(src []byte) (Config, error) {
	ctx, def, err := schema()
	if err != nil {
		return Config{}, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return Config{}, &Error{Field: "yaml", Message: err.Error()}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}
	return decode(def.Unify(v))
}

// decode checks a schema-unified value is concrete and decodes it.
func decode(v cue.Value) (Config, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}
	var c Config
	if err := v.Decode(&c); err != nil {
		return Config{}, formatCUEError(err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// formatCUEError keeps the first error of a CUE error list, with its
// position when there is one.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	e := &Error{Field: "cue", Message: first.Error()}
	if path := first.Path(); len(path) > 0 {
		e.Field = strings.Join(path, ".")
	}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		e.Pos = pos[0]
	}
	return e
}
