package config

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/editorconfig/editorconfig-core-go/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default_layout.yaml
var defaultLayout []byte

// File is the on-disk shape of a layout config in yaml
type File struct {
	TabSpaceSize int `yaml:"tab_space_size,omitempty"`
	Layout       struct {
		Type map[string]TypeConfig `yaml:"type"`
	} `yaml:"layout"`
}

type hclFile struct {
	TabSpaceSize *int      `hcl:"tab_space_size,optional"`
	Types        []hclType `hcl:"type,block"`
}

type hclType struct {
	Name          string `hcl:"name,label"`
	SpacingBefore string `hcl:"spacing_before,optional"`
	SpacingAfter  string `hcl:"spacing_after,optional"`
	SpacingWithin string `hcl:"spacing_within,optional"`
	AlignWithin   string `hcl:"align_within,optional"`
	AlignScope    string `hcl:"align_scope,optional"`
}

func decodeYAML(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Errorf("decoding yaml: %w", err)
	}
	return &f, nil
}

func decodeHCL(data []byte, filename string) (*File, error) {
	parsed, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing hcl: %w", diags)
	}

	var hf hclFile
	if diags := gohcl.DecodeBody(parsed.Body, nil, &hf); diags.HasErrors() {
		return nil, errors.Errorf("decoding hcl: %w", diags)
	}

	f := &File{}
	if hf.TabSpaceSize != nil {
		f.TabSpaceSize = *hf.TabSpaceSize
	}
	f.Layout.Type = make(map[string]TypeConfig, len(hf.Types))
	for _, t := range hf.Types {
		if _, dup := f.Layout.Type[t.Name]; dup {
			return nil, errors.Errorf("duplicate type block %q", t.Name)
		}
		f.Layout.Type[t.Name] = TypeConfig{
			SpacingBefore: t.SpacingBefore,
			SpacingAfter:  t.SpacingAfter,
			SpacingWithin: t.SpacingWithin,
			AlignWithin:   t.AlignWithin,
			AlignScope:    t.AlignScope,
		}
	}
	return f, nil
}

func defaultFile() (*File, error) {
	f, err := decodeYAML(defaultLayout)
	if err != nil {
		return nil, errors.Errorf("loading default layout: %w", err)
	}
	return f, nil
}

// Default returns the standard layout rules.
func Default() (*ReflowConfig, error) {
	f, err := defaultFile()
	if err != nil {
		return nil, err
	}
	return FromMap(f.Layout.Type, WithTabSpaceSize(f.TabSpaceSize))
}

// Load reads a yaml (.yaml, .yml) or hcl (.hcl) layout file and layers it
// over the defaults, field by field.
func Load(fs afero.Fs, path string, opts ...Option) (*ReflowConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	var user *File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		user, err = decodeYAML(data)
	case ".hcl":
		user, err = decodeHCL(data, path)
	default:
		return nil, errors.Errorf("unsupported config file extension: %s", path)
	}
	if err != nil {
		return nil, errors.Errorf("loading config file %s: %w", path, err)
	}

	base, err := defaultFile()
	if err != nil {
		return nil, err
	}

	merged := make(map[string]TypeConfig, len(base.Layout.Type)+len(user.Layout.Type))
	for name, tc := range base.Layout.Type {
		merged[name] = tc
	}
	for name, tc := range user.Layout.Type {
		merged[name] = merged[name].overlay(tc)
	}

	tabSize := base.TabSpaceSize
	if user.TabSpaceSize > 0 {
		tabSize = user.TabSpaceSize
	}

	return FromMap(merged, append([]Option{WithTabSpaceSize(tabSize)}, opts...)...)
}

// TabWidthFor returns the tab width the .editorconfig files in fs declare
// for path, falling back to a numeric indent_size. Files are read from the
// directory of path upwards until one marked root. Zero means nothing was
// declared.
func TabWidthFor(fs afero.Fs, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, errors.Errorf("resolving %s: %w", path, err)
	}

	var tabWidth, indentSize int
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		ec, err := readEditorconfig(fs, filepath.Join(dir, ".editorconfig"))
		if err != nil {
			return 0, err
		}
		if ec != nil {
			rel, err := filepath.Rel(dir, abs)
			if err != nil {
				return 0, errors.Errorf("resolving %s against %s: %w", path, dir, err)
			}
			def, err := ec.GetDefinitionForFilename(filepath.ToSlash(rel))
			if err != nil {
				return 0, errors.Errorf("matching editorconfig in %s for %s: %w", dir, path, err)
			}
			// nearer files win
			if tabWidth == 0 && def.TabWidth > 0 {
				tabWidth = def.TabWidth
			}
			if size, err := strconv.Atoi(def.IndentSize); err == nil && size > 0 && indentSize == 0 {
				indentSize = size
			}
			if ec.Root {
				break
			}
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}

	if tabWidth > 0 {
		return tabWidth, nil
	}
	return indentSize, nil
}

func readEditorconfig(fs afero.Fs, name string) (*editorconfig.Editorconfig, error) {
	f, err := fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	ec, err := editorconfig.Parse(f)
	if err != nil {
		return nil, errors.Errorf("parsing %s: %w", name, err)
	}
	return ec, nil
}
