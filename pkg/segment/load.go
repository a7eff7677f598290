package segment

import (
	"io"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/walteh/sqlreflow/pkg/position"
)

type loadOptions struct {
	tabWidth int
}

type LoadOption func(*loadOptions)

// WithTabWidth sets the tab stop width used for the column of every leaf.
func WithTabWidth(width int) LoadOption {
	return func(o *loadOptions) {
		o.tabWidth = width
	}
}

// LoadYAML builds a tree from a parse tree dump.
//
// The dump is a single-key mapping naming the root. Branches are either
// mappings or sequences of mappings, leaves are scalars keyed by their type:
//
//	file:
//	- statement:
//	  - keyword: SELECT
//	  - whitespace: ' '
//	  - naked_identifier: a
//	- newline: "\n"
//
// Every leaf gets a position marker computed from the text before it.
func LoadYAML(r io.Reader, opts ...LoadOption) (*Branch, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Errorf("decoding parse tree: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, errors.Errorf("parse tree must be a single yaml document")
	}

	top := doc.Content[0]
	if top.Kind != yaml.MappingNode || len(top.Content) != 2 {
		return nil, errors.Errorf("parse tree root must be a mapping with exactly one key, line %d", top.Line)
	}

	l := &loader{marker: position.NewMarker(0, position.Place{Line: 1, Character: 1}, o.tabWidth)}

	root, err := l.segment(top.Content[0].Value, top.Content[1])
	if err != nil {
		return nil, err
	}

	br, ok := root.(*Branch)
	if !ok {
		// a bare leaf at the root still needs a branch around it
		br = NewBranch(root.Type(), root)
	}
	return br, nil
}

// LoadFile reads and loads a parse tree dump from fs.
func LoadFile(fs afero.Fs, path string, opts ...LoadOption) (*Branch, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening parse tree %s: %w", path, err)
	}
	defer f.Close()

	root, err := LoadYAML(f, opts...)
	if err != nil {
		return nil, errors.Errorf("loading parse tree %s: %w", path, err)
	}
	return root, nil
}

type loader struct {
	marker *position.Marker
}

func (l *loader) segment(typ string, node *yaml.Node) (Segment, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		text := node.Value
		if node.Tag == "!!null" {
			text = ""
		}
		raw := NewRaw(typ, text, l.marker)
		l.marker = l.marker.Advance(text)
		return raw, nil

	case yaml.MappingNode:
		children, err := l.pairs(node)
		if err != nil {
			return nil, err
		}
		return NewBranch(typ, children...), nil

	case yaml.SequenceNode:
		var children []Segment
		for _, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return nil, errors.Errorf("sequence items under %q must be mappings, line %d", typ, item.Line)
			}
			sub, err := l.pairs(item)
			if err != nil {
				return nil, err
			}
			children = append(children, sub...)
		}
		return NewBranch(typ, children...), nil

	default:
		return nil, errors.Errorf("unsupported yaml node under %q, line %d", typ, node.Line)
	}
}

func (l *loader) pairs(node *yaml.Node) ([]Segment, error) {
	children := make([]Segment, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode || key.Value == "" {
			return nil, errors.Errorf("segment type must be a non-empty string, line %d", key.Line)
		}
		child, err := l.segment(key.Value, value)
		if err != nil {
			return nil, errors.Errorf("loading %q: %w", key.Value, err)
		}
		children = append(children, child)
	}
	return children, nil
}
