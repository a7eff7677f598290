// Package config maps syntax classes to spacing rules.
package config

import (
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/sqlreflow/pkg/depthmap"
	"github.com/walteh/sqlreflow/pkg/segment"
)

// Spacing rule values
const (
	SpacingSingle = "single"
	SpacingTouch  = "touch"
	SpacingAny    = "any"
	SpacingInline = "inline"
	SpacingAlign  = "align"
)

var ErrInvalidSpacing = errors.Base("invalid spacing value")

// TypeConfig is the layout configuration of one syntax class
type TypeConfig struct {
	SpacingBefore string `yaml:"spacing_before,omitempty" json:"spacing_before,omitempty"`
	SpacingAfter  string `yaml:"spacing_after,omitempty" json:"spacing_after,omitempty"`
	SpacingWithin string `yaml:"spacing_within,omitempty" json:"spacing_within,omitempty"`
	AlignWithin   string `yaml:"align_within,omitempty" json:"align_within,omitempty"`
	AlignScope    string `yaml:"align_scope,omitempty" json:"align_scope,omitempty"`
}

// overlay returns c with every field set in other replacing its own
func (c TypeConfig) overlay(other TypeConfig) TypeConfig {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	return TypeConfig{
		SpacingBefore: pick(c.SpacingBefore, other.SpacingBefore),
		SpacingAfter:  pick(c.SpacingAfter, other.SpacingAfter),
		SpacingWithin: pick(c.SpacingWithin, other.SpacingWithin),
		AlignWithin:   pick(c.AlignWithin, other.AlignWithin),
		AlignScope:    pick(c.AlignScope, other.AlignScope),
	}
}

// BlockConfig is the resolved spacing of a block
type BlockConfig struct {
	SpacingBefore string
	SpacingAfter  string
	SpacingWithin string
}

func (b *BlockConfig) incorporate(before, after, within string) {
	if before != "" {
		b.SpacingBefore = before
	}
	if after != "" {
		b.SpacingAfter = after
	}
	if within != "" {
		b.SpacingWithin = within
	}
}

// Align is a parsed "align:<type>[:<within>[:<boundary>]]" rule
type Align struct {
	SegType  string
	Within   string
	Boundary string
}

// ParseAlign parses an expanded align rule, false if s is not one.
func ParseAlign(s string) (Align, bool) {
	parts := strings.Split(s, ":")
	if parts[0] != SpacingAlign || len(parts) < 2 || len(parts) > 4 || parts[1] == "" {
		return Align{}, false
	}
	a := Align{SegType: parts[1]}
	if len(parts) > 2 {
		a.Within = parts[2]
	}
	if len(parts) > 3 {
		a.Boundary = parts[3]
	}
	return a, true
}

func (a Align) String() string {
	s := SpacingAlign + ":" + a.SegType
	if a.Within != "" {
		s += ":" + a.Within
		if a.Boundary != "" {
			s += ":" + a.Boundary
		}
	}
	return s
}

// ReflowConfig answers which spacing applies to a run of segments
type ReflowConfig struct {
	types       map[string]TypeConfig
	configTypes []string

	// TabSpaceSize is the width of a tab stop when measuring columns
	TabSpaceSize int
}

type Option func(*ReflowConfig)

func WithTabSpaceSize(size int) Option {
	return func(c *ReflowConfig) {
		c.TabSpaceSize = size
	}
}

// FromMap validates types and expands every bare "align" into
// "align:<type>[:<within>[:<scope>]]" so blocks carry the whole rule.
func FromMap(types map[string]TypeConfig, opts ...Option) (*ReflowConfig, error) {
	c := &ReflowConfig{
		types:        make(map[string]TypeConfig, len(types)),
		configTypes:  make([]string, 0, len(types)),
		TabSpaceSize: 4,
	}
	for _, opt := range opts {
		opt(c)
	}

	var merr *multierror.Error
	for name, tc := range types {
		for _, side := range []struct {
			key   string
			value *string
		}{
			{"spacing_before", &tc.SpacingBefore},
			{"spacing_after", &tc.SpacingAfter},
		} {
			switch v := *side.value; {
			case v == "", v == SpacingSingle, v == SpacingTouch, v == SpacingAny:
			case v == SpacingAlign:
				*side.value = Align{SegType: name, Within: tc.AlignWithin, Boundary: tc.AlignScope}.String()
			default:
				if _, ok := ParseAlign(v); !ok {
					merr = multierror.Append(merr, errors.Errorf("%w: %s.%s = %q", ErrInvalidSpacing, name, side.key, v))
				}
			}
		}
		switch tc.SpacingWithin {
		case "", SpacingTouch, SpacingInline:
		default:
			merr = multierror.Append(merr, errors.Errorf("%w: %s.spacing_within = %q", ErrInvalidSpacing, name, tc.SpacingWithin))
		}
		c.types[name] = tc
		c.configTypes = append(c.configTypes, name)
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, errors.Errorf("validating layout config: %w", err)
	}

	sort.Strings(c.configTypes)
	return c, nil
}

// TypeConfig returns the configuration for a single class, after expansion.
func (c *ReflowConfig) TypeConfig(name string) (TypeConfig, bool) {
	tc, ok := c.types[name]
	return tc, ok
}

func (c *ReflowConfig) configured(classTypes segment.ClassTypes) []string {
	var out []string
	for _, name := range c.configTypes {
		if classTypes.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// GetBlockConfig resolves the spacing for a block of the given classes.
//
// With depth info, a block at the very start of an ancestor takes that
// ancestor's spacing_before, and at the very end its spacing_after. The walk
// goes outward and stops once the block is neither first nor last. The
// block's own classes are applied last.
func (c *ReflowConfig) GetBlockConfig(classTypes segment.ClassTypes, depth *depthmap.DepthInfo) BlockConfig {
	bc := BlockConfig{SpacingBefore: SpacingSingle, SpacingAfter: SpacingSingle}

	if depth != nil {
		parentStart, parentEnd := true, true
		for idx := depth.StackDepth - 1; idx >= 0; idx-- {
			switch depth.StackPositions[idx] {
			case depthmap.PositionSolo:
			case depthmap.PositionStart:
				parentEnd = false
			case depthmap.PositionEnd:
				parentStart = false
			default:
				parentStart, parentEnd = false, false
			}
			if !parentStart && !parentEnd {
				break
			}
			for _, name := range c.configured(depth.StackClassTypes[idx]) {
				tc := c.types[name]
				if parentStart {
					bc.incorporate(tc.SpacingBefore, "", "")
				}
				if parentEnd {
					bc.incorporate("", tc.SpacingAfter, "")
				}
			}
		}
	}

	for _, name := range c.configured(classTypes) {
		tc := c.types[name]
		bc.incorporate(tc.SpacingBefore, tc.SpacingAfter, tc.SpacingWithin)
	}
	return bc
}
