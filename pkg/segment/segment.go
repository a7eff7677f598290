/*
Package segment is the syntax tree the reflow engine works on.

	            Branch (file)
	                 |
	       +---------+---------+
	       |                   |
	  Branch (select)     Raw (newline)
	       |
	  +----+----+-------+
	  |         |       |
	Raw       Raw     Raw
	(keyword) (ws)    (naked_identifier)

Leaves are Raw values carrying the source text. Every node has a stable
identity assigned at construction, which is what the depth map and the
edit log key on.
*/
package segment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/walteh/sqlreflow/pkg/position"
)

// Segment is any node of the tree, leaf or branch
type Segment interface {
	ID() uuid.UUID
	Type() string
	ClassTypes() ClassTypes
	IsType(types ...string) bool
	Raw() string
	RawSegments() []*Raw
	PosMarker() *position.Marker
	IsCode() bool
}

// ClassTypes is the set of syntax classes a segment belongs to
type ClassTypes map[string]struct{}

func NewClassTypes(types ...string) ClassTypes {
	ct := make(ClassTypes, len(types))
	for _, t := range types {
		ct[t] = struct{}{}
	}
	return ct
}

// Has reports whether any of types is in the set.
func (ct ClassTypes) Has(types ...string) bool {
	for _, t := range types {
		if _, ok := ct[t]; ok {
			return true
		}
	}
	return false
}

func (ct ClassTypes) Union(others ...ClassTypes) ClassTypes {
	out := make(ClassTypes, len(ct))
	for t := range ct {
		out[t] = struct{}{}
	}
	for _, other := range others {
		for t := range other {
			out[t] = struct{}{}
		}
	}
	return out
}

func (ct ClassTypes) Sorted() []string {
	out := make([]string, 0, len(ct))
	for t := range ct {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (ct ClassTypes) String() string {
	return "{" + strings.Join(ct.Sorted(), ",") + "}"
}

// impliedTypes lists the super classes a leaf or branch type carries
var impliedTypes = map[string][]string{
	"inline_comment":      {"comment"},
	"block_comment":       {"comment"},
	"indent":              {"meta"},
	"dedent":              {"meta"},
	"naked_identifier":    {"identifier"},
	"quoted_identifier":   {"identifier"},
	"numeric_literal":     {"literal"},
	"quoted_literal":      {"literal"},
	"column_reference":    {"object_reference"},
	"table_reference":     {"object_reference"},
	"wildcard_identifier": {"object_reference"},
}

// nonCodeTypes are classes which never count as code
var nonCodeTypes = []string{"whitespace", "newline", "end_of_file", "comment", "meta"}

func classTypesFor(typ string) ClassTypes {
	return NewClassTypes(append([]string{typ}, impliedTypes[typ]...)...)
}

// Raw is a leaf of the tree
type Raw struct {
	id         uuid.UUID
	typ        string
	classTypes ClassTypes
	raw        string
	pos        *position.Marker
}

// NewRaw creates a leaf. A nil marker means the leaf has not been placed in
// the source yet, i.e. it is a pending insertion.
func NewRaw(typ string, raw string, pos *position.Marker) *Raw {
	return &Raw{
		id:         uuid.New(),
		typ:        typ,
		classTypes: classTypesFor(typ),
		raw:        raw,
		pos:        pos,
	}
}

// NewWhitespace creates an unplaced whitespace leaf.
func NewWhitespace(raw string) *Raw {
	return NewRaw("whitespace", raw, nil)
}

// NewNewline creates an unplaced newline leaf.
func NewNewline() *Raw {
	return NewRaw("newline", "\n", nil)
}

func (r *Raw) ID() uuid.UUID               { return r.id }
func (r *Raw) Type() string                { return r.typ }
func (r *Raw) ClassTypes() ClassTypes      { return r.classTypes }
func (r *Raw) IsType(types ...string) bool { return r.classTypes.Has(types...) }
func (r *Raw) Raw() string                 { return r.raw }
func (r *Raw) RawSegments() []*Raw         { return []*Raw{r} }
func (r *Raw) PosMarker() *position.Marker { return r.pos }

func (r *Raw) IsCode() bool {
	return !r.classTypes.Has(nonCodeTypes...)
}

// Edit returns the same leaf with different text. Identity and position are
// kept, so edits and depth lookups keyed on the original still apply.
func (r *Raw) Edit(raw string) *Raw {
	return &Raw{
		id:         r.id,
		typ:        r.typ,
		classTypes: r.classTypes,
		raw:        raw,
		pos:        r.pos,
	}
}

// StartLoc is the working location of the leaf, false for unplaced leaves.
func (r *Raw) StartLoc() (position.Place, bool) {
	if r.pos == nil {
		return position.Place{}, false
	}
	return r.pos.WorkingLoc(), true
}

// EndLoc is the working location directly after the leaf.
func (r *Raw) EndLoc() (position.Place, bool) {
	if r.pos == nil {
		return position.Place{}, false
	}
	return r.pos.WorkingLocAfter(r.raw), true
}

func (r *Raw) String() string {
	if r.pos == nil {
		return fmt.Sprintf("%s(%q)@new", r.typ, r.raw)
	}
	return fmt.Sprintf("%s(%q)@%s", r.typ, r.raw, r.pos.WorkingLoc())
}

// Branch is an interior node with ordered children
type Branch struct {
	id         uuid.UUID
	typ        string
	classTypes ClassTypes
	children   []Segment
}

func NewBranch(typ string, children ...Segment) *Branch {
	return &Branch{
		id:         uuid.New(),
		typ:        typ,
		classTypes: classTypesFor(typ),
		children:   children,
	}
}

func (b *Branch) ID() uuid.UUID               { return b.id }
func (b *Branch) Type() string                { return b.typ }
func (b *Branch) ClassTypes() ClassTypes      { return b.classTypes }
func (b *Branch) IsType(types ...string) bool { return b.classTypes.Has(types...) }
func (b *Branch) Segments() []Segment         { return b.children }

func (b *Branch) Raw() string {
	var sb strings.Builder
	for _, raw := range b.RawSegments() {
		sb.WriteString(raw.Raw())
	}
	return sb.String()
}

func (b *Branch) RawSegments() []*Raw {
	var out []*Raw
	for _, child := range b.children {
		out = append(out, child.RawSegments()...)
	}
	return out
}

// PosMarker is the marker of the first placed leaf.
func (b *Branch) PosMarker() *position.Marker {
	for _, raw := range b.RawSegments() {
		if raw.PosMarker() != nil {
			return raw.PosMarker()
		}
	}
	return nil
}

func (b *Branch) IsCode() bool {
	for _, child := range b.children {
		if child.IsCode() {
			return true
		}
	}
	return false
}

func (b *Branch) String() string {
	return fmt.Sprintf("%s[%d]", b.typ, len(b.children))
}
