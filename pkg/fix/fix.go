// Package fix expresses changes to a syntax tree as data. Nothing here
// touches the tree; an Edit names the leaf it applies to and the leaves it
// introduces, and a Log accumulates them.
package fix

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/sqlreflow/pkg/segment"
)

// ErrMissingInsertion means an unplaced leaf was used as an anchor but no
// pending edit introduces it.
var ErrMissingInsertion = errors.Base("no pending insertion holds segment")

type EditType int

const (
	Delete EditType = iota
	Replace
	CreateBefore
	CreateAfter
)

func (t EditType) String() string {
	switch t {
	case Delete:
		return "delete"
	case Replace:
		return "replace"
	case CreateBefore:
		return "create_before"
	case CreateAfter:
		return "create_after"
	default:
		return fmt.Sprintf("EditType(%d)", int(t))
	}
}

func (t EditType) IsCreate() bool {
	return t == CreateBefore || t == CreateAfter
}

// Edit is one change anchored on an existing leaf. Payload is empty for
// deletions.
type Edit struct {
	Type    EditType
	Anchor  *segment.Raw
	Payload []*segment.Raw
}

func (e *Edit) String() string {
	if len(e.Payload) == 0 {
		return fmt.Sprintf("%s %s", e.Type, e.Anchor)
	}
	parts := make([]string, len(e.Payload))
	for i, p := range e.Payload {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s %s [%s]", e.Type, e.Anchor, strings.Join(parts, ", "))
}

type anchorKey struct {
	id  uuid.UUID
	typ EditType
}

// Log is an ordered edit list which never holds two creations for the same
// anchor and side. Every creation is registered under its (anchor, side) key
// and every unplaced leaf it introduces is registered against it, so later
// insertions next to that leaf land in the same edit.
type Log struct {
	edits     []*Edit
	creations []*Edit

	anchors map[anchorKey]*Edit
	pending map[uuid.UUID]*Edit
}

func NewLog() *Log {
	return &Log{
		anchors: make(map[anchorKey]*Edit),
		pending: make(map[uuid.UUID]*Edit),
	}
}

// Edits returns deletions and replacements in the order they were logged,
// followed by creations in the order they were logged.
func (l *Log) Edits() []*Edit {
	out := make([]*Edit, 0, len(l.edits)+len(l.creations))
	out = append(out, l.edits...)
	return append(out, l.creations...)
}

func (l *Log) Len() int {
	return len(l.edits) + len(l.creations)
}

// Pending returns the edit which introduces the unplaced leaf id.
func (l *Log) Pending(id uuid.UUID) (*Edit, bool) {
	e, ok := l.pending[id]
	return e, ok
}

// Add logs an edit built elsewhere. Creations at an anchor and side which
// already has one are merged into it.
func (l *Log) Add(e *Edit) *Edit {
	if e.Type.IsCreate() {
		return l.create(e.Type, e.Anchor, e.Payload...)
	}
	l.edits = append(l.edits, e)
	l.track(e, e.Payload...)
	return e
}

// Delete removes raw. Deleting a leaf which is itself pending drops it from
// the edit introducing it instead.
func (l *Log) Delete(raw *segment.Raw) {
	if e, ok := l.pending[raw.ID()]; ok {
		l.unsplice(e, raw)
		return
	}
	l.edits = append(l.edits, &Edit{Type: Delete, Anchor: raw})
}

// Replace swaps raw for payload. Replacing a pending leaf rewrites the edit
// introducing it.
func (l *Log) Replace(raw *segment.Raw, payload ...*segment.Raw) {
	if e, ok := l.pending[raw.ID()]; ok {
		idx := slices.IndexFunc(e.Payload, func(p *segment.Raw) bool { return p.ID() == raw.ID() })
		e.Payload = slices.Replace(e.Payload, idx, idx+1, payload...)
		delete(l.pending, raw.ID())
		l.track(e, payload...)
		return
	}
	e := &Edit{Type: Replace, Anchor: raw, Payload: payload}
	l.edits = append(l.edits, e)
	l.track(e, payload...)
}

// Insert places payload in the gap between prev and next, either of which
// may be nil.
//
// An unplaced neighbour means the gap is inside an earlier insertion, so the
// payload is spliced into that edit next to it. Otherwise the gap is keyed
// on prev (create_after) when there is one, and on next (create_before)
// when not, and a creation already filling the gap from either side is
// extended rather than doubled. A single whitespace payload is dropped when
// the gap already holds whitespace, and the filling edit is returned as is.
func (l *Log) Insert(prev, next *segment.Raw, payload ...*segment.Raw) (*Edit, error) {
	if prev == nil && next == nil {
		return nil, errors.New("insertion with neither a previous nor a next segment")
	}

	if len(payload) == 1 && payload[0].IsType("whitespace") {
		if e, leaf, ok := l.Gap(prev, next); ok && leaf.IsType("whitespace") {
			return e, nil
		}
	}

	switch {
	case prev != nil && prev.PosMarker() == nil:
		return l.Splice(prev, CreateAfter, payload...)
	case next != nil && next.PosMarker() == nil:
		return l.Splice(next, CreateBefore, payload...)
	case prev != nil:
		if next != nil {
			if e, ok := l.anchors[anchorKey{next.ID(), CreateBefore}]; ok {
				return l.extend(e, payload...), nil
			}
		}
		return l.create(CreateAfter, prev, payload...), nil
	default:
		return l.create(CreateBefore, next, payload...), nil
	}
}

// Gap returns the creation already filling the gap between prev and next,
// along with its leaf nearest the gap.
func (l *Log) Gap(prev, next *segment.Raw) (*Edit, *segment.Raw, bool) {
	switch {
	case prev != nil && prev.PosMarker() == nil:
		e, ok := l.pending[prev.ID()]
		if !ok {
			return nil, nil, false
		}
		idx := slices.IndexFunc(e.Payload, func(p *segment.Raw) bool { return p.ID() == prev.ID() })
		if idx+1 >= len(e.Payload) {
			return nil, nil, false
		}
		return e, e.Payload[idx+1], true
	case next != nil && next.PosMarker() == nil:
		e, ok := l.pending[next.ID()]
		if !ok {
			return nil, nil, false
		}
		idx := slices.IndexFunc(e.Payload, func(p *segment.Raw) bool { return p.ID() == next.ID() })
		if idx < 1 {
			return nil, nil, false
		}
		return e, e.Payload[idx-1], true
	}

	var e *Edit
	if next != nil {
		e = l.anchors[anchorKey{next.ID(), CreateBefore}]
	}
	if e == nil && prev != nil {
		e = l.anchors[anchorKey{prev.ID(), CreateAfter}]
	}
	if e == nil || len(e.Payload) == 0 {
		return nil, nil, false
	}
	// extend appends, so the last leaf is the one facing the gap
	return e, e.Payload[len(e.Payload)-1], true
}

// Splice inserts payload directly before or after the pending leaf inside
// the edit which introduces it.
func (l *Log) Splice(leaf *segment.Raw, side EditType, payload ...*segment.Raw) (*Edit, error) {
	e, ok := l.pending[leaf.ID()]
	if !ok {
		return nil, errors.WithDetails(
			errors.Errorf("%w: %s", ErrMissingInsertion, leaf),
			"id", leaf.ID().String(),
		)
	}
	idx := slices.IndexFunc(e.Payload, func(p *segment.Raw) bool { return p.ID() == leaf.ID() })
	if side == CreateAfter {
		idx++
	}
	e.Payload = slices.Insert(e.Payload, idx, payload...)
	l.track(e, payload...)
	return e, nil
}

func (l *Log) create(typ EditType, anchor *segment.Raw, payload ...*segment.Raw) *Edit {
	key := anchorKey{anchor.ID(), typ}
	if e, ok := l.anchors[key]; ok {
		return l.extend(e, payload...)
	}
	e := &Edit{Type: typ, Anchor: anchor, Payload: slices.Clone(payload)}
	l.anchors[key] = e
	l.creations = append(l.creations, e)
	l.track(e, payload...)
	return e
}

// extend appends payload at the end of e, which for both sides is the end
// nearest the following segment.
func (l *Log) extend(e *Edit, payload ...*segment.Raw) *Edit {
	e.Payload = append(e.Payload, payload...)
	l.track(e, payload...)
	return e
}

func (l *Log) unsplice(e *Edit, raw *segment.Raw) {
	delete(l.pending, raw.ID())
	e.Payload = slices.DeleteFunc(e.Payload, func(p *segment.Raw) bool { return p.ID() == raw.ID() })
	if len(e.Payload) > 0 || !e.Type.IsCreate() {
		return
	}
	delete(l.anchors, anchorKey{e.Anchor.ID(), e.Type})
	l.creations = slices.DeleteFunc(l.creations, func(c *Edit) bool { return c == e })
}

func (l *Log) track(e *Edit, payload ...*segment.Raw) {
	for _, p := range payload {
		if p.PosMarker() == nil {
			l.pending[p.ID()] = e
		}
	}
}
