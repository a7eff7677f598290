package reflow

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/sqlreflow/pkg/depthmap"
	"github.com/walteh/sqlreflow/pkg/fix"
	"github.com/walteh/sqlreflow/pkg/segment"
)

// pointTypes are the classes of leaf which belong to points rather than
// blocks
var pointTypes = []string{"whitespace", "newline", "indent", "dedent"}

// Filter selects which points a respace touches
type Filter string

const (
	FilterAll     Filter = "all"
	FilterInline  Filter = "inline"
	FilterNewline Filter = "newline"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case FilterAll, FilterInline, FilterNewline:
		return f, nil
	default:
		return "", errors.Errorf("unknown filter %q, expected one of all, inline, newline", s)
	}
}

func (f Filter) wants(p *Point) bool {
	switch f {
	case FilterInline:
		return p.NumNewlines() == 0
	case FilterNewline:
		return p.NumNewlines() > 0
	default:
		return true
	}
}

// Sequence is a tree read as alternating blocks and points
type Sequence struct {
	elements []Element
	root     *segment.Branch
	cfg      Configurer
	depthMap *depthmap.DepthMap
	log      *fix.Log
}

type SequenceOption func(*Sequence)

// WithEditLog makes the sequence record into log, which may already hold
// edits from elsewhere.
func WithEditLog(log *fix.Log) SequenceOption {
	return func(s *Sequence) {
		s.log = log
	}
}

// FromRoot reads every leaf below root. Each content leaf is its own block
// and consecutive blocks are always separated by a point, empty if nothing
// sits between them.
func FromRoot(ctx context.Context, root *segment.Branch, cfg Configurer, opts ...SequenceOption) (*Sequence, error) {
	s := &Sequence{
		root:     root,
		cfg:      cfg,
		depthMap: depthmap.FromParent(root),
		log:      fix.NewLog(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var pending []*segment.Raw
	for _, raw := range root.RawSegments() {
		if raw.IsType(pointTypes...) {
			pending = append(pending, raw)
			continue
		}
		if len(s.elements) > 0 || len(pending) > 0 {
			s.elements = append(s.elements, NewPoint(pending...))
		}
		depth, err := s.depthMap.Lookup(ctx, raw)
		if err != nil {
			return nil, errors.Errorf("building sequence: %w", err)
		}
		s.elements = append(s.elements, NewBlock([]*segment.Raw{raw}, cfg, depth))
		pending = nil
	}
	if len(pending) > 0 {
		s.elements = append(s.elements, NewPoint(pending...))
	}

	zerolog.Ctx(ctx).Debug().Int("elements", len(s.elements)).Int("depth_map", s.depthMap.Len()).Msg("built reflow sequence")

	return s, nil
}

func (s *Sequence) Elements() []Element {
	return s.elements
}

func (s *Sequence) DepthMap() *depthmap.DepthMap {
	return s.depthMap
}

// Edits returns every edit recorded so far.
func (s *Sequence) Edits() []*fix.Edit {
	return s.log.Edits()
}

func (s *Sequence) Raw() string {
	var sb strings.Builder
	for _, e := range s.elements {
		sb.WriteString(e.Raw())
	}
	return sb.String()
}

type respaceOptions struct {
	stripNewlines bool
	filter        Filter
}

type RespaceOption func(*respaceOptions)

func WithStripNewlines() RespaceOption {
	return func(o *respaceOptions) {
		o.stripNewlines = true
	}
}

func WithFilter(f Filter) RespaceOption {
	return func(o *respaceOptions) {
		o.filter = f
	}
}

// Respace respaces every point the filter selects and returns the sequence
// after the edits. The edits are added to the shared log.
func (s *Sequence) Respace(ctx context.Context, opts ...RespaceOption) (*Sequence, error) {
	o := &respaceOptions{filter: FilterAll}
	for _, opt := range opts {
		opt(o)
	}

	out := &Sequence{
		elements: make([]Element, len(s.elements)),
		root:     s.root,
		cfg:      s.cfg,
		depthMap: s.depthMap,
		log:      s.log,
	}
	copy(out.elements, s.elements)

	for idx, elem := range out.elements {
		point, ok := elem.(*Point)
		if !ok || !o.filter.wants(point) {
			continue
		}
		prev, next := out.blockAt(idx-1), out.blockAt(idx+1)

		respaced, err := point.Respace(ctx, prev, next, s.root, s.log, o.stripNewlines)
		if err != nil {
			return nil, err
		}
		if err := out.trackNew(ctx, respaced, prev, next); err != nil {
			return nil, err
		}
		out.elements[idx] = respaced
	}
	return out, nil
}

func (s *Sequence) blockAt(idx int) *Block {
	if idx < 0 || idx >= len(s.elements) {
		return nil
	}
	b, _ := s.elements[idx].(*Block)
	return b
}

// trackNew gives leaves synthesised at a point the depth of a neighbouring
// block, cut back to the ancestors both neighbours share.
func (s *Sequence) trackNew(ctx context.Context, p *Point, prev, next *Block) error {
	for _, raw := range p.Segments {
		if raw.PosMarker() != nil || s.depthMap.Has(raw) {
			continue
		}

		anchor, trim := neighbourDepth(prev, next)
		if anchor == nil {
			return errors.Errorf("%w: tracking %s", ErrNoAnchor, raw)
		}
		if err := s.depthMap.CopyDepthInfo(ctx, anchor, raw, trim); err != nil {
			return err
		}
	}
	return nil
}

func neighbourDepth(prev, next *Block) (*segment.Raw, int) {
	switch {
	case prev != nil && next != nil && prev.DepthInfo != nil && next.DepthInfo != nil:
		common, err := prev.DepthInfo.CommonWith(next.DepthInfo)
		if err != nil {
			return prev.last(), 0
		}
		return prev.last(), prev.DepthInfo.StackDepth - len(common)
	case prev != nil:
		return prev.last(), 0
	case next != nil:
		return next.first(), 0
	default:
		return nil, 0
	}
}
