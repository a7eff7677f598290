package reflow

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/sqlreflow/pkg/config"
	"github.com/walteh/sqlreflow/pkg/fix"
	"github.com/walteh/sqlreflow/pkg/segment"
)

// ErrNoAnchor means whitespace had to be inserted at a point with no block
// on either side.
var ErrNoAnchor = errors.Base("no segment to anchor an insertion on")

// Respace corrects the whitespace of p for the blocks either side of it.
// Either block may be nil at the edges of a sequence. Edits are recorded in
// log, and the returned point holds the segments after those edits.
//
// With stripNewlines set, line breaks in the point are removed as well.
// Otherwise points containing a line break only lose trailing whitespace;
// placing indentation is not done here.
func (p *Point) Respace(ctx context.Context, prev, next *Block, root *segment.Branch, log *fix.Log, stripNewlines bool) (*Point, error) {
	logger := zerolog.Ctx(ctx)

	pre, post, strip, err := resolveConstraints(ctx, prev, next, stripNewlines)
	if err != nil {
		return nil, err
	}

	logger.Debug().Stringer("point", p).Str("pre", pre).Str("post", post).Msg("respacing")

	buffer, lastWhitespace, removed := processSpacing(ctx, p.Segments, strip)
	for _, seg := range removed {
		log.Delete(seg)
	}

	hasNewline := slices.ContainsFunc(buffer, func(seg *segment.Raw) bool {
		return seg.IsType("newline", "end_of_file")
	})

	switch {
	case hasNewline:
		buffer = p.removeDetachedIndent(ctx, buffer, lastWhitespace, log)
	case len(lastWhitespace) > 0:
		buffer, err = respaceInlineWithSpace(ctx, pre, post, next, root, buffer, lastWhitespace[0], log)
	default:
		buffer, err = respaceInlineWithoutSpace(ctx, pre, post, prev, next, buffer, log)
	}
	if err != nil {
		return nil, errors.Errorf("respacing %s: %w", p, err)
	}

	return NewPoint(buffer...), nil
}

// removeDetachedIndent deletes the only whitespace left in the point when
// an earlier edit removed text between it and the line break before it.
func (p *Point) removeDetachedIndent(ctx context.Context, buffer, lastWhitespace []*segment.Raw, log *fix.Log) []*segment.Raw {
	if len(lastWhitespace) != 1 {
		return buffer
	}
	ws := lastWhitespace[0]
	idx := slices.IndexFunc(p.Segments, func(seg *segment.Raw) bool { return seg.ID() == ws.ID() })
	if idx < 1 {
		return buffer
	}
	before := p.Segments[idx-1]
	if !before.IsType("newline") {
		return buffer
	}

	end, endOk := before.EndLoc()
	start, startOk := ws.StartLoc()
	if !endOk || !startOk || !end.Before(start) {
		return buffer
	}

	zerolog.Ctx(ctx).Debug().Stringer("segment", ws).Msg("removing non-contiguous whitespace")
	log.Delete(ws)
	return slices.DeleteFunc(buffer, func(seg *segment.Raw) bool { return seg.ID() == ws.ID() })
}

func respaceInlineWithSpace(ctx context.Context, pre, post string, next *Block, root *segment.Branch, buffer []*segment.Raw, ws *segment.Raw, log *fix.Log) ([]*segment.Raw, error) {
	logger := zerolog.Ctx(ctx)
	idx := slices.IndexFunc(buffer, func(seg *segment.Raw) bool { return seg.ID() == ws.ID() })

	if pre == config.SpacingAny || post == config.SpacingAny {
		return buffer, nil
	}

	if pre == config.SpacingTouch || post == config.SpacingTouch {
		logger.Debug().Stringer("segment", ws).Msg("removing whitespace between touching blocks")
		log.Delete(ws)
		return slices.Delete(buffer, idx, idx+1), nil
	}

	isAlign := strings.HasPrefix(post, config.SpacingAlign) && next != nil
	if !isAlign && (pre != config.SpacingSingle || post != config.SpacingSingle) {
		return nil, errors.Errorf("%w: %q and %q around whitespace", ErrUnexpectedConstraint, pre, post)
	}

	desired := " "
	if isAlign {
		align, ok := config.ParseAlign(post)
		if !ok {
			return nil, errors.Errorf("%w: malformed alignment %q", ErrUnexpectedConstraint, post)
		}
		desired = alignedSpacing(ctx, root, ws, next.first(), align)
	}

	if ws.Raw() == desired {
		return buffer, nil
	}

	edited := ws.Edit(desired)
	logger.Debug().Stringer("segment", ws).Str("desired", desired).Msg("resizing whitespace")
	log.Replace(ws, edited)
	out := slices.Clone(buffer)
	out[idx] = edited
	return out, nil
}

func respaceInlineWithoutSpace(ctx context.Context, pre, post string, prev, next *Block, buffer []*segment.Raw, log *fix.Log) ([]*segment.Raw, error) {
	switch {
	case pre == config.SpacingTouch, pre == config.SpacingAny, post == config.SpacingTouch, post == config.SpacingAny:
		return buffer, nil
	case pre != config.SpacingSingle || post != config.SpacingSingle:
		return nil, errors.Errorf("%w: %q and %q with no whitespace", ErrUnexpectedConstraint, pre, post)
	}

	var before, after *segment.Raw
	if prev != nil {
		before = prev.last()
	}
	if next != nil {
		after = next.first()
	}
	if before == nil && after == nil {
		return nil, errors.Errorf("%w: inserting into %d segments", ErrNoAnchor, len(buffer))
	}

	if e, leaf, ok := log.Gap(before, after); ok && leaf.IsType("whitespace") {
		zerolog.Ctx(ctx).Debug().Stringer("edit", e).Msg("gap already holds inserted whitespace")
		return append(slices.Clone(buffer), leaf), nil
	}

	ws := segment.NewWhitespace(" ")
	e, err := log.Insert(before, after, ws)
	if err != nil {
		return nil, errors.Errorf("inserting whitespace: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Stringer("edit", e).Msg("inserted single whitespace")

	return append(slices.Clone(buffer), ws), nil
}
