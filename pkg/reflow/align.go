package reflow

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/walteh/sqlreflow/pkg/config"
	"github.com/walteh/sqlreflow/pkg/position"
	"github.com/walteh/sqlreflow/pkg/segment"
)

// alignedSpacing returns the whitespace which puts next in the same column
// as every other segment of align.SegType within the alignment scope.
//
// The scope is the outermost ancestor of next matching align.Within which is
// not outside the closest align.Boundary ancestor. Anything the scope can't
// be aligned with falls back to a single space.
func alignedSpacing(ctx context.Context, root *segment.Branch, ws, next *segment.Raw, align config.Align) string {
	logger := zerolog.Ctx(ctx)

	wsLoc, wsOk := ws.StartLoc()
	nextLoc, nextOk := next.StartLoc()
	if !wsOk || !nextOk {
		logger.Debug().Stringer("whitespace", ws).Stringer("next", next).Msg("unplaced segment in alignment, treating as single")
		return " "
	}

	var scope *segment.Branch
	path := root.PathTo(next)
	for i := len(path) - 1; i >= 0; i-- {
		ancestor := path[i].Segment
		if align.Within != "" && ancestor.IsType(align.Within) {
			scope = ancestor
		}
		if align.Boundary != "" && ancestor.IsType(align.Boundary) {
			break
		}
	}
	if scope == nil {
		logger.Debug().Str("within", align.Within).Msg("no alignment scope found, treating as single")
		return " "
	}

	logger.Debug().Stringer("scope", scope).Str("align", align.String()).Msg("determining alignment")

	var siblings []position.Place
	for _, sibling := range scope.RecursiveCrawl(align.SegType) {
		if crossesBoundary(scope, sibling, align.Boundary) {
			logger.Debug().Str("sibling", sibling.Raw()).Msg("purging sibling behind a boundary")
			continue
		}
		if m := sibling.PosMarker(); m != nil {
			siblings = append(siblings, m.WorkingLoc())
		}
	}

	for _, loc := range siblings {
		if loc.Line == nextLoc.Line && loc.Character != nextLoc.Character {
			logger.Debug().Stringer("sibling", loc).Msg("sibling on the same line, treating as single")
			return " "
		}
	}

	maxCol := 0
	var lastCode *segment.Raw
	for _, seg := range scope.RawSegments() {
		if loc, ok := seg.StartLoc(); ok && lastCode != nil {
			for _, sibling := range siblings {
				if loc != sibling {
					continue
				}
				if end, ok := lastCode.EndLoc(); ok && end.Character > maxCol {
					maxCol = end.Character
				}
			}
		}
		if seg.IsCode() {
			lastCode = seg
		}
	}

	width := 1 + maxCol - wsLoc.Character
	if width < 1 {
		width = 1
	}

	logger.Debug().Int("max_col", maxCol).Int("width", width).Msg("aligned spacing")

	return strings.Repeat(" ", width)
}

func crossesBoundary(scope *segment.Branch, sibling segment.Segment, boundary string) bool {
	if boundary == "" {
		return false
	}
	for _, step := range scope.PathTo(sibling) {
		if step.Segment.IsType(boundary) {
			return true
		}
	}
	return false
}
