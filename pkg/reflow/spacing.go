package reflow

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/walteh/sqlreflow/pkg/segment"
)

// processSpacing prunes whitespace which is trailing before a line break,
// and with strip set removes the line breaks themselves. A run of whitespace
// left at the end is collapsed to its first leaf, which is returned as
// lastWhitespace. removed lists every pruned leaf in order.
func processSpacing(ctx context.Context, buffer []*segment.Raw, strip bool) (pruned, lastWhitespace, removed []*segment.Raw) {
	logger := zerolog.Ctx(ctx)
	drop := map[uuid.UUID]struct{}{}
	mark := func(seg *segment.Raw) {
		drop[seg.ID()] = struct{}{}
		removed = append(removed, seg)
	}

	for _, seg := range buffer {
		switch {
		case seg.IsType("newline", "end_of_file"):
			if strip && seg.IsType("newline") {
				logger.Debug().Stringer("segment", seg).Msg("stripping newline")
				mark(seg)
				continue
			}
			for _, ws := range lastWhitespace {
				logger.Debug().Stringer("segment", ws).Msg("removing trailing whitespace")
				mark(ws)
			}
			lastWhitespace = nil
		case seg.IsType("whitespace"):
			lastWhitespace = append(lastWhitespace, seg)
		}
	}

	if len(lastWhitespace) > 1 {
		for _, ws := range lastWhitespace[1:] {
			logger.Debug().Stringer("segment", ws).Msg("removing duplicate whitespace")
			mark(ws)
		}
		lastWhitespace = lastWhitespace[:1]
	}

	pruned = make([]*segment.Raw, 0, len(buffer)-len(removed))
	for _, seg := range buffer {
		if _, ok := drop[seg.ID()]; !ok {
			pruned = append(pruned, seg)
		}
	}
	return pruned, lastWhitespace, removed
}
