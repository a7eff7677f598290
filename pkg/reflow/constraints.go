package reflow

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/sqlreflow/pkg/config"
)

// ErrUnexpectedConstraint means a combination of spacing rules reached the
// engine which valid configuration can never produce.
var ErrUnexpectedConstraint = errors.Base("unexpected spacing constraint")

// resolveConstraints returns the spacing wanted after prev and before next.
//
// A spacing_within set on the closest ancestor shared by both blocks
// overrides both sides: touch and inline pull them to touch, except a side
// which is any, and inline also strips line breaks.
func resolveConstraints(ctx context.Context, prev, next *Block, strip bool) (pre, post string, stripNewlines bool, err error) {
	pre, post = config.SpacingSingle, config.SpacingSingle
	if prev != nil {
		pre = prev.SpacingAfter
	}
	if next != nil {
		post = next.SpacingBefore
	}

	if prev == nil || next == nil || prev.DepthInfo == nil || next.DepthInfo == nil {
		return pre, post, strip, nil
	}

	common, err := prev.DepthInfo.CommonWith(next.DepthInfo)
	if err != nil {
		return "", "", false, errors.Errorf("resolving constraints between %s and %s: %w", prev, next, err)
	}
	idx := common[len(common)-1]

	within, ok := prev.StackSpacingConfigs[idx]
	if !ok {
		within, ok = next.StackSpacingConfigs[idx]
	}
	if !ok {
		return pre, post, strip, nil
	}

	switch within {
	case config.SpacingTouch, config.SpacingInline:
		if pre != config.SpacingAny {
			pre = config.SpacingTouch
		}
		if post != config.SpacingAny {
			post = config.SpacingTouch
		}
		if within == config.SpacingInline {
			strip = true
		}
	default:
		return "", "", false, errors.Errorf("%w: spacing_within %q on common ancestor %s", ErrUnexpectedConstraint, within, idx)
	}

	zerolog.Ctx(ctx).Debug().
		Str("within", within).
		Str("pre", pre).
		Str("post", post).
		Bool("strip_newlines", strip).
		Msg("within constraint applied")

	return pre, post, strip, nil
}
