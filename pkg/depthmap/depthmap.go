// Package depthmap precomputes, for every leaf of a tree, the chain of
// ancestors above it so that common ancestors of two leaves can be found
// without walking the tree again.
package depthmap

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/sqlreflow/pkg/segment"
)

var (
	// ErrNoCommonAncestor means two leaves were compared which don't share a
	// tree. It always points at a bug upstream.
	ErrNoCommonAncestor = errors.Base("depth info shares no common ancestor")

	// ErrUnknownSegment means a leaf was looked up which the map was never
	// built from.
	ErrUnknownSegment = errors.Base("depth info requested for unknown segment")
)

// Stack position roles, describing where the child on the path sits among
// its siblings.
const (
	PositionSolo   = "solo"
	PositionStart  = "start"
	PositionEnd    = "end"
	PositionMiddle = ""
)

func stackPosition(step segment.PathStep) string {
	switch {
	case step.Idx == 0 && step.Idx == step.Len-1:
		return PositionSolo
	case step.Idx == 0:
		return PositionStart
	case step.Idx == step.Len-1:
		return PositionEnd
	default:
		return PositionMiddle
	}
}

// DepthInfo holds the ancestor stack of one leaf. All slices are root first
// and have length StackDepth. Values are never mutated after construction.
type DepthInfo struct {
	StackDepth      int
	StackIDs        []uuid.UUID
	StackClassTypes []segment.ClassTypes
	StackPositions  []string

	stackIDSet map[uuid.UUID]struct{}
}

func FromStack(stack []segment.PathStep) *DepthInfo {
	di := &DepthInfo{
		StackDepth:      len(stack),
		StackIDs:        make([]uuid.UUID, len(stack)),
		StackClassTypes: make([]segment.ClassTypes, len(stack)),
		StackPositions:  make([]string, len(stack)),
		stackIDSet:      make(map[uuid.UUID]struct{}, len(stack)),
	}
	for i, step := range stack {
		di.StackIDs[i] = step.Segment.ID()
		di.StackClassTypes[i] = step.Segment.ClassTypes()
		di.StackPositions[i] = stackPosition(step)
		di.stackIDSet[di.StackIDs[i]] = struct{}{}
	}
	return di
}

// Contains reports whether id is one of the ancestors.
func (d *DepthInfo) Contains(id uuid.UUID) bool {
	_, ok := d.stackIDSet[id]
	return ok
}

// CommonWith returns the ancestors shared with other, root first.
//
// Ancestor identities are unique, so the shared ones are always a prefix of
// both stacks and the size of the intersection is enough to cut it.
func (d *DepthInfo) CommonWith(other *DepthInfo) ([]uuid.UUID, error) {
	common := 0
	for _, id := range other.StackIDs {
		if d.Contains(id) {
			common++
		}
	}
	if common == 0 {
		return nil, errors.Errorf("%w: stacks of depth %d and %d", ErrNoCommonAncestor, d.StackDepth, other.StackDepth)
	}
	return d.StackIDs[:common], nil
}

// Trim returns the info with the innermost amount ancestors removed. Trim(0)
// returns d itself.
func (d *DepthInfo) Trim(amount int) *DepthInfo {
	if amount <= 0 {
		return d
	}
	keep := d.StackDepth - amount
	if keep < 0 {
		keep = 0
	}
	trimmed := &DepthInfo{
		StackDepth:      keep,
		StackIDs:        d.StackIDs[:keep:keep],
		StackClassTypes: d.StackClassTypes[:keep:keep],
		StackPositions:  d.StackPositions[:keep:keep],
		stackIDSet:      make(map[uuid.UUID]struct{}, keep),
	}
	for _, id := range trimmed.StackIDs {
		trimmed.stackIDSet[id] = struct{}{}
	}
	return trimmed
}

// DepthMap maps leaf identities to their depth info.
//
// It is built once per tree and only ever grows: leaves synthesised during a
// reflow borrow the info of a nearby leaf through CopyDepthInfo. Entries for
// leaves which have since left the tree are harmless and never purged.
type DepthMap struct {
	depthInfo map[uuid.UUID]*DepthInfo
}

func New(rawsWithStack []segment.RawWithAncestors) *DepthMap {
	dm := &DepthMap{depthInfo: make(map[uuid.UUID]*DepthInfo, len(rawsWithStack))}
	for _, rws := range rawsWithStack {
		dm.depthInfo[rws.Raw.ID()] = FromStack(rws.Stack)
	}
	return dm
}

// FromParent builds a map for every leaf below parent in one walk.
func FromParent(parent *segment.Branch) *DepthMap {
	return New(parent.RawSegmentsWithAncestors())
}

// FromRawsAndRoot builds a map for a subset of leaves, searching the path to
// each from root. Prefer FromParent when the whole tree is wanted.
func FromRawsAndRoot(raws []*segment.Raw, root *segment.Branch) *DepthMap {
	buf := make([]segment.RawWithAncestors, 0, len(raws))
	for _, raw := range raws {
		buf = append(buf, segment.RawWithAncestors{Raw: raw, Stack: root.PathTo(raw)})
	}
	return New(buf)
}

func (dm *DepthMap) Len() int {
	return len(dm.depthInfo)
}

// Has reports whether raw has depth info, without logging a miss.
func (dm *DepthMap) Has(raw *segment.Raw) bool {
	_, ok := dm.depthInfo[raw.ID()]
	return ok
}

// Lookup returns the depth info of raw.
func (dm *DepthMap) Lookup(ctx context.Context, raw *segment.Raw) (*DepthInfo, error) {
	di, ok := dm.depthInfo[raw.ID()]
	if !ok {
		known := make([]string, 0, len(dm.depthInfo))
		for id := range dm.depthInfo {
			known = append(known, id.String())
		}
		zerolog.Ctx(ctx).Error().Strs("known_ids", known).Str("segment", raw.String()).Msg("depth map lookup miss")
		return nil, errors.WithDetails(
			errors.Errorf("%w: %s with id %s", ErrUnknownSegment, raw, raw.ID()),
			"known_ids", known,
		)
	}
	return di, nil
}

// CopyDepthInfo gives newRaw the info of anchor with trim ancestors removed.
// Calling it again for the same newRaw overwrites the previous entry.
func (dm *DepthMap) CopyDepthInfo(ctx context.Context, anchor *segment.Raw, newRaw *segment.Raw, trim int) error {
	di, err := dm.Lookup(ctx, anchor)
	if err != nil {
		return errors.Errorf("copying depth info to %s: %w", newRaw, err)
	}
	dm.depthInfo[newRaw.ID()] = di.Trim(trim)
	return nil
}
