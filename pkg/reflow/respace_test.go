package reflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/sqlreflow/pkg/fix"
	"github.com/walteh/sqlreflow/pkg/position"
	"github.com/walteh/sqlreflow/pkg/reflow"
	"github.com/walteh/sqlreflow/pkg/segment"
)

func at(typ, raw string, line, col int) *segment.Raw {
	return segment.NewRaw(typ, raw, position.NewMarker(0, position.Place{Line: line, Character: col}, 4))
}

func block(raw *segment.Raw, before, after string) *reflow.Block {
	return &reflow.Block{Segments: []*segment.Raw{raw}, SpacingBefore: before, SpacingAfter: after}
}

func texts(raws []*segment.Raw) []string {
	out := make([]string, len(raws))
	for i, r := range raws {
		out[i] = r.Raw()
	}
	return out
}

func editTypes(edits []*fix.Edit) []fix.EditType {
	out := make([]fix.EditType, len(edits))
	for i, e := range edits {
		out[i] = e.Type
	}
	return out
}

func TestRespaceInline(t *testing.T) {
	tests := []struct {
		name       string
		point      []string
		pre, post  string
		wantPoint  []string
		wantEdits  []fix.EditType
		wantFaulty error
	}{
		{
			name:      "single space between singles is untouched",
			point:     []string{" "},
			pre:       "single",
			post:      "single",
			wantPoint: []string{" "},
			wantEdits: []fix.EditType{},
		},
		{
			name:      "double space is shrunk",
			point:     []string{"  "},
			pre:       "single",
			post:      "single",
			wantPoint: []string{" "},
			wantEdits: []fix.EditType{fix.Replace},
		},
		{
			name:      "touch wins over single with nothing to insert",
			point:     []string{},
			pre:       "touch",
			post:      "single",
			wantPoint: []string{},
			wantEdits: []fix.EditType{},
		},
		{
			name:      "touch removes whitespace",
			point:     []string{"   "},
			pre:       "single",
			post:      "touch",
			wantPoint: []string{},
			wantEdits: []fix.EditType{fix.Delete},
		},
		{
			name:      "touch removes every whitespace leaf",
			point:     []string{" ", "  "},
			pre:       "touch",
			post:      "touch",
			wantPoint: []string{},
			wantEdits: []fix.EditType{fix.Delete, fix.Delete},
		},
		{
			name:      "touch beats alignment",
			point:     []string{"  "},
			pre:       "touch",
			post:      "align:alias_expression",
			wantPoint: []string{},
			wantEdits: []fix.EditType{fix.Delete},
		},
		{
			name:      "any keeps whitespace",
			point:     []string{"     "},
			pre:       "any",
			post:      "touch",
			wantPoint: []string{"     "},
			wantEdits: []fix.EditType{},
		},
		{
			name:      "any inserts nothing",
			point:     []string{},
			pre:       "single",
			post:      "any",
			wantPoint: []string{},
			wantEdits: []fix.EditType{},
		},
		{
			name:      "single inserts one space",
			point:     []string{},
			pre:       "single",
			post:      "single",
			wantPoint: []string{" "},
			wantEdits: []fix.EditType{fix.CreateAfter},
		},
		{
			name:       "alignment after the gap is a fault",
			point:      []string{" "},
			pre:        "align:alias_expression",
			post:       "single",
			wantFaulty: reflow.ErrUnexpectedConstraint,
		},
		{
			name:       "alignment with nothing present is a fault",
			point:      []string{},
			pre:        "single",
			post:       "align:alias_expression",
			wantFaulty: reflow.ErrUnexpectedConstraint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := block(at("keyword", "SELECT", 1, 1), "single", tt.pre)
			next := block(at("naked_identifier", "a", 1, 10), tt.post, "single")

			var segs []*segment.Raw
			col := 7
			for _, s := range tt.point {
				segs = append(segs, at("whitespace", s, 1, col))
				col += len(s)
			}

			log := fix.NewLog()
			got, err := reflow.NewPoint(segs...).Respace(context.Background(), prev, next, segment.NewBranch("file"), log, false)
			if tt.wantFaulty != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantFaulty))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPoint, texts(got.Segments))
			assert.Equal(t, tt.wantEdits, editTypes(log.Edits()))
		})
	}
}

func TestRespaceInsertsWidthOneSpace(t *testing.T) {
	prevLeaf := at("keyword", "SELECT", 1, 1)
	prev := block(prevLeaf, "single", "single")
	next := block(at("naked_identifier", "a", 1, 7), "single", "single")

	log := fix.NewLog()
	got, err := reflow.NewPoint().Respace(context.Background(), prev, next, segment.NewBranch("file"), log, false)
	require.NoError(t, err)

	require.Len(t, got.Segments, 1)
	ws := got.Segments[0]
	assert.Equal(t, " ", ws.Raw())
	assert.True(t, ws.IsType("whitespace"))
	assert.Nil(t, ws.PosMarker())

	edits := log.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, fix.CreateAfter, edits[0].Type)
	assert.Same(t, prevLeaf, edits[0].Anchor)
	require.Len(t, edits[0].Payload, 1)
	assert.Same(t, ws, edits[0].Payload[0])

	// respacing the same gap again reuses the inserted space
	for i := 0; i < 2; i++ {
		again, err := reflow.NewPoint().Respace(context.Background(), prev, next, segment.NewBranch("file"), log, false)
		require.NoError(t, err)
		require.Len(t, again.Segments, 1)
		assert.Same(t, ws, again.Segments[0])
	}
	edits = log.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, []string{" "}, texts(edits[0].Payload))
}

func TestRespaceMergesIntoPendingInsertion(t *testing.T) {
	anchor := at("keyword", "SELECT", 1, 1)
	synthetic := segment.NewRaw("keyword", "DISTINCT", nil)
	next := at("naked_identifier", "a", 1, 8)

	log := fix.NewLog()
	pending := log.Add(&fix.Edit{Type: fix.CreateAfter, Anchor: anchor, Payload: []*segment.Raw{synthetic}})

	_, err := reflow.NewPoint().Respace(context.Background(),
		block(synthetic, "single", "single"),
		block(next, "single", "single"),
		segment.NewBranch("file"), log, false)
	require.NoError(t, err)

	_, err = reflow.NewPoint().Respace(context.Background(),
		block(anchor, "single", "single"),
		block(synthetic, "single", "single"),
		segment.NewBranch("file"), log, false)
	require.NoError(t, err)

	edits := log.Edits()
	require.Len(t, edits, 1, "both insertions land in the pending edit")
	assert.Same(t, pending, edits[0])
	assert.Equal(t, []string{" ", "DISTINCT", " "}, texts(pending.Payload))
}

func TestRespaceFaults(t *testing.T) {
	ctx := context.Background()
	root := segment.NewBranch("file")

	t.Run("missing insertion", func(t *testing.T) {
		orphan := segment.NewRaw("keyword", "DISTINCT", nil)
		_, err := reflow.NewPoint().Respace(ctx,
			block(orphan, "single", "single"),
			block(at("naked_identifier", "a", 1, 8), "single", "single"),
			root, fix.NewLog(), false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, fix.ErrMissingInsertion))
	})

	t.Run("no anchor", func(t *testing.T) {
		_, err := reflow.NewPoint().Respace(ctx, nil, nil, root, fix.NewLog(), false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, reflow.ErrNoAnchor))
	})
}

func TestRespaceNewlines(t *testing.T) {
	ctx := context.Background()
	root := segment.NewBranch("file")

	t.Run("stripped newline and indent leave an empty point", func(t *testing.T) {
		prev := block(at("naked_identifier", "a", 1, 1), "single", "touch")
		next := block(at("dot", ".", 2, 3), "touch", "touch")
		point := reflow.NewPoint(at("newline", "\n", 1, 2), at("whitespace", "  ", 2, 1))

		log := fix.NewLog()
		got, err := point.Respace(ctx, prev, next, root, log, true)
		require.NoError(t, err)
		assert.Empty(t, got.Segments)
		assert.Equal(t, []fix.EditType{fix.Delete, fix.Delete}, editTypes(log.Edits()))
		assert.Equal(t, "\n", log.Edits()[0].Anchor.Raw())
		assert.Equal(t, "  ", log.Edits()[1].Anchor.Raw())
	})

	t.Run("indent is kept", func(t *testing.T) {
		prev := block(at("keyword", "SELECT", 1, 1), "single", "single")
		next := block(at("naked_identifier", "a", 2, 5), "single", "single")
		point := reflow.NewPoint(at("newline", "\n", 1, 7), at("whitespace", "    ", 2, 1))

		log := fix.NewLog()
		got, err := point.Respace(ctx, prev, next, root, log, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"\n", "    "}, texts(got.Segments))
		assert.Zero(t, log.Len())
	})

	t.Run("trailing whitespace is removed", func(t *testing.T) {
		prev := block(at("keyword", "SELECT", 1, 1), "single", "single")
		next := block(at("naked_identifier", "a", 2, 1), "single", "single")
		point := reflow.NewPoint(at("whitespace", "  ", 1, 7), at("newline", "\n", 1, 9))

		log := fix.NewLog()
		got, err := point.Respace(ctx, prev, next, root, log, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"\n"}, texts(got.Segments))
		assert.Equal(t, []fix.EditType{fix.Delete}, editTypes(log.Edits()))
	})

	t.Run("whitespace detached from its newline is removed", func(t *testing.T) {
		prev := block(at("keyword", "SELECT", 1, 1), "single", "single")
		next := block(at("naked_identifier", "a", 2, 5), "single", "single")
		point := reflow.NewPoint(at("newline", "\n", 1, 7), at("whitespace", "  ", 2, 3))

		log := fix.NewLog()
		got, err := point.Respace(ctx, prev, next, root, log, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"\n"}, texts(got.Segments))
		assert.Equal(t, []fix.EditType{fix.Delete}, editTypes(log.Edits()))
	})
}
