package reflow

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/sqlreflow/pkg/config"
	"github.com/walteh/sqlreflow/pkg/depthmap"
	"github.com/walteh/sqlreflow/pkg/segment"
)

func texts(raws []*segment.Raw) []string {
	out := make([]string, len(raws))
	for i, r := range raws {
		out[i] = r.Raw()
	}
	return out
}

func loadTree(t *testing.T, src string) *segment.Branch {
	t.Helper()
	root, err := segment.LoadYAML(strings.NewReader(src))
	require.NoError(t, err)
	return root
}

// leafAt returns the n-th leaf (0 based) whose text is raw
func leafAt(t *testing.T, root *segment.Branch, raw string, n int) *segment.Raw {
	t.Helper()
	for _, seg := range root.RawSegments() {
		if seg.Raw() != raw {
			continue
		}
		if n == 0 {
			return seg
		}
		n--
	}
	require.FailNow(t, "leaf not found", "%q", raw)
	return nil
}

func TestProcessSpacing(t *testing.T) {
	ws := func(s string) *segment.Raw { return segment.NewRaw("whitespace", s, nil) }
	nl := func() *segment.Raw { return segment.NewRaw("newline", "\n", nil) }
	eof := func() *segment.Raw { return segment.NewRaw("end_of_file", "", nil) }
	comment := func() *segment.Raw { return segment.NewRaw("inline_comment", "--x", nil) }

	tests := []struct {
		name        string
		buffer      []*segment.Raw
		strip       bool
		wantPruned  []string
		wantLast    []string
		wantRemoved []string
	}{
		{
			name:        "single space is kept",
			buffer:      []*segment.Raw{ws(" ")},
			wantPruned:  []string{" "},
			wantLast:    []string{" "},
			wantRemoved: []string{},
		},
		{
			name:        "trailing whitespace before a newline",
			buffer:      []*segment.Raw{ws("  "), nl()},
			wantPruned:  []string{"\n"},
			wantLast:    []string{},
			wantRemoved: []string{"  "},
		},
		{
			name:        "indent after a newline survives",
			buffer:      []*segment.Raw{ws(" "), nl(), ws("  ")},
			wantPruned:  []string{"\n", "  "},
			wantLast:    []string{"  "},
			wantRemoved: []string{" "},
		},
		{
			name:        "trailing whitespace before end of file",
			buffer:      []*segment.Raw{ws(" "), eof()},
			wantPruned:  []string{""},
			wantLast:    []string{},
			wantRemoved: []string{" "},
		},
		{
			name:        "stripped newline leaves the whitespace before it pending",
			buffer:      []*segment.Raw{ws(" "), nl()},
			strip:       true,
			wantPruned:  []string{" "},
			wantLast:    []string{" "},
			wantRemoved: []string{"\n"},
		},
		{
			name:        "strip newline then indent",
			buffer:      []*segment.Raw{nl(), ws("  ")},
			strip:       true,
			wantPruned:  []string{"  "},
			wantLast:    []string{"  "},
			wantRemoved: []string{"\n"},
		},
		{
			name:        "end of file is never stripped",
			buffer:      []*segment.Raw{ws(" "), eof()},
			strip:       true,
			wantPruned:  []string{""},
			wantLast:    []string{},
			wantRemoved: []string{" "},
		},
		{
			name:        "adjacent whitespace collapses to the first",
			buffer:      []*segment.Raw{ws(" "), ws("   ")},
			wantPruned:  []string{" "},
			wantLast:    []string{" "},
			wantRemoved: []string{"   "},
		},
		{
			name:        "content does not reset the pending run",
			buffer:      []*segment.Raw{ws(" "), comment(), ws(" "), nl()},
			wantPruned:  []string{"--x", "\n"},
			wantLast:    []string{},
			wantRemoved: []string{" ", " "},
		},
		{
			name:        "empty",
			buffer:      nil,
			wantPruned:  []string{},
			wantLast:    []string{},
			wantRemoved: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			pruned, last, removed := processSpacing(ctx, tt.buffer, tt.strip)
			assert.Equal(t, tt.wantPruned, texts(pruned))
			assert.Equal(t, tt.wantLast, texts(last))
			assert.Equal(t, tt.wantRemoved, texts(removed))

			again, _, removedAgain := processSpacing(ctx, pruned, tt.strip)
			assert.Empty(t, removedAgain, "processing is idempotent")
			assert.Equal(t, texts(pruned), texts(again))
		})
	}
}

const dottedTree = `
file:
- statement:
  - select_statement:
    - select_clause:
      - keyword: SELECT
      - whitespace: '  '
      - select_clause_element:
        - column_reference:
          - naked_identifier: a
          - whitespace: ' '
          - dot: .
          - naked_identifier: b
      - whitespace: ' '
      - comma: ','
      - select_clause_element:
        - column_reference:
          - naked_identifier: c
    - whitespace: ' '
    - from_clause:
      - keyword: FROM
      - whitespace: ' '
      - table_reference:
        - naked_identifier: tbl
- whitespace: '  '
- newline: "\n"
- end_of_file: ''
`

func TestResolveConstraints(t *testing.T) {
	ctx := context.Background()
	root := loadTree(t, dottedTree)
	dm := depthmap.FromParent(root)
	cfg, err := config.Default()
	require.NoError(t, err)

	block := func(raw *segment.Raw) *Block {
		di, err := dm.Lookup(ctx, raw)
		require.NoError(t, err)
		return NewBlock([]*segment.Raw{raw}, cfg, di)
	}

	selectKw := block(leafAt(t, root, "SELECT", 0))
	a := block(leafAt(t, root, "a", 0))
	dot := block(leafAt(t, root, ".", 0))
	comma := block(leafAt(t, root, ",", 0))
	c := block(leafAt(t, root, "c", 0))

	anyAfter := *a
	anyAfter.SpacingAfter = config.SpacingAny

	tests := []struct {
		name       string
		prev, next *Block
		strip      bool
		wantPre    string
		wantPost   string
		wantStrip  bool
	}{
		{name: "no blocks", wantPre: "single", wantPost: "single"},
		{name: "only prev", prev: comma, wantPre: "single", wantPost: "single"},
		{name: "only next", next: comma, wantPre: "single", wantPost: "touch"},
		{name: "no within override", prev: selectKw, next: a, wantPre: "single", wantPost: "single"},
		{name: "strip passes through", prev: comma, next: c, strip: true, wantPre: "single", wantPost: "single", wantStrip: true},
		{name: "inline within", prev: a, next: dot, wantPre: "touch", wantPost: "touch", wantStrip: true},
		{name: "any is never downgraded", prev: &anyAfter, next: dot, wantPre: "any", wantPost: "touch", wantStrip: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pre, post, strip, err := resolveConstraints(ctx, tt.prev, tt.next, tt.strip)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPre, pre)
			assert.Equal(t, tt.wantPost, post)
			assert.Equal(t, tt.wantStrip, strip)
		})
	}

	t.Run("touch within keeps newlines", func(t *testing.T) {
		touchy := *a
		touchy.StackSpacingConfigs = map[uuid.UUID]string{a.DepthInfo.StackIDs[len(a.DepthInfo.StackIDs)-1]: config.SpacingTouch}
		pre, post, strip, err := resolveConstraints(ctx, &touchy, dot, false)
		require.NoError(t, err)
		assert.Equal(t, "touch", pre)
		assert.Equal(t, "touch", post)
		assert.False(t, strip)
	})

	t.Run("unknown within value", func(t *testing.T) {
		broken := *a
		broken.StackSpacingConfigs = map[uuid.UUID]string{a.DepthInfo.StackIDs[len(a.DepthInfo.StackIDs)-1]: "sideways"}
		_, _, _, err := resolveConstraints(ctx, &broken, dot, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnexpectedConstraint))
	})

	t.Run("unrelated trees", func(t *testing.T) {
		other := loadTree(t, dottedTree)
		odm := depthmap.FromParent(other)
		di, err := odm.Lookup(ctx, leafAt(t, other, "a", 0))
		require.NoError(t, err)
		foreign := NewBlock([]*segment.Raw{leafAt(t, other, "a", 0)}, cfg, di)

		_, _, _, err = resolveConstraints(ctx, foreign, dot, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, depthmap.ErrNoCommonAncestor))
	})
}

func TestNewBlockStackConfigs(t *testing.T) {
	ctx := context.Background()
	root := loadTree(t, dottedTree)
	dm := depthmap.FromParent(root)
	cfg, err := config.Default()
	require.NoError(t, err)

	raw := leafAt(t, root, "a", 0)
	di, err := dm.Lookup(ctx, raw)
	require.NoError(t, err)
	b := NewBlock([]*segment.Raw{raw}, cfg, di)

	require.Len(t, b.StackSpacingConfigs, 1)
	refID := di.StackIDs[di.StackDepth-1]
	assert.Equal(t, config.SpacingInline, b.StackSpacingConfigs[refID])
	assert.Equal(t, "single", b.SpacingBefore)

	noDepth := NewBlock([]*segment.Raw{leafAt(t, root, ",", 0)}, cfg, nil)
	assert.Empty(t, noDepth.StackSpacingConfigs)
	assert.Equal(t, "touch", noDepth.SpacingBefore)
}

const alignedTree = `
file:
- select_clause:
  - select_clause_element:
    - naked_identifier: ab
    - whitespace: ' '
    - alias_expression:
      - naked_identifier: x
  - newline: "\n"
  - select_clause_element:
    - naked_identifier: cd
    - whitespace: ' '
    - alias_expression:
      - naked_identifier: y
  - newline: "\n"
  - select_clause_element:
    - naked_identifier: efghijk
    - whitespace: ' '
    - alias_expression:
      - naked_identifier: z
- end_of_file: ''
`

const bracketedAlignedTree = `
file:
- select_clause:
  - select_clause_element:
    - naked_identifier: ab
    - whitespace: ' '
    - alias_expression:
      - naked_identifier: x
  - newline: "\n"
  - select_clause_element:
    - naked_identifier: cd
    - whitespace: ' '
    - alias_expression:
      - naked_identifier: y
  - newline: "\n"
  - bracketed:
    - select_clause_element:
      - naked_identifier: efghijk
      - whitespace: ' '
      - alias_expression:
        - naked_identifier: z
- end_of_file: ''
`

const commentedAlignedTree = `
file:
- select_clause:
  - select_clause_element:
    - naked_identifier: ab
    - whitespace: ' '
    - block_comment: '/*c*/'
    - whitespace: ' '
    - alias_expression:
      - naked_identifier: x
  - newline: "\n"
  - select_clause_element:
    - naked_identifier: cd
    - whitespace: ' '
    - alias_expression:
      - naked_identifier: y
- end_of_file: ''
`

const sameLineTree = `
file:
- select_clause:
  - select_clause_element:
    - naked_identifier: ab
    - whitespace: ' '
    - alias_expression:
      - naked_identifier: x
  - comma: ','
  - whitespace: ' '
  - select_clause_element:
    - naked_identifier: efghijk
    - whitespace: ' '
    - alias_expression:
      - naked_identifier: z
- end_of_file: ''
`

func TestAlignedSpacing(t *testing.T) {
	tests := []struct {
		name  string
		tree  string
		next  string
		align config.Align
		want  string
	}{
		{
			name:  "widens to the longest sibling",
			tree:  alignedTree,
			next:  "x",
			align: config.Align{SegType: "alias_expression", Within: "select_clause"},
			want:  "      ",
		},
		{
			name:  "second line widens too",
			tree:  alignedTree,
			next:  "y",
			align: config.Align{SegType: "alias_expression", Within: "select_clause"},
			want:  "      ",
		},
		{
			name:  "longest sibling keeps one space",
			tree:  alignedTree,
			next:  "z",
			align: config.Align{SegType: "alias_expression", Within: "select_clause"},
			want:  " ",
		},
		{
			name:  "no scope",
			tree:  alignedTree,
			next:  "x",
			align: config.Align{SegType: "alias_expression", Within: "from_clause"},
			want:  " ",
		},
		{
			name:  "no within",
			tree:  alignedTree,
			next:  "x",
			align: config.Align{SegType: "alias_expression"},
			want:  " ",
		},
		{
			name:  "siblings behind a boundary are ignored",
			tree:  bracketedAlignedTree,
			next:  "x",
			align: config.Align{SegType: "alias_expression", Within: "select_clause", Boundary: "bracketed"},
			want:  " ",
		},
		{
			name:  "without the boundary they count",
			tree:  bracketedAlignedTree,
			next:  "x",
			align: config.Align{SegType: "alias_expression", Within: "select_clause"},
			want:  "      ",
		},
		{
			name:  "boundary stops the scope search",
			tree:  bracketedAlignedTree,
			next:  "z",
			align: config.Align{SegType: "alias_expression", Within: "select_clause", Boundary: "bracketed"},
			want:  " ",
		},
		{
			name:  "whitespace right of every sibling keeps one space",
			tree:  commentedAlignedTree,
			next:  "x",
			align: config.Align{SegType: "alias_expression", Within: "select_clause"},
			want:  " ",
		},
		{
			name:  "sibling on the same line",
			tree:  sameLineTree,
			next:  "x",
			align: config.Align{SegType: "alias_expression", Within: "select_clause"},
			want:  " ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := loadTree(t, tt.tree)
			next := leafAt(t, root, tt.next, 0)

			raws := root.RawSegments()
			var ws *segment.Raw
			for i, r := range raws {
				if r.ID() == next.ID() {
					ws = raws[i-1]
				}
			}
			require.NotNil(t, ws)
			require.True(t, ws.IsType("whitespace"))

			got := alignedSpacing(context.Background(), root, ws, next, tt.align)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlignedSpacingColumns(t *testing.T) {
	root := loadTree(t, alignedTree)
	align := config.Align{SegType: "alias_expression", Within: "select_clause"}

	var cols []int
	for _, name := range []string{"x", "y", "z"} {
		next := leafAt(t, root, name, 0)
		loc, ok := next.StartLoc()
		require.True(t, ok)

		var ws *segment.Raw
		raws := root.RawSegments()
		for i, r := range raws {
			if r.ID() == next.ID() {
				ws = raws[i-1]
			}
		}
		wsLoc, ok := ws.StartLoc()
		require.True(t, ok)

		assert.Equal(t, wsLoc.Character+1, loc.Character, "precondition: one space before %s", name)
		got := alignedSpacing(context.Background(), root, ws, next, align)
		cols = append(cols, wsLoc.Character+len(got))
	}

	assert.Equal(t, []int{9, 9, 9}, cols)
}
