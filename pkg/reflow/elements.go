// Package reflow decides the whitespace between adjacent pieces of code and
// expresses the corrections as edits.
//
// A tree is read as alternating elements. A Block is content which is never
// edited here, a Point is the (possibly empty) run of whitespace and line
// breaks between two blocks. Blocks carry the spacing they want on each side,
// points carry nothing and are respaced from the blocks around them.
package reflow

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/walteh/sqlreflow/pkg/config"
	"github.com/walteh/sqlreflow/pkg/depthmap"
	"github.com/walteh/sqlreflow/pkg/segment"
)

// Configurer maps the classes of a run of segments, and optionally where it
// sits in the tree, to spacing rules. *config.ReflowConfig implements it.
type Configurer interface {
	GetBlockConfig(classTypes segment.ClassTypes, depth *depthmap.DepthInfo) config.BlockConfig
}

var _ Configurer = (*config.ReflowConfig)(nil)

// Element is either a *Block or a *Point
type Element interface {
	RawSegments() []*segment.Raw
	Raw() string
	fmt.Stringer
}

// Block is a run of content with the spacing it wants on either side
type Block struct {
	Segments      []*segment.Raw
	SpacingBefore string
	SpacingAfter  string
	DepthInfo     *depthmap.DepthInfo

	// StackSpacingConfigs maps the identity of every ancestor which sets
	// spacing_within to that value
	StackSpacingConfigs map[uuid.UUID]string
}

// NewBlock resolves the spacing of segments, which sit at depth. A nil depth
// only uses the classes of the segments themselves.
func NewBlock(segments []*segment.Raw, cfg Configurer, depth *depthmap.DepthInfo) *Block {
	classTypes := segment.ClassTypes{}
	for _, seg := range segments {
		classTypes = classTypes.Union(seg.ClassTypes())
	}
	bc := cfg.GetBlockConfig(classTypes, depth)

	stackConfigs := map[uuid.UUID]string{}
	if depth != nil {
		for i := 0; i < depth.StackDepth; i++ {
			within := cfg.GetBlockConfig(depth.StackClassTypes[i], nil).SpacingWithin
			if within != "" {
				stackConfigs[depth.StackIDs[i]] = within
			}
		}
	}

	return &Block{
		Segments:            segments,
		SpacingBefore:       bc.SpacingBefore,
		SpacingAfter:        bc.SpacingAfter,
		DepthInfo:           depth,
		StackSpacingConfigs: stackConfigs,
	}
}

func (b *Block) RawSegments() []*segment.Raw { return b.Segments }
func (b *Block) Raw() string                 { return joinRaw(b.Segments) }

func (b *Block) first() *segment.Raw { return b.Segments[0] }
func (b *Block) last() *segment.Raw  { return b.Segments[len(b.Segments)-1] }

func (b *Block) String() string {
	return fmt.Sprintf("Block(%q, before=%s, after=%s)", b.Raw(), b.SpacingBefore, b.SpacingAfter)
}

// Point is the editable run between two blocks
type Point struct {
	Segments []*segment.Raw
}

func NewPoint(segments ...*segment.Raw) *Point {
	return &Point{Segments: segments}
}

func (p *Point) RawSegments() []*segment.Raw { return p.Segments }
func (p *Point) Raw() string                 { return joinRaw(p.Segments) }

// NumNewlines counts the line breaks in the point.
func (p *Point) NumNewlines() int {
	n := 0
	for _, seg := range p.Segments {
		if seg.IsType("newline") {
			n++
		}
	}
	return n
}

func (p *Point) String() string {
	return fmt.Sprintf("Point(%q)", p.Raw())
}

func joinRaw(segments []*segment.Raw) string {
	var sb strings.Builder
	for _, seg := range segments {
		sb.WriteString(seg.Raw())
	}
	return sb.String()
}
