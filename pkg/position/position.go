package position

import (
	"fmt"

	"github.com/apparentlymart/go-textseg/v13/textseg"
)

// Place is a 1-based line and column in the source text
type Place struct {
	Line      int
	Character int
}

// Before reports whether p is strictly earlier in the text than other.
func (p Place) Before(other Place) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

func (p Place) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Marker records where a leaf sits in the source.
//
// Source is where the parser found the leaf. Working is where the leaf sits
// once earlier edits of the same pass are taken into account. A freshly
// loaded tree has both equal.
type Marker struct {
	// Offset is the byte offset of the leaf in the source text
	Offset int

	Source  Place
	Working Place

	// TabWidth is the column width of a tab stop, values below 2 count a tab
	// as a single column
	TabWidth int
}

func NewMarker(offset int, loc Place, tabWidth int) *Marker {
	return &Marker{
		Offset:   offset,
		Source:   loc,
		Working:  loc,
		TabWidth: tabWidth,
	}
}

func (m *Marker) SourceLoc() Place {
	return m.Source
}

func (m *Marker) WorkingLoc() Place {
	return m.Working
}

// WorkingLocAfter returns the working location directly after raw, assuming
// raw starts at this marker.
func (m *Marker) WorkingLocAfter(raw string) Place {
	return LocAfter(m.Working, raw, m.TabWidth)
}

// Advance returns the marker for text starting directly after raw.
func (m *Marker) Advance(raw string) *Marker {
	return &Marker{
		Offset:   m.Offset + len(raw),
		Source:   LocAfter(m.Source, raw, m.TabWidth),
		Working:  LocAfter(m.Working, raw, m.TabWidth),
		TabWidth: m.TabWidth,
	}
}

func (m *Marker) String() string {
	return fmt.Sprintf("%s@%d", m.Working, m.Offset)
}

// LocAfter walks raw grapheme by grapheme from start. Newlines move to the
// first column of the next line, tabs jump to the next tab stop.
func LocAfter(start Place, raw string, tabWidth int) Place {
	loc := start
	for _, cluster := range graphemes(raw) {
		switch cluster {
		case "\n", "\r\n":
			loc.Line++
			loc.Character = 1
		case "\t":
			loc.Character = nextTabStop(loc.Character, tabWidth)
		default:
			loc.Character++
		}
	}
	return loc
}

// Width is the number of columns raw occupies when it starts at column col.
// It is only meaningful for text without line breaks.
func Width(raw string, col int, tabWidth int) int {
	return LocAfter(Place{Line: 1, Character: col}, raw, tabWidth).Character - col
}

func nextTabStop(col int, tabWidth int) int {
	if tabWidth < 2 {
		return col + 1
	}
	return col + tabWidth - ((col - 1) % tabWidth)
}

func graphemes(raw string) []string {
	if raw == "" {
		return nil
	}
	tokens, err := textseg.AllTokens([]byte(raw), textseg.ScanGraphemeClusters)
	if err != nil {
		// invalid utf-8 never errors in the scanner, fall back to bytes anyway
		out := make([]string, len(raw))
		for i := 0; i < len(raw); i++ {
			out[i] = raw[i : i+1]
		}
		return out
	}
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = string(tok)
	}
	return out
}
