package segment

// PathStep is one level of the route from a branch down to a descendant:
// the ancestor, the index of the child taken and the number of children
type PathStep struct {
	Segment *Branch
	Idx     int
	Len     int
}

// RawWithAncestors pairs a leaf with its root-first path
type RawWithAncestors struct {
	Raw   *Raw
	Stack []PathStep
}

// PathTo returns the steps from b down to target, root first. The result
// includes b and excludes target. It is empty if target is b or is not a
// descendant.
func (b *Branch) PathTo(target Segment) []PathStep {
	steps, _ := b.pathTo(target)
	return steps
}

func (b *Branch) pathTo(target Segment) ([]PathStep, bool) {
	if b.id == target.ID() {
		return nil, true
	}
	for idx, child := range b.children {
		step := PathStep{Segment: b, Idx: idx, Len: len(b.children)}
		if child.ID() == target.ID() {
			return []PathStep{step}, true
		}
		sub, ok := child.(*Branch)
		if !ok {
			continue
		}
		if rest, found := sub.pathTo(target); found {
			return append([]PathStep{step}, rest...), true
		}
	}
	return nil, false
}

// RecursiveCrawl returns b and every descendant of any of types, pre-order.
func (b *Branch) RecursiveCrawl(types ...string) []Segment {
	var out []Segment
	var walk func(seg Segment)
	walk = func(seg Segment) {
		if seg.IsType(types...) {
			out = append(out, seg)
		}
		if br, ok := seg.(*Branch); ok {
			for _, child := range br.children {
				walk(child)
			}
		}
	}
	walk(b)
	return out
}

// RawSegmentsWithAncestors returns every leaf under b with its path, in a
// single walk of the tree.
func (b *Branch) RawSegmentsWithAncestors() []RawWithAncestors {
	var out []RawWithAncestors
	var walk func(br *Branch, stack []PathStep)
	walk = func(br *Branch, stack []PathStep) {
		for idx, child := range br.children {
			here := append(stack[:len(stack):len(stack)], PathStep{Segment: br, Idx: idx, Len: len(br.children)})
			switch c := child.(type) {
			case *Raw:
				out = append(out, RawWithAncestors{Raw: c, Stack: here})
			case *Branch:
				walk(c, here)
			}
		}
	}
	walk(b, nil)
	return out
}
