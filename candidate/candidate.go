// Package candidate keeps a cyclic cursor over the compiler's table hints so
// keyboard navigation stays valid while the hint list changes size.
package candidate

import "github.com/bawdo/pine/ast"

// Normalize maps index into [0, count). A count of zero yields 0. Offsets of
// any magnitude wrap, including negative ones.
func Normalize(index, count int) int {
	if count <= 0 {
		return 0
	}
	i := index % count
	if i < 0 {
		i += count
	}
	return i
}

// Navigator holds the raw candidate index. The index is only normalized when
// resolved against the hint list current at derivation time.
type Navigator struct {
	index *int
}

// Index returns the raw index and whether navigation has started.
func (n *Navigator) Index() (int, bool) {
	if n.index == nil {
		return 0, false
	}
	return *n.index, true
}

// Next moves by offset. The first navigation selects index 0 regardless of
// offset.
func (n *Navigator) Next(offset int) {
	if n.index == nil {
		i := 0
		n.index = &i
		return
	}
	i := *n.index + offset
	n.index = &i
}

// Reset clears the cursor; no candidate is active afterwards.
func (n *Navigator) Reset() {
	n.index = nil
}

// Resolve normalizes the index against hints, stores the normalized value so
// later offsets start from a bounded index, and returns the active hint.
func (n *Navigator) Resolve(hints []ast.TableHint) (*ast.TableHint, int) {
	if n.index == nil || len(hints) == 0 {
		return nil, 0
	}
	i := Normalize(*n.index, len(hints))
	n.index = &i
	h := hints[i]
	return &h, i
}
