// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Shift opens (Delta > 0) or closes (Delta < 0) a gap in a tree: every row
// with Right >= From gets Right += Delta, and every row with Left >= From
// additionally gets Left += Delta.
type Shift struct {
	TreeKey int64
	From    int64
	Delta   int64
}

// openGap returns the shift making room for a new last child of a node
// whose Right bound is at.
func openGap(treeKey, at int64) Shift {
	return Shift{TreeKey: treeKey, From: at, Delta: 2}
}

// closeGap returns the shift compacting a tree after the subtree b has been
// deleted.
func closeGap(b Bounds) Shift {
	return Shift{TreeKey: b.TreeKey, From: b.Right, Delta: -b.Width()}
}

// Apply returns the bounds of a row after the shift. The second return value
// is false if the row is not affected.
func (s Shift) Apply(b Bounds) (Bounds, bool) {
	if b.TreeKey != s.TreeKey || b.Right < s.From || s.Delta == 0 {
		return b, false
	}
	b.Right += s.Delta
	if b.Left >= s.From {
		b.Left += s.Delta
	}
	return b, true
}

// SafeFormat implements redact.SafeFormatter.
func (s Shift) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("shift t%d from %d by %+d", redact.SafeInt(s.TreeKey), redact.SafeInt(s.From),
		redact.SafeInt(s.Delta))
}

// String implements fmt.Stringer.
func (s Shift) String() string {
	return redact.StringWithoutMarkers(s)
}

// Place selects on which side of a neighbor a moved node lands.
type Place int8

const (
	// Before places the node immediately before its neighbor.
	Before Place = iota
	// After places the node immediately after its neighbor.
	After
)

// String implements fmt.Stringer.
func (p Place) String() string {
	switch p {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "unknown"
	}
}

// ParsePlace parses "before" or "after".
func ParsePlace(s string) (Place, error) {
	switch s {
	case "before":
		return Before, nil
	case "after":
		return After, nil
	default:
		return 0, errors.Mark(errors.Newf("nestedset: unknown place %q", s), ErrInvalidOperation)
	}
}

// MovePlan is the closed form of a subtree move. The subtree [Left, Right]
// is relocated so that it ends immediately before Anchor, and every row
// between the old and the new position shifts by SkewTree in the opposite
// direction. It is applied as a single conditional update per row.
//
// When the anchor lies before the subtree (Forward is false):
//
//	affected:  Right >= Anchor && Left < Right(node)
//	subtree:   Left >= Left(node)    -> bounds += SkewEdit, level += SkewLevel
//	others:    Right < Left(node)    -> Right += SkewTree
//	           Left >= Anchor        -> Left += SkewTree
//
// When the anchor lies after the subtree (Forward is true):
//
//	affected:  Right > Left(node) && Left < Anchor
//	subtree:   Right <= Right(node)  -> bounds += SkewEdit, level += SkewLevel
//	others:    Left > Right(node)    -> Left -= SkewTree
//	           Right < Anchor        -> Right -= SkewTree
type MovePlan struct {
	TreeKey int64
	// Left and Right are the bounds of the moved node before the move.
	Left  int64
	Right int64
	// Anchor is the anchor right-key: the moved node ends at Anchor-1 in the
	// pre-move numbering.
	Anchor    int64
	SkewEdit  int64
	SkewTree  int64
	SkewLevel int64
	Forward   bool
}

// planMove computes the move plan for relocating node in front of anchor,
// changing its depth (and that of its subtree) by skewLevel.
func planMove(node Bounds, anchor, skewLevel int64) MovePlan {
	p := MovePlan{
		TreeKey:   node.TreeKey,
		Left:      node.Left,
		Right:     node.Right,
		Anchor:    anchor,
		SkewTree:  node.Width(),
		SkewLevel: skewLevel,
	}
	if anchor < node.Right {
		p.SkewEdit = anchor - node.Left
	} else {
		p.Forward = true
		p.SkewEdit = anchor - node.Left - p.SkewTree
	}
	return p
}

// isNoopMove returns true if a node already sits immediately before anchor,
// or immediately after the node whose Right is anchor-1.
func isNoopMove(node Bounds, anchor int64) bool {
	return anchor == node.Right+1 || anchor == node.Left
}

// Apply returns the bounds of a row after the move. The second return value
// is false if the row is not affected.
func (p MovePlan) Apply(b Bounds) (Bounds, bool) {
	if b.TreeKey != p.TreeKey {
		return b, false
	}
	if !p.Forward {
		if b.Right < p.Anchor || b.Left >= p.Right {
			return b, false
		}
		if b.Left >= p.Left {
			return p.applySubtree(b), true
		}
		changed := false
		if b.Right < p.Left {
			b.Right += p.SkewTree
			changed = true
		}
		if b.Left >= p.Anchor {
			b.Left += p.SkewTree
			changed = true
		}
		return b, changed
	}

	if b.Right <= p.Left || b.Left >= p.Anchor {
		return b, false
	}
	if b.Right <= p.Right {
		return p.applySubtree(b), true
	}
	changed := false
	if b.Left > p.Right {
		b.Left -= p.SkewTree
		changed = true
	}
	if b.Right < p.Anchor {
		b.Right -= p.SkewTree
		changed = true
	}
	return b, changed
}

func (p MovePlan) applySubtree(b Bounds) Bounds {
	b.Left += p.SkewEdit
	b.Right += p.SkewEdit
	b.Level += p.SkewLevel
	return b
}

// SafeFormat implements redact.SafeFormatter.
func (p MovePlan) SafeFormat(w redact.SafePrinter, _ rune) {
	dir := redact.SafeString("backward")
	if p.Forward {
		dir = "forward"
	}
	w.Printf("move t%d[%d,%d] %s to %d: edit %+d tree %d level %+d",
		redact.SafeInt(p.TreeKey), redact.SafeInt(p.Left), redact.SafeInt(p.Right), dir,
		redact.SafeInt(p.Anchor), redact.SafeInt(p.SkewEdit), redact.SafeInt(p.SkewTree),
		redact.SafeInt(p.SkewLevel))
}

// String implements fmt.Stringer.
func (p MovePlan) String() string {
	return redact.StringWithoutMarkers(p)
}
