// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import "slices"

// CheckInvariants verifies that rows form a well-nested forest for a single
// tree key: intervals are disjoint or strictly nested, every row's level is
// one more than that of its innermost container (1 for roots), and the
// endpoints of all rows partition [1, 2N]. The rows need not be sorted.
//
// The first violation found is returned as an error marked ErrCorruption.
func CheckInvariants(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	sorted := slices.Clone(rows)
	slices.SortFunc(sorted, func(a, b Row) int {
		switch {
		case a.Left < b.Left:
			return -1
		case a.Left > b.Left:
			return +1
		default:
			return 0
		}
	})

	treeKey := sorted[0].TreeKey
	n := int64(len(sorted))
	seen := make([]bool, 2*n+1)
	mark := func(r Row, pos int64) error {
		if pos < 1 || pos > 2*n {
			return CorruptionErrorf("node %d: bound %d outside [1, %d]", r.ID, pos, 2*n)
		}
		if seen[pos] {
			return CorruptionErrorf("node %d: bound %d used twice", r.ID, pos)
		}
		seen[pos] = true
		return nil
	}

	var stack []Row
	for _, r := range sorted {
		if r.TreeKey != treeKey {
			return CorruptionErrorf("node %d: tree %d mixed with tree %d", r.ID, r.TreeKey, treeKey)
		}
		if r.Left >= r.Right {
			return CorruptionErrorf("node %d: left %d not below right %d", r.ID, r.Left, r.Right)
		}
		if err := mark(r, r.Left); err != nil {
			return err
		}
		if err := mark(r, r.Right); err != nil {
			return err
		}
		for len(stack) > 0 && stack[len(stack)-1].Right < r.Left {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			if r.Level != 1 {
				return CorruptionErrorf("node %d: root at level %d", r.ID, r.Level)
			}
		} else {
			p := stack[len(stack)-1]
			if r.Right > p.Right {
				return CorruptionErrorf("node %d %s overlaps node %d %s", r.ID, r.Bounds, p.ID, p.Bounds)
			}
			if r.Level != p.Level+1 {
				return CorruptionErrorf("node %d: level %d inside node %d at level %d",
					r.ID, r.Level, p.ID, p.Level)
			}
		}
		stack = append(stack, r)
	}
	return nil
}
