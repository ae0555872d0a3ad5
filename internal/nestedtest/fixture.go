// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package nestedtest provides the reference tree used throughout the tests
// and helpers to render trees as text.
package nestedtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
)

// FixtureParents lists, for nodes 1 through 10 of tree 0, the parent each is
// appended to (0 for the root). Appending in id order yields:
//
//	1 [1,20]
//	  2 [2,3]
//	  3 [4,17]
//	    4 [5,8]
//	      5 [6,7]
//	    6 [9,12]
//	      7 [10,11]
//	    8 [13,16]
//	      9 [14,15]
//	  10 [18,19]
//
// Node 11 is the single root of tree 1.
var FixtureParents = []int64{0, 1, 1, 3, 4, 3, 6, 3, 8, 1}

// BuildFixture populates an empty store with the reference tree. Node i is
// titled "n<i>". It fails if the store assigns identities other than 1
// through 11.
func BuildFixture(ctx context.Context, e *nestedset.Engine[*nestedset.Node]) error {
	title := func(id int) nestedset.Attributes {
		return nestedset.Attributes{"title": fmt.Sprintf("n%d", id)}
	}
	check := func(n *nestedset.Node, want int) error {
		if n.PrimaryKey() != int64(want) {
			return errors.Newf("fixture: node %d created with id %d", want, n.PrimaryKey())
		}
		return nil
	}
	for i, parent := range FixtureParents {
		id := i + 1
		var n *nestedset.Node
		var err error
		if parent == 0 {
			n, err = e.PlantTree(ctx, title(id), 0)
		} else {
			n, err = e.InsertIntoParent(ctx, title(id), parent)
		}
		if err != nil {
			return err
		}
		if err := check(n, id); err != nil {
			return err
		}
	}
	n, err := e.PlantTree(ctx, title(11), 1)
	if err != nil {
		return err
	}
	return check(n, 11)
}

// FormatRows renders rows, ordered by left bound, one per line and indented
// by level:
//
//	1 [1,4] L1 n1
//	  2 [2,3] L2 n2
func FormatRows(rows []nestedset.Row) string {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s%d [%d,%d] L%d", strings.Repeat("  ", max(int(r.Level)-1, 0)),
			r.ID, r.Left, r.Right, r.Level)
		if t, ok := r.Attrs["title"]; ok {
			fmt.Fprintf(&b, " %s", t)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatNodes renders nodes as "<id>(parent <p>) <title>" lines, or
// "<id>(root) <title>" for nodes without a parent.
func FormatNodes[N nestedset.Nested](nodes []N) string {
	var b strings.Builder
	for _, n := range nodes {
		if p, ok := n.ParentPrimaryKey(); ok {
			fmt.Fprintf(&b, "%d(parent %d)", n.PrimaryKey(), p)
		} else {
			fmt.Fprintf(&b, "%d(root)", n.PrimaryKey())
		}
		if t, ok := n.Attributes()["title"]; ok {
			fmt.Fprintf(&b, " %s", t)
		}
		b.WriteString("\n")
	}
	return b.String()
}
