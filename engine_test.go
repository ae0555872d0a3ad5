// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset_test

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
	"github.com/cockroachdb/nestedset/internal/nestedtest"
	"github.com/cockroachdb/nestedset/kvstore"
	"github.com/stretchr/testify/require"
)

type engine = nestedset.Engine[*nestedset.Node]

func newEngine(t testing.TB, opts *nestedset.Options) (*engine, *kvstore.Store) {
	t.Helper()
	store, err := kvstore.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	if opts == nil {
		opts = &nestedset.Options{Logger: nestedset.NoopLogger{}}
	}
	e, err := nestedset.New(store, opts)
	require.NoError(t, err)
	return e, store
}

func newFixture(t testing.TB) *engine {
	t.Helper()
	e, _ := newEngine(t, nil)
	require.NoError(t, nestedtest.BuildFixture(context.Background(), e))
	return e
}

func dump(t testing.TB, e *engine, treeKey int64) string {
	t.Helper()
	rows, err := e.Dump(context.Background(), treeKey)
	require.NoError(t, err)
	return nestedtest.FormatRows(rows)
}

func argInt(t *testing.T, td *datadriven.TestData, key string) (int64, bool) {
	for _, arg := range td.CmdArgs {
		if arg.Key == key {
			v, err := strconv.ParseInt(arg.Vals[0], 10, 64)
			require.NoError(t, err)
			return v, true
		}
	}
	return 0, false
}

func argString(td *datadriven.TestData, key, def string) string {
	for _, arg := range td.CmdArgs {
		if arg.Key == key {
			return arg.Vals[0]
		}
	}
	return def
}

func argList(td *datadriven.TestData, key string) []string {
	for _, arg := range td.CmdArgs {
		if arg.Key == key {
			return arg.Vals
		}
	}
	return nil
}

func mustArgInt(t *testing.T, td *datadriven.TestData, key string) int64 {
	v, ok := argInt(t, td, key)
	if !ok {
		td.Fatalf(t, "missing argument %s", key)
	}
	return v
}

func formatNodes(nodes []*nestedset.Node) string {
	if len(nodes) == 0 {
		return "(none)\n"
	}
	return nestedtest.FormatNodes(nodes)
}

// TestEngine runs the scenarios in testdata/engine. Structural commands print
// "ok" or the error; reads print nodes as "<id>(parent <p>) <title>" and dump
// prints the rows of a tree indented by level.
func TestEngine(t *testing.T) {
	ctx := context.Background()
	var e *engine
	datadriven.RunTest(t, "testdata/engine", func(t *testing.T, td *datadriven.TestData) string {
		result := func(err error) string {
			if err != nil {
				return fmt.Sprintf("error: %s\n", err)
			}
			return "ok\n"
		}
		created := func(n *nestedset.Node, err error) string {
			if err != nil {
				return result(err)
			}
			return fmt.Sprintf("created %d\n", n.PrimaryKey())
		}
		title := func() nestedset.Attributes {
			return nestedset.Attributes{"title": argString(td, "title", "new")}
		}

		switch td.Cmd {
		case "reset":
			e, _ = newEngine(t, nil)
			if td.HasArg("fixture") {
				require.NoError(t, nestedtest.BuildFixture(ctx, e))
				return dump(t, e, 0)
			}
			return ""

		case "plant":
			return created(e.PlantTree(ctx, title(), mustArgInt(t, td, "tree")))

		case "append":
			return created(e.InsertIntoTree(ctx, title(), mustArgInt(t, td, "tree")))

		case "insert":
			return created(e.InsertIntoParent(ctx, title(), mustArgInt(t, td, "parent")))

		case "edit":
			attrs := nestedset.Attributes{}
			for _, line := range crstrings.Lines(td.Input) {
				k, v, _ := strings.Cut(line, "=")
				attrs[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
			return result(e.UpdateAttributes(ctx, mustArgInt(t, td, "id"), attrs))

		case "delete":
			return result(e.Delete(ctx, mustArgInt(t, td, "id")))

		case "move":
			id := mustArgInt(t, td, "id")
			if target, ok := argInt(t, td, "into"); ok {
				return result(e.MoveIntoParent(ctx, id, target))
			}
			if target, ok := argInt(t, td, "before"); ok {
				return result(e.MoveToNeighbor(ctx, id, target, nestedset.Before))
			}
			if target, ok := argInt(t, td, "after"); ok {
				return result(e.MoveToNeighbor(ctx, id, target, nestedset.After))
			}
			td.Fatalf(t, "move requires into, before or after")
			return ""

		case "find":
			n, ok, err := e.FindByPrimaryKey(ctx, mustArgInt(t, td, "id"), argList(td, "attrs"))
			if err != nil {
				return result(err)
			}
			if !ok {
				return "not found\n"
			}
			return formatNodes([]*nestedset.Node{n})

		case "roots", "children", "descendants", "ancestors":
			var nodes []*nestedset.Node
			var err error
			attrs := argList(td, "attrs")
			switch td.Cmd {
			case "roots":
				nodes, err = e.FindRoots(ctx, mustArgInt(t, td, "tree"), attrs)
			case "children":
				nodes, err = e.FindChildrenByParentPrimaryKey(ctx, mustArgInt(t, td, "id"), attrs)
			case "descendants":
				nodes, err = e.FindDescendants(ctx, mustArgInt(t, td, "id"), attrs)
			case "ancestors":
				nodes, err = e.FindAncestors(ctx, mustArgInt(t, td, "id"), attrs)
			}
			if err != nil {
				return result(err)
			}
			return formatNodes(nodes)

		case "dump":
			out := dump(t, e, mustArgInt(t, td, "tree"))
			if out == "" {
				return "(empty)\n"
			}
			return out

		case "check":
			return result(e.Check(ctx, mustArgInt(t, td, "tree")))

		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}

func TestFindFixture(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t)

	n, ok, err := e.FindByPrimaryKey(ctx, 6, nil)
	require.NoError(t, err)
	require.True(t, ok)
	p, ok := n.ParentPrimaryKey()
	require.True(t, ok)
	require.Equal(t, int64(3), p)
	require.Equal(t, int64(0), n.TreeKey())
	require.Equal(t, "n6", n.Title())

	children, err := e.FindChildrenByParentPrimaryKey(ctx, 3, nil)
	require.NoError(t, err)
	var ids []int64
	for _, c := range children {
		ids = append(ids, c.PrimaryKey())
	}
	require.Equal(t, []int64{4, 6, 8}, ids)

	roots, err := e.FindRoots(ctx, 0, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Equal(t, int64(1), roots[0].PrimaryKey())
	_, ok = roots[0].ParentPrimaryKey()
	require.False(t, ok)

	_, ok, err = e.FindByPrimaryKey(ctx, 1000, nil)
	require.NoError(t, err)
	require.False(t, ok)

	children, err = e.FindChildrenByParentPrimaryKey(ctx, 1000, nil)
	require.NoError(t, err)
	require.Empty(t, children)
}

func TestInsertFixture(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t)

	n, err := e.InsertIntoParent(ctx, nestedset.Attributes{"title": "x"}, 6)
	require.NoError(t, err)
	require.Equal(t, int64(12), n.PrimaryKey())
	p, _ := n.ParentPrimaryKey()
	require.Equal(t, int64(6), p)
	require.Contains(t, dump(t, e, 0), "      12 [12,13] L4 x\n")

	n, err = e.InsertIntoTree(ctx, nestedset.Attributes{"title": "y"}, 0)
	require.NoError(t, err)
	require.Equal(t, int64(13), n.PrimaryKey())
	require.Contains(t, dump(t, e, 0), "13 [23,24] L1 y\n")

	_, err = e.InsertIntoParent(ctx, nestedset.Attributes{"title": "z"}, 100)
	require.True(t, errors.Is(err, nestedset.ErrNotFound), "%v", err)
	require.NoError(t, e.Check(ctx, 0))
}

func TestMoveErrors(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t)
	before := dump(t, e, 0)

	testCases := []struct {
		name string
		fn   func() error
		mark error
		msg  string
	}{
		{
			name: "different trees",
			fn:   func() error { return e.MoveToNeighbor(ctx, 11, 1, nestedset.Before) },
			mark: nestedset.ErrInvalidOperation,
			msg:  "node 11 and neighbor 1 belong to different trees",
		},
		{
			name: "own descendant",
			fn:   func() error { return e.MoveIntoParent(ctx, 1, 2) },
			mark: nestedset.ErrInvalidOperation,
			msg:  "cannot move node 1 into its own subtree",
		},
		{
			name: "next to own descendant",
			fn:   func() error { return e.MoveToNeighbor(ctx, 3, 7, nestedset.After) },
			mark: nestedset.ErrInvalidOperation,
			msg:  "cannot move node 3 into its own subtree",
		},
		{
			name: "missing node",
			fn:   func() error { return e.MoveToNeighbor(ctx, 1000, 2, nestedset.After) },
			mark: nestedset.ErrNotFound,
			msg:  "node 1000 not found",
		},
		{
			name: "missing parent",
			fn:   func() error { return e.MoveIntoParent(ctx, 2, 1000) },
			mark: nestedset.ErrNotFound,
			msg:  "parent 1000 not found",
		},
		{
			name: "missing node and neighbor",
			fn:   func() error { return e.MoveToNeighbor(ctx, 1000, 2000, nestedset.Before) },
			mark: nestedset.ErrNotFound,
			msg:  "neighbor 2000 not found",
		},
		{
			name: "missing node and parent",
			fn:   func() error { return e.MoveIntoParent(ctx, 1000, 2000) },
			mark: nestedset.ErrNotFound,
			msg:  "parent 2000 not found",
		},
		{
			name: "self",
			fn:   func() error { return e.MoveIntoParent(ctx, 4, 4) },
			mark: nestedset.ErrInvalidOperation,
			msg:  "cannot move node 4 relative to itself",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fn()
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.mark), "%v", err)
			require.True(t, nestedset.IsValidation(err))
			require.EqualError(t, err, tc.msg)
			require.Equal(t, before, dump(t, e, 0))
		})
	}
}

func TestAttributes(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, &nestedset.Options{
		Logger:            nestedset.NoopLogger{},
		Attributes:        []string{"title", "code", "owner"},
		DefaultProjection: []string{"title"},
	})

	in := nestedset.Attributes{"title": "root", "code": "R"}
	root, err := e.PlantTree(ctx, in, 0)
	require.NoError(t, err)
	// The engine does not alias caller maps in either direction.
	in["title"] = "changed"
	out := root.Attributes()
	out["title"] = "changed too"
	require.Equal(t, "root", root.Title())

	n, ok, err := e.FindByPrimaryKey(ctx, root.PrimaryKey(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, nestedset.Attributes{"title": "root"}, n.Attributes())

	n, _, err = e.FindByPrimaryKey(ctx, root.PrimaryKey(), []string{"code", "bogus", "code", "owner"})
	require.NoError(t, err)
	require.Equal(t, nestedset.Attributes{"code": "R"}, n.Attributes())

	n, _, err = e.FindByPrimaryKey(ctx, root.PrimaryKey(), []string{})
	require.NoError(t, err)
	require.Empty(t, n.Attributes())

	_, err = e.InsertIntoParent(ctx, nestedset.Attributes{"title": "x", "colour": "red"}, root.PrimaryKey())
	require.True(t, errors.Is(err, nestedset.ErrInvalidOperation), "%v", err)

	require.NoError(t, e.UpdateAttributes(ctx, root.PrimaryKey(), nestedset.Attributes{"owner": "me"}))
	n, _, err = e.FindByPrimaryKey(ctx, root.PrimaryKey(), []string{"title", "code", "owner"})
	require.NoError(t, err)
	require.Equal(t, nestedset.Attributes{"title": "root", "code": "R", "owner": "me"}, n.Attributes())

	// Updating an absent node is a no-op.
	require.NoError(t, e.UpdateAttributes(ctx, 1000, nestedset.Attributes{"owner": "me"}))
	require.NoError(t, e.UpdateAttributes(ctx, root.PrimaryKey(), nil))
	err = e.UpdateAttributes(ctx, root.PrimaryKey(), nestedset.Attributes{"left": "1"})
	require.True(t, errors.Is(err, nestedset.ErrInvalidOperation), "%v", err)
}

type labelledNode struct {
	id, parent int64
	treeKey    int64
	label      string
}

func (n labelledNode) PrimaryKey() int64 { return n.id }
func (n labelledNode) ParentPrimaryKey() (int64, bool) {
	return n.parent, n.parent != 0
}
func (n labelledNode) TreeKey() int64 { return n.treeKey }
func (n labelledNode) Attributes() nestedset.Attributes {
	return nestedset.Attributes{"title": n.label}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	store, err := kvstore.OpenMem()
	require.NoError(t, err)
	defer store.Close()

	e, err := nestedset.NewWithFactory(store, &nestedset.Options{Logger: nestedset.NoopLogger{}},
		func(info nestedset.NodeInfo) labelledNode {
			return labelledNode{
				id: info.ID, parent: info.ParentID, treeKey: info.TreeKey,
				label: strings.ToUpper(info.Attrs["title"]),
			}
		})
	require.NoError(t, err)
	root, err := e.PlantTree(ctx, nestedset.Attributes{"title": "a"}, 3)
	require.NoError(t, err)
	child, err := e.InsertIntoParent(ctx, nestedset.Attributes{"title": "b"}, root.PrimaryKey())
	require.NoError(t, err)
	require.Equal(t, labelledNode{id: child.id, parent: root.id, treeKey: 3, label: "B"}, child)

	nodes, err := e.FindAncestors(ctx, child.id, nil)
	require.NoError(t, err)
	require.Equal(t, []labelledNode{{id: root.id, treeKey: 3, label: "A"}}, nodes)

	_, err = nestedset.NewWithFactory[labelledNode](store, nil, nil)
	require.Error(t, err)
	_, err = nestedset.New(nil, nil)
	require.Error(t, err)
	_, err = nestedset.New(store, &nestedset.Options{Attributes: []string{"id"}})
	require.Error(t, err)
}
