// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type engine = nestedset.Engine[*nestedset.Node]

type runFunc func(ctx context.Context, eng *engine, w io.Writer, args []string) error

// run adapts fn to a cobra RunE, opening the store first.
func (e *env) run(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, err := e.Engine(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, eng, cmd.OutOrStdout(), args)
	}
}

func parseKey(s, what string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Newf("invalid %s %q", what, s)
	}
	return v, nil
}

func formatAttrs(a nestedset.Attributes) string {
	var b strings.Builder
	for i, k := range a.Keys() {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s=%s", k, a[k])
	}
	return b.String()
}

func printNodes(w io.Writer, nodes []*nestedset.Node) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"id", "parent", "attributes"})
	for _, n := range nodes {
		var parent string
		if p, ok := n.ParentPrimaryKey(); ok {
			parent = strconv.FormatInt(p, 10)
		}
		tbl.Append([]string{strconv.FormatInt(n.PrimaryKey(), 10), parent, formatAttrs(n.Attributes())})
	}
	tbl.Render()
}

func printRows(w io.Writer, rows []nestedset.Row) {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"id", "left", "right", "level", "attributes"})
	for _, r := range rows {
		tbl.Append([]string{
			strconv.FormatInt(r.ID, 10),
			strconv.FormatInt(r.Left, 10),
			strconv.FormatInt(r.Right, 10),
			strconv.FormatInt(r.Level, 10),
			formatAttrs(r.Attrs),
		})
	}
	tbl.Render()
}

func treeCommands(e *env) []*cobra.Command {
	withAttrs := func(c *cobra.Command) *cobra.Command {
		c.Flags().StringSliceVar(&e.attrs, "attrs", nil, "attributes to return (default projection if unset)")
		return c
	}
	// findMany builds a read command taking a single key argument.
	findMany := func(use, short string, fn func(*engine) func(context.Context, int64, []string) ([]*nestedset.Node, error)) *cobra.Command {
		return withAttrs(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				key, err := parseKey(args[0], "key")
				if err != nil {
					return err
				}
				nodes, err := fn(eng)(ctx, key, e.projection())
				if err != nil {
					return err
				}
				printNodes(w, nodes)
				return nil
			}),
		})
	}
	created := func(w io.Writer, n *nestedset.Node, err error) error {
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "created node %d\n", n.PrimaryKey())
		return nil
	}
	title := func(t string) nestedset.Attributes {
		return nestedset.Attributes{"title": t}
	}

	cmds := []*cobra.Command{
		findMany("roots <tree>", "list the roots of a tree",
			func(eng *engine) func(context.Context, int64, []string) ([]*nestedset.Node, error) {
				return eng.FindRoots
			}),
		findMany("children <id>", "list the children of a node",
			func(eng *engine) func(context.Context, int64, []string) ([]*nestedset.Node, error) {
				return eng.FindChildrenByParentPrimaryKey
			}),
		withAttrs(&cobra.Command{
			Use:   "get <id>",
			Short: "print a node",
			Args:  cobra.ExactArgs(1),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				id, err := parseKey(args[0], "id")
				if err != nil {
					return err
				}
				n, ok, err := eng.FindByPrimaryKey(ctx, id, e.projection())
				if err != nil {
					return err
				}
				if !ok {
					return errors.Newf("node %d not found", id)
				}
				printNodes(w, []*nestedset.Node{n})
				return nil
			}),
		}),
		findMany("ancestors <id>", "list the ancestors of a node, root first",
			func(eng *engine) func(context.Context, int64, []string) ([]*nestedset.Node, error) {
				return eng.FindAncestors
			}),
		findMany("descendants <id>", "list the subtree of a node in pre-order",
			func(eng *engine) func(context.Context, int64, []string) ([]*nestedset.Node, error) {
				return eng.FindDescendants
			}),
		{
			Use:   "plant <tree> <title>",
			Short: "create the first root of an empty tree",
			Args:  cobra.ExactArgs(2),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				tk, err := parseKey(args[0], "tree")
				if err != nil {
					return err
				}
				n, err := eng.PlantTree(ctx, title(args[1]), tk)
				return created(w, n, err)
			}),
		},
		{
			Use:   "create <parent> <title>",
			Short: "append a node as the last child of parent",
			Args:  cobra.ExactArgs(2),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				parent, err := parseKey(args[0], "parent")
				if err != nil {
					return err
				}
				n, err := eng.InsertIntoParent(ctx, title(args[1]), parent)
				return created(w, n, err)
			}),
		},
		{
			Use:   "append <tree> <title>",
			Short: "append a root after the last root of a tree",
			Args:  cobra.ExactArgs(2),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				tk, err := parseKey(args[0], "tree")
				if err != nil {
					return err
				}
				n, err := eng.InsertIntoTree(ctx, title(args[1]), tk)
				return created(w, n, err)
			}),
		},
		{
			Use:   "edit <id> <title>",
			Short: "change the title of a node",
			Args:  cobra.ExactArgs(2),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				id, err := parseKey(args[0], "id")
				if err != nil {
					return err
				}
				return eng.UpdateAttributes(ctx, id, title(args[1]))
			}),
		},
		{
			Use:   "delete <id>",
			Short: "delete a node and its subtree",
			Args:  cobra.ExactArgs(1),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				id, err := parseKey(args[0], "id")
				if err != nil {
					return err
				}
				return eng.Delete(ctx, id)
			}),
		},
		{
			Use:   "move <id> <target> [over|before|after]",
			Short: "move a node into target, or next to it",
			Long: `
Move a node and its subtree. With "over" (the default) the node becomes the
last child of target; with "before" or "after" it becomes target's sibling.
`,
			Args: cobra.RangeArgs(2, 3),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				id, err := parseKey(args[0], "id")
				if err != nil {
					return err
				}
				target, err := parseKey(args[1], "target")
				if err != nil {
					return err
				}
				if len(args) == 2 || args[2] == "over" {
					return eng.MoveIntoParent(ctx, id, target)
				}
				place, err := nestedset.ParsePlace(args[2])
				if err != nil {
					return err
				}
				return eng.MoveToNeighbor(ctx, id, target, place)
			}),
		},
		{
			Use:   "dump <tree>",
			Short: "print every row of a tree",
			Args:  cobra.ExactArgs(1),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				tk, err := parseKey(args[0], "tree")
				if err != nil {
					return err
				}
				rows, err := eng.Dump(ctx, tk)
				if err != nil {
					return err
				}
				printRows(w, rows)
				return nil
			}),
		},
		{
			Use:   "check <tree>",
			Short: "verify the nested-set invariants of a tree",
			Args:  cobra.ExactArgs(1),
			RunE: e.run(func(ctx context.Context, eng *engine, w io.Writer, args []string) error {
				tk, err := parseKey(args[0], "tree")
				if err != nil {
					return err
				}
				if err := eng.Check(ctx, tk); err != nil {
					return err
				}
				fmt.Fprintf(w, "tree %d: ok\n", tk)
				return nil
			}),
		},
	}
	return cmds
}

// projection returns the --attrs flag, or nil for the default projection.
func (e *env) projection() []string {
	if len(e.attrs) == 0 {
		return nil
	}
	return e.attrs
}
