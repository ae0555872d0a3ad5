// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package nestedset maintains hierarchies stored as flat rows in the
// nested-set model. Every row carries a [left, right] interval and a level;
// an ancestor's interval strictly contains those of its descendants.
//
// The Engine computes and atomically applies the interval renumbering that
// inserts, deletes and moves require, running each structural operation as
// one transaction against a Storage. Reads are lock-free. The kvstore and
// pgstore packages provide Storage implementations.
package nestedset

import (
	"context"
	"time"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
)

// Engine is a stateless nested-set engine bound to a Storage. It is safe for
// concurrent use; concurrent structural operations on the same tree key are
// serialized by the store's locks.
type Engine[N Nested] struct {
	store   Storage
	opts    *Options
	newNode Factory[N]
	allowed map[string]struct{}
}

// New returns an Engine that produces *Node values.
func New(store Storage, opts *Options) (*Engine[*Node], error) {
	return NewWithFactory(store, opts, NewNode)
}

// NewWithFactory returns an Engine that builds its results with newNode.
func NewWithFactory[N Nested](
	store Storage, opts *Options, newNode Factory[N],
) (*Engine[N], error) {
	if store == nil {
		return nil, errors.AssertionFailedf("nestedset: nil store")
	}
	if newNode == nil {
		return nil, errors.AssertionFailedf("nestedset: nil factory")
	}
	opts = opts.Clone().EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e := &Engine[N]{
		store:   store,
		opts:    opts,
		newNode: newNode,
		allowed: make(map[string]struct{}, len(opts.Attributes)),
	}
	for _, a := range opts.Attributes {
		e.allowed[a] = struct{}{}
	}
	return e, nil
}

// projection resolves the attribute projection of a read. A nil projection
// selects Options.DefaultProjection. Names outside the allow-list are
// dropped.
func (e *Engine[N]) projection(attrs []string) []string {
	if attrs == nil {
		attrs = e.opts.DefaultProjection
	}
	proj := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if _, ok := e.allowed[a]; !ok {
			continue
		}
		dup := false
		for _, p := range proj {
			if p == a {
				dup = true
				break
			}
		}
		if !dup {
			proj = append(proj, a)
		}
	}
	return proj
}

// checkAttrs validates attribute names for a write and returns a private copy.
func (e *Engine[N]) checkAttrs(attrs Attributes) (Attributes, error) {
	for _, k := range attrs.Keys() {
		if _, ok := e.allowed[k]; !ok {
			return nil, invalidf("unknown attribute %q", k)
		}
	}
	if attrs == nil {
		return Attributes{}, nil
	}
	return attrs.Clone(), nil
}

func (e *Engine[N]) node(rec Record, proj []string) N {
	return e.newNode(NodeInfo{
		ID:        rec.ID,
		ParentID:  rec.ParentID,
		HasParent: rec.HasParent,
		TreeKey:   rec.TreeKey,
		Attrs:     rec.Attrs.Project(proj),
	})
}

func (e *Engine[N]) nodes(recs []Record, proj []string) []N {
	res := make([]N, len(recs))
	for i := range recs {
		res[i] = e.node(recs[i], proj)
	}
	return res
}

type findFunc func(ctx context.Context, key int64, attrs []string) ([]Record, error)

func (e *Engine[N]) find(
	ctx context.Context, op string, fn findFunc, key int64, attrs []string,
) ([]N, error) {
	start := crtime.NowMono()
	proj := e.projection(attrs)
	recs, err := fn(ctx, key, proj)
	err = storageError(err, op)
	e.opts.Metrics.observe(op, start, err)
	if err != nil {
		return nil, err
	}
	return e.nodes(recs, proj), nil
}

// FindRoots returns the level 1 nodes of a tree in ascending left order.
func (e *Engine[N]) FindRoots(ctx context.Context, treeKey int64, attrs []string) ([]N, error) {
	return e.find(ctx, "find-roots", e.store.FindRoots, treeKey, attrs)
}

// FindByPrimaryKey returns a node with its derived parent. The second return
// value is false if no such node exists.
func (e *Engine[N]) FindByPrimaryKey(
	ctx context.Context, id int64, attrs []string,
) (N, bool, error) {
	var zero N
	start := crtime.NowMono()
	proj := e.projection(attrs)
	rec, ok, err := e.store.Find(ctx, id, proj)
	err = storageError(err, "find")
	e.opts.Metrics.observe("find", start, err)
	if err != nil || !ok {
		return zero, false, err
	}
	return e.node(rec, proj), true, nil
}

// FindChildrenByParentPrimaryKey returns the direct children of a node in
// ascending left order. An absent parent has no children.
func (e *Engine[N]) FindChildrenByParentPrimaryKey(
	ctx context.Context, parentID int64, attrs []string,
) ([]N, error) {
	return e.find(ctx, "find-children", e.store.FindChildren, parentID, attrs)
}

// FindDescendants returns the subtree below a node in pre-order, excluding
// the node itself.
func (e *Engine[N]) FindDescendants(ctx context.Context, id int64, attrs []string) ([]N, error) {
	return e.find(ctx, "find-descendants", e.store.FindDescendants, id, attrs)
}

// FindAncestors returns the path from the root down to the parent of a node.
func (e *Engine[N]) FindAncestors(ctx context.Context, id int64, attrs []string) ([]N, error) {
	return e.find(ctx, "find-ancestors", e.store.FindAncestors, id, attrs)
}

// InsertIntoParent inserts a new node as the last child of parentID.
func (e *Engine[N]) InsertIntoParent(
	ctx context.Context, attrs Attributes, parentID int64,
) (N, error) {
	var zero N
	attrs, err := e.checkAttrs(attrs)
	if err != nil {
		e.opts.Metrics.observe("insert-into-parent", crtime.NowMono(), err)
		return zero, err
	}
	var info NodeInfo
	err = e.runTxn(ctx, "insert-into-parent", func(t *txnScope) error {
		locked, err := t.lockNodes(ctx, parentID)
		if err != nil {
			return err
		}
		parent, ok := locked[parentID]
		if !ok {
			return notFoundf("parent %d not found", parentID)
		}
		if err := t.shift(ctx, openGap(parent.TreeKey, parent.Right)); err != nil {
			return err
		}
		b := Bounds{
			TreeKey: parent.TreeKey,
			Left:    parent.Right,
			Right:   parent.Right + 1,
			Level:   parent.Level + 1,
		}
		id, err := t.insert(ctx, Row{Bounds: b, Attrs: attrs})
		if err != nil {
			return err
		}
		info = NodeInfo{ID: id, ParentID: parentID, HasParent: true, TreeKey: b.TreeKey, Attrs: attrs}
		t.onCommit(func(d time.Duration) {
			e.opts.EventListener.NodeInserted(NodeInsertedInfo{
				ID: id, Bounds: b, ParentID: parentID, Shifted: 2, Duration: d,
			})
		})
		return nil
	})
	if err != nil {
		return zero, err
	}
	return e.newNode(info), nil
}

// InsertIntoTree appends a new root after the last root of a tree. It fails
// with ErrNotFound if the tree has no roots; see PlantTree.
func (e *Engine[N]) InsertIntoTree(
	ctx context.Context, attrs Attributes, treeKey int64,
) (N, error) {
	return e.insertRoot(ctx, "insert-into-tree", attrs, treeKey, func(maxRight int64, ok bool) (int64, error) {
		if !ok {
			return 0, notFoundf("tree %d has no roots", treeKey)
		}
		return maxRight + 1, nil
	})
}

// PlantTree creates the first root of an empty tree. It fails with
// ErrInvalidOperation if the tree already has nodes.
func (e *Engine[N]) PlantTree(ctx context.Context, attrs Attributes, treeKey int64) (N, error) {
	return e.insertRoot(ctx, "plant-tree", attrs, treeKey, func(_ int64, ok bool) (int64, error) {
		if ok {
			return 0, invalidf("tree %d already has roots", treeKey)
		}
		return 1, nil
	})
}

func (e *Engine[N]) insertRoot(
	ctx context.Context,
	op string,
	attrs Attributes,
	treeKey int64,
	leftFn func(maxRight int64, ok bool) (int64, error),
) (N, error) {
	var zero N
	attrs, err := e.checkAttrs(attrs)
	if err != nil {
		e.opts.Metrics.observe(op, crtime.NowMono(), err)
		return zero, err
	}
	var info NodeInfo
	err = e.runTxn(ctx, op, func(t *txnScope) error {
		maxRight, ok, err := t.lockRoots(ctx, treeKey)
		if err != nil {
			return err
		}
		left, err := leftFn(maxRight, ok)
		if err != nil {
			return err
		}
		b := Bounds{TreeKey: treeKey, Left: left, Right: left + 1, Level: 1}
		id, err := t.insert(ctx, Row{Bounds: b, Attrs: attrs})
		if err != nil {
			return err
		}
		info = NodeInfo{ID: id, TreeKey: treeKey, Attrs: attrs}
		t.onCommit(func(d time.Duration) {
			e.opts.EventListener.NodeInserted(NodeInsertedInfo{ID: id, Bounds: b, Duration: d})
		})
		return nil
	})
	if err != nil {
		return zero, err
	}
	return e.newNode(info), nil
}

// UpdateAttributes overwrites the given attributes of a node. Updating an
// absent node is a no-op. Unknown attribute names fail with
// ErrInvalidOperation.
func (e *Engine[N]) UpdateAttributes(ctx context.Context, id int64, attrs Attributes) error {
	start := crtime.NowMono()
	attrs, err := e.checkAttrs(attrs)
	if err == nil && len(attrs) > 0 {
		_, err = e.store.UpdateAttributes(ctx, id, attrs)
		err = storageError(err, "update-attributes")
	}
	e.opts.Metrics.observe("update-attributes", start, err)
	return err
}

// Delete removes a node together with its subtree and closes the gap it
// leaves. Deleting an absent node is a no-op.
func (e *Engine[N]) Delete(ctx context.Context, id int64) error {
	return e.runTxn(ctx, "delete", func(t *txnScope) error {
		locked, err := t.lockNodes(ctx, id)
		if err != nil {
			return err
		}
		b, ok := locked[id]
		if !ok {
			return nil
		}
		n, err := t.deleteRange(ctx, b)
		if err != nil {
			return err
		}
		if err := t.shift(ctx, closeGap(b)); err != nil {
			return err
		}
		t.onCommit(func(d time.Duration) {
			e.opts.EventListener.NodeDeleted(NodeDeletedInfo{ID: id, Bounds: b, Rows: n, Duration: d})
		})
		return nil
	})
}

// Dump returns every row of a tree in ascending left order with all of its
// stored attributes.
func (e *Engine[N]) Dump(ctx context.Context, treeKey int64) ([]Row, error) {
	rows, err := e.store.Scan(ctx, treeKey)
	return rows, storageError(err, "scan")
}

// Check verifies the nested-set invariants of a tree, returning an error
// marked ErrCorruption on the first violation.
func (e *Engine[N]) Check(ctx context.Context, treeKey int64) error {
	rows, err := e.Dump(ctx, treeKey)
	if err != nil {
		return err
	}
	return errors.Wrapf(CheckInvariants(rows), "tree %d", errors.Safe(treeKey))
}
