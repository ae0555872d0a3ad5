// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import (
	"context"
	"time"

	"github.com/cockroachdb/crlib/crtime"
)

// MoveIntoParent moves a node, with its subtree, to become the last child of
// parentID. Moving a node into its current parent when it already is the
// last child is a no-op.
func (e *Engine[N]) MoveIntoParent(ctx context.Context, id, parentID int64) error {
	info := NodeMovedInfo{ID: id, TargetID: parentID, IntoParent: true}
	return e.move(ctx, "move-into-parent", "parent", info, func(node, parent Bounds) (int64, int64) {
		return parent.Right, parent.Level - node.Level + 1
	})
}

// MoveToNeighbor moves a node, with its subtree, to become the sibling
// immediately before or after neighborID, at the neighbor's level.
func (e *Engine[N]) MoveToNeighbor(ctx context.Context, id, neighborID int64, place Place) error {
	info := NodeMovedInfo{ID: id, TargetID: neighborID, Place: place}
	return e.move(ctx, "move-to-neighbor", "neighbor", info, func(node, neighbor Bounds) (int64, int64) {
		anchor := neighbor.Left
		if place == After {
			anchor = neighbor.Right + 1
		}
		return anchor, neighbor.Level - node.Level
	})
}

// anchorFunc returns the anchor right-key of a move and the level change it
// applies to the moved subtree.
type anchorFunc func(node, target Bounds) (anchor, skewLevel int64)

func (e *Engine[N]) move(
	ctx context.Context, op, role string, info NodeMovedInfo, anchorFn anchorFunc,
) error {
	id, targetID := info.ID, info.TargetID
	if id == targetID {
		err := invalidf("cannot move node %d relative to itself", id)
		e.opts.Metrics.observe(op, crtime.NowMono(), err)
		return err
	}
	return e.runTxn(ctx, op, func(t *txnScope) error {
		locked, err := t.lockNodes(ctx, id, targetID)
		if err != nil {
			return err
		}
		target, ok := locked[targetID]
		if !ok {
			return notFoundf("%s %d not found", role, targetID)
		}
		node, ok := locked[id]
		if !ok {
			return notFoundf("node %d not found", id)
		}
		if node.TreeKey != target.TreeKey {
			return invalidf("node %d and %s %d belong to different trees", id, role, targetID)
		}
		if node.Contains(target) {
			return invalidf("cannot move node %d into its own subtree", id)
		}

		anchor, skewLevel := anchorFn(node, target)
		info.Plan = planMove(node, anchor, skewLevel)
		if isNoopMove(node, anchor) {
			info.Noop = true
		} else {
			info.Rows, err = t.move(ctx, info.Plan)
			if err != nil {
				return err
			}
		}
		t.onCommit(func(d time.Duration) {
			info.Duration = d
			e.opts.EventListener.NodeMoved(info)
		})
		return nil
	})
}
