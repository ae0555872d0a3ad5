// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kvstore

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
	"github.com/cockroachdb/nestedset/internal/invariants"
	"github.com/cockroachdb/pebble"
)

// errTxnDone is returned when a finished transaction is used again.
var errTxnDone = errors.New("kvstore: transaction already committed or rolled back")

// txn is a structural transaction. Writes accumulate in an indexed batch,
// whose reads observe them, and are applied atomically on Commit. The tree
// keys in held are locked until the transaction finishes.
type txn struct {
	s     *Store
	batch *pebble.Batch
	held  []int64
	done  bool

	closeCheck invariants.CloseChecker
}

var _ nestedset.Txn = (*txn)(nil)

func (s *Store) begin() *txn {
	return &txn{s: s, batch: s.db.NewIndexedBatch()}
}

func (t *txn) holds(treeKey int64) bool {
	return slices.Contains(t.held, treeKey)
}

// lockTrees locks the given tree keys in addition to those already held.
// Locks are always acquired in ascending tree key order; if that order cannot
// be kept because a lower tree key is needed after a higher one was locked,
// the held locks are released and everything is reacquired in order. That is
// only possible while the transaction has not written anything.
func (t *txn) lockTrees(ctx context.Context, treeKeys []int64) error {
	var need []int64
	for _, tk := range treeKeys {
		if !t.holds(tk) && !slices.Contains(need, tk) {
			need = append(need, tk)
		}
	}
	if len(need) == 0 {
		return nil
	}
	slices.Sort(need)
	if len(t.held) > 0 && need[0] < slices.Max(t.held) {
		if !t.batch.Empty() {
			return errors.AssertionFailedf("kvstore: out of order lock on tree %d after writes", need[0])
		}
		need = append(need, t.held...)
		slices.Sort(need)
		t.releaseAll()
	}
	for _, tk := range need {
		if err := t.s.locks.acquire(ctx, tk); err != nil {
			return err
		}
		t.held = append(t.held, tk)
	}
	return nil
}

func (t *txn) releaseAll() {
	for _, tk := range t.held {
		t.s.locks.release(tk)
	}
	t.held = t.held[:0]
}

// LockNodes implements nestedset.Txn. A row's tree key never changes, so the
// tree keys are read without locks, locked, and the rows then re-read. A row
// that appeared in the meantime in a tree not yet locked causes another
// round.
func (t *txn) LockNodes(ctx context.Context, ids ...int64) (map[int64]nestedset.Bounds, error) {
	t.closeCheck.AssertNotClosed()
	if t.done {
		return nil, errTxnDone
	}
	for {
		res := make(map[int64]nestedset.Bounds, len(ids))
		var trees []int64
		for _, id := range ids {
			row, ok, err := getRow(t.batch, id)
			if err != nil {
				return nil, err
			}
			if ok {
				res[id] = row.Bounds
				trees = append(trees, row.TreeKey)
			}
		}
		complete := true
		for _, tk := range trees {
			if !t.holds(tk) {
				complete = false
			}
		}
		if complete {
			return res, nil
		}
		if err := t.lockTrees(ctx, trees); err != nil {
			return nil, err
		}
	}
}

// LockRoots implements nestedset.Txn.
func (t *txn) LockRoots(ctx context.Context, treeKey int64) (int64, bool, error) {
	t.closeCheck.AssertNotClosed()
	if t.done {
		return 0, false, errTxnDone
	}
	if err := t.lockTrees(ctx, []int64{treeKey}); err != nil {
		return 0, false, err
	}
	rs, err := roots(t.batch, treeKey)
	if err != nil || len(rs) == 0 {
		return 0, false, err
	}
	var maxRight int64
	for _, r := range rs {
		maxRight = max(maxRight, r.Right)
	}
	return maxRight, true, nil
}

func (t *txn) checkWritable(treeKey int64) error {
	t.closeCheck.AssertNotClosed()
	if t.done {
		return errTxnDone
	}
	if !t.holds(treeKey) {
		return errors.AssertionFailedf("kvstore: write to tree %d without holding its lock", treeKey)
	}
	return nil
}

// put writes a row and its index entry.
func (t *txn) put(r nestedset.Row) error {
	if err := t.batch.Set(rowKey(r.ID), rowValue(r), nil); err != nil {
		return err
	}
	return t.batch.Set(indexKey(r.TreeKey, r.Left), indexValue(r), nil)
}

// rewrite applies fn to the bounds of every row of a tree and stores the rows
// that changed. All stale index entries are deleted before any new one is
// written since a row's new left bound may be another row's old one.
func (t *txn) rewrite(
	treeKey int64, fn func(nestedset.Bounds) (nestedset.Bounds, bool),
) (int64, error) {
	rows, err := scanTree(t.batch, treeKey)
	if err != nil {
		return 0, err
	}
	var changed []nestedset.Row
	for _, r := range rows {
		b, ok := fn(r.Bounds)
		if !ok || b == r.Bounds {
			continue
		}
		if err := t.batch.Delete(indexKey(treeKey, r.Left), nil); err != nil {
			return 0, err
		}
		r.Bounds = b
		changed = append(changed, r)
	}
	for _, r := range changed {
		if err := t.put(r); err != nil {
			return 0, err
		}
	}
	return int64(len(changed)), nil
}

// Shift implements nestedset.Txn.
func (t *txn) Shift(ctx context.Context, s nestedset.Shift) error {
	if err := t.checkWritable(s.TreeKey); err != nil {
		return err
	}
	_, err := t.rewrite(s.TreeKey, s.Apply)
	return err
}

// Move implements nestedset.Txn.
func (t *txn) Move(ctx context.Context, p nestedset.MovePlan) (int64, error) {
	if err := t.checkWritable(p.TreeKey); err != nil {
		return 0, err
	}
	return t.rewrite(p.TreeKey, p.Apply)
}

// Insert implements nestedset.Txn.
func (t *txn) Insert(ctx context.Context, r nestedset.Row) (int64, error) {
	if err := t.checkWritable(r.TreeKey); err != nil {
		return 0, err
	}
	r.ID = t.s.lastID.Add(1)
	if err := t.put(r); err != nil {
		return 0, err
	}
	return r.ID, nil
}

// DeleteRange implements nestedset.Txn.
func (t *txn) DeleteRange(ctx context.Context, b nestedset.Bounds) (int64, error) {
	if err := t.checkWritable(b.TreeKey); err != nil {
		return 0, err
	}
	var doomed []entry
	err := walk(t.batch, b.TreeKey, b.Left, b.Right, func(e entry) (int64, bool, error) {
		if e.Right <= b.Right {
			doomed = append(doomed, e)
		}
		return e.Left, false, nil
	})
	if err != nil {
		return 0, err
	}
	for _, e := range doomed {
		if err := t.batch.Delete(rowKey(e.id), nil); err != nil {
			return 0, err
		}
		if err := t.batch.Delete(indexKey(e.TreeKey, e.Left), nil); err != nil {
			return 0, err
		}
	}
	return int64(len(doomed)), nil
}

// Scan implements nestedset.Txn.
func (t *txn) Scan(ctx context.Context, treeKey int64) ([]nestedset.Row, error) {
	t.closeCheck.AssertNotClosed()
	if t.done {
		return nil, errTxnDone
	}
	return scanTree(t.batch, treeKey)
}

// Commit implements nestedset.Txn.
func (t *txn) Commit(ctx context.Context) error {
	t.closeCheck.AssertNotClosed()
	if t.done {
		return errTxnDone
	}
	defer t.finish()
	if t.batch.Empty() {
		return nil
	}
	return t.batch.Commit(pebble.Sync)
}

// Rollback implements nestedset.Txn.
func (t *txn) Rollback(ctx context.Context) error {
	if t.done {
		return errTxnDone
	}
	t.finish()
	return nil
}

// finish releases the batch and the locks. It is idempotent.
func (t *txn) finish() {
	if t.done {
		return
	}
	t.done = true
	t.closeCheck.Close()
	_ = t.batch.Close()
	t.releaseAll()
}
