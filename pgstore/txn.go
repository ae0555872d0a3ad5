// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pgstore

import (
	"context"
	"slices"

	"github.com/cockroachdb/nestedset"
	"github.com/jackc/pgx/v5"
)

// txn is a structural transaction on a pgx.Tx. held lists the tree keys
// whose advisory lock the transaction owns; PostgreSQL releases them at
// commit or rollback.
type txn struct {
	s    *Store
	tx   pgx.Tx
	held []int64
}

var _ nestedset.Txn = (*txn)(nil)

// lockTrees takes the advisory locks of the given tree keys in ascending
// order.
func (t *txn) lockTrees(ctx context.Context, treeKeys []int64) error {
	slices.Sort(treeKeys)
	for _, tk := range treeKeys {
		if slices.Contains(t.held, tk) {
			continue
		}
		if _, err := t.tx.Exec(ctx, t.s.q.lockTree, t.s.tableName, tk); err != nil {
			return err
		}
		t.held = append(t.held, tk)
	}
	return nil
}

// LockNodes implements nestedset.Txn. The tree keys of the rows are read
// first and their advisory locks taken in order; the rows themselves are then
// locked in id order.
func (t *txn) LockNodes(ctx context.Context, ids ...int64) (map[int64]nestedset.Bounds, error) {
	rows, err := t.tx.Query(ctx, t.s.q.treeKeys, ids)
	if err != nil {
		return nil, err
	}
	treeKeys, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	if err := t.lockTrees(ctx, treeKeys); err != nil {
		return nil, err
	}
	recs, err := queryRecords(ctx, t.tx, t.s.q.lockRows, nil, false, ids)
	if err != nil {
		return nil, err
	}
	res := make(map[int64]nestedset.Bounds, len(recs))
	for _, r := range recs {
		res[r.ID] = r.Bounds
	}
	return res, nil
}

// LockRoots implements nestedset.Txn. Aggregates cannot be combined with FOR
// UPDATE, so the roots' right bounds are locked and the maximum computed
// here.
func (t *txn) LockRoots(ctx context.Context, treeKey int64) (int64, bool, error) {
	if err := t.lockTrees(ctx, []int64{treeKey}); err != nil {
		return 0, false, err
	}
	rows, err := t.tx.Query(ctx, t.s.q.lockRoots, treeKey)
	if err != nil {
		return 0, false, err
	}
	rights, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil || len(rights) == 0 {
		return 0, false, err
	}
	return slices.Max(rights), true, nil
}

// Shift implements nestedset.Txn.
func (t *txn) Shift(ctx context.Context, s nestedset.Shift) error {
	_, err := t.tx.Exec(ctx, t.s.q.shift, s.Delta, s.From, s.TreeKey)
	return err
}

// Insert implements nestedset.Txn.
func (t *txn) Insert(ctx context.Context, r nestedset.Row) (int64, error) {
	sql, vals, err := t.s.q.insert(r.Attrs)
	if err != nil {
		return 0, err
	}
	args := append([]any{r.TreeKey, r.Left, r.Right, r.Level}, vals...)
	var id int64
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteRange implements nestedset.Txn.
func (t *txn) DeleteRange(ctx context.Context, b nestedset.Bounds) (int64, error) {
	tag, err := t.tx.Exec(ctx, t.s.q.deleteRange, b.Left, b.Right, b.TreeKey)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Move implements nestedset.Txn.
func (t *txn) Move(ctx context.Context, p nestedset.MovePlan) (int64, error) {
	sql := t.s.q.moveBackward
	if p.Forward {
		sql = t.s.q.moveForward
	}
	tag, err := t.tx.Exec(ctx, sql,
		p.Left, p.Right, p.Anchor, p.SkewEdit, p.SkewTree, p.SkewLevel, p.TreeKey)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Scan implements nestedset.Txn.
func (t *txn) Scan(ctx context.Context, treeKey int64) ([]nestedset.Row, error) {
	sql, kept := t.s.q.scan(t.s.attrs)
	recs, err := queryRecords(ctx, t.tx, sql, kept, false, treeKey)
	return scanRows(recs), err
}

// Commit implements nestedset.Txn.
func (t *txn) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback implements nestedset.Txn.
func (t *txn) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
