// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset/internal/invariants"
)

// txnScope is the handle structural operations use to reach the store. It
// wraps store errors, records the trees an operation writes to and collects
// the event to publish once the transaction has committed.
type txnScope struct {
	txn     Txn
	touched []int64
	after   func(time.Duration)
}

func (t *txnScope) touch(treeKey int64) {
	if !slices.Contains(t.touched, treeKey) {
		t.touched = append(t.touched, treeKey)
	}
}

func (t *txnScope) onCommit(fn func(time.Duration)) {
	t.after = fn
}

func (t *txnScope) lockNodes(ctx context.Context, ids ...int64) (map[int64]Bounds, error) {
	locked, err := t.txn.LockNodes(ctx, ids...)
	return locked, storageError(err, "lock nodes")
}

func (t *txnScope) lockRoots(ctx context.Context, treeKey int64) (int64, bool, error) {
	t.touch(treeKey)
	maxRight, ok, err := t.txn.LockRoots(ctx, treeKey)
	return maxRight, ok, storageError(err, "lock roots")
}

func (t *txnScope) shift(ctx context.Context, s Shift) error {
	t.touch(s.TreeKey)
	return storageError(t.txn.Shift(ctx, s), "shift")
}

func (t *txnScope) insert(ctx context.Context, r Row) (int64, error) {
	t.touch(r.TreeKey)
	id, err := t.txn.Insert(ctx, r)
	return id, storageError(err, "insert")
}

func (t *txnScope) deleteRange(ctx context.Context, b Bounds) (int64, error) {
	t.touch(b.TreeKey)
	n, err := t.txn.DeleteRange(ctx, b)
	return n, storageError(err, "delete range")
}

func (t *txnScope) move(ctx context.Context, p MovePlan) (int64, error) {
	t.touch(p.TreeKey)
	n, err := t.txn.Move(ctx, p)
	return n, storageError(err, "move")
}

// verify checks the invariants of every tree the transaction wrote to, as
// seen from within the transaction.
func (t *txnScope) verify(ctx context.Context) error {
	for _, tk := range t.touched {
		rows, err := t.txn.Scan(ctx, tk)
		if err != nil {
			return storageError(err, "scan")
		}
		if err := CheckInvariants(rows); err != nil {
			return errors.Wrapf(err, "tree %d", errors.Safe(tk))
		}
	}
	return nil
}

// runTxn runs fn inside a transaction. The transaction commits only if fn
// succeeds; every other exit, including a panic, rolls it back. Events are
// published after the commit.
func (e *Engine[N]) runTxn(ctx context.Context, op string, fn func(t *txnScope) error) (err error) {
	start := crtime.NowMono()
	defer func() {
		e.opts.Metrics.observe(op, start, err)
	}()

	txn, err := e.store.Begin(ctx)
	if err != nil {
		return storageError(err, "begin")
	}
	finished := false
	defer func() {
		if finished {
			return
		}
		// The caller's context may already be canceled; the rollback must still
		// reach the store.
		if rbErr := txn.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			err = errors.CombineErrors(err, storageError(rbErr, "rollback"))
		}
		if err != nil {
			e.opts.EventListener.TxnAborted(TxnAbortedInfo{Op: op, Err: err})
		}
	}()

	t := &txnScope{txn: txn}
	if err = fn(t); err != nil {
		return err
	}
	if invariants.Enabled {
		if err = t.verify(ctx); err != nil {
			return err
		}
	}
	finished = true
	if err = txn.Commit(ctx); err != nil {
		err = storageError(err, "commit")
		e.opts.EventListener.TxnAborted(TxnAbortedInfo{Op: op, Err: err})
		return err
	}
	if t.after != nil {
		t.after(start.Elapsed())
	}
	return nil
}
