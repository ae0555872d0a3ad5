// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kvstore

import (
	"context"
	"sync"

	"github.com/cockroachdb/swiss"
)

// treeLock is an exclusive lock on one tree key. The buffered channel is the
// lock itself; refs counts holders and waiters so that the entry can be
// dropped from the table once nobody references it.
type treeLock struct {
	sem  chan struct{}
	refs int
}

// lockTable hands out per-tree-key exclusive locks. Transactions on
// different tree keys never contend.
type lockTable struct {
	mu struct {
		sync.Mutex
		locks swiss.Map[int64, *treeLock]
	}
}

func newLockTable() *lockTable {
	lt := &lockTable{}
	lt.mu.locks.Init(16)
	return lt
}

func (lt *lockTable) ref(treeKey int64) *treeLock {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.mu.locks.Get(treeKey)
	if !ok {
		l = &treeLock{sem: make(chan struct{}, 1)}
		lt.mu.locks.Put(treeKey, l)
	}
	l.refs++
	return l
}

func (lt *lockTable) unref(treeKey int64, l *treeLock) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		lt.mu.locks.Delete(treeKey)
	}
}

// acquire blocks until the lock on treeKey is held or ctx is done.
func (lt *lockTable) acquire(ctx context.Context, treeKey int64) error {
	l := lt.ref(treeKey)
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		lt.unref(treeKey, l)
		return ctx.Err()
	}
}

// release releases a lock previously acquired on treeKey.
func (lt *lockTable) release(treeKey int64) {
	lt.mu.Lock()
	l, ok := lt.mu.locks.Get(treeKey)
	lt.mu.Unlock()
	if !ok {
		panic("kvstore: release of unheld tree lock")
	}
	<-l.sem
	lt.unref(treeKey, l)
}

// len returns the number of tree keys currently locked or waited on.
func (lt *lockTable) len() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.mu.locks.Len()
}
