// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kvstore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLockTable(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	lt := newLockTable()

	require.NoError(t, lt.acquire(ctx, 1))
	require.NoError(t, lt.acquire(ctx, 2))
	require.Equal(t, 2, lt.len())

	// A held lock times out other acquirers, who leave no trace behind.
	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, lt.acquire(tctx, 1), context.DeadlineExceeded)
	require.Equal(t, 2, lt.len())

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		_ = lt.acquire(ctx, 1)
	}()
	select {
	case <-acquired:
		t.Fatal("acquired a held lock")
	case <-time.After(10 * time.Millisecond):
	}
	lt.release(1)
	<-acquired
	lt.release(1)
	lt.release(2)
	require.Equal(t, 0, lt.len())

	require.Panics(t, func() { lt.release(3) })
}

func TestLockTableExclusion(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	lt := newLockTable()

	var inside, violations atomic.Int32
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				tk := int64(j % 3)
				if err := lt.acquire(gCtx, tk); err != nil {
					return err
				}
				if tk == 0 {
					if inside.Add(1) != 1 {
						violations.Add(1)
					}
					inside.Add(-1)
				}
				lt.release(tk)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Zero(t, violations.Load())
	require.Equal(t, 0, lt.len())
}
