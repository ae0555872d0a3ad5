// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package kvstore implements nestedset.Storage on an embedded Pebble
// database.
//
// Every row is stored once under its identity and indexed by (tree key, left
// bound). Structural transactions write through an indexed batch and hold an
// exclusive in-process lock on each tree key they touch, so a Store must be
// the only writer of its database. Reads go through consistent snapshots and
// take no locks.
package kvstore

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Store is a nestedset.Storage backed by Pebble.
type Store struct {
	db     *pebble.DB
	ownsDB bool
	locks  *lockTable
	lastID atomic.Int64
}

var _ nestedset.Storage = (*Store)(nil)

// Open opens (or creates) a Pebble database in dirname and returns a Store
// owning it. The store closes the database on Close.
func Open(dirname string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(dirname, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "kvstore: opening %s", dirname)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// OpenMem returns a Store on a fresh in-memory database.
func OpenMem() (*Store, error) {
	return Open("", &pebble.Options{FS: vfs.NewMem()})
}

// New returns a Store on an open database. The caller keeps ownership of db.
func New(db *pebble.DB) (*Store, error) {
	s := &Store{db: db, locks: newLockTable()}
	last, err := lastRowID(db)
	if err != nil {
		return nil, err
	}
	s.lastID.Store(last)
	return s, nil
}

// lastRowID returns the largest identity in use, or zero.
func lastRowID(r reader) (int64, error) {
	iter, err := r.NewIter(&pebble.IterOptions{
		LowerBound: []byte{rowPrefix},
		UpperBound: []byte{rowPrefix + 1},
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return decodeRowKey(iter.Key())
}

// Close releases the store, closing the database if the store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// reader is the read surface shared by *pebble.DB, *pebble.Snapshot and an
// indexed *pebble.Batch.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// getRow reads a row by identity.
func getRow(r reader, id int64) (nestedset.Row, bool, error) {
	v, closer, err := r.Get(rowKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nestedset.Row{}, false, nil
	} else if err != nil {
		return nestedset.Row{}, false, err
	}
	defer closer.Close()
	row, err := decodeRow(id, v)
	if err != nil {
		return nestedset.Row{}, false, err
	}
	return row, true, nil
}

// walk iterates the index entries of treeKey with left bound in [lo, hi] in
// ascending left order. fn returns the left bound to continue from; returning
// a value at or below the current entry's left bound advances to the next
// entry, while e.Right+1 skips the entry's subtree. Returning stop ends the
// walk.
func walk(r reader, treeKey, lo, hi int64, fn func(e entry) (next int64, stop bool, err error)) error {
	lower, upper := indexSpan(treeKey, lo, hi)
	iter, err := r.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()
	for valid := iter.First(); valid; {
		e, err := decodeIndexEntry(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		next, stop, err := fn(e)
		if err != nil || stop {
			return err
		}
		if next > e.Left {
			valid = iter.SeekGE(indexKey(treeKey, next))
		} else {
			valid = iter.Next()
		}
	}
	return iter.Error()
}

// walkAll visits every index entry of treeKey in ascending left order.
func walkAll(r reader, treeKey int64, fn func(e entry) error) error {
	lower, upper := treeSpan(treeKey)
	iter, err := r.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()
	for valid := iter.First(); valid; valid = iter.Next() {
		e, err := decodeIndexEntry(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// roots returns the level 1 entries of a tree, skipping over each root's
// subtree.
func roots(r reader, treeKey int64) ([]entry, error) {
	var res []entry
	err := walk(r, treeKey, 1, maxBound, func(e entry) (int64, bool, error) {
		if e.Level == 1 {
			res = append(res, e)
		}
		return e.Right + 1, false, nil
	})
	return res, err
}

// ancestors returns the entries strictly containing b, outermost first. The
// walk descends into an entry only if it contains b and skips it otherwise.
func ancestors(r reader, b nestedset.Bounds) ([]entry, error) {
	var res []entry
	err := walk(r, b.TreeKey, 1, b.Left-1, func(e entry) (int64, bool, error) {
		if e.Right > b.Right {
			res = append(res, e)
			return e.Left, false, nil
		}
		return e.Right + 1, false, nil
	})
	return res, err
}

// children returns the direct children of p, skipping over each child's
// subtree.
func children(r reader, p nestedset.Bounds) ([]entry, error) {
	var res []entry
	err := walk(r, p.TreeKey, p.Left+1, p.Right-1, func(e entry) (int64, bool, error) {
		if e.Level == p.Level+1 {
			res = append(res, e)
		}
		return e.Right + 1, false, nil
	})
	return res, err
}

// maxBound is the largest left bound any walk may reach.
const maxBound = 1<<62 - 1

// scanTree returns every row of a tree ordered by left bound.
func scanTree(r reader, treeKey int64) ([]nestedset.Row, error) {
	var rows []nestedset.Row
	err := walkAll(r, treeKey, func(e entry) error {
		row, ok, err := getRow(r, e.id)
		if err != nil {
			return err
		}
		if !ok || row.Bounds != e.Bounds {
			return nestedset.CorruptionErrorf("kvstore: index entry %d %s disagrees with row", e.id, e.Bounds)
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// records resolves index entries into records carrying the projected
// attributes.
func records(
	r reader, entries []entry, attrs []string, parent func(i int, e entry) (int64, bool),
) ([]nestedset.Record, error) {
	res := make([]nestedset.Record, 0, len(entries))
	for i, e := range entries {
		rec := nestedset.Record{Row: nestedset.Row{ID: e.id, Bounds: e.Bounds}}
		if len(attrs) > 0 {
			row, ok, err := getRow(r, e.id)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nestedset.CorruptionErrorf("kvstore: dangling index entry %d", e.id)
			}
			rec.Attrs = row.Attrs.Project(attrs)
		} else {
			rec.Attrs = nestedset.Attributes{}
		}
		rec.ParentID, rec.HasParent = parent(i, e)
		res = append(res, rec)
	}
	return res, nil
}

func noParent(int, entry) (int64, bool) { return 0, false }

// snapshot runs fn against a consistent snapshot of the database.
func (s *Store) snapshot(fn func(r reader) error) error {
	snap := s.db.NewSnapshot()
	defer snap.Close()
	return fn(snap)
}

// FindRoots implements nestedset.Storage.
func (s *Store) FindRoots(
	ctx context.Context, treeKey int64, attrs []string,
) (res []nestedset.Record, err error) {
	err = s.snapshot(func(r reader) error {
		es, err := roots(r, treeKey)
		if err != nil {
			return err
		}
		res, err = records(r, es, attrs, noParent)
		return err
	})
	return res, err
}

// Find implements nestedset.Storage.
func (s *Store) Find(
	ctx context.Context, id int64, attrs []string,
) (rec nestedset.Record, found bool, err error) {
	err = s.snapshot(func(r reader) error {
		row, ok, err := getRow(r, id)
		if err != nil || !ok {
			return err
		}
		found = true
		rec.Row = nestedset.Row{ID: row.ID, Bounds: row.Bounds, Attrs: row.Attrs.Project(attrs)}
		if row.Level == 1 {
			return nil
		}
		as, err := ancestors(r, row.Bounds)
		if err != nil {
			return err
		}
		if n := len(as); n > 0 && as[n-1].Level == row.Level-1 {
			rec.ParentID, rec.HasParent = as[n-1].id, true
		}
		return nil
	})
	return rec, found, err
}

// FindChildren implements nestedset.Storage.
func (s *Store) FindChildren(
	ctx context.Context, parentID int64, attrs []string,
) (res []nestedset.Record, err error) {
	err = s.snapshot(func(r reader) error {
		p, ok, err := getRow(r, parentID)
		if err != nil || !ok {
			return err
		}
		es, err := children(r, p.Bounds)
		if err != nil {
			return err
		}
		res, err = records(r, es, attrs, func(int, entry) (int64, bool) { return parentID, true })
		return err
	})
	return res, err
}

// FindDescendants implements nestedset.Storage.
func (s *Store) FindDescendants(
	ctx context.Context, id int64, attrs []string,
) (res []nestedset.Record, err error) {
	err = s.snapshot(func(r reader) error {
		n, ok, err := getRow(r, id)
		if err != nil || !ok || n.IsLeaf() {
			return err
		}
		var es []entry
		// The stack holds the path from n down to the current entry's parent.
		stack := []entry{{id: n.ID, Bounds: n.Bounds}}
		parents := make(map[int64]int64)
		err = walk(r, n.TreeKey, n.Left+1, n.Right-1, func(e entry) (int64, bool, error) {
			for stack[len(stack)-1].Right < e.Left {
				stack = stack[:len(stack)-1]
			}
			parents[e.id] = stack[len(stack)-1].id
			stack = append(stack, e)
			es = append(es, e)
			return e.Left, false, nil
		})
		if err != nil {
			return err
		}
		res, err = records(r, es, attrs, func(_ int, e entry) (int64, bool) { return parents[e.id], true })
		return err
	})
	return res, err
}

// FindAncestors implements nestedset.Storage.
func (s *Store) FindAncestors(
	ctx context.Context, id int64, attrs []string,
) (res []nestedset.Record, err error) {
	err = s.snapshot(func(r reader) error {
		n, ok, err := getRow(r, id)
		if err != nil || !ok || n.Level == 1 {
			return err
		}
		es, err := ancestors(r, n.Bounds)
		if err != nil {
			return err
		}
		res, err = records(r, es, attrs, func(i int, _ entry) (int64, bool) {
			if i == 0 {
				return 0, false
			}
			return es[i-1].id, true
		})
		return err
	})
	return res, err
}

// Scan implements nestedset.Storage.
func (s *Store) Scan(ctx context.Context, treeKey int64) (rows []nestedset.Row, err error) {
	err = s.snapshot(func(r reader) error {
		rows, err = scanTree(r, treeKey)
		return err
	})
	return rows, err
}

// UpdateAttributes implements nestedset.Storage. The row is rewritten under
// its tree's lock so that the update cannot be lost to a concurrent
// structural rewrite of the same row.
func (s *Store) UpdateAttributes(
	ctx context.Context, id int64, attrs nestedset.Attributes,
) (int64, error) {
	t := s.begin()
	defer t.finish()
	locked, err := t.LockNodes(ctx, id)
	if err != nil {
		return 0, err
	}
	if _, ok := locked[id]; !ok {
		return 0, nil
	}
	row, _, err := getRow(t.batch, id)
	if err != nil {
		return 0, err
	}
	if row.Attrs == nil {
		row.Attrs = nestedset.Attributes{}
	}
	for k, v := range attrs {
		row.Attrs[k] = v
	}
	if err := t.batch.Set(rowKey(id), rowValue(row), nil); err != nil {
		return 0, err
	}
	if err := t.Commit(ctx); err != nil {
		return 0, err
	}
	return 1, nil
}

// Begin implements nestedset.Storage.
func (s *Store) Begin(ctx context.Context) (nestedset.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.begin(), nil
}
