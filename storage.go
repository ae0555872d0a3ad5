// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import (
	"context"

	"github.com/cockroachdb/redact"
)

// Bounds is the structural part of a row: the tree it belongs to, its
// [Left, Right] interval and its depth.
type Bounds struct {
	TreeKey int64
	Left    int64
	Right   int64
	Level   int64
}

// Width returns the number of interval positions the node and its subtree
// occupy. It is always twice the number of descendants plus two.
func (b Bounds) Width() int64 {
	return b.Right - b.Left + 1
}

// Contains returns true if o lies strictly inside b within the same tree.
func (b Bounds) Contains(o Bounds) bool {
	return b.TreeKey == o.TreeKey && b.Left < o.Left && o.Right < b.Right
}

// IsLeaf returns true if the node has no descendants.
func (b Bounds) IsLeaf() bool {
	return b.Right == b.Left+1
}

// SafeFormat implements redact.SafeFormatter.
func (b Bounds) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("t%d[%d,%d]L%d", redact.SafeInt(b.TreeKey), redact.SafeInt(b.Left),
		redact.SafeInt(b.Right), redact.SafeInt(b.Level))
}

// String implements fmt.Stringer.
func (b Bounds) String() string {
	return redact.StringWithoutMarkers(b)
}

// Row is one stored node.
type Row struct {
	ID int64
	Bounds
	Attrs Attributes
}

// Record is a row returned by a read, with its derived parent.
type Record struct {
	Row
	ParentID  int64
	HasParent bool
}

// Storage is the collaborator the engine runs against. Implementations must
// provide transactions with pessimistic locking and atomic multi-row
// updates; see the kvstore and pgstore packages.
//
// Read methods take no locks. The attrs argument names the attribute columns
// to project; the engine only passes allow-listed names.
type Storage interface {
	// Begin starts a read-write transaction.
	Begin(ctx context.Context) (Txn, error)
	// FindRoots returns the level 1 rows of a tree ordered by Left.
	FindRoots(ctx context.Context, treeKey int64, attrs []string) ([]Record, error)
	// Find returns a row and its derived parent. The second return value is
	// false if the row does not exist.
	Find(ctx context.Context, id int64, attrs []string) (Record, bool, error)
	// FindChildren returns the direct children of a row ordered by Left, or
	// nothing if the row does not exist.
	FindChildren(ctx context.Context, parentID int64, attrs []string) ([]Record, error)
	// FindDescendants returns the whole subtree below a row in pre-order.
	FindDescendants(ctx context.Context, id int64, attrs []string) ([]Record, error)
	// FindAncestors returns the rows strictly containing a row, root first.
	FindAncestors(ctx context.Context, id int64, attrs []string) ([]Record, error)
	// UpdateAttributes overwrites the given attributes of a row and returns
	// the number of rows affected (zero if the row does not exist).
	UpdateAttributes(ctx context.Context, id int64, attrs Attributes) (int64, error)
	// Scan returns every row of a tree ordered by Left, with all stored
	// attributes.
	Scan(ctx context.Context, treeKey int64) ([]Row, error)
}

// Txn is a read-write transaction. A Txn is used by a single goroutine.
type Txn interface {
	// LockNodes acquires exclusive locks on the given rows and returns the
	// current bounds of those that exist. Rows are locked in a deterministic
	// order so that concurrent callers cannot deadlock each other.
	LockNodes(ctx context.Context, ids ...int64) (map[int64]Bounds, error)
	// LockRoots locks the roots of a tree and returns the maximum Right among
	// them. The second return value is false if the tree has no roots; the
	// tree stays locked regardless, so a first root can be planted safely.
	LockRoots(ctx context.Context, treeKey int64) (maxRight int64, ok bool, err error)
	// Shift applies a gap shift to every row of s.TreeKey.
	Shift(ctx context.Context, s Shift) error
	// Insert stores a new row and returns its assigned identity. r.ID is
	// ignored.
	Insert(ctx context.Context, r Row) (int64, error)
	// DeleteRange deletes the rows of b.TreeKey lying within [b.Left, b.Right]
	// and returns how many were deleted.
	DeleteRange(ctx context.Context, b Bounds) (int64, error)
	// Move applies a move plan as one bulk conditional update and returns the
	// number of rows changed.
	Move(ctx context.Context, p MovePlan) (int64, error)
	// Scan returns every row of a tree as seen by this transaction.
	Scan(ctx context.Context, treeKey int64) ([]Row, error)
	// Commit makes the transaction's writes visible and releases its locks.
	Commit(ctx context.Context) error
	// Rollback discards the transaction's writes and releases its locks.
	Rollback(ctx context.Context) error
}
