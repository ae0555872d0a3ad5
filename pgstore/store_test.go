// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pgstore

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
	"github.com/cockroachdb/nestedset/internal/invariants"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeDB records the statements issued against it and answers queries from
// canned results keyed by SQL text.
type fakeDB struct {
	labels  map[string]string
	results map[string][][]any
	tags    map[string]string
	failOn  string
	log     []string
}

func newFakeDB(s *Store) *fakeDB {
	q := s.q
	scan, _ := q.scan(s.attrs)
	return &fakeDB{
		labels: map[string]string{
			q.treeKeys:     "tree-keys",
			q.lockTree:     "lock-tree",
			q.lockRows:     "lock-rows",
			q.lockRoots:    "lock-roots",
			q.shift:        "shift",
			q.deleteRange:  "delete-range",
			q.moveBackward: "move-backward",
			q.moveForward:  "move-forward",
			scan:           "scan",
		},
		results: map[string][][]any{},
		tags:    map[string]string{},
	}
}

func (db *fakeDB) record(sql string, args []any) {
	label, ok := db.labels[sql]
	if !ok {
		label = strings.Fields(sql)[0]
	}
	db.log = append(db.log, fmt.Sprintf("%s %v", label, args))
}

func (db *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	db.log = append(db.log, "BEGIN")
	return &fakeTx{db: db}, nil
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.db.record(sql, args)
	if sql == tx.db.failOn {
		return pgconn.CommandTag{}, errors.New("connection reset")
	}
	return pgconn.NewCommandTag(tx.db.tags[sql]), nil
}

func (tx *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	tx.db.record(sql, args)
	return &fakeRows{rows: tx.db.results[sql]}, nil
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	tx.db.record(sql, args)
	return &fakeRows{rows: tx.db.results[sql], single: true}
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	tx.db.log = append(tx.db.log, "COMMIT")
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	tx.db.log = append(tx.db.log, "ROLLBACK")
	return nil
}

type fakeRows struct {
	pgx.Rows
	rows   [][]any
	pos    int
	single bool
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.single {
		if len(r.rows) == 0 {
			return pgx.ErrNoRows
		}
		r.pos = 1
	}
	row := r.rows[r.pos-1]
	if len(row) != len(dest) {
		return errors.Newf("scanning %d columns into %d destinations", len(row), len(dest))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *int64:
			*d = int64(row[i].(int))
		case **int64:
			*d = nil
			if row[i] != nil {
				v := int64(row[i].(int))
				*d = &v
			}
		case **string:
			*d = nil
			if row[i] != nil {
				v := row[i].(string)
				*d = &v
			}
		default:
			return errors.Newf("unexpected destination %T", d)
		}
	}
	return nil
}

func newTestStore(t *testing.T, opts *nestedset.Options) (*Store, *fakeDB) {
	s, err := New(nil, opts)
	require.NoError(t, err)
	db := newFakeDB(s)
	s.db = db
	return s, db
}

func TestQueries(t *testing.T) {
	opts := &nestedset.Options{Attributes: []string{"title", "code"}}
	s, _ := newTestStore(t, opts)
	q := s.q

	require.Equal(t, `UPDATE "nodes" SET "right" = "right" + $1, `+
		`"left" = CASE WHEN "left" >= $2 THEN "left" + $1 ELSE "left" END `+
		`WHERE "right" >= $2 AND "tree_id" = $3`, q.shift)
	require.Equal(t, `DELETE FROM "nodes" WHERE "left" >= $1 AND "right" <= $2 AND "tree_id" = $3`,
		q.deleteRange)

	sql, kept := q.findRoots([]string{"title", "colour"})
	require.Equal(t, `SELECT c."id", c."tree_id", c."left", c."right", c."level", c."title" `+
		`FROM "nodes" c WHERE c."tree_id" = $1 AND c."level" = 1 ORDER BY c."left"`, sql)
	require.Equal(t, []string{"title"}, kept)

	sql, vals, err := q.insert(nestedset.Attributes{"title": "x", "code": "y"})
	require.NoError(t, err)
	require.Equal(t, `INSERT INTO "nodes" ("tree_id", "left", "right", "level", "code", "title") `+
		`VALUES ($1, $2, $3, $4, $5, $6) RETURNING "id"`, sql)
	require.Equal(t, []any{"y", "x"}, vals)

	sql, vals, err = q.update(nestedset.Attributes{"title": "x", "code": "y"})
	require.NoError(t, err)
	require.Equal(t, `UPDATE "nodes" SET "code" = $2, "title" = $3 WHERE "id" = $1`, sql)
	require.Equal(t, []any{"y", "x"}, vals)

	_, _, err = q.insert(nestedset.Attributes{"colour": "red"})
	require.True(t, errors.Is(err, nestedset.ErrInvalidOperation), "%v", err)
	_, _, err = q.update(nestedset.Attributes{"colour": "red"})
	require.EqualError(t, err, `pgstore: unknown attribute "colour"`)
}

func TestQueriesCustomTable(t *testing.T) {
	s, _ := newTestStore(t, &nestedset.Options{
		Table: nestedset.TableOptions{
			Name: "OrgUnits", ID: "unit_id", TreeKey: "tenant", Left: "lft", Right: "rgt", Level: "depth",
		},
	})
	sql, _ := s.q.find(nil)
	require.Equal(t, `SELECT c."unit_id", c."tenant", c."lft", c."rgt", c."depth", `+
		`(SELECT p."unit_id" FROM "OrgUnits" p WHERE p."tenant" = c."tenant" AND p."lft" < c."lft" `+
		`AND p."rgt" > c."rgt" AND p."depth" = c."depth" - 1) FROM "OrgUnits" c WHERE c."unit_id" = $1`, sql)

	_, err := New(nil, &nestedset.Options{Table: nestedset.TableOptions{Name: `x"; DROP`}})
	require.Error(t, err)
}

func TestReads(t *testing.T) {
	ctx := context.Background()
	s, db := newTestStore(t, nil)

	sql, _ := s.q.findRoots([]string{"title"})
	db.results[sql] = [][]any{{1, 0, 1, 4, 1, "a"}, {3, 0, 5, 6, 1, nil}}
	recs, err := s.FindRoots(ctx, 0, []string{"title", "colour"})
	require.NoError(t, err)
	require.Equal(t, []nestedset.Record{
		{Row: nestedset.Row{ID: 1, Bounds: nestedset.Bounds{Left: 1, Right: 4, Level: 1},
			Attrs: nestedset.Attributes{"title": "a"}}},
		{Row: nestedset.Row{ID: 3, Bounds: nestedset.Bounds{Left: 5, Right: 6, Level: 1},
			Attrs: nestedset.Attributes{}}},
	}, recs)

	sql, _ = s.q.find(nil)
	db.results[sql] = [][]any{{2, 0, 2, 3, 2, 1}}
	rec, ok, err := s.Find(ctx, 2, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), rec.ParentID)
	require.True(t, rec.HasParent)

	delete(db.results, sql)
	_, ok, err = s.Find(ctx, 2, nil)
	require.NoError(t, err)
	require.False(t, ok)

	sql, _, err = s.q.update(nestedset.Attributes{"title": "x"})
	require.NoError(t, err)
	db.tags[sql] = "UPDATE 1"
	n, err := s.UpdateAttributes(ctx, 5, nestedset.Attributes{"title": "x"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.Equal(t, []string{
		"BEGIN", "SELECT [0]", "COMMIT",
		"BEGIN", "SELECT [2]", "COMMIT",
		"BEGIN", "SELECT [2]", "COMMIT",
		"BEGIN", "UPDATE [5 x]", "COMMIT",
	}, db.log)
}

// expectScan returns the statements a verified transaction issues before
// committing.
func expectScan(treeKey int64) []string {
	if !invariants.Enabled {
		return nil
	}
	return []string{fmt.Sprintf("scan [%d]", treeKey)}
}

func TestEngineTransactions(t *testing.T) {
	ctx := context.Background()
	s, db := newTestStore(t, nil)
	e, err := nestedset.New(s, &nestedset.Options{Logger: nestedset.NoopLogger{}})
	require.NoError(t, err)
	scan, _ := s.q.scan(s.attrs)
	insert, _, err := s.q.insert(nestedset.Attributes{"title": "x"})
	require.NoError(t, err)

	t.Run("insert", func(t *testing.T) {
		db.log = nil
		db.results[s.q.treeKeys] = [][]any{{0}}
		db.results[s.q.lockRows] = [][]any{{1, 0, 1, 2, 1}}
		db.results[insert] = [][]any{{2}}
		db.results[scan] = [][]any{{1, 0, 1, 4, 1, "root"}, {2, 0, 2, 3, 2, "x"}}
		n, err := e.InsertIntoParent(ctx, nestedset.Attributes{"title": "x"}, 1)
		require.NoError(t, err)
		require.Equal(t, int64(2), n.PrimaryKey())

		want := []string{
			"BEGIN",
			"tree-keys [[1]]",
			"lock-tree [nodes 0]",
			"lock-rows [[1]]",
			"shift [2 2 0]",
			"INSERT [0 2 3 2 x]",
		}
		want = append(want, expectScan(0)...)
		require.Equal(t, append(want, "COMMIT"), db.log)
	})

	t.Run("move", func(t *testing.T) {
		db.log = nil
		db.results[s.q.treeKeys] = [][]any{{0}}
		db.results[s.q.lockRows] = [][]any{{2, 0, 2, 3, 2}, {3, 0, 4, 5, 2}}
		db.results[scan] = [][]any{{1, 0, 1, 6, 1, "a"}, {3, 0, 2, 3, 2, "c"}, {2, 0, 4, 5, 2, "b"}}
		db.tags[s.q.moveBackward] = "UPDATE 3"
		require.NoError(t, e.MoveToNeighbor(ctx, 3, 2, nestedset.Before))

		want := []string{
			"BEGIN",
			"tree-keys [[3 2]]",
			"lock-tree [nodes 0]",
			"lock-rows [[3 2]]",
			"move-backward [4 5 2 -2 2 0 0]",
		}
		want = append(want, expectScan(0)...)
		require.Equal(t, append(want, "COMMIT"), db.log)
	})

	t.Run("move-forward", func(t *testing.T) {
		db.log = nil
		db.results[s.q.treeKeys] = [][]any{{0}}
		db.results[s.q.lockRows] = [][]any{{1, 0, 1, 6, 1}, {2, 0, 2, 3, 2}}
		db.results[scan] = [][]any{{1, 0, 1, 6, 1, "a"}, {3, 0, 2, 3, 2, "c"}, {2, 0, 4, 5, 2, "b"}}
		db.tags[s.q.moveForward] = "UPDATE 2"
		require.NoError(t, e.MoveIntoParent(ctx, 2, 1))

		want := []string{
			"BEGIN",
			"tree-keys [[2 1]]",
			"lock-tree [nodes 0]",
			"lock-rows [[2 1]]",
			"move-forward [2 3 6 2 2 0 0]",
		}
		want = append(want, expectScan(0)...)
		require.Equal(t, append(want, "COMMIT"), db.log)
	})

	t.Run("append-root", func(t *testing.T) {
		db.log = nil
		db.results[s.q.lockRoots] = [][]any{{4}, {8}}
		db.results[insert] = [][]any{{5}}
		db.results[scan] = [][]any{
			{1, 7, 1, 4, 1, "a"}, {2, 7, 2, 3, 2, "b"},
			{3, 7, 5, 8, 1, "c"}, {4, 7, 6, 7, 2, "d"},
			{5, 7, 9, 10, 1, "x"},
		}
		n, err := e.InsertIntoTree(ctx, nestedset.Attributes{"title": "x"}, 7)
		require.NoError(t, err)
		require.Equal(t, int64(5), n.PrimaryKey())

		want := []string{
			"BEGIN",
			"lock-tree [nodes 7]",
			"lock-roots [7]",
			"INSERT [7 9 10 1 x]",
		}
		want = append(want, expectScan(7)...)
		require.Equal(t, append(want, "COMMIT"), db.log)
	})

	t.Run("plant", func(t *testing.T) {
		db.log = nil
		db.results[s.q.lockRoots] = [][]any{{4}, {8}}
		_, err := e.PlantTree(ctx, nestedset.Attributes{"title": "x"}, 7)
		require.EqualError(t, err, "tree 7 already has roots")
		require.Equal(t, []string{
			"BEGIN", "lock-tree [nodes 7]", "lock-roots [7]", "ROLLBACK",
		}, db.log)
	})

	t.Run("failure", func(t *testing.T) {
		db.log = nil
		db.results[s.q.treeKeys] = [][]any{{0}}
		db.results[s.q.lockRows] = [][]any{{1, 0, 1, 2, 1}}
		db.failOn = s.q.shift
		defer func() { db.failOn = "" }()
		err := e.Delete(ctx, 1)
		require.True(t, errors.Is(err, nestedset.ErrStorage), "%v", err)
		require.Contains(t, err.Error(), "connection reset")
		require.Equal(t, []string{
			"BEGIN",
			"tree-keys [[1]]",
			"lock-tree [nodes 0]",
			"lock-rows [[1]]",
			"delete-range [1 2 0]",
			"shift [-2 2 0]",
			"ROLLBACK",
		}, db.log)
	})
}
