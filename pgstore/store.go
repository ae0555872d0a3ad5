// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package pgstore implements nestedset.Storage on PostgreSQL through pgx.
//
// The store expects a table with an identity column, a tree key, the left and
// right bounds, the level and one nullable text column per allow-listed
// attribute. Unique constraints on the bounds, if any, must be deferrable:
// the bulk renumbering statements pass through transiently duplicated bounds.
//
// Structural transactions serialize per tree key through a
// transaction-scoped advisory lock and lock the rows they read with SELECT
// ... FOR UPDATE.
package pgstore

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
	"github.com/jackc/pgx/v5"
)

// DB is the part of a connection or pool the store uses. *pgxpool.Pool and
// *pgx.Conn implement it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a nestedset.Storage backed by PostgreSQL.
type Store struct {
	db        DB
	q         *queries
	tableName string
	attrs     []string
}

var _ nestedset.Storage = (*Store)(nil)

// New returns a Store issuing queries against db. Only the Table and
// Attributes options are used.
func New(db DB, opts *nestedset.Options) (*Store, error) {
	opts = opts.Clone().EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		db:        db,
		q:         makeQueries(opts),
		tableName: opts.Table.Name,
		attrs:     opts.Attributes,
	}, nil
}

func unknownAttribute(name string) error {
	return errors.Mark(errors.Newf("pgstore: unknown attribute %q", name), nestedset.ErrInvalidOperation)
}

// read runs fn in its own transaction. The transaction is rolled back unless
// fn succeeds and the commit goes through.
func (s *Store) read(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// scanRecords reads the rows produced by one of the select builders. When
// withParent is set the last column is the (nullable) parent id.
func scanRecords(rows pgx.Rows, attrs []string, withParent bool) ([]nestedset.Record, error) {
	defer rows.Close()
	var res []nestedset.Record
	for rows.Next() {
		var rec nestedset.Record
		vals := make([]*string, len(attrs))
		dest := []any{&rec.ID, &rec.TreeKey, &rec.Left, &rec.Right, &rec.Level}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		var parent *int64
		if withParent {
			dest = append(dest, &parent)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec.Attrs = make(nestedset.Attributes, len(attrs))
		for i, a := range attrs {
			if vals[i] != nil {
				rec.Attrs[a] = *vals[i]
			}
		}
		if parent != nil {
			rec.ParentID, rec.HasParent = *parent, true
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type queryTx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryRecords(
	ctx context.Context, tx queryTx, sql string, attrs []string, withParent bool, args ...any,
) ([]nestedset.Record, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows, attrs, withParent)
}

func (s *Store) records(
	ctx context.Context, build func([]string) (string, []string), attrs []string, withParent bool, key int64,
) (res []nestedset.Record, err error) {
	sql, kept := build(attrs)
	err = s.read(ctx, func(tx pgx.Tx) error {
		res, err = queryRecords(ctx, tx, sql, kept, withParent, key)
		return err
	})
	return res, err
}

// FindRoots implements nestedset.Storage.
func (s *Store) FindRoots(ctx context.Context, treeKey int64, attrs []string) ([]nestedset.Record, error) {
	return s.records(ctx, s.q.findRoots, attrs, false, treeKey)
}

// Find implements nestedset.Storage.
func (s *Store) Find(ctx context.Context, id int64, attrs []string) (nestedset.Record, bool, error) {
	recs, err := s.records(ctx, s.q.find, attrs, true, id)
	if err != nil || len(recs) == 0 {
		return nestedset.Record{}, false, err
	}
	return recs[0], true, nil
}

// FindChildren implements nestedset.Storage.
func (s *Store) FindChildren(ctx context.Context, parentID int64, attrs []string) ([]nestedset.Record, error) {
	return s.records(ctx, s.q.findChildren, attrs, true, parentID)
}

// FindDescendants implements nestedset.Storage.
func (s *Store) FindDescendants(ctx context.Context, id int64, attrs []string) ([]nestedset.Record, error) {
	return s.records(ctx, s.q.findDescendants, attrs, true, id)
}

// FindAncestors implements nestedset.Storage.
func (s *Store) FindAncestors(ctx context.Context, id int64, attrs []string) ([]nestedset.Record, error) {
	return s.records(ctx, s.q.findAncestors, attrs, true, id)
}

func scanRows(recs []nestedset.Record) []nestedset.Row {
	rows := make([]nestedset.Row, len(recs))
	for i := range recs {
		rows[i] = recs[i].Row
	}
	return rows
}

// Scan implements nestedset.Storage.
func (s *Store) Scan(ctx context.Context, treeKey int64) ([]nestedset.Row, error) {
	recs, err := s.records(ctx, s.q.scan, s.attrs, false, treeKey)
	return scanRows(recs), err
}

// UpdateAttributes implements nestedset.Storage.
func (s *Store) UpdateAttributes(
	ctx context.Context, id int64, attrs nestedset.Attributes,
) (n int64, err error) {
	if len(attrs) == 0 {
		return 0, nil
	}
	sql, vals, err := s.q.update(attrs)
	if err != nil {
		return 0, err
	}
	err = s.read(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, append([]any{id}, vals...)...)
		n = tag.RowsAffected()
		return err
	})
	return n, err
}

// Begin implements nestedset.Storage.
func (s *Store) Begin(ctx context.Context) (nestedset.Txn, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txn{s: s, tx: tx}, nil
}
