// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pgstore

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/nestedset"
	"github.com/jackc/pgx/v5"
)

// queries holds the SQL the store issues. Every identifier is taken from
// the store's options, validated and quoted when the store is built; request
// values only ever travel as parameters.
type queries struct {
	table, id, treeKey, left, right, level string
	// attrs maps allow-listed attribute names to quoted column names.
	attrs map[string]string

	parent       string
	treeKeys     string
	lockTree     string
	lockRows     string
	lockRoots    string
	shift        string
	deleteRange  string
	moveBackward string
	moveForward  string
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func makeQueries(o *nestedset.Options) *queries {
	q := &queries{
		table:   quote(o.Table.Name),
		id:      quote(o.Table.ID),
		treeKey: quote(o.Table.TreeKey),
		left:    quote(o.Table.Left),
		right:   quote(o.Table.Right),
		level:   quote(o.Table.Level),
		attrs:   make(map[string]string, len(o.Attributes)),
	}
	for _, a := range o.Attributes {
		q.attrs[a] = quote(a)
	}
	x := func(format string) string {
		return strings.NewReplacer(
			"{T}", q.table, "{ID}", q.id, "{TK}", q.treeKey,
			"{L}", q.left, "{R}", q.right, "{LV}", q.level,
		).Replace(format)
	}

	q.parent = x(`(SELECT p.{ID} FROM {T} p ` +
		`WHERE p.{TK} = c.{TK} AND p.{L} < c.{L} AND p.{R} > c.{R} AND p.{LV} = c.{LV} - 1)`)
	q.treeKeys = x(`SELECT DISTINCT {TK} FROM {T} WHERE {ID} = ANY($1) ORDER BY {TK}`)
	q.lockTree = `SELECT pg_advisory_xact_lock(hashtextextended($1::text, $2::bigint))`
	q.lockRows = x(`SELECT {ID}, {TK}, {L}, {R}, {LV} FROM {T} ` +
		`WHERE {ID} = ANY($1) ORDER BY {ID} FOR UPDATE`)
	q.lockRoots = x(`SELECT {R} FROM {T} WHERE {TK} = $1 AND {LV} = 1 FOR UPDATE`)
	q.shift = x(`UPDATE {T} SET {R} = {R} + $1, ` +
		`{L} = CASE WHEN {L} >= $2 THEN {L} + $1 ELSE {L} END ` +
		`WHERE {R} >= $2 AND {TK} = $3`)
	q.deleteRange = x(`DELETE FROM {T} WHERE {L} >= $1 AND {R} <= $2 AND {TK} = $3`)

	// Move parameters: $1 node left, $2 node right, $3 anchor, $4 skew edit,
	// $5 skew tree, $6 skew level, $7 tree key.
	q.moveBackward = x(`UPDATE {T} SET ` +
		`{L} = CASE WHEN {L} >= $1 THEN {L} + $4 WHEN {L} >= $3 THEN {L} + $5 ELSE {L} END, ` +
		`{R} = CASE WHEN {L} >= $1 THEN {R} + $4 WHEN {R} < $1 THEN {R} + $5 ELSE {R} END, ` +
		`{LV} = CASE WHEN {L} >= $1 THEN {LV} + $6 ELSE {LV} END ` +
		`WHERE {R} >= $3 AND {L} < $2 AND {TK} = $7`)
	q.moveForward = x(`UPDATE {T} SET ` +
		`{L} = CASE WHEN {R} <= $2 THEN {L} + $4 WHEN {L} > $2 THEN {L} - $5 ELSE {L} END, ` +
		`{R} = CASE WHEN {R} <= $2 THEN {R} + $4 WHEN {R} < $3 THEN {R} - $5 ELSE {R} END, ` +
		`{LV} = CASE WHEN {R} <= $2 THEN {LV} + $6 ELSE {LV} END ` +
		`WHERE {R} > $1 AND {L} < $3 AND {TK} = $7`)
	return q
}

// columns returns the select list for alias c: the structural columns
// followed by the given attribute columns. Names outside the allow-list are
// dropped and the retained names are returned.
func (q *queries) columns(attrs []string) (string, []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "c.%s, c.%s, c.%s, c.%s, c.%s", q.id, q.treeKey, q.left, q.right, q.level)
	kept := make([]string, 0, len(attrs))
	for _, a := range attrs {
		col, ok := q.attrs[a]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, ", c.%s", col)
		kept = append(kept, a)
	}
	return b.String(), kept
}

func (q *queries) findRoots(attrs []string) (string, []string) {
	cols, kept := q.columns(attrs)
	return fmt.Sprintf(`SELECT %s FROM %s c WHERE c.%s = $1 AND c.%s = 1 ORDER BY c.%s`,
		cols, q.table, q.treeKey, q.level, q.left), kept
}

func (q *queries) find(attrs []string) (string, []string) {
	cols, kept := q.columns(attrs)
	return fmt.Sprintf(`SELECT %s, %s FROM %s c WHERE c.%s = $1`,
		cols, q.parent, q.table, q.id), kept
}

func (q *queries) findChildren(attrs []string) (string, []string) {
	cols, kept := q.columns(attrs)
	return fmt.Sprintf(`SELECT %[1]s, n.%[3]s FROM %[2]s c JOIN %[2]s n ON n.%[4]s = c.%[4]s `+
		`AND c.%[5]s > n.%[5]s AND c.%[6]s < n.%[6]s AND c.%[7]s = n.%[7]s + 1 `+
		`WHERE n.%[3]s = $1 ORDER BY c.%[5]s`,
		cols, q.table, q.id, q.treeKey, q.left, q.right, q.level), kept
}

func (q *queries) findDescendants(attrs []string) (string, []string) {
	cols, kept := q.columns(attrs)
	return fmt.Sprintf(`SELECT %[1]s, %[8]s FROM %[2]s c JOIN %[2]s n ON n.%[4]s = c.%[4]s `+
		`AND c.%[5]s > n.%[5]s AND c.%[6]s < n.%[6]s `+
		`WHERE n.%[3]s = $1 ORDER BY c.%[5]s`,
		cols, q.table, q.id, q.treeKey, q.left, q.right, q.level, q.parent), kept
}

func (q *queries) findAncestors(attrs []string) (string, []string) {
	cols, kept := q.columns(attrs)
	return fmt.Sprintf(`SELECT %[1]s, %[8]s FROM %[2]s c JOIN %[2]s n ON n.%[4]s = c.%[4]s `+
		`AND c.%[5]s < n.%[5]s AND c.%[6]s > n.%[6]s `+
		`WHERE n.%[3]s = $1 ORDER BY c.%[5]s`,
		cols, q.table, q.id, q.treeKey, q.left, q.right, q.level, q.parent), kept
}

// scan selects every row of a tree with all allow-listed attributes.
func (q *queries) scan(allAttrs []string) (string, []string) {
	cols, kept := q.columns(allAttrs)
	return fmt.Sprintf(`SELECT %s FROM %s c WHERE c.%s = $1 ORDER BY c.%s`,
		cols, q.table, q.treeKey, q.left), kept
}

// insert builds an INSERT for a row carrying the given attributes (sorted).
func (q *queries) insert(attrs nestedset.Attributes) (string, []any, error) {
	cols := []string{q.treeKey, q.left, q.right, q.level}
	var vals []any
	for _, a := range attrs.Keys() {
		col, ok := q.attrs[a]
		if !ok {
			return "", nil, unknownAttribute(a)
		}
		cols = append(cols, col)
		vals = append(vals, attrs[a])
	}
	params := make([]string, len(cols))
	for i := range params {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s`,
		q.table, strings.Join(cols, ", "), strings.Join(params, ", "), q.id), vals, nil
}

// update builds an UPDATE of the given attributes of one row; $1 is the id.
func (q *queries) update(attrs nestedset.Attributes) (string, []any, error) {
	var sets []string
	var vals []any
	for _, a := range attrs.Keys() {
		col, ok := q.attrs[a]
		if !ok {
			return "", nil, unknownAttribute(a)
		}
		vals = append(vals, attrs[a])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(vals)+1))
	}
	return fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $1`,
		q.table, strings.Join(sets, ", "), q.id), vals, nil
}
