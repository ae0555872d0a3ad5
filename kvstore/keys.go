// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package kvstore

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
)

// The store keeps two kinds of keys:
//
//	rowKey:   'r' | id (8 bytes, big-endian)            -> rowValue
//	indexKey: 't' | treeKey (8) | left (8), order-preserving -> indexValue
//
// The index orders every tree by left bound, which is a pre-order walk of the
// tree. A subtree is the contiguous index range [left, right]; its next
// sibling starts at right+1.
const (
	rowPrefix   = 'r'
	indexPrefix = 't'
)

// orderedInt64 maps an int64 onto a uint64 whose big-endian encoding sorts in
// the same order.
func orderedInt64(v int64) uint64 {
	return uint64(v) ^ (1 << 63)
}

func rowKey(id int64) []byte {
	k := make([]byte, 9)
	k[0] = rowPrefix
	binary.BigEndian.PutUint64(k[1:], uint64(id))
	return k
}

func decodeRowKey(k []byte) (int64, error) {
	if len(k) != 9 || k[0] != rowPrefix {
		return 0, nestedset.CorruptionErrorf("kvstore: malformed row key %x", k)
	}
	return int64(binary.BigEndian.Uint64(k[1:])), nil
}

func indexKey(treeKey, left int64) []byte {
	k := make([]byte, 17)
	k[0] = indexPrefix
	binary.BigEndian.PutUint64(k[1:], orderedInt64(treeKey))
	binary.BigEndian.PutUint64(k[9:], orderedInt64(left))
	return k
}

// indexSpan returns the bounds of the index entries of treeKey whose left
// bound lies in [lo, hi].
func indexSpan(treeKey, lo, hi int64) (lower, upper []byte) {
	lower = indexKey(treeKey, lo)
	upper = append(indexKey(treeKey, hi), 0)
	return lower, upper
}

// treeSpan returns the bounds of every index entry of treeKey.
func treeSpan(treeKey int64) (lower, upper []byte) {
	return indexSpan(treeKey, math.MinInt64, math.MaxInt64)
}

func decodeIndexKey(k []byte) (treeKey, left int64, err error) {
	if len(k) != 17 || k[0] != indexPrefix {
		return 0, 0, nestedset.CorruptionErrorf("kvstore: malformed index key %x", k)
	}
	treeKey = int64(binary.BigEndian.Uint64(k[1:]) ^ (1 << 63))
	left = int64(binary.BigEndian.Uint64(k[9:]) ^ (1 << 63))
	return treeKey, left, nil
}

// indexValue holds what the skip-scans need without touching the row: the
// node's identity, its right bound and its level.
func indexValue(r nestedset.Row) []byte {
	buf := make([]byte, 0, 3*binary.MaxVarintLen64)
	buf = binary.AppendVarint(buf, r.ID)
	buf = binary.AppendVarint(buf, r.Right)
	buf = binary.AppendVarint(buf, r.Level)
	return buf
}

// entry is a decoded index entry.
type entry struct {
	id int64
	nestedset.Bounds
}

func decodeIndexEntry(k, v []byte) (entry, error) {
	var e entry
	var err error
	if e.TreeKey, e.Left, err = decodeIndexKey(k); err != nil {
		return entry{}, err
	}
	d := decoder{buf: v}
	e.id = d.varint()
	e.Right = d.varint()
	e.Level = d.varint()
	if d.err != nil || len(d.buf) != 0 {
		return entry{}, nestedset.CorruptionErrorf("kvstore: malformed index value for %s", e.Bounds)
	}
	return e, nil
}

// rowValue encodes a row's bounds and attributes. Attributes are written in
// sorted key order so that equal rows encode identically.
func rowValue(r nestedset.Row) []byte {
	buf := make([]byte, 0, 4*binary.MaxVarintLen64+16*len(r.Attrs))
	buf = binary.AppendVarint(buf, r.TreeKey)
	buf = binary.AppendVarint(buf, r.Left)
	buf = binary.AppendVarint(buf, r.Right)
	buf = binary.AppendVarint(buf, r.Level)
	buf = binary.AppendUvarint(buf, uint64(len(r.Attrs)))
	for _, k := range r.Attrs.Keys() {
		v := r.Attrs[k]
		buf = binary.AppendUvarint(buf, uint64(len(k)))
		buf = append(buf, k...)
		buf = binary.AppendUvarint(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

func decodeRow(id int64, v []byte) (nestedset.Row, error) {
	r := nestedset.Row{ID: id}
	d := decoder{buf: v}
	r.TreeKey = d.varint()
	r.Left = d.varint()
	r.Right = d.varint()
	r.Level = d.varint()
	n := d.uvarint()
	if d.err == nil && n > uint64(len(d.buf)) {
		d.err = errors.New("attribute count exceeds value length")
	}
	if d.err == nil {
		r.Attrs = make(nestedset.Attributes, n)
		for i := uint64(0); i < n && d.err == nil; i++ {
			k := d.bytes()
			v := d.bytes()
			r.Attrs[string(k)] = string(v)
		}
	}
	if d.err == nil && len(d.buf) != 0 {
		d.err = errors.Newf("%d trailing bytes", len(d.buf))
	}
	if d.err != nil {
		return nestedset.Row{}, errors.Mark(
			errors.Wrapf(d.err, "kvstore: malformed row %d", id), nestedset.ErrCorruption)
	}
	return r, nil
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) varint() int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf)
	if n <= 0 {
		d.err = errors.New("bad varint")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.err = errors.New("bad uvarint")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) bytes() []byte {
	n := d.uvarint()
	if d.err != nil {
		return nil
	}
	if n > uint64(len(d.buf)) {
		d.err = errors.New("short buffer")
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}
