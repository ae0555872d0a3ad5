// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import "sort"

// Attributes maps caller-defined column names to values. A missing key is a
// NULL column.
type Attributes map[string]string

// Clone returns a copy of the attributes. Cloning a nil map returns nil.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	c := make(Attributes, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Project returns the subset of the attributes named in names.
func (a Attributes) Project(names []string) Attributes {
	p := make(Attributes, len(names))
	for _, name := range names {
		if v, ok := a[name]; ok {
			p[name] = v
		}
	}
	return p
}

// Nested is the capability set the engine requires from the values it hands
// back to callers.
type Nested interface {
	PrimaryKey() int64
	// ParentPrimaryKey returns the identity of the immediate parent. The second
	// return value is false for roots.
	ParentPrimaryKey() (int64, bool)
	TreeKey() int64
	Attributes() Attributes
}

// NodeInfo describes a node as known to the engine after a read or a
// structural operation.
type NodeInfo struct {
	ID        int64
	ParentID  int64
	HasParent bool
	TreeKey   int64
	Attrs     Attributes
}

// Factory constructs caller values from engine results. A factory is invoked
// once per returned node and must not retain info.Attrs beyond the call
// unless it owns the map; the engine never reuses it.
type Factory[N Nested] func(info NodeInfo) N

// Node is the default Nested implementation. A Node is immutable once
// constructed.
type Node struct {
	id        int64
	parentID  int64
	hasParent bool
	treeKey   int64
	attrs     Attributes
}

var _ Nested = (*Node)(nil)

// NewNode is the Factory for *Node.
func NewNode(info NodeInfo) *Node {
	return &Node{
		id:        info.ID,
		parentID:  info.ParentID,
		hasParent: info.HasParent,
		treeKey:   info.TreeKey,
		attrs:     info.Attrs,
	}
}

// PrimaryKey implements Nested.
func (n *Node) PrimaryKey() int64 { return n.id }

// ParentPrimaryKey implements Nested.
func (n *Node) ParentPrimaryKey() (int64, bool) { return n.parentID, n.hasParent }

// TreeKey implements Nested.
func (n *Node) TreeKey() int64 { return n.treeKey }

// Attributes implements Nested. The returned map is a copy.
func (n *Node) Attributes() Attributes { return n.attrs.Clone() }

// Attr returns a single attribute.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// Title returns the "title" attribute, or "" if it is not set.
func (n *Node) Title() string {
	return n.attrs["title"]
}
