// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package facade exposes a single tree to an external caller, such as a
// lazily loading tree widget, with a uniform contract: every operation
// either succeeds or fails with an *Error whose Class tells a caller mistake
// apart from an internal failure.
package facade

import (
	"context"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/nestedset"
)

// MaxTitleLength is the maximum length of a node title, in characters.
const MaxTitleLength = 100

// ErrTitleTooLong is returned (wrapped in an *Error) for titles exceeding
// MaxTitleLength.
var ErrTitleTooLong = errors.Mark(errors.New("facade: title too long"), nestedset.ErrInvalidOperation)

// Messages presented to callers.
const (
	MessageInvalidRequest = "invalid request parameters"
	MessageUnknown        = "an unknown error occurred"
)

// Class partitions failures.
type Class int8

const (
	// ClassValidation is a failure caused by the request: a missing node, a
	// forbidden move, an over-long title.
	ClassValidation Class = iota
	// ClassUnknown is any other failure, typically a storage error.
	ClassUnknown
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the failure type returned by every Viewer operation.
type Error struct {
	Message string
	Class   Class
	Err     error
}

func (e *Error) Error() string {
	return e.Message + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NodeView is a node as presented to a tree widget.
type NodeView struct {
	Key      int64  `json:"key"`
	Title    string `json:"title"`
	Folder   bool   `json:"folder"`
	Expanded bool   `json:"expanded"`
	Lazy     bool   `json:"lazy"`
}

func view(n *nestedset.Node) NodeView {
	// Every node may receive children, so each is shown as a collapsed folder
	// loaded on demand.
	return NodeView{Key: n.PrimaryKey(), Title: n.Title(), Folder: true, Lazy: true}
}

// Viewer operates on one tree key of an engine.
type Viewer struct {
	engine  *nestedset.Engine[*nestedset.Node]
	treeKey int64
	logger  nestedset.Logger
}

// NewViewer returns a Viewer for treeKey. Failures of the unknown class are
// logged to logger, which may be nil.
func NewViewer(
	engine *nestedset.Engine[*nestedset.Node], treeKey int64, logger nestedset.Logger,
) *Viewer {
	if logger == nil {
		logger = nestedset.NoopLogger{}
	}
	return &Viewer{engine: engine, treeKey: treeKey, logger: logger}
}

// fail classifies err.
func (v *Viewer) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if nestedset.IsValidation(err) {
		return &Error{Message: MessageInvalidRequest, Class: ClassValidation, Err: err}
	}
	v.logger.Errorf("facade: %s: %v", op, err)
	return &Error{Message: MessageUnknown, Class: ClassUnknown, Err: err}
}

func checkTitle(title string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return errors.Wrapf(ErrTitleTooLong, "%d characters", utf8.RuneCountInString(title))
	}
	return nil
}

// Get returns the roots of the tree when parentKey is nil, and the children
// of *parentKey otherwise.
func (v *Viewer) Get(ctx context.Context, parentKey *int64) ([]NodeView, error) {
	var nodes []*nestedset.Node
	var err error
	if parentKey == nil {
		nodes, err = v.engine.FindRoots(ctx, v.treeKey, nil)
	} else {
		nodes, err = v.engine.FindChildrenByParentPrimaryKey(ctx, *parentKey, nil)
	}
	if err != nil {
		return nil, v.fail("get", err)
	}
	res := make([]NodeView, len(nodes))
	for i, n := range nodes {
		res[i] = view(n)
	}
	return res, nil
}

// Move moves key relative to targetKey. place is "over" (into targetKey as
// its last child), "before" or "after" (as targetKey's sibling).
func (v *Viewer) Move(ctx context.Context, key, targetKey int64, place string) error {
	if place == "over" {
		return v.fail("move", v.engine.MoveIntoParent(ctx, key, targetKey))
	}
	p, err := nestedset.ParsePlace(place)
	if err != nil {
		return v.fail("move", err)
	}
	return v.fail("move", v.engine.MoveToNeighbor(ctx, key, targetKey, p))
}

// Create adds a node titled title as the last child of parentKey. A
// parentKey of zero or less adds a new root to the tree, planting the tree if
// it is empty.
func (v *Viewer) Create(ctx context.Context, title string, parentKey int64) (NodeView, error) {
	if err := checkTitle(title); err != nil {
		return NodeView{}, v.fail("create", err)
	}
	attrs := nestedset.Attributes{"title": title}
	var n *nestedset.Node
	var err error
	if parentKey > 0 {
		n, err = v.engine.InsertIntoParent(ctx, attrs, parentKey)
	} else {
		n, err = v.engine.InsertIntoTree(ctx, attrs, v.treeKey)
		if errors.Is(err, nestedset.ErrNotFound) {
			n, err = v.engine.PlantTree(ctx, attrs, v.treeKey)
			// A concurrent Create planted the tree first.
			if errors.Is(err, nestedset.ErrInvalidOperation) {
				n, err = v.engine.InsertIntoTree(ctx, attrs, v.treeKey)
			}
		}
	}
	if err != nil {
		return NodeView{}, v.fail("create", err)
	}
	return view(n), nil
}

// Delete removes key and its subtree.
func (v *Viewer) Delete(ctx context.Context, key int64) error {
	return v.fail("delete", v.engine.Delete(ctx, key))
}

// Edit changes the title of key.
func (v *Viewer) Edit(ctx context.Context, key int64, title string) error {
	if err := checkTitle(title); err != nil {
		return v.fail("edit", err)
	}
	return v.fail("edit", v.engine.UpdateAttributes(ctx, key, nestedset.Attributes{"title": title}))
}
