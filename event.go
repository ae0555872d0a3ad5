// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import (
	"time"

	"github.com/cockroachdb/redact"
)

// NodeInsertedInfo contains the info for a node insertion event.
type NodeInsertedInfo struct {
	ID int64
	Bounds
	// ParentID is zero for a new root.
	ParentID int64
	// Shifted is the number of positions existing rows were moved by to make
	// room for the node; zero when the node was appended at the root level.
	Shifted  int64
	Duration time.Duration
}

func (i NodeInsertedInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i NodeInsertedInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.ParentID == 0 {
		w.Printf("inserted root %d at %s in %s", redact.SafeInt(i.ID), i.Bounds,
			redact.Safe(i.Duration))
		return
	}
	w.Printf("inserted node %d under %d at %s in %s", redact.SafeInt(i.ID),
		redact.SafeInt(i.ParentID), i.Bounds, redact.Safe(i.Duration))
}

// NodeDeletedInfo contains the info for a subtree deletion event.
type NodeDeletedInfo struct {
	ID int64
	// Bounds are the bounds of the deleted node before the deletion.
	Bounds
	// Rows is the number of rows removed, the node included.
	Rows     int64
	Duration time.Duration
}

func (i NodeDeletedInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i NodeDeletedInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("deleted node %d at %s (%d rows) in %s", redact.SafeInt(i.ID), i.Bounds,
		redact.SafeInt(i.Rows), redact.Safe(i.Duration))
}

// NodeMovedInfo contains the info for a move event.
type NodeMovedInfo struct {
	ID int64
	// TargetID is the new parent or the neighbor.
	TargetID int64
	// Place is only meaningful when IntoParent is false.
	IntoParent bool
	Place      Place
	Plan       MovePlan
	// Noop is true when the node already was at the requested position.
	Noop bool
	// Rows is the number of rows whose bounds or level changed.
	Rows     int64
	Duration time.Duration
}

func (i NodeMovedInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i NodeMovedInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("moved node %d ", redact.SafeInt(i.ID))
	if i.IntoParent {
		w.Printf("into %d", redact.SafeInt(i.TargetID))
	} else {
		w.Printf("%s %d", redact.SafeString(i.Place.String()), redact.SafeInt(i.TargetID))
	}
	if i.Noop {
		w.Printf(": no-op")
		return
	}
	w.Printf(": %s (%d rows) in %s", i.Plan, redact.SafeInt(i.Rows),
		redact.Safe(i.Duration))
}

// TxnAbortedInfo contains the info for a rolled back structural operation.
type TxnAbortedInfo struct {
	// Op is the name of the engine operation, e.g. "move-into-parent".
	Op  string
	Err error
}

func (i TxnAbortedInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i TxnAbortedInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s aborted: %v", redact.SafeString(i.Op), i.Err)
}

// EventListener contains a set of functions that will be invoked when various
// significant engine events occur. Note that the functions should not run for
// an excessive amount of time as they are invoked synchronously by the
// goroutine that performed the operation, after its transaction completed.
type EventListener struct {
	// NodeInserted is invoked after a node has been inserted and committed.
	NodeInserted func(NodeInsertedInfo)

	// NodeDeleted is invoked after a subtree deletion has been committed. It
	// is not invoked when the target did not exist.
	NodeDeleted func(NodeDeletedInfo)

	// NodeMoved is invoked after a move has been committed, including moves
	// that turned out to be no-ops.
	NodeMoved func(NodeMovedInfo)

	// TxnAborted is invoked when a structural operation rolled back its
	// transaction, whether due to a validation failure or a storage error.
	TxnAborted func(TxnAbortedInfo)
}

// EnsureDefaults ensures that background error events are logged to the
// specified logger if a handler for those events hasn't been otherwise
// specified. Ensure all handlers are non-nil so that we don't have to check
// for nil-ness before invoking.
func (l *EventListener) EnsureDefaults(logger Logger) {
	if l.TxnAborted == nil {
		if logger != nil {
			l.TxnAborted = func(info TxnAbortedInfo) {
				if !IsValidation(info.Err) {
					logger.Errorf("%s", info)
				}
			}
		} else {
			l.TxnAborted = func(info TxnAbortedInfo) {}
		}
	}
	if l.NodeInserted == nil {
		l.NodeInserted = func(info NodeInsertedInfo) {}
	}
	if l.NodeDeleted == nil {
		l.NodeDeleted = func(info NodeDeletedInfo) {}
	}
	if l.NodeMoved == nil {
		l.NodeMoved = func(info NodeMovedInfo) {}
	}
}

// MakeLoggingEventListener creates an EventListener that logs all events to
// the specified logger.
func MakeLoggingEventListener(logger Logger) EventListener {
	if logger == nil {
		logger = DefaultLogger{}
	}

	return EventListener{
		NodeInserted: func(info NodeInsertedInfo) {
			logger.Infof("%s", info)
		},
		NodeDeleted: func(info NodeDeletedInfo) {
			logger.Infof("%s", info)
		},
		NodeMoved: func(info NodeMovedInfo) {
			logger.Infof("%s", info)
		},
		TxnAborted: func(info TxnAbortedInfo) {
			logger.Infof("%s", info)
		},
	}
}

// TeeEventListener wraps two EventListeners, forwarding all events to both.
func TeeEventListener(a, b EventListener) EventListener {
	a.EnsureDefaults(nil)
	b.EnsureDefaults(nil)
	return EventListener{
		NodeInserted: func(info NodeInsertedInfo) {
			a.NodeInserted(info)
			b.NodeInserted(info)
		},
		NodeDeleted: func(info NodeDeletedInfo) {
			a.NodeDeleted(info)
			b.NodeDeleted(info)
		},
		NodeMoved: func(info NodeMovedInfo) {
			a.NodeMoved(info)
			b.NodeMoved(info)
		},
		TxnAborted: func(info TxnAbortedInfo) {
			a.TxnAborted(info)
			b.TxnAborted(info)
		},
	}
}
