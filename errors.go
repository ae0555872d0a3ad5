// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import "github.com/cockroachdb/errors"

// The errors below are attached with errors.Mark, so they must be matched with
// the cockroachdb/errors errors.Is. The standard library errors.Is does not
// see marks.
var (
	// ErrNotFound marks errors returned when a node, parent, neighbor or tree
	// required by a structural operation does not exist.
	ErrNotFound = errors.New("nestedset: not found")

	// ErrInvalidOperation marks errors returned for requests that can never
	// succeed against the current tree: moving a node relative to itself, into
	// its own subtree or across trees, or writing an unknown attribute.
	ErrInvalidOperation = errors.New("nestedset: invalid operation")

	// ErrStorage marks every error surfaced by the Storage collaborator:
	// connectivity loss, constraint violations, lock timeouts, deadlocks.
	ErrStorage = errors.New("nestedset: storage failure")

	// ErrCorruption marks errors reporting a violation of the nested-set
	// invariants.
	ErrCorruption = errors.New("nestedset: corruption")
)

// IsValidation returns true if err is a recoverable, caller-induced error
// (ErrNotFound or ErrInvalidOperation). Everything else should be presented
// to users as an unknown failure.
func IsValidation(err error) bool {
	return errors.IsAny(err, ErrNotFound, ErrInvalidOperation)
}

// CorruptionErrorf formats an error marked as ErrCorruption.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

func notFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func invalidf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidOperation)
}

// storageError wraps an error returned by the Storage collaborator. Errors
// that already carry one of the package marks are returned unchanged.
func storageError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.IsAny(err, ErrNotFound, ErrInvalidOperation, ErrStorage, ErrCorruption) {
		return err
	}
	return errors.Mark(errors.Wrapf(err, "nestedset: %s", errors.Safe(op)), ErrStorage)
}
