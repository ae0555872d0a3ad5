// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package invariants gates expensive self-checks behind the "invariants" and
// "race" build tags. Tree engines verify every touched tree before commit and
// transactions assert they are not used after Commit or Rollback.
package invariants
