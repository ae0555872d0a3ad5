// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestCheckInvariants(t *testing.T) {
	require.NoError(t, CheckInvariants(nil))
	require.NoError(t, CheckInvariants(toRows(fixtureRows())))

	// Multiple roots are allowed.
	require.NoError(t, CheckInvariants([]Row{
		{ID: 1, Bounds: Bounds{Left: 1, Right: 2, Level: 1}},
		{ID: 2, Bounds: Bounds{Left: 3, Right: 6, Level: 1}},
		{ID: 3, Bounds: Bounds{Left: 4, Right: 5, Level: 2}},
	}))

	testCases := []struct {
		name   string
		mutate func(m map[int64]Bounds)
		want   string
	}{
		{
			name:   "inverted",
			mutate: func(m map[int64]Bounds) { m[2] = Bounds{Left: 3, Right: 2, Level: 2} },
			want:   "node 2: left 3 not below right 2",
		},
		{
			name:   "out of range",
			mutate: func(m map[int64]Bounds) { m[1] = Bounds{Left: 1, Right: 21, Level: 1} },
			want:   "node 1: bound 21 outside [1, 20]",
		},
		{
			name: "duplicate bound",
			mutate: func(m map[int64]Bounds) {
				m[10] = Bounds{Left: 17, Right: 19, Level: 2}
			},
			want: "bound 17 used twice",
		},
		{
			name: "overlap",
			mutate: func(m map[int64]Bounds) {
				m[2] = Bounds{Left: 2, Right: 5, Level: 2}
				m[3] = Bounds{Left: 3, Right: 17, Level: 2}
				m[4] = Bounds{Left: 4, Right: 8, Level: 3}
			},
			want: "overlaps",
		},
		{
			name:   "wrong level",
			mutate: func(m map[int64]Bounds) { m[7] = Bounds{Left: 10, Right: 11, Level: 3} },
			want:   "node 7: level 3 inside node 6 at level 3",
		},
		{
			name:   "root level",
			mutate: func(m map[int64]Bounds) { m[1] = Bounds{Left: 1, Right: 20, Level: 2} },
			want:   "node 1: root at level 2",
		},
		{
			name:   "mixed trees",
			mutate: func(m map[int64]Bounds) { m[10] = Bounds{TreeKey: 1, Left: 18, Right: 19, Level: 2} },
			want:   "tree 1 mixed with tree 0",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := fixtureRows()
			tc.mutate(m)
			err := CheckInvariants(toRows(m))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrCorruption), "%v", err)
			require.False(t, IsValidation(err))
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
