// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sliceselect provides calculator.go: per-brick sub-selection
// computation (spec §4.3).
//
// Given a user selection, a brick's (origin, size), and a shared cursor
// tracking how much of the user buffer has been filled so far per axis,
// Resolve computes the brick-local sub-selection to read/write and the
// matching sub-region of the user buffer, advancing the cursor.
//
// Grounded on the hyperslab local-origin translation used by the HDF5
// reference files in the pack (each axis is translated into the brick's
// own coordinate frame independently, exactly as a hyperslab selection is
// translated against a dataset's chunk grid).
package sliceselect

import (
	"github.com/ClusterCockpit/covmodel/pkg/cmerrors"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
)

// Cursor tracks, per axis, how many buffer positions have already been
// assigned by previously-visited bricks. Callers share one Cursor across
// every brick touched by a single get/set so that results from multiple
// bricks land contiguously in the user buffer, in ascending-origin order.
type Cursor []int64

// NewCursor returns a zeroed cursor for a selection of the given rank.
func NewCursor(rank int) Cursor { return make(Cursor, rank) }

// Resolve computes the brick-local sub-selection and the corresponding
// buffer sub-selection for one brick, advancing cur in place.
//
// origin and size are the brick's nominal origin and size (spec §3); sel is
// the user's selection, already broadcast to the parameter's rank.
func Resolve(sel selection.Selection, origin, size []int64, cur Cursor) (brickSel, bufSel selection.Selection, err error) {
	n := len(sel)
	brickSel = make(selection.Selection, n)
	bufSel = make(selection.Selection, n)

	for i := 0; i < n; i++ {
		bo, bs := origin[i], size[i]
		ax := sel[i]

		switch ax.Kind {
		case selection.KindIndex:
			s := ax.Index
			if s < bo || s >= bo+bs {
				return nil, nil, &cmerrors.OutOfBrick{Axis: i, Index: s}
			}
			brickSel[i] = selection.Ix(s - bo)
			bufSel[i] = selection.Ix(cur[i])
			cur[i]++

		case selection.KindList:
			var local []int64
			for _, x := range ax.List {
				if x >= bo && x < bo+bs {
					local = append(local, x-bo)
				}
			}
			if len(local) == 0 {
				return nil, nil, &cmerrors.NoOverlap{Axis: i}
			}
			brickSel[i] = selection.List(local...)
			start := cur[i]
			stop := cur[i] + int64(len(local))
			bufSel[i] = selection.Rng(&start, &stop, 1)
			cur[i] = stop

		case selection.KindRange:
			if (ax.Start != nil && *ax.Start > bo+bs) || (ax.Stop != nil && *ax.Stop < bo) {
				return nil, nil, &cmerrors.NoOverlap{Axis: i}
			}
			localStart := int64(0)
			if ax.Start != nil {
				if v := *ax.Start - bo; v > 0 {
					localStart = v
				}
			}
			localStop := bs
			if ax.Stop != nil {
				if v := *ax.Stop - bo; v <= bs {
					localStop = v
				}
			}
			step := ax.Step
			if step <= 0 {
				step = 1
			}
			count := int64(0)
			if localStop > localStart {
				count = (localStop - localStart + step - 1) / step
			}
			brickSel[i] = selection.Rng(&localStart, &localStop, step)
			start := cur[i]
			stop := cur[i] + count
			bufSel[i] = selection.Rng(&start, &stop, 1)
			cur[i] = stop
		}
	}
	return brickSel, bufSel, nil
}

// OutputShape returns the shape of the assembled result array for sel
// applied against a domain of the given extents: 1 per integer axis
// (collapsible to scalar on scalar-only selections), list length per list
// axis, and selected-index count per range axis.
func OutputShape(sel selection.Selection, extents []int64) ([]int64, error) {
	return sel.Shape(extents)
}
