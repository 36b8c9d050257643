// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sliceselect

import (
	"testing"

	"github.com/ClusterCockpit/covmodel/pkg/cmerrors"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCrossBrickRange mirrors scenario S6: temporal brick extent 6, total
// extent 10, writing/reading range [0,10) crossing the brick boundary at 6.
func TestCrossBrickRange(t *testing.T) {
	start, stop := int64(0), int64(10)
	sel := selection.Selection{selection.Rng(&start, &stop, 1)}

	cur := NewCursor(1)
	brickSel, bufSel, err := Resolve(sel, []int64{0}, []int64{6}, cur)
	require.NoError(t, err)
	assert.Equal(t, int64(0), *brickSel[0].Start)
	assert.Equal(t, int64(6), *brickSel[0].Stop)
	assert.Equal(t, int64(0), *bufSel[0].Start)
	assert.Equal(t, int64(6), *bufSel[0].Stop)

	brickSel2, bufSel2, err := Resolve(sel, []int64{6}, []int64{6}, cur)
	require.NoError(t, err)
	assert.Equal(t, int64(0), *brickSel2[0].Start)
	assert.Equal(t, int64(4), *brickSel2[0].Stop) // only 4 cells remain in [6,10)
	assert.Equal(t, int64(6), *bufSel2[0].Start)
	assert.Equal(t, int64(10), *bufSel2[0].Stop)
}

func TestIndexOutOfBrick(t *testing.T) {
	sel := selection.Selection{selection.Ix(20)}
	_, _, err := Resolve(sel, []int64{0}, []int64{6}, NewCursor(1))
	var oob *cmerrors.OutOfBrick
	require.ErrorAs(t, err, &oob)
}

func TestListNoOverlap(t *testing.T) {
	sel := selection.Selection{selection.List(100, 101)}
	_, _, err := Resolve(sel, []int64{0}, []int64{6}, NewCursor(1))
	var no *cmerrors.NoOverlap
	require.ErrorAs(t, err, &no)
}

func TestListPartialOverlap(t *testing.T) {
	sel := selection.Selection{selection.List(4, 5, 6, 7)}
	brickSel, bufSel, err := Resolve(sel, []int64{0}, []int64{6}, NewCursor(1))
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, brickSel[0].List)
	assert.Equal(t, int64(0), *bufSel[0].Start)
	assert.Equal(t, int64(2), *bufSel[0].Stop)
}
