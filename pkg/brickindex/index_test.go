// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package brickindex

import (
	"testing"

	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex1DPadding(t *testing.T) {
	ix := New(1)

	ix.Insert("brick-a", selection.NewBounds([]int64{0}, []int64{5}))
	ix.Insert("brick-b", selection.NewBounds([]int64{6}, []int64{11}))

	got := ix.Intersect(selection.NewBounds([]int64{4}, []int64{7}))
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []BrickID{"brick-a", "brick-b"}, got)

	got = ix.Intersect(selection.NewBounds([]int64{100}, []int64{200}))
	assert.Empty(t, got)
}

func TestIndexIntersectIsDuplicateFree(t *testing.T) {
	ix := New(2)
	ix.Insert("only", selection.NewBounds([]int64{0, 0}, []int64{200, 200}))

	got := ix.Intersect(selection.NewBounds([]int64{0, 0}, []int64{199, 199}))
	require.Len(t, got, 1)
	assert.Equal(t, BrickID("only"), got[0])
}

func TestIndexBounds(t *testing.T) {
	ix := New(2)
	_, ok := ix.Bounds()
	assert.False(t, ok)

	ix.Insert("a", selection.NewBounds([]int64{0, 0}, []int64{9, 9}))
	ix.Insert("b", selection.NewBounds([]int64{10, 0}, []int64{19, 9}))

	b, ok := ix.Bounds()
	require.True(t, ok)
	assert.Equal(t, []int64{0, 0}, b.Lo)
	assert.Equal(t, []int64{19, 9}, b.Hi)
}

func TestIndexLen(t *testing.T) {
	ix := New(2)
	assert.Equal(t, 0, ix.Len())
	ix.Insert("a", selection.NewBounds([]int64{0, 0}, []int64{1, 1}))
	assert.Equal(t, 1, ix.Len())
}
