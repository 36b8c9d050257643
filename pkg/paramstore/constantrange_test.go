// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package paramstore

import (
	"testing"

	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConstantRangeSparseExpansion is scenario S4 from the spec.
func TestConstantRangeSparseExpansion(t *testing.T) {
	c := NewConstantRange("sparse", 1)

	c.SetConstant([]float64{10})
	require.NoError(t, c.ExpandDomain(10))
	c.SetConstant([]float64{20})
	require.NoError(t, c.ExpandDomain(20))
	c.SetConstant([]float64{30})
	require.NoError(t, c.ExpandDomain(30))

	zero := int64(0)
	stop := int64(30)
	out, err := c.Get(selection.Selection{selection.Rng(&zero, &stop, 1)})
	require.NoError(t, err)

	want := make([]float64, 30)
	for i := 0; i < 10; i++ {
		want[i] = 10
	}
	for i := 10; i < 20; i++ {
		want[i] = 20
	}
	for i := 20; i < 30; i++ {
		want[i] = 30
	}
	assert.Equal(t, want, out.Nums)
}

// TestConstantRangeSelection is scenario S5 from the spec.
func TestConstantRangeSelection(t *testing.T) {
	c := NewConstantRange("pair", 2)
	c.SetConstant([]float64{-10, 10})
	require.NoError(t, c.ExpandDomain(10))

	out, err := c.Get(selection.Selection{selection.List(2, 7)})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2}, out.Shape)
	assert.Equal(t, []float64{-10, 10, -10, 10}, out.Nums)
}

func TestConstantRangeShrinkFails(t *testing.T) {
	c := NewConstantRange("c", 1)
	require.NoError(t, c.ExpandDomain(10))
	err := c.ExpandDomain(5)
	require.Error(t, err)
}
