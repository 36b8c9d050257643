// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package brickfile

import (
	"path/filepath"
	"testing"

	"github.com/ClusterCockpit/covmodel/pkg/cmerrors"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireDatasetCreatesThenValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brick-a.cvbk")

	m, err := RequireDataset(path, "brick-a", []int64{10}, []int64{3}, Float64, 0, -9999, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, m.BrickExtent)

	// Re-opening with matching shape/type succeeds.
	m2, err := RequireDataset(path, "brick-a", []int64{10}, []int64{3}, Float64, 0, -9999, nil)
	require.NoError(t, err)
	assert.Equal(t, m.BrickExtent, m2.BrickExtent)

	// Re-opening with a mismatched shape fails with SchemaMismatch.
	_, err = RequireDataset(path, "brick-a", []int64{20}, []int64{3}, Float64, 0, -9999, nil)
	var mismatch *cmerrors.SchemaMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brick.cvbk")
	_, err := RequireDataset(path, "b", []int64{10}, []int64{3}, Float64, 0, 0, nil)
	require.NoError(t, err)

	start, stop := int64(2), int64(6)
	sel := selection.Selection{selection.Rng(&start, &stop, 1)}
	buf := Array{Type: Float64, Shape: []int64{4}, Nums: []float64{2, 3, 4, 5}}
	require.NoError(t, Write(path, sel, buf))

	got, err := Read(path, sel)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4, 5}, got.Nums)

	// Cells outside the write stay at fill value.
	full := selection.Selection{selection.Full(10)}
	all, err := Read(path, full)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2, 3, 4, 5, 0, 0, 0, 0}, all.Nums)
}

func TestVarBytesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brick-obj.cvbk")
	_, err := RequireDataset(path, "o", []int64{4}, []int64{4}, VarBytes, 0, 0, []byte("fill"))
	require.NoError(t, err)

	sel := selection.Selection{selection.Ix(1)}
	buf := Array{Type: VarBytes, Shape: []int64{1}, Blobs: [][]byte{[]byte("hello world")}}
	require.NoError(t, Write(path, sel, buf))

	got, err := Read(path, selection.Selection{selection.Full(4)})
	require.NoError(t, err)
	require.Len(t, got.Blobs, 4)
	assert.Equal(t, []byte("fill"), got.Blobs[0])
	assert.Equal(t, []byte("hello world"), got.Blobs[1])
	assert.Equal(t, []byte("fill"), got.Blobs[2])
}
