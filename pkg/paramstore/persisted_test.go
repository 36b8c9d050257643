// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package paramstore

import (
	"path/filepath"
	"testing"

	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/brickindex"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocator struct{ refs []BrickRef }

func (f *fakeLocator) Intersect(b selection.Bounds) []BrickRef { return f.refs }

// syncDispatcher applies work items immediately, standing in for C6 in
// tests that only care about C4's selection-to-brick routing.
type syncDispatcher struct{}

func (syncDispatcher) Put(key string, metrics brickfile.Metrics, work []WorkItem) error {
	for _, w := range work {
		if err := brickfile.Write(metrics.Path, w.BrickSel, w.Buffer); err != nil {
			return err
		}
	}
	return nil
}

func TestPersistedGetAcrossTwoBricks(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.cvbk")
	pathB := filepath.Join(dir, "b.cvbk")

	_, err := brickfile.RequireDataset(pathA, "a", []int64{6}, []int64{3}, brickfile.Float64, 0, -1, nil)
	require.NoError(t, err)
	_, err = brickfile.RequireDataset(pathB, "b", []int64{4}, []int64{2}, brickfile.Float64, 0, -1, nil)
	require.NoError(t, err)

	zero := int64(0)
	six := int64(6)
	require.NoError(t, brickfile.Write(pathA, selection.Selection{selection.Rng(&zero, &six, 1)},
		brickfile.Array{Type: brickfile.Float64, Shape: []int64{6}, Nums: []float64{0, 1, 2, 3, 4, 5}}))
	four := int64(4)
	require.NoError(t, brickfile.Write(pathB, selection.Selection{selection.Rng(&zero, &four, 1)},
		brickfile.Array{Type: brickfile.Float64, Shape: []int64{4}, Nums: []float64{6, 7, 8, 9}}))

	locator := &fakeLocator{refs: []BrickRef{
		{ID: brickindex.BrickID("a"), Origin: []int64{0}, Size: []int64{6}, Path: pathA},
		{ID: brickindex.BrickID("b"), Origin: []int64{6}, Size: []int64{4}, Path: pathB},
	}}
	p := NewPersisted("p", brickfile.Float64, -1, []int64{10}, locator, syncDispatcher{})

	start := int64(0)
	stop := int64(10)
	out, err := p.Get(selection.Selection{selection.Rng(&start, &stop, 1)})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, out.Nums)
}

func TestPersistedSetRoutesThroughDispatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cvbk")
	_, err := brickfile.RequireDataset(path, "a", []int64{6}, []int64{3}, brickfile.Float64, 0, -1, nil)
	require.NoError(t, err)

	locator := &fakeLocator{refs: []BrickRef{{ID: brickindex.BrickID("a"), Origin: []int64{0}, Size: []int64{6}, Path: path}}}
	p := NewPersisted("p", brickfile.Float64, -1, []int64{6}, locator, syncDispatcher{})

	two := int64(2)
	five := int64(5)
	require.NoError(t, p.Set(selection.Selection{selection.Rng(&two, &five, 1)},
		brickfile.Array{Type: brickfile.Float64, Shape: []int64{3}, Nums: []float64{20, 30, 40}}))

	start := int64(0)
	stop := int64(6)
	out, err := p.Get(selection.Selection{selection.Rng(&start, &stop, 1)})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, -1, 20, 30, 40, -1}, out.Nums)
}
