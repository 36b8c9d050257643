// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package paramstore implements the persisted-storage façade (spec §4.4):
// one instance per parameter, resolving selections down to bricks and
// routing reads synchronously and writes through a dispatcher.
//
// Grounded on the teacher's per-metric read path in
// pkg/metricstore/metricstore.go (MemoryStore.Get walks a selector down a
// Level tree to the leaf buffers it needs); here the walk is instead an n-d
// selection intersected against a spatial brick index, generalized by
// pkg/brickindex (C1) and pkg/sliceselect (C3).
package paramstore

import (
	"sort"

	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/brickindex"
	"github.com/ClusterCockpit/covmodel/pkg/cmerrors"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
)

// BrickRef locates one brick on disk: its identifier, its origin and size
// in the parameter's own coordinate space, and its backing file path.
type BrickRef struct {
	ID     brickindex.BrickID
	Origin []int64
	Size   []int64
	Path   string
}

// BrickLocator resolves a bounding box to the bricks covering it. C5
// (pkg/persistence) implements this over its per-parameter brickindex.Index
// plus brick metadata; tests may substitute a fake.
type BrickLocator interface {
	Intersect(b selection.Bounds) []BrickRef
}

// WorkItem is one (brick-local sub-selection, buffer sub-region) pair, the
// unit §4.4's set() enqueues per intersecting brick.
type WorkItem struct {
	BrickSel selection.Selection
	Buffer   brickfile.Array
}

// Dispatcher is the subset of C6's public contract Persisted.Set needs:
// enqueueing a key's work-list for asynchronous, ordered application.
type Dispatcher interface {
	Put(key string, metrics brickfile.Metrics, work []WorkItem) error
}

// Parameter is the common façade both Persisted and InMemory implement
// (spec §4.4's get/set/fill/reinit operations).
type Parameter interface {
	Name() string
	Rank() int
	ElementType() brickfile.ElementType
	Extents() []int64

	Get(sel selection.Selection) (brickfile.Array, error)
	Set(sel selection.Selection, buf brickfile.Array) error
	Fill(value float64) error
	Reinit(other Parameter) error
}

// broadcastAndCheck pads sel with trailing full-range axes to match rank,
// failing with SelectionRankMismatch if sel is longer than rank, per §4.4.
func broadcastAndCheck(sel selection.Selection, extents []int64) (selection.Selection, error) {
	if sel.Rank() > len(extents) {
		return nil, &cmerrors.SelectionRankMismatch{SelectionRank: sel.Rank(), ParameterRank: len(extents)}
	}
	return sel.Broadcast(extents), nil
}

// sortRefsByOrigin orders bricks so visitation proceeds in ascending origin
// order along each axis, per §4.4's determinism requirement.
func sortRefsByOrigin(refs []BrickRef) {
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i].Origin, refs[j].Origin
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
}

// assignInto copies src (shaped per srcSel, in src's own flat order) into
// dest at the positions named by destSel, assuming destSel and srcSel were
// built together by sliceselect.Resolve and so iterate in lockstep.
func assignInto(dest brickfile.Array, destSel selection.Selection, src brickfile.Array) {
	st := stridesOf(dest.Shape)
	selection.Iterate(destSel, func(nd []int64, flat int64) {
		linear := int64(0)
		for i, v := range nd {
			linear += v * st[i]
		}
		if dest.Type.IsObject() {
			dest.Blobs[linear] = src.Blobs[flat]
		} else {
			dest.Nums[linear] = src.Nums[flat]
		}
	})
}

// extractFrom is assignInto's inverse: it builds a fresh Array shaped per
// srcSel, reading cells out of src at the positions named by srcSel.
func extractFrom(src brickfile.Array, srcSel selection.Selection) brickfile.Array {
	shape, _ := srcSel.Shape(src.Shape)
	st := stridesOf(src.Shape)
	out := brickfile.Array{Type: src.Type, Shape: shape}
	n := cellCountOf(shape)
	if src.Type.IsObject() {
		out.Blobs = make([][]byte, n)
	} else {
		out.Nums = make([]float64, n)
	}
	selection.Iterate(srcSel, func(nd []int64, flat int64) {
		linear := int64(0)
		for i, v := range nd {
			linear += v * st[i]
		}
		if src.Type.IsObject() {
			out.Blobs[flat] = src.Blobs[linear]
		} else {
			out.Nums[flat] = src.Nums[linear]
		}
	})
	return out
}

func stridesOf(shape []int64) []int64 {
	s := make([]int64, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

func cellCountOf(shape []int64) int64 {
	n := int64(1)
	for _, s := range shape {
		n *= s
	}
	return n
}
