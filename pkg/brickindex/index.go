// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package brickindex provides index.go: the per-parameter spatial index
// mapping hyper-rectangular selections to the bricks that cover them.
//
// # Index architecture
//
// Unlike the hierarchical selector tree in the metric store (cluster -> host
// -> socket -> ...), a brick index has no natural nesting: any two bricks
// can be adjacent along any axis. Entries are therefore kept in a flat,
// bucketed structure rather than a tree: each entry is filed under every
// coarse grid cell its bounds touch on the first two (padded) axes
// (coordinates divided by a fixed cell size) so that intersect() only has
// to linearly scan entries sharing a cell with the query, instead of every
// brick ever inserted.
//
// # Rank invariant
//
// Per spec, the index always operates at rank >= 2: 1-d parameters get a
// dummy second dimension of (0, 0) appended to every inserted bound and to
// every query, both in Insert/Intersect. Callers (persisted storage, C4)
// never see this padding; it is purely internal bookkeeping.
//
// # Concurrency
//
// A single RWMutex protects the entry map and bucket index, following the
// read-heavy/write-rare pattern used by the metric store's Level tree:
// Intersect and Bounds take RLock, Insert takes Lock.
package brickindex

import (
	"sync"

	"github.com/ClusterCockpit/covmodel/pkg/selection"
)

// BrickID is an opaque 128-bit brick identifier (see internal/ids).
type BrickID string

type entry struct {
	id BrickID
	b  selection.Bounds
}

// cellSize is the coarse bucketing granularity on the two bucketed axes. A
// brick is filed under every bucket its bounds span there, and Intersect
// scans every bucket the query spans.
const cellSize = int64(64)

type cellKey struct {
	k0, k1 int64
}

// Index is the spatial index for one parameter. Rank is fixed at
// construction (the parameter's rank, padded to >= 2 internally).
type Index struct {
	mu      sync.RWMutex
	rank    int // >= 2, the padded rank
	entries map[BrickID]entry
	buckets map[cellKey][]BrickID
}

// New creates an empty index for a parameter of dimensionality n.
// n may be 1; internally the index always operates at rank max(n, 2).
func New(n int) *Index {
	rank := n
	if rank < 2 {
		rank = 2
	}
	return &Index{
		rank:    rank,
		entries: make(map[BrickID]entry),
		buckets: make(map[cellKey][]BrickID),
	}
}

func (ix *Index) pad(b selection.Bounds) selection.Bounds {
	if b.Rank() == ix.rank {
		return b
	}
	return b.Pad2()
}

func bucketsFor(b selection.Bounds) []cellKey {
	lo0, hi0 := b.Lo[0]/cellSize, b.Hi[0]/cellSize
	lo1, hi1 := b.Lo[1]/cellSize, b.Hi[1]/cellSize
	keys := make([]cellKey, 0, (hi0-lo0+1)*(hi1-lo1+1))
	for k0 := lo0; k0 <= hi0; k0++ {
		for k1 := lo1; k1 <= hi1; k1++ {
			keys = append(keys, cellKey{k0, k1})
		}
	}
	return keys
}

// Insert records a brick's bounding box under its identifier. bounds is
// (lo, hi) inclusive in the parameter's own (unpadded) rank.
func (ix *Index) Insert(id BrickID, bounds selection.Bounds) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	padded := ix.pad(bounds)
	ix.entries[id] = entry{id: id, b: padded}
	for _, k := range bucketsFor(padded) {
		ix.buckets[k] = append(ix.buckets[k], id)
	}
}

// Intersect returns every brick identifier whose bounds intersect the given
// selection bounds. The result is unordered and duplicate-free.
func (ix *Index) Intersect(queryBounds selection.Bounds) []BrickID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	q := ix.pad(queryBounds)
	seen := make(map[BrickID]struct{})
	var out []BrickID
	for _, k := range bucketsFor(q) {
		for _, id := range ix.buckets[k] {
			if _, ok := seen[id]; ok {
				continue
			}
			e, ok := ix.entries[id]
			if !ok {
				continue
			}
			if e.b.Intersects(q) {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// Bounds returns the global bounding box over every inserted brick, and
// false if the index is empty.
func (ix *Index) Bounds() (selection.Bounds, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.entries) == 0 {
		return selection.Bounds{}, false
	}
	var lo, hi []int64
	first := true
	for _, e := range ix.entries {
		if first {
			lo = append([]int64{}, e.b.Lo...)
			hi = append([]int64{}, e.b.Hi...)
			first = false
			continue
		}
		for i := range lo {
			if e.b.Lo[i] < lo[i] {
				lo[i] = e.b.Lo[i]
			}
			if e.b.Hi[i] > hi[i] {
				hi[i] = e.b.Hi[i]
			}
		}
	}
	return selection.Bounds{Lo: lo, Hi: hi}, true
}

// Len returns the number of bricks currently indexed.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}
