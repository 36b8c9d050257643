// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package selection defines the rank-n selection and bounding-box types
// shared by the brick index, the slice calculator, and the persisted
// storage façade.
//
// A Selection addresses a hyper-rectangular (or scattered) region of a
// parameter's domain. Each axis is exactly one of an Index, a List, or a
// Range. Bounds is the simpler lo/hi inclusive bounding box used by the
// brick index and by brick/parameter extents.
package selection

import "fmt"

// Kind distinguishes the three per-axis selector shapes.
type Kind int

const (
	KindIndex Kind = iota
	KindList
	KindRange
)

// Axis is one per-dimension selector: a single index, an explicit list of
// indices, or a half-open range with optional start/stop and a step.
type Axis struct {
	Kind Kind

	// KindIndex
	Index int64

	// KindList
	List []int64

	// KindRange: Start/Stop are pointers so "not given" (full axis) is
	// distinguishable from "given as 0". Step defaults to 1 when 0.
	Start *int64
	Stop  *int64
	Step  int64
}

// Ix returns an Axis selecting the single index i.
func Ix(i int64) Axis { return Axis{Kind: KindIndex, Index: i} }

// List returns an Axis selecting exactly the given indices, in order.
func List(ix ...int64) Axis {
	cp := make([]int64, len(ix))
	copy(cp, ix)
	return Axis{Kind: KindList, List: cp}
}

// Rng returns a half-open range axis [start, stop) with the given step.
// A nil start/stop means "unbounded on that side". step <= 0 is treated as 1.
func Rng(start, stop *int64, step int64) Axis {
	if step <= 0 {
		step = 1
	}
	return Axis{Kind: KindRange, Start: start, Stop: stop, Step: step}
}

// Full returns a range axis selecting every index from 0 up to extent.
func Full(extent int64) Axis {
	zero := int64(0)
	return Axis{Kind: KindRange, Start: &zero, Stop: &extent, Step: 1}
}

// Selection is a rank-n tuple of per-axis selectors.
type Selection []Axis

// Rank returns the number of axes in the selection.
func (s Selection) Rank() int { return len(s) }

// Broadcast pads s with trailing full-range axes (using extents[len(s):])
// until it has rank len(extents). It is a no-op if s already has that rank.
func (s Selection) Broadcast(extents []int64) Selection {
	if len(s) >= len(extents) {
		return s
	}
	out := make(Selection, len(extents))
	copy(out, s)
	for i := len(s); i < len(extents); i++ {
		out[i] = Full(extents[i])
	}
	return out
}

// Shape returns the shape of the array produced by applying s against a
// domain of the given extents (used only to size list/range axes whose
// count depends on the domain bound, e.g. an open-ended range).
func (s Selection) Shape(extents []int64) ([]int64, error) {
	if len(s) != len(extents) {
		return nil, fmt.Errorf("selection rank %d does not match domain rank %d", len(s), len(extents))
	}
	shape := make([]int64, len(s))
	for i, ax := range s {
		switch ax.Kind {
		case KindIndex:
			shape[i] = 1
		case KindList:
			shape[i] = int64(len(ax.List))
		case KindRange:
			start := int64(0)
			if ax.Start != nil {
				start = *ax.Start
			}
			stop := extents[i]
			if ax.Stop != nil && *ax.Stop < stop {
				stop = *ax.Stop
			}
			step := ax.Step
			if step <= 0 {
				step = 1
			}
			if stop <= start {
				shape[i] = 0
			} else {
				shape[i] = (stop - start + step - 1) / step
			}
		}
	}
	return shape, nil
}

// Bounds is an inclusive n-d bounding box: Lo[i] <= Hi[i] for every axis.
type Bounds struct {
	Lo []int64
	Hi []int64
}

// NewBounds builds a Bounds from parallel lo/hi slices, copying them.
func NewBounds(lo, hi []int64) Bounds {
	l := make([]int64, len(lo))
	h := make([]int64, len(hi))
	copy(l, lo)
	copy(h, hi)
	return Bounds{Lo: l, Hi: h}
}

// Rank returns the dimensionality of the bounding box.
func (b Bounds) Rank() int { return len(b.Lo) }

// Intersects reports whether b and other overlap on every axis.
func (b Bounds) Intersects(other Bounds) bool {
	n := b.Rank()
	if other.Rank() != n {
		return false
	}
	for i := 0; i < n; i++ {
		if b.Hi[i] < other.Lo[i] || other.Hi[i] < b.Lo[i] {
			return false
		}
	}
	return true
}

// Pad2 returns a copy of b padded to rank 2 by appending a dummy (0,0)
// dimension, per the brick-index rank invariant (spec §4.1): the underlying
// index always operates at rank >= 2.
func (b Bounds) Pad2() Bounds {
	if b.Rank() >= 2 {
		return b
	}
	lo := append(append([]int64{}, b.Lo...), 0)
	hi := append(append([]int64{}, b.Hi...), 0)
	return Bounds{Lo: lo, Hi: hi}
}

// Indices expands a resolved axis selector (no open-ended range bounds)
// into its explicit list of indices, in selection order.
func (a Axis) Indices() []int64 {
	switch a.Kind {
	case KindIndex:
		return []int64{a.Index}
	case KindList:
		return a.List
	case KindRange:
		start, stop := int64(0), int64(0)
		if a.Start != nil {
			start = *a.Start
		}
		if a.Stop != nil {
			stop = *a.Stop
		}
		step := a.Step
		if step <= 0 {
			step = 1
		}
		var out []int64
		for v := start; v < stop; v += step {
			out = append(out, v)
		}
		return out
	}
	return nil
}

// Iterate walks every cell addressed by a fully-resolved selection (no
// open-ended range bounds) in row-major order (last axis fastest), calling
// fn with the n-d index tuple and the corresponding flat position.
func Iterate(s Selection, fn func(ndIndex []int64, flatPos int64)) {
	lists := make([][]int64, len(s))
	for i, ax := range s {
		lists[i] = ax.Indices()
	}
	idx := make([]int64, len(s))
	var flat int64
	var rec func(axis int)
	rec = func(axis int) {
		if axis == len(s) {
			ndCopy := make([]int64, len(idx))
			copy(ndCopy, idx)
			fn(ndCopy, flat)
			flat++
			return
		}
		for _, v := range lists[axis] {
			idx[axis] = v
			rec(axis + 1)
		}
	}
	if len(s) == 0 {
		fn(nil, 0)
		return
	}
	rec(0)
}

// SelectionBounds computes the smallest Bounds enclosing everything s could
// select, given the domain's extents (used to resolve open-ended ranges).
func SelectionBounds(s Selection, extents []int64) (Bounds, error) {
	if len(s) != len(extents) {
		return Bounds{}, fmt.Errorf("selection rank %d does not match domain rank %d", len(s), len(extents))
	}
	lo := make([]int64, len(s))
	hi := make([]int64, len(s))
	for i, ax := range s {
		switch ax.Kind {
		case KindIndex:
			lo[i], hi[i] = ax.Index, ax.Index
		case KindList:
			if len(ax.List) == 0 {
				return Bounds{}, fmt.Errorf("axis %d: empty index list", i)
			}
			mn, mx := ax.List[0], ax.List[0]
			for _, v := range ax.List[1:] {
				if v < mn {
					mn = v
				}
				if v > mx {
					mx = v
				}
			}
			lo[i], hi[i] = mn, mx
		case KindRange:
			start := int64(0)
			if ax.Start != nil {
				start = *ax.Start
			}
			stop := extents[i]
			if ax.Stop != nil && *ax.Stop < stop {
				stop = *ax.Stop
			}
			lo[i] = start
			if stop > start {
				hi[i] = stop - 1
			} else {
				hi[i] = start
			}
		}
	}
	return Bounds{Lo: lo, Hi: hi}, nil
}
