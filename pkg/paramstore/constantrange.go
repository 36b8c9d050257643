// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package paramstore

import (
	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/cmerrors"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
)

// ConstantRange is a sparse-constant parameter: rather than allocating a
// dense brick per cell, it records a small ordered list of (half-open
// index range, constant tuple) segments over a single temporal axis, and
// answers get() by looking each requested index up against the segment
// covering it. Grounded on coverage_model/parameter_values.py's
// get_value_class dispatch (a parameter's storage strategy is chosen per
// its declared value class; this is the "constant with range" class,
// reduced to what spec scenarios S4/S5 exercise).
//
// width is the tuple arity: 1 for a bare scalar constant (S4), 2 for a
// (lo, hi) pair (S5). Domain expansion (ExpandDomain) captures whatever
// value SetConstant last recorded and applies it to the newly added index
// range, so a parameter reassigned between expansions ends up holding a
// genuinely piecewise-constant history.
type ConstantRange struct {
	name   string
	width  int
	length int64
	value  []float64
	segs   []rangeSegment
}

type rangeSegment struct {
	lo, hi int64 // half-open [lo, hi) on the temporal axis
	value  []float64
}

// NewConstantRange creates an empty (zero-length) constant-range parameter
// whose constant is a width-tuple, initially all zero.
func NewConstantRange(name string, width int) *ConstantRange {
	if width < 1 {
		width = 1
	}
	return &ConstantRange{name: name, width: width, value: make([]float64, width)}
}

func (c *ConstantRange) Name() string                      { return c.name }
func (c *ConstantRange) Rank() int                          { return 1 }
func (c *ConstantRange) ElementType() brickfile.ElementType { return brickfile.Float64 }
func (c *ConstantRange) Extents() []int64                   { return []int64{c.length} }

// SetConstant changes the value future ExpandDomain calls will stamp onto
// newly added index ranges. It does not retroactively change existing
// segments.
func (c *ConstantRange) SetConstant(value []float64) {
	v := make([]float64, c.width)
	copy(v, value)
	c.value = v
}

// ExpandDomain grows the domain to newLength, recording a new segment
// [oldLength, newLength) holding the current constant. Fails with
// DomainShrink if newLength < current length, matching C5's
// expand_domain contract (§4.5) generalized to this sparse storage.
func (c *ConstantRange) ExpandDomain(newLength int64) error {
	if newLength < c.length {
		return &cmerrors.DomainShrink{Axis: 0, From: c.length, To: newLength}
	}
	if newLength == c.length {
		return nil
	}
	v := make([]float64, c.width)
	copy(v, c.value)
	c.segs = append(c.segs, rangeSegment{lo: c.length, hi: newLength, value: v})
	c.length = newLength
	return nil
}

// Get returns the constant tuple for every index sel's (single) temporal
// axis selects, shaped [n, width].
func (c *ConstantRange) Get(sel selection.Selection) (brickfile.Array, error) {
	sel, err := broadcastAndCheck(sel, c.Extents())
	if err != nil {
		return brickfile.Array{}, err
	}
	indices := sel[0].Indices()
	out := brickfile.Array{Type: brickfile.Float64, Shape: []int64{int64(len(indices)), int64(c.width)}}
	out.Nums = make([]float64, int64(len(indices))*int64(c.width))
	for i, idx := range indices {
		v := c.valueAt(idx)
		copy(out.Nums[i*c.width:(i+1)*c.width], v)
	}
	return out, nil
}

func (c *ConstantRange) valueAt(idx int64) []float64 {
	for _, s := range c.segs {
		if idx >= s.lo && idx < s.hi {
			return s.value
		}
	}
	return make([]float64, c.width)
}

// Set is unsupported: a constant-range parameter's value changes only
// through SetConstant + ExpandDomain, not an arbitrary per-cell write.
func (c *ConstantRange) Set(sel selection.Selection, buf brickfile.Array) error {
	return &cmerrors.SelectionRankMismatch{SelectionRank: -1, ParameterRank: c.Rank()}
}

// Fill sets the constant (as a one-element tuple) that later ExpandDomain
// calls record; segments already recorded keep their values. Reinit copies
// another ConstantRange's constant and segments, and rejects any other kind
// of Parameter.
func (c *ConstantRange) Fill(value float64) error {
	c.SetConstant([]float64{value})
	return nil
}

func (c *ConstantRange) Reinit(other Parameter) error {
	o, ok := other.(*ConstantRange)
	if !ok {
		return &cmerrors.SelectionRankMismatch{SelectionRank: other.Rank(), ParameterRank: c.Rank()}
	}
	c.width = o.width
	c.length = o.length
	c.value = append([]float64{}, o.value...)
	c.segs = append([]rangeSegment{}, o.segs...)
	return nil
}
