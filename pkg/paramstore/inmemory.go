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

// InMemory is a direct in-process array backing, used for testing (spec
// §4.4: "fill(value), reinit(other) ... supported on the in-memory variant
// for testing"). It never touches the brick layer.
type InMemory struct {
	name    string
	backing brickfile.Array
}

// NewInMemory allocates an in-memory parameter of the given shape, filled
// with fv.
func NewInMemory(name string, t brickfile.ElementType, shape []int64, fv float64) *InMemory {
	return &InMemory{name: name, backing: brickfile.NewNumArray(t, shape, fv)}
}

func (m *InMemory) Name() string                      { return m.name }
func (m *InMemory) Rank() int                          { return len(m.backing.Shape) }
func (m *InMemory) ElementType() brickfile.ElementType { return m.backing.Type }
func (m *InMemory) Extents() []int64                   { return m.backing.Shape }

func (m *InMemory) Get(sel selection.Selection) (brickfile.Array, error) {
	sel, err := broadcastAndCheck(sel, m.backing.Shape)
	if err != nil {
		return brickfile.Array{}, err
	}
	return extractFrom(m.backing, sel), nil
}

func (m *InMemory) Set(sel selection.Selection, buf brickfile.Array) error {
	sel, err := broadcastAndCheck(sel, m.backing.Shape)
	if err != nil {
		return err
	}
	assignInto(m.backing, sel, buf)
	return nil
}

// Fill overwrites every cell with value.
func (m *InMemory) Fill(value float64) error {
	for i := range m.backing.Nums {
		m.backing.Nums[i] = value
	}
	return nil
}

// Reinit replaces this parameter's backing array with a copy of other's
// current full contents, which must share rank.
func (m *InMemory) Reinit(other Parameter) error {
	if other.Rank() != m.Rank() {
		return &cmerrors.SelectionRankMismatch{SelectionRank: other.Rank(), ParameterRank: m.Rank()}
	}
	full := make(selection.Selection, other.Rank())
	for i, e := range other.Extents() {
		full[i] = selection.Full(e)
	}
	arr, err := other.Get(full)
	if err != nil {
		return err
	}
	m.backing = brickfile.Array{Type: arr.Type, Shape: append([]int64{}, arr.Shape...), Nums: append([]float64{}, arr.Nums...)}
	return nil
}
