// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package paramstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/cmerrors"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/ClusterCockpit/covmodel/pkg/sliceselect"
)

// Persisted is the on-disk-backed Parameter: get() reads synchronously from
// brick files located through a BrickLocator (C5); set() packages work
// items and hands them to a Dispatcher (C6) rather than writing inline.
type Persisted struct {
	name     string
	elemType brickfile.ElementType
	fill     float64
	extents  []int64
	locator  BrickLocator
	disp     Dispatcher
}

// NewPersisted builds a Persisted parameter over an already-allocated brick
// layout. extents is the parameter's current total domain extent.
func NewPersisted(name string, t brickfile.ElementType, fill float64, extents []int64, locator BrickLocator, disp Dispatcher) *Persisted {
	return &Persisted{name: name, elemType: t, fill: fill, extents: extents, locator: locator, disp: disp}
}

func (p *Persisted) Name() string                      { return p.name }
func (p *Persisted) Rank() int                          { return len(p.extents) }
func (p *Persisted) ElementType() brickfile.ElementType { return p.elemType }
func (p *Persisted) Extents() []int64                   { return p.extents }

// Get implements §4.4's get(): allocate a fill-valued output buffer sized by
// sel, intersect against the brick index, and for every covering brick read
// its sub-region and copy it into the output. Visits bricks in ascending
// origin order so results are deterministic regardless of index iteration
// order.
func (p *Persisted) Get(sel selection.Selection) (brickfile.Array, error) {
	sel, err := broadcastAndCheck(sel, p.extents)
	if err != nil {
		return brickfile.Array{}, err
	}
	shape, err := sel.Shape(p.extents)
	if err != nil {
		return brickfile.Array{}, err
	}
	out := brickfile.Array{Type: p.elemType, Shape: shape}
	n := cellCountOf(shape)
	if p.elemType.IsObject() {
		out.Blobs = make([][]byte, n)
		for i := range out.Blobs {
			out.Blobs[i] = nil
		}
	} else {
		out.Nums = make([]float64, n)
		for i := range out.Nums {
			out.Nums[i] = p.fill
		}
	}

	bounds, err := selection.SelectionBounds(sel, p.extents)
	if err != nil {
		return brickfile.Array{}, err
	}
	refs := p.locator.Intersect(bounds)
	sortRefsByOrigin(refs)

	cur := sliceselect.NewCursor(p.Rank())
	for _, ref := range refs {
		brickSel, bufSel, err := sliceselect.Resolve(sel, ref.Origin, ref.Size, cur)
		if err != nil {
			continue // no overlap with this brick; skip
		}
		brickArr, err := brickfile.Read(ref.Path, brickSel)
		if errors.Is(err, os.ErrNotExist) {
			return brickfile.Array{}, &cmerrors.MissingBrickFile{BrickID: string(ref.ID), Path: ref.Path}
		}
		if err != nil {
			return brickfile.Array{}, fmt.Errorf("paramstore: %s: reading brick %s: %w", p.name, ref.ID, err)
		}
		assignInto(out, bufSel, brickArr)
	}
	return out, nil
}

// Set implements §4.4's set(): for every intersecting brick, compute its
// sub-selections and enqueue a work item via the dispatcher, keyed by the
// brick's own identifier so unrelated bricks never serialize behind one
// another.
func (p *Persisted) Set(sel selection.Selection, buf brickfile.Array) error {
	sel, err := broadcastAndCheck(sel, p.extents)
	if err != nil {
		return err
	}
	bounds, err := selection.SelectionBounds(sel, p.extents)
	if err != nil {
		return err
	}
	refs := p.locator.Intersect(bounds)
	sortRefsByOrigin(refs)

	cur := sliceselect.NewCursor(p.Rank())
	for _, ref := range refs {
		brickSel, bufSel, err := sliceselect.Resolve(sel, ref.Origin, ref.Size, cur)
		if err != nil {
			continue
		}
		sub := extractFrom(buf, bufSel)
		metrics := brickfile.Metrics{
			Path:        ref.Path,
			BrickExtent: ref.Size,
			ElemType:    p.elemType,
			FillNum:     p.fill,
		}
		item := WorkItem{BrickSel: brickSel, Buffer: sub}
		if err := p.disp.Put(string(ref.ID), metrics, []WorkItem{item}); err != nil {
			return err
		}
	}
	return nil
}

// Fill and Reinit are permitted no-ops on the persisted variant per §4.4;
// they exist so InMemory's test-only semantics can be substituted through
// the same Parameter interface.
func (p *Persisted) Fill(value float64) error     { return nil }
func (p *Persisted) Reinit(other Parameter) error { return nil }
