// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package persistence

import (
	"fmt"
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/covmodel/internal/config"
	"github.com/ClusterCockpit/covmodel/internal/ids"
	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/brickindex"
	"github.com/ClusterCockpit/covmodel/pkg/cmerrors"
	"github.com/ClusterCockpit/covmodel/pkg/paramstore"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Coverage is one coverage's persistence layer: the master manifest plus
// one brick index per registered parameter. Hot brick-metadata lookups are
// fronted by a bounded LRU, the way the teacher's pkg/lrucache sits in
// front of repeated metric-store reads.
type Coverage struct {
	mu         sync.Mutex
	root       string
	coverageID string

	doc     *manifestDoc
	indices map[string]*brickindex.Index
	cache   *lru.Cache[string, LinkRecord]
}

// Open opens (or creates) the coverage rooted at root/coverageID: reads the
// manifest if present, and rebuilds every parameter's brick index and
// brick list from its groups (§4.5 open()).
func Open(root, coverageID string) (*Coverage, error) {
	doc, err := loadManifest(manifestPath(root, coverageID), coverageID)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s/%s: %w", root, coverageID, err)
	}
	cache, err := lru.New[string, LinkRecord](4096)
	if err != nil {
		return nil, err
	}
	c := &Coverage{root: root, coverageID: coverageID, doc: doc, indices: map[string]*brickindex.Index{}, cache: cache}
	for name, grp := range doc.Groups {
		idx := brickindex.New(grp.Rank)
		for _, link := range grp.Links {
			hi := make([]int64, len(link.Origin))
			for i := range hi {
				hi[i] = link.Origin[i] + link.Size[i] - 1
			}
			idx.Insert(brickindex.BrickID(link.BrickID), selection.NewBounds(link.Origin, hi))
			c.cache.Add(cacheKey(name, link.BrickID), link)
		}
		c.indices[name] = idx
	}
	return c, nil
}

func cacheKey(parameter, brickID string) string { return parameter + "/" + brickID }

// InitParameter registers a new parameter (§4.5 init_parameter): computes
// its brick/chunk extent per the brick-sizing policy and allocates every
// brick needed to cover totalExtent.
func (c *Coverage) InitParameter(name string, t brickfile.ElementType, fixedLen int, fillNum float64, fillBytes []byte, totalExtent []int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.doc.Groups[name]; exists {
		return fmt.Errorf("persistence: parameter %q already registered", name)
	}
	brickExtent, chunkExtent := sizeBricks(totalExtent)
	grp := &ParameterGroup{
		Name: name, Rank: len(totalExtent), ElementType: t, FixedLen: fixedLen,
		FillNum: fillNum, FillBytes: fillBytes, TotalExtent: append([]int64{}, totalExtent...),
		BrickExtent: brickExtent, ChunkExtent: chunkExtent,
	}
	c.doc.Groups[name] = grp
	c.indices[name] = brickindex.New(len(totalExtent))

	if err := c.allocateBricks(grp, totalExtent); err != nil {
		return err
	}
	return c.save()
}

// ExpandDomain implements §4.5 expand_domain: the new extent must match the
// old on every non-temporal axis and be >= on the temporal axis (axis 0).
func (c *Coverage) ExpandDomain(name string, newExtent []int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	grp, ok := c.doc.Groups[name]
	if !ok {
		return fmt.Errorf("persistence: unknown parameter %q", name)
	}
	if len(newExtent) != len(grp.TotalExtent) {
		return &cmerrors.SelectionRankMismatch{SelectionRank: len(newExtent), ParameterRank: len(grp.TotalExtent)}
	}
	for axis := 1; axis < len(newExtent); axis++ {
		if newExtent[axis] != grp.TotalExtent[axis] {
			return &cmerrors.NonTemporalChange{Axis: axis, From: grp.TotalExtent[axis], To: newExtent[axis]}
		}
	}
	if newExtent[0] < grp.TotalExtent[0] {
		return &cmerrors.DomainShrink{Axis: 0, From: grp.TotalExtent[0], To: newExtent[0]}
	}

	old := grp.TotalExtent
	grp.TotalExtent = append([]int64{}, newExtent...)
	if newExtent[0] == old[0] {
		return c.save()
	}
	if err := c.allocateBricks(grp, newExtent); err != nil {
		return err
	}
	return c.save()
}

// ListBricks implements §4.5 list_bricks: delegate to the parameter's C1
// index.
func (c *Coverage) ListBricks(parameter string, lo, hi []int64) []paramstore.BrickRef {
	c.mu.Lock()
	idx, ok := c.indices[parameter]
	grp := c.doc.Groups[parameter]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	brickIDs := idx.Intersect(selection.NewBounds(lo, hi))
	refs := make([]paramstore.BrickRef, 0, len(brickIDs))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range brickIDs {
		link, ok := c.cache.Get(cacheKey(parameter, string(id)))
		if !ok {
			link, ok = findLink(grp, string(id))
			if !ok {
				continue
			}
			c.cache.Add(cacheKey(parameter, string(id)), link)
		}
		refs = append(refs, paramstore.BrickRef{
			ID:     id,
			Origin: link.Origin,
			Size:   link.Size,
			Path:   brickPath(c.root, c.coverageID, parameter, link.BrickID),
		})
	}
	return refs
}

// Locator returns a paramstore.BrickLocator bound to one parameter, for
// wiring a Persisted parameter against this coverage.
func (c *Coverage) Locator(parameter string) paramstore.BrickLocator {
	return coverageLocator{c: c, parameter: parameter}
}

type coverageLocator struct {
	c         *Coverage
	parameter string
}

func (l coverageLocator) Intersect(b selection.Bounds) []paramstore.BrickRef {
	return l.c.ListBricks(l.parameter, b.Lo, b.Hi)
}

func findLink(grp *ParameterGroup, brickID string) (LinkRecord, bool) {
	if grp == nil {
		return LinkRecord{}, false
	}
	for _, l := range grp.Links {
		if l.BrickID == brickID {
			return l, true
		}
	}
	return LinkRecord{}, false
}

// allocateBricks enumerates the Cartesian product of brick-grid origins
// covering extent and creates any brick not already present, per §4.5
// "Brick allocation".
func (c *Coverage) allocateBricks(grp *ParameterGroup, extent []int64) error {
	origins := gridOrigins(extent, grp.BrickExtent)
	existing := make(map[string]bool, len(grp.Links))
	for _, l := range grp.Links {
		existing[originKey(l.Origin)] = true
	}
	for _, origin := range origins {
		key := originKey(origin)
		if existing[key] {
			continue
		}
		size := make([]int64, len(origin))
		for i := range size {
			size[i] = grp.BrickExtent[i]
		}
		brickID := ids.New()
		path := brickPath(c.root, c.coverageID, grp.Name, brickID)
		if _, err := brickfile.RequireDataset(path, brickID, size, grp.ChunkExtent, grp.ElementType, grp.FixedLen, grp.FillNum, grp.FillBytes); err != nil {
			return fmt.Errorf("persistence: allocating brick for %q at %v: %w", grp.Name, origin, err)
		}
		hi := make([]int64, len(origin))
		for i := range hi {
			hi[i] = origin[i] + size[i] - 1
		}
		c.indices[grp.Name].Insert(brickindex.BrickID(brickID), selection.NewBounds(origin, hi))
		link := LinkRecord{BrickID: brickID, Origin: origin, Size: size}
		grp.Links = append(grp.Links, link)
		c.cache.Add(cacheKey(grp.Name, brickID), link)
		cclog.Debugf("persistence: allocated brick %s for %s at origin %v", brickID, grp.Name, origin)
	}
	return nil
}

func originKey(origin []int64) string {
	return fmt.Sprint(origin)
}

// gridOrigins enumerates every brick-grid origin (a multiple of brickExtent
// per axis) needed to cover [0, extent) on every axis.
func gridOrigins(extent, brickExtent []int64) [][]int64 {
	counts := make([]int64, len(extent))
	for i := range extent {
		be := brickExtent[i]
		if be <= 0 {
			be = 1
		}
		counts[i] = (extent[i] + be - 1) / be
	}
	var out [][]int64
	idx := make([]int64, len(extent))
	var rec func(axis int)
	rec = func(axis int) {
		if axis == len(extent) {
			origin := make([]int64, len(extent))
			for i := range origin {
				origin[i] = idx[i] * brickExtent[i]
			}
			out = append(out, origin)
			return
		}
		for v := int64(0); v < counts[axis]; v++ {
			idx[axis] = v
			rec(axis + 1)
		}
	}
	if len(extent) > 0 {
		rec(0)
	}
	return out
}

// sizeBricks implements the "Brick sizing policy" of §4.5: the temporal
// axis (0) uses the configured brick extent; every other axis uses a
// single brick spanning the full spatial extent. Chunk extent divides the
// brick extent by the configured divisor, per axis, with a floor of 1.
func sizeBricks(totalExtent []int64) (brickExtent, chunkExtent []int64) {
	brickExtent = make([]int64, len(totalExtent))
	chunkExtent = make([]int64, len(totalExtent))
	for i, e := range totalExtent {
		if i == 0 {
			brickExtent[i] = config.Keys.TemporalBrickExtent
		} else {
			brickExtent[i] = e
			if brickExtent[i] <= 0 {
				brickExtent[i] = 1
			}
		}
		chunkExtent[i] = brickExtent[i] / config.Keys.ChunkDivisor
		if chunkExtent[i] < 1 {
			chunkExtent[i] = 1
		}
	}
	return brickExtent, chunkExtent
}

func (c *Coverage) save() error {
	return saveManifest(manifestPath(c.root, c.coverageID), c.doc)
}
