// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package persistence implements the per-coverage persistence layer
// (spec §4.5): directory layout, master manifest, and per-parameter brick
// allocation on domain expansion.
//
// Grounded on pkg/metricstore/checkpoint.go's directory-and-manifest
// reconciliation pattern (checkpoint_dir/cluster/host/*.json, rebuilt by
// walking the tree on startup), generalized from a fixed cluster/host
// hierarchy to <root>/<coverage_id>_master.json +
// <root>/<coverage_id>/<parameter>/<brick_id>.cvbk. Spec §4.5 calls for the
// manifest to be "a single hierarchical file" holding one group per
// parameter with external links per brick; encoding that as a brick-file
// (C2) container -- a format built for one flat dataset -- would mean
// inventing a second sub-format for variable-length groups-of-links inside
// it, so the manifest is instead its own small JSON document, in the same
// spirit as the teacher's own checkpoint manifests (*.json files alongside
// the binary-checkpoint payloads they describe).
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
)

// LinkRecord is one manifest entry: a brick, its bounds, and its dirty
// flag, exactly the {origin, size, dirty} attributes spec §6 assigns to a
// manifest's external links.
type LinkRecord struct {
	BrickID string  `json:"brick_id"`
	Origin  []int64 `json:"origin"`
	Size    []int64 `json:"size"`
	Dirty   bool    `json:"dirty"`
}

// ParameterGroup is one manifest group: a parameter's schema plus its
// brick links.
type ParameterGroup struct {
	Name        string               `json:"name"`
	Rank        int                  `json:"rank"`
	ElementType brickfile.ElementType `json:"element_type"`
	FixedLen    int                  `json:"fixed_len"`
	FillNum     float64              `json:"fill_num"`
	FillBytes   []byte               `json:"fill_bytes,omitempty"`
	TotalExtent []int64              `json:"total_extent"`
	BrickExtent []int64              `json:"brick_extent"`
	ChunkExtent []int64              `json:"chunk_extent"`
	Links       []LinkRecord         `json:"links"`
}

type manifestDoc struct {
	CoverageID string                     `json:"coverage_id"`
	Groups     map[string]*ParameterGroup `json:"groups"`
}

func manifestPath(root, coverageID string) string {
	return filepath.Join(root, coverageID+"_master.json")
}

func parameterDir(root, coverageID, parameter string) string {
	return filepath.Join(root, coverageID, parameter)
}

func brickPath(root, coverageID, parameter, brickID string) string {
	return filepath.Join(parameterDir(root, coverageID, parameter), brickID+".cvbk")
}

func loadManifest(path, coverageID string) (*manifestDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &manifestDoc{CoverageID: coverageID, Groups: map[string]*ParameterGroup{}}, nil
		}
		return nil, err
	}
	var doc manifestDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Groups == nil {
		doc.Groups = map[string]*ParameterGroup{}
	}
	return &doc, nil
}

func saveManifest(path string, doc *manifestDoc) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
