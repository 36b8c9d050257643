// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package persistence

import (
	"fmt"

	pq "github.com/parquet-go/parquet-go"
)

// linkRow is one brick's link record flattened for columnar export.
type linkRow struct {
	Parameter string `parquet:"parameter"`
	BrickID   string `parquet:"brick_id"`
	Origin    string `parquet:"origin"`
	Size      string `parquet:"size"`
	Dirty     bool   `parquet:"dirty"`
}

// ExportParquet writes every registered parameter's brick link records to a
// columnar parquet file, a supplement beyond spec.md for offline analytics
// over a coverage's brick layout (it touches no brick/manifest semantics).
// Grounded on pkg/archive/parquet/writer.go's pq.NewGenericWriter usage.
func (c *Coverage) ExportParquet(w ParquetWriterTarget) error {
	c.mu.Lock()
	rows := make([]linkRow, 0)
	for name, grp := range c.doc.Groups {
		for _, link := range grp.Links {
			rows = append(rows, linkRow{
				Parameter: name,
				BrickID:   link.BrickID,
				Origin:    fmt.Sprint(link.Origin),
				Size:      fmt.Sprint(link.Size),
				Dirty:     link.Dirty,
			})
		}
	}
	c.mu.Unlock()

	writer := pq.NewGenericWriter[linkRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("persistence: writing parquet export: %w", err)
	}
	return writer.Close()
}

// ParquetWriterTarget is the io.Writer subset pq.NewGenericWriter needs; kept
// as a named type so callers don't need to import parquet-go themselves.
type ParquetWriterTarget interface {
	Write(p []byte) (n int, err error)
}
