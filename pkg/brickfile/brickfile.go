// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package brickfile provides brickfile.go: create/open/read/write of a
// single brick file.
//
// # File format
//
// Spec §1 treats the array file format's internal byte layout as an
// external, out-of-scope collaborator (assumed to be a widely-used
// self-describing hierarchical numerical format, e.g. HDF5). This module
// stands in its own compact container, grounded on the length-prefixed
// binary-checkpoint framing the metric store uses for its own on-disk
// format (magic + fixed header + body, little-endian, bufio-buffered) and
// on the hyperslab local-addressing approach of the HDF5 reference files in
// the pack:
//
//	Header:
//	  magic:     [4]byte  "CVBK"
//	  version:   uint32   LE
//	  elemType:  uint8
//	  fixedLen:  uint32   LE   (only meaningful for FixedBytes)
//	  rank:      uint32   LE
//	  shape:     []int64  LE, rank entries (nominal brick size)
//	  chunks:    []int64  LE, rank entries
//	  fillNum:   float64  LE   (numeric fill value)
//	  fillLen:   uint32   LE   (length of byte fill value, object types)
//	  fillBytes: []byte        (fillLen bytes)
//
// Numeric datasets (Int32/Int64/Float32/Float64) follow the header as a
// flat row-major array of float64 values, addressed by direct byte offset
// (header_size + flat_index*8) so that Write only touches the bytes a
// sub-selection actually covers. FixedBytes datasets follow the same
// direct-addressing scheme with fixedLen-byte cells. VarBytes (the object
// dtype) cannot be addressed this way since cells vary in length; those
// datasets are read/written as a whole per call, trading random-access
// efficiency for simplicity, which is acceptable since this class of value
// is the exception rather than the hot path.
package brickfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/ClusterCockpit/covmodel/pkg/cmerrors"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
)

var (
	magic     = [4]byte{'C', 'V', 'B', 'K'}
	fileVer   = uint32(1)
	byteOrder = binary.LittleEndian
)

// Metrics is the brick-metrics tuple from spec §3: everything C6/C7 need to
// perform a write without consulting the persistence layer again.
type Metrics struct {
	Path        string
	BrickExtent []int64
	ChunkExtent []int64
	ElemType    ElementType
	FixedLen    int  // only meaningful for FixedBytes
	FillNum     float64
	FillBytes   []byte
}

type header struct {
	elemType ElementType
	fixedLen uint32
	shape    []int64
	chunks   []int64
	fillNum  float64
	fillByte []byte
}

func headerSize(rank int, fillLen int) int64 {
	// magic + version + elemType + fixedLen + rank + 2*rank*int64 + fillNum + fillLen + fillBytes
	return 4 + 4 + 1 + 4 + 4 + int64(rank)*8*2 + 8 + 4 + int64(fillLen)
}

// RequireDataset creates the brick file at path if absent, or opens and
// validates it if present (failing with *cmerrors.SchemaMismatch on
// disagreement). It returns the resolved Metrics either way.
func RequireDataset(path string, brickID string, shape, chunks []int64, t ElementType, fixedLen int, fillNum float64, fillBytes []byte) (Metrics, error) {
	if _, err := os.Stat(path); err == nil {
		return openAndValidate(path, brickID, shape, chunks, t, fixedLen)
	} else if !os.IsNotExist(err) {
		return Metrics{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Metrics{}, err
	}

	h := header{elemType: t, fixedLen: uint32(fixedLen), shape: shape, chunks: chunks, fillNum: fillNum, fillByte: fillBytes}
	if err := create(path, h); err != nil {
		return Metrics{}, err
	}
	return Metrics{Path: path, BrickExtent: shape, ChunkExtent: chunks, ElemType: t, FixedLen: fixedLen, FillNum: fillNum, FillBytes: fillBytes}, nil
}

func create(path string, h header) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := writeHeader(bw, h); err != nil {
		return err
	}
	n := cellCount(h.shape)
	switch {
	case h.elemType.IsObject():
		// VarBytes: body is n length-prefixed blobs, all equal to the fill value initially.
		for i := int64(0); i < n; i++ {
			if err := binary.Write(bw, byteOrder, uint32(len(h.fillByte))); err != nil {
				return err
			}
			if _, err := bw.Write(h.fillByte); err != nil {
				return err
			}
		}
	case h.elemType == FixedBytes:
		cell := make([]byte, h.fixedLen)
		copy(cell, h.fillByte)
		for i := int64(0); i < n; i++ {
			if _, err := bw.Write(cell); err != nil {
				return err
			}
		}
	default:
		for i := int64(0); i < n; i++ {
			if err := binary.Write(bw, byteOrder, h.fillNum); err != nil {
				return err
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func writeHeader(w io.Writer, h header) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, fileVer); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint8(h.elemType)); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, h.fixedLen); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(len(h.shape))); err != nil {
		return err
	}
	for _, v := range h.shape {
		if err := binary.Write(w, byteOrder, v); err != nil {
			return err
		}
	}
	for _, v := range h.chunks {
		if err := binary.Write(w, byteOrder, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, byteOrder, h.fillNum); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(len(h.fillByte))); err != nil {
		return err
	}
	if _, err := w.Write(h.fillByte); err != nil {
		return err
	}
	return nil
}

func readHeader(f *os.File) (header, int64, error) {
	var h header
	buf := make([]byte, 4)
	if _, err := io.ReadFull(f, buf); err != nil {
		return h, 0, err
	}
	if buf[0] != magic[0] || buf[1] != magic[1] || buf[2] != magic[2] || buf[3] != magic[3] {
		return h, 0, fmt.Errorf("not a brick file: bad magic")
	}
	var version uint32
	if err := binary.Read(f, byteOrder, &version); err != nil {
		return h, 0, err
	}
	var et uint8
	if err := binary.Read(f, byteOrder, &et); err != nil {
		return h, 0, err
	}
	h.elemType = ElementType(et)
	if err := binary.Read(f, byteOrder, &h.fixedLen); err != nil {
		return h, 0, err
	}
	var rank uint32
	if err := binary.Read(f, byteOrder, &rank); err != nil {
		return h, 0, err
	}
	h.shape = make([]int64, rank)
	for i := range h.shape {
		if err := binary.Read(f, byteOrder, &h.shape[i]); err != nil {
			return h, 0, err
		}
	}
	h.chunks = make([]int64, rank)
	for i := range h.chunks {
		if err := binary.Read(f, byteOrder, &h.chunks[i]); err != nil {
			return h, 0, err
		}
	}
	if err := binary.Read(f, byteOrder, &h.fillNum); err != nil {
		return h, 0, err
	}
	var fillLen uint32
	if err := binary.Read(f, byteOrder, &fillLen); err != nil {
		return h, 0, err
	}
	h.fillByte = make([]byte, fillLen)
	if _, err := io.ReadFull(f, h.fillByte); err != nil {
		return h, 0, err
	}
	off := headerSize(int(rank), int(fillLen))
	return h, off, nil
}

func openAndValidate(path, brickID string, shape, chunks []int64, t ElementType, fixedLen int) (Metrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metrics{}, err
	}
	defer f.Close()

	h, _, err := readHeader(f)
	if err != nil {
		return Metrics{}, err
	}
	if h.elemType != t {
		return Metrics{}, &cmerrors.SchemaMismatch{BrickID: brickID, Reason: fmt.Sprintf("element type %s != %s", h.elemType, t)}
	}
	if len(h.shape) != len(shape) {
		return Metrics{}, &cmerrors.SchemaMismatch{BrickID: brickID, Reason: "rank mismatch"}
	}
	for i := range shape {
		if h.shape[i] != shape[i] {
			return Metrics{}, &cmerrors.SchemaMismatch{BrickID: brickID, Reason: "shape mismatch"}
		}
	}
	if t == FixedBytes && h.fixedLen != uint32(fixedLen) {
		return Metrics{}, &cmerrors.SchemaMismatch{BrickID: brickID, Reason: "fixed-length mismatch"}
	}
	return Metrics{Path: path, BrickExtent: h.shape, ChunkExtent: h.chunks, ElemType: h.elemType, FixedLen: int(h.fixedLen), FillNum: h.fillNum, FillBytes: h.fillByte}, nil
}

// Write assigns buffer's cells into the brick dataset at subSelection (in
// the brick's local coordinates, as produced by the slice calculator).
// Flushes to stable storage before returning, satisfying spec §4.2's
// durability requirement.
func Write(path string, subSelection selection.Selection, buffer Array) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	h, dataOff, err := readHeader(f)
	if err != nil {
		return err
	}
	st := strides(h.shape)

	if h.elemType.IsObject() {
		return writeObjectWhole(f, h, dataOff, subSelection, buffer)
	}

	cellSize := int64(8)
	if h.elemType == FixedBytes {
		cellSize = int64(h.fixedLen)
	}

	var werr error
	selection.Iterate(subSelection, func(nd []int64, flat int64) {
		if werr != nil {
			return
		}
		linear := int64(0)
		for i, v := range nd {
			linear += v * st[i]
		}
		off := dataOff + linear*cellSize
		if h.elemType == FixedBytes {
			cell := make([]byte, h.fixedLen)
			copy(cell, buffer.Blobs[flat])
			_, werr = f.WriteAt(cell, off)
		} else {
			var b [8]byte
			byteOrder.PutUint64(b[:], math.Float64bits(buffer.Nums[flat]))
			_, werr = f.WriteAt(b[:], off)
		}
	})
	if werr != nil {
		return werr
	}
	return f.Sync()
}

// Read returns the brick dataset's cells at subSelection, in brick-local
// coordinates.
func Read(path string, subSelection selection.Selection) (Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return Array{}, err
	}
	defer f.Close()

	h, dataOff, err := readHeader(f)
	if err != nil {
		return Array{}, err
	}
	st := strides(h.shape)

	shape, err := subSelection.Shape(h.shape)
	if err != nil {
		return Array{}, err
	}

	if h.elemType.IsObject() {
		return readObjectWhole(f, h, dataOff, subSelection, shape)
	}

	out := Array{Type: h.elemType, Shape: shape}
	cellSize := int64(8)
	if h.elemType == FixedBytes {
		cellSize = int64(h.fixedLen)
		out.Blobs = make([][]byte, cellCount(shape))
	} else {
		out.Nums = make([]float64, cellCount(shape))
	}

	var rerr error
	selection.Iterate(subSelection, func(nd []int64, flat int64) {
		if rerr != nil {
			return
		}
		linear := int64(0)
		for i, v := range nd {
			linear += v * st[i]
		}
		off := dataOff + linear*cellSize
		if h.elemType == FixedBytes {
			cell := make([]byte, h.fixedLen)
			_, rerr = f.ReadAt(cell, off)
			out.Blobs[flat] = cell
		} else {
			var b [8]byte
			_, rerr = f.ReadAt(b[:], off)
			out.Nums[flat] = math.Float64frombits(byteOrder.Uint64(b[:]))
		}
	})
	if rerr != nil {
		return Array{}, rerr
	}
	return out, nil
}

func writeObjectWhole(f *os.File, h header, dataOff int64, subSelection selection.Selection, buffer Array) error {
	blobs, err := readAllBlobs(f, dataOff, cellCount(h.shape))
	if err != nil {
		return err
	}
	st := strides(h.shape)
	var werr error
	selection.Iterate(subSelection, func(nd []int64, flat int64) {
		if werr != nil {
			return
		}
		linear := int64(0)
		for i, v := range nd {
			linear += v * st[i]
		}
		blobs[linear] = buffer.Blobs[flat]
	})
	if werr != nil {
		return werr
	}
	if err := rewriteBlobs(f, h, dataOff, blobs); err != nil {
		return err
	}
	return f.Sync()
}

func readObjectWhole(f *os.File, h header, dataOff int64, subSelection selection.Selection, shape []int64) (Array, error) {
	blobs, err := readAllBlobs(f, dataOff, cellCount(h.shape))
	if err != nil {
		return Array{}, err
	}
	st := strides(h.shape)
	out := Array{Type: h.elemType, Shape: shape, Blobs: make([][]byte, cellCount(shape))}
	selection.Iterate(subSelection, func(nd []int64, flat int64) {
		linear := int64(0)
		for i, v := range nd {
			linear += v * st[i]
		}
		out.Blobs[flat] = blobs[linear]
	})
	return out, nil
}

func readAllBlobs(f *os.File, dataOff int64, n int64) ([][]byte, error) {
	if _, err := f.Seek(dataOff, io.SeekStart); err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	blobs := make([][]byte, n)
	for i := int64(0); i < n; i++ {
		var l uint32
		if err := binary.Read(br, byteOrder, &l); err != nil {
			return nil, err
		}
		b := make([]byte, l)
		if _, err := io.ReadFull(br, b); err != nil {
			return nil, err
		}
		blobs[i] = b
	}
	return blobs, nil
}

func rewriteBlobs(f *os.File, h header, dataOff int64, blobs [][]byte) error {
	if err := f.Truncate(dataOff); err != nil {
		return err
	}
	if _, err := f.Seek(dataOff, io.SeekStart); err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	for _, b := range blobs {
		if err := binary.Write(bw, byteOrder, uint32(len(b))); err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
	}
	return bw.Flush()
}
