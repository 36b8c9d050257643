// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package brickfile

// Array is an in-memory n-d buffer. Numeric element types (Int32, Int64,
// Float32, Float64) are carried uniformly as float64 in Nums, addressed in
// row-major (C) order, last axis fastest — the exact bit width is a detail
// of the backing array-file format, which spec §1 treats as an external,
// out-of-scope collaborator. FixedBytes/VarBytes values live in Blobs
// instead, one buffer per cell, per Design Note "Object-dtype arrays".
type Array struct {
	Type  ElementType
	Shape []int64
	Nums  []float64
	Blobs [][]byte
}

// NewNumArray allocates a numeric array of the given shape, filled with fv.
func NewNumArray(t ElementType, shape []int64, fv float64) Array {
	n := cellCount(shape)
	nums := make([]float64, n)
	for i := range nums {
		nums[i] = fv
	}
	return Array{Type: t, Shape: shape, Nums: nums}
}

// NewObjectArray allocates a VarBytes/FixedBytes array of the given shape,
// filled with a copy of fv in every cell.
func NewObjectArray(t ElementType, shape []int64, fv []byte) Array {
	n := cellCount(shape)
	blobs := make([][]byte, n)
	for i := range blobs {
		cp := make([]byte, len(fv))
		copy(cp, fv)
		blobs[i] = cp
	}
	return Array{Type: t, Shape: shape, Blobs: blobs}
}

func cellCount(shape []int64) int64 {
	n := int64(1)
	for _, s := range shape {
		n *= s
	}
	return n
}

// strides returns row-major strides for shape (last axis fastest).
func strides(shape []int64) []int64 {
	s := make([]int64, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}
