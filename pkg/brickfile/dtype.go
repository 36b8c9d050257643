// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package brickfile provides dtype.go: the closed element-type variant that
// tags every array this module stores.
//
// Per Design Note "Dynamic element types" (spec §9), the source's runtime
// dtype system is replaced by a closed enum, and per "Object-dtype arrays"
// variable-length byte strings are a distinct variant (a vector of owned
// byte buffers), never forced into the uniform numeric array path.
package brickfile

import "fmt"

// ElementType tags the values a brick's dataset holds.
type ElementType int

const (
	Int32 ElementType = iota
	Int64
	Float32
	Float64
	FixedBytes // fixed-width byte strings, length given alongside the type
	VarBytes   // variable-length byte strings, the distinguished object dtype
)

func (t ElementType) String() string {
	switch t {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case FixedBytes:
		return "fixed_bytes"
	case VarBytes:
		return "var_bytes"
	default:
		return fmt.Sprintf("elementtype(%d)", int(t))
	}
}

// IsObject reports whether t is the variable-length byte-string variant,
// which is stored and addressed as a vector of owned buffers rather than a
// uniform n-d numeric array.
func (t ElementType) IsObject() bool { return t == VarBytes }
