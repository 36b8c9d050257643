// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package paramfunc

import "math"

// The fixed elementwise function set reachable from a numeric expression
// (spec §4.8, Design Note "Expression compilation"). Kept as named
// top-level funcs rather than inline closures so the allowed set is easy to
// audit in one place.
func builtinSqrt(x float64) float64    { return math.Sqrt(x) }
func builtinAbs(x float64) float64     { return math.Abs(x) }
func builtinMin(a, b float64) float64  { return math.Min(a, b) }
func builtinMax(a, b float64) float64  { return math.Max(a, b) }
func builtinExp(x float64) float64     { return math.Exp(x) }
func builtinLog(x float64) float64     { return math.Log(x) }
