// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qc

import (
	"fmt"

	"github.com/ClusterCockpit/covmodel/pkg/paramfunc"
)

// init registers this package's three tests as KindExternal callables under
// module "qc", so a parameter function can reference them by
// (Module: "qc", Func: "global_range_test") etc. without the paramfunc
// package importing qc directly (spec §4.8's external-callable reference is
// a (module, name) pair resolved against an importable module; here that
// resolution happens through paramfunc's registry instead of Go imports,
// since Go has no runtime module-by-name lookup).
func init() {
	paramfunc.RegisterExternal("qc", "global_range_test", externalGlobalRangeTest)
	paramfunc.RegisterExternal("qc", "spike_test", externalSpikeTest)
	paramfunc.RegisterExternal("qc", "stuck_value_test", externalStuckValueTest)
}

func externalGlobalRangeTest(args [][]float64) ([]float64, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("qc: global_range_test: expected (dat, lim) arguments")
	}
	dat := args[0]
	lim := make([]int64, len(args[1]))
	for i, v := range args[1] {
		lim[i] = int64(v)
	}
	flags, err := GlobalRangeTest(dat, lim)
	if err != nil {
		return nil, err
	}
	return toFloat64(flags), nil
}

func externalSpikeTest(args [][]float64) ([]float64, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("qc: spike_test: expected (dat, acc[, n[, l]]) arguments")
	}
	dat := args[0]
	acc := scalarOf(args[1])
	n, l := 5, 5
	if len(args) > 2 {
		n = int(scalarOf(args[2]))
	}
	if len(args) > 3 {
		l = int(scalarOf(args[3]))
	}
	flags, err := SpikeTest(dat, acc, n, l)
	if err != nil {
		return nil, err
	}
	return toFloat64(flags), nil
}

func externalStuckValueTest(args [][]float64) ([]float64, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("qc: stuck_value_test: expected (x[, reso[, num]]) arguments")
	}
	x := args[0]
	reso := 0.0
	num := 10
	if len(args) > 1 {
		reso = scalarOf(args[1])
	}
	if len(args) > 2 {
		num = int(scalarOf(args[2]))
	}
	return toFloat64(StuckValueTest(x, reso, num)), nil
}

func scalarOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

func toFloat64(v []int64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
