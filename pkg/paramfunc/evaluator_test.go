// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package paramfunc

import (
	"testing"

	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pv(values map[string][]float64) ParameterValueFunc {
	return func(name string, sel selection.Selection) ([]float64, error) {
		return values[name], nil
	}
}

func TestNumericExpressionEvaluate(t *testing.T) {
	e := &Expression{
		Name:        "celsius_to_fahrenheit",
		Kind:        KindNumeric,
		FormalArgs:  []string{"c"},
		Args:        map[string]ArgBinding{"c": {Kind: ArgParameter, Parameter: "temperature"}},
		NumericExpr: "c * 9.0 / 5.0 + 32.0",
	}
	sel := selection.Selection{selection.Rng(int64ptr(0), int64ptr(4), 1)}
	out, err := e.Evaluate(pv(map[string][]float64{"temperature": {0, 10, 20, 100}}), sel, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{32, 50, 68, 212}, out, 1e-9)
}

func TestExpressionWithSubExpression(t *testing.T) {
	inner := &Expression{
		Name:        "doubled",
		Kind:        KindNumeric,
		FormalArgs:  []string{"x"},
		Args:        map[string]ArgBinding{"x": {Kind: ArgParameter, Parameter: "raw"}},
		NumericExpr: "x * 2.0",
	}
	outer := &Expression{
		Name:        "plus_one",
		Kind:        KindNumeric,
		FormalArgs:  []string{"y"},
		Args:        map[string]ArgBinding{"y": {Kind: ArgSubExpression, SubExpr: inner}},
		NumericExpr: "y + 1.0",
	}
	sel := selection.Selection{selection.Rng(int64ptr(0), int64ptr(3), 1)}
	out, err := outer.Evaluate(pv(map[string][]float64{"raw": {1, 2, 3}}), sel, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 5, 7}, out, 1e-9)
}

func TestEvaluateDetectsCycle(t *testing.T) {
	a := &Expression{Name: "a", Kind: KindNumeric, FormalArgs: []string{"x"}, NumericExpr: "x"}
	b := &Expression{Name: "b", Kind: KindNumeric, FormalArgs: []string{"x"}, NumericExpr: "x"}
	a.Args = map[string]ArgBinding{"x": {Kind: ArgSubExpression, SubExpr: b}}
	b.Args = map[string]ArgBinding{"x": {Kind: ArgSubExpression, SubExpr: a}}

	sel := selection.Selection{selection.Ix(0)}
	_, err := a.Evaluate(pv(nil), sel, 0)
	require.Error(t, err)
}

func TestTrailingStarBindsLastElementOnly(t *testing.T) {
	e := &Expression{
		Name:        "last_reading",
		Kind:        KindNumeric,
		FormalArgs:  []string{"latest"},
		Args:        map[string]ArgBinding{"latest": {Kind: ArgParameter, Parameter: "series*"}},
		NumericExpr: "latest + 0.0",
	}
	sel := selection.Selection{selection.Ix(0)}
	out, err := e.Evaluate(pv(map[string][]float64{"series": {1, 2, 3, 42}}), sel, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{42}, out, 1e-9)
}

func TestModuleDependenciesCollectsAcrossTree(t *testing.T) {
	leaf := &Expression{Name: "leaf", Kind: KindExternal, Module: "qc", Func: "spike_test"}
	root := &Expression{
		Name:       "root",
		Kind:       KindNumeric,
		FormalArgs: []string{"flagged"},
		Args:       map[string]ArgBinding{"flagged": {Kind: ArgSubExpression, SubExpr: leaf}},
	}
	assert.Equal(t, []string{"qc"}, root.ModuleDependencies())
}

func TestEqualComparesStructurally(t *testing.T) {
	e1 := &Expression{Name: "f", Kind: KindNumeric, FormalArgs: []string{"x"}, NumericExpr: "x + 1.0",
		Args: map[string]ArgBinding{"x": {Kind: ArgParameter, Parameter: "p"}}}
	e2 := &Expression{Name: "f", Kind: KindNumeric, FormalArgs: []string{"x"}, NumericExpr: "x + 1.0",
		Args: map[string]ArgBinding{"x": {Kind: ArgParameter, Parameter: "p"}}}
	e3 := &Expression{Name: "f", Kind: KindNumeric, FormalArgs: []string{"x"}, NumericExpr: "x + 2.0",
		Args: map[string]ArgBinding{"x": {Kind: ArgParameter, Parameter: "p"}}}
	assert.True(t, e1.Equal(e2))
	assert.False(t, e1.Equal(e3))
}

func int64ptr(v int64) *int64 { return &v }
