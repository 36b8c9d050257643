// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package paramfunc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/expr-lang/expr"
)

// ParameterValueFunc fetches a named parameter's values over a selection —
// the "parameter_value_callback" of spec §4.8, implemented by the
// enclosing coverage (out of scope for this module; supplied by the
// caller).
type ParameterValueFunc func(paramName string, sel selection.Selection) ([]float64, error)

// Evaluate recursively evaluates e's arguments (substituting parameter
// values through pv over the same selection) and then evaluates e's own
// body, returning an array shaped by sel. Argument names ending in '*'
// bind to the last element of their resolved value only (spec §4.8).
func (e *Expression) Evaluate(pv ParameterValueFunc, sel selection.Selection, fill float64) ([]float64, error) {
	return e.evaluate(pv, sel, fill, map[string]bool{})
}

func (e *Expression) evaluate(pv ParameterValueFunc, sel selection.Selection, fill float64, inProgress map[string]bool) ([]float64, error) {
	if inProgress[e.Name] {
		return nil, fmt.Errorf("paramfunc: cyclic dependency at %q", e.Name)
	}
	inProgress[e.Name] = true
	defer delete(inProgress, e.Name)

	n := int64(1)
	if shape, err := sel.Shape(shapeExtents(sel)); err == nil {
		n = cellCountOf(shape)
	}

	switch e.Kind {
	case KindIndependent:
		return broadcast(e.Value, n), nil

	case KindExternal:
		fn, err := lookupExternal(e.Module, e.Func)
		if err != nil {
			return nil, err
		}
		args := make([][]float64, len(e.FormalArgs))
		for i, name := range e.FormalArgs {
			v, err := e.resolveArg(name, pv, sel, fill, inProgress)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return fn(args)

	case KindNumeric:
		if e.compiled == nil {
			if err := e.Compile(); err != nil {
				return nil, err
			}
		}
		resolved := make(map[string][]float64, len(e.FormalArgs))
		for _, name := range e.FormalArgs {
			v, err := e.resolveArg(name, pv, sel, fill, inProgress)
			if err != nil {
				return nil, err
			}
			resolved[name] = v
		}
		out := make([]float64, n)
		env := make(map[string]any, len(e.FormalArgs)+6)
		for i := int64(0); i < n; i++ {
			for _, name := range e.FormalArgs {
				vals := resolved[name]
				if len(vals) == 1 {
					env[name] = vals[0]
				} else if int64(len(vals)) > i {
					env[name] = vals[i]
				} else {
					env[name] = fill
				}
			}
			raw, err := expr.Run(e.compiled, env)
			if err != nil {
				return nil, fmt.Errorf("paramfunc: %s: %w", e.Name, err)
			}
			v, ok := raw.(float64)
			if !ok {
				return nil, fmt.Errorf("paramfunc: %s: expression did not return a float64", e.Name)
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("paramfunc: unknown expression kind %v", e.Kind)
}

func (e *Expression) resolveArg(formalName string, pv ParameterValueFunc, sel selection.Selection, fill float64, inProgress map[string]bool) ([]float64, error) {
	binding, ok := e.Args[formalName]
	if !ok {
		return nil, fmt.Errorf("paramfunc: %s: no binding for argument %q", e.Name, formalName)
	}
	switch binding.Kind {
	case ArgSubExpression:
		if binding.SubExpr == nil {
			return nil, fmt.Errorf("paramfunc: %s: argument %q has no sub-expression", e.Name, formalName)
		}
		return binding.SubExpr.evaluate(pv, sel, fill, inProgress)
	case ArgParameter:
		name := binding.Parameter
		lastOnly := strings.HasSuffix(name, "*")
		if lastOnly {
			name = strings.TrimSuffix(name, "*")
		}
		vals, err := pv(name, sel)
		if err != nil {
			return nil, err
		}
		if lastOnly {
			if len(vals) == 0 {
				return nil, fmt.Errorf("paramfunc: %s: parameter %q returned no values", e.Name, name)
			}
			return []float64{vals[len(vals)-1]}, nil
		}
		return vals, nil
	case ArgLiteral:
		return binding.Literal, nil
	}
	return nil, fmt.Errorf("paramfunc: %s: unknown argument kind for %q", e.Name, formalName)
}

func broadcast(v []float64, n int64) []float64 {
	if int64(len(v)) == n {
		return v
	}
	out := make([]float64, n)
	if len(v) == 0 {
		return out
	}
	for i := range out {
		out[i] = v[i%len(v)]
	}
	return out
}

func shapeExtents(sel selection.Selection) []int64 {
	// Evaluate against the selection's own resolved extents: every axis is
	// already concrete (no open-ended ranges reach the evaluator).
	extents := make([]int64, len(sel))
	for i, ax := range sel {
		switch ax.Kind {
		case selection.KindIndex:
			extents[i] = ax.Index + 1
		case selection.KindList:
			mx := int64(0)
			for _, v := range ax.List {
				if v+1 > mx {
					mx = v + 1
				}
			}
			extents[i] = mx
		case selection.KindRange:
			if ax.Stop != nil {
				extents[i] = *ax.Stop
			}
		}
	}
	return extents
}

func cellCountOf(shape []int64) int64 {
	n := int64(1)
	for _, s := range shape {
		n *= s
	}
	return n
}

// ModuleDependencies returns the sorted, duplicate-free union of module
// names owning external callables anywhere in e's expression tree.
func (e *Expression) ModuleDependencies() []string {
	seen := map[string]bool{}
	e.collectModules(seen)
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (e *Expression) collectModules(seen map[string]bool) {
	if e.Kind == KindExternal {
		seen[e.Module] = true
	}
	for _, b := range e.Args {
		if b.Kind == ArgSubExpression && b.SubExpr != nil {
			b.SubExpr.collectModules(seen)
		}
	}
}

// Equal reports structural equality over the resolved function-map form:
// name, argument-map, and expression body. Compiled programs and any other
// cached state are ignored.
func (e *Expression) Equal(other *Expression) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.Name != other.Name || e.Kind != other.Kind || e.OutputType != other.OutputType {
		return false
	}
	switch e.Kind {
	case KindNumeric:
		if e.NumericExpr != other.NumericExpr {
			return false
		}
	case KindExternal:
		if e.Module != other.Module || e.Func != other.Func {
			return false
		}
	case KindIndependent:
		if len(e.Value) != len(other.Value) {
			return false
		}
		for i := range e.Value {
			if e.Value[i] != other.Value[i] {
				return false
			}
		}
	}
	if len(e.FormalArgs) != len(other.FormalArgs) {
		return false
	}
	for i := range e.FormalArgs {
		if e.FormalArgs[i] != other.FormalArgs[i] {
			return false
		}
	}
	if len(e.Args) != len(other.Args) {
		return false
	}
	for k, b := range e.Args {
		ob, ok := other.Args[k]
		if !ok || !argBindingsEqual(b, ob) {
			return false
		}
	}
	return true
}

func argBindingsEqual(a, b ArgBinding) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ArgSubExpression:
		return a.SubExpr.Equal(b.SubExpr)
	case ArgParameter:
		return a.Parameter == b.Parameter
	case ArgLiteral:
		if len(a.Literal) != len(b.Literal) {
			return false
		}
		for i := range a.Literal {
			if a.Literal[i] != b.Literal[i] {
				return false
			}
		}
		return true
	}
	return false
}
