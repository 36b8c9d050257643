// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package paramfunc implements the parameter-function expression layer
// (spec §4.8): a small language of named numerical expressions evaluated
// lazily against parameter values, with cycle-free dependency resolution.
//
// Grounded on internal/tagger's job-classification rule engine (the
// teacher's only user of github.com/expr-lang/expr): expressions compile
// once to a *vm.Program via expr.Compile and run per-element via expr.Run
// against a small environment map, exactly as prepareRule/EventCallback
// compile rule/variable/requirement strings ahead of time and evaluate them
// against a per-job environment.
package paramfunc

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ArgKind distinguishes how a formal argument of an Expression is bound.
type ArgKind int

const (
	// ArgSubExpression binds to another named Expression in the same tree.
	ArgSubExpression ArgKind = iota
	// ArgParameter binds to a parameter name in the enclosing coverage.
	ArgParameter
	// ArgLiteral binds to a fixed scalar or array value.
	ArgLiteral
)

// ArgBinding is the value bound to one formal argument name.
type ArgBinding struct {
	Kind ArgKind

	SubExpr   *Expression // ArgSubExpression
	Parameter string      // ArgParameter; trailing '*' binds to the last element only
	Literal   []float64   // ArgLiteral
}

// Kind distinguishes the three expression bodies spec §4.8 defines.
type Kind int

const (
	// KindNumeric is a restricted arithmetic string evaluated over arrays
	// bound to named variables.
	KindNumeric Kind = iota
	// KindExternal is a reference to a pure function registered under
	// (Module, Name), called positionally.
	KindExternal
	// KindIndependent is a literal scalar or array of numbers.
	KindIndependent
)

// Expression is one named, composable parameter function.
type Expression struct {
	Name        string
	Kind        Kind
	FormalArgs  []string
	Args        map[string]ArgBinding
	OutputType  string // declared output element type tag, e.g. "float64"

	// KindNumeric
	NumericExpr string

	// KindExternal
	Module string
	Func   string

	// KindIndependent
	Value []float64

	compiled *vm.Program
}

// Compile validates and compiles a KindNumeric expression's body against
// its formal argument names. It is a no-op for other kinds. The compile
// environment (envTemplate) holds the declared formal arguments and the
// fixed elementwise function set, so expr.Compile rejects any other
// identifier at compile time, and expr.AsFloat64 rejects a non-numeric
// result. No further AST walk is made: expr's own operators (including
// comparisons and the conditional operator) and its built-in functions
// are not filtered out.
func (e *Expression) Compile() error {
	if e.Kind != KindNumeric {
		return nil
	}
	if e.NumericExpr == "" {
		return fmt.Errorf("paramfunc: %s: empty numeric expression", e.Name)
	}
	env := envTemplate(e.FormalArgs)
	prog, err := expr.Compile(e.NumericExpr, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return fmt.Errorf("paramfunc: %s: %w", e.Name, err)
	}
	e.compiled = prog
	return nil
}

func envTemplate(formalArgs []string) map[string]any {
	env := map[string]any{
		"sqrt": func(x float64) float64 { return builtinSqrt(x) },
		"abs":  func(x float64) float64 { return builtinAbs(x) },
		"min":  func(a, b float64) float64 { return builtinMin(a, b) },
		"max":  func(a, b float64) float64 { return builtinMax(a, b) },
		"exp":  func(x float64) float64 { return builtinExp(x) },
		"log":  func(x float64) float64 { return builtinLog(x) },
	}
	for _, a := range formalArgs {
		env[a] = float64(0)
	}
	return env
}
