// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package paramfunc

import (
	"fmt"
	"sync"
)

// ExternalFunc is a pure function callable as a KindExternal expression
// body: it receives its positional arguments (each already resolved to a
// flat []float64 over the current selection) and returns one flat
// []float64 result.
type ExternalFunc func(args [][]float64) ([]float64, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]map[string]ExternalFunc{}
)

// RegisterExternal makes fn callable from a KindExternal expression
// referencing (module, name). Intended to be called from an init() in the
// package owning the callable (see pkg/qc's registration of its three
// tests), mirroring how the source's external-callable references resolve
// a (module, name) pair against an importable module.
func RegisterExternal(module, name string, fn ExternalFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry[module] == nil {
		registry[module] = map[string]ExternalFunc{}
	}
	registry[module][name] = fn
}

func lookupExternal(module, name string) (ExternalFunc, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fns, ok := registry[module]
	if !ok {
		return nil, fmt.Errorf("paramfunc: unknown module %q", module)
	}
	fn, ok := fns[name]
	if !ok {
		return nil, fmt.Errorf("paramfunc: unknown callable %s.%s", module, name)
	}
	return fn, nil
}
