// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProducesDistinctCanonicalIDs(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
