// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ids mints the opaque 128-bit random identifiers spec §3 requires
// for bricks (and, reused, for dispatcher worker ids). Backed by
// google/uuid rather than a hand-rolled random-bytes-plus-hex-encode
// routine, since the corpus already depends on it (teacher's go.mod).
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// New mints a fresh 128-bit random identifier, rendered as an uppercase
// hyphenated hex string.
func New() string {
	return strings.ToUpper(uuid.NewString())
}
