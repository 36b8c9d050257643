// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	Keys = ProgramConfig{TemporalBrickExtent: 6, ChunkDivisor: 3, MaxRetries: 4, NatsPortLow: 10000, NatsPortHigh: 20000, QueueCapacity: 1024, OrganizerPollIntervalMs: 1000}
	require.NoError(t, Init(filepath.Join(t.TempDir(), "missing.json")))
	assert.Equal(t, int64(6), Keys.TemporalBrickExtent)
}

func TestInitOverridesDefaults(t *testing.T) {
	Keys = ProgramConfig{TemporalBrickExtent: 6, ChunkDivisor: 3, MaxRetries: 4, NatsPortLow: 10000, NatsPortHigh: 20000, QueueCapacity: 1024, OrganizerPollIntervalMs: 1000}
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"temporal_brick_extent": 12, "max_retries": 8}`), 0o644))

	require.NoError(t, Init(path))
	assert.Equal(t, int64(12), Keys.TemporalBrickExtent)
	assert.Equal(t, 8, Keys.MaxRetries)
	assert.Equal(t, int64(3), Keys.ChunkDivisor) // untouched fields keep their defaults
}

func TestInitEmptyPathIsNoop(t *testing.T) {
	Keys = ProgramConfig{TemporalBrickExtent: 6}
	require.NoError(t, Init(""))
	assert.Equal(t, int64(6), Keys.TemporalBrickExtent)
}
