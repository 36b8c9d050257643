// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds the process-wide tunables for brick sizing,
// dispatcher retry/backoff, and the embedded NATS transport, loaded from an
// optional JSON file over sensible defaults. Grounded on the teacher's
// internal/config package: a package-level Keys struct seeded with
// defaults, optionally overridden by Init reading a JSON file.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// ProgramConfig is the set of tunables this module exposes.
type ProgramConfig struct {
	// TemporalBrickExtent is the brick extent on the temporal axis (spec
	// §4.5 "brick sizing policy"); spatial axes always use a single brick
	// covering the full spatial extent.
	TemporalBrickExtent int64 `json:"temporal_brick_extent"`
	// ChunkDivisor divides the brick extent per axis (minimum 1) to yield
	// the chunk extent.
	ChunkDivisor int64 `json:"chunk_divisor"`
	// MaxRetries bounds a failed work item's resubmission count before the
	// dispatcher gives up on it and invokes the failure callback (§4.6).
	MaxRetries int `json:"max_retries"`
	// NatsPortLow/NatsPortHigh bound the port range the dispatcher's
	// embedded NATS server searches for a free port (§6).
	NatsPortLow  int `json:"nats_port_low"`
	NatsPortHigh int `json:"nats_port_high"`
	// QueueCapacity bounds the dispatcher's inbound work-queue channel.
	QueueCapacity int `json:"queue_capacity"`
	// OrganizerPollInterval is, in milliseconds, the tick the organizer
	// uses to flush stashed work (§4.6).
	OrganizerPollIntervalMs int `json:"organizer_poll_interval_ms"`
}

// Keys is the active configuration, seeded with the defaults spec.md names
// and overridable via Init.
var Keys = ProgramConfig{
	TemporalBrickExtent:     6,
	ChunkDivisor:            3,
	MaxRetries:              4,
	NatsPortLow:             10000,
	NatsPortHigh:            20000,
	QueueCapacity:           1024,
	OrganizerPollIntervalMs: 1000,
}

// Init overrides Keys's defaults from the JSON file at path, if present. A
// missing file is not an error; the defaults stand.
func Init(path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		cclog.Errorf("config: decoding %s: %v", path, err)
		return err
	}
	return nil
}
