// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatchwire is the wire format shared by pkg/dispatch and
// pkg/worker (spec §4.6/§4.7): every work reply and every result message
// between a worker and the dispatcher is an Envelope, and the "work" and
// "failure" envelopes carry a gob-encoded PackedWork as their payload. A
// work request itself is the worker's id as raw bytes, and an empty reply
// means no work is available.
//
// Grounded on the teacher's use of goavro.NewCodec for a fixed record
// schema (internal/memorystore/avroCheckpoint.go) for the envelope; the
// payload itself stays gob-encoded because the packed-work shape
// (arbitrary selections and array buffers) is already a stable Go type,
// not something worth maintaining a second schema for.
package dispatchwire

import (
	"bytes"
	"encoding/gob"

	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/paramstore"
	"github.com/linkedin/goavro/v2"
)

const envelopeSchema = `{
  "type": "record",
  "name": "DispatchEnvelope",
  "fields": [
    {"name": "kind", "type": "string"},
    {"name": "key", "type": ["null", "string"], "default": null},
    {"name": "worker_id", "type": ["null", "string"], "default": null},
    {"name": "payload", "type": "bytes"}
  ]
}`

var envelopeCodec *goavro.Codec

func init() {
	c, err := goavro.NewCodec(envelopeSchema)
	if err != nil {
		panic("dispatchwire: invalid envelope schema: " + err.Error())
	}
	envelopeCodec = c
}

// PackedWork is the atomic unit transported over the dispatcher (spec §3's
// "work item"): a brick key, its brick-metrics, and the list of
// (sub-selection, buffer) pairs to apply.
type PackedWork struct {
	Key     string
	Metrics brickfile.Metrics
	Work    []paramstore.WorkItem
}

// EncodePackedWork gob-encodes a work item. The resulting bytes also serve
// as the failure-counter identity (§4.6 "Failure counter key": "the
// byte-encoded packed work").
func EncodePackedWork(key string, metrics brickfile.Metrics, work []paramstore.WorkItem) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(PackedWork{Key: key, Metrics: metrics, Work: work}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodePackedWork(b []byte) (PackedWork, error) {
	var pw PackedWork
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&pw); err != nil {
		return PackedWork{}, err
	}
	return pw, nil
}

// EncodeEnvelope and DecodeEnvelope wrap/unwrap one NATS message body.
func EncodeEnvelope(kind, key, workerID string, payload []byte) ([]byte, error) {
	native := map[string]any{
		"kind":      kind,
		"key":       optString(key),
		"worker_id": optString(workerID),
		"payload":   payload,
	}
	return envelopeCodec.BinaryFromNative(nil, native)
}

func DecodeEnvelope(b []byte) (kind, key, workerID string, payload []byte, err error) {
	native, _, err := envelopeCodec.NativeFromBinary(b)
	if err != nil {
		return "", "", "", nil, err
	}
	m := native.(map[string]any)
	kind, _ = m["kind"].(string)
	key = optStringOut(m["key"])
	workerID = optStringOut(m["worker_id"])
	payload, _ = m["payload"].([]byte)
	return kind, key, workerID, payload, nil
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return map[string]any{"string": s}
}

func optStringOut(v any) string {
	if v == nil {
		return ""
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["string"].(string)
	return s
}
