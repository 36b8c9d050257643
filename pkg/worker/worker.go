// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package worker implements the dispatcher's write-side worker (spec
// §4.7): request work, perform the writes via the brick-file layer, report
// success or failure. Grounded on
// internal/archiver/archiveWorker.go's request/perform/report loop,
// adapted from an in-process Go channel to a NATS request/reply round trip
// against the dispatcher (pkg/dispatch), using the connection idiom from
// pkg/nats/client.go.
package worker

import (
	"context"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/covmodel/internal/ids"
	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/dispatchwire"
	"github.com/ClusterCockpit/covmodel/pkg/paramstore"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

const (
	subjectRequestWork = "covmodel.dispatch.request"
	subjectResult      = "covmodel.dispatch.result"
	requestTimeout     = 3 * time.Second

	// pollRate caps how often an idle worker may re-request work, so a
	// dispatcher with nothing to hand out doesn't get hammered.
	pollRate  = 5 // requests/sec
	pollBurst = 5
)

// Worker obeys §4.7's loop: request work; on receive, decode; perform each
// write; report success, or failure with whatever remains. Workers are
// stateless between work items and safe to stop at any idle moment.
type Worker struct {
	id      string
	conn    *nats.Conn
	limiter *rate.Limiter
}

// Connect dials the dispatcher's embedded NATS server at addr and returns a
// Worker with a freshly minted identifier.
func Connect(addr string) (*Worker, error) {
	conn, err := nats.Connect(addr)
	if err != nil {
		return nil, err
	}
	return &Worker{id: ids.New(), conn: conn, limiter: rate.NewLimiter(pollRate, pollBurst)}, nil
}

// ID returns this worker's identifier, the same one the dispatcher records
// against active[key].
func (w *Worker) ID() string { return w.id }

// Close disconnects from the dispatcher.
func (w *Worker) Close() {
	if w.conn != nil {
		w.conn.Close()
	}
}

// RunOnce performs exactly one request/perform/report cycle, returning
// false if the dispatcher had no work available. Run calls this in a loop;
// tests call it directly for determinism.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	reply, err := w.conn.RequestWithContext(reqCtx, subjectRequestWork, []byte(w.id))
	if err != nil {
		return false, err
	}
	if len(reply.Data) == 0 {
		return false, nil // no work available right now
	}

	kind, key, _, payload, err := dispatchwire.DecodeEnvelope(reply.Data)
	if err != nil {
		w.reportFailure("", brickfile.Metrics{}, nil, err)
		return true, err
	}
	if kind != "work" {
		return false, nil
	}

	pw, err := dispatchwire.DecodePackedWork(payload)
	if err != nil {
		w.reportFailure(key, brickfile.Metrics{}, nil, err)
		return true, err
	}

	remaining := append([]paramstore.WorkItem(nil), pw.Work...)
	for len(remaining) > 0 {
		item := remaining[0]
		if err := brickfile.Write(pw.Metrics.Path, item.BrickSel, item.Buffer); err != nil {
			cclog.Errorf("worker %s: writing brick %s: %v", w.id, key, err)
			w.reportFailure(key, pw.Metrics, remaining, err)
			return true, err
		}
		remaining = remaining[1:]
	}
	w.reportSuccess(key)
	return true, nil
}

// Run calls RunOnce in a loop until ctx is cancelled, rate-limited by
// limiter regardless of whether each request turns up work.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		if _, err := w.RunOnce(ctx); err != nil {
			cclog.Warnf("worker %s: %v", w.id, err)
		}
	}
}

func (w *Worker) reportSuccess(key string) {
	env, err := dispatchwire.EncodeEnvelope("success", key, w.id, nil)
	if err != nil {
		cclog.Errorf("worker %s: encoding success envelope: %v", w.id, err)
		return
	}
	if err := w.conn.Publish(subjectResult, env); err != nil {
		cclog.Warnf("worker %s: publishing success: %v", w.id, err)
	}
}

func (w *Worker) reportFailure(key string, metrics brickfile.Metrics, remaining []paramstore.WorkItem, cause error) {
	payload, err := dispatchwire.EncodePackedWork(key, metrics, remaining)
	if err != nil {
		cclog.Errorf("worker %s: encoding failure payload: %v", w.id, err)
		return
	}
	env, err := dispatchwire.EncodeEnvelope("failure", key, w.id, payload)
	if err != nil {
		cclog.Errorf("worker %s: encoding failure envelope: %v", w.id, err)
		return
	}
	if err := w.conn.Publish(subjectResult, env); err != nil {
		cclog.Warnf("worker %s: publishing failure for key %s (cause: %v): %v", w.id, key, cause, err)
	}
}
