// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/dispatchwire"
	"github.com/ClusterCockpit/covmodel/pkg/paramstore"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/ClusterCockpit/covmodel/pkg/worker"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, onFailure FailureCallback) *Dispatcher {
	t.Helper()
	if onFailure == nil {
		onFailure = func(string, string, brickfile.Metrics, []paramstore.WorkItem) {}
	}
	d, err := New(onFailure)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(true, time.Second) })
	return d
}

func testMetrics(t *testing.T, name string) brickfile.Metrics {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".cvbk")
	m, err := brickfile.RequireDataset(path, name, []int64{4}, []int64{4}, brickfile.Float64, 0, 0, nil)
	require.NoError(t, err)
	return m
}

func oneItemWork(v float64) []paramstore.WorkItem {
	return []paramstore.WorkItem{{
		BrickSel: selection.Selection{selection.Ix(0)},
		Buffer:   brickfile.Array{Type: brickfile.Float64, Shape: []int64{1}, Nums: []float64{v}},
	}}
}

func TestDispatcherRoundTripSuccess(t *testing.T) {
	d := newTestDispatcher(t, nil)
	metrics := testMetrics(t, "rt-success")

	require.NoError(t, d.Put("brick-1", metrics, oneItemWork(42)))

	w, err := worker.Connect(d.natsSrv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(w.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got bool
	require.Eventually(t, func() bool {
		if got {
			return true
		}
		var err error
		got, err = w.RunOnce(ctx)
		return got && err == nil
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return !d.Active() && !d.Pending() }, time.Second, 10*time.Millisecond)
}

func TestDispatcherRetriesOnFailureThenGivesUp(t *testing.T) {
	var mu sync.Mutex
	var failedKey string
	var calls int
	d := newTestDispatcher(t, func(_ string, key string, _ brickfile.Metrics, _ []paramstore.WorkItem) {
		mu.Lock()
		failedKey = key
		calls++
		mu.Unlock()
	})
	metrics := testMetrics(t, "rt-failure")

	// a brick path that doesn't exist: every write the worker attempts fails.
	badMetrics := metrics
	badMetrics.Path = filepath.Join(t.TempDir(), "missing.cvbk")
	require.NoError(t, d.Put("brick-2", badMetrics, oneItemWork(1)))

	w, err := worker.Connect(d.natsSrv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(w.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.Eventually(t, func() bool {
		_, _ = w.RunOnce(ctx)
		mu.Lock()
		defer mu.Unlock()
		return failedKey == "brick-2"
	}, 20*time.Second, 20*time.Millisecond)

	// the failure callback must fire exactly once for this key: a
	// double-delivery bug in handleResult would invoke it again.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestDispatcherStashesWorkForActiveKey(t *testing.T) {
	d := newTestDispatcher(t, nil)
	metrics := testMetrics(t, "rt-stash")

	// simulate a key already assigned to a worker (organize() only stashes
	// new work for keys present in d.active).
	d.mu.Lock()
	d.active["brick-3"] = &activeEntry{workerID: "w1", metrics: metrics, work: oneItemWork(1)}
	d.mu.Unlock()

	require.NoError(t, d.Put("brick-3", metrics, oneItemWork(2)))
	require.Eventually(t, func() bool { return d.Stashed() }, time.Second, 10*time.Millisecond)
	require.False(t, d.Pending())
}

func TestDispatcherShutdownDrains(t *testing.T) {
	d := newTestDispatcher(t, nil)
	metrics := testMetrics(t, "rt-drain")
	require.NoError(t, d.Put("brick-4", metrics, oneItemWork(7)))

	w, err := worker.Connect(d.natsSrv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(w.Close)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := 0; i < 5; i++ {
			if ok, _ := w.RunOnce(ctx); ok {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	require.NoError(t, d.Shutdown(false, 2*time.Second))
	require.False(t, d.Dirty())
}

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	packed, err := dispatchwire.EncodePackedWork("k", brickfile.Metrics{}, oneItemWork(9))
	require.NoError(t, err)
	env, err := dispatchwire.EncodeEnvelope("work", "k", "w1", packed)
	require.NoError(t, err)
	kind, key, workerID, payload, err := dispatchwire.DecodeEnvelope(env)
	require.NoError(t, err)
	require.Equal(t, "work", kind)
	require.Equal(t, "k", key)
	require.Equal(t, "w1", workerID)
	pw, err := dispatchwire.DecodePackedWork(payload)
	require.NoError(t, err)
	require.Equal(t, "k", pw.Key)
	require.Len(t, pw.Work, 1)
}
