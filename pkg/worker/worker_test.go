// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/dispatchwire"
	"github.com/ClusterCockpit/covmodel/pkg/paramstore"
	"github.com/ClusterCockpit/covmodel/pkg/selection"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// startTestServer boots an embedded NATS server on an ephemeral port, the
// same transport pkg/dispatch's Dispatcher.New uses.
func startTestServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(2*time.Second))
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestRunOnceReturnsFalseWithNoWork(t *testing.T) {
	srv := startTestServer(t)

	// a dispatcher with nothing queued answers a work request with an empty reply
	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Subscribe(subjectRequestWork, func(msg *nats.Msg) { _ = msg.Respond(nil) })
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	w, err := Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(w.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.False(t, got)
}

func TestRunOnceReportsSuccessAfterWrite(t *testing.T) {
	srv := startTestServer(t)

	path := filepath.Join(t.TempDir(), "brick.cvbk")
	metrics, err := brickfile.RequireDataset(path, "b1", []int64{4}, []int64{4}, brickfile.Float64, 0, 0, nil)
	require.NoError(t, err)

	work := []paramstore.WorkItem{{
		BrickSel: selection.Selection{selection.Ix(0)},
		Buffer:   brickfile.Array{Type: brickfile.Float64, Shape: []int64{1}, Nums: []float64{3.5}},
	}}
	packed, err := dispatchwire.EncodePackedWork("brick-key", metrics, work)
	require.NoError(t, err)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Subscribe(subjectRequestWork, func(msg *nats.Msg) {
		env, eerr := dispatchwire.EncodeEnvelope("work", "brick-key", string(msg.Data), packed)
		require.NoError(t, eerr)
		require.NoError(t, msg.Respond(env))
	})
	require.NoError(t, err)

	resultCh := make(chan struct{}, 1)
	_, err = conn.Subscribe(subjectResult, func(msg *nats.Msg) {
		kind, key, _, _, derr := dispatchwire.DecodeEnvelope(msg.Data)
		require.NoError(t, derr)
		require.Equal(t, "success", kind)
		require.Equal(t, "brick-key", key)
		resultCh <- struct{}{}
	})
	require.NoError(t, err)

	w, err := Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(w.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, got)

	select {
	case <-resultCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for success result")
	}
}
