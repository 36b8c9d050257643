// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/dispatch"
	"github.com/ClusterCockpit/covmodel/pkg/paramstore"
	"github.com/ClusterCockpit/covmodel/pkg/persistence"
	"github.com/ClusterCockpit/covmodel/pkg/worker"
)

// runServer opens the coverage at storeRoot/coverageID, starts a dispatcher
// with its embedded NATS transport, connects numWorkers in-process workers
// to it, and blocks until SIGINT/SIGTERM, at which point it asks the
// dispatcher to drain before returning.
func runServer(storeRoot, coverageID string, numWorkers int) error {
	if _, err := persistence.Open(storeRoot, coverageID); err != nil {
		return err
	}
	cclog.Infof("[PERSIST]> opened coverage %q at %s", coverageID, storeRoot)

	onFailure := func(message, key string, metrics brickfile.Metrics, work []paramstore.WorkItem) {
		cclog.Errorf("[DISPATCH]> %s: brick %s at %s gave up after exceeding the retry budget", message, key, metrics.Path)
	}
	d, err := dispatch.New(onFailure)
	if err != nil {
		return err
	}
	cclog.Infof("[DISPATCH]> embedded NATS transport listening at %s", d.ClientURL())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		w, err := worker.Connect(d.ClientURL())
		if err != nil {
			cancel()
			_ = d.Shutdown(true, time.Second)
			return err
		}
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			defer w.Close()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				cclog.Warnf("[WORKER]> %s stopped: %v", w.ID(), err)
			}
		}(w)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	cclog.Infof("[DISPATCH]> shutdown signal received, draining coverage %q", coverageID)

	if err := d.Shutdown(false, 30*time.Second); err != nil {
		cclog.Warnf("[DISPATCH]> shutdown: %v", err)
	}
	cancel()
	wg.Wait()

	cclog.Info("[DISPATCH]> graceful shutdown completed")
	return nil
}
