// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of covmodel.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch implements the asynchronous brick-write dispatcher
// (spec §4.6): a single-process coordinator running three cooperating
// tasks (organizer, provisioner, receiver) over pending/active/stashed
// work, transporting packed work to workers over an embedded NATS server.
//
// Grounded on the teacher's worker-channel pattern
// (internal/archiver/archiveWorker.go: a channel-fed worker with
// WaitGroup draining and retry-by-resubmission), scaled from one channel
// and one retry path up to three cooperating maps and a bounded retry
// counter, run under golang.org/x/sync/errgroup for cancellable
// cooperative shutdown the way the teacher's pkg/metricstore/archive.go
// runs its cleanup workers under a WaitGroup, generalized because the
// dispatcher's organizer must propagate cancellation, which a bare
// WaitGroup cannot.
package dispatch

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/covmodel/internal/config"
	"github.com/ClusterCockpit/covmodel/pkg/brickfile"
	"github.com/ClusterCockpit/covmodel/pkg/cmerrors"
	"github.com/ClusterCockpit/covmodel/pkg/dispatchwire"
	"github.com/ClusterCockpit/covmodel/pkg/paramstore"
	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	subjectRequestWork = "covmodel.dispatch.request"
	subjectResult       = "covmodel.dispatch.result"
)

// FailureCallback is invoked when a work item exceeds MAX_RETRIES (§4.6).
type FailureCallback func(message string, key string, metrics brickfile.Metrics, work []paramstore.WorkItem)

type putMsg struct {
	key     string
	metrics brickfile.Metrics
	work    []paramstore.WorkItem
}

type pendingEntry struct {
	metrics brickfile.Metrics
	work    []paramstore.WorkItem
}

type activeEntry struct {
	workerID string
	packed   []byte
	metrics  brickfile.Metrics
	work     []paramstore.WorkItem
}

// Dispatcher is the §4.6 coordinator. One instance serves an entire
// coverage's writes; it owns an embedded NATS server workers dial into.
type Dispatcher struct {
	mu       sync.Mutex
	pending  map[string]*pendingEntry
	active   map[string]*activeEntry
	stashed  map[string]*pendingEntry
	failures map[string]int // keyed by the encoded packed work

	workQueue chan string
	inbox     chan putMsg

	onFailure FailureCallback

	natsSrv  *server.Server
	natsConn *nats.Conn
	subReq   *nats.Subscription
	subRes   *nats.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	shuttingDown bool
	shutdownOnce sync.Once
	drainWaiters []chan struct{}

	registry      *prometheus.Registry
	retryCounter  prometheus.Counter
	failCounter   prometheus.Counter
}

// New starts a dispatcher: an embedded NATS server bound to the first free
// port in the configured range, and the organizer/provisioner/receiver
// tasks. onFailure is called once per work item that exhausts its retry
// budget.
func New(onFailure FailureCallback) (*Dispatcher, error) {
	port, err := freePort(config.Keys.NatsPortLow, config.Keys.NatsPortHigh)
	if err != nil {
		return nil, fmt.Errorf("dispatch: no free port in [%d, %d): %w", config.Keys.NatsPortLow, config.Keys.NatsPortHigh, err)
	}
	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: port, NoLog: true, NoSigs: true})
	if err != nil {
		return nil, fmt.Errorf("dispatch: starting embedded NATS server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("dispatch: embedded NATS server did not become ready")
	}

	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("dispatch: connecting to embedded NATS server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	reg := prometheus.NewRegistry()
	retryCounter := prometheus.NewCounter(prometheus.CounterOpts{Name: "covmodel_dispatch_retries_total", Help: "Work items re-enqueued after a worker failure."})
	failCounter := prometheus.NewCounter(prometheus.CounterOpts{Name: "covmodel_dispatch_failures_total", Help: "Work items dropped after exceeding the retry budget."})
	reg.MustRegister(retryCounter, failCounter)

	d := &Dispatcher{
		pending:      map[string]*pendingEntry{},
		active:       map[string]*activeEntry{},
		stashed:      map[string]*pendingEntry{},
		failures:     map[string]int{},
		workQueue:    make(chan string, config.Keys.QueueCapacity),
		inbox:        make(chan putMsg, config.Keys.QueueCapacity),
		onFailure:    onFailure,
		natsSrv:      srv,
		natsConn:     conn,
		ctx:          ctx,
		cancel:       cancel,
		g:            g,
		registry:     reg,
		retryCounter: retryCounter,
		failCounter:  failCounter,
	}

	pendingGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "covmodel_dispatch_pending_keys", Help: "Distinct brick keys with unassigned work."}, func() float64 {
		d.mu.Lock()
		defer d.mu.Unlock()
		return float64(len(d.pending))
	})
	activeGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "covmodel_dispatch_active_keys", Help: "Distinct brick keys currently assigned to a worker."}, func() float64 {
		d.mu.Lock()
		defer d.mu.Unlock()
		return float64(len(d.active))
	})
	reg.MustRegister(pendingGauge, activeGauge)

	sub1, err := conn.Subscribe(subjectRequestWork, d.handleRequestWork)
	if err != nil {
		d.teardownTransport()
		return nil, err
	}
	sub2, err := conn.Subscribe(subjectResult, d.handleResult)
	if err != nil {
		sub1.Unsubscribe()
		d.teardownTransport()
		return nil, err
	}
	d.subReq, d.subRes = sub1, sub2

	g.Go(func() error { return d.organizer(gctx) })

	return d, nil
}

// Registry exposes this dispatcher's Prometheus metrics for mounting under
// an HTTP handler.
func (d *Dispatcher) Registry() *prometheus.Registry { return d.registry }

// ClientURL returns the embedded NATS server's client connection URL, for
// wiring up workers (pkg/worker.Connect).
func (d *Dispatcher) ClientURL() string { return d.natsSrv.ClientURL() }

// Put implements §4.6's put(): enqueue work for key. Empty work-lists are
// discarded unless key has a stash, in which case they still reach the
// organizer as a flush trigger.
func (d *Dispatcher) Put(key string, metrics brickfile.Metrics, work []paramstore.WorkItem) error {
	d.mu.Lock()
	down := d.shuttingDown
	d.mu.Unlock()
	if down {
		return &cmerrors.ShutdownAfterSubmit{}
	}
	select {
	case d.inbox <- putMsg{key: key, metrics: metrics, work: work}:
		return nil
	case <-d.ctx.Done():
		return &cmerrors.ShutdownAfterSubmit{}
	}
}

func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0
}

func (d *Dispatcher) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active) > 0
}

func (d *Dispatcher) Stashed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stashed) > 0
}

// Dirty reports whether any of pending/active/stashed is non-empty.
func (d *Dispatcher) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirtyLocked()
}

func (d *Dispatcher) dirtyLocked() bool {
	return len(d.pending) > 0 || len(d.active) > 0 || len(d.stashed) > 0
}

// DrainSignal returns a channel closed once Dirty becomes false.
func (d *Dispatcher) DrainSignal() <-chan struct{} {
	ch := make(chan struct{})
	d.mu.Lock()
	if !d.dirtyLocked() {
		close(ch)
		d.mu.Unlock()
		return ch
	}
	d.drainWaiters = append(d.drainWaiters, ch)
	d.mu.Unlock()
	return ch
}

func (d *Dispatcher) checkDrainLocked() {
	if d.dirtyLocked() || len(d.drainWaiters) == 0 {
		return
	}
	for _, ch := range d.drainWaiters {
		close(ch)
	}
	d.drainWaiters = nil
}

// Shutdown implements §4.6's shutdown(force, timeout). Idempotent.
func (d *Dispatcher) Shutdown(force bool, timeout time.Duration) error {
	var err error
	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		d.shuttingDown = true
		d.mu.Unlock()

		if !force {
			select {
			case <-d.DrainSignal():
			case <-time.After(timeout):
				cclog.Warn("dispatch: shutdown timeout reached before drain completed")
			}
		}
		d.cancel()
		_ = d.g.Wait()
		d.teardownTransport()
	})
	return err
}

func (d *Dispatcher) teardownTransport() {
	if d.subReq != nil {
		d.subReq.Unsubscribe()
	}
	if d.subRes != nil {
		d.subRes.Unsubscribe()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.natsSrv != nil {
		d.natsSrv.Shutdown()
	}
}

// organizer consumes the inbox, flushing stashes on a fixed tick (§4.6).
func (d *Dispatcher) organizer(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(config.Keys.OrganizerPollIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-d.inbox:
			d.organize(msg.key, msg.metrics, msg.work)
		case <-ticker.C:
			d.flushStashes()
		}
	}
}

func (d *Dispatcher) organize(key string, metrics brickfile.Metrics, work []paramstore.WorkItem) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, hasStash := d.stashed[key]
	if len(work) == 0 && !hasStash {
		return
	}
	if _, isActive := d.active[key]; isActive {
		e, ok := d.stashed[key]
		if !ok {
			e = &pendingEntry{metrics: metrics}
			d.stashed[key] = e
		}
		e.work = append(e.work, work...)
		return
	}
	if hasStash {
		stash := d.stashed[key]
		delete(d.stashed, key)
		work = append(stash.work, work...)
	}
	if _, wasPending := d.pending[key]; !wasPending {
		d.pending[key] = &pendingEntry{metrics: metrics}
		d.workQueue <- key
	}
	d.pending[key].metrics = metrics
	d.pending[key].work = append(d.pending[key].work, work...)
	d.checkDrainLocked()
}

func (d *Dispatcher) flushStashes() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, e := range d.stashed {
		if _, isActive := d.active[key]; isActive {
			continue
		}
		delete(d.stashed, key)
		if _, wasPending := d.pending[key]; !wasPending {
			d.pending[key] = &pendingEntry{metrics: e.metrics}
			d.workQueue <- key
		}
		d.pending[key].work = append(d.pending[key].work, e.work...)
	}
	d.checkDrainLocked()
}

// handleRequestWork is the provisioner (§4.6): a worker announces itself
// ready by publishing its id to subjectRequestWork; we pop a key, move its
// pending work to active, and reply with the packed work.
func (d *Dispatcher) handleRequestWork(msg *nats.Msg) {
	workerID := string(msg.Data)
	select {
	case key := <-d.workQueue:
		d.mu.Lock()
		entry, ok := d.pending[key]
		if !ok {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		packed, err := dispatchwire.EncodePackedWork(key, entry.metrics, entry.work)
		if err != nil {
			d.mu.Unlock()
			cclog.Errorf("dispatch: encoding packed work for %s: %v", key, err)
			return
		}
		d.active[key] = &activeEntry{workerID: workerID, packed: packed, metrics: entry.metrics, work: entry.work}
		d.mu.Unlock()

		env, err := dispatchwire.EncodeEnvelope("work", key, workerID, packed)
		if err != nil {
			cclog.Errorf("dispatch: encoding envelope for %s: %v", key, err)
			return
		}
		if err := msg.Respond(env); err != nil {
			cclog.Warnf("dispatch: responding to worker %s: %v", workerID, err)
		}
	case <-time.After(2 * time.Second):
		_ = msg.Respond(nil)
	}
}

// handleResult is the receiver (§4.6).
func (d *Dispatcher) handleResult(msg *nats.Msg) {
	kind, key, workerID, payload, err := dispatchwire.DecodeEnvelope(msg.Data)
	if err != nil {
		cclog.Errorf("dispatch: decoding result envelope: %v", err)
		return
	}

	d.mu.Lock()
	if key == "" {
		key = d.recoverKeyByWorkerLocked(workerID)
	}
	ae, ok := d.active[key]
	if ok {
		delete(d.active, key)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	switch kind {
	case "success":
		d.mu.Lock()
		delete(d.failures, string(ae.packed))
		d.checkDrainLocked()
		d.mu.Unlock()

	case "failure":
		remaining, derr := dispatchwire.DecodePackedWork(payload)
		if derr != nil {
			cclog.Errorf("dispatch: decoding failure payload for %s: %v", key, derr)
			remaining = dispatchwire.PackedWork{Work: ae.work}
		}
		packedKey := string(ae.packed)
		d.mu.Lock()
		d.failures[packedKey]++
		count := d.failures[packedKey]
		d.mu.Unlock()

		if count > config.Keys.MaxRetries {
			d.failCounter.Inc()
			d.onFailure("exceeded MAX_RETRIES", key, ae.metrics, ae.work)
			d.mu.Lock()
			delete(d.failures, packedKey)
			d.checkDrainLocked()
			d.mu.Unlock()
			return
		}
		d.retryCounter.Inc()
		d.scheduleRetry(key, ae.metrics, remaining.Work, count)

	default:
		cclog.Warnf("dispatch: unknown result kind %q for key %s", kind, key)
	}
}

func (d *Dispatcher) recoverKeyByWorkerLocked(workerID string) string {
	for key, ae := range d.active {
		if ae.workerID == workerID {
			return key
		}
	}
	return ""
}

// scheduleRetry re-enqueues remaining work after a backoff delay keyed by
// the attempt count, per §7's bounded-retry error handling.
func (d *Dispatcher) scheduleRetry(key string, metrics brickfile.Metrics, work []paramstore.WorkItem, attempt int) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	var delay time.Duration
	for i := 0; i <= attempt; i++ {
		delay = b.NextBackOff()
	}
	time.AfterFunc(delay, func() {
		if err := d.Put(key, metrics, work); err != nil {
			cclog.Warnf("dispatch: re-enqueueing %s after failure: %v", key, err)
		}
	})
}

func freePort(low, high int) (int, error) {
	for p := low; p < high; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p))
		if err != nil {
			continue
		}
		l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in [%d, %d)", low, high)
}
