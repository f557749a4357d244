// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package coordinator supervises Workers in response to control envelopes
// received on a configuration topic (spec §4.6): it validates incoming
// configs, spawns/stops/resets Workers, restarts a Worker whose job
// panicked with an internal invariant violation (spec §7), and fans every
// Worker's statistics to a single status topic.
package coordinator

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/essworks/binit/internal/config"
	"github.com/essworks/binit/internal/worker"
	"github.com/essworks/binit/pkg/log"
	pkgnats "github.com/essworks/binit/pkg/nats"
)

const (
	// maxRestarts and restartWindow implement spec §7's "at most 3
	// restarts in 60s before a job is marked permanently error".
	maxRestarts   = 3
	restartWindow = 60 * time.Second
	// stopGrace bounds how long a single "stop"/"add"-replace waits for a
	// Worker to exit before abandoning it (spec §5, "10s grace" at
	// program-wide quit; the same figure is used for a single-job stop).
	stopGrace = 10 * time.Second
	// configQueueGroup makes two Coordinator processes sharing a config
	// topic act as load-balanced replicas rather than duplicates: NATS
	// delivers each message to exactly one queue member (spec §4.6, "a
	// Coordinator" — singular per config topic).
	configQueueGroup = "binit-coordinators"
)

// Bus is the subset of pkg/nats.Client the Coordinator needs. Defined here
// so tests can supply a fake without a real broker.
type Bus interface {
	SubscribeQueue(subject, queue string, handler pkgnats.MessageHandler) error
	Publish(subject string, data []byte) error
}

// JobSpec carries everything needed to (re)build a Worker for one job,
// kept so a restart can rebuild from scratch with cleared aggregators
// (spec §7).
type JobSpec struct {
	JobID string
	Env   Envelope
}

// WorkerFactory builds a running Worker for spec. Production code gets a
// real implementation wired to NATS (see NewNatsWorkerFactory); tests
// inject a fake.
type WorkerFactory func(spec JobSpec) (*worker.Worker, error)

// managedJob tracks one supervised Worker.
type managedJob struct {
	spec      JobSpec
	w         *worker.Worker
	cancel    context.CancelFunc
	done      chan struct{}
	restarts  []time.Time
	permError bool
}

// Coordinator supervises Workers for every job id named by "add" envelopes
// it receives.
type Coordinator struct {
	bus           Bus
	configTopic   string
	statusTopic   string
	newWorker     WorkerFactory
	dumpToFile    string

	mu   sync.Mutex
	jobs map[string]*managedJob

	quit chan struct{}
	once sync.Once
}

// New constructs a Coordinator. dumpToFile, when non-empty, makes the
// Coordinator append every raw control envelope it receives to that path
// before acting on it (SPEC_FULL §5.2), useful for replaying a control
// sequence during debugging.
func New(bus Bus, configTopic, statusTopic string, newWorker WorkerFactory, dumpToFile string) *Coordinator {
	return &Coordinator{
		bus:         bus,
		configTopic: configTopic,
		statusTopic: statusTopic,
		newWorker:   newWorker,
		dumpToFile:  dumpToFile,
		jobs:        make(map[string]*managedJob),
		quit:        make(chan struct{}),
	}
}

// Run subscribes to the configuration topic and blocks until a "quit"
// envelope is processed or ctx is canceled. On ctx cancellation it stops
// every job with a 10s grace (spec §5) and returns ctx.Err(); on a
// received "quit" it returns nil.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.bus.SubscribeQueue(c.configTopic, configQueueGroup, c.onMessage); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		c.stopAll(stopGrace)
		return ctx.Err()
	case <-c.quit:
		return nil
	}
}

// onMessage is the Subscribe callback for the configuration topic.
func (c *Coordinator) onMessage(_ string, data []byte) {
	if c.dumpToFile != "" {
		c.dump(data)
	}

	if err := config.ValidateErr(EnvelopeSchema, json.RawMessage(data)); err != nil {
		log.Warnf("coordinator: rejecting malformed control envelope: %v", err)
		c.publishStatus(worker.Stats{State: "error", Reason: err.Error()})
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warnf("coordinator: malformed control envelope json: %v", err)
		return
	}

	switch env.Cmd {
	case "add":
		c.handleAdd(env)
	case "stop":
		c.handleStop(env.JobID)
	case "reset":
		c.handleReset(env.JobID)
	case "quit":
		c.handleQuitAll()
	default:
		log.Warnf("coordinator: unknown control command %q", env.Cmd)
	}
}

func (c *Coordinator) dump(data []byte) {
	f, err := os.OpenFile(c.dumpToFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warnf("coordinator: dump-to-file: %v", err)
		return
	}
	defer f.Close()
	_, _ = f.Write(append(data, '\n'))
}

// handleAdd starts a new Worker for env.JobID, replacing any existing one
// with the same id (spec §4.6, "Duplicate id replaces (stop + start)").
func (c *Coordinator) handleAdd(env Envelope) {
	c.stopJobSync(env.JobID, stopGrace)

	spec := JobSpec{JobID: env.JobID, Env: env}
	c.startJob(spec, nil)
}

// startJob constructs and launches a Worker for spec. A construction
// failure (bus unavailable, bad aggregator parameters) is reported as an
// error status record; the Coordinator itself never exits on it (spec
// §4.6, §4.7). restarts carries the job's restart history across a restart
// so the restart budget spans successive Workers.
func (c *Coordinator) startJob(spec JobSpec, restarts []time.Time) {
	w, err := c.newWorker(spec)
	if err != nil {
		log.Errorf("coordinator: job %s failed to start: %v", spec.JobID, err)
		c.publishStatus(worker.Stats{JobID: spec.JobID, State: "error", Reason: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &managedJob{spec: spec, w: w, cancel: cancel, done: make(chan struct{}), restarts: restarts}

	c.mu.Lock()
	c.jobs[spec.JobID] = job
	c.mu.Unlock()

	go c.runJob(spec.JobID, job, ctx)
}

// runJob drives job.w.Run to completion, fans its statistics to the status
// topic concurrently, and recovers an InternalInvariantViolation panic by
// handing the job to the restart-with-backoff path (spec §7).
func (c *Coordinator) runJob(jobID string, job *managedJob, ctx context.Context) {
	defer close(job.done)

	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		for s := range job.w.Stats() {
			c.publishStatus(s)
		}
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("coordinator: job %s panicked (internal invariant violation): %v", jobID, r)
				c.onInvariantViolation(jobID)
			}
		}()
		job.w.Run(ctx)
	}()

	<-statsDone

	// A Worker that has exited is no longer managed, unless a restart has
	// already put a new Worker under the same id.
	c.mu.Lock()
	if c.jobs[jobID] == job {
		delete(c.jobs, jobID)
	}
	c.mu.Unlock()
}

// onInvariantViolation restarts jobID with a freshly built Worker (cleared
// aggregators) unless it has already restarted 3 times within the last
// 60s, in which case the job is marked permanently "error" (spec §7).
func (c *Coordinator) onInvariantViolation(jobID string) {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	if !ok {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	job.restarts = pruneRestarts(job.restarts, now)
	job.restarts = append(job.restarts, now)
	spec := job.spec
	restarts := append([]time.Time(nil), job.restarts...)
	tooMany := len(job.restarts) > maxRestarts
	if tooMany {
		job.permError = true
		delete(c.jobs, jobID)
	}
	c.mu.Unlock()

	if tooMany {
		log.Errorf("coordinator: job %s exceeded %d restarts in %s, marking permanently failed", jobID, maxRestarts, restartWindow)
		c.publishStatus(worker.Stats{JobID: jobID, State: "error", Reason: "exceeded maximum restarts within window"})
		return
	}

	log.Warnf("coordinator: restarting job %s after internal invariant violation", jobID)
	c.startJob(spec, restarts)
}

func pruneRestarts(restarts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-restartWindow)
	kept := restarts[:0]
	for _, t := range restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// handleStop sends "quit" to jobID's Worker without waiting for exit.
func (c *Coordinator) handleStop(jobID string) {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return
	}
	sendControl(job.w, worker.CtrlQuit)
}

// handleReset forwards a "clear" control message to jobID's Worker (spec
// §3, envelope cmd "reset").
func (c *Coordinator) handleReset(jobID string) {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return
	}
	sendControl(job.w, worker.CtrlClear)
}

// handleQuitAll stops every job and unblocks Run (spec §4.6, "quit
// terminates all Workers and then exits").
func (c *Coordinator) handleQuitAll() {
	c.stopAll(stopGrace)
	c.once.Do(func() { close(c.quit) })
}

// stopJobSync sends "quit" to jobID's Worker, if any, and waits up to
// grace for it to exit; beyond that it cancels the Worker's context and
// abandons it (spec §5, "Workers not exited by grace are abandoned").
func (c *Coordinator) stopJobSync(jobID string, grace time.Duration) {
	c.mu.Lock()
	job, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return
	}

	sendControl(job.w, worker.CtrlQuit)
	select {
	case <-job.done:
	case <-time.After(grace):
		job.cancel()
		<-job.done
	}

	c.mu.Lock()
	if c.jobs[jobID] == job {
		delete(c.jobs, jobID)
	}
	c.mu.Unlock()
}

// stopAll stops every currently managed job concurrently, each bounded by
// grace.
func (c *Coordinator) stopAll(grace time.Duration) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.jobs))
	for id := range c.jobs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			c.stopJobSync(id, grace)
		}(id)
	}
	wg.Wait()
}

// sendControl delivers msg to w's control channel without blocking. The
// channel has capacity 1; if a message is already pending, msg is dropped,
// whatever either message is.
func sendControl(w *worker.Worker, msg worker.ControlMsg) {
	select {
	case w.Control() <- msg:
	default:
	}
}

// publishStatus JSON-encodes s and publishes it to the status topic.
func (c *Coordinator) publishStatus(s worker.Stats) {
	data, err := json.Marshal(s)
	if err != nil {
		log.Errorf("coordinator: marshal status record: %v", err)
		return
	}
	if err := c.bus.Publish(c.statusTopic, data); err != nil {
		log.Errorf("coordinator: publish status: %v", err)
	}
}
