// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/essworks/binit/internal/eventsource"
	"github.com/essworks/binit/internal/histogrammer"
	"github.com/essworks/binit/internal/worker"
	pkgnats "github.com/essworks/binit/pkg/nats"
)

// fakeBus is an in-process stand-in for pkg/nats.Client: Publish appends to
// a slice and Subscribe just remembers the handler so tests can drive it
// directly by calling deliver.
type fakeBus struct {
	mu        sync.Mutex
	handler   pkgnats.MessageHandler
	published []publishedMsg
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (b *fakeBus) SubscribeQueue(_, _ string, handler pkgnats.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
	return nil
}

func (b *fakeBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMsg{subject, data})
	return nil
}

func (b *fakeBus) deliver(t *testing.T, env Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	require.NotNil(t, h, "onMessage not registered yet")
	h("config.topic", data)
}

func (b *fakeBus) statusRecords() []worker.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []worker.Stats
	for _, m := range b.published {
		var s worker.Stats
		if json.Unmarshal(m.data, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// fakeSource never yields records until closed; enough for tests that only
// exercise control-channel behavior.
type fakeSource struct {
	closed chan struct{}
	once   sync.Once
}

func newFakeSource() *fakeSource { return &fakeSource{closed: make(chan struct{})} }

func (f *fakeSource) Poll(ctx context.Context, timeout time.Duration) (eventsource.PollResult, error) {
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
	case <-f.closed:
	}
	return eventsource.PollResult{}, nil
}

func (f *fakeSource) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type fakeSink struct{}

func (fakeSink) Publish(topic string, frame []byte) error { return nil }

func fakeFactory(t *testing.T) (WorkerFactory, *int32) {
	t.Helper()
	var constructions int32
	factory := func(spec JobSpec) (*worker.Worker, error) {
		atomic.AddInt32(&constructions, 1)
		hist := histogrammer.New("", fakeSink{})
		return worker.New(worker.Config{JobID: spec.JobID, StartNS: spec.Env.StartNS, StopNS: spec.Env.StopNS}, newFakeSource(), hist), nil
	}
	return factory, &constructions
}

func TestCoordinatorAddAndStop(t *testing.T) {
	bus := &fakeBus{}
	factory, _ := fakeFactory(t)
	c := New(bus, "config.topic", "status.topic", factory, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	// Give Run a moment to subscribe before delivering.
	waitFor(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.handler != nil
	})

	bus.deliver(t, Envelope{Cmd: "add", JobID: "job-1"})

	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, ok := c.jobs["job-1"]
		return ok
	})

	bus.deliver(t, Envelope{Cmd: "stop", JobID: "job-1"})

	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, ok := c.jobs["job-1"]
		return !ok
	})
}

func TestCoordinatorDuplicateIDReplaces(t *testing.T) {
	bus := &fakeBus{}
	factory, constructions := fakeFactory(t)
	c := New(bus, "config.topic", "status.topic", factory, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.handler != nil
	})

	bus.deliver(t, Envelope{Cmd: "add", JobID: "dup"})
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, ok := c.jobs["dup"]
		return ok
	})
	bus.deliver(t, Envelope{Cmd: "add", JobID: "dup"})

	waitFor(t, func() bool { return atomic.LoadInt32(constructions) >= 2 })
}

func TestCoordinatorQuitStopsAllAndReturns(t *testing.T) {
	bus := &fakeBus{}
	factory, _ := fakeFactory(t)
	c := New(bus, "config.topic", "status.topic", factory, "")

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(context.Background()) }()

	waitFor(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.handler != nil
	})

	bus.deliver(t, Envelope{Cmd: "add", JobID: "job-a"})
	bus.deliver(t, Envelope{Cmd: "add", JobID: "job-b"})
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.jobs) == 2
	})

	bus.deliver(t, Envelope{Cmd: "quit"})

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not return after quit")
	}

	c.mu.Lock()
	assert.Empty(t, c.jobs)
	c.mu.Unlock()
}

func TestCoordinatorReportsConstructionFailureAsError(t *testing.T) {
	bus := &fakeBus{}
	factory := WorkerFactory(func(spec JobSpec) (*worker.Worker, error) {
		return nil, assertErr{}
	})
	c := New(bus, "config.topic", "status.topic", factory, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.handler != nil
	})

	bus.deliver(t, Envelope{Cmd: "add", JobID: "bad-job"})

	waitFor(t, func() bool {
		for _, s := range bus.statusRecords() {
			if s.JobID == "bad-job" && s.State == "error" {
				return true
			}
		}
		return false
	})
}

type assertErr struct{}

func (assertErr) Error() string { return "construction failed" }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
