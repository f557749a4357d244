// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package worker drives a single job's interval state machine (spec §4.5):
// it polls an EventSource, feeds decoded records through a Histogrammer,
// publishes snapshots on a bounded cadence, and reports statistics while
// honoring a single-slot control channel carrying "clear"/"quit".
package worker

import (
	"context"
	"time"

	"github.com/essworks/binit/internal/binit"
	"github.com/essworks/binit/internal/codec"
	"github.com/essworks/binit/internal/eventsource"
	"github.com/essworks/binit/internal/histogrammer"
	"github.com/essworks/binit/pkg/log"
)

const (
	// maxPollTimeout is the hard cap on a single Poll call (spec §4.5).
	maxPollTimeout = 500 * time.Millisecond
	// defaultPublishInterval is the wall-clock publish cadence when no
	// event has been accepted since the last tick (spec §4.5).
	defaultPublishInterval = 1 * time.Second
	// statsChanCapacity is the bounded outbound statistics channel size
	// (spec §3, "capacity >= 8").
	statsChanCapacity = 8
)

// Config describes one job interval (spec §4.1/§4.5).
type Config struct {
	JobID   string
	StartNS int64
	// StopNS is nil for an open-ended interval (never transitions to
	// FINISHED on its own; only "quit" ends the job).
	StopNS *int64
}

// Worker owns one job's EventSource and Histogrammer and drives its
// lifecycle on its own goroutine via Run.
type Worker struct {
	cfg    Config
	source eventsource.Source
	hist   *histogrammer.Histogrammer

	control chan ControlMsg
	stats   chan Stats

	state               State
	totalEvents         int64
	droppedOutOfRange   int64
	statsChannelDropped int64

	logger *log.JobLogger
}

// New constructs a Worker. Run must be called to drive it; it does not
// start any goroutine on its own.
func New(cfg Config, source eventsource.Source, hist *histogrammer.Histogrammer) *Worker {
	return &Worker{
		cfg:     cfg,
		source:  source,
		hist:    hist,
		control: make(chan ControlMsg, 1),
		stats:   make(chan Stats, statsChanCapacity),
		state:   NotStarted,
		logger:  log.Job(cfg.JobID),
	}
}

// Control returns the send side of the Worker's single-slot control
// channel. A pending "quit" or "clear" is picked up before the next poll.
func (w *Worker) Control() chan<- ControlMsg {
	return w.control
}

// Stats returns the receive side of the Worker's bounded statistics
// channel. It is closed when Run returns.
func (w *Worker) Stats() <-chan Stats {
	return w.stats
}

// Run drives the state machine until FINISHED or STOPPED, then emits one
// final statistics record and closes the source and the stats channel. It
// blocks until that happens, so callers run it on its own goroutine.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stats)
	defer func() {
		if err := w.source.Close(); err != nil {
			w.logger.Warnf("worker: closing event source: %v", err)
		}
	}()

	lastPublish := time.Now()
	eventsSinceLastPublish := 0

	for {
		if quit := w.drainControl(); quit {
			w.state = Stopped
			break
		}

		if w.ctxDone(ctx) {
			w.state = Stopped
			break
		}

		result, err := w.source.Poll(ctx, maxPollTimeout)
		if err != nil {
			w.logger.Errorf("worker: poll failed: %v", err)
			continue
		}
		w.droppedOutOfRange += int64(result.DroppedFrames)

		for _, rec := range result.Records {
			switch w.state {
			case NotStarted:
				if rec.PulseTime >= w.cfg.StartNS {
					w.state = Counting
					w.feed(rec, &eventsSinceLastPublish)
				}
			case Counting:
				if w.cfg.StopNS != nil && rec.PulseTime >= *w.cfg.StopNS {
					w.state = Finished
				} else {
					w.feed(rec, &eventsSinceLastPublish)
				}
			default:
				// NotStarted and Counting are the only states under which
				// a record can reach this switch; anything else means the
				// loop kept running past a terminal state, which should be
				// impossible given the break below (spec §7).
				panic(binit.ErrInternalInvariantViolation)
			}
			if w.state.terminal() {
				break
			}
		}

		// Skip the in-loop tick once terminal: the post-loop publishTick
		// below is the sole final emit (spec §8 scenario 4, "exactly one
		// final publish occurs"). Without this gate, a batch that both
		// feeds an accepted record and crosses stop_ns in the same Poll
		// would publish twice, both already reporting state=finished.
		if w.state.terminal() {
			break
		}

		now := time.Now()
		if eventsSinceLastPublish > 0 || now.Sub(lastPublish) >= defaultPublishInterval {
			w.publishTick()
			lastPublish = now
			eventsSinceLastPublish = 0
		}
	}

	// Exactly one final snapshot and statistics record on the way out
	// (spec §4.5, "keeps publishing... until acknowledged", here realized
	// as a single terminal emit rather than an ongoing zero-delta loop).
	w.publishTick()
}

// feed pushes rec through the Histogrammer and updates the Worker-level
// counters used in statistics records.
func (w *Worker) feed(rec codec.EventRecord, eventsSinceLastPublish *int) {
	accepted, dropped := w.hist.AddData(rec)
	w.totalEvents += int64(accepted)
	w.droppedOutOfRange += int64(dropped)
	*eventsSinceLastPublish += accepted
}

// ctxDone reports whether ctx has been canceled.
func (w *Worker) ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// drainControl consumes a pending control message, if any, and reports
// whether a quit was requested. A "clear" is applied immediately.
func (w *Worker) drainControl() (quit bool) {
	select {
	case msg := <-w.control:
		switch msg {
		case CtrlClear:
			w.hist.ClearAll()
		case CtrlQuit:
			return true
		}
	default:
	}
	return false
}

// publishTick publishes the current Histogrammer snapshot and enqueues a
// statistics record, applying drop-oldest-on-overflow if the stats
// channel is full (spec §3).
func (w *Worker) publishTick() {
	if err := w.hist.Publish(); err != nil {
		w.logger.Warnf("worker: publish failed: %v", err)
	}

	rec := Stats{
		JobID:               w.cfg.JobID,
		LastPulseTime:       w.hist.LastPulseTime(),
		TotalEvents:         w.totalEvents,
		DroppedOutOfRange:   w.droppedOutOfRange,
		State:               w.state,
		StatsChannelDropped: w.statsChannelDropped,
	}
	w.enqueueStats(rec)
}

// enqueueStats sends rec without blocking, dropping the oldest pending
// record if the channel is full.
func (w *Worker) enqueueStats(rec Stats) {
	select {
	case w.stats <- rec:
		return
	default:
	}

	select {
	case <-w.stats:
		w.statsChannelDropped++
	default:
	}

	select {
	case w.stats <- rec:
	default:
	}
}
