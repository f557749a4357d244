// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package eventsource implements the pull interface a Worker uses to
// consume ev42 event frames (spec §4.2). The concrete implementation is
// backed by a NATS JetStream pull consumer, since plain core NATS
// subscriptions have no concept of offset/seek: JetStream's per-consumer
// delivery policy plays the role of "assign to current end offsets" (live
// tail) and "seek each partition to the earliest offset whose timestamp >=
// start_ns" (historical), per SPEC_FULL §4.
package eventsource

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/essworks/binit/internal/binit"
	"github.com/essworks/binit/internal/codec"
	"github.com/essworks/binit/pkg/log"
)

// PollResult is one batch handed up by Poll. DroppedFrames counts frames
// that failed ev42 decoding (SchemaMismatch or MalformedFrame, spec §4.7);
// those frames are never included in Records.
type PollResult struct {
	Records       []codec.EventRecord
	DroppedFrames int
}

// Source is the pull contract a Worker needs from a bus consumer (spec
// §4.2). Poll must return within timeout even if no records are available;
// a zero-value PollResult with a nil error means "no data within timeout".
type Source interface {
	Poll(ctx context.Context, timeout time.Duration) (PollResult, error)

	// Close releases the underlying bus consumer. Safe to call more than
	// once.
	Close() error
}

// Mode selects how a newly created consumer is positioned (spec §4.2,
// "live tail" vs "historical").
type Mode int

const (
	// LiveTail assigns the consumer to current end offsets: only events
	// published after subscription are delivered.
	LiveTail Mode = iota
	// Historical seeks to the earliest offset whose timestamp is >=
	// startNS.
	Historical
)

// Open creates a JetStream pull consumer on topic. The consumer's durable
// name is "binit-" followed by jobID, so that a Worker restarted by the Coordinator
// (spec §7, InternalInvariantViolation restart) resumes the same
// consumer rather than creating a duplicate.
func Open(js nats.JetStreamContext, topic, jobID string, mode Mode, startNS int64) (Source, error) {
	durable := "binit-" + jobID

	var opt nats.SubOpt
	switch mode {
	case LiveTail:
		opt = nats.DeliverNew()
	case Historical:
		opt = nats.StartTime(time.Unix(0, startNS))
	default:
		return nil, fmt.Errorf("eventsource: unknown offset mode %d", mode)
	}

	sub, err := js.PullSubscribe(topic, durable, opt, nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("%w: pull-subscribe %s: %v", binit.ErrBusUnavailable, topic, err)
	}

	return &jetStreamSource{sub: sub, topic: topic, logger: log.Job(jobID)}, nil
}

// jetStreamSource adapts a JetStream pull consumer to the Source
// interface.
type jetStreamSource struct {
	sub    *nats.Subscription
	topic  string
	logger *log.JobLogger
}

func (s *jetStreamSource) Poll(ctx context.Context, timeout time.Duration) (PollResult, error) {
	msgs, err := s.sub.Fetch(64, nats.MaxWait(timeout), nats.Context(ctx))
	if err != nil {
		if err == nats.ErrTimeout || err == context.DeadlineExceeded {
			return PollResult{}, nil
		}
		return PollResult{}, fmt.Errorf("%w: fetch from %s: %v", binit.ErrBusUnavailable, s.topic, err)
	}

	var result PollResult
	for _, m := range msgs {
		rec, decErr := codec.DecodeEv42(m.Data)
		if decErr != nil {
			result.DroppedFrames++
			s.logger.Warnf("eventsource: dropping malformed frame on %s: %v", s.topic, decErr)
			_ = m.Ack()
			continue
		}
		result.Records = append(result.Records, rec)
		_ = m.Ack()
	}
	return result, nil
}

func (s *jetStreamSource) Close() error {
	return s.sub.Unsubscribe()
}
