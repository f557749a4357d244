// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventsource

import (
	"context"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// OpenMulti opens one durable consumer per topic and merges their poll
// results, since a Worker's job may subscribe to more than one event topic
// (spec §2, "subscribes to one or more event topics"). The merged Source's
// Poll gives each underlying consumer a fair share of the timeout.
func OpenMulti(js nats.JetStreamContext, topics []string, jobID string, mode Mode, startNS int64) (Source, error) {
	if len(topics) == 1 {
		return Open(js, topics[0], jobID, mode, startNS)
	}

	sources := make([]Source, 0, len(topics))
	for i, topic := range topics {
		// Each topic needs its own durable consumer name; jobID alone
		// would collide across topics for the same job.
		src, err := Open(js, topic, jobID+"-"+strconv.Itoa(i), mode, startNS)
		if err != nil {
			for _, s := range sources {
				_ = s.Close()
			}
			return nil, err
		}
		sources = append(sources, src)
	}
	return &multiSource{sources: sources}, nil
}

// multiSource merges several Sources into one, polling each in turn within
// the caller's timeout budget.
type multiSource struct {
	sources []Source
}

func (m *multiSource) Poll(ctx context.Context, timeout time.Duration) (PollResult, error) {
	perSource := timeout / time.Duration(len(m.sources))
	if perSource <= 0 {
		perSource = time.Millisecond
	}

	var merged PollResult
	for _, s := range m.sources {
		r, err := s.Poll(ctx, perSource)
		if err != nil {
			return merged, err
		}
		merged.Records = append(merged.Records, r.Records...)
		merged.DroppedFrames += r.DroppedFrames
	}
	return merged, nil
}

func (m *multiSource) Close() error {
	var first error
	for _, s := range m.sources {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
