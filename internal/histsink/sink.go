// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package histsink implements the push interface a Histogrammer uses to
// publish hs00 histogram frames (spec §4.4). Histogram topics only need
// fire-and-forget delivery (spec's explicit Non-goal: no exactly-once
// delivery), so this wraps a plain, at-most-once NATS publish rather than
// a JetStream producer.
package histsink

import (
	"fmt"

	"github.com/essworks/binit/internal/binit"
	"github.com/essworks/binit/pkg/nats"
)

// Sink publishes encoded frames to a bus topic.
type Sink struct {
	client *nats.Client
}

// New wraps client as a histogrammer.Sink.
func New(client *nats.Client) *Sink {
	return &Sink{client: client}
}

// Publish pushes frame to topic. Returns ErrBusUnavailable if the
// underlying connection rejects the publish.
func (s *Sink) Publish(topic string, frame []byte) error {
	if err := s.client.Publish(topic, frame); err != nil {
		return fmt.Errorf("%w: %v", binit.ErrBusUnavailable, err)
	}
	return nil
}
