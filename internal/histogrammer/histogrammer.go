// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package histogrammer wraps one or more Aggregators for a single job
// (spec §4.4). It routes decoded event records to every aggregator,
// respecting each aggregator's own source filter, and on each publish tick
// encodes every aggregator's current snapshot as an hs00 frame and pushes
// it to its configured topic.
package histogrammer

import (
	"github.com/essworks/binit/internal/aggregator"
	"github.com/essworks/binit/internal/codec"
)

// Sink is the push capability a Histogrammer needs from a bus producer
// (spec §4.4, "pushes to its topic"). internal/histsink provides the
// NATS-backed implementation; tests supply a fake.
type Sink interface {
	Publish(topic string, frame []byte) error
}

// slot binds one Aggregator to the topic and source name its hs00 frames
// are published under.
type slot struct {
	name  string // hs00 "source" field
	topic string
	agg   aggregator.Aggregator
}

// Histogrammer owns the aggregators for one job.
type Histogrammer struct {
	infoString string
	sink       Sink
	slots      []slot
}

// New constructs a Histogrammer that publishes through sink. infoString is
// written verbatim into every hs00 frame's info field (spec §4.4).
func New(infoString string, sink Sink) *Histogrammer {
	return &Histogrammer{infoString: infoString, sink: sink}
}

// AddAggregator registers agg to publish its snapshots to topic under the
// given source name.
func (h *Histogrammer) AddAggregator(name, topic string, agg aggregator.Aggregator) {
	h.slots = append(h.slots, slot{name: name, topic: topic, agg: agg})
}

// AddData routes one event frame to every registered aggregator. Each
// aggregator independently decides whether the frame's source matches its
// own source_filter. Returns the sum of accepted/dropped across all
// aggregators.
func (h *Histogrammer) AddData(rec codec.EventRecord) (accepted, dropped int) {
	for _, s := range h.slots {
		a, d := s.agg.AddData(rec.PulseTime, rec.Tofs, rec.DetIDs, rec.Source)
		accepted += a
		dropped += d
	}
	return accepted, dropped
}

// Publish encodes every aggregator's current snapshot as hs00 and pushes it
// to its configured topic (spec §4.4).
func (h *Histogrammer) Publish() error {
	for _, s := range h.slots {
		frame := codec.HistogramFrame{
			Source: s.name,
			Info:   h.infoString,
			Data:   s.agg.Data(),
		}

		shape := s.agg.Shape()
		frame.Shape = make([]uint32, len(shape))
		for i, d := range shape {
			frame.Shape[i] = uint32(d)
		}

		// Length is the dimension's bin count (shape[i]), not the edge
		// count: bin_boundaries carries num_bins+1 entries, but length
		// itself names the number of bins, matching
		// original_source/endpoints/serialisation.py's
		// _serialise_metadata(builder, edges, shape[i]).
		frame.DimMetadata = append(frame.DimMetadata, codec.DimMetadata{
			Length:        uint32(shape[0]),
			BinBoundaries: s.agg.XEdges(),
		})
		if yEdges := s.agg.YEdges(); yEdges != nil {
			frame.DimMetadata = append(frame.DimMetadata, codec.DimMetadata{
				Length:        uint32(shape[1]),
				BinBoundaries: yEdges,
			})
		}

		if err := h.sink.Publish(s.topic, codec.EncodeHs00(frame)); err != nil {
			return err
		}
	}
	return nil
}

// ClearAll invokes ClearData on every aggregator (spec §4.5, control
// envelope "clear").
func (h *Histogrammer) ClearAll() {
	for _, s := range h.slots {
		s.agg.ClearData()
	}
}

// LastPulseTime returns the largest last_pulse_time across all registered
// aggregators, or 0 if none has recorded a pulse time yet.
func (h *Histogrammer) LastPulseTime() int64 {
	var max int64
	for _, s := range h.slots {
		if t := s.agg.LastPulseTime(); t > max {
			max = t
		}
	}
	return max
}
