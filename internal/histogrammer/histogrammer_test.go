// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package histogrammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/essworks/binit/internal/aggregator"
	"github.com/essworks/binit/internal/codec"
)

type fakeSink struct {
	published map[string][]byte
}

func newFakeSink() *fakeSink {
	return &fakeSink{published: make(map[string][]byte)}
}

func (s *fakeSink) Publish(topic string, frame []byte) error {
	s.published[topic] = frame
	return nil
}

func TestHistogrammerRoutesAndPublishes(t *testing.T) {
	sink := newFakeSink()
	h := New("test-job", sink)

	agg, err := aggregator.New(aggregator.Descriptor{
		Kind:        aggregator.Hist1D,
		HasTofRange: true,
		TofRange:    aggregator.FRange{Lo: 0, Hi: 100},
		NumBins:     10,
	}, aggregator.Hooks{})
	require.NoError(t, err)

	h.AddAggregator("tof-hist", "hist.topic", agg)

	accepted, dropped := h.AddData(codec.EventRecord{
		Source:    "det-a",
		PulseTime: 10,
		Tofs:      []int32{5, 15, -1},
		DetIDs:    []int32{0, 0, 0},
	})
	assert.Equal(t, 2, accepted)
	assert.Equal(t, 1, dropped)

	require.NoError(t, h.Publish())
	frame, ok := sink.published["hist.topic"]
	require.True(t, ok)

	decoded, err := codec.DecodeHs00(frame)
	require.NoError(t, err)
	assert.Equal(t, "tof-hist", decoded.Source)
	assert.Equal(t, "test-job", decoded.Info)
	assert.Equal(t, []float64{1, 1, 0, 0, 0, 0, 0, 0, 0, 0}, decoded.Data)

	// DimMetadata.Length is the bin count (shape[0]), not len(bin_boundaries)
	// (spec's hs00 ground truth: length names the dimension's bin count,
	// while bin_boundaries separately carries num_bins+1 edges).
	require.Len(t, decoded.DimMetadata, 1)
	assert.Equal(t, uint32(10), decoded.DimMetadata[0].Length)
	assert.Len(t, decoded.DimMetadata[0].BinBoundaries, 11)
}

func TestHistogrammerClearAll(t *testing.T) {
	sink := newFakeSink()
	h := New("", sink)

	agg, err := aggregator.New(aggregator.Descriptor{
		Kind:        aggregator.Hist1D,
		HasTofRange: true,
		TofRange:    aggregator.FRange{Lo: 0, Hi: 100},
		NumBins:     10,
	}, aggregator.Hooks{})
	require.NoError(t, err)
	h.AddAggregator("x", "t", agg)

	h.AddData(codec.EventRecord{PulseTime: 5, Tofs: []int32{5}, DetIDs: []int32{1}})
	assert.Equal(t, int64(5), h.LastPulseTime())

	h.ClearAll()
	var total float64
	for _, v := range agg.Data() {
		total += v
	}
	assert.Equal(t, 0.0, total)
}

func TestHistogrammerRespectsPerAggregatorSourceFilter(t *testing.T) {
	sink := newFakeSink()
	h := New("", sink)

	agg, err := aggregator.New(aggregator.Descriptor{
		Kind:         aggregator.Hist1D,
		HasTofRange:  true,
		TofRange:     aggregator.FRange{Lo: 0, Hi: 100},
		NumBins:      10,
		SourceFilter: "det-a",
	}, aggregator.Hooks{})
	require.NoError(t, err)
	h.AddAggregator("x", "t", agg)

	accepted, dropped := h.AddData(codec.EventRecord{Source: "det-b", Tofs: []int32{5}, DetIDs: []int32{1}})
	assert.Equal(t, 0, accepted)
	assert.Equal(t, 0, dropped)
}
