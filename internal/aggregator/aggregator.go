// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aggregator implements the four binning kernels named in spec §4.3:
// 1-D time-of-flight, 2-D tof×det-id, 2-D detector map, and single-event
// pulse-phase 1-D. Each is modeled as a tagged variant behind the Aggregator
// interface (spec §9, "avoid inheritance") rather than a class hierarchy;
// New dispatches on Descriptor.Kind and constructs exactly the kind asked
// for, carrying only the parameters that kind needs.
package aggregator

import (
	"github.com/essworks/binit/internal/binit"
)

// Kind enumerates the four supported aggregator kinds (spec §3).
type Kind string

const (
	Hist1D    Kind = "hist1d"
	Hist2D    Kind = "hist2d"
	DetHist   Kind = "dethist"
	SEPHist1D Kind = "sephist1d"
)

// Range is the integer interval used for det_range. The detector map treats
// it as closed ([lo, hi], inclusive both ends) to express a pixel-id range
// (spec §4.3, detector map example); hist2d bins it with the same half-open
// [lo, hi) rule as tof_range, so det_id == hi is dropped there.
type Range struct {
	Lo, Hi int64
}

// FRange is a half-open-by-construction interval used for tof_range; the
// binning formula in §4.3 treats it as [lo, hi) except where the bin index
// formula happens to land exactly on hi, which this implementation treats
// as out of range to match the worked example in spec §8.1.
type FRange struct {
	Lo, Hi float64
}

// Descriptor is the histogram descriptor shared across aggregator kinds
// (spec §3). Only the fields relevant to Kind need be set; New validates
// exactly the subset §4.3 requires for that kind.
type Descriptor struct {
	Kind         Kind
	ID           string
	Topic        string
	SourceFilter string // empty means "no filter"

	TofRange    FRange
	HasTofRange bool

	DetRange    Range
	HasDetRange bool

	NumBins int // 0 means "not set"
	Width   int
	Height  int
}

// Hooks are the optional per-event capabilities used by SEPHist1D (spec
// §4.3, §9). Both are invoked with error isolation: a Preprocess error is
// logged and the event passed through unmodified; a ROI error is logged and
// the event treated as unmasked.
type Hooks struct {
	Preprocess func(pulseTime int64, tofs, detIDs []int32) (int64, []int32, []int32, error)
	ROI        func(pulseTime int64, tof, detID int32) ([]bool, error)
}

// Aggregator is the common capability set every binning kernel exposes
// (spec §4.3, §9.2).
type Aggregator interface {
	// AddData bins one event-frame's worth of (tof, det_id) pairs sharing
	// pulseTime. Events whose source does not match a configured
	// source_filter are silently dropped without counting against either
	// accepted or dropped. Returns the number of pairs accepted into
	// counts and the number dropped (out of range or masked).
	AddData(pulseTime int64, tofs, detIDs []int32, source string) (accepted, dropped int)

	// ClearData zeroes counts without discarding edges.
	ClearData()

	// Data returns the current row-major flattened counts. Callers must
	// not mutate the returned slice.
	Data() []float64

	// Shape returns the dense array shape, rank 1 or 2.
	Shape() []int

	// XEdges returns the monotonically increasing edge array for axis 0.
	XEdges() []float64

	// YEdges returns the edge array for axis 1, or nil for rank-1
	// aggregators.
	YEdges() []float64

	// LastPulseTime returns the largest pulse_time recorded since
	// construction or the last ClearData, or 0 if none has been recorded.
	// Frames rejected by the source filter are never recorded; hist1d,
	// hist2d and dethist record a frame's pulse_time even when all of its
	// events are dropped, while sephist1d records it only for an accepted
	// event.
	LastPulseTime() int64
}

// New validates d and constructs the aggregator kind it names. On
// validation failure it returns a *binit.ConfigurationError listing every
// missing/invalid parameter collected for that kind (spec §4.3).
func New(d Descriptor, hooks Hooks) (Aggregator, error) {
	switch d.Kind {
	case Hist1D:
		return newHist1D(d)
	case Hist2D:
		return newHist2D(d)
	case DetHist:
		return newDetHist(d)
	case SEPHist1D:
		return newSEPHist1D(d, hooks)
	default:
		return nil, &binit.ConfigurationError{Kind: string(d.Kind), Invalid: []string{"kind"}}
	}
}

// sourceMatches reports whether an event's source passes the aggregator's
// configured source_filter (spec §4.3: absent filter means accept
// everything).
func sourceMatches(filter, source string) bool {
	return filter == "" || filter == source
}

// edges1D returns num_bins+1 equally spaced edges spanning [lo, hi] (spec
// §8: "x_edges has length num_bins+1 ... and spans exactly tof_range").
func edges1D(lo, hi float64, numBins int) []float64 {
	edges := make([]float64, numBins+1)
	step := (hi - lo) / float64(numBins)
	for i := range edges {
		edges[i] = lo + float64(i)*step
	}
	edges[numBins] = hi
	return edges
}

// binIndex1D implements the §4.3 formula bin = floor((v-lo)/(hi-lo)*n),
// dropping v outside [lo, hi).
func binIndex1D(v, lo, hi float64, numBins int) (int, bool) {
	if v < lo || v >= hi {
		return 0, false
	}
	idx := int((v - lo) / (hi - lo) * float64(numBins))
	if idx >= numBins {
		idx = numBins - 1
	}
	return idx, true
}
