// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregator

import "github.com/essworks/binit/internal/binit"

// hist1D bins time-of-flight values into a 1-D dense histogram (spec
// §4.3, "1-D tof").
type hist1D struct {
	sourceFilter  string
	lo, hi        float64
	numBins       int
	counts        []float64
	xEdges        []float64
	lastPulseTime int64
}

func newHist1D(d Descriptor) (*hist1D, error) {
	var missing, invalid []string

	if !d.HasTofRange {
		missing = append(missing, "tof_range")
	} else if d.TofRange.Lo >= d.TofRange.Hi {
		invalid = append(invalid, "tof_range")
	}

	if d.NumBins <= 0 {
		if d.NumBins == 0 {
			missing = append(missing, "num_bins")
		} else {
			invalid = append(invalid, "num_bins")
		}
	}

	if cfgErr := (&binit.ConfigurationError{Kind: string(Hist1D), Missing: missing, Invalid: invalid}); !cfgErr.IsZero() {
		return nil, cfgErr
	}

	return &hist1D{
		sourceFilter: d.SourceFilter,
		lo:           d.TofRange.Lo,
		hi:           d.TofRange.Hi,
		numBins:      d.NumBins,
		counts:       make([]float64, d.NumBins),
		xEdges:       edges1D(d.TofRange.Lo, d.TofRange.Hi, d.NumBins),
	}, nil
}

func (h *hist1D) AddData(pulseTime int64, tofs, detIDs []int32, source string) (accepted, dropped int) {
	if !sourceMatches(h.sourceFilter, source) {
		return 0, 0
	}

	for _, tof := range tofs {
		idx, ok := binIndex1D(float64(tof), h.lo, h.hi, h.numBins)
		if !ok {
			dropped++
			continue
		}
		h.counts[idx]++
		accepted++
	}

	if pulseTime > h.lastPulseTime {
		h.lastPulseTime = pulseTime
	}
	return accepted, dropped
}

func (h *hist1D) ClearData() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.lastPulseTime = 0
}

func (h *hist1D) Data() []float64        { return h.counts }
func (h *hist1D) Shape() []int           { return []int{h.numBins} }
func (h *hist1D) XEdges() []float64      { return h.xEdges }
func (h *hist1D) YEdges() []float64      { return nil }
func (h *hist1D) LastPulseTime() int64   { return h.lastPulseTime }
