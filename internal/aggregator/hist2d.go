// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregator

import "github.com/essworks/binit/internal/binit"

// hist2D bins (tof, det_id) pairs into a row-major 2-D dense histogram
// (spec §4.3, "2-D tof × det"). The x-axis is tof, the y-axis is det_id,
// both binned with the same formula as hist1D.
type hist2D struct {
	sourceFilter  string
	tofLo, tofHi  float64
	detLo, detHi  float64
	numBins       int
	counts        []float64 // row-major [x, y], length numBins*numBins
	xEdges        []float64
	yEdges        []float64
	lastPulseTime int64
}

func newHist2D(d Descriptor) (*hist2D, error) {
	var missing, invalid []string

	if !d.HasTofRange {
		missing = append(missing, "tof_range")
	} else if d.TofRange.Lo >= d.TofRange.Hi {
		invalid = append(invalid, "tof_range")
	}

	if !d.HasDetRange {
		missing = append(missing, "det_range")
	} else if d.DetRange.Lo > d.DetRange.Hi {
		invalid = append(invalid, "det_range")
	}

	if d.NumBins <= 0 {
		if d.NumBins == 0 {
			missing = append(missing, "num_bins")
		} else {
			invalid = append(invalid, "num_bins")
		}
	}

	if cfgErr := (&binit.ConfigurationError{Kind: string(Hist2D), Missing: missing, Invalid: invalid}); !cfgErr.IsZero() {
		return nil, cfgErr
	}

	detLo, detHi := float64(d.DetRange.Lo), float64(d.DetRange.Hi)

	return &hist2D{
		sourceFilter: d.SourceFilter,
		tofLo:        d.TofRange.Lo,
		tofHi:        d.TofRange.Hi,
		detLo:        detLo,
		detHi:        detHi,
		numBins:      d.NumBins,
		counts:       make([]float64, d.NumBins*d.NumBins),
		xEdges:       edges1D(d.TofRange.Lo, d.TofRange.Hi, d.NumBins),
		yEdges:       edges1D(detLo, detHi, d.NumBins),
	}, nil
}

func (h *hist2D) AddData(pulseTime int64, tofs, detIDs []int32, source string) (accepted, dropped int) {
	if !sourceMatches(h.sourceFilter, source) {
		return 0, 0
	}

	n := len(tofs)
	for i := 0; i < n; i++ {
		x, ok := binIndex1D(float64(tofs[i]), h.tofLo, h.tofHi, h.numBins)
		if !ok {
			dropped++
			continue
		}
		y, ok := binIndex1D(float64(detIDs[i]), h.detLo, h.detHi, h.numBins)
		if !ok {
			dropped++
			continue
		}
		h.counts[x*h.numBins+y]++
		accepted++
	}

	if pulseTime > h.lastPulseTime {
		h.lastPulseTime = pulseTime
	}
	return accepted, dropped
}

func (h *hist2D) ClearData() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.lastPulseTime = 0
}

func (h *hist2D) Data() []float64      { return h.counts }
func (h *hist2D) Shape() []int         { return []int{h.numBins, h.numBins} }
func (h *hist2D) XEdges() []float64    { return h.xEdges }
func (h *hist2D) YEdges() []float64    { return h.yEdges }
func (h *hist2D) LastPulseTime() int64 { return h.lastPulseTime }
