// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregator

import "github.com/essworks/binit/internal/binit"

// detHist maps detector pixel ids onto a width×height grid (spec §4.3,
// "Detector map"). tof_range is accepted in the descriptor for parameter
// symmetry with the other kinds but ignored for binning (spec §9, Open
// Question: "preserve the parameter ... but document that it is ignored").
type detHist struct {
	sourceFilter  string
	lo, hi        int64
	width, height int
	counts        []float64 // row-major [x, y], length width*height
	xEdges        []float64
	yEdges        []float64
	lastPulseTime int64
}

func newDetHist(d Descriptor) (*detHist, error) {
	var missing, invalid []string

	if !d.HasDetRange {
		missing = append(missing, "det_range")
	} else if d.DetRange.Lo > d.DetRange.Hi {
		invalid = append(invalid, "det_range")
	}

	if d.Width <= 0 {
		if d.Width == 0 {
			missing = append(missing, "width")
		} else {
			invalid = append(invalid, "width")
		}
	}
	if d.Height <= 0 {
		if d.Height == 0 {
			missing = append(missing, "height")
		} else {
			invalid = append(invalid, "height")
		}
	}

	if len(missing) == 0 && len(invalid) == 0 {
		numBins := d.DetRange.Hi - d.DetRange.Lo + 1
		if numBins != int64(d.Width*d.Height) {
			invalid = append(invalid, "det_range")
		}
	}

	if cfgErr := (&binit.ConfigurationError{Kind: string(DetHist), Missing: missing, Invalid: invalid}); !cfgErr.IsZero() {
		return nil, cfgErr
	}

	return &detHist{
		sourceFilter: d.SourceFilter,
		lo:           d.DetRange.Lo,
		hi:           d.DetRange.Hi,
		width:        d.Width,
		height:       d.Height,
		counts:       make([]float64, d.Width*d.Height),
		xEdges:       intEdges(d.Width),
		yEdges:       intEdges(d.Height),
	}, nil
}

// intEdges returns n+1 integer-valued pixel edges [0, 1, ..., n], used for
// the detector map's grid axes.
func intEdges(n int) []float64 {
	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = float64(i)
	}
	return edges
}

func (h *detHist) AddData(pulseTime int64, tofs, detIDs []int32, source string) (accepted, dropped int) {
	if !sourceMatches(h.sourceFilter, source) {
		return 0, 0
	}

	for _, id64 := range detIDs {
		id := int64(id64)
		if id <= 0 || id < h.lo || id > h.hi {
			dropped++
			continue
		}
		x := int((id - 1) % int64(h.width))
		y := int(((id - 1) / int64(h.width)) % int64(h.height))
		h.counts[x*h.height+y]++
		accepted++
	}

	if pulseTime > h.lastPulseTime {
		h.lastPulseTime = pulseTime
	}
	return accepted, dropped
}

func (h *detHist) ClearData() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.lastPulseTime = 0
}

func (h *detHist) Data() []float64      { return h.counts }
func (h *detHist) Shape() []int         { return []int{h.width, h.height} }
func (h *detHist) XEdges() []float64    { return h.xEdges }
func (h *detHist) YEdges() []float64    { return h.yEdges }
func (h *detHist) LastPulseTime() int64 { return h.lastPulseTime }
