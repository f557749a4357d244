// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregator

import (
	"github.com/essworks/binit/pkg/log"

	"github.com/essworks/binit/internal/binit"
)

// pulsePhaseSlots is the number of pulse-phase slots used by the
// single-event pulse-phase aggregator; its boundary table holds
// pulsePhaseSlots+1 entries (spec §4.3, §9 second Open Question:
// "adopt the deterministic formula ... rather than reproducing [numpy's]
// data-dependent initialization").
const pulsePhaseSlots = 14

// pulsePhaseBoundaries returns the 15-entry table of boundaries
// floor(i/14 * 1e9) for i in [0, 14], bounding 14 slots.
func pulsePhaseBoundaries() [pulsePhaseSlots + 1]int64 {
	var b [pulsePhaseSlots + 1]int64
	for i := 0; i <= pulsePhaseSlots; i++ {
		b[i] = int64(float64(i) / float64(pulsePhaseSlots) * 1e9)
	}
	return b
}

// sepHist1D bins pulse-phase-corrected tof values into a 1-D histogram
// (spec §4.3, "Single-event pulse-phase 1-D").
type sepHist1D struct {
	sourceFilter  string
	lo, hi        float64
	numBins       int
	boundaries    [pulsePhaseSlots + 1]int64
	hooks         Hooks
	counts        []float64
	xEdges        []float64
	lastPulseTime int64
}

func newSEPHist1D(d Descriptor, hooks Hooks) (*sepHist1D, error) {
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

	if cfgErr := (&binit.ConfigurationError{Kind: string(SEPHist1D), Missing: missing, Invalid: invalid}); !cfgErr.IsZero() {
		return nil, cfgErr
	}

	return &sepHist1D{
		sourceFilter: d.SourceFilter,
		lo:           d.TofRange.Lo,
		hi:           d.TofRange.Hi,
		numBins:      d.NumBins,
		boundaries:   pulsePhaseBoundaries(),
		hooks:        hooks,
		counts:       make([]float64, d.NumBins),
		xEdges:       edges1D(d.TofRange.Lo, d.TofRange.Hi, d.NumBins),
	}, nil
}

// phaseSlot returns the largest k such that boundaries[k] <= phase,
// digitizing phase into the 14-slot pulse-time table.
func (h *sepHist1D) phaseSlot(phase int64) int {
	for k := pulsePhaseSlots - 1; k >= 0; k-- {
		if h.boundaries[k] <= phase {
			return k
		}
	}
	return 0
}

// AddData histograms exactly one corrected_time value per message,
// regardless of how many entries tofs/detIDs carry: grounded on
// original_source/histograms/single_event_histogrammer1d.py's add_data,
// which ignores tofs entirely and treats det_ids as "an array of one
// value" (the pixel hit used only for ROI masking).
func (h *sepHist1D) AddData(pulseTime int64, tofs, detIDs []int32, source string) (accepted, dropped int) {
	if !sourceMatches(h.sourceFilter, source) {
		return 0, 0
	}

	if h.hooks.Preprocess != nil {
		pt, t, d, err := h.hooks.Preprocess(pulseTime, tofs, detIDs)
		if err != nil {
			log.Warnf("sephist1d: preprocessor error, passing event through unmodified: %v", err)
		} else {
			pulseTime, tofs, detIDs = pt, t, d
		}
	}

	var tof, detID int32
	if len(tofs) > 0 {
		tof = tofs[0]
	}
	if len(detIDs) > 0 {
		detID = detIDs[0]
	}

	if h.masked(pulseTime, tof, detID) {
		return 0, 1
	}

	phase := pulseTime % 1_000_000_000
	slot := h.phaseSlot(phase)
	correctedTime := float64(phase - h.boundaries[slot])

	idx, ok := binIndex1D(correctedTime, h.lo, h.hi, h.numBins)
	if !ok {
		return 0, 1
	}
	h.counts[idx]++

	if pulseTime > h.lastPulseTime {
		h.lastPulseTime = pulseTime
	}
	return 1, 0
}

// masked evaluates the optional ROI hook with error isolation: a failing
// hook is logged and the event treated as unmasked (spec §4.3, §9).
func (h *sepHist1D) masked(pulseTime int64, tof, detID int32) bool {
	if h.hooks.ROI == nil {
		return false
	}
	mask, err := h.hooks.ROI(pulseTime, tof, detID)
	if err != nil {
		log.Warnf("sephist1d: roi hook error, treating event as unmasked: %v", err)
		return false
	}
	return len(mask) > 0 && mask[0]
}

func (h *sepHist1D) ClearData() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.lastPulseTime = 0
}

func (h *sepHist1D) Data() []float64      { return h.counts }
func (h *sepHist1D) Shape() []int         { return []int{h.numBins} }
func (h *sepHist1D) XEdges() []float64    { return h.xEdges }
func (h *sepHist1D) YEdges() []float64    { return nil }
func (h *sepHist1D) LastPulseTime() int64 { return h.lastPulseTime }
