// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coordinator

import "github.com/essworks/binit/internal/aggregator"

// EnvelopeSchema is the JSON Schema the Coordinator validates every control
// envelope against before acting on it (spec §3, §4.6). It only pins down
// the envelope's outer shape; per-kind aggregator parameter validation
// happens in aggregator.New and is reported the same way a schema failure
// is (as a ConfigurationError status record), matching the teacher's
// pattern of a shallow schema plus deeper Go-level validation.
const EnvelopeSchema = `{
	"type": "object",
	"properties": {
		"cmd": {"type": "string", "enum": ["add", "stop", "reset", "quit"]}
	},
	"required": ["cmd"]
}`

// HistogramConfig is one histogram descriptor within an "add" envelope
// (spec §3, "Histogram descriptor").
type HistogramConfig struct {
	Name         string      `json:"name"`
	Kind         string      `json:"kind"`
	Topic        string      `json:"topic"`
	SourceFilter string      `json:"source_filter,omitempty"`
	TofRange     *[2]float64 `json:"tof_range,omitempty"`
	DetRange     *[2]int64   `json:"det_range,omitempty"`
	NumBins      int         `json:"num_bins,omitempty"`
	Width        int         `json:"width,omitempty"`
	Height       int         `json:"height,omitempty"`
}

// Descriptor converts a wire-level HistogramConfig into the aggregator
// package's Descriptor.
func (hc HistogramConfig) Descriptor() aggregator.Descriptor {
	d := aggregator.Descriptor{
		Kind:         aggregator.Kind(hc.Kind),
		ID:           hc.Name,
		Topic:        hc.Topic,
		SourceFilter: hc.SourceFilter,
		NumBins:      hc.NumBins,
		Width:        hc.Width,
		Height:       hc.Height,
	}
	if hc.TofRange != nil {
		d.HasTofRange = true
		d.TofRange = aggregator.FRange{Lo: hc.TofRange[0], Hi: hc.TofRange[1]}
	}
	if hc.DetRange != nil {
		d.HasDetRange = true
		d.DetRange = aggregator.Range{Lo: hc.DetRange[0], Hi: hc.DetRange[1]}
	}
	return d
}

// Envelope is a control envelope received on the configuration topic (spec
// §3, §4.6). Cmd selects which fields apply: "add" uses every field (a JobID
// already in use replaces that job's Worker); "stop"/"reset" need only
// JobID; "quit" needs nothing.
type Envelope struct {
	Cmd         string            `json:"cmd"`
	JobID       string            `json:"id"`
	EventTopics []string          `json:"event_topics,omitempty"`
	StartNS     int64             `json:"start_ns,omitempty"`
	StopNS      *int64            `json:"stop_ns,omitempty"`
	InfoString  string            `json:"info_string,omitempty"`
	Histograms  []HistogramConfig `json:"histograms,omitempty"`
}
