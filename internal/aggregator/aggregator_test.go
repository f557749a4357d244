// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(data []float64) float64 {
	var s float64
	for _, v := range data {
		s += v
	}
	return s
}

func TestHist1DBinningExample(t *testing.T) {
	// spec §8.1
	a, err := New(Descriptor{
		Kind:        Hist1D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 0, Hi: 100},
		NumBins:     10,
	}, Hooks{})
	require.NoError(t, err)

	tofs := []int32{5, 15, 25, 95, 100, -1}
	detIDs := make([]int32, len(tofs))
	accepted, dropped := a.AddData(1, tofs, detIDs, "")

	assert.Equal(t, 4, accepted)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []float64{1, 1, 1, 0, 0, 0, 0, 0, 0, 1}, a.Data())
}

func TestHist1DEdgesSpanRange(t *testing.T) {
	a, err := New(Descriptor{
		Kind:        Hist1D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 0, Hi: 100},
		NumBins:     10,
	}, Hooks{})
	require.NoError(t, err)

	edges := a.XEdges()
	require.Len(t, edges, 11)
	assert.Equal(t, 0.0, edges[0])
	assert.Equal(t, 100.0, edges[10])
	for i := 1; i < len(edges); i++ {
		assert.Greater(t, edges[i], edges[i-1])
	}
}

func TestHist1DClearDataZeroesCounts(t *testing.T) {
	a, err := New(Descriptor{
		Kind:        Hist1D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 0, Hi: 100},
		NumBins:     10,
	}, Hooks{})
	require.NoError(t, err)

	a.AddData(1, []int32{5, 15}, []int32{0, 0}, "")
	require.Equal(t, 2.0, sum(a.Data()))

	a.ClearData()
	assert.Equal(t, 0.0, sum(a.Data()))
}

func TestHist1DSourceFilter(t *testing.T) {
	a, err := New(Descriptor{
		Kind:         Hist1D,
		HasTofRange:  true,
		TofRange:     FRange{Lo: 0, Hi: 100},
		NumBins:      10,
		SourceFilter: "det-a",
	}, Hooks{})
	require.NoError(t, err)

	accepted, dropped := a.AddData(1, []int32{5}, []int32{0}, "det-b")
	assert.Equal(t, 0, accepted)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, 0.0, sum(a.Data()))
}

func TestHist1DConfigurationErrorMissing(t *testing.T) {
	_, err := New(Descriptor{Kind: Hist1D}, Hooks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestHist1DConfigurationErrorInvalidRange(t *testing.T) {
	_, err := New(Descriptor{
		Kind:        Hist1D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 100, Hi: 0},
		NumBins:     10,
	}, Hooks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func TestDetHistMapExample(t *testing.T) {
	// spec §8.2
	a, err := New(Descriptor{
		Kind:        DetHist,
		HasDetRange: true,
		DetRange:    Range{Lo: 1, Hi: 16},
		Width:       4,
		Height:      4,
	}, Hooks{})
	require.NoError(t, err)

	detIDs := []int32{1, 2, 5, 16, 0, 17}
	tofs := make([]int32, len(detIDs))
	accepted, dropped := a.AddData(1, tofs, detIDs, "")

	assert.Equal(t, 4, accepted)
	assert.Equal(t, 2, dropped)

	data := a.Data()
	assertCell := func(x, y int, want float64) {
		assert.Equal(t, want, data[x*4+y], "cell (%d,%d)", x, y)
	}
	assertCell(0, 0, 1)
	assertCell(1, 0, 1)
	assertCell(0, 1, 1)
	assertCell(3, 3, 1)
	assert.Equal(t, 4.0, sum(data))
}

func TestDetHistNeverDropsFullRange(t *testing.T) {
	// spec §8: "dethist with det_range = (1, width×height) never drops an
	// event whose det_id lies in that range, and every such event lands at
	// a unique (x, y)".
	width, height := 3, 3
	a, err := New(Descriptor{
		Kind:        DetHist,
		HasDetRange: true,
		DetRange:    Range{Lo: 1, Hi: int64(width * height)},
		Width:       width,
		Height:      height,
	}, Hooks{})
	require.NoError(t, err)

	detIDs := make([]int32, width*height)
	for i := range detIDs {
		detIDs[i] = int32(i + 1)
	}
	tofs := make([]int32, len(detIDs))

	accepted, dropped := a.AddData(1, tofs, detIDs, "")
	assert.Equal(t, width*height, accepted)
	assert.Equal(t, 0, dropped)

	data := a.Data()
	for _, v := range data {
		assert.Equal(t, 1.0, v)
	}
}

func TestDetHistRequiresSquareMatch(t *testing.T) {
	_, err := New(Descriptor{
		Kind:        DetHist,
		HasDetRange: true,
		DetRange:    Range{Lo: 1, Hi: 10},
		Width:       4,
		Height:      4,
	}, Hooks{})
	require.Error(t, err)
}

func TestSEPHist1DPulsePhaseExample(t *testing.T) {
	// spec §8.3
	a, err := New(Descriptor{
		Kind:        SEPHist1D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 0, Hi: 71_428_571},
		NumBins:     10,
	}, Hooks{})
	require.NoError(t, err)

	accepted, dropped := a.AddData(71_428_571, []int32{0}, []int32{1}, "")
	require.Equal(t, 1, accepted)
	require.Equal(t, 0, dropped)

	data := a.Data()
	assert.Equal(t, 1.0, data[0])
	for i := 1; i < len(data); i++ {
		assert.Equal(t, 0.0, data[i])
	}
}

func TestSEPHist1DCountsOncePerMessageRegardlessOfArrayLength(t *testing.T) {
	a, err := New(Descriptor{
		Kind:        SEPHist1D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 0, Hi: 71_428_571},
		NumBins:     10,
	}, Hooks{})
	require.NoError(t, err)

	// tofs is an ignored parameter per the original single-event
	// histogrammer; a multi-element frame still contributes exactly one
	// count, not len(tofs).
	accepted, dropped := a.AddData(71_428_571, []int32{0, 1, 2, 3}, []int32{1}, "")
	require.Equal(t, 1, accepted)
	require.Equal(t, 0, dropped)

	data := a.Data()
	var total float64
	for _, v := range data {
		total += v
	}
	assert.Equal(t, 1.0, total)
}

func TestSEPHist1DPreprocessorErrorPassesThrough(t *testing.T) {
	called := false
	a, err := New(Descriptor{
		Kind:        SEPHist1D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 0, Hi: 1000},
		NumBins:     10,
	}, Hooks{
		Preprocess: func(pulseTime int64, tofs, detIDs []int32) (int64, []int32, []int32, error) {
			called = true
			return pulseTime, tofs, detIDs, errors.New("boom")
		},
	})
	require.NoError(t, err)

	accepted, _ := a.AddData(0, []int32{0}, []int32{1}, "")
	assert.True(t, called)
	assert.Equal(t, 1, accepted)
}

func TestSEPHist1DROIMaskDrops(t *testing.T) {
	a, err := New(Descriptor{
		Kind:        SEPHist1D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 0, Hi: 1000},
		NumBins:     10,
	}, Hooks{
		ROI: func(pulseTime int64, tof, detID int32) ([]bool, error) {
			return []bool{true}, nil
		},
	})
	require.NoError(t, err)

	accepted, dropped := a.AddData(0, []int32{0}, []int32{1}, "")
	assert.Equal(t, 0, accepted)
	assert.Equal(t, 1, dropped)
}

func TestSEPHist1DROIErrorTreatedAsUnmasked(t *testing.T) {
	a, err := New(Descriptor{
		Kind:        SEPHist1D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 0, Hi: 1000},
		NumBins:     10,
	}, Hooks{
		ROI: func(pulseTime int64, tof, detID int32) ([]bool, error) {
			return nil, errors.New("roi exploded")
		},
	})
	require.NoError(t, err)

	accepted, dropped := a.AddData(0, []int32{0}, []int32{1}, "")
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 0, dropped)
}

func TestHist2DDropsOutsideEitherRange(t *testing.T) {
	a, err := New(Descriptor{
		Kind:        Hist2D,
		HasTofRange: true,
		TofRange:    FRange{Lo: 0, Hi: 10},
		HasDetRange: true,
		DetRange:    Range{Lo: 0, Hi: 10},
		NumBins:     5,
	}, Hooks{})
	require.NoError(t, err)

	// tof in range, det out of range -> dropped
	accepted, dropped := a.AddData(1, []int32{1}, []int32{20}, "")
	assert.Equal(t, 0, accepted)
	assert.Equal(t, 1, dropped)
}
