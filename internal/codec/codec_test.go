// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/essworks/binit/internal/binit"
)

func TestEv42RoundTrip(t *testing.T) {
	rec := EventRecord{
		Source:    "detector-1",
		MessageID: 42,
		PulseTime: 1_700_000_000_000,
		Tofs:      []int32{5, 15, 25, 95},
		DetIDs:    []int32{1, 2, 3, 4},
	}

	buf := EncodeEv42(rec)
	got, err := DecodeEv42(buf)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestEv42SchemaTagAtOffset4(t *testing.T) {
	buf := EncodeEv42(EventRecord{Source: "x"})
	require.GreaterOrEqual(t, len(buf), 8)
	assert.Equal(t, "ev42", string(buf[4:8]))
}

func TestEv42SchemaMismatch(t *testing.T) {
	buf := EncodeEv42(EventRecord{Source: "x"})
	copy(buf[4:8], "xyz0")

	_, err := DecodeEv42(buf)
	assert.ErrorIs(t, err, binit.ErrSchemaMismatch)
}

func TestEv42MalformedFrame(t *testing.T) {
	buf := EncodeEv42(EventRecord{Source: "hello", Tofs: []int32{1, 2}, DetIDs: []int32{1, 2}})
	truncated := buf[:len(buf)-4]

	_, err := DecodeEv42(truncated)
	assert.ErrorIs(t, err, binit.ErrMalformedFrame)
}

func TestEv42EmptyArraysRoundTrip(t *testing.T) {
	rec := EventRecord{Source: "", MessageID: 0, PulseTime: 0}
	buf := EncodeEv42(rec)
	got, err := DecodeEv42(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, len(got.Tofs))
	assert.Equal(t, 0, len(got.DetIDs))
}

func TestHs00RoundTrip1D(t *testing.T) {
	h := HistogramFrame{
		Source: "hist1d-job",
		Info:   "tof histogram",
		Shape:  []uint32{10},
		DimMetadata: []DimMetadata{
			{Length: 11, BinBoundaries: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}},
		},
		Data: []float64{1, 1, 1, 0, 0, 0, 0, 0, 0, 1},
	}

	buf := EncodeHs00(h)
	got, err := DecodeHs00(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHs00RoundTrip2D(t *testing.T) {
	h := HistogramFrame{
		Source: "dethist-job",
		Info:   "",
		Shape:  []uint32{4, 4},
		DimMetadata: []DimMetadata{
			{Length: 5, BinBoundaries: []float64{0, 1, 2, 3, 4}},
			{Length: 5, BinBoundaries: []float64{0, 1, 2, 3, 4}},
		},
		Data: make([]float64, 16),
	}
	h.Data[0] = 1
	h.Data[15] = 1

	buf := EncodeHs00(h)
	got, err := DecodeHs00(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHs00SchemaTagAtOffset4(t *testing.T) {
	buf := EncodeHs00(HistogramFrame{Shape: []uint32{1}, DimMetadata: []DimMetadata{{}}, Data: []float64{0}})
	require.GreaterOrEqual(t, len(buf), 8)
	assert.Equal(t, "hs00", string(buf[4:8]))
}

func TestHs00UnsupportedArrayType(t *testing.T) {
	buf := EncodeHs00(HistogramFrame{
		Shape:       []uint32{1},
		DimMetadata: []DimMetadata{{Length: 2, BinBoundaries: []float64{0, 1}}},
		Data:        []float64{0},
	})

	// Corrupt the data_type tag (last byte of the frame).
	buf[len(buf)-1] = 0xFF

	_, err := DecodeHs00(buf)
	assert.ErrorIs(t, err, binit.ErrUnsupportedArrayType)
}
