// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"

	"github.com/essworks/binit/internal/binit"
)

// arrayTypeDouble is the only array type tag this implementation accepts
// for dim_metadata.bin_boundaries and data (spec §4.1). Other values exist
// on the wire convention this schema is drawn from (ArrayFloat, ArrayLong,
// ...) but are out of scope here.
const arrayTypeDouble byte = 1

// DimMetadata describes one axis of a histogram frame: its bin count
// (Length) and the num_bins+1 edges bounding those bins (BinBoundaries).
type DimMetadata struct {
	Length        uint32
	BinBoundaries []float64
}

// HistogramFrame is a decoded hs00 histogram frame (spec §3, §4.1).
//
// Rank is len(DimMetadata) (1 or 2). Data is row-major and has length
// equal to the product of Shape.
type HistogramFrame struct {
	Source      string
	Info        string
	Shape       []uint32
	DimMetadata []DimMetadata
	Data        []float64
}

// EncodeHs00 produces a length-prefixed hs00 frame with the tag patched at
// offset 4.
func EncodeHs00(h HistogramFrame) []byte {
	w := newFrameWriter()
	w.putString(h.Source)
	w.putString(h.Info)
	w.putUint32Slice(h.Shape)

	w.putUint32(uint32(len(h.DimMetadata)))
	for _, dm := range h.DimMetadata {
		w.putUint32(dm.Length)
		w.putFloat64Slice(dm.BinBoundaries)
		w.putByte(arrayTypeDouble)
	}

	w.putFloat64Slice(h.Data)
	w.putByte(arrayTypeDouble)

	return w.finish(tagHs00)
}

// DecodeHs00 parses a length-prefixed hs00 frame. Returns ErrSchemaMismatch
// if the tag at offset 4 is not "hs00", ErrMalformedFrame if the buffer is
// truncated, ErrUnsupportedArrayType if any type tag is not ArrayDouble.
func DecodeHs00(buf []byte) (HistogramFrame, error) {
	r, err := newFrameReader(buf, tagHs00)
	if err != nil {
		return HistogramFrame{}, err
	}

	var h HistogramFrame
	if h.Source, err = r.string(); err != nil {
		return HistogramFrame{}, err
	}
	if h.Info, err = r.string(); err != nil {
		return HistogramFrame{}, err
	}
	if h.Shape, err = r.uint32Slice(); err != nil {
		return HistogramFrame{}, err
	}

	rank, err := r.uint32()
	if err != nil {
		return HistogramFrame{}, err
	}
	h.DimMetadata = make([]DimMetadata, rank)
	for i := range h.DimMetadata {
		length, err := r.uint32()
		if err != nil {
			return HistogramFrame{}, err
		}
		boundaries, err := r.float64Slice()
		if err != nil {
			return HistogramFrame{}, err
		}
		tag, err := r.byte()
		if err != nil {
			return HistogramFrame{}, err
		}
		if tag != arrayTypeDouble {
			return HistogramFrame{}, fmt.Errorf("%w: dim %d has type tag %d", binit.ErrUnsupportedArrayType, i, tag)
		}
		h.DimMetadata[i] = DimMetadata{Length: length, BinBoundaries: boundaries}
	}

	if h.Data, err = r.float64Slice(); err != nil {
		return HistogramFrame{}, err
	}
	dataTag, err := r.byte()
	if err != nil {
		return HistogramFrame{}, err
	}
	if dataTag != arrayTypeDouble {
		return HistogramFrame{}, fmt.Errorf("%w: data has type tag %d", binit.ErrUnsupportedArrayType, dataTag)
	}

	return h, nil
}
