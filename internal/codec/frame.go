// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec implements the two wire schemas this service speaks:
// ev42 (event frames) and hs00 (histogram frames). Both are
// length-prefixed binary messages with a 4-byte ASCII schema tag at byte
// offset 4, following the same patch-after-build convention as the
// teacher's binary checkpoint format: the encoder writes the body first and
// patches the tag into the reserved slot before returning, rather than
// building with a real flatbuffers library (none is available in this
// module's dependency set).
//
// Layout shared by both schemas:
//
//	[0:4)   uint32 LE   length of the frame, not counting these 4 bytes
//	[4:8)   [4]byte     ASCII schema tag ("ev42" or "hs00")
//	[8:...) body, schema-specific
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/essworks/binit/internal/binit"
)

var byteOrder = binary.LittleEndian

const (
	tagEv42 = "ev42"
	tagHs00 = "hs00"
)

// Tag returns the 4-byte schema tag declared by a frame, i.e. bytes [4:8).
// Callers use this to dispatch to the right decoder without parsing the
// body. Returns ErrMalformedFrame if buf is too short to hold a tag.
func Tag(buf []byte) (string, error) {
	if len(buf) < 8 {
		return "", fmt.Errorf("%w: frame too short for tag (%d bytes)", binit.ErrMalformedFrame, len(buf))
	}
	return string(buf[4:8]), nil
}

// frameWriter accumulates a frame body and finalizes it with the
// length-prefix and tag patch.
type frameWriter struct {
	buf []byte
}

func newFrameWriter() *frameWriter {
	// Reserve the 8-byte header up front; patched in finish().
	return &frameWriter{buf: make([]byte, 8)}
}

func (w *frameWriter) putUint32(v uint32) {
	var b [4]byte
	byteOrder.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *frameWriter) putUint64(v uint64) {
	var b [8]byte
	byteOrder.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *frameWriter) putInt64(v int64) {
	w.putUint64(uint64(v))
}

func (w *frameWriter) putInt32(v int32) {
	w.putUint32(uint32(v))
}

func (w *frameWriter) putByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *frameWriter) putFloat64(v float64) {
	w.putUint64(math.Float64bits(v))
}

func (w *frameWriter) putString(s string) {
	w.putUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *frameWriter) putInt32Slice(vs []int32) {
	w.putUint32(uint32(len(vs)))
	for _, v := range vs {
		w.putInt32(v)
	}
}

func (w *frameWriter) putUint32Slice(vs []uint32) {
	w.putUint32(uint32(len(vs)))
	for _, v := range vs {
		w.putUint32(v)
	}
}

func (w *frameWriter) putFloat64Slice(vs []float64) {
	w.putUint32(uint32(len(vs)))
	for _, v := range vs {
		w.putFloat64(v)
	}
}

// finish patches the length prefix and schema tag into the reserved header
// and returns the completed frame.
func (w *frameWriter) finish(tag string) []byte {
	byteOrder.PutUint32(w.buf[0:4], uint32(len(w.buf)-4))
	copy(w.buf[4:8], tag)
	return w.buf
}

// frameReader walks a frame body sequentially, tracking position so that a
// truncated buffer surfaces as ErrMalformedFrame instead of a panic.
type frameReader struct {
	buf []byte
	pos int
}

func newFrameReader(buf []byte, tag string) (*frameReader, error) {
	got, err := Tag(buf)
	if err != nil {
		return nil, err
	}
	if got != tag {
		return nil, fmt.Errorf("%w: got %q, want %q", binit.ErrSchemaMismatch, got, tag)
	}
	return &frameReader{buf: buf, pos: 8}, nil
}

func (r *frameReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", binit.ErrMalformedFrame, n, r.pos, len(r.buf))
	}
	return nil
}

func (r *frameReader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := byteOrder.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *frameReader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := byteOrder.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *frameReader) int64() (int64, error) {
	v, err := r.uint64()
	return int64(v), err
}

func (r *frameReader) int32() (int32, error) {
	v, err := r.uint32()
	return int32(v), err
}

func (r *frameReader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *frameReader) float64() (float64, error) {
	v, err := r.uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *frameReader) string() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *frameReader) int32Slice() ([]int32, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n) * 4); err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		out[i], err = r.int32()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *frameReader) uint32Slice() ([]uint32, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n) * 4); err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i], err = r.uint32()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *frameReader) float64Slice() ([]float64, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n) * 8); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i], err = r.float64()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
