// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import "fmt"

// EventRecord is a decoded ev42 event frame (spec §3).
//
// Invariant: len(Tofs) == len(DetIDs).
type EventRecord struct {
	Source    string
	MessageID uint64
	PulseTime int64 // nanoseconds
	Tofs      []int32
	DetIDs    []int32
}

// EncodeEv42 produces a length-prefixed ev42 frame with the tag patched at
// offset 4. Tofs and DetIDs must have equal length; callers (EventSource
// producers, cmd/eventgen) are expected to enforce this before calling.
func EncodeEv42(r EventRecord) []byte {
	w := newFrameWriter()
	w.putString(r.Source)
	w.putUint64(r.MessageID)
	w.putInt64(r.PulseTime)
	w.putInt32Slice(r.Tofs)
	w.putInt32Slice(r.DetIDs)
	return w.finish(tagEv42)
}

// DecodeEv42 parses a length-prefixed ev42 frame. Returns ErrSchemaMismatch
// if the tag at offset 4 is not "ev42", ErrMalformedFrame if the buffer is
// truncated.
func DecodeEv42(buf []byte) (EventRecord, error) {
	r, err := newFrameReader(buf, tagEv42)
	if err != nil {
		return EventRecord{}, err
	}

	var rec EventRecord
	if rec.Source, err = r.string(); err != nil {
		return EventRecord{}, err
	}
	if rec.MessageID, err = r.uint64(); err != nil {
		return EventRecord{}, err
	}
	if rec.PulseTime, err = r.int64(); err != nil {
		return EventRecord{}, err
	}
	if rec.Tofs, err = r.int32Slice(); err != nil {
		return EventRecord{}, err
	}
	if rec.DetIDs, err = r.int32Slice(); err != nil {
		return EventRecord{}, err
	}
	if len(rec.Tofs) != len(rec.DetIDs) {
		return EventRecord{}, fmt.Errorf("codec: ev42 tofs/det_ids length mismatch (%d != %d)", len(rec.Tofs), len(rec.DetIDs))
	}
	return rec, nil
}
