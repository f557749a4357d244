// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package binit collects the error taxonomy shared by the codec, aggregator,
// worker and coordinator packages (spec §7). Callers match these with
// errors.As/errors.Is rather than string comparison.
package binit

import "errors"

var (
	// ErrBusUnavailable is returned when a bus connection, broker resolve,
	// or subscribe fails. Fatal at Coordinator start; per-Worker-fatal
	// when it happens during Worker construction.
	ErrBusUnavailable = errors.New("binit: bus unavailable")

	// ErrSchemaMismatch is returned when a decoded frame's bytes [4:8) do
	// not match the expected schema tag.
	ErrSchemaMismatch = errors.New("binit: schema mismatch")

	// ErrMalformedFrame is returned when a frame is truncated or otherwise
	// cannot be parsed as the expected schema.
	ErrMalformedFrame = errors.New("binit: malformed frame")

	// ErrUnsupportedArrayType is returned when an hs00 dim_metadata or data
	// array carries a type tag other than ArrayDouble.
	ErrUnsupportedArrayType = errors.New("binit: unsupported array type")

	// ErrInternalInvariantViolation marks a condition that should be
	// impossible given validated input. The Coordinator treats it as fatal
	// to the affected Worker and restarts the job with cleared aggregators,
	// up to the restart budget in §7.
	ErrInternalInvariantViolation = errors.New("binit: internal invariant violation")
)

// ConfigurationError reports one or more missing or invalid parameter names
// collected while validating a histogram descriptor or aggregator
// construction (spec §4.3). It is never fatal to the Coordinator: it is
// always surfaced as a status record with state "error".
type ConfigurationError struct {
	Kind    string   // the descriptor's "kind" field, e.g. "hist1d"
	Missing []string // required parameters that were absent
	Invalid []string // parameters present but out of the permitted shape/range
}

func (e *ConfigurationError) Error() string {
	msg := "binit: configuration error for " + e.Kind
	if len(e.Missing) > 0 {
		msg += ": missing " + joinNames(e.Missing)
	}
	if len(e.Invalid) > 0 {
		msg += ": invalid " + joinNames(e.Invalid)
	}
	return msg
}

// IsZero reports whether no missing or invalid parameters were collected,
// meaning construction may proceed.
func (e *ConfigurationError) IsZero() bool {
	return e == nil || (len(e.Missing) == 0 && len(e.Invalid) == 0)
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
