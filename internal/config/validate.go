// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/essworks/binit/pkg/log"
)

// Validate compiles schema and checks instance against it, terminating the
// process on failure. Used for the static coordinator config file, where a
// bad config should fail fast at startup rather than run with a half-valid
// configuration.
func Validate(schema string, instance json.RawMessage) {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		log.Fatalf("config: invalid schema: %#v", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		log.Fatal(err)
	}

	if err = sch.Validate(v); err != nil {
		log.Fatalf("config: %#v", err)
	}
}

// ValidateErr is the non-fatal counterpart of Validate, used for control
// envelopes and histogram descriptors received at runtime over the bus,
// where a bad message must become a ConfigurationError status record
// instead of killing the coordinator process.
func ValidateErr(schema string, instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		return fmt.Errorf("config: invalid schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: malformed json: %w", err)
	}

	if err = sch.Validate(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
