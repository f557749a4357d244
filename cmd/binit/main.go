// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command binit runs the histogramming coordinator process: it loads its
// static configuration, connects to the message bus, and supervises
// Workers in response to control envelopes until it receives "quit" or a
// termination signal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/essworks/binit/internal/config"
	"github.com/essworks/binit/internal/coordinator"
	"github.com/essworks/binit/pkg/log"
	"github.com/essworks/binit/pkg/nats"
	"github.com/essworks/binit/pkg/runtimeEnv"
)

const coordinatorSchema = `{
	"type": "object",
	"properties": {
		"config-topic": {"type": "string"},
		"status-topic": {"type": "string"}
	},
	"required": ["config-topic", "status-topic"]
}`

const debugSchema = `{
	"type": "object",
	"properties": {
		"gops": {"type": "boolean"},
		"dump-to-file": {"type": "string"}
	}
}`

// rawProgramConfig keeps each top-level config section as raw JSON so it
// can be validated against its own schema before being decoded, matching
// the teacher's per-section config.Validate usage (SPEC_FULL §3.2).
type rawProgramConfig struct {
	Nats        json.RawMessage `json:"nats"`
	Coordinator json.RawMessage `json:"coordinator"`
	Debug       json.RawMessage `json:"debug"`
	User        string          `json:"user"`
	Group       string          `json:"group"`
}

type coordinatorConfig struct {
	ConfigTopic string `json:"config-topic"`
	StatusTopic string `json:"status-topic"`
}

type debugConfig struct {
	Gops       bool   `json:"gops"`
	DumpToFile string `json:"dump-to-file"`
}

func main() {
	var flagConfigFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		log.Fatalf("binit: reading config file: %s", err.Error())
	}

	var rc rawProgramConfig
	if err := json.Unmarshal(raw, &rc); err != nil {
		log.Fatalf("binit: malformed config file: %s", err.Error())
	}

	config.Validate(nats.ConfigSchema, rc.Nats)
	config.Validate(coordinatorSchema, rc.Coordinator)
	if rc.Debug != nil {
		config.Validate(debugSchema, rc.Debug)
	}

	var coordCfg coordinatorConfig
	if err := json.Unmarshal(rc.Coordinator, &coordCfg); err != nil {
		log.Fatalf("binit: malformed coordinator config: %s", err.Error())
	}

	var dbgCfg debugConfig
	if rc.Debug != nil {
		if err := json.Unmarshal(rc.Debug, &dbgCfg); err != nil {
			log.Fatalf("binit: malformed debug config: %s", err.Error())
		}
	}

	// See https://github.com/google/gops (runtime overhead is near zero).
	if flagGops || dbgCfg.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	// Bus broker unreachable at Coordinator start is fatal (spec §4.7).
	if err := nats.Init(rc.Nats); err != nil {
		log.Fatalf("binit: invalid nats config: %s", err.Error())
	}
	client, err := nats.NewClient(nil)
	if err != nil {
		log.Fatalf("binit: connecting to nats: %s", err.Error())
	}
	defer client.Close()

	// The bus connection is established above; drop privileges before
	// entering the long-running supervision loop below.
	if err := runtimeEnv.DropPrivileges(rc.User, rc.Group); err != nil {
		log.Fatalf("binit: error while changing user: %s", err.Error())
	}

	factory := coordinator.NewNatsWorkerFactory(client)
	coord := coordinator.New(client, coordCfg.ConfigTopic, coordCfg.StatusTopic, factory, dbgCfg.DumpToFile)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := coord.Run(ctx); err != nil && err != context.Canceled {
			log.Errorf("binit: coordinator exited: %s", err.Error())
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	runtimeEnv.SystemdNotify(true, "running")
	<-sigs
	runtimeEnv.SystemdNotify(false, "shutting down")
	cancel()

	// Coordinator.stopAll already bounds each Worker to a 10s grace (spec
	// §5); this bounds the whole shutdown in case that budget is exceeded.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		log.Warn("binit: coordinator did not shut down within grace period")
	}
}
