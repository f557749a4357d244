// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coordinator

import (
	"fmt"

	"github.com/essworks/binit/internal/aggregator"
	"github.com/essworks/binit/internal/eventsource"
	"github.com/essworks/binit/internal/histogrammer"
	"github.com/essworks/binit/internal/histsink"
	"github.com/essworks/binit/internal/worker"
	pkgnats "github.com/essworks/binit/pkg/nats"
)

// NewNatsWorkerFactory returns the production WorkerFactory: it builds one
// Aggregator per histogram descriptor, opens a JetStream-backed
// EventSource over the job's event topics, and wires both into a
// worker.Worker publishing through client.
func NewNatsWorkerFactory(client *pkgnats.Client) WorkerFactory {
	return func(spec JobSpec) (*worker.Worker, error) {
		env := spec.Env

		hist := histogrammer.New(env.InfoString, histsink.New(client))
		for _, hc := range env.Histograms {
			agg, err := aggregator.New(hc.Descriptor(), aggregator.Hooks{})
			if err != nil {
				return nil, fmt.Errorf("job %s: aggregator %q: %w", spec.JobID, hc.Name, err)
			}
			hist.AddAggregator(hc.Name, hc.Topic, agg)
		}

		js, err := client.JetStream()
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", spec.JobID, err)
		}

		mode := eventsource.LiveTail
		if env.StartNS > 0 {
			mode = eventsource.Historical
		}
		src, err := eventsource.OpenMulti(js, env.EventTopics, spec.JobID, mode, env.StartNS)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", spec.JobID, err)
		}

		return worker.New(worker.Config{
			JobID:   spec.JobID,
			StartNS: env.StartNS,
			StopNS:  env.StopNS,
		}, src, hist), nil
	}
}
