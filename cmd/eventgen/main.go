// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command eventgen publishes synthetic ev42 event frames for load testing,
// grounded on original_source/bin/generate_event_data.py: it samples
// time-of-flight and detector-id pairs from a normal distribution and
// publishes one message per second.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/essworks/binit/internal/codec"
	"github.com/essworks/binit/pkg/log"
	"github.com/essworks/binit/pkg/nats"
)

const (
	lowTof  = 0
	highTof = 100_000_000
	lowDet  = 1
	highDet = 512
)

// brokerList accumulates repeated -b/--brokers flag occurrences.
type brokerList []string

func (b *brokerList) String() string { return strings.Join(*b, ",") }

func (b *brokerList) Set(v string) error {
	*b = append(*b, v)
	return nil
}

func main() {
	var brokers brokerList
	var topic string
	var numMessages, numEvents int

	flag.Var(&brokers, "b", "the broker address (repeatable)")
	flag.Var(&brokers, "brokers", "the broker address (repeatable)")
	flag.StringVar(&topic, "t", "", "the topic to write to")
	flag.StringVar(&topic, "topic", "", "the topic to write to")
	flag.IntVar(&numMessages, "n", 0, "the number of messages to write")
	flag.IntVar(&numMessages, "num_messages", 0, "the number of messages to write")
	flag.IntVar(&numEvents, "ne", 1000, "the number of events per message")
	flag.IntVar(&numEvents, "num_events", 1000, "the number of events per message")
	flag.Parse()

	if len(brokers) == 0 || topic == "" || numMessages <= 0 {
		log.Fatal("eventgen: -b/--brokers, -t/--topic and -n/--num_messages are required")
	}

	client, err := nats.NewClient(&nats.Config{Address: strings.Join(brokers, ",")})
	if err != nil {
		log.Fatalf("eventgen: connecting to %s: %s", brokers.String(), err.Error())
	}
	defer client.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var startTime, endTime int64
	var messageID uint64 = 1
	for count := 0; count < numMessages; count++ {
		timestamp := time.Now().UnixNano()
		tofs, dets := generateEvents(rng, numEvents)

		frame := codec.EncodeEv42(codec.EventRecord{
			Source:    "binit-eventgen",
			MessageID: messageID,
			PulseTime: timestamp,
			Tofs:      tofs,
			DetIDs:    dets,
		})
		if err := client.Publish(topic, frame); err != nil {
			log.Errorf("eventgen: publish failed: %s", err.Error())
		}

		messageID++
		if startTime == 0 {
			startTime = timestamp
		}
		endTime = timestamp

		time.Sleep(1 * time.Second)
	}

	fmt.Printf("Num messages = %d, total events = %d\n", numMessages, numMessages*numEvents)
	fmt.Printf("Start timestamp = %d, end timestamp = %d\n", startTime, endTime)
}

// generateEvents samples numPoints (tof, det_id) pairs from a normal
// distribution centered in the middle of each axis's valid range, matching
// the original generator's constants.
func generateEvents(rng *rand.Rand, numPoints int) (tofs, dets []int32) {
	tofCentre := float64((highTof - lowTof) / 2)
	tofScale := tofCentre / 5
	detCentre := float64((highDet - lowDet) / 2)
	detScale := detCentre / 5

	tofs = make([]int32, numPoints)
	dets = make([]int32, numPoints)
	for i := 0; i < numPoints; i++ {
		tofs[i] = int32(rng.NormFloat64()*tofScale + tofCentre)
		dets[i] = int32(rng.NormFloat64()*detScale + detCentre)
	}
	return tofs, dets
}
