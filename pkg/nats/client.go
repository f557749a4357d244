// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package nats wraps the nats.go library for the bus this service runs on.
//
// Two transports are exposed on the same connection:
//
//   - plain core pub/sub, used for the config/status/control topics and for
//     publishing histogram frames, where at-most-once delivery and no replay
//     is fine
//   - a JetStream context, used for the event topics, where EventSource
//     needs to assign a starting offset (by sequence number or by
//     wall-clock time)
//
// # Usage
//
//	nats.Init(rawConfig)
//	client, err := nats.NewClient(nil)
//	client.SubscribeQueue("binit.config", "binit-coordinators", func(subject string, data []byte) { ... })
//	client.Publish("binit.status", []byte("..."))
//
// # Thread Safety
//
// All Client methods are safe for concurrent use.
package nats

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/essworks/binit/pkg/log"
)

// MessageHandler is a callback function for processing received messages.
type MessageHandler func(subject string, data []byte)

// Client wraps a NATS connection with subscription management and a
// lazily-created JetStream context.
type Client struct {
	conn          *nats.Conn
	subscriptions []*nats.Subscription

	mu sync.Mutex
	js nats.JetStreamContext
}

// NewClient creates a new NATS client. If cfg is nil, uses the global Keys config.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Keys
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("nats: address is required")
	}

	var opts []nats.Option

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}

	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("nats: disconnected: %v", err)
		}
	}))

	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("nats: reconnected to %s", nc.ConnectedUrl())
	}))

	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("nats: async error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect to %s failed: %w", cfg.Address, err)
	}

	log.Infof("nats: connected to %s", cfg.Address)

	return &Client{
		conn:          nc,
		subscriptions: make([]*nats.Subscription, 0),
	}, nil
}

// SubscribeQueue registers a handler with a queue group for load-balanced
// message processing. The Coordinator uses this for its control subject so
// that at most one coordinator instance acts on any given control envelope.
func (c *Client) SubscribeQueue(subject, queue string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats: queue subscribe to '%s' (queue: %s) failed: %w", subject, queue, err)
	}

	c.subscriptions = append(c.subscriptions, sub)
	log.Infof("nats: queue subscribed to '%s' (queue: %s)", subject, queue)
	return nil
}

// Publish sends data to the specified subject.
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats: publish to '%s' failed: %w", subject, err)
	}
	return nil
}

// JetStream returns the connection's JetStream context, creating it on
// first use.
func (c *Client) JetStream() (nats.JetStreamContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.js != nil {
		return c.js, nil
	}

	js, err := c.conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("nats: JetStream context failed: %w", err)
	}
	c.js = js
	return js, nil
}

// Close unsubscribes all subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("nats: unsubscribe failed: %v", err)
		}
	}
	c.subscriptions = nil

	if c.conn != nil {
		c.conn.Close()
		log.Info("nats: connection closed")
	}
}
