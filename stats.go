// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0
package h5scan

import "time"

func init() {
	NopStatsClient = &nopStatsClient{}
}

// StatsClient represents a client to a stats server.
type StatsClient interface {
	// Returns a sorted list of tags on the client.
	Tags() []string

	// Returns a new client with additional tags appended.
	WithTags(tags ...string) StatsClient

	// Tracks the number of times something occurs per second.
	Count(name string, value int64, rate float64)

	// Sets the value of a metric.
	Gauge(name string, value float64, rate float64)

	// Tracks statistical distribution of a metric.
	Histogram(name string, value float64, rate float64)

	// Tracks timing information for a metric.
	Timing(name string, value time.Duration, rate float64)

	// Closes the client
	Close() error
}

// NopStatsClient represents a client that doesn't do anything.
var NopStatsClient StatsClient

type nopStatsClient struct{}

func (c *nopStatsClient) Tags() []string                                        { return nil }
func (c *nopStatsClient) WithTags(tags ...string) StatsClient                   { return c }
func (c *nopStatsClient) Count(name string, value int64, rate float64)          {}
func (c *nopStatsClient) Gauge(name string, value float64, rate float64)        {}
func (c *nopStatsClient) Histogram(name string, value float64, rate float64)    {}
func (c *nopStatsClient) Timing(name string, value time.Duration, rate float64) {}
func (c *nopStatsClient) Close() error                                          { return nil }
