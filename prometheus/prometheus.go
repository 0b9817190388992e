// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0

// Package prometheus provides a StatsClient backed by prometheus
// collectors registered on the default registerer.
package prometheus

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/h5scan/h5scan"
)

const namespace = "h5scan"

// Ensure client implements interface.
var _ h5scan.StatsClient = (*prometheusClient)(nil)

type prometheusClient struct {
	tags []string
	set  *metricSet
}

// metricSet is shared by a client and everything derived from it with
// WithTags, so a metric name maps to exactly one registered collector.
type metricSet struct {
	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// NewPrometheusClient returns a client that registers each metric name on
// the default registerer on first use.
func NewPrometheusClient() h5scan.StatsClient {
	return &prometheusClient{
		set: &metricSet{
			counters:   make(map[string]prometheus.Counter),
			gauges:     make(map[string]prometheus.Gauge),
			histograms: make(map[string]prometheus.Histogram),
		},
	}
}

func (c *prometheusClient) Tags() []string { return c.tags }

func (c *prometheusClient) WithTags(tags ...string) h5scan.StatsClient {
	return &prometheusClient{
		tags: unionStringSlice(c.tags, tags),
		set:  c.set,
	}
}

func (c *prometheusClient) Count(name string, value int64, rate float64) {
	c.counter(name).Add(float64(value))
}

func (c *prometheusClient) Gauge(name string, value float64, rate float64) {
	c.gauge(name).Set(value)
}

func (c *prometheusClient) Histogram(name string, value float64, rate float64) {
	c.histogram(name).Observe(value)
}

func (c *prometheusClient) Timing(name string, value time.Duration, rate float64) {
	c.histogram(name).Observe(value.Seconds())
}

func (c *prometheusClient) Close() error { return nil }

func (c *prometheusClient) counter(name string) prometheus.Counter {
	c.set.mu.Lock()
	defer c.set.mu.Unlock()
	m, ok := c.set.counters[name]
	if !ok {
		m = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      sanitize(name),
			Help:      name,
		})
		prometheus.MustRegister(m)
		c.set.counters[name] = m
	}
	return m
}

func (c *prometheusClient) gauge(name string) prometheus.Gauge {
	c.set.mu.Lock()
	defer c.set.mu.Unlock()
	m, ok := c.set.gauges[name]
	if !ok {
		m = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      sanitize(name),
			Help:      name,
		})
		prometheus.MustRegister(m)
		c.set.gauges[name] = m
	}
	return m
}

func (c *prometheusClient) histogram(name string) prometheus.Histogram {
	c.set.mu.Lock()
	defer c.set.mu.Unlock()
	m, ok := c.set.histograms[name]
	if !ok {
		m = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      sanitize(name),
			Help:      name,
		})
		prometheus.MustRegister(m)
		c.set.histograms[name] = m
	}
	return m
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// unionStringSlice returns a sorted set of tags which combine a & b.
func unionStringSlice(a, b []string) []string {
	m := make(map[string]struct{})
	for _, s := range a {
		m[s] = struct{}{}
	}
	for _, s := range b {
		m[s] = struct{}{}
	}
	other := make([]string, 0, len(m))
	for s := range m {
		other = append(other, s)
	}
	sort.Strings(other)
	return other
}
