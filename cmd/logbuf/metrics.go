// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"expvar"
	"sort"

	"github.com/creachadair/logbuf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// expvarCollector exports the integer counters of an expvar.Map as
// Prometheus counters.
type expvarCollector struct {
	m     *expvar.Map
	descs map[string]*prometheus.Desc
}

// newExpvarCollector constructs a collector for the counters currently in m.
// Each counter "name" is exported as "<namespace>_<name>_total".
func newExpvarCollector(namespace string, m *expvar.Map) *expvarCollector {
	c := &expvarCollector{m: m, descs: make(map[string]*prometheus.Desc)}
	m.Do(func(kv expvar.KeyValue) {
		if _, ok := kv.Value.(*expvar.Int); ok {
			c.descs[kv.Key] = prometheus.NewDesc(
				prometheus.BuildFQName(namespace, "", kv.Key+"_total"),
				"Log buffer counter "+kv.Key+".", nil, nil,
			)
		}
	})
	return c
}

// Describe implements a method of the [prometheus.Collector] interface.
func (c *expvarCollector) Describe(ch chan<- *prometheus.Desc) {
	keys := make([]string, 0, len(c.descs))
	for key := range c.descs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		ch <- c.descs[key]
	}
}

// Collect implements a method of the [prometheus.Collector] interface.
func (c *expvarCollector) Collect(ch chan<- prometheus.Metric) {
	c.m.Do(func(kv expvar.KeyValue) {
		desc, ok := c.descs[kv.Key]
		if !ok {
			return
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(kv.Value.(*expvar.Int).Value()))
	})
}

// newRegistry constructs a registry exporting the log buffer metrics, the
// positions of each of the given logs, and the Go runtime metrics.
func newRegistry(logs map[string]*logbuf.Log) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		newExpvarCollector("logbuf", logbuf.Metrics()),
		collectors.NewGoCollector(),
	)
	for path, lg := range logs {
		labels := prometheus.Labels{"path": path}
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   "logbuf",
				Name:        "producer_position",
				Help:        "Stream position of the tail of the active term.",
				ConstLabels: labels,
			}, func() float64 { return float64(lg.ProducerPosition()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   "logbuf",
				Name:        "active_partition",
				Help:        "Index of the active partition.",
				ConstLabels: labels,
			}, func() float64 { return float64(lg.ActivePartitionIndex()) }),
		)
	}
	return reg
}
