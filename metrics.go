// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import (
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Operation outcomes recorded by Metrics.
const (
	outcomeOK         = "ok"
	outcomeValidation = "validation"
	outcomeStorage    = "storage"
	outcomeCorruption = "corruption"
)

// Metrics holds Prometheus collectors describing engine operations. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Ops counts operations by name and outcome.
	Ops *prometheus.CounterVec
	// Duration observes the latency of operations by name, including time
	// spent waiting for locks.
	Duration *prometheus.HistogramVec
}

// NewMetrics constructs the engine collectors and registers them with reg,
// which may be nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestedset",
			Name:      "ops_total",
			Help:      "Number of tree operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nestedset",
			Name:      "op_duration_seconds",
			Help:      "Latency of tree operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.Ops, m.Duration)
	}
	return m
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case IsValidation(err):
		return outcomeValidation
	case errors.Is(err, ErrCorruption):
		return outcomeCorruption
	default:
		return outcomeStorage
	}
}

// observe records an operation that started at start.
func (m *Metrics) observe(op string, start crtime.Mono, err error) {
	if m == nil {
		return
	}
	m.Ops.WithLabelValues(op, outcome(err)).Inc()
	m.Duration.WithLabelValues(op).Observe(start.Elapsed().Seconds())
}
