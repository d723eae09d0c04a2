/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package transaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	targetTransaction = "transaction"
	targetDefault     = "default"
)

// Metrics collects Prometheus metrics for transactions and routed
// operations. A nil *Metrics records nothing.
type Metrics struct {
	begun      *prometheus.CounterVec
	resolved   *prometheus.CounterVec
	active     prometheus.Gauge
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		begun: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txflow_transactions_begun_total",
				Help: "Begin calls by result (opened, joined, failed)",
			},
			[]string{"result"},
		),
		resolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txflow_transactions_resolved_total",
				Help: "Opened transactions by final outcome",
			},
			[]string{"outcome"},
		),
		active: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "txflow_transactions_active",
				Help: "Transactions currently open",
			},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "txflow_transaction_duration_seconds",
				Help: "Time from open to resolution",
				Buckets: []float64{
					0.001,
					0.005,
					0.01,
					0.05,
					0.1,
					0.5,
					1.0,
					5.0,
					30.0,
				},
			},
			[]string{"outcome"},
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txflow_operations_total",
				Help: "Data operations by model, operation and execution target",
			},
			[]string{"model", "operation", "target"},
		),
	}
}

func (m *Metrics) begin(result string) {
	if m == nil {
		return
	}
	m.begun.WithLabelValues(result).Inc()
}

func (m *Metrics) open() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) resolve(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.resolved.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) operation(op Operation, target string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op.Model, op.Name, target).Inc()
}
