// Copyright 2025 Digix Global
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daoengine

import "github.com/prometheus/client_golang/prometheus"

type engineMetrics struct {
	opsTotal     *prometheus.CounterVec
	opErrors     *prometheus.CounterVec
	participants prometheus.Gauge
	moderators   prometheus.Gauge
	lockedStake  prometheus.Gauge
	outstanding  prometheus.Gauge
	lastQuarter  prometheus.Gauge
	passVisited  prometheus.Gauge
}

func newEngineMetrics(registry prometheus.Registerer) *engineMetrics {
	m := &engineMetrics{
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daoengine_operations_total",
				Help: "Total engine operations, by operation",
			},
			[]string{"op"},
		),
		opErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daoengine_operation_errors_total",
				Help: "Total failed engine operations, by operation",
			},
			[]string{"op"},
		),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daoengine_participants",
			Help: "Addresses above the minimum participant stake",
		}),
		moderators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daoengine_moderators",
			Help: "Current moderator pool size",
		}),
		lockedStake: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daoengine_locked_stake",
			Help: "Total locked stake in base units",
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daoengine_outstanding_rewards",
			Help: "Total claimable rewards in base units",
		}),
		lastQuarter: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daoengine_last_finalized_quarter",
			Help: "Most recent finalized quarter",
		}),
		passVisited: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daoengine_pass_visited",
			Help: "Participants visited by the in-progress boundary pass",
		}),
	}
	registry.MustRegister(
		m.opsTotal,
		m.opErrors,
		m.participants,
		m.moderators,
		m.lockedStake,
		m.outstanding,
		m.lastQuarter,
		m.passVisited,
	)
	return m
}

// observe counts one operation, tagging the error counter as well when the
// operation failed
func (m *engineMetrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.opsTotal.WithLabelValues(op).Inc()
	if err != nil {
		m.opErrors.WithLabelValues(op).Inc()
	}
}
