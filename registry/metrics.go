// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"errors"
	"strconv"

	"github.com/luxfi/metric"
)

type coordinatorMetrics struct {
	joins            metric.Counter
	leaves           metric.Counter
	churnEvictions   metric.Counter
	forcedEjections  metric.Counter
	keyRegistrations metric.Counter

	quorumOperators metric.GaugeVec
}

func newMetrics(registerer metric.Registerer) (*coordinatorMetrics, error) {
	m := &coordinatorMetrics{
		joins: metric.NewCounter(metric.CounterOpts{
			Name: "joins",
			Help: "Total number of successful quorum joins (one per operator per call)",
		}),
		leaves: metric.NewCounter(metric.CounterOpts{
			Name: "leaves",
			Help: "Total number of successful quorum leaves (one per operator per call)",
		}),
		churnEvictions: metric.NewCounter(metric.CounterOpts{
			Name: "churn_evictions",
			Help: "Total number of incumbents evicted through churn",
		}),
		forcedEjections: metric.NewCounter(metric.CounterOpts{
			Name: "forced_ejections",
			Help: "Total number of operators forcibly ejected",
		}),
		keyRegistrations: metric.NewCounter(metric.CounterOpts{
			Name: "key_registrations",
			Help: "Total number of operator keys registered or replaced",
		}),
		quorumOperators: metric.NewGaugeVec(
			metric.GaugeOpts{
				Name: "quorum_operators",
				Help: "Current number of operators in a quorum",
			},
			[]string{"quorum"},
		),
	}
	err := errors.Join(
		registerer.Register(metric.AsCollector(m.joins)),
		registerer.Register(metric.AsCollector(m.leaves)),
		registerer.Register(metric.AsCollector(m.churnEvictions)),
		registerer.Register(metric.AsCollector(m.forcedEjections)),
		registerer.Register(metric.AsCollector(m.keyRegistrations)),
		registerer.Register(metric.AsCollector(m.quorumOperators)),
	)
	return m, err
}

func (m *coordinatorMetrics) setQuorumOperators(quorum uint8, count uint32) {
	m.quorumOperators.WithLabelValues(strconv.Itoa(int(quorum))).Set(float64(count))
}
