// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
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

package zipkin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// failure reasons
const (
	reasonEncoding  = "encoding"
	reasonTransport = "transport"
)

// Metrics holds the exporter's Prometheus metrics.
type Metrics struct {
	Exported prometheus.Counter
	Failed   *prometheus.CounterVec
	Backlog  prometheus.GaugeFunc
}

// NewMetrics registers the exporter metrics with reg. backlog reports the
// number of spans waiting for export. A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer, backlog func() float64) *Metrics {
	factory := promauto.With(reg)
	if backlog == nil {
		backlog = func() float64 { return 0 }
	}
	return &Metrics{
		Exported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tracing",
			Name:      "spans_exported_total",
			Help:      "Total number of spans handed to the collector",
		}),
		Failed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracing",
			Name:      "spans_failed_total",
			Help:      "Total number of spans which could not be exported",
		}, []string{"reason"}),
		Backlog: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "tracing",
			Name:      "spans_backlog",
			Help:      "Number of finished spans waiting for export",
		}, backlog),
	}
}
