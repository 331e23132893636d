/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes the gateway's Prometheus collectors on one
// registry. The orchestrator updates ConnectionsActive, RouteHits and
// RateLimited as it processes traffic; the other collectors are
// registered but not updated by the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bundles every metric the gateway updates. Callers hold
// one instance for the process lifetime.
type Collectors struct {
	Registry *prometheus.Registry

	ConnectionsActive   prometheus.Gauge
	ConnectionsRejected *prometheus.CounterVec
	RouteHits           *prometheus.CounterVec
	RateLimited         *prometheus.CounterVec
	BreakerState        *prometheus.GaugeVec
	BreakerTrips        *prometheus.CounterVec
	BytesTransferred    *prometheus.CounterVec
	AdmissionDuration   prometheus.Histogram
}

// New builds a fresh registry and registers every collector on it.
func New() *Collectors {
	reg := prometheus.NewRegistry()

	c := &Collectors{
		Registry: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "l4gw",
			Name:      "connections_active",
			Help:      "Currently tracked open connections.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "l4gw",
			Name:      "connections_rejected_total",
			Help:      "Connections rejected by reason.",
		}, []string{"reason"}),
		RouteHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "l4gw",
			Name:      "route_hits_total",
			Help:      "Routing-table matches by route id.",
		}, []string{"route_id"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "l4gw",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the token bucket, by key.",
		}, []string{"key"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "l4gw",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per key: 0 closed, 1 open, 2 half-open.",
		}, []string{"key"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "l4gw",
			Name:      "breaker_trips_total",
			Help:      "Times a breaker key transitioned into the Open state.",
		}, []string{"key"}),
		BytesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "l4gw",
			Name:      "bytes_transferred_total",
			Help:      "Bytes transferred by direction.",
		}, []string{"direction"}),
		AdmissionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "l4gw",
			Name:      "admission_duration_seconds",
			Help:      "Time spent in the admission pipeline per connection.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.ConnectionsActive,
		c.ConnectionsRejected,
		c.RouteHits,
		c.RateLimited,
		c.BreakerState,
		c.BreakerTrips,
		c.BytesTransferred,
		c.AdmissionDuration,
	)
	return c
}

// BreakerStateValue maps a breaker state name onto the gauge value
// BreakerState expects.
func BreakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}
