/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package dispatch

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is an optional, off-by-default view onto a Dispatcher's pool and
// connection state. The daemon never opens its own metrics listener; an
// embedding application mounts Handler() on whatever mux it already runs.
type Metrics struct {
	reg *prometheus.Registry

	workers      *prometheus.GaugeVec
	communicators prometheus.Gauge
	requests     prometheus.Counter
}

// NewMetrics builds a Metrics registered against a fresh, private registry
// (never the global prometheus.DefaultRegisterer, so mounting it twice in
// tests never panics on duplicate registration).
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		workers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "serverino_workers",
			Help: "Current worker count by lifecycle status.",
		}, []string{"status"}),
		communicators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "serverino_communicators_active",
			Help: "Communicators currently linked into the alives list.",
		}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "serverino_requests_dispatched_total",
			Help: "Requests handed off to a worker since startup.",
		}),
	}
	m.reg.MustRegister(m.workers, m.communicators, m.requests)
	return m
}

// Handler exposes the registry in the standard Prometheus exposition
// format for the embedding application to mount.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequestDispatched() {
	m.requests.Inc()
}

// refreshMetrics recomputes the gauges from the Dispatcher's current in-memory
// state; called once per event-loop tick rather than on every mutation,
// since none of these need sub-second freshness.
func (d *Dispatcher) refreshMetrics() {
	if d.metrics == nil {
		return
	}

	var idling, processing, stopped int
	for _, wp := range d.workers {
		switch wp.status {
		case WorkerIdling:
			idling++
		case WorkerProcessing:
			processing++
		case WorkerStopped:
			stopped++
		}
	}
	d.metrics.workers.WithLabelValues("idling").Set(float64(idling))
	d.metrics.workers.WithLabelValues("processing").Set(float64(processing))
	d.metrics.workers.WithLabelValues("stopped").Set(float64(stopped))

	d.metrics.communicators.Set(float64(d.alives.len))
}
