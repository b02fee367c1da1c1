// Package stats is zvmd's metrics surface: the counters and histograms
// the orchestrator and name service naturally produce, registered with
// github.com/prometheus/client_golang and exposed on /metrics. One
// Registry per process; callers update it via named methods rather than
// touching metric vectors directly.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric zvmd exports. Constructed once per process.
type Registry struct {
	reg *prometheus.Registry

	jobsTotal      *prometheus.CounterVec
	workersTotal   *prometheus.CounterVec
	stageLatency   *prometheus.HistogramVec
	nameServiceUp  prometheus.Gauge
	daemonHitTotal prometheus.Counter
}

// New builds and registers a fresh Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvmd", Name: "jobs_total", Help: "Submitted jobs by outcome.",
		}, []string{"outcome"}),
		workersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvmd", Name: "workers_total", Help: "Planned workers by outcome.",
		}, []string{"outcome"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zvmd", Name: "stage_latency_seconds", Help: "Per-stage job latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		nameServiceUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zvmd", Name: "nameservice_active", Help: "Rendezvous services currently running.",
		}),
		daemonHitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zvmd", Name: "daemon_hits_total", Help: "Workers routed to a preloaded daemon socket.",
		}),
	}
	reg.MustRegister(r.jobsTotal, r.workersTotal, r.stageLatency, r.nameServiceUp, r.daemonHitTotal)
	return r
}

// Handler returns the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) JobDone(outcome string)         { r.jobsTotal.WithLabelValues(outcome).Inc() }
func (r *Registry) WorkerDone(outcome string)       { r.workersTotal.WithLabelValues(outcome).Inc() }
func (r *Registry) ObserveStage(stage string, secs float64) {
	r.stageLatency.WithLabelValues(stage).Observe(secs)
}
func (r *Registry) NameServiceStarted() { r.nameServiceUp.Inc() }
func (r *Registry) NameServiceStopped() { r.nameServiceUp.Dec() }
func (r *Registry) DaemonHit()          { r.daemonHitTotal.Inc() }
