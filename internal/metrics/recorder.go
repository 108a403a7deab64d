// Package metrics exposes Prometheus instrumentation for director.
package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the Prometheus collectors for the orchestration core.
type Recorder struct {
	once            sync.Once
	serviceOps      *prom.CounterVec
	containerEvents *prom.CounterVec
	buildDuration   prom.Histogram
	runningManaged  prom.Gauge
	reservedPorts   prom.Gauge
}

// NewRecorder constructs and registers the director metrics (idempotent).
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{}
	r.once.Do(func() {
		r.serviceOps = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "director",
			Name:      "service_operations_total",
			Help:      "Service operations by type and outcome",
		}, []string{"operation", "outcome"})
		r.containerEvents = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "director",
			Name:      "container_events_total",
			Help:      "Docker container events by action",
		}, []string{"action"})
		r.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "director",
			Name:      "image_build_duration_seconds",
			Help:      "Duration of service image builds",
			Buckets:   prom.DefBuckets,
		})
		r.runningManaged = prom.NewGauge(prom.GaugeOpts{
			Namespace: "director",
			Name:      "managed_containers_running",
			Help:      "Managed containers currently in the running state",
		})
		r.reservedPorts = prom.NewGauge(prom.GaugeOpts{
			Namespace: "director",
			Name:      "reserved_host_ports",
			Help:      "Host ports currently reserved from the pool",
		})
		reg.MustRegister(r.serviceOps, r.containerEvents, r.buildDuration, r.runningManaged, r.reservedPorts)
	})
	return r
}

func (r *Recorder) CountServiceOp(operation, outcome string) {
	if r == nil || r.serviceOps == nil {
		return
	}
	r.serviceOps.WithLabelValues(operation, outcome).Inc()
}

func (r *Recorder) CountContainerEvent(action string) {
	if r == nil || r.containerEvents == nil {
		return
	}
	r.containerEvents.WithLabelValues(action).Inc()
}

func (r *Recorder) ObserveBuildDuration(d time.Duration) {
	if r == nil || r.buildDuration == nil {
		return
	}
	r.buildDuration.Observe(d.Seconds())
}

func (r *Recorder) SetRunningManaged(n int) {
	if r == nil || r.runningManaged == nil {
		return
	}
	r.runningManaged.Set(float64(n))
}

func (r *Recorder) SetReservedPorts(n int) {
	if r == nil || r.reservedPorts == nil {
		return
	}
	r.reservedPorts.Set(float64(n))
}
