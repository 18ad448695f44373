// Package observability exposes store activity as Prometheus metrics and
// structured logs.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/eventbus"
	"github.com/nupi-ai/voxflux/internal/flux"
)

const namespace = "voxflux"

// Metrics owns a private registry with action and bus metrics.
type Metrics struct {
	registry *prometheus.Registry
	prefix   string

	actionsTotal *prometheus.CounterVec
	faultsTotal  prometheus.Counter
}

// NewMetrics registers action counters for prefix. A non-nil bus also
// exports its publish and drop counters.
func NewMetrics(prefix string, bus *eventbus.Bus) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		prefix:   prefix,
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "actions_total",
			Help:      "Actions dispatched through the store, by type name.",
		}, []string{"name"}),
		faultsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "unhandled_errors_total",
			Help:      "Handler faults converted into unhandled-error actions.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if bus != nil {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbus",
			Name:      "publish_total",
			Help:      "Total number of events published on the bus.",
		}, func() float64 { return float64(bus.Metrics().PublishTotal) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbus",
			Name:      "dropped_total",
			Help:      "Total number of events dropped by the bus.",
		}, func() float64 { return float64(bus.Metrics().DroppedTotal) })
	}

	return m
}

// Devices lists the identifiers with a live client.
type Devices interface {
	DeviceIDs() []string
}

// TrackDevices exports the number of registered clients as a gauge. Call it
// once per Metrics.
func (m *Metrics) TrackDevices(devices Devices) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "voice",
		Name:      "registered_devices",
		Help:      "Clients currently held in the device registry.",
	}, func() float64 { return float64(len(devices.DeviceIDs())) })
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts every action. Actions outside the prefix are counted
// under "other" so foreign action types cannot blow up label cardinality.
func (m *Metrics) Middleware() flux.Middleware {
	return func(flux.API) func(flux.Next) flux.Next {
		return func(next flux.Next) flux.Next {
			return func(a action.Action) action.Action {
				name, ok := action.Base(m.prefix, a.Type)
				if !ok {
					name = "other"
				}
				m.actionsTotal.WithLabelValues(name).Inc()
				if ok && name == action.NameUnhandledError {
					m.faultsTotal.Inc()
				}
				return next(a)
			}
		}
	}
}
