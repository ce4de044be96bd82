package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TickCollector exposes tick scheduler and connection metrics. A nil
// collector is valid and records nothing.
type TickCollector struct {
	gatherer prometheus.Gatherer

	TickDuration       prometheus.Histogram
	SystemDuration     *prometheus.HistogramVec
	SystemFailures     *prometheus.CounterVec
	PacketsHandled     prometheus.Counter
	PacketFailures     prometheus.Counter
	KeepaliveBroadcast prometheus.Counter
	ConnectedClients   prometheus.Gauge
	ViewUpdates        prometheus.Counter
	EventsPublished    *prometheus.CounterVec
	EventsExpired      *prometheus.CounterVec
}

// NewTickCollector registers the collector's metrics against reg. Metrics
// that are already registered are reused.
func NewTickCollector(reg prometheus.Registerer) (*TickCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	tickBuckets := []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

	tick, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "worldcore_tick_duration_seconds",
		Help:    "Wall time spent running every system once.",
		Buckets: tickBuckets,
	}), "worldcore_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	systemDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worldcore_system_duration_seconds",
		Help:    "Wall time spent in a single system.",
		Buckets: tickBuckets,
	}, []string{"system"}), "worldcore_system_duration_seconds")
	if err != nil {
		return nil, err
	}

	systemFailures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worldcore_system_failures_total",
		Help: "Systems that returned an error.",
	}, []string{"system"}), "worldcore_system_failures_total")
	if err != nil {
		return nil, err
	}

	handled, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worldcore_packets_handled_total",
		Help: "Inbound messages dispatched to a handler.",
	}), "worldcore_packets_handled_total")
	if err != nil {
		return nil, err
	}

	failed, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worldcore_packet_failures_total",
		Help: "Inbound messages whose handler returned an error.",
	}), "worldcore_packet_failures_total")
	if err != nil {
		return nil, err
	}

	keepalives, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worldcore_keepalive_broadcasts_total",
		Help: "Keepalive probes broadcast to all clients.",
	}), "worldcore_keepalive_broadcasts_total")
	if err != nil {
		return nil, err
	}

	clients, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldcore_connected_clients",
		Help: "Clients currently present in the connection registry.",
	}), "worldcore_connected_clients")
	if err != nil {
		return nil, err
	}

	views, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worldcore_view_updates_total",
		Help: "View replacements published on the event bus.",
	}), "worldcore_view_updates_total")
	if err != nil {
		return nil, err
	}

	published, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worldcore_events_published_total",
		Help: "Events published on the simulation bus.",
	}, []string{"kind"}), "worldcore_events_published_total")
	if err != nil {
		return nil, err
	}

	expired, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worldcore_events_expired_total",
		Help: "Events dropped from the bus once their lifetime ended.",
	}, []string{"kind"}), "worldcore_events_expired_total")
	if err != nil {
		return nil, err
	}

	return &TickCollector{
		gatherer:           gatherer,
		TickDuration:       tick,
		SystemDuration:     systemDuration,
		SystemFailures:     systemFailures,
		PacketsHandled:     handled,
		PacketFailures:     failed,
		KeepaliveBroadcast: keepalives,
		ConnectedClients:   clients,
		ViewUpdates:        views,
		EventsPublished:    published,
		EventsExpired:      expired,
	}, nil
}

// Gatherer returns the gatherer the collector was registered with.
func (c *TickCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler serves the collector's gatherer in the Prometheus text format.
func (c *TickCollector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *TickCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

func (c *TickCollector) ObserveSystem(name string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.SystemDuration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		c.SystemFailures.WithLabelValues(name).Inc()
	}
}

func (c *TickCollector) IncPacketsHandled() {
	if c == nil {
		return
	}
	c.PacketsHandled.Inc()
}

func (c *TickCollector) IncPacketFailures() {
	if c == nil {
		return
	}
	c.PacketFailures.Inc()
}

func (c *TickCollector) IncKeepalives() {
	if c == nil {
		return
	}
	c.KeepaliveBroadcast.Inc()
}

func (c *TickCollector) SetConnectedClients(n int) {
	if c == nil {
		return
	}
	c.ConnectedClients.Set(float64(n))
}

func (c *TickCollector) IncViewUpdates() {
	if c == nil {
		return
	}
	c.ViewUpdates.Inc()
}

// OnPublish lets the collector observe the event bus.
func (c *TickCollector) OnPublish(kind string) {
	if c == nil {
		return
	}
	c.EventsPublished.WithLabelValues(kind).Inc()
}

func (c *TickCollector) OnExpire(kind string, count int) {
	if c == nil {
		return
	}
	c.EventsExpired.WithLabelValues(kind).Add(float64(count))
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C, name string) (C, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return collector, nil
}
