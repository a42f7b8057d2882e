package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/linkpulse/internal/connection"
	"github.com/rickgao/linkpulse/internal/realtime"
	"github.com/rickgao/linkpulse/internal/writer"
)

const namespace = "linkpulse"

// ClientSource supplies realtime client statistics. *realtime.Client satisfies it.
type ClientSource interface {
	Stats() realtime.Stats
}

// RecorderSource supplies click recorder statistics. *writer.ClickWriter satisfies it.
type RecorderSource interface {
	Stats() writer.Stats
}

// Collector owns a Prometheus registry for one linkpulse process.
type Collector struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	state       prometheus.Gauge

	// funcs indexes the scrape-time metrics by name.
	funcs map[string]prometheus.Collector
}

// New creates a Collector with process and Go runtime metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_transitions_total",
			Help:      "Connection state transitions by target state.",
		}, []string{"state"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=failed).",
		}),
		funcs: make(map[string]prometheus.Collector),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.transitions,
		c.state,
	)
	return c
}

// ObserveState records a connection state transition. It matches the
// signature of realtime.WithStateObserver.
func (c *Collector) ObserveState(_, to connection.State) {
	c.transitions.WithLabelValues(to.String()).Inc()
	c.state.Set(float64(to))
}

// RegisterClient exposes the realtime client's counters.
func (c *Collector) RegisterClient(src ClientSource) error {
	conn := func(f func(connection.ManagerStats) float64) func() float64 {
		return func() float64 { return f(src.Stats().Connection) }
	}
	stats := func(f func(realtime.Stats) float64) func() float64 {
		return func() float64 { return f(src.Stats()) }
	}

	return c.register(
		c.gauge("connection_up", "1 if the realtime connection is open.", conn(func(s connection.ManagerStats) float64 {
			if s.State == connection.StateConnected {
				return 1
			}
			return 0
		})),
		c.gauge("reconnect_attempts", "Reconnect attempts since the last successful open.", conn(func(s connection.ManagerStats) float64 {
			return float64(s.Attempts)
		})),
		c.counter("dials_total", "Transport opens attempted.", conn(func(s connection.ManagerStats) float64 {
			return float64(s.Dials)
		})),
		c.counter("reconnects_total", "Successful opens following an unexpected drop.", conn(func(s connection.ManagerStats) float64 {
			return float64(s.Reconnects)
		})),
		c.counter("reconnect_failures_total", "Times the reconnect policy was exhausted.", conn(func(s connection.ManagerStats) float64 {
			return float64(s.Failures)
		})),
		c.gauge("active_topics", "Topics with at least one listener.", stats(func(s realtime.Stats) float64 {
			return float64(s.Registry.Topics)
		})),
		c.gauge("listeners", "Registered listeners across all topics.", stats(func(s realtime.Stats) float64 {
			return float64(s.Registry.Listeners)
		})),
		c.counter("subscribe_frames_total", "Subscribe frames sent.", stats(func(s realtime.Stats) float64 {
			return float64(s.Registry.SubscribesSent)
		})),
		c.counter("unsubscribe_frames_total", "Unsubscribe frames sent.", stats(func(s realtime.Stats) float64 {
			return float64(s.Registry.UnsubscribesSent)
		})),
		c.counter("subscribes_ignored_total", "Subscribe calls ignored while disconnected.", stats(func(s realtime.Stats) float64 {
			return float64(s.Registry.Ignored)
		})),
		c.counter("messages_received_total", "Inbound frames handled by the router.", stats(func(s realtime.Stats) float64 {
			return float64(s.Router.MessagesReceived)
		})),
		c.counter("events_dispatched_total", "Click events delivered to at least one listener.", stats(func(s realtime.Stats) float64 {
			return float64(s.Router.EventsDispatched)
		})),
		c.counter("events_dropped_total", "Click events for topics without listeners.", stats(func(s realtime.Stats) float64 {
			return float64(s.Router.EventsDropped)
		})),
		c.counter("parse_errors_total", "Inbound frames that could not be decoded.", stats(func(s realtime.Stats) float64 {
			return float64(s.Router.ParseErrors)
		})),
		c.counter("listener_panics_total", "Listener callbacks that panicked.", stats(func(s realtime.Stats) float64 {
			return float64(s.Router.ListenerPanics)
		})),
	)
}

// RegisterRecorder exposes the click recorder's counters.
func (c *Collector) RegisterRecorder(src RecorderSource) error {
	rec := func(f func(writer.Stats) float64) func() float64 {
		return func() float64 { return f(src.Stats()) }
	}

	return c.register(
		c.counter("recorder_inserts_total", "Click rows inserted.", rec(func(s writer.Stats) float64 {
			return float64(s.Inserts)
		})),
		c.counter("recorder_conflicts_total", "Click rows skipped as duplicates.", rec(func(s writer.Stats) float64 {
			return float64(s.Conflicts)
		})),
		c.counter("recorder_dropped_total", "Click events dropped because the recorder queue was full.", rec(func(s writer.Stats) float64 {
			return float64(s.Dropped)
		})),
		c.counter("recorder_batch_errors_total", "Failed insert batches.", rec(func(s writer.Stats) float64 {
			return float64(s.Errors)
		})),
		c.gauge("recorder_pending", "Click events waiting to be inserted.", rec(func(s writer.Stats) float64 {
			return float64(s.Pending)
		})),
	)
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

type namedCollector struct {
	name string
	prometheus.Collector
}

func (c *Collector) gauge(name, help string, fn func() float64) namedCollector {
	return namedCollector{name, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)}
}

func (c *Collector) counter(name, help string, fn func() float64) namedCollector {
	return namedCollector{name, prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)}
}

func (c *Collector) register(cs ...namedCollector) error {
	for _, nc := range cs {
		if err := c.registry.Register(nc.Collector); err != nil {
			return err
		}
		c.funcs[nc.name] = nc.Collector
	}
	return nil
}
