// Package metrics exports client activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sbernard31/lualwm2m/pkg/log"
	"github.com/sbernard31/lualwm2m/pkg/wire"
)

// Namespace prefixes every metric name.
const Namespace = "lwm2m"

// Collector records object operations and protocol traffic on a private
// registry. It implements object.Observer and log.Logger.
type Collector struct {
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	datagramCounter   *prometheus.CounterVec
	datagramBytes     *prometheus.CounterVec
	messageCounter    *prometheus.CounterVec
	errorCounter      prometheus.Counter
}

// NewCollector creates a collector with every metric registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "object",
			Name:      "operations_total",
			Help:      "Object operations served, by object, operation and status code.",
		}, []string{"object", "operation", "status"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "object",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in script handlers per operation.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"operation"}),
		datagramCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "datagrams_total",
			Help:      "Datagrams sent and received.",
		}, []string{"direction"}),
		datagramBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Datagram payload bytes sent and received.",
		}, []string{"direction"}),
		messageCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "wire",
			Name:      "messages_total",
			Help:      "Decoded frames by direction and message type.",
		}, []string{"direction", "type"}),
		errorCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Protocol errors logged by the client.",
		}),
	}

	c.registry.MustRegister(
		c.operationCounter,
		c.operationDuration,
		c.datagramCounter,
		c.datagramBytes,
		c.messageCounter,
		c.errorCounter,
	)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveOperation records one object operation.
func (c *Collector) ObserveOperation(objectID uint16, op wire.Operation, status wire.Status, elapsed time.Duration) {
	c.operationCounter.With(prometheus.Labels{
		"object":    strconv.Itoa(int(objectID)),
		"operation": op.String(),
		"status":    status.Code(),
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": op.String(),
	}).Observe(elapsed.Seconds())
}

// Log counts protocol events.
func (c *Collector) Log(event log.Event) {
	direction := event.Direction.String()
	switch {
	case event.Datagram != nil:
		c.datagramCounter.WithLabelValues(direction).Inc()
		c.datagramBytes.WithLabelValues(direction).Add(float64(event.Datagram.Size))
	case event.Message != nil:
		c.messageCounter.WithLabelValues(direction, event.Message.Type.String()).Inc()
	case event.Error != nil:
		c.errorCounter.Inc()
	}
}

var _ log.Logger = (*Collector)(nil)
