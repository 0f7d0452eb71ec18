package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector using Prometheus metrics,
// registered under the pgmd_ prefix the way the teacher's collector
// registers under pop3d_.
type PrometheusCollector struct {
	sessionsTotal  prometheus.Counter
	sessionsActive prometheus.Gauge

	registrationsTotal *prometheus.CounterVec
	authAttemptsTotal  *prometheus.CounterVec
	registrySaturated  prometheus.Counter

	messageCodesTotal *prometheus.CounterVec

	messagesDeliveredTotal prometheus.Counter
	messagesFetchedTotal   prometheus.Counter
	messagesDeletedTotal   prometheus.Counter
	messageSizeBytes       prometheus.Histogram
}

// NewPrometheusCollector creates a new PrometheusCollector with all
// metrics registered against reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgmd_sessions_total",
			Help: "Total number of sessions opened.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgmd_sessions_active",
			Help: "Number of currently active sessions.",
		}),

		registrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgmd_registrations_total",
			Help: "Total number of registration attempts.",
		}, []string{"result"}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgmd_auth_attempts_total",
			Help: "Total number of login attempts against existing users.",
		}, []string{"result"}),

		registrySaturated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgmd_registry_saturated_total",
			Help: "Total number of connections closed immediately due to registry saturation.",
		}),

		messageCodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgmd_message_codes_total",
			Help: "Total number of message codes dispatched, by name.",
		}, []string{"code"}),

		messagesDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgmd_messages_delivered_total",
			Help: "Total number of messages successfully delivered.",
		}),
		messagesFetchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgmd_messages_fetched_total",
			Help: "Total number of messages successfully fetched.",
		}),
		messagesDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgmd_messages_deleted_total",
			Help: "Total number of messages successfully deleted.",
		}),
		messageSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgmd_message_size_bytes",
			Help:    "Size of delivered or fetched message bodies in bytes.",
			Buckets: []float64{64, 256, 1024, 2048, 4096},
		}),
	}

	reg.MustRegister(
		c.sessionsTotal,
		c.sessionsActive,
		c.registrationsTotal,
		c.authAttemptsTotal,
		c.registrySaturated,
		c.messageCodesTotal,
		c.messagesDeliveredTotal,
		c.messagesFetchedTotal,
		c.messagesDeletedTotal,
		c.messageSizeBytes,
	)

	return c
}

func (c *PrometheusCollector) SessionOpened() {
	c.sessionsTotal.Inc()
	c.sessionsActive.Inc()
}

func (c *PrometheusCollector) SessionClosed() {
	c.sessionsActive.Dec()
}

func (c *PrometheusCollector) RegistrationAttempt(success bool) {
	c.registrationsTotal.WithLabelValues(resultLabel(success)).Inc()
}

func (c *PrometheusCollector) AuthAttempt(success bool) {
	c.authAttemptsTotal.WithLabelValues(resultLabel(success)).Inc()
}

func (c *PrometheusCollector) RegistrySaturated() {
	c.registrySaturated.Inc()
}

func (c *PrometheusCollector) MessageCodeProcessed(code string) {
	c.messageCodesTotal.WithLabelValues(code).Inc()
}

func (c *PrometheusCollector) MessageDelivered(sizeBytes int64) {
	c.messagesDeliveredTotal.Inc()
	c.messageSizeBytes.Observe(float64(sizeBytes))
}

func (c *PrometheusCollector) MessageFetched(sizeBytes int64) {
	c.messagesFetchedTotal.Inc()
	c.messageSizeBytes.Observe(float64(sizeBytes))
}

func (c *PrometheusCollector) MessageDeleted() {
	c.messagesDeletedTotal.Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
