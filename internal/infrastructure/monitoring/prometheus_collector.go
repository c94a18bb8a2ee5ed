package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type PrometheusCollector struct {
	// Presence
	activeUsers     *prometheus.GaugeVec
	presenceExpired *prometheus.CounterVec

	// Voice
	voiceJoins       prometheus.Counter
	voiceLeaves      prometheus.Counter
	signalsRelayed   *prometheus.CounterVec
	polls            prometheus.Counter
	signalsDelivered prometheus.Counter
	pollBatchSize    prometheus.Histogram
	pushConnections  prometheus.Gauge

	// Chat
	messagesPosted *prometheus.CounterVec
	channelChanges *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	storeBreakerState prometheus.Gauge
}

var _ ports.MetricsSink = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the collector's metrics with reg, or with
// the default registry when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		activeUsers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "huddle_active_users",
			Help: "Users with live presence after the last sweep",
		}, []string{"registry"}),

		presenceExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_presence_expired_total",
			Help: "Presence entries removed by sweeps",
		}, []string{"registry"}),

		voiceJoins: factory.NewCounter(prometheus.CounterOpts{
			Name: "huddle_voice_joins_total",
			Help: "Voice room joins",
		}),

		voiceLeaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "huddle_voice_leaves_total",
			Help: "Voice room leaves",
		}),

		signalsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_signals_relayed_total",
			Help: "Signals queued for delivery",
		}, []string{"type"}),

		polls: factory.NewCounter(prometheus.CounterOpts{
			Name: "huddle_polls_total",
			Help: "Mailbox drains",
		}),

		signalsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "huddle_signals_delivered_total",
			Help: "Signals handed to recipients",
		}),

		pollBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "huddle_poll_batch_size",
			Help:    "Signals returned per drain",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		}),

		pushConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_push_connections",
			Help: "Open websocket push connections",
		}),

		messagesPosted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_messages_posted_total",
			Help: "Chat messages stored",
		}, []string{"attachment"}),

		channelChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_channel_changes_total",
			Help: "Channel creations and deletions",
		}, []string{"op"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),

		storeBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "huddle_store_circuit_state",
			Help: "Chat store circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
	}
}

func (p *PrometheusCollector) SetActiveUsers(registry string, n int) {
	p.activeUsers.WithLabelValues(registry).Set(float64(n))
}

func (p *PrometheusCollector) RecordPresenceExpired(registry string, n int) {
	p.presenceExpired.WithLabelValues(registry).Add(float64(n))
}

func (p *PrometheusCollector) RecordVoiceJoin() {
	p.voiceJoins.Inc()
}

func (p *PrometheusCollector) RecordVoiceLeave() {
	p.voiceLeaves.Inc()
}

func (p *PrometheusCollector) RecordSignal(signalType domain.SignalType) {
	p.signalsRelayed.WithLabelValues(string(signalType)).Inc()
}

func (p *PrometheusCollector) RecordPoll(delivered int) {
	p.polls.Inc()
	p.signalsDelivered.Add(float64(delivered))
	p.pollBatchSize.Observe(float64(delivered))
}

func (p *PrometheusCollector) RecordMessagePosted(withAttachment bool) {
	p.messagesPosted.WithLabelValues(strconv.FormatBool(withAttachment)).Inc()
}

func (p *PrometheusCollector) RecordChannelChange(op string) {
	p.channelChanges.WithLabelValues(op).Inc()
}

func (p *PrometheusCollector) PushConnected() {
	p.pushConnections.Inc()
}

func (p *PrometheusCollector) PushDisconnected() {
	p.pushConnections.Dec()
}

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *PrometheusCollector) SetStoreBreakerState(state int) {
	p.storeBreakerState.Set(float64(state))
}
