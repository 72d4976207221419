package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	sends        *prometheus.CounterVec
	sendLatency  *prometheus.SummaryVec
	retries      *prometheus.CounterVec
	fallbacks    prometheus.Counter
	webhookEvent *prometheus.CounterVec
	enqueues     *prometheus.CounterVec
	backlog      prometheus.Gauge
}

var (
	sendCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notiflow_sends_total",
		Help: "Provider send attempts by channel and outcome",
	}, []string{"channel", "outcome"})
	sendLatency = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name: "notiflow_send_duration_seconds",
		Help: "Provider send call duration",
	}, []string{"channel"})
	retryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notiflow_retries_total",
		Help: "Retries scheduled by channel",
	}, []string{"channel"})
	fallbackCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notiflow_fallbacks_total",
		Help: "SMS to email fallbacks created",
	})
	webhookCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notiflow_webhook_events_total",
		Help: "Inbound webhook events by type and result",
	}, []string{"event", "result"})
	enqueueCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notiflow_enqueues_total",
		Help: "Delayed job enqueue calls by result",
	}, []string{"result"})
	backlogGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notiflow_pending_messages",
		Help: "Outbox messages currently pending",
	})
)

func NewPrometheusObserver() DeliveryObserver {
	return &prometheusObserver{
		sends:        sendCounter,
		sendLatency:  sendLatency,
		retries:      retryCounter,
		fallbacks:    fallbackCounter,
		webhookEvent: webhookCounter,
		enqueues:     enqueueCounter,
		backlog:      backlogGauge,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) RecordSend(channel, outcome string) {
	p.sends.WithLabelValues(channel, outcome).Inc()
}

func (p *prometheusObserver) ObserveSendLatency(channel string, seconds float64) {
	p.sendLatency.WithLabelValues(channel).Observe(seconds)
}

func (p *prometheusObserver) RecordRetry(channel string) {
	p.retries.WithLabelValues(channel).Inc()
}

func (p *prometheusObserver) RecordFallback() {
	p.fallbacks.Inc()
}

func (p *prometheusObserver) RecordWebhookEvent(event, result string) {
	p.webhookEvent.WithLabelValues(event, result).Inc()
}

func (p *prometheusObserver) RecordEnqueue(result string) {
	p.enqueues.WithLabelValues(result).Inc()
}

func (p *prometheusObserver) SetPendingBacklog(n int64) {
	p.backlog.Set(float64(n))
}
