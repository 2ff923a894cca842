package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics holds producer and consumer collectors.
type ClientMetrics struct {
	published *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	handled   *prometheus.CounterVec
	handle    *prometheus.HistogramVec
}

// NewClientMetrics registers Kafka collectors. A nil registerer uses the default one.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &ClientMetrics{
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rategate_kafka_producer_messages_total",
			Help: "Total messages published to Kafka",
		}, []string{"topic", "result"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rategate_kafka_producer_bytes_total",
			Help: "Total payload bytes published",
		}, []string{"topic"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rategate_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		handled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rategate_kafka_consumer_messages_total",
			Help: "Messages handled by the consumer",
		}, []string{"topic", "result"}),
		handle: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rategate_kafka_consumer_handle_seconds",
			Help:    "Handling time per message",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *ClientMetrics) observePublish(topic string, bytes int64, count int, dur time.Duration, err error) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic, result(err)).Add(float64(count))
	m.bytes.WithLabelValues(topic).Add(float64(bytes))
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}

func (m *ClientMetrics) observeHandle(topic string, dur time.Duration, err error) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(topic, result(err)).Inc()
	m.handle.WithLabelValues(topic).Observe(dur.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
