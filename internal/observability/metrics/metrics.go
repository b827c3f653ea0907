// Package metrics exposes Prometheus instrumentation for the telemetry
// pipeline. All observe methods are nil-receiver safe so callers can wire
// metrics optionally.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics covers record processing: throughput, findings, alerts.
type PipelineMetrics struct {
	recordsTotal       *prometheus.CounterVec
	threatsTotal       *prometheus.CounterVec
	anomaliesTotal     *prometheus.CounterVec
	alertsTotal        *prometheus.CounterVec
	qualityScore       prometheus.Histogram
	processingDuration prometheus.Histogram
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmguard",
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Total telemetry records processed",
		}, []string{"model", "status"}),
		threatsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmguard",
			Subsystem: "pipeline",
			Name:      "threats_total",
			Help:      "Total threats detected",
		}, []string{"threat_type", "severity"}),
		anomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmguard",
			Subsystem: "pipeline",
			Name:      "anomalies_total",
			Help:      "Total anomalies detected",
		}, []string{"anomaly_type", "severity"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmguard",
			Subsystem: "pipeline",
			Name:      "alerts_total",
			Help:      "Total alerts generated",
		}, []string{"priority"}),
		qualityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "llmguard",
			Subsystem: "pipeline",
			Name:      "quality_score",
			Help:      "Distribution of response quality scores",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		processingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "llmguard",
			Subsystem: "pipeline",
			Name:      "processing_duration_seconds",
			Help:      "Latency of per-record pipeline processing",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.recordsTotal, m.threatsTotal, m.anomaliesTotal,
		m.alertsTotal, m.qualityScore, m.processingDuration)
	return m
}

func (m *PipelineMetrics) ObserveRecord(model, status string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(model, status).Inc()
}

func (m *PipelineMetrics) ObserveThreat(threatType, severity string) {
	if m == nil {
		return
	}
	m.threatsTotal.WithLabelValues(threatType, severity).Inc()
}

func (m *PipelineMetrics) ObserveAnomaly(anomalyType, severity string) {
	if m == nil {
		return
	}
	m.anomaliesTotal.WithLabelValues(anomalyType, severity).Inc()
}

func (m *PipelineMetrics) ObserveAlert(priority string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(priority).Inc()
}

func (m *PipelineMetrics) ObserveQualityScore(score float64) {
	if m == nil {
		return
	}
	m.qualityScore.Observe(score)
}

func (m *PipelineMetrics) ObserveProcessingDuration(seconds float64) {
	if m == nil {
		return
	}
	m.processingDuration.Observe(seconds)
}

// TransmitMetrics covers the client-side transmitter queue.
type TransmitMetrics struct {
	enqueuedTotal prometheus.Counter
	sentTotal     prometheus.Counter
	failedTotal   prometheus.Counter
	droppedTotal  prometheus.Counter
	queueDepth    prometheus.Gauge
}

func NewTransmitMetrics(reg prometheus.Registerer) *TransmitMetrics {
	m := &TransmitMetrics{
		enqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llmguard",
			Subsystem: "transmit",
			Name:      "enqueued_total",
			Help:      "Total payloads accepted into the transmit queue",
		}),
		sentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llmguard",
			Subsystem: "transmit",
			Name:      "sent_total",
			Help:      "Total payloads delivered to the collector",
		}),
		failedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llmguard",
			Subsystem: "transmit",
			Name:      "failed_total",
			Help:      "Total payloads abandoned after retry exhaustion",
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llmguard",
			Subsystem: "transmit",
			Name:      "dropped_total",
			Help:      "Total payloads dropped on queue overflow",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "llmguard",
			Subsystem: "transmit",
			Name:      "queue_depth",
			Help:      "Current transmit queue depth",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.enqueuedTotal, m.sentTotal, m.failedTotal,
		m.droppedTotal, m.queueDepth)
	return m
}

func (m *TransmitMetrics) ObserveEnqueued() {
	if m == nil {
		return
	}
	m.enqueuedTotal.Inc()
}

func (m *TransmitMetrics) ObserveSent(count int) {
	if m == nil {
		return
	}
	m.sentTotal.Add(float64(count))
}

func (m *TransmitMetrics) ObserveFailed(count int) {
	if m == nil {
		return
	}
	m.failedTotal.Add(float64(count))
}

func (m *TransmitMetrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.droppedTotal.Inc()
}

func (m *TransmitMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
