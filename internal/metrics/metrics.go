// Package metrics defines the Prometheus collectors exported by ReliefPipe.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider labels used by the provider collectors.
const (
	ProviderIntent     = "intent"
	ProviderDocumentAI = "documentai"
	ProviderStatus     = "status"
	ProviderTTS        = "tts"
	ProviderSTT        = "stt"
	ProviderSMS        = "sms"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reliefpipe_turns_total",
			Help: "Total number of conversation turns processed",
		},
		[]string{"input_type", "intent"},
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reliefpipe_provider_failures_total",
			Help: "Total number of absorbed external provider failures",
		},
		[]string{"provider"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reliefpipe_provider_duration_seconds",
			Help:    "Duration of external provider calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

// ObserveProvider records the latency of a provider call and counts it as a failure when err is non-nil.
func ObserveProvider(provider string, start time.Time, err error) {
	ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		ProviderFailures.WithLabelValues(provider).Inc()
	}
}
