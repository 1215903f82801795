package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "videoprompt"

var (
	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total inference requests by provider, model and result",
		},
		[]string{"provider", "model", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of inference requests by provider and model",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Files submitted for encoding by media kind and result",
		},
		[]string{"kind", "result"},
	)

	uploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of accepted uploads",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 7),
		},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Prompt generations by result",
		},
		[]string{"result"},
	)

	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Classified generation failures by kind",
		},
		[]string{"kind"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		},
	)
)

var initOnce sync.Once

// Init registers collectors.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(providerReqs, providerLatency, uploads, uploadBytes, generations, failures, activeSessions)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveProvider(provider, model, result string, dur time.Duration) {
	providerReqs.WithLabelValues(provider, model, result).Inc()
	providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncUpload(kind, result string) { uploads.WithLabelValues(kind, result).Inc() }

func ObserveUploadSize(n int64) { uploadBytes.Observe(float64(n)) }

func IncGeneration(result string) { generations.WithLabelValues(result).Inc() }

// IncFailure tracks failures by classifier bucket
func IncFailure(kind string) { failures.WithLabelValues(kind).Inc() }

func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }
