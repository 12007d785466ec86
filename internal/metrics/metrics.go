// Package metrics expone los contadores Prometheus del servicio.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mbti_story"

// Metrics agrupa los colectores. Un *Metrics nil es valido y no registra nada,
// asi los servicios no necesitan chequear si hay metricas configuradas.
type Metrics struct {
	registry *prometheus.Registry

	llmGenerations *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	imageJobs      *prometheus.CounterVec
	imageCache     *prometheus.CounterVec
	chatTurns      prometheus.Counter
	results        *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// Option configura Metrics.
type Option func(*options)

type options struct {
	registry *prometheus.Registry
	runtime  bool
}

// WithRegistry usa un registry propio (util en tests).
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithRuntimeCollectors agrega metricas de proceso y del runtime de Go.
func WithRuntimeCollectors() Option {
	return func(o *options) { o.runtime = true }
}

func New(opts ...Option) *Metrics {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if o.runtime {
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	auto := promauto.With(o.registry)

	return &Metrics{
		registry: o.registry,
		llmGenerations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_generations_total",
			Help:      "Text generation attempts by provider tier and outcome",
		}, []string{"provider", "outcome"}),
		llmLatency: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_generation_seconds",
			Help:      "Latency of text generation attempts by provider tier",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		imageJobs: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_jobs_total",
			Help:      "Image generation jobs by outcome",
		}, []string{"kind", "outcome"}),
		imageCache: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_cache_total",
			Help:      "Image requests served from the stored data URL or regenerated",
		}, []string{"kind", "result"}),
		chatTurns: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns processed",
		}),
		results: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Results assembled by flow (mbti, detail)",
		}, []string{"flow"}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// ObserveLLM registra un intento de un tier del proveedor de texto.
func (m *Metrics) ObserveLLM(provider string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.llmGenerations.WithLabelValues(provider, outcome).Inc()
	m.llmLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveImageJob registra el final de un job de imagen (done, error, timeout).
func (m *Metrics) ObserveImageJob(kind, outcome string) {
	if m == nil {
		return
	}
	m.imageJobs.WithLabelValues(kind, outcome).Inc()
}

// ObserveImageCache registra si una imagen se sirvio desde el resultado guardado.
func (m *Metrics) ObserveImageCache(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.imageCache.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) IncChatTurn() {
	if m == nil {
		return
	}
	m.chatTurns.Inc()
}

func (m *Metrics) IncResult(flow string) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(flow).Inc()
}

// ObserveHTTP registra una respuesta HTTP ya completada.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Registry devuelve el registry subyacente.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler expone el formato de texto de Prometheus.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
