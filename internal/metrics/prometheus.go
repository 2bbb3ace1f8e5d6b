package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"security-gate/internal/domain"
)

const namespace = "security_gate"

// Recorder implementa domain.MetricsRecorder com Prometheus.
// Cada Recorder possui seu próprio registry.
type Recorder struct {
	registry       *prometheus.Registry
	requestsTotal  *prometheus.CounterVec
	issuesTotal    *prometheus.CounterVec
	processingTime *prometheus.HistogramVec
}

// NewRecorder cria o recorder e registra os coletores padrão de processo e runtime
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled by the gate, by outcome and status code",
		}, []string{"outcome", "status"}),
		issuesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_issues_total",
			Help:      "Content validation issues detected, by kind",
		}, []string{"kind"}),
		processingTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Time from gate entry to response finalization",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

// ObserveRequest registra o desfecho de uma requisição
func (r *Recorder) ObserveRequest(outcome string, status int, duration time.Duration) {
	r.requestsTotal.WithLabelValues(outcome, strconv.Itoa(status)).Inc()
	r.processingTime.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveIssue registra um issue de validação
func (r *Recorder) ObserveIssue(kind domain.IssueKind) {
	r.issuesTotal.WithLabelValues(string(kind)).Inc()
}

// TrackClients expõe a quantidade de clientes rastreados pelo store
func (r *Recorder) TrackClients(store domain.ClientWindowStore) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_clients",
		Help:      "Clients with window state held in memory",
	}, func() float64 {
		return float64(store.Len())
	}))
}

// TrackDroppedEvents expõe eventos descartados pela fila assíncrona
func (r *Recorder) TrackDroppedEvents(dropped func() int64) {
	r.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Security events dropped because the sink queue was full",
	}, func() float64 {
		return float64(dropped())
	}))
}

// Handler retorna o handler HTTP no formato de exposição do Prometheus
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry retorna o registry subjacente
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
