package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "maternity"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the default one. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	dateParams      *prometheus.CounterVec
	dateParamErrors prometheus.Counter
	pushdown        *prometheus.CounterVec
	candidates      prometheus.Histogram
	matches         prometheus.Histogram
}

// New builds the metric set. Runtime collectors are registered when
// withRuntime is true.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	sizeBuckets := prometheus.ExponentialBuckets(1, 4, 8)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and response status.",
		}, []string{"method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		dateParams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "date_params_total",
			Help:      "Parsed date search parameters by prefix.",
		}, []string{"prefix"}),
		dateParamErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "date_param_errors_total",
			Help:      "Date search parameters rejected by the parser.",
		}),
		pushdown: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "date_search_pushdown_total",
			Help:      "Date searches by whether storage bounds narrowed the candidate set.",
		}, []string{"narrowed"}),
		candidates: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "date_search_candidates",
			Help:      "Records fetched from storage per date search.",
			Buckets:   sizeBuckets,
		}),
		matches: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "date_search_matches",
			Help:      "Records kept after in-memory filtering per date search.",
			Buckets:   sizeBuckets,
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterCollector adds an external collector to the registry.
func (m *Metrics) RegisterCollector(c prometheus.Collector) {
	m.registry.MustRegister(c)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency. The status is taken from
// a returned echo.HTTPError because the error handler has not written the
// response yet.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) IncDateParam(prefix string) {
	if m == nil {
		return
	}
	m.dateParams.WithLabelValues(prefix).Inc()
}

func (m *Metrics) IncDateParamError() {
	if m == nil {
		return
	}
	m.dateParamErrors.Inc()
}

// ObserveDateSearch records one completed date search.
func (m *Metrics) ObserveDateSearch(narrowed bool, candidates, matches int) {
	if m == nil {
		return
	}
	m.pushdown.WithLabelValues(strconv.FormatBool(narrowed)).Inc()
	m.candidates.Observe(float64(candidates))
	m.matches.Observe(float64(matches))
}
