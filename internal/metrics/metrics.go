// Package metrics собирает метрики Prometheus сервиса подписок.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Collector хранит собственный реестр и векторы метрик.
type Collector struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	billingRequests *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New создаёт Collector и регистрирует метрики в новом реестре.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Lifecycle operations by action and result",
		}, []string{"action", "result"}),
		billingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_requests_total",
			Help: "Billing record requests by result",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		c.transitions,
		c.billingRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveTransition учитывает операцию жизненного цикла.
func (c *Collector) ObserveTransition(action models.Action, result string) {
	c.transitions.WithLabelValues(string(action), result).Inc()
}

// ObserveBillingRequest учитывает отправку запроса в биллинг.
func (c *Collector) ObserveBillingRequest(result string) {
	c.billingRequests.WithLabelValues(result).Inc()
}

// Handler отдаёт метрики реестра.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware измеряет длительность запросов. Маршрут берётся из шаблона chi,
// чтобы идентификаторы не раздували число серий.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
