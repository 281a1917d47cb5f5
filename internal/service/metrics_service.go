package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService collects Prometheus metrics for the auth service. A nil
// *MetricsService is valid and records nothing, which keeps tests free of
// registry bookkeeping.
type MetricsService struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	loginAttempts       *prometheus.CounterVec
	magicLinksIssued    *prometheus.CounterVec
	magicLinkRedemption *prometheus.CounterVec
	tokenValidations    *prometheus.CounterVec
	goroutines          prometheus.GaugeFunc
}

// NewMetricsService constructs a MetricsService with its own registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_http_requests_total",
			Help: "Total HTTP requests processed, by method, path and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		magicLinksIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_magic_links_issued_total",
			Help: "Magic links issued by purpose.",
		}, []string{"purpose"}),
		magicLinkRedemption: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_magic_link_redemptions_total",
			Help: "Magic link redemption attempts by outcome.",
		}, []string{"outcome"}),
		tokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_validations_total",
			Help: "Access token validations by outcome.",
		}, []string{"outcome"}),
		goroutines: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "auth_goroutines",
			Help: "Number of live goroutines.",
		}, func() float64 { return float64(runtime.NumGoroutine()) }),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.loginAttempts,
		m.magicLinksIssued,
		m.magicLinkRedemption,
		m.tokenValidations,
		m.goroutines,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP request.
func (m *MetricsService) ObserveRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLogin counts a login attempt outcome.
func (m *MetricsService) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

// RecordMagicLinkIssued counts an issued magic link.
func (m *MetricsService) RecordMagicLinkIssued(purpose string) {
	if m == nil {
		return
	}
	m.magicLinksIssued.WithLabelValues(purpose).Inc()
}

// RecordMagicLinkRedemption counts a magic link redemption outcome.
func (m *MetricsService) RecordMagicLinkRedemption(outcome string) {
	if m == nil {
		return
	}
	m.magicLinkRedemption.WithLabelValues(outcome).Inc()
}

// RecordTokenValidation counts a token validation outcome.
func (m *MetricsService) RecordTokenValidation(outcome string) {
	if m == nil {
		return
	}
	m.tokenValidations.WithLabelValues(outcome).Inc()
}
