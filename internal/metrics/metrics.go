// Package metrics collects and exposes Prometheus metrics for the portal.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records reconciler and HTTP events as Prometheus metrics.
// It satisfies session.MetricsCollector.
type Collector struct {
	loadSuccess    prometheus.Counter
	loadFallback   prometheus.Counter
	loadDegraded   prometheus.Counter
	staleDiscard   prometheus.Counter
	signIn         prometheus.Counter
	signOut        prometheus.Counter
	autosaveFlush  prometheus.Counter
	httpStatus     *prometheus.CounterVec
	rateLimitDrops *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loadSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvfolio_portfolio_load_success_total",
			Help: "Portfolio loads served from a fresh store read.",
		}),
		loadFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvfolio_portfolio_load_fallback_total",
			Help: "Portfolio loads served from the offline cache after a store failure.",
		}),
		loadDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvfolio_portfolio_load_degraded_total",
			Help: "Portfolio loads that ended with no portfolio (store failed, no cache entry).",
		}),
		staleDiscard: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvfolio_session_stale_discard_total",
			Help: "Session updates discarded because a newer version was already applied.",
		}),
		signIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvfolio_sign_in_total",
			Help: "Successful sign-ins.",
		}),
		signOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvfolio_sign_out_total",
			Help: "Successful explicit sign-outs.",
		}),
		autosaveFlush: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvfolio_autosave_flush_total",
			Help: "Autosave flush cycles.",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvfolio_http_status_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		rateLimitDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvfolio_rate_limit_drops_total",
			Help: "Requests rejected by the per-tier rate limiter.",
		}, []string{"tier"}),
	}

	reg.MustRegister(
		c.loadSuccess,
		c.loadFallback,
		c.loadDegraded,
		c.staleDiscard,
		c.signIn,
		c.signOut,
		c.autosaveFlush,
		c.httpStatus,
		c.rateLimitDrops,
	)

	return c
}

// RecordLoadSuccess counts a fresh portfolio load.
func (c *Collector) RecordLoadSuccess() { c.loadSuccess.Inc() }

// RecordLoadFallback counts a cache-fallback load.
func (c *Collector) RecordLoadFallback() { c.loadFallback.Inc() }

// RecordLoadDegraded counts a load that ended with no portfolio.
func (c *Collector) RecordLoadDegraded() { c.loadDegraded.Inc() }

// RecordStaleDiscard counts a superseded session update.
func (c *Collector) RecordStaleDiscard() { c.staleDiscard.Inc() }

// RecordSignIn counts a successful sign-in.
func (c *Collector) RecordSignIn() { c.signIn.Inc() }

// RecordSignOut counts a successful explicit sign-out.
func (c *Collector) RecordSignOut() { c.signOut.Inc() }

// RecordAutosaveFlush counts an autosave flush cycle.
func (c *Collector) RecordAutosaveFlush() { c.autosaveFlush.Inc() }

// RecordHTTPStatus counts an HTTP response by status code.
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRateLimitDrop counts a request rejected by the rate limiter.
func (c *Collector) RecordRateLimitDrop(tier string) {
	c.rateLimitDrops.WithLabelValues(tier).Inc()
}

// Handler returns the Prometheus scrape handler for the gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
