// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortlink_links_created_total",
		Help: "Short links created.",
	})

	Redirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_redirects_total",
		Help: "Redirect lookups by result (found, not_found, error).",
	}, []string{"result"})

	ClicksRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortlink_clicks_recorded_total",
		Help: "Clicks written to analytics.",
	})

	AnalyticsFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortlink_analytics_failures_total",
		Help: "Best-effort analytics writes that failed.",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shortlink_http_request_duration_seconds",
		Help:    "HTTP request latency by route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "code"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware observes request latency labelled by the matched mux route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		requestDuration.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
