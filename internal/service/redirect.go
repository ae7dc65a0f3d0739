package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"shortlink/internal/metrics"
)

// Redirector resolves codes and records clicks in the background.
type Redirector struct {
	links     *LinkRegistry
	analytics *Analytics
	timeout   time.Duration
	log       *slog.Logger

	wg sync.WaitGroup
}

func NewRedirector(links *LinkRegistry, analytics *Analytics, timeout time.Duration, log *slog.Logger) *Redirector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Redirector{links: links, analytics: analytics, timeout: timeout, log: log}
}

// Resolve returns the target of code. On a hit the click is recorded
// asynchronously; its outcome never changes the returned redirect.
func (r *Redirector) Resolve(ctx context.Context, code string, cc ClickContext) (string, error) {
	target, err := r.links.Lookup(ctx, code)
	if err != nil {
		if IsNotFound(err) {
			metrics.Redirects.WithLabelValues("not_found").Inc()
		} else {
			metrics.Redirects.WithLabelValues("error").Inc()
		}
		return "", err
	}
	metrics.Redirects.WithLabelValues("found").Inc()

	r.wg.Add(1)
	go r.record(context.WithoutCancel(ctx), code, cc)
	return target, nil
}

func (r *Redirector) record(ctx context.Context, code string, cc ClickContext) {
	defer r.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.analytics.Record(ctx, code, cc); err != nil {
		metrics.AnalyticsFailures.Inc()
		sentry.CaptureException(err)
		r.log.Error("record click", "code", code, "err", err)
	}
}

// Wait blocks until in-flight click recordings finish.
func (r *Redirector) Wait() {
	r.wg.Wait()
}
