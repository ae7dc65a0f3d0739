package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"shortlink/internal/metrics"
	"shortlink/internal/model"
	"shortlink/internal/repository"
)

const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
	DeviceUnknown = "Unknown"

	ReferrerDirect = "Direct"
	CountryUnknown = "Unknown"

	maxUserAgent = 200
)

// Checked in order; mobile agents often also carry desktop OS names.
var devicePatterns = []struct {
	re     *regexp.Regexp
	device string
}{
	{regexp.MustCompile(`(?i)Mobile|Android|iPhone|iPod|BlackBerry|IEMobile|Opera Mini`), DeviceMobile},
	{regexp.MustCompile(`(?i)iPad`), DeviceTablet},
	{regexp.MustCompile(`(?i)Windows|Macintosh|Linux|X11`), DeviceDesktop},
}

// ClassifyDevice maps a User-Agent to a device category.
func ClassifyDevice(ua string) string {
	for _, p := range devicePatterns {
		if p.re.MatchString(ua) {
			return p.device
		}
	}
	return DeviceUnknown
}

// ReferrerDomain returns the host of an absolute referer URL, or "Direct".
func ReferrerDomain(referer string) string {
	if referer == "" {
		return ReferrerDirect
	}
	u, err := url.Parse(referer)
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return ReferrerDirect
	}
	return u.Hostname()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ClickContext is what a redirect request tells us about the visitor.
type ClickContext struct {
	Country   string
	UserAgent string
	Referer   string
}

// Analytics aggregates per-link click statistics.
type Analytics struct {
	store        repository.Store // analytics namespace, keyed by code
	links        repository.Store // url namespace, for the clicks mirror
	historyLimit int
	now          func() time.Time
	log          *slog.Logger
}

func NewAnalytics(store, links repository.Store, historyLimit int, now func() time.Time, log *slog.Logger) *Analytics {
	if historyLimit <= 0 {
		historyLimit = model.HistoryLimit
	}
	return &Analytics{store: store, links: links, historyLimit: historyLimit, now: now, log: log}
}

func (a *Analytics) put(ctx context.Context, code string, rec *model.AnalyticsRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return a.store.Put(ctx, code, string(b), 0)
}

// Initialize writes a zeroed record, replacing whatever was there.
func (a *Analytics) Initialize(ctx context.Context, code string) error {
	if err := a.put(ctx, code, model.NewAnalytics(a.now())); err != nil {
		return unavailable("failed to initialize analytics", err)
	}
	return nil
}

func (a *Analytics) Get(ctx context.Context, code string) (*model.AnalyticsRecord, error) {
	raw, err := a.store.Get(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrNotFound, "URL not found")
	}
	if err != nil {
		return nil, unavailable("failed to load analytics", err)
	}
	var rec model.AnalyticsRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	rec.Normalize()
	return &rec, nil
}

// Record attributes one redirect to code and returns the new click total.
// A missing record is treated as zeroed.
func (a *Analytics) Record(ctx context.Context, code string, cc ClickContext) (int64, error) {
	country := cc.Country
	if country == "" {
		country = CountryUnknown
	}
	ev := model.ClickEvent{
		Timestamp: a.now(),
		Country:   country,
		Device:    ClassifyDevice(cc.UserAgent),
		Referrer:  ReferrerDomain(cc.Referer),
		UserAgent: truncate(cc.UserAgent, maxUserAgent),
	}

	clicks, err := a.apply(ctx, code, func(rec *model.AnalyticsRecord) {
		rec.Clicks++
		rec.Countries[ev.Country]++
		rec.Devices[ev.Device]++
		rec.Referrers[ev.Referrer]++
		rec.ClickHistory = rec.ClickHistory.Push(ev, a.historyLimit)
	})
	if err != nil {
		return 0, unavailable("failed to record click", err)
	}
	metrics.ClicksRecorded.Inc()

	if err := a.mirrorClicks(ctx, code, clicks); err != nil {
		a.log.Warn("mirror clicks", "code", code, "err", err)
	}
	return clicks, nil
}

// apply is the single increment-and-persist step. Its atomicity is that of
// the store: backends implementing repository.Updater lose no updates, the
// rest fall back to read-modify-write where racing clicks can be lost.
func (a *Analytics) apply(ctx context.Context, code string, mutate func(*model.AnalyticsRecord)) (int64, error) {
	var clicks int64
	err := repository.Update(ctx, a.store, code, func(cur string, found bool) (string, error) {
		rec := model.NewAnalytics(a.now())
		if found {
			if err := json.Unmarshal([]byte(cur), rec); err != nil {
				return "", err
			}
			rec.Normalize()
		}
		mutate(rec)
		clicks = rec.Clicks
		b, err := json.Marshal(rec)
		return string(b), err
	})
	return clicks, err
}

// Reset replaces the record with a zeroed one and zeroes the link's mirror.
func (a *Analytics) Reset(ctx context.Context, code string) error {
	if err := a.put(ctx, code, model.NewAnalytics(a.now())); err != nil {
		return unavailable("failed to reset analytics", err)
	}
	if err := a.mirrorClicks(ctx, code, 0); err != nil {
		a.log.Warn("mirror clicks", "code", code, "err", err)
	}
	return nil
}

// Delete drops the record.
func (a *Analytics) Delete(ctx context.Context, code string) error {
	return a.store.Delete(ctx, code)
}

// mirrorClicks copies the click total onto the link record if it exists.
func (a *Analytics) mirrorClicks(ctx context.Context, code string, clicks int64) error {
	return repository.Update(ctx, a.links, linkDataKey(code), func(cur string, found bool) (string, error) {
		if !found {
			return "", repository.ErrSkipWrite
		}
		var rec model.LinkRecord
		if err := json.Unmarshal([]byte(cur), &rec); err != nil {
			return "", err
		}
		rec.Clicks = clicks
		b, err := json.Marshal(rec)
		return string(b), err
	})
}
