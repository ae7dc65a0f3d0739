package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortlink/internal/model"
)

func sum(m map[string]int64) int64 {
	var n int64
	for _, v := range m {
		n += v
	}
	return n
}

func TestClassifyDevice(t *testing.T) {
	t.Parallel()
	cases := []struct{ ua, want string }{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", DeviceMobile},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", DeviceMobile},
		{"Opera/9.80 (J2ME/MIDP; Opera Mini/9.80; U; en) Presto/2.5.25", DeviceMobile},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", DeviceTablet},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", DeviceDesktop},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", DeviceDesktop},
		{"Mozilla/5.0 (X11; Ubuntu; rv:120.0) Gecko/20100101 Firefox/120.0", DeviceDesktop},
		{"mozilla/5.0 (windows nt 10.0)", DeviceDesktop},
		{"curl/8.4.0", DeviceUnknown},
		{"", DeviceUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyDevice(c.ua), c.ua)
	}
}

func TestReferrerDomain(t *testing.T) {
	t.Parallel()
	cases := []struct{ referer, want string }{
		{"", ReferrerDirect},
		{"https://www.google.com/search?q=x", "www.google.com"},
		{"http://news.ycombinator.com:8080/", "news.ycombinator.com"},
		{"not a url", ReferrerDirect},
		{"/relative/path", ReferrerDirect},
		{"://broken", ReferrerDirect},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ReferrerDomain(c.referer), c.referer)
	}
}

func TestRecordBreakdownsSumToClicks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	code := f.create(t, "https://example.com", "stats", "")

	visitors := []ClickContext{
		{Country: "US", UserAgent: "Mozilla/5.0 (iPhone)", Referer: "https://t.co/abc"},
		{Country: "DE", UserAgent: "Mozilla/5.0 (Windows NT 10.0)"},
		{UserAgent: "curl/8.4.0", Referer: "https://t.co/other"},
		{Country: "US", UserAgent: "Mozilla/5.0 (iPad)"},
	}
	const rounds = 5
	for i := 0; i < rounds; i++ {
		for j, v := range visitors {
			clicks, err := f.svc.Analytics.Record(ctx, code, v)
			require.NoError(t, err)
			assert.EqualValues(t, i*len(visitors)+j+1, clicks)
		}
	}

	a, err := f.svc.Analytics.Get(ctx, code)
	require.NoError(t, err)
	n := int64(rounds * len(visitors))
	assert.Equal(t, n, a.Clicks)
	assert.Equal(t, n, sum(a.Countries))
	assert.Equal(t, n, sum(a.Devices))
	assert.Equal(t, n, sum(a.Referrers))
	assert.Len(t, a.ClickHistory, int(n))

	assert.Equal(t, map[string]int64{"US": 10, "DE": 5, CountryUnknown: 5}, a.Countries)
	assert.Equal(t, map[string]int64{DeviceMobile: 5, DeviceDesktop: 5, DeviceUnknown: 5, DeviceTablet: 5}, a.Devices)
	assert.Equal(t, map[string]int64{"t.co": 10, ReferrerDirect: 10}, a.Referrers)

	rec, err := f.svc.Links.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, n, rec.Clicks)
}

func TestRecordHistoryIsBounded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	code := f.create(t, "https://example.com", "", "")

	for i := 0; i < 150; i++ {
		_, err := f.svc.Analytics.Record(ctx, code, ClickContext{UserAgent: fmt.Sprintf("agent-%03d", i)})
		require.NoError(t, err)
	}

	a, err := f.svc.Analytics.Get(ctx, code)
	require.NoError(t, err)
	assert.EqualValues(t, 150, a.Clicks)
	require.Len(t, a.ClickHistory, model.HistoryLimit)
	for i, ev := range a.ClickHistory {
		assert.Equal(t, fmt.Sprintf("agent-%03d", i+50), ev.UserAgent)
		if i > 0 {
			assert.True(t, ev.Timestamp.After(a.ClickHistory[i-1].Timestamp))
		}
	}
}

func TestRecordCustomHistoryLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(_ *Stores, o *Options) { o.HistoryLimit = 3 })
	ctx := context.Background()
	code := f.create(t, "https://example.com", "", "")

	for i := 0; i < 5; i++ {
		_, err := f.svc.Analytics.Record(ctx, code, ClickContext{})
		require.NoError(t, err)
	}
	a, err := f.svc.Analytics.Get(ctx, code)
	require.NoError(t, err)
	assert.EqualValues(t, 5, a.Clicks)
	assert.Len(t, a.ClickHistory, 3)
}

func TestRecordTruncatesUserAgent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	code := f.create(t, "https://example.com", "", "")

	ua := "Mozilla/5.0 (Windows NT 10.0) " + strings.Repeat("é", 300)
	_, err := f.svc.Analytics.Record(ctx, code, ClickContext{UserAgent: ua})
	require.NoError(t, err)

	a, err := f.svc.Analytics.Get(ctx, code)
	require.NoError(t, err)
	require.Len(t, a.ClickHistory, 1)
	ev := a.ClickHistory[0]
	assert.Equal(t, 200, len([]rune(ev.UserAgent)))
	assert.True(t, strings.HasPrefix(ua, ev.UserAgent))
	assert.Equal(t, DeviceDesktop, ev.Device)
	assert.Equal(t, CountryUnknown, ev.Country)
	assert.Equal(t, ReferrerDirect, ev.Referrer)
}

func TestRecordWithoutRecordStartsFromZero(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	clicks, err := f.svc.Analytics.Record(ctx, "ghost", ClickContext{Country: "FR"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, clicks)

	a, err := f.svc.Analytics.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"FR": 1}, a.Countries)
	// no link record appears for a bare analytics entry
	assert.Empty(t, f.mem.Keys("urls:"))
}

func TestGetAnalyticsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.svc.Analytics.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "URL not found", Message(err))
}

func TestGetAnalyticsFillsMissingFields(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mem.Put(ctx, "analytics:legacy", `{"clicks":3}`, 0))

	a, err := f.svc.Analytics.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.EqualValues(t, 3, a.Clicks)
	assert.NotNil(t, a.Countries)
	assert.NotNil(t, a.ClickHistory)
}

func TestResetAnalytics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	code := f.create(t, "https://example.com", "", "u1")

	before, err := f.svc.Analytics.Get(ctx, code)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := f.svc.Analytics.Record(ctx, code, ClickContext{Country: "US"})
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Analytics.Reset(ctx, code))

	a, err := f.svc.Analytics.Get(ctx, code)
	require.NoError(t, err)
	assert.Zero(t, a.Clicks)
	assert.Empty(t, a.Countries)
	assert.Empty(t, a.Devices)
	assert.Empty(t, a.Referrers)
	assert.Empty(t, a.ClickHistory)
	assert.True(t, a.Created.After(before.Created))

	rec, err := f.svc.Links.Get(ctx, code)
	require.NoError(t, err)
	assert.Zero(t, rec.Clicks)

	got, err := f.svc.Links.Lookup(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got)
}

func TestRecordConcurrentAtomicStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	code := f.create(t, "https://example.com", "", "")

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Analytics.Record(ctx, code, ClickContext{Country: "US"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	a, err := f.svc.Analytics.Get(ctx, code)
	require.NoError(t, err)
	assert.EqualValues(t, n, a.Clicks)
	assert.EqualValues(t, n, a.Countries["US"])
	assert.Len(t, a.ClickHistory, n)
}

func TestRecordConcurrentFallbackStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(st *Stores, _ *Options) { st.Analytics = basicStore{st.Analytics} })
	ctx := context.Background()
	code := f.create(t, "https://example.com", "", "")

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Analytics.Record(ctx, code, ClickContext{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// racing read-modify-write cycles may drop clicks but never invent them
	a, err := f.svc.Analytics.Get(ctx, code)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, a.Clicks, int64(1))
	assert.LessOrEqual(t, a.Clicks, int64(n))
	assert.Equal(t, a.Clicks, sum(a.Devices))
	assert.Len(t, a.ClickHistory, int(a.Clicks))
}

func TestRecordStoreDown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(st *Stores, _ *Options) { st.Analytics = downStore{} })

	_, err := f.svc.Analytics.Record(context.Background(), "x", ClickContext{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, errStoreDown)
}
