package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryPush(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var h History
	for i := 0; i < 150; i++ {
		h = h.Push(ClickEvent{Timestamp: base.Add(time.Duration(i) * time.Second)}, HistoryLimit)
		require.LessOrEqual(t, len(h), HistoryLimit)
	}

	require.Len(t, h, HistoryLimit)
	assert.Equal(t, base.Add(50*time.Second), h[0].Timestamp)
	assert.Equal(t, base.Add(149*time.Second), h[len(h)-1].Timestamp)
	for i := 1; i < len(h); i++ {
		assert.True(t, h[i-1].Timestamp.Before(h[i].Timestamp))
	}
}

func TestHistoryTrim(t *testing.T) {
	h := History{{Country: "a"}, {Country: "b"}, {Country: "c"}}

	assert.Equal(t, h, h.Trim(0))
	assert.Equal(t, h, h.Trim(5))

	trimmed := h.Trim(2)
	assert.Equal(t, History{{Country: "b"}, {Country: "c"}}, trimmed)

	trimmed[0].Country = "changed"
	assert.Equal(t, "b", h[1].Country, "trim must not alias the source")
}

func TestLinkRecordOwned(t *testing.T) {
	assert.False(t, (&LinkRecord{}).Owned())
	assert.False(t, (&LinkRecord{UserID: Anonymous}).Owned())
	assert.True(t, (&LinkRecord{UserID: "u1"}).Owned())
}

func TestNewAnalyticsAndNormalize(t *testing.T) {
	now := time.Now()
	a := NewAnalytics(now)
	assert.Equal(t, now, a.Created)
	assert.Zero(t, a.Clicks)
	assert.NotNil(t, a.Countries)
	assert.NotNil(t, a.ClickHistory)

	var empty AnalyticsRecord
	empty.Normalize()
	assert.NotNil(t, empty.Countries)
	assert.NotNil(t, empty.Devices)
	assert.NotNil(t, empty.Referrers)
	assert.NotNil(t, empty.ClickHistory)
}

func TestUserPublic(t *testing.T) {
	u := User{ID: "1", PasswordHash: "secret"}
	assert.Empty(t, u.Public().PasswordHash)
	assert.Equal(t, "secret", u.PasswordHash)
}
