package model

import "time"

// Anonymous is the owner recorded on links created without a user id.
const Anonymous = "anonymous"

// HistoryLimit is the default number of click events kept per link.
const HistoryLimit = 100

type LinkRecord struct {
	ID          string    `json:"id"`
	ShortID     string    `json:"shortId"`
	OriginalURL string    `json:"originalUrl"`
	ShortURL    string    `json:"shortUrl"`
	UserID      string    `json:"userId"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Owned reports whether the link belongs to a registered user.
func (l *LinkRecord) Owned() bool {
	return l.UserID != "" && l.UserID != Anonymous
}

type ClickEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Country   string    `json:"country"`
	Device    string    `json:"device"`
	Referrer  string    `json:"referrer"`
	UserAgent string    `json:"userAgent"`
}

// History is a chronological click log bounded from the front.
type History []ClickEvent

// Push appends e and drops the oldest entries so that at most limit remain.
// A limit <= 0 leaves the history unbounded.
func (h History) Push(e ClickEvent, limit int) History {
	h = append(h, e)
	return h.Trim(limit)
}

// Trim keeps the newest limit entries.
func (h History) Trim(limit int) History {
	if limit <= 0 || len(h) <= limit {
		return h
	}
	out := make(History, limit)
	copy(out, h[len(h)-limit:])
	return out
}

type AnalyticsRecord struct {
	Created      time.Time        `json:"created"`
	Clicks       int64            `json:"clicks"`
	Countries    map[string]int64 `json:"countries"`
	Devices      map[string]int64 `json:"devices"`
	Referrers    map[string]int64 `json:"referrers"`
	ClickHistory History          `json:"clickHistory"`
}

// NewAnalytics returns the zero state of a link's analytics.
func NewAnalytics(created time.Time) *AnalyticsRecord {
	return &AnalyticsRecord{
		Created:      created,
		Countries:    map[string]int64{},
		Devices:      map[string]int64{},
		Referrers:    map[string]int64{},
		ClickHistory: History{},
	}
}

// Normalize replaces nil maps and history left by hand-written or older records.
func (a *AnalyticsRecord) Normalize() {
	if a.Countries == nil {
		a.Countries = map[string]int64{}
	}
	if a.Devices == nil {
		a.Devices = map[string]int64{}
	}
	if a.Referrers == nil {
		a.Referrers = map[string]int64{}
	}
	if a.ClickHistory == nil {
		a.ClickHistory = History{}
	}
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public returns a copy safe to send to clients.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}
