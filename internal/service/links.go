package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"shortlink/internal/metrics"
	"shortlink/internal/model"
	"shortlink/internal/repository"
	"shortlink/internal/util"
)

func linkURLKey(code string) string  { return "url:" + code }
func linkDataKey(code string) string { return "urldata:" + code }

type CreateParams struct {
	URL        string
	CustomCode string
	OwnerID    string
	// BaseURL is the scheme://host the short URL is built on.
	BaseURL string
}

type CreateResult struct {
	ShortID  string `json:"shortId"`
	ShortURL string `json:"shortUrl"`
}

// LinkRegistry owns short-link records and their ownership index.
type LinkRegistry struct {
	store     repository.Store
	analytics *Analytics
	index     *OwnershipIndex
	gen       util.CodeGenerator
	attempts  int
	now       func() time.Time
	log       *slog.Logger
}

func NewLinkRegistry(store repository.Store, analytics *Analytics, index *OwnershipIndex, gen util.CodeGenerator, attempts int, now func() time.Time, log *slog.Logger) *LinkRegistry {
	if attempts <= 0 {
		attempts = 32
	}
	return &LinkRegistry{
		store: store, analytics: analytics, index: index, gen: gen,
		attempts: attempts, now: now, log: log,
	}
}

// claim reserves the code->URL mapping. On stores with exclusive create the
// claim is atomic; otherwise it is an existence check followed by a write
// and two racing creators of the same code both win, the last write sticking.
func (l *LinkRegistry) claim(ctx context.Context, code, url string) (bool, error) {
	return repository.PutIfAbsent(ctx, l.store, linkURLKey(code), url, 0)
}

func (l *LinkRegistry) Create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	url := strings.TrimSpace(p.URL)
	if url == "" {
		return nil, newError(ErrInvalidInput, "URL is required")
	}
	if !util.ValidateURL(url) {
		return nil, newError(ErrInvalidInput, "URL is invalid")
	}

	code := p.CustomCode
	if code != "" {
		ok, err := l.claim(ctx, code, url)
		if err != nil {
			return nil, unavailable("failed to shorten URL", err)
		}
		if !ok {
			return nil, newError(ErrConflict, "Custom code already in use")
		}
	} else {
		var err error
		if code, err = l.generate(ctx, url); err != nil {
			return nil, err
		}
	}

	owner := p.OwnerID
	if owner == "" {
		owner = model.Anonymous
	}
	rec := model.LinkRecord{
		ID:          uuid.NewString(),
		ShortID:     code,
		OriginalURL: url,
		ShortURL:    strings.TrimRight(p.BaseURL, "/") + "/" + code,
		UserID:      owner,
		CreatedAt:   l.now(),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := l.store.Put(ctx, linkDataKey(code), string(b), 0); err != nil {
		return nil, unavailable("failed to shorten URL", err)
	}

	if p.OwnerID != "" {
		if err := l.index.Add(ctx, p.OwnerID, code); err != nil {
			return nil, unavailable("failed to shorten URL", err)
		}
	}
	if err := l.analytics.Initialize(ctx, code); err != nil {
		return nil, err
	}

	metrics.LinksCreated.Inc()
	l.log.Info("created short url", "code", code, "owner", owner)
	return &CreateResult{ShortID: code, ShortURL: rec.ShortURL}, nil
}

func (l *LinkRegistry) generate(ctx context.Context, url string) (string, error) {
	for attempt := 0; attempt < l.attempts; attempt++ {
		code, err := l.gen.Generate()
		if err != nil {
			return "", err
		}
		ok, err := l.claim(ctx, code, url)
		if err != nil {
			return "", unavailable("failed to shorten URL", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", &Error{Kind: ErrExhaustedRetries, Message: "failed to generate a unique short code"}
}

// Lookup returns the URL a code redirects to.
func (l *LinkRegistry) Lookup(ctx context.Context, code string) (string, error) {
	url, err := l.store.Get(ctx, linkURLKey(code))
	if errors.Is(err, repository.ErrNotFound) {
		return "", newError(ErrNotFound, "Not Found")
	}
	if err != nil {
		return "", unavailable("lookup failed", err)
	}
	return url, nil
}

// Get loads the full record of a code.
func (l *LinkRegistry) Get(ctx context.Context, code string) (*model.LinkRecord, error) {
	raw, err := l.store.Get(ctx, linkDataKey(code))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrNotFound, "Link not found")
	}
	if err != nil {
		return nil, unavailable("failed to load link", err)
	}
	var rec model.LinkRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListForOwner returns the owner's links newest first. Codes whose records
// are gone are skipped; the live analytics total wins over the mirror.
func (l *LinkRegistry) ListForOwner(ctx context.Context, owner string) ([]model.LinkRecord, error) {
	if owner == "" {
		return nil, newError(ErrInvalidInput, "User ID is required")
	}
	codes, err := l.index.Codes(ctx, owner)
	if err != nil {
		return nil, unavailable("failed to get user links", err)
	}

	links := make([]model.LinkRecord, 0, len(codes))
	for _, code := range codes {
		rec, err := l.Get(ctx, code)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if a, err := l.analytics.Get(ctx, code); err == nil {
			rec.Clicks = a.Clicks
		}
		links = append(links, *rec)
	}
	return links, nil
}

// Delete removes a link. Owned links may only be deleted by their owner,
// except that a request without a requester id is allowed through.
func (l *LinkRegistry) Delete(ctx context.Context, code, requester string) error {
	rec, err := l.Get(ctx, code)
	if err != nil {
		return err
	}
	if requester != "" && rec.Owned() && rec.UserID != requester {
		return newError(ErrUnauthorized, "Unauthorized")
	}

	if err := l.store.Delete(ctx, linkURLKey(code)); err != nil {
		return unavailable("failed to delete link", err)
	}
	if err := l.store.Delete(ctx, linkDataKey(code)); err != nil {
		return unavailable("failed to delete link", err)
	}
	if err := l.analytics.Delete(ctx, code); err != nil {
		return unavailable("failed to delete link", err)
	}
	if rec.Owned() {
		if err := l.index.Remove(ctx, rec.UserID, code); err != nil {
			l.log.Warn("remove from ownership index", "code", code, "owner", rec.UserID, "err", err)
		}
	}
	l.log.Info("deleted short url", "code", code)
	return nil
}
