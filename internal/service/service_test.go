package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"shortlink/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

// fixedCodes hands out codes in order, repeating the last one.
type fixedCodes struct {
	mu    sync.Mutex
	codes []string
}

func (g *fixedCodes) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.codes[0]
	if len(g.codes) > 1 {
		g.codes = g.codes[1:]
	}
	return c, nil
}

// basicStore hides the optional capabilities of a store so the two-step
// fallbacks are exercised.
type basicStore struct{ repository.Store }

var errStoreDown = errors.New("store down")

type downStore struct{}

func (downStore) Get(context.Context, string) (string, error) { return "", errStoreDown }
func (downStore) Put(context.Context, string, string, time.Duration) error {
	return errStoreDown
}
func (downStore) Delete(context.Context, string) error { return errStoreDown }

type fixture struct {
	svc    *Service
	mem    *repository.Memory
	clock  *testClock
	mailer *fakeMailer
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, mutate ...func(*Stores, *Options)) *fixture {
	t.Helper()
	mem := repository.NewMemory()
	clock := newTestClock()
	mail := &fakeMailer{}
	st := NamespacedStores(mem)
	opts := Options{
		AppURL: "http://app.test",
		Hasher: BcryptHasher{Cost: bcrypt.MinCost},
		Mailer: mail,
		Now:    clock.Now,
		Logger: discardLogger(),
	}
	for _, m := range mutate {
		m(&st, &opts)
	}
	return &fixture{svc: NewService(st, opts), mem: mem, clock: clock, mailer: mail}
}

func (f *fixture) create(t *testing.T, url, custom, owner string) string {
	t.Helper()
	res, err := f.svc.Links.Create(context.Background(), CreateParams{
		URL: url, CustomCode: custom, OwnerID: owner, BaseURL: "http://sho.rt",
	})
	require.NoError(t, err)
	return res.ShortID
}
