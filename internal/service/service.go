package service

import (
	"log/slog"
	"time"

	"shortlink/internal/mailer"
	"shortlink/internal/repository"
	"shortlink/internal/util"
)

// Stores are the logical namespaces the service works on.
type Stores struct {
	URLs      repository.Store // url:, urldata:, user:{id}:urls
	Analytics repository.Store // {code}
	Users     repository.Store // accounts
}

// NamespacedStores splits one backend into the three namespaces.
func NamespacedStores(s repository.Store) Stores {
	return Stores{
		URLs:      repository.Namespace(s, "urls:"),
		Analytics: repository.Namespace(s, "analytics:"),
		Users:     repository.Namespace(s, "users:"),
	}
}

type Options struct {
	CodeLength       int
	CodeAttempts     int
	HistoryLimit     int
	AnalyticsTimeout time.Duration
	AppURL           string

	Generator util.CodeGenerator // defaults to nanoid codes of CodeLength
	Hasher    Hasher             // defaults to bcrypt
	Mailer    mailer.Mailer      // defaults to logging mail
	Now       func() time.Time
	Logger    *slog.Logger
}

type Service struct {
	Links     *LinkRegistry
	Analytics *Analytics
	Redirects *Redirector
	Accounts  *Accounts
}

func NewService(st Stores, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Generator == nil {
		opts.Generator = util.NewCodeGenerator(opts.CodeLength)
	}
	if opts.Hasher == nil {
		opts.Hasher = BcryptHasher{}
	}
	if opts.Mailer == nil {
		opts.Mailer = mailer.Log{Logger: opts.Logger}
	}
	log := opts.Logger

	analytics := NewAnalytics(st.Analytics, st.URLs, opts.HistoryLimit, opts.Now, log.With("component", "analytics"))
	links := NewLinkRegistry(st.URLs, analytics, NewOwnershipIndex(st.URLs), opts.Generator,
		opts.CodeAttempts, opts.Now, log.With("component", "links"))
	return &Service{
		Links:     links,
		Analytics: analytics,
		Redirects: NewRedirector(links, analytics, opts.AnalyticsTimeout, log.With("component", "redirect")),
		Accounts: NewAccounts(st.Users, opts.Hasher, opts.Mailer, opts.AppURL, opts.Now,
			log.With("component", "accounts")),
	}
}
