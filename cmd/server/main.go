package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/handlers"

	"shortlink/internal/config"
	"shortlink/internal/handler"
	"shortlink/internal/mailer"
	"shortlink/internal/repository"
	"shortlink/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logOut := cfg.LogWriter()
	logger := cfg.NewLogger(logOut)
	slog.SetDefault(logger)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Error("sentry init failed", "err", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	stores := service.NamespacedStores(backend)
	if cfg.CacheSize > 0 {
		stores.URLs = repository.Cached(stores.URLs, cfg.CacheSize, cfg.CacheTTL)
	}

	var mail mailer.Mailer = mailer.Log{Logger: logger.With("component", "mailer")}
	if cfg.SMTPAddr != "" {
		mail = mailer.NewSMTP(cfg.SMTPAddr, cfg.SMTPHost, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	}

	svc := service.NewService(stores, service.Options{
		CodeLength:       cfg.CodeLength,
		CodeAttempts:     cfg.CodeAttempts,
		HistoryLimit:     cfg.HistoryLimit,
		AnalyticsTimeout: cfg.AnalyticsTimeout,
		AppURL:           cfg.AppURL,
		Hasher:           service.BcryptHasher{Cost: cfg.BcryptCost},
		Mailer:           mail,
		Logger:           logger,
	})

	limiter := handler.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	h := handler.NewHandler(svc, handler.Options{
		BaseURL:       cfg.BaseURL,
		CountryHeader: cfg.CountryHeader,
		TrustProxy:    cfg.TrustProxy,
		Sentry:        cfg.SentryDSN != "",
		RateLimiter:   limiter,
		Logger:        logger.With("component", "http"),
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handlers.CombinedLoggingHandler(logOut, h.Routes()),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go every(ctx, time.Minute, func() {
		if n := limiter.Prune(10 * time.Minute); n > 0 {
			logger.Debug("pruned rate limiter", "visitors", n)
		}
	})

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	svc.Redirects.Wait()
	logger.Info("server gracefully stopped")
}

// openStore connects the configured backend and returns its closer.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, func(), error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemory(), func() {}, nil

	case "postgres":
		pg, err := repository.OpenPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		go every(ctx, 5*time.Minute, func() {
			n, err := pg.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge expired keys", "err", err)
				return
			}
			if n > 0 {
				logger.Info("purged expired keys", "count", n)
			}
		})
		logger.Info("postgres connected")
		return pg, func() { _ = pg.Close() }, nil

	default:
		rdb, err := repository.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("redis connected", "addr", cfg.RedisAddr)
		return rdb, func() { _ = rdb.Close() }, nil
	}
}

func every(ctx context.Context, d time.Duration, fn func()) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
