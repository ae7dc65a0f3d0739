package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shortlink/internal/metrics"
	"shortlink/internal/service"
)

type Options struct {
	// BaseURL overrides the scheme://host short URLs are built on.
	BaseURL       string
	CountryHeader string
	// TrustProxy honours X-Forwarded-* for client IP, scheme and host.
	TrustProxy  bool
	Sentry      bool
	RateLimiter *RateLimiter
	Logger      *slog.Logger
}

type Handler struct {
	Service     *service.Service
	RateLimiter *RateLimiter

	baseURL       string
	countryHeader string
	trustProxy    bool
	sentry        bool
	validate      *validator.Validate
	log           *slog.Logger
}

func NewHandler(s *service.Service, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CountryHeader == "" {
		opts.CountryHeader = "CF-IPCountry"
	}
	return &Handler{
		Service:       s,
		RateLimiter:   opts.RateLimiter,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		countryHeader: opts.CountryHeader,
		trustProxy:    opts.TrustProxy,
		sentry:        opts.Sentry,
		validate:      newValidator(),
		log:           opts.Logger,
	}
}

// Paths a custom code may not take because a fixed route shadows them.
var reservedCodes = map[string]bool{"api": true, "healthz": true, "metrics": true}

var badCodeChars = regexp.MustCompile(`[/?#\s]`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		return len(code) <= 64 && !badCodeChars.MatchString(code) && !reservedCodes[strings.ToLower(code)]
	})
	return v
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.HandleFunc("/api/shorten", h.RateLimitMiddleware(h.Shorten)).Methods(http.MethodPost)
	r.HandleFunc("/api/links", h.ListLinks).Methods(http.MethodGet)
	r.HandleFunc("/api/links/{shortId}", h.DeleteLink).Methods(http.MethodDelete)
	r.HandleFunc("/api/analytics/{shortId}", h.GetAnalytics).Methods(http.MethodGet)
	r.HandleFunc("/api/reset-analytics/{shortId}", h.ResetAnalytics).Methods(http.MethodPost)
	r.HandleFunc("/api/debug", h.Debug).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify", h.Verify).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/change-username", h.ChangeUsername).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/change-password", h.ChangePassword).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/change-email", h.ChangeEmail).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/request-password-reset", h.RequestPasswordReset).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/reset-password", h.ResetPassword).Methods(http.MethodPost)

	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/", h.Banner).Methods(http.MethodGet)
	r.HandleFunc("/{shortId}", h.RateLimitMiddleware(h.Redirect)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			writeText(w, http.StatusNotFound, "Not Found")
			return
		}
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not Found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})

	var next http.Handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodOptions {
			h.Preflight(w, req)
			return
		}
		r.ServeHTTP(w, req)
	})
	if h.trustProxy {
		next = handlers.ProxyHeaders(next)
	}
	next = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods(corsMethods),
		handlers.AllowedHeaders(corsHeaders),
		handlers.MaxAge(86400),
		handlers.IgnoreOptions(),
	)(next)
	if h.sentry {
		next = sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(next)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(h.log.Handler(), slog.LevelError)),
	)(next)
}

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	corsHeaders = []string{"Content-Type", "Authorization"}
)

// Preflight answers every OPTIONS request ahead of routing, with or without a request method.
func (h *Handler) Preflight(w http.ResponseWriter, _ *http.Request) {
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
	hdr.Set("Access-Control-Allow-Headers", strings.Join(corsHeaders, ", "))
	hdr.Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Banner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "URL Shortener API")
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the error's status unless status is non-zero.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusOf(err)
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
	}
	writeJSON(w, status, errorResponse{Error: service.Message(err)})
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return fe.Field() + " is required"
	}
	return fe.Field() + " is invalid"
}

// origin is the scheme://host short URLs are built on.
func (h *Handler) origin(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host
}
