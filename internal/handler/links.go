package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"shortlink/internal/model"
	"shortlink/internal/service"
)

type shortenRequest struct {
	URL        string `json:"url"`
	CustomCode string `json:"customCode" validate:"omitempty,shortcode"`
	UserID     string `json:"userId" validate:"omitempty,max=128"`
}

type linksResponse struct {
	Links []model.LinkRecord `json:"links"`
}

func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	var req shortenRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Service.Links.Create(r.Context(), service.CreateParams{
		URL:        req.URL,
		CustomCode: req.CustomCode,
		OwnerID:    req.UserID,
		BaseURL:    h.origin(r),
	})
	if err != nil {
		status := 0
		if service.IsConflict(err) {
			status = http.StatusBadRequest
		}
		h.writeError(w, r, err, status)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.Service.Links.ListForOwner(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, linksResponse{Links: links})
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["shortId"]
	if err := h.Service.Links.Delete(r.Context(), code, r.URL.Query().Get("userId")); err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Link deleted successfully"})
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Analytics.Get(r.Context(), mux.Vars(r)["shortId"])
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ResetAnalytics(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Analytics.Reset(r.Context(), mux.Vars(r)["shortId"]); err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Analytics reset successfully"})
}

func (h *Handler) clickContext(r *http.Request) service.ClickContext {
	return service.ClickContext{
		Country:   r.Header.Get(h.countryHeader),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
}

func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["shortId"]
	target, err := h.Service.Redirects.Resolve(r.Context(), code, h.clickContext(r))
	if err != nil {
		status := http.StatusNotFound
		if !service.IsNotFound(err) {
			status = http.StatusServiceUnavailable
			h.log.Error("resolve", "code", code, "err", err)
		}
		writeText(w, status, http.StatusText(status))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Debug echoes what the edge tells us about the caller.
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	headers := map[string]string{}
	for _, name := range []string{h.countryHeader, "CF-IPCity", "CF-Ray", "User-Agent", "Referer", "X-Forwarded-For"} {
		headers[name] = r.Header.Get(name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Debug Info",
		"timestamp": time.Now().UTC(),
		"headers":   headers,
		"url":       h.origin(r) + r.URL.RequestURI(),
		"method":    r.Method,
		"clientIp":  clientIP(r),
	})
}
