package acs

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/service"
)

// maxBodySize bounds a device POST. Full parameter dumps from loaded
// gateways run to hundreds of kilobytes; 4 MiB leaves headroom.
const maxBodySize = 4 << 20

// sessionCookie carries the device key between the HTTP round-trips of one
// CWMP conversation. Device keys can contain spaces (product classes do),
// so the value is URL-escaped.
const sessionCookie = "acs_session"

type Handler struct {
	svc *service.AcsService
	log *slog.Logger
}

func NewHandler(svc *service.AcsService, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Handle is the single CWMP endpoint. Devices POST SOAP envelopes here; an
// empty body signals the device has nothing more to say.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	deviceKey := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		if v, err := url.QueryUnescape(c.Value); err == nil {
			deviceKey = v
		}
	}

	res, err := h.svc.HandleCPE(r.Context(), deviceKey, body, remoteIP(r))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionExpired), errors.Is(err, domain.ErrInvalidInput):
			h.log.Info("rejected cpe message", "remote", r.RemoteAddr, "err", err)
			http.Error(w, "bad request", http.StatusBadRequest)
		default:
			h.log.Error("cpe handling failed", "remote", r.RemoteAddr, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	if res.DeviceKey != "" {
		cookie := &http.Cookie{
			Name:     sessionCookie,
			Value:    url.QueryEscape(res.DeviceKey),
			Path:     "/",
			HttpOnly: true,
		}
		if res.EndOfSession {
			cookie.MaxAge = -1
		}
		http.SetCookie(w, cookie)
	}

	if res.EndOfSession {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(res.Body))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
