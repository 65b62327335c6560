package controllers

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/api/middleware"
	"github.com/miraelabs/consentry-backend/internal/region"
	pkgerrors "github.com/miraelabs/consentry-backend/pkg/errors"
)

func callerID(ctx context.Context) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing authenticated user")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid authenticated user id")
	}
	return userID, nil
}

// clientIP prefers the left-most X-Forwarded-For hop, then falls back to the
// socket peer address. Returns nil when neither is usable so the audit column
// stays NULL rather than holding an empty string.
func clientIP(r *http.Request) *string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return &ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		return nil
	}
	return &host
}

func clientUserAgent(r *http.Request) *string {
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		return nil
	}
	if len(ua) > 512 {
		ua = ua[:512]
	}
	return &ua
}

func countryFromLocale(ctx context.Context) string {
	return region.CountryCode(middleware.LocaleFromContext(ctx))
}
