package middleware

import (
	"net/http"
	"strings"

	"github.com/miraelabs/consentry-backend/pkg/logger"
)

// Locale seeds the request context with the caller's locale. The explicit
// query parameter wins over Accept-Language; a token-carried locale set by
// Auth is never overwritten.
func Locale(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if LocaleFromContext(ctx) != "" {
				next.ServeHTTP(w, r)
				return
			}

			locale := strings.TrimSpace(r.URL.Query().Get("locale"))
			if locale == "" {
				locale = firstAcceptLanguage(r.Header.Get("Accept-Language"))
			}
			if locale == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithLocale(ctx, locale)
			if logg != nil {
				ctx = logg.WithLocale(ctx, locale)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func firstAcceptLanguage(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	first := strings.SplitN(header, ",", 2)[0]
	first = strings.SplitN(first, ";", 2)[0]
	return strings.TrimSpace(first)
}
