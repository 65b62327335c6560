package middleware

import (
	"net/http"
	"strings"

	"github.com/miraelabs/consentry-backend/api/responses"
	pkgAuth "github.com/miraelabs/consentry-backend/pkg/auth"
	"github.com/miraelabs/consentry-backend/pkg/config"
	pkgerrors "github.com/miraelabs/consentry-backend/pkg/errors"
	"github.com/miraelabs/consentry-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID.String())
			if claims.Locale != "" {
				ctx = WithLocale(ctx, claims.Locale)
			}

			if logg != nil {
				fields := map[string]any{
					"user_id": claims.UserID.String(),
				}
				if claims.Locale != "" {
					fields["locale"] = claims.Locale
				}
				ctx = logg.WithFields(ctx, fields)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
