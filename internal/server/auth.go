package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"jobledger/internal/engine/auth"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// callerID returns the authenticated profile id or a 401.
func callerID(ctx context.Context) (int64, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.Profile.ID != 0 {
		return p.Profile.ID, nil
	}
	return 0, unauthorized()
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// isPublicPath reports routes served without a caller.
func isPublicPath(basePath, p string) bool {
	rel := strings.TrimPrefix(p, basePath)
	if rel == "" {
		rel = "/"
	}
	switch rel {
	case "/health", "/docs", "/openapi.json", "/metrics":
		return true
	}
	return strings.HasPrefix(rel, "/admin/") || strings.HasPrefix(rel, "/schemas/")
}

func newAuthMiddleware(basePath, profileHeader string, a auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := path.Clean(req.URL.Path)
			if basePath != "" && !strings.HasPrefix(p, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if isPublicPath(basePath, p) {
				next.ServeHTTP(w, req)
				return
			}

			creds := auth.Credentials{ProfileID: req.Header.Get(profileHeader)}
			if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, unauthorized())
					return
				}
				creds.Bearer = token
			}
			principal, err := a.Authenticate(req.Context(), creds)
			if err != nil {
				if !errors.Is(err, auth.ErrNoCredentials) && !errors.Is(err, auth.ErrInvalidCredentials) {
					hlog.FromRequest(req).Error().Err(err).Msg("authenticate")
					respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil))
					return
				}
				respondStatusError(w, unauthorized())
				return
			}
			hlog.FromRequest(req).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Int64("profile_id", principal.Profile.ID)
			})
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
