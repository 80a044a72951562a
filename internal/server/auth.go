package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"collab/internal/domain"
	"collab/internal/engine"
	"collab/internal/engine/auth"
	"collab/internal/logging"
	"collab/internal/repo"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, u domain.UserRef) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

func principalFromContext(ctx context.Context) (domain.UserRef, bool) {
	u, ok := ctx.Value(principalKey{}).(domain.UserRef)
	return u, ok && u.ID != 0
}

// viewerFromContext returns the authenticated user of the request.
func viewerFromContext(ctx context.Context) (domain.UserRef, huma.StatusError) {
	if u, ok := principalFromContext(ctx); ok {
		return u, nil
	}
	return domain.UserRef{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// publicPaths are reachable without a credential.
func publicPaths(basePath string) map[string]bool {
	return map[string]bool{
		path.Join(basePath, "auth/health"):   true,
		path.Join(basePath, "auth/login"):    true,
		path.Join(basePath, "auth/register"): true,
	}
}

// newAuthMiddleware resolves the bearer token of every request under
// basePath to a stored user. Unknown users and bad tokens get a 401.
func newAuthMiddleware(basePath string, tokens auth.Tokens, e engine.Engine, log *zap.Logger) func(http.Handler) http.Handler {
	public := publicPaths(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[strings.TrimSuffix(req.URL.Path, "/")] {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			userID, err := tokens.Verify(token)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			user, err := e.User(req.Context(), userID)
			if err != nil {
				if !errors.Is(err, repo.ErrNotFound) {
					logging.FromContext(req.Context(), log).Error("load principal", zap.Int64("user_id", userID), zap.Error(err))
					respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil))
					return
				}
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), user)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
