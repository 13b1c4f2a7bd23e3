package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type IdentityResolver interface {
	Resolve(ctx context.Context, c services.Credentials) (int64, error)
}

type RoleChecker interface {
	RolesOf(ctx context.Context, userID int64) (models.RoleSet, error)
	RequireAny(ctx context.Context, userID int64, roles ...models.Role) error
}

type userIDKey struct{}

func withUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the id stored by RequireAuth.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}

// Middleware authenticates requests and enforces roles. A missing or bad
// credential is always 401; a valid identity without the role is 403.
type Middleware struct {
	resolver IdentityResolver
	gate     RoleChecker
	logger   logging.Logger
}

func NewMiddleware(resolver IdentityResolver, gate RoleChecker, l logging.Logger) *Middleware {
	return &Middleware{resolver: resolver, gate: gate, logger: l.With("module", "http_auth")}
}

// credentialsOf collects the access cookie and the Authorization header.
func credentialsOf(r *http.Request) services.Credentials {
	c := services.Credentials{Authorization: r.Header.Get(common.AuthorizationHeaderName)}
	if cookie, err := r.Cookie(common.AccessTokenCookieName); err == nil {
		c.AccessToken = cookie.Value
		c.HasAccessToken = true
	}
	return c
}

func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.resolver.Resolve(r.Context(), credentialsOf(r))
		if err != nil {
			if errors.Is(err, common.ErrStoreUnavailable) {
				m.logger.Error(r.Context(), "identity lookup failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "service unavailable")
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

// RequireRole lets the request through if the user holds any of roles. It
// must be mounted behind RequireAuth.
func (m *Middleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if err := m.gate.RequireAny(r.Context(), userID, roles...); err != nil {
				status, msg := statusFor(err)
				if status == http.StatusForbidden {
					m.logger.Info(r.Context(), "role check denied", "user_id", userID, "path", r.URL.Path)
				}
				writeError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireGroupCapable admits GROUP and ADMIN users.
func (m *Middleware) RequireGroupCapable(next http.Handler) http.Handler {
	return m.RequireRole(models.RoleGroup, models.RoleAdmin)(next)
}

// requestLogger logs one line per request through l.
func requestLogger(l logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				l.Info(r.Context(), "request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
