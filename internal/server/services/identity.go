package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

const bearerPrefix = "Bearer "

// Credentials is what a request presents. HasAccessToken is true whenever the
// access-token cookie exists, even with an empty value.
type Credentials struct {
	AccessToken    string
	HasAccessToken bool
	Authorization  string
}

// IdentityResolver turns request credentials into a user id.
type IdentityResolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	access      AccessTokenIssuer
	metrics     metrics.Recorder
	logger      logging.Logger
	now         func() time.Time
}

func NewIdentityResolver(db *sql.DB, m repomanager.RepositoryManager, access AccessTokenIssuer, rec metrics.Recorder, l logging.Logger) *IdentityResolver {
	return &IdentityResolver{
		db:          db,
		repomanager: m,
		access:      access,
		metrics:     rec,
		logger:      l.With("module", "identity"),
		now:         time.Now,
	}
}

// Resolve returns the authenticated user id.
//
// A present access-token cookie decides alone: if it does not verify, the
// request is unauthenticated even when a bearer header is also sent. Without
// the cookie, the bearer token is looked up in the token store and must not
// be expired. Failures are common.ErrUnauthenticated, or
// common.ErrStoreUnavailable when the lookup itself failed.
func (r *IdentityResolver) Resolve(ctx context.Context, c Credentials) (int64, error) {
	if c.HasAccessToken {
		userID, err := r.access.Parse(c.AccessToken)
		if err != nil {
			r.metrics.IdentityResolved("cookie", "rejected")
			return 0, fmt.Errorf("%w: %v", common.ErrUnauthenticated, err)
		}
		r.metrics.IdentityResolved("cookie", "ok")
		return userID, nil
	}

	token, ok := cutBearer(c.Authorization)
	if !ok || token == "" {
		r.metrics.IdentityResolved("none", "rejected")
		return 0, common.ErrUnauthenticated
	}

	rec, err := r.repomanager.Tokens(r.db).Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			r.metrics.IdentityResolved("bearer", "rejected")
			return 0, fmt.Errorf("%w: unknown bearer token", common.ErrUnauthenticated)
		}
		r.metrics.IdentityResolved("bearer", "error")
		r.logger.Error(ctx, "bearer lookup failed", "error", err)
		return 0, storeError(err)
	}

	if rec.Expired(r.now()) {
		r.metrics.IdentityResolved("bearer", "expired")
		return 0, fmt.Errorf("%w: %v", common.ErrUnauthenticated, common.ErrTokenExpired)
	}

	r.metrics.IdentityResolved("bearer", "ok")
	return rec.UserID, nil
}

// cutBearer strips a "Bearer " scheme, matched case-insensitively.
func cutBearer(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(bearerPrefix):]), true
}
