package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/tokens"
)

// Lifetimes of the opaque token kinds. API tokens expire only if asked to.
const (
	RefreshTokenTTL       = 7 * 24 * time.Hour
	PasswordResetTokenTTL = 24 * time.Hour
)

const (
	maxTokenAttempts = 50
	opaqueTokenBytes = 32
)

// AccessTokenIssuer is the signed-token half of the authority.
type AccessTokenIssuer interface {
	Issue(userID int64) (string, error)
	Parse(token string) (int64, error)
}

// TokenAuthority issues, validates and revokes every token family. Opaque
// tokens live in the token store, access tokens are self-contained.
type TokenAuthority struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	access      AccessTokenIssuer
	metrics     metrics.Recorder
	logger      logging.Logger

	newToken func() (string, error)
	now      func() time.Time
}

func NewTokenAuthority(db *sql.DB, m repomanager.RepositoryManager, access AccessTokenIssuer, rec metrics.Recorder, l logging.Logger) *TokenAuthority {
	return &TokenAuthority{
		db:          db,
		repomanager: m,
		access:      access,
		metrics:     rec,
		logger:      l.With("module", "token_authority"),
		newToken:    func() (string, error) { return common.MakeRandHexString(opaqueTokenBytes) },
		now:         time.Now,
	}
}

func (a *TokenAuthority) IssueAccessToken(userID int64) (string, error) {
	tok, err := a.access.Issue(userID)
	if err != nil {
		return "", fmt.Errorf("%w: signing access token: %v", common.ErrorInternal, err)
	}
	return tok, nil
}

// ParseAccessToken returns the user id of a valid access token.
func (a *TokenAuthority) ParseAccessToken(token string) (int64, error) {
	return a.access.Parse(token)
}

func (a *TokenAuthority) IssueRefreshToken(ctx context.Context, userID int64) (string, error) {
	return a.issueRefreshToken(ctx, a.db, userID)
}

func (a *TokenAuthority) issueRefreshToken(ctx context.Context, db dbx.DBTX, userID int64) (string, error) {
	exp := a.now().Add(RefreshTokenTTL)
	return a.issue(ctx, a.repomanager.Tokens(db), &models.TokenRecord{
		UserID:     userID,
		Kind:       models.TokenKindRefresh,
		Expiration: &exp,
	})
}

// ValidateRefreshToken reports the owner of token if it is an unexpired
// refresh token. The token is left in place.
func (a *TokenAuthority) ValidateRefreshToken(ctx context.Context, token string) (int64, bool, error) {
	rec, err := a.repomanager.Tokens(a.db).Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, false, nil
		}
		return 0, false, storeError(err)
	}
	if rec.Kind != models.TokenKindRefresh || rec.Expiration == nil || rec.Expired(a.now()) {
		return 0, false, nil
	}
	return rec.UserID, true, nil
}

// ConsumeRefreshToken validates and deletes token in one step. Of several
// concurrent calls with the same token at most one succeeds.
func (a *TokenAuthority) ConsumeRefreshToken(ctx context.Context, token string) (int64, bool, error) {
	return a.consume(ctx, a.repomanager.Tokens(a.db), token, models.TokenKindRefresh)
}

func (a *TokenAuthority) IssueAPIToken(ctx context.Context, userID int64, description string, expiration *time.Time) (string, error) {
	return a.issue(ctx, a.repomanager.Tokens(a.db), &models.TokenRecord{
		UserID:      userID,
		Kind:        models.TokenKindAPI,
		Description: description,
		Expiration:  expiration,
	})
}

// IssuePasswordResetToken replaces any outstanding reset token of the user
// with a fresh one, so at most one is live at a time.
func (a *TokenAuthority) IssuePasswordResetToken(ctx context.Context, userID int64) (string, error) {
	tok, err := dbx.WithTxResult(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) (string, error) {
		store := a.repomanager.Tokens(tx)
		if _, err := store.DeleteAllByUserAndKind(ctx, userID, models.TokenKindPasswordReset); err != nil {
			return "", storeError(err)
		}
		exp := a.now().Add(PasswordResetTokenTTL)
		return a.issue(ctx, store, &models.TokenRecord{
			UserID:     userID,
			Kind:       models.TokenKindPasswordReset,
			Expiration: &exp,
		})
	})
	if err != nil {
		return "", txError(err)
	}
	return tok, nil
}

// CheckPasswordResetToken reports whether token is a live reset token,
// without consuming it.
func (a *TokenAuthority) CheckPasswordResetToken(ctx context.Context, token string) (bool, error) {
	rec, err := a.repomanager.Tokens(a.db).Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, storeError(err)
	}
	return rec.Kind == models.TokenKindPasswordReset && rec.Expiration != nil && !rec.Expired(a.now()), nil
}

// ConsumePasswordResetToken sets newPasswordHash as the credential of the
// token's owner. Deleting the token, updating the hash and dropping the
// owner's refresh tokens commit together or not at all.
func (a *TokenAuthority) ConsumePasswordResetToken(ctx context.Context, token string, newPasswordHash string) (bool, error) {
	userID, err := dbx.WithTxResult(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) (int64, error) {
		userID, ok, err := a.consume(ctx, a.repomanager.Tokens(tx), token, models.TokenKindPasswordReset)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errNotConsumed
		}
		if err := a.repomanager.Users(tx).UpdatePasswordHash(ctx, userID, newPasswordHash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return 0, errNotConsumed
			}
			return 0, storeError(err)
		}
		if _, err := a.repomanager.Tokens(tx).DeleteAllByUserAndKind(ctx, userID, models.TokenKindRefresh); err != nil {
			return 0, storeError(err)
		}
		return userID, nil
	})
	if errors.Is(err, errNotConsumed) {
		return false, nil
	}
	if err != nil {
		return false, txError(err)
	}

	a.logger.Info(ctx, "password reset", "user_id", userID)
	return true, nil
}

// RevokeToken deletes token if it belongs to userID.
func (a *TokenAuthority) RevokeToken(ctx context.Context, token string, userID int64) (bool, error) {
	ok, err := a.repomanager.Tokens(a.db).DeleteByToken(ctx, token, userID)
	if err != nil {
		return false, storeError(err)
	}
	return ok, nil
}

func (a *TokenAuthority) RevokeAllRefreshTokensForUser(ctx context.Context, userID int64) (bool, error) {
	n, err := a.repomanager.Tokens(a.db).DeleteAllByUserAndKind(ctx, userID, models.TokenKindRefresh)
	if err != nil {
		return false, storeError(err)
	}
	a.metrics.TokensRevoked(models.TokenKindRefresh.String(), n)
	return n > 0, nil
}

// RevokeAPITokenByID deletes the API token with row id if userID owns it.
func (a *TokenAuthority) RevokeAPITokenByID(ctx context.Context, id int64, userID int64) (bool, error) {
	ok, err := a.repomanager.Tokens(a.db).DeleteByID(ctx, id, userID)
	if err != nil {
		return false, storeError(err)
	}
	if ok {
		a.metrics.TokensRevoked(models.TokenKindAPI.String(), 1)
	}
	return ok, nil
}

func (a *TokenAuthority) ListAPITokens(ctx context.Context, userID int64) ([]*models.TokenRecord, error) {
	list, err := a.repomanager.Tokens(a.db).ListByUserAndKind(ctx, userID, models.TokenKindAPI)
	if err != nil {
		return nil, storeError(err)
	}
	return list, nil
}

// issue generates a token string for rec and stores it, drawing a new string
// on collision up to maxTokenAttempts times.
func (a *TokenAuthority) issue(ctx context.Context, store tokens.Repository, rec *models.TokenRecord) (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		tok, err := a.newToken()
		if err != nil {
			return "", fmt.Errorf("%w: generating token: %v", common.ErrorInternal, err)
		}
		rec.Token = tok

		_, err = store.Insert(ctx, rec)
		if errors.Is(err, common.ErrTokenCollision) {
			a.logger.Warn(ctx, "token collision", "kind", rec.Kind.String(), "attempt", attempt+1)
			continue
		}
		if err != nil {
			return "", storeError(err)
		}

		a.metrics.TokenIssued(rec.Kind.String())
		return tok, nil
	}

	a.logger.Error(ctx, "token generation exhausted", "kind", rec.Kind.String(), "user_id", rec.UserID)
	return "", common.ErrTokenGenerationExhausted
}

func (a *TokenAuthority) consume(ctx context.Context, store tokens.Repository, token string, kind models.TokenKind) (int64, bool, error) {
	userID, err := store.ValidateAndDelete(ctx, token, kind, a.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, false, nil
		}
		return 0, false, storeError(err)
	}
	return userID, true, nil
}

var errNotConsumed = errors.New("token not consumed")

func storeError(err error) error {
	return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
}

// txError classifies an error coming out of a transaction. Begin and commit
// failures arrive unwrapped.
func txError(err error) error {
	switch {
	case errors.Is(err, common.ErrStoreUnavailable),
		errors.Is(err, common.ErrTokenGenerationExhausted),
		errors.Is(err, common.ErrorInternal):
		return err
	}
	return storeError(err)
}
