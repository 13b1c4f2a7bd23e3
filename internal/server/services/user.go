// Package services contains server-side business logic. This file implements
// UserService, which handles login, session refresh and logout, password
// changes and resets, API tokens and the admin bootstrap.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// bcrypt ignores input past 72 bytes; longer passwords are refused instead
// of silently truncated.
const maxPasswordBytes = 72

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserService provides the session and credential operations exposed over
// HTTP.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *TokenAuthority
	mailer      Mailer
	metrics     metrics.Recorder
	logger      logging.Logger

	hashPassword   func(string) (string, error)
	verifyPassword func(password, hash string) bool
	randomPassword func() (string, error)
	now            func() time.Time
	dummyHash      func() string
}

// NewUserService constructs a UserService using repositories and the token
// authority.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, ta *TokenAuthority, mailer Mailer, rec metrics.Recorder, l logging.Logger) *UserService {
	s := &UserService{
		db:             db,
		repomanager:    m,
		tokens:         ta,
		mailer:         mailer,
		metrics:        rec,
		logger:         l.With("module", "users"),
		hashPassword:   auth.HashPassword,
		verifyPassword: auth.VerifyPassword,
		randomPassword: auth.GenerateRandomPassword,
		now:            time.Now,
	}
	s.dummyHash = sync.OnceValue(func() string {
		h, err := s.hashPassword("authkeeper-dummy-password")
		if err != nil {
			return ""
		}
		return h
	})
	return s
}

// Login verifies mail and password and, on success, returns a new TokenPair.
// Unknown mail and wrong password are indistinguishable to the caller; both
// return common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, mail string, password string) (*TokenPair, error) {
	cred, err := s.repomanager.Users(s.db).GetByMail(ctx, mail)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// keep response time close to the known-user path
			s.verifyPassword(password, s.dummyHash())
			s.metrics.Login(false)
			return nil, common.ErrorUnauthorized
		}
		return nil, storeError(err)
	}

	if !s.verifyPassword(password, cred.PasswordHash) {
		s.metrics.Login(false)
		s.logger.Info(ctx, "login rejected", "user_id", cred.UserID)
		return nil, common.ErrorUnauthorized
	}

	pair, err := s.generateTokenPair(ctx, cred.UserID, s.db)
	if err != nil {
		return nil, err
	}
	s.metrics.Login(true)
	s.logger.Info(ctx, "login", "user_id", cred.UserID)
	return pair, nil
}

// Refresh exchanges a refresh token for a new TokenPair. The presented token
// is consumed in the same transaction that stores its successor, so it works
// once at most.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*TokenPair, error) {
		userID, ok, err := s.tokens.consume(ctx, s.repomanager.Tokens(tx), refreshToken, models.TokenKindRefresh)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, common.ErrorUnauthorized
		}
		return s.generateTokenPair(ctx, userID, tx)
	})
	if err != nil {
		s.metrics.Refresh(false)
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, err
		}
		return nil, txError(err)
	}
	s.metrics.Refresh(true)
	return pair, nil
}

// Logout drops every refresh token of userID. Access tokens already handed
// out stay valid until they expire.
func (s *UserService) Logout(ctx context.Context, userID int64) error {
	if _, err := s.tokens.RevokeAllRefreshTokensForUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info(ctx, "logout", "user_id", userID)
	return nil
}

// RequestPasswordReset mails a reset token if mail belongs to a user. An
// unknown mail is not an error, so the endpoint does not reveal which
// addresses exist.
func (s *UserService) RequestPasswordReset(ctx context.Context, mail string) error {
	cred, err := s.repomanager.Users(s.db).GetByMail(ctx, mail)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return storeError(err)
	}

	token, err := s.tokens.IssuePasswordResetToken(ctx, cred.UserID)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, cred.Mail, token); err != nil {
		return fmt.Errorf("%w: sending reset mail: %v", common.ErrorInternal, err)
	}
	return nil
}

func (s *UserService) CheckResetToken(ctx context.Context, token string) (bool, error) {
	return s.tokens.CheckPasswordResetToken(ctx, token)
}

// ResetPassword sets newPassword for the owner of a live reset token. It
// returns false when the token is unknown, expired or already used.
func (s *UserService) ResetPassword(ctx context.Context, token string, newPassword string) (bool, error) {
	hash, err := s.newPasswordHash(newPassword)
	if err != nil {
		return false, err
	}
	return s.tokens.ConsumePasswordResetToken(ctx, token, hash)
}

// ChangePassword replaces the password of userID and ends its other
// sessions.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, newPassword string) error {
	hash, err := s.newPasswordHash(newPassword)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePasswordHash(ctx, userID, hash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return err
			}
			return storeError(err)
		}
		if _, err := s.repomanager.Tokens(tx).DeleteAllByUserAndKind(ctx, userID, models.TokenKindRefresh); err != nil {
			return storeError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return txError(err)
	}
	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// CreateAPIToken issues an API token. A nil expiration makes it permanent;
// an expiration that is not in the future is a validation error.
func (s *UserService) CreateAPIToken(ctx context.Context, userID int64, description string, expiration *time.Time) (string, error) {
	if expiration != nil && !expiration.After(s.now()) {
		return "", fmt.Errorf("%w: expiration must be in the future", common.ErrorValidation)
	}
	return s.tokens.IssueAPIToken(ctx, userID, description, expiration)
}

func (s *UserService) ListAPITokens(ctx context.Context, userID int64) ([]*models.TokenRecord, error) {
	return s.tokens.ListAPITokens(ctx, userID)
}

func (s *UserService) DeleteAPIToken(ctx context.Context, userID int64, id int64) (bool, error) {
	return s.tokens.RevokeAPITokenByID(ctx, id, userID)
}

// EnsureAdmin makes sure mail is an administrator. An existing user is
// granted ADMIN; otherwise the user is created with password, or with a
// random password sent by invite mail when password is empty.
func (s *UserService) EnsureAdmin(ctx context.Context, mail string, password string) error {
	users := s.repomanager.Users(s.db)
	cred, err := users.GetByMail(ctx, mail)
	switch {
	case err == nil:
		if err := s.repomanager.Roles(s.db).Grant(ctx, cred.UserID, models.RoleAdmin); err != nil {
			return storeError(err)
		}
		return nil
	case !errors.Is(err, common.ErrorNotFound):
		return storeError(err)
	}

	invite := password == ""
	if invite {
		if password, err = s.randomPassword(); err != nil {
			return fmt.Errorf("%w: generating password: %v", common.ErrorInternal, err)
		}
	}
	hash, err := s.newPasswordHash(password)
	if err != nil {
		return err
	}

	created, err := dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Credential, error) {
		c, err := s.repomanager.Users(tx).Create(ctx, &models.Credential{Mail: mail, PasswordHash: hash})
		if err != nil {
			return nil, err
		}
		for _, r := range []models.Role{models.RoleAdmin, models.RoleUser} {
			if err := s.repomanager.Roles(tx).Grant(ctx, c.UserID, r); err != nil {
				return nil, err
			}
		}
		return c, nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			// created concurrently by another instance
			return nil
		}
		return txError(err)
	}

	s.logger.Info(ctx, "admin created", "user_id", created.UserID, "mail", mail)
	if invite {
		if err := s.mailer.SendInvite(ctx, mail, password); err != nil {
			return fmt.Errorf("%w: sending invite: %v", common.ErrorInternal, err)
		}
	}
	return nil
}

// --- helpers below ---

func (s *UserService) newPasswordHash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty password", common.ErrorValidation)
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password longer than %d bytes", common.ErrorValidation, maxPasswordBytes)
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return "", fmt.Errorf("%w: hashing password: %v", common.ErrorInternal, err)
	}
	return hash, nil
}

func (s *UserService) generateTokenPair(ctx context.Context, userID int64, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.issueRefreshToken(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
