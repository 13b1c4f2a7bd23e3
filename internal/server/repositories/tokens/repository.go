// Package tokens declares the token store: persistence of refresh, API and
// password-reset tokens.
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository stores opaque tokens. Lookups that find nothing return
// common.ErrorNotFound; an insert whose token string is already taken returns
// common.ErrTokenCollision.
type Repository interface {
	// Insert persists rec and fills in its ID.
	Insert(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error)

	// Find looks a token up by its opaque string, whatever its kind.
	Find(ctx context.Context, token string) (*models.TokenRecord, error)

	// ValidateAndDelete deletes the token if it has the given kind and is
	// still valid at now, and returns its owner. Check and delete happen in
	// one statement, so a token can be consumed at most once.
	ValidateAndDelete(ctx context.Context, token string, kind models.TokenKind, now time.Time) (int64, error)

	// DeleteByToken removes a token owned by userID.
	DeleteByToken(ctx context.Context, token string, userID int64) (bool, error)

	// DeleteByID removes a token by row id, scoped to its owner.
	DeleteByID(ctx context.Context, id int64, userID int64) (bool, error)

	// DeleteAllByUserAndKind removes every token of one kind for a user and
	// returns how many went.
	DeleteAllByUserAndKind(ctx context.Context, userID int64, kind models.TokenKind) (int64, error)

	// ListByUserAndKind returns a user's tokens of one kind, oldest first.
	ListByUserAndKind(ctx context.Context, userID int64, kind models.TokenKind) ([]*models.TokenRecord, error)

	// DeleteExpired drops every token whose expiration is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
