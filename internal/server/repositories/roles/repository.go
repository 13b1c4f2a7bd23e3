// Package roles stores role grants per user.
package roles

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	// RolesOf returns the roles granted to userID. Stored names outside the
	// known role set are ignored.
	RolesOf(ctx context.Context, userID int64) (models.RoleSet, error)
	// Grant adds role to userID. Granting a held role is a no-op.
	Grant(ctx context.Context, userID int64, role models.Role) error
}
