package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// AuthorizationGate answers role questions about an already authenticated
// user.
type AuthorizationGate struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewAuthorizationGate(db *sql.DB, m repomanager.RepositoryManager) *AuthorizationGate {
	return &AuthorizationGate{db: db, repomanager: m}
}

func (g *AuthorizationGate) RolesOf(ctx context.Context, userID int64) (models.RoleSet, error) {
	set, err := g.repomanager.Roles(g.db).RolesOf(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	return set, nil
}

func (g *AuthorizationGate) HasRole(ctx context.Context, userID int64, role models.Role) (bool, error) {
	set, err := g.RolesOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(role), nil
}

func (g *AuthorizationGate) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return g.HasRole(ctx, userID, models.RoleAdmin)
}

// IsGroupCapable holds for GROUP and for ADMIN.
func (g *AuthorizationGate) IsGroupCapable(ctx context.Context, userID int64) (bool, error) {
	set, err := g.RolesOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(models.RoleGroup) || set.Has(models.RoleAdmin), nil
}

// RequireAny returns nil if userID holds at least one of roles and
// common.ErrForbidden otherwise.
func (g *AuthorizationGate) RequireAny(ctx context.Context, userID int64, roles ...models.Role) error {
	set, err := g.RolesOf(ctx, userID)
	if err != nil {
		return err
	}
	for _, r := range roles {
		if set.Has(r) {
			return nil
		}
	}
	return common.ErrForbidden
}
