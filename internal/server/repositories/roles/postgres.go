package roles

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) RolesOf(ctx context.Context, userID int64) (models.RoleSet, error) {
	query := `
		SELECT role_type FROM roles
		WHERE id_user = $1
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	set := models.NewRoleSet()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		role, err := models.ParseRole(name)
		if err != nil {
			continue
		}
		set[role] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return set, nil
}

func (r *PostgresRepository) Grant(ctx context.Context, userID int64, role models.Role) error {
	query := `
		INSERT INTO roles (id_user, role_type)
		VALUES ($1, $2)
		ON CONFLICT (id_user, role_type) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, string(role)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
