package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error) {
	code, err := kindToCode(rec.Kind)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO tokens (id_user, token, token_type, description, expiration)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token) DO NOTHING
		RETURNING id
	`
	// A taken token string returns no row instead of failing, so the caller
	// can retry inside the same transaction.
	err = r.db.QueryRowContext(ctx, query,
		rec.UserID, rec.Token, code, rec.Description, toNullTime(rec.Expiration)).Scan(&rec.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrTokenCollision
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrTokenCollision
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.TokenRecord, error) {
	query := `
		SELECT id, id_user, token, token_type, description, expiration
		FROM tokens
		WHERE token = $1
	`
	rec, err := scanToken(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) ValidateAndDelete(ctx context.Context, token string, kind models.TokenKind, now time.Time) (int64, error) {
	code, err := kindToCode(kind)
	if err != nil {
		return 0, err
	}

	query := `
		DELETE FROM tokens
		WHERE token = $1 AND token_type = $2 AND (expiration IS NULL OR expiration > $3)
		RETURNING id_user
	`
	var userID int64
	if err := r.db.QueryRowContext(ctx, query, token, code, now).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return userID, nil
}

func (r *PostgresRepository) DeleteByToken(ctx context.Context, token string, userID int64) (bool, error) {
	query := `
		DELETE FROM tokens
		WHERE token = $1 AND id_user = $2
	`
	return r.execDelete(ctx, query, token, userID)
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id int64, userID int64) (bool, error) {
	query := `
		DELETE FROM tokens
		WHERE id = $1 AND id_user = $2
	`
	return r.execDelete(ctx, query, id, userID)
}

func (r *PostgresRepository) DeleteAllByUserAndKind(ctx context.Context, userID int64, kind models.TokenKind) (int64, error) {
	code, err := kindToCode(kind)
	if err != nil {
		return 0, err
	}

	query := `
		DELETE FROM tokens
		WHERE id_user = $1 AND token_type = $2
	`
	res, err := r.db.ExecContext(ctx, query, userID, code)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListByUserAndKind(ctx context.Context, userID int64, kind models.TokenKind) ([]*models.TokenRecord, error) {
	code, err := kindToCode(kind)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, id_user, token, token_type, description, expiration
		FROM tokens
		WHERE id_user = $1 AND token_type = $2
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, userID, code)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.TokenRecord
	for rows.Next() {
		rec, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM tokens
		WHERE expiration IS NOT NULL AND expiration <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) execDelete(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*models.TokenRecord, error) {
	var (
		rec  models.TokenRecord
		code int
		exp  sql.NullTime
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.Token, &code, &rec.Description, &exp); err != nil {
		return nil, err
	}
	kind, err := codeToKind(code)
	if err != nil {
		return nil, err
	}
	rec.Kind = kind
	if exp.Valid {
		t := exp.Time
		rec.Expiration = &t
	}
	return &rec, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
