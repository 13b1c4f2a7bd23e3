package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	qCreate    = `(?s)^INSERT\s+INTO\s+users\s*\(email,\s*hash\)\s*VALUES\s*\(\$1,\s*\$2\)\s*RETURNING\s+id\s*$`
	qByMail    = `(?s)^SELECT\s+id,\s*email,\s*hash\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`
	qByID      = `(?s)^SELECT\s+id,\s*email,\s*hash\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`
	qSetHash   = `(?s)^UPDATE\s+users\s+SET\s+hash\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s*$`
	hashValue  = "$2a$12$abcdefghijklmnopqrstuuJ1cRxhYw1m5uQzWc0E0K1Yk4sQy8a2"
	otherValue = "$2a$12$zyxwvutsrqponmlkjihgfeJ1cRxhYw1m5uQzWc0E0K1Yk4sQy8a2"
)

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qCreate).
		WithArgs("alice@example.com", hashValue).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	got, err := repo.Create(context.Background(), &models.Credential{Mail: "alice@example.com", PasswordHash: hashValue})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.UserID != 42 || got.Mail != "alice@example.com" {
		t.Fatalf("unexpected credential: %+v", got)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qCreate).
		WithArgs("alice@example.com", hashValue).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.Credential{Mail: "alice@example.com", PasswordHash: hashValue})
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qCreate).
		WithArgs("alice@example.com", hashValue).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Credential{Mail: "alice@example.com", PasswordHash: hashValue})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByMail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qByMail).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "hash"}).AddRow(int64(1), "alice@example.com", hashValue))

	got, err := repo.GetByMail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetByMail error: %v", err)
	}
	if got.UserID != 1 || got.PasswordHash != hashValue {
		t.Fatalf("unexpected credential: %+v", got)
	}
}

func TestGetByMail_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qByMail).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByMail(context.Background(), "ghost@example.com")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByMail_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qByMail).
		WithArgs("alice@example.com").
		WillReturnError(errors.New("db err"))

	_, err := repo.GetByMail(context.Background(), "alice@example.com")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qByID).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "hash"}).AddRow(int64(7), "bob@example.com", hashValue))
	mock.ExpectQuery(qByID).
		WithArgs(int64(8)).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.GetByID(context.Background(), 7)
	if err != nil || got.Mail != "bob@example.com" {
		t.Fatalf("got (%+v, %v)", got, err)
	}
	if _, err := repo.GetByID(context.Background(), 8); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdatePasswordHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qSetHash).WithArgs(otherValue, int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qSetHash).WithArgs(otherValue, int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(qSetHash).WithArgs(otherValue, int64(7)).WillReturnError(errors.New("db err"))

	if err := repo.UpdatePasswordHash(context.Background(), 7, otherValue); err != nil {
		t.Fatalf("UpdatePasswordHash error: %v", err)
	}
	if err := repo.UpdatePasswordHash(context.Background(), 9, otherValue); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	err := repo.UpdatePasswordHash(context.Background(), 7, otherValue)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
