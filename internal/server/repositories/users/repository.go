// Package users stores login credentials.
package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts a credential and fills in its UserID. An existing mail
	// yields common.ErrorAlreadyExists.
	Create(ctx context.Context, c *models.Credential) (*models.Credential, error)
	GetByMail(ctx context.Context, mail string) (*models.Credential, error)
	GetByID(ctx context.Context, userID int64) (*models.Credential, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
}
