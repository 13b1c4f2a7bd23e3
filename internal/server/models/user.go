package models

// Credential is the stored login identity of a user. Only the bcrypt hash of
// the password is ever kept.
type Credential struct {
	UserID       int64
	Mail         string
	PasswordHash string
}
