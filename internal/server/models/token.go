package models

import "time"

// TokenKind is the family an opaque token belongs to. The zero value is not a
// valid kind.
type TokenKind uint8

const (
	TokenKindRefresh TokenKind = iota + 1
	TokenKindAPI
	TokenKindPasswordReset
)

func (k TokenKind) String() string {
	switch k {
	case TokenKindRefresh:
		return "refresh"
	case TokenKindAPI:
		return "api"
	case TokenKindPasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// TokenRecord is a persisted opaque token. Refresh and password-reset tokens
// always carry an Expiration; API tokens may not.
type TokenRecord struct {
	ID          int64
	Token       string
	UserID      int64
	Expiration  *time.Time
	Kind        TokenKind
	Description string
}

// Expired reports whether the token is no longer valid at now. A token is
// valid only while its expiration is strictly in the future.
func (t *TokenRecord) Expired(now time.Time) bool {
	return t.Expiration != nil && !t.Expiration.After(now)
}
