package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenTTL is the lifetime of every access token.
const AccessTokenTTL = 5 * time.Hour

// DefaultIssuer is stamped into "iss" unless configured otherwise.
const DefaultIssuer = "authkeeper"

// AccessClaims are the claims of a signed access token. The user id travels
// in the "user" claim.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user"`
}

// AccessTokens mints and verifies HS256 access tokens with keys taken from a
// KeyProvider.
type AccessTokens struct {
	keys   KeyProvider
	issuer string
	now    func() time.Time
}

func NewAccessTokens(keys KeyProvider, issuer string) *AccessTokens {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &AccessTokens{keys: keys, issuer: issuer, now: time.Now}
}

// Issue signs a token for userID that expires AccessTokenTTL from now.
func (a *AccessTokens) Issue(userID int64) (string, error) {
	now := a.now()
	key := a.keys.SigningKey()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
			ID:        uuid.NewString(),
		},
		UserID: userID,
	})
	token.Header["kid"] = key.ID

	tokenString, err := token.SignedString(key.Secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Parse verifies signature, algorithm, issuer and expiry and returns the user
// id. Expired tokens yield common.ErrTokenExpired, anything else unusable
// yields common.ErrInvalidToken.
func (a *AccessTokens) Parse(tokenString string) (int64, error) {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, a.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, common.ErrTokenExpired
		}
		return 0, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID <= 0 {
		return 0, common.ErrInvalidToken
	}

	return claims.UserID, nil
}

func (a *AccessTokens) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return a.keys.SigningKey().Secret, nil
	}
	secret, ok := a.keys.VerificationKey(kid)
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return secret, nil
}
