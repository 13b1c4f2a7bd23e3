package common

// Cookie names carrying the session tokens.
const (
	AccessTokenCookieName  = "jwt"
	RefreshTokenCookieName = "refresh"
)

// AuthorizationHeaderName carries API tokens as "Bearer <token>".
const AuthorizationHeaderName = "Authorization"

// CookiePath scopes both session cookies.
const CookiePath = "/api"
