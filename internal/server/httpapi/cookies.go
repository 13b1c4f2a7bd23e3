package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// Cookie lifetimes match the tokens they carry.
var (
	accessCookieMaxAge  = int(auth.AccessTokenTTL.Seconds())
	refreshCookieMaxAge = int(services.RefreshTokenTTL.Seconds())
)

func setAccessTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, sessionCookie(common.AccessTokenCookieName, token, accessCookieMaxAge))
}

func setRefreshTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, sessionCookie(common.RefreshTokenCookieName, token, refreshCookieMaxAge))
}

func setSessionCookies(w http.ResponseWriter, pair *services.TokenPair) {
	setAccessTokenCookie(w, pair.AccessToken)
	setRefreshTokenCookie(w, pair.RefreshToken)
}

func expireCookies(w http.ResponseWriter) {
	http.SetCookie(w, sessionCookie(common.AccessTokenCookieName, "", -1))
	http.SetCookie(w, sessionCookie(common.RefreshTokenCookieName, "", -1))
}

func sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     common.CookiePath,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	}
}
