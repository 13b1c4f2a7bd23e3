package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// SessionService is the part of services.UserService the handlers use.
type SessionService interface {
	Login(ctx context.Context, mail string, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, userID int64) error
	RequestPasswordReset(ctx context.Context, mail string) error
	CheckResetToken(ctx context.Context, token string) (bool, error)
	ResetPassword(ctx context.Context, token string, newPassword string) (bool, error)
	ChangePassword(ctx context.Context, userID int64, newPassword string) error
	CreateAPIToken(ctx context.Context, userID int64, description string, expiration *time.Time) (string, error)
	ListAPITokens(ctx context.Context, userID int64) ([]*models.TokenRecord, error)
	DeleteAPIToken(ctx context.Context, userID int64, id int64) (bool, error)
}

type Handler struct {
	users  SessionService
	gate   RoleChecker
	logger logging.Logger
}

func NewHandler(users SessionService, gate RoleChecker, l logging.Logger) *Handler {
	return &Handler{users: users, gate: gate, logger: l.With("module", "http")}
}

type loginRequest struct {
	Mail     string `json:"mail"`
	Password string `json:"password"`
}

// Login checks mail and password and sets both session cookies. A failed
// login sets no cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.users.Login(r.Context(), req.Mail, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setSessionCookies(w, pair)
	writePayload(w, true)
}

// Refresh rotates the refresh cookie and issues a new access cookie. On
// rejection both cookies are cleared.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(common.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		expireCookies(w)
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	pair, err := h.users.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			expireCookies(w)
		}
		h.fail(w, r, err)
		return
	}

	setSessionCookies(w, pair)
	writePayload(w, true)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	if err := h.users.Logout(r.Context(), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	expireCookies(w)
	writePayload(w, true)
}

type resetRequest struct {
	Mail string `json:"mail"`
}

// RequestReset answers the same way whether or not the mail is known.
func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.users.RequestPasswordReset(r.Context(), req.Mail); err != nil {
		h.fail(w, r, err)
		return
	}
	writePayload(w, true)
}

type tokenRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword,omitempty"`
}

func (h *Handler) CheckReset(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, err := h.users.CheckResetToken(r.Context(), req.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writePayload(w, ok)
}

// ResetPassword answers 406 when the token is unknown, used or expired.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, err := h.users.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotAcceptable, "invalid or expired token")
		return
	}
	writePayload(w, true)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	writePayload(w, true)
}

func (h *Handler) Role(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	set, err := h.gate.RolesOf(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	names := make([]string, 0, len(set))
	for _, role := range set.Sorted() {
		names = append(names, string(role))
	}
	writePayload(w, names)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}
