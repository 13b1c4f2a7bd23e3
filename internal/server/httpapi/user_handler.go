package httpapi

import (
	"net/http"
	"time"
)

type updatePasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	var req updatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.users.ChangePassword(r.Context(), userID, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	writePayload(w, true)
}

type createTokenRequest struct {
	Description string     `json:"description"`
	Expiration  *time.Time `json:"expiration,omitempty"`
}

// CreateToken returns the new API token. This is the only time its value is
// shown.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	var req createTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tok, err := h.users.CreateAPIToken(r.Context(), userID, req.Description, req.Expiration)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writePayload(w, tok)
}

type tokenInfo struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Expiration  *time.Time `json:"expiration"`
}

func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	list, err := h.users.ListAPITokens(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]tokenInfo, 0, len(list))
	for _, t := range list {
		out = append(out, tokenInfo{ID: t.ID, Description: t.Description, Expiration: t.Expiration})
	}
	writePayload(w, out)
}

type deleteTokenRequest struct {
	ID int64 `json:"id"`
}

func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	var req deleteTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, err := h.users.DeleteAPIToken(r.Context(), userID, req.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writePayload(w, ok)
}
