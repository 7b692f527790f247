package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"contactdesk/internal/auth"
	"contactdesk/internal/mail"
	"contactdesk/internal/media"
	"contactdesk/internal/models"
	"contactdesk/internal/storage"
)

const gravatarSize = 250

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type resendConfirmationRequest struct {
	Email string `json:"email"`
}

// tokenResponse follows the OAuth2 bearer convention used by API clients.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    string `json:"expires_at"`
}

type signupResponse struct {
	Account accountResponse `json:"account"`
	Detail  string          `json:"detail"`
}

// Signup registers a new account and queues a confirmation email.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	account, err := h.Store.CreateAccount(r.Context(), storage.CreateAccountParams{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		AvatarURL: media.GravatarURL(req.Email, gravatarSize),
	})
	if errors.Is(err, storage.ErrEmailTaken) {
		writeError(w, http.StatusConflict, fmt.Errorf("account already exists"))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.sendConfirmationEmail(account)

	writeJSON(w, http.StatusCreated, signupResponse{
		Account: newAccountResponse(account),
		Detail:  "account created, check your email for confirmation",
	})
}

// sendConfirmationEmail delivers the confirmation message without blocking
// the request. Failures are logged, not surfaced to the client.
func (h *Handler) sendConfirmationEmail(account models.Account) {
	if h.Mail == nil || !h.Mail.Enabled() {
		return
	}
	token, _, err := h.Tokens.EmailToken(account.Email)
	if err != nil {
		h.logger().Error("issue confirmation token", "error", err, "email", account.Email)
		return
	}
	msg, err := mail.ConfirmationEmail(account.Username, account.Email, h.BaseURL, token)
	if err != nil {
		h.logger().Error("render confirmation email", "error", err, "email", account.Email)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.Mail.Send(ctx, msg); err != nil {
			h.logger().Error("send confirmation email", "error", err, "email", account.Email)
		}
	}()
}

// Login exchanges credentials for an access and refresh token pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	account, err := h.Store.AuthenticateAccount(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid email"))
		return
	case errors.Is(err, storage.ErrNotConfirmed):
		writeError(w, http.StatusUnauthorized, fmt.Errorf("email not confirmed"))
		return
	case errors.Is(err, storage.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid password"))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.issueTokenPair(w, r, account)
}

// Refresh rotates a valid refresh token into a new token pair. A token that
// does not match the stored hash clears the stored token, forcing a new login.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	token := ExtractToken(r)
	if token == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req); err == nil {
			token = strings.TrimSpace(req.RefreshToken)
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing refresh token"))
		return
	}

	email, err := h.Tokens.Parse(token, auth.ScopeRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid refresh token"))
		return
	}
	account, err := h.Store.GetAccountByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid refresh token"))
		return
	}
	if account.RefreshTokenHash == "" || account.RefreshTokenHash != auth.HashToken(token) {
		if clearErr := h.Store.SetRefreshTokenHash(r.Context(), account.ID, ""); clearErr != nil {
			h.logger().Error("clear refresh token", "error", clearErr, "account", account.ID)
		}
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid refresh token"))
		return
	}

	h.issueTokenPair(w, r, account)
}

func (h *Handler) issueTokenPair(w http.ResponseWriter, r *http.Request, account models.Account) {
	access, expiresAt, err := h.Tokens.AccessToken(account.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	refresh, _, err := h.Tokens.RefreshToken(account.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.Store.SetRefreshTokenHash(r.Context(), account.ID, auth.HashToken(refresh)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt.UTC().Format(time.RFC3339Nano),
	})
}

// ConfirmEmail marks the account behind a confirmation link as confirmed.
// Confirming an already confirmed account is a no-op.
func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	token := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/confirm/"), "/")
	if token == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("confirmation token missing"))
		return
	}

	email, err := h.Tokens.Parse(token, auth.ScopeEmail)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("verification error"))
		return
	}
	account, err := h.Store.GetAccountByEmail(r.Context(), email)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("verification error"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if account.Confirmed {
		writeJSON(w, http.StatusOK, map[string]string{"detail": "email already confirmed"})
		return
	}
	if err := h.Store.ConfirmEmail(r.Context(), email); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "email confirmed"})
}

// ResendConfirmation re-sends the confirmation email. The response does not
// reveal whether the address belongs to an account.
func (h *Handler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req resendConfirmationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	account, err := h.Store.GetAccountByEmail(r.Context(), req.Email)
	if err == nil && !account.Confirmed {
		h.sendConfirmationEmail(account)
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "check your email for confirmation"})
}
