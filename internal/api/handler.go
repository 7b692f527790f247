// Package api implements the HTTP handlers for accounts, authentication, and
// contacts.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"contactdesk/internal/auth"
	"contactdesk/internal/mail"
	"contactdesk/internal/media"
	"contactdesk/internal/models"
	"contactdesk/internal/storage"
)

// DefaultMaxAvatarBytes bounds avatar upload size.
const DefaultMaxAvatarBytes = 5 << 20

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	Store          storage.Repository
	Tokens         *auth.TokenManager
	Mail           mail.Sender
	Media          media.Store
	Logger         *slog.Logger
	BaseURL        string
	MaxAvatarBytes int64
}

// NewHandler wires a handler with safe defaults for optional dependencies.
func NewHandler(store storage.Repository, tokens *auth.TokenManager) *Handler {
	return &Handler{
		Store:          store,
		Tokens:         tokens,
		Mail:           mail.NoopSender{},
		Media:          media.NoopStore{},
		MaxAvatarBytes: DefaultMaxAvatarBytes,
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) maxAvatarBytes() int64 {
	if h.MaxAvatarBytes > 0 {
		return h.MaxAvatarBytes
	}
	return DefaultMaxAvatarBytes
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
}

// Health reports whether the datastore is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if err := h.Store.Ping(r.Context()); err != nil {
		h.logger().Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type accountResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Confirmed bool   `json:"confirmed"`
	CreatedAt string `json:"createdAt"`
}

func newAccountResponse(account models.Account) accountResponse {
	return accountResponse{
		ID:        account.ID,
		Username:  account.Username,
		Email:     account.Email,
		AvatarURL: account.AvatarURL,
		Confirmed: account.Confirmed,
		CreatedAt: account.CreatedAt.Format(time.RFC3339Nano),
	}
}

type contactResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Birthday  string `json:"birthday"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func newContactResponse(contact models.Contact) contactResponse {
	return contactResponse{
		ID:        contact.ID,
		FirstName: contact.FirstName,
		LastName:  contact.LastName,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Birthday:  contact.Birthday.String(),
		Note:      contact.Note,
		CreatedAt: contact.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: contact.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func newContactListResponse(contacts []models.Contact) []contactResponse {
	response := make([]contactResponse, 0, len(contacts))
	for _, contact := range contacts {
		response = append(response, newContactResponse(contact))
	}
	return response
}
