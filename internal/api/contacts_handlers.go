package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"contactdesk/internal/models"
	"contactdesk/internal/storage"
)

const (
	defaultContactPageSize = 50
	maxContactPageSize     = 200
)

type contactRequest struct {
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone"`
	Birthday  models.Date `json:"birthday"`
	Note      string      `json:"note"`
}

func (req contactRequest) params() storage.ContactParams {
	return storage.ContactParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Birthday:  req.Birthday,
		Note:      req.Note,
	}
}

// Contacts lists the caller's contacts or creates a new one.
func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		opts, err := parseListOptions(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		contacts, err := h.Store.ListContacts(r.Context(), account.ID, opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, newContactListResponse(contacts))
	case http.MethodPost:
		var req contactRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		contact, err := h.Store.CreateContact(r.Context(), account.ID, req.params())
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, newContactResponse(contact))
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func parseListOptions(r *http.Request) (storage.ListContactsOptions, error) {
	query := r.URL.Query()
	opts := storage.ListContactsOptions{
		Limit: defaultContactPageSize,
		Query: strings.TrimSpace(query.Get("q")),
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return opts, fmt.Errorf("offset must be a non-negative integer")
		}
		opts.Offset = offset
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return opts, fmt.Errorf("limit must be a positive integer")
		}
		if limit > maxContactPageSize {
			limit = maxContactPageSize
		}
		opts.Limit = limit
	}
	return opts, nil
}

// ContactByID dispatches GET, PUT, and DELETE for a single contact.
func (h *Handler) ContactByID(w http.ResponseWriter, r *http.Request) {
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/contacts/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, fmt.Errorf("contact id missing"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		contact, err := h.Store.GetContact(r.Context(), account.ID, id)
		if err != nil {
			h.writeContactError(w, id, err)
			return
		}
		writeJSON(w, http.StatusOK, newContactResponse(contact))
	case http.MethodPut:
		var req contactRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		contact, err := h.Store.UpdateContact(r.Context(), account.ID, id, req.params())
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				h.writeContactError(w, id, err)
			} else {
				writeError(w, http.StatusBadRequest, err)
			}
			return
		}
		writeJSON(w, http.StatusOK, newContactResponse(contact))
	case http.MethodDelete:
		contact, err := h.Store.DeleteContact(r.Context(), account.ID, id)
		if err != nil {
			h.writeContactError(w, id, err)
			return
		}
		writeJSON(w, http.StatusOK, newContactResponse(contact))
	default:
		methodNotAllowed(w, r, "GET, PUT, DELETE")
	}
}

func (h *Handler) writeContactError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("contact %s not found", id))
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

// Birthdays lists contacts whose birthday falls within the next N days.
func (h *Handler) Birthdays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	days := storage.DefaultBirthdayWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("days must be a non-negative integer"))
			return
		}
		days = parsed
	}

	contacts, err := h.Store.UpcomingBirthdays(r.Context(), account.ID, days, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, newContactListResponse(contacts))
}
