package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contactdesk/internal/models"
	"contactdesk/internal/storage"
)

func createAccount(t *testing.T, repo *storage.MemoryRepository, email string) models.Account {
	t.Helper()
	account, err := repo.CreateAccount(context.Background(), storage.CreateAccountParams{
		Username: "testuser",
		Email:    email,
		Password: "sup3rsecret",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := repo.ConfirmEmail(context.Background(), email); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}
	account.Confirmed = true
	return account
}

func authedRequest(account models.Account, method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(ContextWithAccount(req.Context(), account))
}

func contactBody(first, last, email string) string {
	return fmt.Sprintf(`{"firstName":%q,"lastName":%q,"email":%q,"phone":"+380501234567","birthday":"1990-06-15","note":"friend"}`,
		first, last, email)
}

func createContactViaAPI(t *testing.T, handler *Handler, account models.Account, first, last, email string) contactResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodPost, "/api/contacts", contactBody(first, last, email)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create contact failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp contactResponse
	decodeBody(t, rec, &resp)
	return resp
}

// timeNowBirthday formats a birthday falling the given number of days from
// today, with an arbitrary birth year.
func timeNowBirthday(daysAhead int) string {
	target := time.Now().UTC().AddDate(0, 0, daysAhead)
	// 28 years keeps leap days valid in the birth year.
	return models.NewDate(target.Year()-28, target.Month(), target.Day()).String()
}

func TestContactsRequireAuthentication(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Contacts(rec, httptest.NewRequest(http.MethodGet, "/api/contacts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestContactLifecycle(t *testing.T) {
	handler, repo := newTestHandler(t)
	account := createAccount(t, repo, "owner@example.com")

	created := createContactViaAPI(t, handler, account, "Grace", "Hopper", "grace@example.com")
	if created.Birthday != "1990-06-15" {
		t.Fatalf("unexpected birthday %q", created.Birthday)
	}

	rec := httptest.NewRecorder()
	handler.ContactByID(rec, authedRequest(account, http.MethodGet, "/api/contacts/"+created.ID, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("get contact failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ContactByID(rec, authedRequest(account, http.MethodPut, "/api/contacts/"+created.ID,
		contactBody("Gracie", "Hopper", "grace@example.com")))
	if rec.Code != http.StatusOK {
		t.Fatalf("update failed: %d %s", rec.Code, rec.Body.String())
	}
	var updated contactResponse
	decodeBody(t, rec, &updated)
	if updated.FirstName != "Gracie" {
		t.Fatalf("expected updated first name, got %q", updated.FirstName)
	}

	rec = httptest.NewRecorder()
	handler.ContactByID(rec, authedRequest(account, http.MethodDelete, "/api/contacts/"+created.ID, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d %s", rec.Code, rec.Body.String())
	}
	var removed contactResponse
	decodeBody(t, rec, &removed)
	if removed.ID != created.ID || removed.FirstName != "Gracie" {
		t.Fatalf("delete must return the removed contact, got %+v", removed)
	}

	rec = httptest.NewRecorder()
	handler.ContactByID(rec, authedRequest(account, http.MethodGet, "/api/contacts/"+created.ID, ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestContactsAreScopedToOwner(t *testing.T) {
	handler, repo := newTestHandler(t)
	owner := createAccount(t, repo, "owner@example.com")
	intruder := createAccount(t, repo, "intruder@example.com")

	created := createContactViaAPI(t, handler, owner, "Grace", "Hopper", "grace@example.com")

	rec := httptest.NewRecorder()
	handler.ContactByID(rec, authedRequest(intruder, http.MethodGet, "/api/contacts/"+created.ID, ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign contact, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(intruder, http.MethodGet, "/api/contacts", ""))
	var list []contactResponse
	decodeBody(t, rec, &list)
	if len(list) != 0 {
		t.Fatalf("intruder must not see foreign contacts, got %d", len(list))
	}
}

func TestContactValidationErrors(t *testing.T) {
	handler, repo := newTestHandler(t)
	account := createAccount(t, repo, "owner@example.com")

	rec := httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodPost, "/api/contacts",
		`{"firstName":"Al","lastName":"Hopper","email":"a@example.com","phone":"+380501234567","birthday":"1990-06-15"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short first name, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodPost, "/api/contacts",
		`{"firstName":"Grace","lastName":"Hopper","email":"a@example.com","phone":"+380501234567","birthday":"15.06.1990"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed birthday, got %d", rec.Code)
	}
}

func TestContactsListQueryAndPaging(t *testing.T) {
	handler, repo := newTestHandler(t)
	account := createAccount(t, repo, "owner@example.com")

	createContactViaAPI(t, handler, account, "Grace", "Hopper", "grace@navy.example.com")
	createContactViaAPI(t, handler, account, "Alan", "Turing", "alan@bletchley.example.com")
	createContactViaAPI(t, handler, account, "Radia", "Perlman", "radia@stp.example.com")

	rec := httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodGet, "/api/contacts?q=turing", ""))
	var matches []contactResponse
	decodeBody(t, rec, &matches)
	if len(matches) != 1 || matches[0].LastName != "Turing" {
		t.Fatalf("unexpected search result: %+v", matches)
	}

	rec = httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodGet, "/api/contacts?offset=1&limit=1", ""))
	var page []contactResponse
	decodeBody(t, rec, &page)
	if len(page) != 1 {
		t.Fatalf("expected single-item page, got %d", len(page))
	}

	rec = httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodGet, "/api/contacts?offset=-1", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative offset, got %d", rec.Code)
	}
}

func TestBirthdaysEndpoint(t *testing.T) {
	handler, repo := newTestHandler(t)
	account := createAccount(t, repo, "owner@example.com")

	soon := timeNowBirthday(3)
	far := timeNowBirthday(60)

	rec := httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodPost, "/api/contacts",
		fmt.Sprintf(`{"firstName":"Nearby","lastName":"Person","email":"near@example.com","phone":"+380501234567","birthday":%q}`, soon)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodPost, "/api/contacts",
		fmt.Sprintf(`{"firstName":"Distant","lastName":"Person","email":"far@example.com","phone":"+380501234567","birthday":%q}`, far)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.Birthdays(rec, authedRequest(account, http.MethodGet, "/api/contacts/birthdays?days=7", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("birthdays failed: %d %s", rec.Code, rec.Body.String())
	}
	var upcoming []contactResponse
	decodeBody(t, rec, &upcoming)
	if len(upcoming) != 1 || upcoming[0].FirstName != "Nearby" {
		t.Fatalf("unexpected birthday list: %+v", upcoming)
	}

	rec = httptest.NewRecorder()
	handler.Birthdays(rec, authedRequest(account, http.MethodGet, "/api/contacts/birthdays?days=x", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad days, got %d", rec.Code)
	}
}

func TestBirthdaysZeroDaysMeansToday(t *testing.T) {
	handler, repo := newTestHandler(t)
	account := createAccount(t, repo, "owner@example.com")

	today := timeNowBirthday(0)
	tomorrow := timeNowBirthday(1)

	rec := httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodPost, "/api/contacts",
		fmt.Sprintf(`{"firstName":"Today","lastName":"Person","email":"today@example.com","phone":"+380501234567","birthday":%q}`, today)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	handler.Contacts(rec, authedRequest(account, http.MethodPost, "/api/contacts",
		fmt.Sprintf(`{"firstName":"Tomorrow","lastName":"Person","email":"tomorrow@example.com","phone":"+380501234567","birthday":%q}`, tomorrow)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.Birthdays(rec, authedRequest(account, http.MethodGet, "/api/contacts/birthdays?days=0", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("birthdays failed: %d %s", rec.Code, rec.Body.String())
	}
	var upcoming []contactResponse
	decodeBody(t, rec, &upcoming)
	if len(upcoming) != 1 || upcoming[0].FirstName != "Today" {
		t.Fatalf("days=0 must match today only, got %+v", upcoming)
	}
}
