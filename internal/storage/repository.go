package storage

import (
	"context"
	"errors"
	"time"

	"contactdesk/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when registering an email that is already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned when password verification fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotConfirmed is returned when an unconfirmed account attempts to log in.
	ErrNotConfirmed = errors.New("email not confirmed")
)

// CreateAccountParams carries the fields required to register an account.
// Password is hashed by the repository before persisting.
type CreateAccountParams struct {
	Username  string
	Email     string
	Password  string
	AvatarURL string
}

// ContactParams carries the mutable fields of a contact for create and update.
type ContactParams struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Birthday  models.Date
	Note      string
}

// ListContactsOptions control pagination and filtering of contact listings.
// Query, when non-empty, restricts results to contacts whose first name, last
// name, or email contains the query (case-folded).
type ListContactsOptions struct {
	Offset int
	Limit  int
	Query  string
}

// Repository exposes the datastore operations required by the API handlers
// and the background purger.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateAccount(ctx context.Context, params CreateAccountParams) (models.Account, error)
	AuthenticateAccount(ctx context.Context, email, password string) (models.Account, error)
	GetAccount(ctx context.Context, id string) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)
	SetRefreshTokenHash(ctx context.Context, accountID, hash string) error
	ConfirmEmail(ctx context.Context, email string) error
	SetAvatarURL(ctx context.Context, accountID, url string) (models.Account, error)
	PurgeUnconfirmedAccounts(ctx context.Context, olderThan time.Time) (int, error)

	CreateContact(ctx context.Context, ownerID string, params ContactParams) (models.Contact, error)
	GetContact(ctx context.Context, ownerID, id string) (models.Contact, error)
	ListContacts(ctx context.Context, ownerID string, opts ListContactsOptions) ([]models.Contact, error)
	UpdateContact(ctx context.Context, ownerID, id string, params ContactParams) (models.Contact, error)
	DeleteContact(ctx context.Context, ownerID, id string) (models.Contact, error)
	UpcomingBirthdays(ctx context.Context, ownerID string, days int, now time.Time) ([]models.Contact, error)
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*postgresRepository)(nil)
)
