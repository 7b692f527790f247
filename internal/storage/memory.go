package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"contactdesk/internal/models"
)

// MemoryRepository keeps all records in process memory. It is safe for
// concurrent use and intended for development and tests; production
// deployments use the Postgres repository.
type MemoryRepository struct {
	mu         sync.RWMutex
	accounts   map[string]models.Account
	contacts   map[string]models.Contact
	bcryptCost int
	clock      func() time.Time
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository(opts ...Option) *MemoryRepository {
	cfg := newMemoryConfig(opts...)
	return &MemoryRepository{
		accounts:   make(map[string]models.Account),
		contacts:   make(map[string]models.Contact),
		bcryptCost: cfg.BcryptCost,
		clock:      cfg.Clock,
	}
}

func (r *MemoryRepository) now() time.Time {
	if r.clock != nil {
		return r.clock().UTC()
	}
	return time.Now().UTC()
}

// Ping always reports success for the in-memory repository.
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory repository.
func (r *MemoryRepository) Close(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (models.Account, error) {
	if err := validateAccountParams(&params); err != nil {
		return models.Account{}, err
	}
	hashed, err := hashPassword(params.Password, r.bcryptCost)
	if err != nil {
		return models.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if existing.Email == params.Email {
			return models.Account{}, ErrEmailTaken
		}
	}
	account := models.Account{
		ID:           uuid.NewString(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: hashed,
		AvatarURL:    strings.TrimSpace(params.AvatarURL),
		CreatedAt:    r.now(),
	}
	r.accounts[account.ID] = account
	return account, nil
}

func (r *MemoryRepository) AuthenticateAccount(ctx context.Context, email, password string) (models.Account, error) {
	account, err := r.GetAccountByEmail(ctx, email)
	if err != nil {
		return models.Account{}, err
	}
	if !account.Confirmed {
		return models.Account{}, ErrNotConfirmed
	}
	if err := verifyPassword(account.PasswordHash, password); err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (r *MemoryRepository) GetAccount(ctx context.Context, id string) (models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return account, nil
}

func (r *MemoryRepository) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	normalized := normalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.accounts {
		if account.Email == normalized {
			return account, nil
		}
	}
	return models.Account{}, ErrNotFound
}

func (r *MemoryRepository) SetRefreshTokenHash(ctx context.Context, accountID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	account.RefreshTokenHash = hash
	r.accounts[accountID] = account
	return nil
}

func (r *MemoryRepository) ConfirmEmail(ctx context.Context, email string) error {
	normalized := normalizeEmail(email)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, account := range r.accounts {
		if account.Email == normalized {
			account.Confirmed = true
			r.accounts[id] = account
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) SetAvatarURL(ctx context.Context, accountID, url string) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	account.AvatarURL = strings.TrimSpace(url)
	r.accounts[accountID] = account
	return account, nil
}

func (r *MemoryRepository) PurgeUnconfirmedAccounts(ctx context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	purged := 0
	for id, account := range r.accounts {
		if account.Confirmed || !account.CreatedAt.Before(olderThan) {
			continue
		}
		delete(r.accounts, id)
		for contactID, contact := range r.contacts {
			if contact.OwnerID == id {
				delete(r.contacts, contactID)
			}
		}
		purged++
	}
	return purged, nil
}

func (r *MemoryRepository) CreateContact(ctx context.Context, ownerID string, params ContactParams) (models.Contact, error) {
	if err := validateContactParams(&params); err != nil {
		return models.Contact{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[ownerID]; !ok {
		return models.Contact{}, ErrNotFound
	}
	now := r.now()
	contact := models.Contact{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Email:     params.Email,
		Phone:     params.Phone,
		Birthday:  params.Birthday,
		Note:      params.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.contacts[contact.ID] = contact
	return contact, nil
}

func (r *MemoryRepository) GetContact(ctx context.Context, ownerID, id string) (models.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	contact, ok := r.contacts[id]
	if !ok || contact.OwnerID != ownerID {
		return models.Contact{}, ErrNotFound
	}
	return contact, nil
}

func (r *MemoryRepository) ListContacts(ctx context.Context, ownerID string, opts ListContactsOptions) ([]models.Contact, error) {
	r.mu.RLock()
	owned := make([]models.Contact, 0)
	for _, contact := range r.contacts {
		if contact.OwnerID != ownerID {
			continue
		}
		if !contactMatchesQuery(contact, opts.Query) {
			continue
		}
		owned = append(owned, contact)
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.Before(owned[j].CreatedAt)
		}
		return owned[i].ID < owned[j].ID
	})

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(owned) {
		return []models.Contact{}, nil
	}
	owned = owned[offset:]
	if opts.Limit > 0 && opts.Limit < len(owned) {
		owned = owned[:opts.Limit]
	}
	return owned, nil
}

func (r *MemoryRepository) UpdateContact(ctx context.Context, ownerID, id string, params ContactParams) (models.Contact, error) {
	if err := validateContactParams(&params); err != nil {
		return models.Contact{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	contact, ok := r.contacts[id]
	if !ok || contact.OwnerID != ownerID {
		return models.Contact{}, ErrNotFound
	}
	contact.FirstName = params.FirstName
	contact.LastName = params.LastName
	contact.Email = params.Email
	contact.Phone = params.Phone
	contact.Birthday = params.Birthday
	contact.Note = params.Note
	contact.UpdatedAt = r.now()
	r.contacts[id] = contact
	return contact, nil
}

func (r *MemoryRepository) DeleteContact(ctx context.Context, ownerID, id string) (models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contact, ok := r.contacts[id]
	if !ok || contact.OwnerID != ownerID {
		return models.Contact{}, ErrNotFound
	}
	delete(r.contacts, id)
	return contact, nil
}

func (r *MemoryRepository) UpcomingBirthdays(ctx context.Context, ownerID string, days int, now time.Time) ([]models.Contact, error) {
	contacts, err := r.ListContacts(ctx, ownerID, ListContactsOptions{})
	if err != nil {
		return nil, err
	}
	return filterUpcomingBirthdays(contacts, days, now), nil
}
