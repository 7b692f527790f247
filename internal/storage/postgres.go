package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"contactdesk/internal/models"
)

const pgUniqueViolation = "23505"

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and applies any
// pending schema migrations.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresRepository{pool: pool, cfg: cfg}, nil
}

func (r *postgresRepository) now() time.Time {
	if r.cfg.Clock != nil {
		return r.cfg.Clock().UTC()
	}
	return time.Now().UTC()
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

const accountColumns = `id, username, email, password_hash, avatar_url, refresh_token_hash, confirmed, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.AvatarURL,
		&account.RefreshTokenHash,
		&account.Confirmed,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("scan account: %w", err)
	}
	return account, nil
}

func (r *postgresRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (models.Account, error) {
	if err := validateAccountParams(&params); err != nil {
		return models.Account{}, err
	}
	hashed, err := hashPassword(params.Password, r.cfg.BcryptCost)
	if err != nil {
		return models.Account{}, err
	}
	account := models.Account{
		ID:           uuid.NewString(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: hashed,
		AvatarURL:    strings.TrimSpace(params.AvatarURL),
		CreatedAt:    r.now(),
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO accounts (id, username, email, password_hash, avatar_url, refresh_token_hash, confirmed, created_at)
VALUES ($1, $2, $3, $4, $5, '', FALSE, $6)
`, account.ID, account.Username, account.Email, account.PasswordHash, account.AvatarURL, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.Account{}, ErrEmailTaken
		}
		return models.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

func (r *postgresRepository) AuthenticateAccount(ctx context.Context, email, password string) (models.Account, error) {
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

func (r *postgresRepository) GetAccount(ctx context.Context, id string) (models.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *postgresRepository) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, normalizeEmail(email))
	return scanAccount(row)
}

func (r *postgresRepository) SetRefreshTokenHash(ctx context.Context, accountID, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET refresh_token_hash = $2 WHERE id = $1`, accountID, hash)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) ConfirmEmail(ctx context.Context, email string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET confirmed = TRUE WHERE email = $1`, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) SetAvatarURL(ctx context.Context, accountID, url string) (models.Account, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE accounts SET avatar_url = $2 WHERE id = $1
RETURNING `+accountColumns, accountID, strings.TrimSpace(url))
	return scanAccount(row)
}

func (r *postgresRepository) PurgeUnconfirmedAccounts(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
DELETE FROM accounts WHERE confirmed = FALSE AND created_at < $1
`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge unconfirmed accounts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const contactColumns = `id, owner_id, first_name, last_name, email, phone, birthday, note, created_at, updated_at`

func scanContact(row rowScanner) (models.Contact, error) {
	var contact models.Contact
	var birthday time.Time
	err := row.Scan(
		&contact.ID,
		&contact.OwnerID,
		&contact.FirstName,
		&contact.LastName,
		&contact.Email,
		&contact.Phone,
		&birthday,
		&contact.Note,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Contact{}, ErrNotFound
		}
		return models.Contact{}, fmt.Errorf("scan contact: %w", err)
	}
	contact.Birthday = models.DateOf(birthday)
	return contact, nil
}

func (r *postgresRepository) CreateContact(ctx context.Context, ownerID string, params ContactParams) (models.Contact, error) {
	if err := validateContactParams(&params); err != nil {
		return models.Contact{}, err
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
	_, err := r.pool.Exec(ctx, `
INSERT INTO contacts (id, owner_id, first_name, last_name, email, phone, birthday, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, contact.ID, contact.OwnerID, contact.FirstName, contact.LastName, contact.Email, contact.Phone,
		contact.Birthday.Time(), contact.Note, contact.CreatedAt, contact.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "contacts_owner_id_fkey" {
			return models.Contact{}, ErrNotFound
		}
		return models.Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	return contact, nil
}

func (r *postgresRepository) GetContact(ctx context.Context, ownerID, id string) (models.Contact, error) {
	row := r.pool.QueryRow(ctx, `
SELECT `+contactColumns+` FROM contacts WHERE id = $1 AND owner_id = $2
`, id, ownerID)
	return scanContact(row)
}

func (r *postgresRepository) ListContacts(ctx context.Context, ownerID string, opts ListContactsOptions) ([]models.Contact, error) {
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // LIMIT ALL
	}
	rows, err := r.pool.Query(ctx, `
SELECT `+contactColumns+` FROM contacts
WHERE owner_id = $1
  AND ($2 = '' OR first_name ILIKE $3 OR last_name ILIKE $3 OR email ILIKE $3)
ORDER BY created_at, id
OFFSET $4 LIMIT NULLIF($5, -1)
`, ownerID, strings.TrimSpace(opts.Query), likePattern(opts.Query), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

func (r *postgresRepository) UpdateContact(ctx context.Context, ownerID, id string, params ContactParams) (models.Contact, error) {
	if err := validateContactParams(&params); err != nil {
		return models.Contact{}, err
	}
	row := r.pool.QueryRow(ctx, `
UPDATE contacts
SET first_name = $3, last_name = $4, email = $5, phone = $6, birthday = $7, note = $8, updated_at = $9
WHERE id = $1 AND owner_id = $2
RETURNING `+contactColumns, id, ownerID, params.FirstName, params.LastName, params.Email, params.Phone,
		params.Birthday.Time(), params.Note, r.now())
	return scanContact(row)
}

func (r *postgresRepository) DeleteContact(ctx context.Context, ownerID, id string) (models.Contact, error) {
	row := r.pool.QueryRow(ctx, `
DELETE FROM contacts WHERE id = $1 AND owner_id = $2
RETURNING `+contactColumns, id, ownerID)
	return scanContact(row)
}

func (r *postgresRepository) UpcomingBirthdays(ctx context.Context, ownerID string, days int, now time.Time) ([]models.Contact, error) {
	// The year-wrap arithmetic lives in one place shared with the memory
	// repository, so the window is computed in Go rather than SQL.
	contacts, err := r.ListContacts(ctx, ownerID, ListContactsOptions{})
	if err != nil {
		return nil, err
	}
	return filterUpcomingBirthdays(contacts, days, now), nil
}

// likePattern wraps the query for ILIKE matching, escaping the pattern
// metacharacters so user input matches literally.
func likePattern(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "%"
	}
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(query) + "%"
}
