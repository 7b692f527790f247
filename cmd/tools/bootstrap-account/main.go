// Command bootstrap-account seeds a confirmed account in the datastore,
// bypassing the email confirmation flow. Intended for local development and
// first-run provisioning.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"contactdesk/internal/media"
	"contactdesk/internal/storage"
)

func main() {
	var (
		postgresDSN string
		username    string
		email       string
		password    string
	)

	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&username, "username", "", "Username for the account")
	flag.StringVar(&email, "email", "", "Email address for the account")
	flag.StringVar(&password, "password", "", "Password for the account")
	flag.Parse()

	if strings.TrimSpace(postgresDSN) == "" {
		postgresDSN = strings.TrimSpace(os.Getenv("CONTACTDESK_POSTGRES_DSN"))
	}
	if postgresDSN == "" {
		fatalf("--postgres-dsn or CONTACTDESK_POSTGRES_DSN is required")
	}
	if strings.TrimSpace(username) == "" {
		fatalf("--username is required")
	}
	if strings.TrimSpace(email) == "" {
		fatalf("--email is required")
	}
	if len(password) < 6 {
		fatalf("--password must be at least 6 characters")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := storage.NewPostgresRepository(ctx, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = repo.Close(closeCtx)
	}()

	created, err := bootstrapAccount(ctx, repo, username, email, password)
	if err != nil {
		fatalf("bootstrap account: %v", err)
	}

	state := "confirmed"
	if created {
		state = "created and confirmed"
	}
	fmt.Printf("Account %s %s successfully.\n", strings.ToLower(strings.TrimSpace(email)), state)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// bootstrapAccount creates the account when missing and marks it confirmed
// either way. An existing account keeps its password.
func bootstrapAccount(ctx context.Context, repo storage.Repository, username, email, password string) (bool, error) {
	created := true
	_, err := repo.CreateAccount(ctx, storage.CreateAccountParams{
		Username:  strings.TrimSpace(username),
		Email:     email,
		Password:  password,
		AvatarURL: media.GravatarURL(email, 250),
	})
	switch {
	case errors.Is(err, storage.ErrEmailTaken):
		created = false
	case err != nil:
		return false, err
	}

	if err := repo.ConfirmEmail(ctx, email); err != nil {
		return created, err
	}
	return created, nil
}
