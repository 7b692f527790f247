package main

import (
	"context"
	"testing"

	"contactdesk/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

func TestBootstrapAccountCreatesConfirmedAccount(t *testing.T) {
	repo := storage.NewMemoryRepository(storage.WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()

	created, err := bootstrapAccount(ctx, repo, "adminuser", "Admin@Example.com", "sup3rsecret")
	if err != nil {
		t.Fatalf("bootstrapAccount: %v", err)
	}
	if !created {
		t.Fatal("expected account to be created")
	}

	account, err := repo.GetAccountByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	if !account.Confirmed {
		t.Fatal("expected account to be confirmed")
	}
	if account.AvatarURL == "" {
		t.Fatal("expected default avatar to be assigned")
	}

	if _, err := repo.AuthenticateAccount(ctx, "admin@example.com", "sup3rsecret"); err != nil {
		t.Fatalf("expected password to authenticate: %v", err)
	}
}

func TestBootstrapAccountConfirmsExisting(t *testing.T) {
	repo := storage.NewMemoryRepository(storage.WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()

	if _, err := repo.CreateAccount(ctx, storage.CreateAccountParams{
		Username: "adminuser",
		Email:    "admin@example.com",
		Password: "originalpass",
	}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	created, err := bootstrapAccount(ctx, repo, "adminuser", "admin@example.com", "newpassword")
	if err != nil {
		t.Fatalf("bootstrapAccount: %v", err)
	}
	if created {
		t.Fatal("expected existing account to be reused")
	}

	account, err := repo.GetAccountByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	if !account.Confirmed {
		t.Fatal("expected existing account to be confirmed")
	}

	if _, err := repo.AuthenticateAccount(ctx, "admin@example.com", "originalpass"); err != nil {
		t.Fatalf("expected original password to be kept: %v", err)
	}
}
