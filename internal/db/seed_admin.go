package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
)

// AdminStore is the slice of the user store the bootstrap needs.
type AdminStore interface {
	GetByUsername(ctx context.Context, username string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// EnsureAdminUser creates the configured admin account unless a user with
// that username already exists. It is a no-op when no admin is configured.
func EnsureAdminUser(ctx context.Context, store AdminStore, hasher PasswordHasher, cfg config.AdminConfig) error {
	if !cfg.Enabled() {
		return nil
	}

	_, err := store.GetByUsername(ctx, cfg.Username)

	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := hasher.Hash(cfg.Password)

	if err != nil {
		return err
	}

	email := cfg.Email
	if email == "" {
		email = cfg.Username + "@localhost"
	}

	_, err = store.Create(ctx, user.User{
		FirstNames:    cfg.FirstNames,
		LastNames:     cfg.LastNames,
		Email:         email,
		Username:      cfg.Username,
		PasswordHash:  hash,
		Phone:         "-",
		Address:       "-",
		Age:           user.MinAge,
		Role:          user.RoleAdmin,
		LearningLevel: user.LevelAdvanced,
	})

	// another instance won the race
	if errors.Is(err, user.ErrUsernameTaken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	return nil
}
