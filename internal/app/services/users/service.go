// Package users manages operator accounts and their roles.
package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/user"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

const minPasswordLength = 8

// Service coordinates operator account management.
type Service struct {
	store storage.UserStore
	log   *logger.Logger
}

// New creates a configured users service.
func New(store storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, log: log}
}

// Create provisions a new account with a hashed password.
func (s *Service) Create(ctx context.Context, username, email, password string, role user.Role) (user.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" {
		return user.User{}, fmt.Errorf("username is required")
	}
	if len(password) < minPasswordLength {
		return user.User{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if !role.Valid() {
		return user.User{}, fmt.Errorf("unknown role %q", role)
	}

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return user.User{}, fmt.Errorf("user with username %q already exists", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, err
	}

	u, err := s.store.CreateUser(ctx, user.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return user.User{}, err
	}

	s.log.WithField("user_id", u.ID).
		WithField("role", string(role)).
		Info("user created")
	return u, nil
}

// Update applies modifications to an account. Nil fields are left unchanged.
func (s *Service) Update(ctx context.Context, id string, email *string, role *user.Role, active *bool) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if email != nil {
		u.Email = strings.TrimSpace(*email)
	}
	if role != nil {
		if !role.Valid() {
			return user.User{}, fmt.Errorf("unknown role %q", *role)
		}
		u.Role = *role
	}
	if active != nil {
		u.Active = *active
	}

	u, err = s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", u.ID).Info("user updated")
	return u, nil
}

// ChangePassword replaces an account's password.
func (s *Service) ChangePassword(ctx context.Context, id, password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)

	if _, err := s.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	s.log.WithField("user_id", id).Info("password changed")
	return nil
}

// Get returns the account with the given ID.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.log.WithField("user_id", id).Info("user deleted")
	return nil
}
