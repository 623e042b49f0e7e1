package auth

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/user"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage/memory"
)

func newTestManager(t *testing.T) (*Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	m, err := NewManager("test-secret", time.Hour, store, store, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, store
}

func seedUser(t *testing.T, store *memory.Store, username, password string, role user.Role) user.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := store.CreateUser(context.Background(), user.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestLoginIssuesValidatableToken(t *testing.T) {
	m, store := newTestManager(t)
	seedUser(t, store, "alice", "s3cret", user.RoleAnalyst)

	ctx := context.Background()
	token, u, err := m.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("user = %s, want alice", u.Username)
	}

	claims, err := m.Validate(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Username != "alice" || claims.Role != string(user.RoleAnalyst) {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	m, store := newTestManager(t)
	seedUser(t, store, "alice", "s3cret", user.RoleViewer)

	if _, _, err := m.Login(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	m, store := newTestManager(t)
	u := seedUser(t, store, "bob", "pw", user.RoleViewer)
	u.Active = false
	if _, err := store.UpdateUser(context.Background(), u); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, _, err := m.Login(context.Background(), "bob", "pw"); err == nil {
		t.Fatal("expected login failure for inactive account")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	m, store := newTestManager(t)
	seedUser(t, store, "alice", "s3cret", user.RoleAdmin)

	ctx := context.Background()
	token, _, err := m.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := m.Validate(ctx, token); err == nil {
		t.Fatal("expected validation failure after logout")
	}
}

func TestValidateRejectsForgedToken(t *testing.T) {
	m, store := newTestManager(t)
	seedUser(t, store, "alice", "s3cret", user.RoleAdmin)

	other, err := NewManager("other-secret", time.Hour, store, store, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := other.Login(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := m.Validate(context.Background(), token); err == nil {
		t.Fatal("expected validation failure for token signed with other secret")
	}
}

func TestBootstrapCreatesAdminOnce(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	if err := m.Bootstrap(ctx, "admin", "changeme"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Role != user.RoleAdmin {
		t.Fatalf("users = %+v", users)
	}

	if err := m.Bootstrap(ctx, "admin2", "changeme"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	users, _ = store.ListUsers(ctx)
	if len(users) != 1 {
		t.Fatalf("expected bootstrap to be a no-op, got %d users", len(users))
	}
}
