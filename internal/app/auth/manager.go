// Package auth issues and validates access tokens. Tokens are HS256 JWTs
// backed by a server-side session record so they can be revoked before
// expiry.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/user"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/errors"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

const defaultTokenTTL = 24 * time.Hour

// Claims is the JWT payload issued on login.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs tokens, validates them against the session store and purges
// expired sessions in the background.
type Manager struct {
	secret   []byte
	tokenTTL time.Duration
	users    storage.UserStore
	sessions storage.SessionStore
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewManager(secret string, tokenTTL time.Duration, users storage.UserStore, sessions storage.SessionStore, log *logger.Logger) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.BadRequest("auth secret is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Manager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		sessions: sessions,
		log:      log,
	}, nil
}

// Login verifies credentials and issues a token with a backing session.
func (m *Manager) Login(ctx context.Context, username, password string) (string, user.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", user.User{}, errors.Unauthorized("invalid credentials")
	}

	u, err := m.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", user.User{}, errors.Unauthorized("invalid credentials")
	}
	if !u.Active {
		return "", user.User{}, errors.Unauthorized("account disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", user.User{}, errors.Unauthorized("invalid credentials")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.tokenTTL)
	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   u.ID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", user.User{}, errors.Internal("sign token", err)
	}

	_, err = m.sessions.CreateSession(ctx, user.Session{
		UserID:    u.ID,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", user.User{}, errors.Internal("persist session", err)
	}

	m.log.WithField("user", u.Username).Info("user logged in")
	return token, u, nil
}

// Validate parses the token and confirms its backing session still exists.
func (m *Manager) Validate(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !parsed.Valid {
		return nil, errors.InvalidToken(nil)
	}

	session, err := m.sessions.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, errors.SessionExpired()
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		_ = m.sessions.DeleteSession(ctx, session.TokenHash)
		return nil, errors.SessionExpired()
	}

	return claims, nil
}

// Logout revokes the session backing the token. Revoking an unknown token is
// not an error.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if err := m.sessions.DeleteSession(ctx, HashToken(token)); err != nil {
		m.log.WithError(err).Debug("logout for unknown session")
	}
	return nil
}

// Bootstrap creates the initial admin account when the user table is empty.
func (m *Manager) Bootstrap(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil
	}

	existing, err := m.users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = m.users.CreateUser(ctx, user.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         user.RoleAdmin,
		Active:       true,
	})
	if err != nil {
		return err
	}
	m.log.WithField("user", username).Info("bootstrap admin created")
	return nil
}

// HashToken returns the hex SHA-256 of the token for session storage.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Name implements system.Service.
func (m *Manager) Name() string { return "auth" }

// Start launches the expired-session reaper.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.reapLoop(runCtx)
	return nil
}

// Stop halts the reaper.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) reapLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sessions.DeleteExpiredSessions(ctx, time.Now().UTC()); err != nil {
				m.log.WithError(err).Warn("purge expired sessions")
			}
		}
	}
}
