package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/galerly/galerly/cache"
	"github.com/galerly/galerly/cache/types"
	"github.com/galerly/galerly/database/repo/accounts"
	"github.com/galerly/galerly/utils/crypto"
)

// ErrInvalidCredentials is returned for a bad username or password.
// One error for both cases so responses do not leak which part failed.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrInvalidRefreshToken is returned for unknown or expired refresh tokens.
var ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

// refreshSession is what a refresh token resolves to. SessionID
// survives token rotation so a login can be traced across refreshes.
type refreshSession struct {
	SessionID string `json:"session_id"`
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
}

// LoginService authenticates users and manages refresh sessions.
// Sessions live in the cache under the refresh token; a cache flush
// logs everyone out, which is acceptable for this deployment size.
type LoginService struct {
	accounts *accounts.Repository
	jwt      *JWTService
	sessions types.Cache
}

// NewLoginService creates the login service.
func NewLoginService(accountsRepo *accounts.Repository, jwt *JWTService, sessions types.Cache) *LoginService {
	return &LoginService{
		accounts: accountsRepo,
		jwt:      jwt,
		sessions: sessions,
	}
}

// Login verifies credentials and issues a token pair.
func (s *LoginService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.accounts.WithContext(ctx).GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, accounts.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	match, err := crypto.ComparePasswordAndHash(password, user.Password)
	if err != nil {
		return nil, fmt.Errorf("password verification failed: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.jwt.GenerateTokens(user.Username, user.ID)
	if err != nil {
		return nil, err
	}

	session := refreshSession{
		SessionID: uuid.New().String(),
		UserID:    user.ID,
		Username:  user.Username,
	}
	if err := s.sessions.Set(ctx, cache.RefreshToken.Build(pair.RefreshToken), session, s.jwt.RefreshExpiresIn()); err != nil {
		return nil, fmt.Errorf("failed to store refresh session: %w", err)
	}

	log.Printf("[Auth] user %s logged in, session %s", user.Username, session.SessionID)
	return pair, nil
}

// Refresh rotates a refresh token: the old session is consumed and a
// fresh pair is issued.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	key := cache.RefreshToken.Build(refreshToken)

	var session refreshSession
	if err := s.sessions.Get(ctx, key, &session); err != nil {
		if types.IsCacheMiss(err) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	// The user may have been deleted since login.
	user, err := s.accounts.WithContext(ctx).GetUserByID(session.UserID)
	if err != nil {
		if errors.Is(err, accounts.ErrUserNotFound) {
			_ = s.sessions.Delete(ctx, key)
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	pair, err := s.jwt.GenerateTokens(user.Username, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Delete(ctx, key); err != nil {
		log.Printf("[Auth] failed to consume refresh token: %v", err)
	}
	newSession := refreshSession{
		SessionID: session.SessionID,
		UserID:    user.ID,
		Username:  user.Username,
	}
	if err := s.sessions.Set(ctx, cache.RefreshToken.Build(pair.RefreshToken), newSession, s.jwt.RefreshExpiresIn()); err != nil {
		return nil, fmt.Errorf("failed to store refresh session: %w", err)
	}

	return pair, nil
}

// Logout invalidates a refresh token. Unknown tokens are a no-op.
func (s *LoginService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Delete(ctx, cache.RefreshToken.Build(refreshToken))
}
