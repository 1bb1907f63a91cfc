package auth

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quizpoint/internal/domain"
)

// TokenSession holds the bearer token of the current user.
// JWT tokens are inspected (unverified) for their subject and expiry; the backend
// remains the authority. Opaque tokens are accepted as-is.
type TokenSession struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

func NewTokenSession(token string) *TokenSession {
	return NewTokenSessionWithClock(token, time.Now)
}

// NewTokenSessionWithClock allows deterministic expiry checks in tests.
func NewTokenSessionWithClock(token string, now func() time.Time) *TokenSession {
	return &TokenSession{token: strings.TrimSpace(token), now: now}
}

// Token returns the bearer token, if any.
func (s *TokenSession) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken replaces the token, e.g. after a login.
func (s *TokenSession) SetToken(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Clear forgets the token.
func (s *TokenSession) Clear() {
	s.SetToken("")
}

// Principal describes the caller or returns domain.ErrNotAuthenticated.
func (s *TokenSession) Principal() (domain.Principal, error) {
	token, ok := s.Token()
	if !ok {
		return domain.Principal{}, domain.ErrNotAuthenticated
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		// Not a JWT (e.g. an opaque personal access token).
		return domain.Principal{}, nil
	}

	principal := domain.Principal{Subject: claims.Subject}
	if id, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
		principal.UserID = id
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		principal.ExpiresAt = &exp
		if !s.now().Before(exp) {
			return domain.Principal{}, domain.ErrNotAuthenticated
		}
	}
	return principal, nil
}
