package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/quire/internal/apperr"
)

// CredentialStore looks up stored password hashes by username.
type CredentialStore interface {
	PasswordHash(ctx context.Context, username string) (string, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// Service authenticates users against a CredentialStore.
type Service struct {
	creds  CredentialStore
	issuer *Issuer
	logger *slog.Logger
}

// NewService creates a login service.
func NewService(creds CredentialStore, issuer *Issuer, logger *slog.Logger) *Service {
	return &Service{creds: creds, issuer: issuer, logger: logger}
}

// Login checks username and password and returns a new session. Unknown
// users and wrong passwords both fail with apperr.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	hash, err := s.creds.PasswordHash(ctx, username)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		s.logger.Warn("login rejected", slog.String("username", username), slog.String("reason", "unknown user"))
		return nil, apperr.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}
	if !s.issuer.VerifyPassword(password, hash) {
		s.logger.Warn("login rejected", slog.String("username", username), slog.String("reason", "bad password"))
		return nil, apperr.ErrInvalidCredentials
	}
	token, exp, err := s.issuer.IssueToken(username)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", slog.String("username", username))
	return &Session{Token: token, Username: username, ExpiresAt: exp}, nil
}

// Verify returns the username carried by a valid token.
func (s *Service) Verify(token string) (string, error) {
	claims, err := s.issuer.ParseToken(token)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}
