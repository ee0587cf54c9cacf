// Package auth implements the local mock sign-in: credentials are checked
// for shape only and a random session token is kept in storage.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/longkey1/flowchat/internal/flowchat/storage"
	"go.uber.org/zap"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// TokenPrefix starts every issued token.
const TokenPrefix = "flowchat-"

var (
	// ErrNotAuthenticated is returned when no session token is stored.
	ErrNotAuthenticated = errors.New("not logged in: run 'flowchat login' first")
	// ErrInvalidToken is returned by Verify for a token that does not match.
	ErrInvalidToken = errors.New("invalid session token")
)

// CredentialError describes rejected login or signup input.
type CredentialError struct {
	Field  string
	Reason string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Authenticator issues and checks the local session token
type Authenticator struct {
	storage storage.Storage
	logger  *zap.Logger
}

// New creates an authenticator backed by s.
func New(s storage.Storage, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{storage: s, logger: logger}
}

// Login checks the credentials' shape and stores a new token.
func (a *Authenticator) Login(email, password string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if len(password) < MinPasswordLength {
		return "", &CredentialError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	return a.issue(email)
}

// Signup is Login with a required display name.
func (a *Authenticator) Signup(name, email, password string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &CredentialError{Field: "name", Reason: "must not be empty"}
	}
	return a.Login(email, password)
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" || !strings.Contains(addr.Address, "@") {
		return &CredentialError{Field: "email", Reason: "not a valid email address"}
	}
	return nil
}

func (a *Authenticator) issue(email string) (string, error) {
	token := TokenPrefix + uuid.New().String()
	if err := storage.SetJSON(a.storage, storage.KeyAuthToken, token); err != nil {
		return "", fmt.Errorf("failed to store session token: %w", err)
	}
	a.logger.Debug("Session token issued", zap.String("email", email))
	return token, nil
}

// Logout removes the stored token.
func (a *Authenticator) Logout() error {
	if err := a.storage.Delete(storage.KeyAuthToken); err != nil {
		return fmt.Errorf("failed to remove session token: %w", err)
	}
	return nil
}

// Token returns the stored token or ErrNotAuthenticated.
func (a *Authenticator) Token() (string, error) {
	var token string
	if err := storage.GetJSON(a.storage, storage.KeyAuthToken, &token); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNotAuthenticated
		}
		return "", err
	}
	if token == "" {
		return "", ErrNotAuthenticated
	}
	return token, nil
}

// Require returns ErrNotAuthenticated unless a token is stored.
func (a *Authenticator) Require() error {
	_, err := a.Token()
	return err
}

// Verify checks a presented token against the stored one.
func (a *Authenticator) Verify(token string) error {
	stored, err := a.Token()
	if err != nil {
		return err
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
