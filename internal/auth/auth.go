// Package auth signs users in. The authenticator is a stand-in that accepts
// any well-formed email; sessions are carried as signed tokens.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("email and password are required")
	ErrInvalidToken       = errors.New("invalid or expired session token")
)

type Credentials struct {
	Email    string
	Password string
}

type User struct {
	Email string `json:"email"`
}

// Authenticator resolves credentials to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (User, error)
}

// Mock waits Delay and then accepts any non-empty email and password.
type Mock struct {
	Delay time.Duration
}

func NewMock(delay time.Duration) *Mock {
	return &Mock{Delay: delay}
}

func (m *Mock) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	email := strings.TrimSpace(strings.ToLower(creds.Email))
	if email == "" || !strings.Contains(email, "@") || creds.Password == "" {
		return User{}, ErrInvalidCredentials
	}
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return User{}, ctx.Err()
		case <-t.C:
		}
	}
	return User{Email: email}, nil
}
