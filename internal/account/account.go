package account

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrProfileNotFound    = errors.New("profile not found")
)

// Auth is the authentication side of a backend provider.
type Auth interface {
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	// GetUser validates the access token with the provider. It returns ErrInvalidToken
	// if the token is not accepted.
	GetUser(ctx context.Context, accessToken string) (User, error)
	// RefreshSession exchanges a refresh token for a new session. It returns
	// ErrInvalidToken if the refresh token is not accepted.
	RefreshSession(ctx context.Context, refreshToken string) (Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Profiles is the data side of a backend provider.
type Profiles interface {
	// GetProfile reads the profile keyed by the session's user ID. It returns
	// ErrProfileNotFound if there is no such profile.
	GetProfile(ctx context.Context, sess *Session) (Profile, error)
}

type Backend interface {
	Auth
	Profiles
}
