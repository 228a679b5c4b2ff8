package userauth

import (
	"context"
	"errors"

	"github.com/alex65536/syllabus/internal/util/timeutil"
)

var (
	ErrUserAlreadyExists = errors.New("user with such email already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrTokenNotFound     = errors.New("token not found")
)

type DB interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, user User) error
	CreateTokens(ctx context.Context, tokens ...Token) error
	// GetToken returns ErrTokenNotFound if there is no such token, or it expired.
	GetToken(ctx context.Context, tokenHash string, now timeutil.UTCTime) (Token, error)
	// RotateSession atomically deletes all the tokens of the session the refresh token
	// belongs to and stores the new ones. It returns ErrTokenNotFound if the refresh
	// token has already been used.
	RotateSession(ctx context.Context, refreshHash string, tokens ...Token) error
	DeleteSession(ctx context.Context, sessionID string) error
	PruneTokens(ctx context.Context, now timeutil.UTCTime) error
}
