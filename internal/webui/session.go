package webui

import (
	"context"
	"encoding/gob"
	"net/http"
	"time"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/gorilla/sessions"
)

const (
	sessionName      = "syllabus_session"
	sessionTokensKey = "tokens"
)

type SessionOptions struct {
	Key             []byte        `toml:"-"`
	MaxAge          time.Duration `toml:"max-age"`
	Secure          bool          `toml:"secure"`
	CleanupInterval time.Duration `toml:"cleanup-interval"`
}

func (o *SessionOptions) FillDefaults() {
	if o.MaxAge == 0 {
		o.MaxAge = 30 * 24 * time.Hour
	}
	if o.CleanupInterval == 0 {
		o.CleanupInterval = 1 * time.Hour
	}
}

func (o SessionOptions) KeyPairs() [][]byte {
	return [][]byte{o.Key}
}

func (o *SessionOptions) SetupSession(so *sessions.Options) {
	so.Path = "/"
	so.MaxAge = int(o.MaxAge / time.Second)
	so.HttpOnly = true
	so.Secure = o.Secure
	so.SameSite = http.SameSiteLaxMode
}

type SessionStoreFactory interface {
	NewSessionStore(ctx context.Context, opts SessionOptions) sessions.Store
}

// storedTokens is what the cookie session keeps about the login. The user is not
// stored: it is looked up from the access token on each request.
type storedTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func makeStoredTokens(t account.Tokens) storedTokens {
	return storedTokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
	}
}

func (t storedTokens) Tokens() account.Tokens {
	return account.Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
	}
}

func init() {
	gob.Register(storedTokens{})
}
