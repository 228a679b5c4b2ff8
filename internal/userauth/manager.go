package userauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/util/clone"
	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/alex65536/syllabus/internal/util/timeutil"
	"github.com/google/uuid"
)

type ManagerOptions struct {
	GCInterval      time.Duration    `toml:"gc-interval"`
	AccessTokenTTL  time.Duration    `toml:"access-token-ttl"`
	RefreshTokenTTL time.Duration    `toml:"refresh-token-ttl"`
	Password        *PasswordOptions `toml:"password"`
}

func (o ManagerOptions) Clone() ManagerOptions {
	o.Password = clone.TrivialPtr(o.Password)
	return o
}

func (o *ManagerOptions) FillDefaults() {
	if o.GCInterval == 0 {
		o.GCInterval = 5 * time.Minute
	}
	if o.AccessTokenTTL == 0 {
		o.AccessTokenTTL = 1 * time.Hour
	}
	if o.RefreshTokenTTL == 0 {
		o.RefreshTokenTTL = 30 * 24 * time.Hour
	}
}

// Manager is the built-in auth provider. It keeps users and their tokens in DB.
type Manager struct {
	DB
	o      *ManagerOptions
	log    *slog.Logger
	now    func() timeutil.UTCTime
	ctx    context.Context
	cancel func()
	done   chan struct{}
}

var _ account.Auth = (*Manager)(nil)

func NewManager(log *slog.Logger, db DB, o ManagerOptions) *Manager {
	o = o.Clone()
	o.FillDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		DB:     db,
		o:      &o,
		log:    log,
		now:    timeutil.NowUTC,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Manager) Close() {
	m.cancel()
	<-m.done
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *Manager) CreateUser(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return User{}, err
	}
	user := User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: m.now(),
	}
	if err := m.SetPassword(&user, []byte(password)); err != nil {
		return User{}, fmt.Errorf("set password: %w", err)
	}
	if err := m.DB.CreateUser(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (m *Manager) SetPassword(u *User, password []byte) error {
	return u.SetPassword(password, m.o.Password)
}

func (m *Manager) VerifyPassword(u *User, password []byte) bool {
	return u.VerifyPassword(password, m.o.Password)
}

func (m *Manager) newToken(kind TokenKind, user *User, sessionID string, now timeutil.UTCTime) (Token, string, error) {
	ttl := m.o.AccessTokenTTL
	if kind == TokenRefresh {
		ttl = m.o.RefreshTokenTTL
	}
	tok := Token{
		Kind:      kind,
		UserID:    user.ID,
		SessionID: sessionID,
		Epoch:     user.Epoch,
		ExpiresAt: now.Add(ttl),
	}
	val, err := tok.GenerateNew()
	if err != nil {
		return Token{}, "", fmt.Errorf("generate %v token: %w", kind, err)
	}
	return tok, val, nil
}

func (m *Manager) newSession(user *User, sessionID string) (account.Session, []Token, error) {
	now := m.now()
	access, accessVal, err := m.newToken(TokenAccess, user, sessionID, now)
	if err != nil {
		return account.Session{}, nil, err
	}
	refresh, refreshVal, err := m.newToken(TokenRefresh, user, sessionID, now)
	if err != nil {
		return account.Session{}, nil, err
	}
	sess := account.Session{
		Tokens: account.Tokens{
			AccessToken:  accessVal,
			RefreshToken: refreshVal,
			ExpiresAt:    access.ExpiresAt.UTC(),
		},
		User: account.User{ID: user.ID, Email: user.Email},
	}
	return sess, []Token{access, refresh}, nil
}

func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) (account.Session, error) {
	user, err := m.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return account.Session{}, account.ErrInvalidCredentials
		}
		return account.Session{}, fmt.Errorf("get user: %w", err)
	}
	if !m.VerifyPassword(&user, []byte(password)) {
		return account.Session{}, account.ErrInvalidCredentials
	}
	sess, toks, err := m.newSession(&user, uuid.NewString())
	if err != nil {
		return account.Session{}, err
	}
	if err := m.CreateTokens(ctx, toks...); err != nil {
		return account.Session{}, fmt.Errorf("save tokens: %w", err)
	}
	return sess, nil
}

// lookupToken finds a live token of the given kind and its user. Tokens issued
// before the last password change are not accepted.
func (m *Manager) lookupToken(ctx context.Context, val string, kind TokenKind) (Token, User, error) {
	if val == "" {
		return Token{}, User{}, account.ErrInvalidToken
	}
	tok, err := m.GetToken(ctx, HashToken(val), m.now())
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return Token{}, User{}, account.ErrInvalidToken
		}
		return Token{}, User{}, fmt.Errorf("get token: %w", err)
	}
	if tok.Kind != kind {
		return Token{}, User{}, account.ErrInvalidToken
	}
	user, err := m.DB.GetUser(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Token{}, User{}, account.ErrInvalidToken
		}
		return Token{}, User{}, fmt.Errorf("get user: %w", err)
	}
	if user.Epoch != tok.Epoch {
		return Token{}, User{}, account.ErrInvalidToken
	}
	return tok, user, nil
}

func (m *Manager) GetUser(ctx context.Context, accessToken string) (account.User, error) {
	_, user, err := m.lookupToken(ctx, accessToken, TokenAccess)
	if err != nil {
		return account.User{}, err
	}
	return account.User{ID: user.ID, Email: user.Email}, nil
}

// RefreshSession rotates the session: both the old access token and the old refresh
// token stop working.
func (m *Manager) RefreshSession(ctx context.Context, refreshToken string) (account.Session, error) {
	tok, user, err := m.lookupToken(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return account.Session{}, err
	}
	sess, toks, err := m.newSession(&user, tok.SessionID)
	if err != nil {
		return account.Session{}, err
	}
	if err := m.RotateSession(ctx, tok.Hash, toks...); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return account.Session{}, account.ErrInvalidToken
		}
		return account.Session{}, fmt.Errorf("rotate session: %w", err)
	}
	return sess, nil
}

func (m *Manager) SignOut(ctx context.Context, accessToken string) error {
	tok, _, err := m.lookupToken(ctx, accessToken, TokenAccess)
	if err != nil {
		if errors.Is(err, account.ErrInvalidToken) {
			return nil
		}
		return err
	}
	if err := m.DeleteSession(ctx, tok.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *Manager) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.o.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
			err := m.DB.PruneTokens(m.ctx, timeutil.NowUTC())
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Warn("could not prune tokens", slogx.Err(err))
			}
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
