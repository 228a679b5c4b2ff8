package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alex65536/syllabus/internal/account"
)

type userBody struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (u userBody) toUser() account.User {
	return account.User{ID: u.ID, Email: u.Email}
}

type sessionBody struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         userBody `json:"user"`
}

func (s sessionBody) toSession(now time.Time) account.Session {
	var expiresAt time.Time
	switch {
	case s.ExpiresAt != 0:
		expiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	case s.ExpiresIn != 0:
		expiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second).UTC()
	}
	return account.Session{
		Tokens: account.Tokens{
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
			ExpiresAt:    expiresAt,
		},
		User: s.User.toUser(),
	}
}

func (c *Client) token(ctx context.Context, grantType string, body any, rejected error) (account.Session, error) {
	status, data, err := c.do(ctx, &request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
	})
	if err != nil {
		return account.Session{}, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return account.Session{}, fmt.Errorf("%w: %w", rejected, parseAPIError(status, data))
	default:
		return account.Session{}, parseAPIError(status, data)
	}
	var sess sessionBody
	if err := decode(data, &sess); err != nil {
		return account.Session{}, err
	}
	if sess.AccessToken == "" || sess.User.ID == "" {
		return account.Session{}, fmt.Errorf("incomplete session in response")
	}
	return sess.toSession(time.Now()), nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (account.Session, error) {
	return c.token(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	}, account.ErrInvalidCredentials)
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (account.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	}, account.ErrInvalidToken)
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (account.User, error) {
	if accessToken == "" {
		return account.User{}, account.ErrInvalidToken
	}
	status, data, err := c.do(ctx, &request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  accessToken,
	})
	if err != nil {
		return account.User{}, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return account.User{}, fmt.Errorf("%w: %w", account.ErrInvalidToken, parseAPIError(status, data))
	default:
		return account.User{}, parseAPIError(status, data)
	}
	var user userBody
	if err := decode(data, &user); err != nil {
		return account.User{}, err
	}
	if user.ID == "" {
		return account.User{}, fmt.Errorf("empty user id in response")
	}
	return user.toUser(), nil
}

// SignOut revokes the refresh tokens of the current session only. A token the
// server does not recognize anymore counts as already signed out.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	status, data, err := c.do(ctx, &request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		query:  url.Values{"scope": {"local"}},
		token:  accessToken,
	})
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent,
		http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil
	default:
		return parseAPIError(status, data)
	}
}
