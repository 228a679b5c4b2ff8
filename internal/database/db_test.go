package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/userauth"
	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/alex65536/syllabus/internal/util/timeutil"
	"github.com/alex65536/syllabus/internal/webui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	db, err := New(slogx.DiscardLogger(), Options{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func ptr[T any](v T) *T { return &v }

func TestUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := userauth.User{
		ID:        "0b6c3a52-52f4-4ab5-9d38-4c1a0c3d1f10",
		Email:     "ada@example.com",
		Epoch:     1,
		CreatedAt: timeutil.NowUTC(),
	}
	require.NoError(t, db.CreateUser(ctx, user))
	require.ErrorIs(t, db.CreateUser(ctx, userauth.User{ID: "other", Email: "ada@example.com"}), userauth.ErrUserAlreadyExists)

	got, err := db.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	got, err = db.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = db.GetUser(ctx, "missing")
	require.ErrorIs(t, err, userauth.ErrUserNotFound)
	_, err = db.GetUserByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, userauth.ErrUserNotFound)

	got.Epoch = 2
	require.NoError(t, db.UpdateUser(ctx, got))
	got, err = db.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Epoch)

	users, err := db.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := timeutil.NowUTC()

	require.NoError(t, db.CreateUser(ctx, userauth.User{ID: "u1", Email: "ada@example.com"}))
	require.NoError(t, db.CreateTokens(ctx,
		userauth.Token{Hash: "a1", Kind: userauth.TokenAccess, UserID: "u1", SessionID: "s1", ExpiresAt: now.Add(time.Hour)},
		userauth.Token{Hash: "r1", Kind: userauth.TokenRefresh, UserID: "u1", SessionID: "s1", ExpiresAt: now.Add(24 * time.Hour)},
		userauth.Token{Hash: "a2", Kind: userauth.TokenAccess, UserID: "u1", SessionID: "s2", ExpiresAt: now.Add(-time.Minute)},
	))

	tok, err := db.GetToken(ctx, "a1", now)
	require.NoError(t, err)
	assert.Equal(t, "s1", tok.SessionID)
	assert.Equal(t, userauth.TokenAccess, tok.Kind)

	_, err = db.GetToken(ctx, "a2", now)
	require.ErrorIs(t, err, userauth.ErrTokenNotFound)

	require.NoError(t, db.RotateSession(ctx, "r1",
		userauth.Token{Hash: "a3", Kind: userauth.TokenAccess, UserID: "u1", SessionID: "s1", ExpiresAt: now.Add(time.Hour)},
	))
	_, err = db.GetToken(ctx, "a1", now)
	require.ErrorIs(t, err, userauth.ErrTokenNotFound)
	_, err = db.GetToken(ctx, "a3", now)
	require.NoError(t, err)
	require.ErrorIs(t, db.RotateSession(ctx, "r1"), userauth.ErrTokenNotFound)

	require.NoError(t, db.DeleteSession(ctx, "s1"))
	_, err = db.GetToken(ctx, "a3", now)
	require.ErrorIs(t, err, userauth.ErrTokenNotFound)

	require.NoError(t, db.PruneTokens(ctx, now))
	_, err = db.GetToken(ctx, "a2", now.Add(-time.Hour))
	require.ErrorIs(t, err, userauth.ErrTokenNotFound)
}

func TestProfiles(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sess := &account.Session{User: account.User{ID: "u1"}}

	_, err := db.GetProfile(ctx, sess)
	require.ErrorIs(t, err, account.ErrProfileNotFound)
	taken, err := db.UsernameTaken(ctx, "ada")
	require.NoError(t, err)
	assert.False(t, taken)

	require.NoError(t, db.SaveProfile(ctx, account.Profile{
		ID:               "u1",
		Username:         ptr("ada"),
		SelectedSyllabus: ptr("gcse-maths"),
		Outcomes:         json.RawMessage(`{"algebra":3}`),
	}))
	profile, err := db.GetProfile(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "u1", profile.ID)
	assert.Equal(t, "ada", *profile.Username)
	assert.Equal(t, "gcse-maths", *profile.SelectedSyllabus)
	assert.JSONEq(t, `{"algebra":3}`, string(profile.Outcomes))
	taken, err = db.UsernameTaken(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, taken)

	require.NoError(t, db.SaveProfile(ctx, account.Profile{ID: "u1", Username: ptr("ada")}))
	profile, err = db.GetProfile(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, profile.SelectedSyllabus)
	assert.Nil(t, profile.Outcomes)

	err = db.SaveProfile(ctx, account.Profile{ID: "u1", Outcomes: json.RawMessage(`{"algebra":`)})
	assert.Error(t, err)
}

func TestSessionStore(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := db.NewSessionStore(ctx, webui.SessionOptions{
		Key:             []byte("0123456789abcdef0123456789abcdef"),
		CleanupInterval: time.Hour,
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	sess, err := store.New(req, "test_session")
	require.NoError(t, err)
	sess.Values["hello"] = "world"
	require.NoError(t, sess.Save(req, rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	sess, err = store.Get(req, "test_session")
	require.NoError(t, err)
	assert.False(t, sess.IsNew)
	assert.Equal(t, "world", sess.Values["hello"])
}
