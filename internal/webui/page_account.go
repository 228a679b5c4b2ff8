package webui

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/util/httputil"
	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/bytedance/sonic"
	"github.com/gorilla/csrf"
)

type profileData struct {
	ID               string
	Found            bool
	Username         *string
	SelectedSyllabus *string
	Outcomes         string
}

func formatOutcomes(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v any
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if v == nil {
		return "", nil
	}
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

func buildProfileData(log *slog.Logger, p *account.Profile) *profileData {
	if p == nil {
		return &profileData{}
	}
	outcomes, err := formatOutcomes(p.Outcomes)
	if err != nil {
		log.Warn("bad outcomes in profile", slog.String("id", p.ID), slogx.Err(err))
		outcomes = string(p.Outcomes)
	}
	return &profileData{
		ID:               p.ID,
		Found:            true,
		Username:         p.Username,
		SelectedSyllabus: p.SelectedSyllabus,
		Outcomes:         outcomes,
	}
}

type accountDataBuilder struct{}

func (accountDataBuilder) load(ctx context.Context, bc *builderCtx) (any, error) {
	type sessionData struct {
		Expires *humanTimePartData
	}

	type data struct {
		CSRFField template.HTML
		User      *userPartData
		Session   sessionData
		Profile   *profileData
	}

	sess := bc.SafeGetSession(ctx)
	if sess == nil {
		return nil, bc.Redirect("/")
	}

	var profile *account.Profile
	p, err := bc.Config.Profiles.GetProfile(ctx, sess)
	switch {
	case err == nil:
		profile = &p
	case errors.Is(err, account.ErrProfileNotFound):
		bc.Log.Info("no profile for user", slog.String("user_id", sess.User.ID))
	default:
		return nil, fmt.Errorf("get profile: %w", err)
	}

	d := &data{
		CSRFField: csrf.TemplateField(bc.Req),
		User:      buildUserPartData(sess, profile),
		Profile:   buildProfileData(bc.Log, profile),
	}
	if !sess.ExpiresAt.IsZero() {
		d.Session.Expires = buildHumanTimePartData(time.Now(), sess.ExpiresAt)
	}
	return d, nil
}

func (accountDataBuilder) signOut(ctx context.Context, bc *builderCtx) error {
	sess := bc.SafeGetSession(ctx)
	if sess == nil {
		return httputil.MakeError(http.StatusNoContent, "not signed in")
	}
	if err := bc.Config.Auth.SignOut(ctx, sess.AccessToken); err != nil {
		bc.Log.Warn("could not sign out at auth provider", slogx.Err(err))
	}
	bc.Log.Info("user signed out", slog.String("user_id", sess.User.ID))
	bc.ResetSession(nil)
	return bc.Redirect("/")
}

func (b accountDataBuilder) Build(ctx context.Context, bc *builderCtx) (any, error) {
	req := bc.Req

	switch req.Method {
	case http.MethodGet:
		return b.load(ctx, bc)
	case http.MethodPost:
		action, ok := formAction(req)
		if !ok {
			return nil, httputil.MakeError(http.StatusMethodNotAllowed, "no form action given")
		}
		switch action {
		case "signout":
			return nil, b.signOut(ctx, bc)
		default:
			return nil, httputil.MakeError(http.StatusNotFound, fmt.Sprintf("no such action %q", action))
		}
	default:
		return nil, httputil.MakeError(http.StatusMethodNotAllowed, "method not allowed")
	}
}

func accountPage(log *slog.Logger, cfg *Config, templ *templator) (http.Handler, error) {
	return newPage(log, cfg, templ, accountDataBuilder{}, "account")
}
