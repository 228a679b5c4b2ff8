package webui

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/util/httputil"
	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/gorilla/csrf"
)

type loginDataBuilder struct{}

func (loginDataBuilder) Build(ctx context.Context, bc *builderCtx) (any, error) {
	req := bc.Req
	cfg := bc.Config
	log := bc.Log

	type data struct {
		CSRFField template.HTML
		Email     string
		Errors    []string
	}

	if bc.SafeGetSession(ctx) != nil {
		return nil, bc.Redirect("/account")
	}

	switch req.Method {
	case http.MethodGet:
		return &data{
			CSRFField: csrf.TemplateField(req),
		}, nil
	case http.MethodPost:
		if !cfg.loginLimiter.Allow() {
			return nil, httputil.MakeError(http.StatusTooManyRequests, "too many login attempts")
		}
		if err := req.ParseForm(); err != nil {
			return nil, httputil.MakeError(http.StatusBadRequest, "bad form data")
		}
		email, password := req.PostFormValue("email"), req.PostFormValue("password")
		sess, err := cfg.Auth.SignInWithPassword(ctx, email, password)
		if err != nil {
			d := &data{
				CSRFField: csrf.TemplateField(req),
				Email:     email,
			}
			if errors.Is(err, account.ErrInvalidCredentials) {
				d.Errors = []string{"invalid email or password"}
			} else {
				log.Warn("could not sign in", slogx.Err(err))
				d.Errors = []string{"internal server error"}
			}
			return d, nil
		}
		log.Info("user signed in", slog.String("user_id", sess.User.ID))
		bc.ResetSession(&sess)
		return nil, bc.Redirect("/account")
	default:
		return nil, httputil.MakeError(http.StatusMethodNotAllowed, "method not allowed")
	}
}

func loginPage(log *slog.Logger, cfg *Config, templ *templator) (http.Handler, error) {
	return newPage(log, cfg, templ, loginDataBuilder{}, "login")
}
