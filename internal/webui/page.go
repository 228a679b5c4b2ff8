package webui

import (
	"bytes"
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
	"github.com/gorilla/sessions"
)

type dataBuilder interface {
	Build(ctx context.Context, bc *builderCtx) (any, error)
}

type page struct {
	name    string
	cfg     *Config
	log     *slog.Logger
	b       dataBuilder
	tmpl    *template.Template
	errTmpl *template.Template
}

type pageData struct {
	Data     any
	SignedIn bool
}

type builderCtx struct {
	Log    *slog.Logger
	Config *Config
	Req    *http.Request
	writer http.ResponseWriter
	cookie *sessions.Session

	sessionLoaded bool
	session       *account.Session
}

func (bc *builderCtx) saveCookie() {
	if err := bc.cookie.Save(bc.Req, bc.writer); err != nil {
		bc.Log.Error("could not save session", slogx.Err(err))
	}
}

// ResetSession expires the current cookie session. If newSess is not nil, a fresh
// cookie session holding its tokens is started.
func (bc *builderCtx) ResetSession(newSess *account.Session) {
	store := bc.Config.sessionStore
	bc.cookie.Options.MaxAge = -1
	for k := range bc.cookie.Values {
		delete(bc.cookie.Values, k)
	}
	if !bc.cookie.IsNew {
		bc.saveCookie()
	}
	cookie, err := store.New(bc.Req, sessionName)
	if cookie == nil {
		bc.Log.Error("could not create session", slogx.Err(err))
		return
	}
	for k := range cookie.Values {
		delete(cookie.Values, k)
	}
	bc.Config.opts.Session.SetupSession(cookie.Options)
	bc.cookie = cookie
	bc.sessionLoaded = true
	bc.session = nil
	if newSess != nil {
		cookie.Values[sessionTokensKey] = makeStoredTokens(newSess.Tokens)
		bc.saveCookie()
		bc.session = newSess
	}
}

// UpgradeSession replaces the tokens in the current cookie session.
func (bc *builderCtx) UpgradeSession(sess *account.Session) {
	bc.cookie.Values[sessionTokensKey] = makeStoredTokens(sess.Tokens)
	bc.saveCookie()
	bc.sessionLoaded = true
	bc.session = sess
}

// SafeGetSession returns the current session, or nil if there is none. Tokens from
// the cookie are not trusted: the access token is validated with the auth provider,
// and refreshed once if the provider rejects it.
func (bc *builderCtx) SafeGetSession(ctx context.Context) *account.Session {
	if bc.sessionLoaded {
		return bc.session
	}
	bc.sessionLoaded = true

	stored, ok := bc.cookie.Values[sessionTokensKey].(storedTokens)
	if !ok {
		return nil
	}
	log := bc.Log
	auth := bc.Config.Auth
	tokens := stored.Tokens()

	var (
		user account.User
		err  error
	)
	if tokens.Expired(time.Now()) {
		err = account.ErrInvalidToken
	} else {
		user, err = auth.GetUser(ctx, tokens.AccessToken)
	}
	if errors.Is(err, account.ErrInvalidToken) && tokens.RefreshToken != "" {
		sess, rErr := auth.RefreshSession(ctx, tokens.RefreshToken)
		if rErr == nil {
			log.Info("session refreshed", slog.String("user_id", sess.User.ID))
			bc.UpgradeSession(&sess)
			return bc.session
		}
		err = rErr
	}
	if err != nil {
		if errors.Is(err, account.ErrInvalidToken) {
			log.Info("dropping rejected session")
			bc.ResetSession(nil)
		} else {
			log.Warn("could not validate session", slogx.Err(err))
		}
		return nil
	}
	bc.session = &account.Session{Tokens: tokens, User: user}
	return bc.session
}

func (bc *builderCtx) Redirect(location string) error {
	return httputil.MakeRedirectError(http.StatusSeeOther, "redirect", bc.Config.prefix+location)
}

func (p *page) renderError(log *slog.Logger, w http.ResponseWriter, httpErr *httputil.Error) {
	if 200 <= httpErr.Code() && httpErr.Code() <= 399 {
		log.Info("send http status without body",
			slog.Int("code", httpErr.Code()),
			slog.String("msg", httpErr.Message()),
		)
		httpErr.ApplyHeaders(w)
		w.WriteHeader(httpErr.Code())
		return
	}

	log.Info("send http status error",
		slog.Int("code", httpErr.Code()),
		slog.String("msg", httpErr.Message()),
	)
	var b bytes.Buffer
	if err := p.errTmpl.ExecuteTemplate(&b, "base", pageData{
		Data: struct {
			Code    int
			Message string
		}{
			Code:    httpErr.Code(),
			Message: httpErr.Message(),
		},
	}); err != nil {
		log.Error("error rendering page", slogx.Err(err))
		writeHTTPErr(log, w, fmt.Errorf("render page"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	httpErr.ApplyHeaders(w)
	w.WriteHeader(httpErr.Code())
	if _, err := w.Write(b.Bytes()); err != nil {
		log.Error("error writing page data", slogx.Err(err))
		return
	}
}

func (p *page) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	log := p.log.With(slog.String("rid", httputil.ExtractReqID(ctx)))
	log.Info("handle page request",
		slog.String("method", req.Method),
		slog.String("addr", req.RemoteAddr),
	)

	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		log.Warn("method not allowed")
		writeHTTPErr(log, w, httputil.MakeError(http.StatusMethodNotAllowed, "method not allowed"))
		return
	}

	cookie, err := p.cfg.sessionStore.Get(req, sessionName)
	if err != nil {
		// The store hands out a fresh session when the cookie cannot be decoded.
		log.Info("bad session cookie", slogx.Err(err))
	}
	if cookie == nil {
		log.Error("could not get session", slogx.Err(err))
		writeHTTPErr(log, w, fmt.Errorf("get session"))
		return
	}
	if cookie.IsNew {
		p.cfg.opts.Session.SetupSession(cookie.Options)
	}

	bc := &builderCtx{
		Log:    log,
		Config: p.cfg,
		Req:    req,
		writer: w,
		cookie: cookie,
	}

	data, err := p.b.Build(ctx, bc)
	if err != nil {
		if httpErr := (*httputil.Error)(nil); errors.As(err, &httpErr) {
			p.renderError(log, w, httpErr)
			return
		}
		log.Error("error building page data", slogx.Err(err))
		writeHTTPErr(log, w, fmt.Errorf("build page"))
		return
	}

	if p.tmpl == nil {
		log.Error("page has no template to render data")
		writeHTTPErr(log, w, fmt.Errorf("render page"))
		return
	}

	var b bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&b, "base", pageData{
		Data:     data,
		SignedIn: bc.sessionLoaded && bc.session != nil,
	}); err != nil {
		log.Error("error rendering page", slogx.Err(err))
		writeHTTPErr(log, w, fmt.Errorf("render page"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b.Bytes()); err != nil {
		log.Error("error writing page data", slogx.Err(err))
		return
	}
}

func newPage(
	log *slog.Logger,
	cfg *Config,
	templator *templator,
	builder dataBuilder,
	name string,
) (http.Handler, error) {
	var tmpl *template.Template
	if name != "" {
		var err error
		tmpl, err = templator.Get(name)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
	}
	errTempl, err := templator.Get("error")
	if err != nil {
		return nil, fmt.Errorf("template \"error\": %w", err)
	}
	return &page{
		name:    name,
		cfg:     cfg,
		log:     log.With(slog.String("page", name)),
		b:       builder,
		tmpl:    tmpl,
		errTmpl: errTempl,
	}, nil
}
