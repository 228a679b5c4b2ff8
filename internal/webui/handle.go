package webui

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/NYTimes/gziphandler"
	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/util/httputil"
	"github.com/alex65536/syllabus/internal/util/idgen"
	"github.com/alex65536/syllabus/internal/util/mergefs"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"golang.org/x/time/rate"
)

type Config struct {
	Auth                account.Auth
	Profiles            account.Profiles
	SessionStoreFactory SessionStoreFactory
	ServerID            string

	prefix       string
	opts         *Options
	sessionStore sessions.Store
	loginLimiter *rate.Limiter
}

type Options struct {
	Session       SessionOptions `toml:"session"`
	CSRFKey       []byte         `toml:"-"`
	LoginRPSLimit float64        `toml:"login-rps-limit"`
	LoginRPSBurst int            `toml:"login-rps-burst"`

	// StaticDir holds files that override the built-in static assets.
	StaticDir string `toml:"static-dir"`
}

func (o *Options) FillDefaults() {
	o.Session.FillDefaults()
	if o.LoginRPSLimit == 0.0 {
		o.LoginRPSLimit = 5
	}
	if o.LoginRPSBurst == 0 {
		o.LoginRPSBurst = 10
	}
}

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}
	return t
}

func Handle(ctx context.Context, log *slog.Logger, mux *http.ServeMux, prefix string, cfg Config, o Options) {
	b := middlewareBuilder{
		Log: log,
		CSRFProtect: csrf.Protect(
			o.CSRFKey,
			csrf.Secure(o.Session.Secure),
			csrf.Path("/"),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				reason := "unknown"
				if err := csrf.FailureReason(req); err != nil {
					reason = err.Error()
				}
				log.Warn("csrf check failed",
					slog.String("rid", httputil.ExtractReqID(req.Context())),
					slog.String("reason", reason),
				)
				writeHTTPErr(log, w, httputil.MakeError(http.StatusForbidden, "forbidden"))
			})),
		),
		Compress: gziphandler.GzipHandler,
	}
	handle(ctx, log, mux, prefix, cfg, o, &b)
}

func handle(ctx context.Context, log *slog.Logger, mux *http.ServeMux, prefix string, cfg Config, o Options, b *middlewareBuilder) {
	o.FillDefaults()

	if cfg.ServerID == "" {
		cfg.ServerID = idgen.ID()
	}
	cfg.prefix = prefix
	cfg.opts = &o
	cfg.sessionStore = cfg.SessionStoreFactory.NewSessionStore(ctx, o.Session)
	cfg.loginLimiter = rate.NewLimiter(rate.Limit(o.LoginRPSLimit), o.LoginRPSBurst)
	templ := newTemplator(&cfg)

	static := staticData
	if o.StaticDir != "" {
		static = mergefs.New(os.DirFS(o.StaticDir), staticData)
	}

	mux.Handle(prefix+"/css/", b.WrapStatic(http.StripPrefix(prefix, http.FileServerFS(static))))
	mux.Handle(prefix+"/{$}", b.WrapPage(must(mainPage(log, &cfg, templ))))
	mux.Handle(prefix+"/login", b.WrapPage(must(loginPage(log, &cfg, templ))))
	mux.Handle(prefix+"/account", b.WrapPage(must(accountPage(log, &cfg, templ))))
	mux.Handle(prefix+"/", b.WrapPage(must(e404Page(log, &cfg, templ))))
}
