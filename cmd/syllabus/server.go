package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/database"
	"github.com/alex65536/syllabus/internal/supabase"
	"github.com/alex65536/syllabus/internal/userauth"
	"github.com/alex65536/syllabus/internal/util/signal"
	"github.com/alex65536/syllabus/internal/webui"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Args:  cobra.ExactArgs(0),
	Short: "Start syllabus server",
	Long: `Syllabus keeps track of a learner's progress through a syllabus.

This command runs the web server with the account pages. Authentication and
profiles are served either by the built-in provider or by a hosted Supabase
project.
`,
}

type backend struct {
	auth     account.Auth
	profiles account.Profiles
	close    func()
}

func newBackend(log *slog.Logger, opts *Options, db *database.DB) (*backend, error) {
	switch opts.Backend {
	case BackendLocal:
		mgr := userauth.NewManager(log.With(slog.String("comp", "userauth")), db, opts.Users)
		return &backend{auth: mgr, profiles: db, close: mgr.Close}, nil
	case BackendSupabase:
		client, err := supabase.New(log.With(slog.String("comp", "supabase")), *opts.Supabase, nil)
		if err != nil {
			return nil, fmt.Errorf("create supabase client: %w", err)
		}
		return &backend{auth: client, profiles: client, close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}

func init() {
	p := serverCmd.Flags()
	optsPath := p.StringP(
		"options", "o", "",
		"options file",
	)
	secretsPath := p.StringP(
		"secrets", "s", "",
		"secrets file",
	)
	envPath := p.String(
		"env", ".env",
		"env file with secret overrides",
	)
	if err := serverCmd.MarkFlagRequired("options"); err != nil {
		panic(err)
	}
	if err := serverCmd.MarkFlagRequired("secrets"); err != nil {
		panic(err)
	}

	serverCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		secrets, err := loadSecrets(*secretsPath)
		if err != nil {
			return err
		}
		if err := secrets.ApplyEnv(*envPath); err != nil {
			return err
		}

		opts, err := loadOptions(*optsPath)
		if err != nil {
			return err
		}
		if err := opts.MixSecrets(&secrets); err != nil {
			return fmt.Errorf("mix secrets into options: %w", err)
		}
		opts.FillDefaults()
		if err := opts.Validate(); err != nil {
			return fmt.Errorf("bad options: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		log := newLogger(opts.LogLevel)

		db, err := database.New(log.With(slog.String("comp", "db")), opts.DB)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		b, err := newBackend(log, &opts, db)
		if err != nil {
			return err
		}
		defer b.close()
		verifier := account.NewVerifier(opts.Verifier, b.auth)
		defer verifier.Close()

		mux := http.NewServeMux()
		webui.Handle(ctx, log.With(slog.String("comp", "webui")), mux, "", webui.Config{
			Auth:                verifier,
			Profiles:            b.profiles,
			SessionStoreFactory: db,
		}, opts.WebUI)

		servers := newServers(ctx, log, &opts, mux)
		servers.Go()
		defer servers.Shutdown()

		<-ctx.Done()
		return nil
	}
}
