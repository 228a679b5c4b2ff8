package main

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/database"
	"github.com/alex65536/syllabus/internal/supabase"
	"github.com/alex65536/syllabus/internal/userauth"
	"github.com/alex65536/syllabus/internal/webui"
	"github.com/go-playground/validator/v10"
)

const (
	BackendLocal    = "local"
	BackendSupabase = "supabase"
)

type HTTPSOptions struct {
	Addr                 string   `toml:"addr"`
	ExposeInsecure       bool     `toml:"expose-insecure"`
	AllowedSecureDomains []string `toml:"allowed-secure-domains" validate:"min=1"`
	CachePath            string   `toml:"cache-path" validate:"required"`
}

type Options struct {
	Addr     string                  `toml:"addr" validate:"required"`
	HTTPS    *HTTPSOptions           `toml:"https"`
	LogLevel string                  `toml:"log-level" validate:"omitempty,oneof=debug info warn error"`
	Backend  string                  `toml:"backend" validate:"oneof=local supabase"`
	Supabase *supabase.Options       `toml:"supabase" validate:"required_if=Backend supabase"`
	Verifier account.VerifierOptions `toml:"verifier"`
	Users    userauth.ManagerOptions `toml:"users"`
	DB       database.Options        `toml:"db"`
	WebUI    webui.Options           `toml:"webui"`
}

func (o *Options) FillDefaults() {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:8080"
	}
	if o.HTTPS != nil && o.HTTPS.Addr == "" {
		o.HTTPS.Addr = ":443"
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.Backend == "" {
		o.Backend = BackendLocal
	}
	if o.Supabase != nil {
		o.Supabase.FillDefaults()
	}
	o.Verifier.FillDefaults()
	o.DB.FillDefaults()
	o.WebUI.FillDefaults()
}

func (o *Options) MixSecrets(s *Secrets) error {
	var err error
	o.WebUI.Session.Key = []byte(s.SessionKey)
	o.WebUI.CSRFKey = []byte(s.CSRFKey)
	if o.Supabase != nil {
		if s.SupabaseAnonKey == "" {
			err = errors.Join(err, fmt.Errorf("supabase anon key is missing"))
		}
		o.Supabase.AnonKey = s.SupabaseAnonKey
	}
	return err
}

func (o *Options) Validate() error {
	if _, _, err := net.SplitHostPort(o.Addr); err != nil {
		return fmt.Errorf("bad addr %q: %w", o.Addr, err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(o); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

func loadOptions(path string) (Options, error) {
	rawOpts, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read options: %w", err)
	}
	var opts Options
	if err := toml.Unmarshal(rawOpts, &opts); err != nil {
		return Options{}, fmt.Errorf("unmarshal options: %w", err)
	}
	return opts, nil
}
