package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/alex65536/syllabus/internal/util/idgen"
	"github.com/joho/godotenv"
)

const (
	envSupabaseAnonKey = "SYLLABUS_SUPABASE_ANON_KEY"
	envSessionKey      = "SYLLABUS_SESSION_KEY"
	envCSRFKey         = "SYLLABUS_CSRF_KEY"
)

type Secrets struct {
	SessionKey      string `toml:"session-key"`
	CSRFKey         string `toml:"csrf-key"`
	SupabaseAnonKey string `toml:"supabase-anon-key"`
}

func (s *Secrets) GenerateMissing() (bool, error) {
	changed := false
	gen := func(dst *string, n int) error {
		if *dst != "" {
			return nil
		}
		val, err := idgen.SecureToken("", n)
		if err != nil {
			return err
		}
		*dst = val
		changed = true
		return nil
	}
	if err := gen(&s.SessionKey, 64); err != nil {
		return false, fmt.Errorf("session key: %w", err)
	}
	if err := gen(&s.CSRFKey, 32); err != nil {
		return false, fmt.Errorf("csrf key: %w", err)
	}
	return changed, nil
}

// ApplyEnv overrides secrets with the values from the environment. The variables
// may also come from an env file; variables already set in the environment win.
func (s *Secrets) ApplyEnv(envPath string) error {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	for _, v := range []struct {
		name string
		dst  *string
	}{
		{envSupabaseAnonKey, &s.SupabaseAnonKey},
		{envSessionKey, &s.SessionKey},
		{envCSRFKey, &s.CSRFKey},
	} {
		if val, ok := os.LookupEnv(v.name); ok && val != "" {
			*v.dst = val
		}
	}
	return nil
}

// loadSecrets reads the secrets file, generating and writing back the missing keys.
func loadSecrets(path string) (Secrets, error) {
	rawSecrets, err := os.ReadFile(path)
	if err != nil {
		rawSecrets = nil
		if !errors.Is(err, os.ErrNotExist) {
			return Secrets{}, fmt.Errorf("read secrets: %w", err)
		}
	}
	var secrets Secrets
	if err := toml.Unmarshal(rawSecrets, &secrets); err != nil {
		return Secrets{}, fmt.Errorf("unmarshal secrets: %w", err)
	}
	secretsChanged, err := secrets.GenerateMissing()
	if err != nil {
		return Secrets{}, fmt.Errorf("generate secrets: %w", err)
	}
	if secretsChanged {
		newRawSecrets, err := toml.Marshal(&secrets)
		if err != nil {
			return Secrets{}, fmt.Errorf("marshal secrets: %w", err)
		}
		if err := os.WriteFile(path, newRawSecrets, 0600); err != nil {
			return Secrets{}, fmt.Errorf("write secrets: %w", err)
		}
	}
	return secrets, nil
}
