// Package config loads sqlq CLI settings from flags, environment, dotenv
// files and an optional .sqlq.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem config and dotenv files are read from.
var AppFs = afero.NewOsFs()

const (
	ProviderPostgres = "postgres"
	ProviderMySQL    = "mysql"
	ProviderSQLite   = "sqlite"
)

var (
	ErrNoURL           = errors.New("config: no database url (use --url, SQLQ_URL or DATABASE_URL)")
	ErrUnknownProvider = errors.New("config: unknown provider")
)

// Config holds the resolved CLI configuration.
type Config struct {
	Provider     string
	URL          string
	Timeout      time.Duration
	MaxOpenConns int
	LogLevel     slog.Level
	LogArgs      bool
	SlowQuery    time.Duration
}

// New returns a viper instance with sqlq's search paths, environment
// bindings and defaults. Flags are bound onto it by the caller.
func New() *viper.Viper {
	v := viper.New()
	v.SetFs(AppFs)

	v.SetConfigName(".sqlq")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "sqlq"))
	}

	v.SetEnvPrefix("SQLQ")
	v.AutomaticEnv()
	_ = v.BindEnv("url", "SQLQ_URL", "DATABASE_URL")

	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("max_open_conns", 0)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_args", false)
	v.SetDefault("slow_query", 500*time.Millisecond)
	return v
}

// Load resolves the configuration. Dotenv files are applied first so their
// values are visible to the environment lookups. file, when set, must exist;
// otherwise the search paths are tried and a missing file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if file != "" {
		path, err := homedir.Expand(file)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg := &Config{
		Provider:     v.GetString("provider"),
		URL:          v.GetString("url"),
		Timeout:      v.GetDuration("timeout"),
		MaxOpenConns: v.GetInt("max_open_conns"),
		LogArgs:      v.GetBool("log_args"),
		SlowQuery:    v.GetDuration("slow_query"),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("config: log_level: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolve() error {
	if c.URL == "" {
		return ErrNoURL
	}
	if c.Provider == "" {
		p, ok := InferProvider(c.URL)
		if !ok {
			return fmt.Errorf("%w: cannot infer one from the url; use --provider", ErrUnknownProvider)
		}
		c.Provider = p
		return nil
	}
	p, ok := NormalizeProvider(c.Provider)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	c.Provider = p
	return nil
}

// NormalizeProvider maps provider aliases onto the canonical names.
func NormalizeProvider(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return ProviderPostgres, true
	case "mysql", "mariadb":
		return ProviderMySQL, true
	case "sqlite", "sqlite3":
		return ProviderSQLite, true
	}
	return "", false
}

// InferProvider guesses the provider from the shape of a DSN.
func InferProvider(dsn string) (string, bool) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return ProviderPostgres, true
	case strings.Contains(lower, "@tcp("), strings.Contains(lower, "@unix("):
		return ProviderMySQL, true
	case strings.HasPrefix(lower, "file:"), lower == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return ProviderSQLite, true
	}
	return "", false
}

// loadDotEnv applies .env without overriding variables that are already
// set, then .env.local with override.
func loadDotEnv() error {
	files := []struct {
		name     string
		override bool
	}{
		{".env", false},
		{".env.local", true},
	}
	for _, f := range files {
		data, err := afero.ReadFile(AppFs, f.name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config: %s: %w", f.name, err)
		}
		env, err := godotenv.Unmarshal(string(data))
		if err != nil {
			return fmt.Errorf("config: parse %s: %w", f.name, err)
		}
		for k, val := range env {
			if _, set := os.LookupEnv(k); set && !f.override {
				continue
			}
			if err := os.Setenv(k, val); err != nil {
				return err
			}
		}
	}
	return nil
}
