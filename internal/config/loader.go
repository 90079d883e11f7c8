package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the leasing service.
type Config struct {
	HTTPPort           int
	SQLiteDSN          string
	DisplayZone        *time.Location
	ReconcilePeriod    time.Duration
	FallbackPropertyID int64
	SentinelLeadPhone  string
	// TokenKey seals stored OAuth tokens: 64 hex characters or a passphrase
	// of at least 16 characters. Empty stores tokens in the clear.
	TokenKey     string
	RedisURL     string
	RedisChannel string
	LogLevel     slog.Level
	Outlook      Outlook
}

// Outlook holds the Microsoft Graph OAuth application settings.
type Outlook struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	RedirectURL  string
	GraphBaseURL string
}

// Enabled reports whether a calendar connector should be built.
func (o Outlook) Enabled() bool {
	return o.ClientID != ""
}

// Load reads an optional .env file from the working directory and then
// parses the process environment.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile loads dotenv from path when it exists, without overriding
// variables already set, and then parses the process environment.
func LoadFile(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return Parse(os.Getenv)
}

// Parse builds a Config from lookup, applying defaults for optional fields.
// Every missing or invalid variable is reported in one error.
func Parse(lookup func(string) string) (Config, error) {
	cfg := Config{
		HTTPPort:           8080,
		SQLiteDSN:          "leasing.db",
		ReconcilePeriod:    5 * time.Minute,
		FallbackPropertyID: 1,
		SentinelLeadPhone:  "+10000000000",
		RedisChannel:       "leasing.bookings",
		LogLevel:           slog.LevelInfo,
		Outlook: Outlook{
			Tenant:       "common",
			RedirectURL:  "http://localhost:8080/auth/outlook/callback",
			GraphBaseURL: "https://graph.microsoft.com/v1.0",
		},
	}
	get := func(key string) string {
		return strings.TrimSpace(lookup(key))
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if value := get("LEASING_HTTP_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "LEASING_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := get("LEASING_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	zone := get("LEASING_DISPLAY_TZ")
	if zone == "" {
		zone = "America/Edmonton"
	}
	if loc, err := time.LoadLocation(zone); err != nil {
		invalid = append(invalid, "LEASING_DISPLAY_TZ")
	} else {
		cfg.DisplayZone = loc
	}

	if value := get("LEASING_RECONCILE_PERIOD"); value != "" {
		period, err := time.ParseDuration(value)
		if err != nil || period < time.Second {
			invalid = append(invalid, "LEASING_RECONCILE_PERIOD")
		} else {
			cfg.ReconcilePeriod = period
		}
	}

	if value := get("LEASING_FALLBACK_PROPERTY_ID"); value != "" {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			invalid = append(invalid, "LEASING_FALLBACK_PROPERTY_ID")
		} else {
			cfg.FallbackPropertyID = id
		}
	}

	if phone := get("LEASING_SENTINEL_LEAD_PHONE"); phone != "" {
		if !strings.HasPrefix(phone, "+") || len(phone) < 8 {
			invalid = append(invalid, "LEASING_SENTINEL_LEAD_PHONE")
		} else {
			cfg.SentinelLeadPhone = phone
		}
	}

	if key := get("LEASING_TOKEN_KEY"); key != "" {
		if len(key) < 16 {
			invalid = append(invalid, "LEASING_TOKEN_KEY")
		} else {
			cfg.TokenKey = key
		}
	}

	cfg.RedisURL = get("LEASING_REDIS_URL")
	if channel := get("LEASING_REDIS_CHANNEL"); channel != "" {
		cfg.RedisChannel = channel
	}

	if value := get("LEASING_LOG_LEVEL"); value != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(value)); err != nil {
			invalid = append(invalid, "LEASING_LOG_LEVEL")
		}
	}

	cfg.Outlook.ClientID = get("OUTLOOK_CLIENT_ID")
	cfg.Outlook.ClientSecret = get("OUTLOOK_CLIENT_SECRET")
	if cfg.Outlook.Enabled() && cfg.Outlook.ClientSecret == "" {
		missing = append(missing, "OUTLOOK_CLIENT_SECRET")
	}
	if tenant := get("OUTLOOK_TENANT"); tenant != "" {
		cfg.Outlook.Tenant = tenant
	}
	if redirect := get("OUTLOOK_REDIRECT_URL"); redirect != "" {
		cfg.Outlook.RedirectURL = redirect
	}
	if base := get("OUTLOOK_GRAPH_BASE_URL"); base != "" {
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			invalid = append(invalid, "OUTLOOK_GRAPH_BASE_URL")
		} else {
			cfg.Outlook.GraphBaseURL = strings.TrimRight(base, "/")
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	return cfg, nil
}
