package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultGeminiModel     = "gemini-flash-latest"
	DefaultGeminiTimeout   = "60s"
	DefaultTimeZone        = "Asia/Taipei"
	DefaultTempDir         = "tmp"
	DefaultMaxAttachment   = 50 * 1024 * 1024
	DefaultMaxInlineBytes  = 15 * 1024 * 1024
	DefaultSweepSchedule   = "@every 10m"
	DefaultMaxPending      = 256
	DefaultRetryAttempts   = 3
	DefaultRetryDelay      = "2s"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Line     LineConfig     `toml:"line"`
	Telegram TelegramConfig `toml:"telegram"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Google   GoogleConfig   `toml:"google"`
	Drive    DriveConfig    `toml:"drive"`
	Calendar CalendarConfig `toml:"calendar"`
	Session  SessionConfig  `toml:"session"`
	Retry    RetryConfig    `toml:"retry"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr         string `toml:"addr" validate:"required"`
	MaxBodyBytes int64  `toml:"max_body_bytes" validate:"gt=0"`
	// MaxPendingPerUser bounds the messages queued behind one user's running work.
	MaxPendingPerUser int `toml:"max_pending_per_user" validate:"gt=0"`
}

type LineConfig struct {
	ChannelSecret      string `toml:"channel_secret"`
	ChannelAccessToken string `toml:"channel_access_token" validate:"required_with=ChannelSecret"`
}

// Enabled reports whether the LINE channel is configured.
func (c LineConfig) Enabled() bool {
	return strings.TrimSpace(c.ChannelSecret) != "" && strings.TrimSpace(c.ChannelAccessToken) != ""
}

type TelegramConfig struct {
	BotToken    string `toml:"bot_token"`
	SecretToken string `toml:"secret_token"`
}

// Enabled reports whether the Telegram channel is configured.
func (c TelegramConfig) Enabled() bool {
	return strings.TrimSpace(c.BotToken) != ""
}

type GeminiConfig struct {
	APIKey  string `toml:"api_key" validate:"required"`
	Model   string `toml:"model" validate:"required"`
	Timeout string `toml:"timeout"`
}

type GoogleConfig struct {
	// CredentialsFile points at a service-account JSON key. Empty means
	// application default credentials.
	CredentialsFile string `toml:"credentials_file"`
}

type DriveConfig struct {
	RootFolderID string `toml:"root_folder_id" validate:"required"`
}

type CalendarConfig struct {
	CalendarID string `toml:"calendar_id"`
	TimeZone   string `toml:"time_zone" validate:"required"`
}

// Enabled reports whether extracted events should be written to a calendar.
func (c CalendarConfig) Enabled() bool {
	return strings.TrimSpace(c.CalendarID) != ""
}

type SessionConfig struct {
	TempDir            string `toml:"temp_dir" validate:"required"`
	MaxAttachmentBytes int64  `toml:"max_attachment_bytes" validate:"gt=0"`
	MaxInlineBytes     int64  `toml:"max_inline_bytes" validate:"gte=0"`
	// MaxIdle enables the stale-session sweeper when set to a positive duration.
	MaxIdle       string `toml:"max_idle"`
	SweepSchedule string `toml:"sweep_schedule"`
}

type RetryConfig struct {
	Attempts int    `toml:"attempts" validate:"gt=0"`
	Delay    string `toml:"delay"`
}

// Location resolves the configured calendar time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Calendar.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.Calendar.TimeZone, err)
	}
	return loc, nil
}

// GeminiTimeout returns the per-call analysis timeout.
func (c Config) GeminiTimeout() time.Duration {
	return parseDurationOr(c.Gemini.Timeout, time.Minute)
}

// RetryDelay returns the fixed delay between analysis attempts.
func (c Config) RetryDelay() time.Duration {
	return parseDurationOr(c.Retry.Delay, 2*time.Second)
}

// SessionMaxIdle returns the idle limit for recording sessions; zero disables expiry.
func (c Config) SessionMaxIdle() time.Duration {
	return parseDurationOr(c.Session.MaxIdle, 0)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:              DefaultHTTPAddr,
			MaxBodyBytes:      DefaultMaxBodyBytes,
			MaxPendingPerUser: DefaultMaxPending,
		},
		Gemini: GeminiConfig{
			Model:   DefaultGeminiModel,
			Timeout: DefaultGeminiTimeout,
		},
		Calendar: CalendarConfig{
			TimeZone: DefaultTimeZone,
		},
		Session: SessionConfig{
			TempDir:            DefaultTempDir,
			MaxAttachmentBytes: DefaultMaxAttachment,
			MaxInlineBytes:     DefaultMaxInlineBytes,
			SweepSchedule:      DefaultSweepSchedule,
		},
		Retry: RetryConfig{
			Attempts: DefaultRetryAttempts,
			Delay:    DefaultRetryDelay,
		},
	}
}

// Load reads the TOML file at path on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnv(&cfg, os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("LINE_CHANNEL_ACCESS_TOKEN", &cfg.Line.ChannelAccessToken)
	set("LINE_CHANNEL_SECRET", &cfg.Line.ChannelSecret)
	set("TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	set("TELEGRAM_SECRET_TOKEN", &cfg.Telegram.SecretToken)
	set("GEMINI_API_KEY", &cfg.Gemini.APIKey)
	set("GEMINI_MODEL", &cfg.Gemini.Model)
	set("GDRIVE_FOLDER_ID", &cfg.Drive.RootFolderID)
	set("GOOGLE_CALENDAR_ID", &cfg.Calendar.CalendarID)
	set("GOOGLE_APPLICATION_CREDENTIALS", &cfg.Google.CredentialsFile)
	set("ARCHIVIST_TEMP_DIR", &cfg.Session.TempDir)
	if port, ok := lookup("PORT"); ok && strings.TrimSpace(port) != "" {
		cfg.Server.Addr = ":" + strings.TrimSpace(port)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields and value ranges.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !cfg.Line.Enabled() && !cfg.Telegram.Enabled() {
		return fmt.Errorf("invalid config: at least one of line or telegram must be configured")
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
