// Package config loads settings from defaults, an optional TOML file, a .env
// file and ECHO_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jwulff/echo/internal/errs"
)

const envPrefix = "ECHO"

// Config holds every runtime setting.
type Config struct {
	APIKey       string        `mapstructure:"api_key"`
	TokenURL     string        `mapstructure:"token_url" validate:"required,url"`
	StreamURL    string        `mapstructure:"stream_url" validate:"required,url"`
	ModelID      string        `mapstructure:"model_id" validate:"required"`
	LanguageCode string        `mapstructure:"language_code" validate:"required"`
	SampleRate   int           `mapstructure:"sample_rate" validate:"gt=0"`
	DataDir      string        `mapstructure:"data_dir" validate:"required"`
	Store        string        `mapstructure:"store" validate:"oneof=json sqlite"`
	LogLevel     string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	MaxRecording time.Duration `mapstructure:"max_recording" validate:"gt=0"`
	AudioInput   string        `mapstructure:"audio_input"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

var validate = validator.New()

// Load reads the configuration. path names an explicit config file; when empty
// the default location is used if it exists. A missing API key is not an
// error here; it is reported when a session starts.
func Load(path string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if p := defaultFile(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(errs.ErrConfig, "read config", fmt.Errorf("%s: %w", path, err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.ErrConfig, "decode config", err)
	}
	cfg.File = path
	cfg.DataDir = expandTilde(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("token_url", "https://api.elevenlabs.io/v1/single-use-token/realtime_scribe")
	v.SetDefault("stream_url", "wss://api.elevenlabs.io/v1/speech-to-text/realtime")
	v.SetDefault("model_id", "scribe_v2_realtime")
	v.SetDefault("language_code", "en")
	v.SetDefault("sample_rate", 16000)
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("store", "json")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_recording", "1h")
	v.SetDefault("audio_input", ":default")
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Wrap(errs.ErrConfig, "validate config", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed rule '%s' (value: '%v')", e.Field(), e.Tag(), e.Value()))
	}
	return errs.New(errs.ErrConfig, "validate config", strings.Join(msgs, "; "))
}

// ArchivePath is where the archive document lives for the configured backend.
func (c *Config) ArchivePath() string {
	if c.Store == "sqlite" {
		return filepath.Join(c.DataDir, "echo.sqlite")
	}
	return filepath.Join(c.DataDir, "echo-settings.json")
}

// LogPath is the log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "echo.log")
}

func defaultFile() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "echo", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "echo", "config.toml")
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".echo")
	}
	return filepath.Join(dir, "echo")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
