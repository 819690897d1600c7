// Package config loads runtime settings from a config file and the
// environment.
//
// Settings are read, lowest precedence first, from built-in defaults, the
// file attend.yaml (or .toml/.json) in the user config directory or the
// working directory, and ATTEND_* environment variables, e.g.
// ATTEND_SERVER_PORT=9000 or ATTEND_DB_PATH=/data/attend.db.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "ATTEND"

// Config holds every runtime setting.
type Config struct {
	DB        DBConfig        `mapstructure:"db"`
	Gist      GistConfig      `mapstructure:"gist"`
	Server    ServerConfig    `mapstructure:"server"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
	Log       LogConfig       `mapstructure:"log"`
	Recognize RecognizeConfig `mapstructure:"recognize"`
	Image     ImageConfig     `mapstructure:"image"`
	Seed      SeedConfig      `mapstructure:"seed"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type GistConfig struct {
	APIURL      string `mapstructure:"api_url"`
	Filename    string `mapstructure:"filename"`
	Description string `mapstructure:"description"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type InboxConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

type RecognizeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

type ImageConfig struct {
	MaxEdge int `mapstructure:"max_edge"`
	Quality int `mapstructure:"quality"`
}

type SeedConfig struct {
	// File is an optional TOML roster used instead of the built-in workers.
	File string `mapstructure:"file"`
}

// DataDir returns the directory holding the database and inbox by default.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "attend")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "attend")
	}
	return ".attend"
}

// ConfigDir returns the directory searched for attend.yaml.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "attend")
	}
	return ".attend"
}

func setDefaults(v *viper.Viper) {
	data := DataDir()
	v.SetDefault("db.path", filepath.Join(data, "attend.db"))
	v.SetDefault("gist.api_url", "https://api.github.com")
	v.SetDefault("gist.filename", "asistencias.json")
	v.SetDefault("gist.description", "Attendance records")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("inbox.dir", filepath.Join(data, "inbox"))
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("recognize.enabled", false)
	v.SetDefault("recognize.model", "claude-sonnet-4-5")
	v.SetDefault("recognize.api_key", "")
	v.SetDefault("image.max_edge", 1200)
	v.SetDefault("image.quality", 70)
	v.SetDefault("seed.file", "")
}

// Load reads the configuration. An explicit path must exist; without one a
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("recognize.api_key", EnvPrefix+"_RECOGNIZE_API_KEY", "ANTHROPIC_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("attend")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DB.Path) == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535 (got %d)", c.Server.Port)
	}
	if c.Image.MaxEdge <= 0 {
		return fmt.Errorf("image.max_edge must be > 0 (got %d)", c.Image.MaxEdge)
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image.quality must be 1-100 (got %d)", c.Image.Quality)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0 (got %d)", c.Log.MaxSizeMB)
	}
	return nil
}
