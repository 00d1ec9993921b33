package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/provider/gemini"
	"github.com/manash/pixshop/internal/session"
	"github.com/manash/pixshop/pkg/models"
)

const (
	EnvPrefix    = "PIXSHOP"
	DirEnvVar    = "PIXSHOP_CONFIG_DIR"
	FileName     = "config"
	FileType     = "yaml"
	DefaultAddr  = ":8080"
	DefaultLevel = "info"
)

type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

type GeminiConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	ImageModel  string `mapstructure:"image_model"`
	TextModel   string `mapstructure:"text_model"`
	ImagenModel string `mapstructure:"imagen_model"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DisplayConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Columns int  `mapstructure:"columns"`
}

type SecurityConfig struct {
	StrictURLs   bool     `mapstructure:"strict_urls"`
	AllowedHosts []string `mapstructure:"allowed_hosts"`
}

type BatchConfig struct {
	Parallel int `mapstructure:"parallel"`
}

// Config is the merged view of defaults, config file and environment.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Display  DisplayConfig  `mapstructure:"display"`
	Security SecurityConfig `mapstructure:"security"`
	Batch    BatchConfig    `mapstructure:"batch"`

	// Confirm asks before undo and redo.
	Confirm bool `mapstructure:"confirm"`

	// File is the config file that was read, empty when running on defaults.
	File string `mapstructure:"-"`
}

// Dir returns the platform config directory for pixshop. PIXSHOP_CONFIG_DIR
// overrides it.
func Dir() (string, error) {
	if dir := os.Getenv(DirEnvVar); dir != "" {
		return dir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "pixshop"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "pixshop"), nil
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "pixshop"), nil
	}
}

func setDefaults(v *viper.Viper) {
	dataDir, err := session.DefaultDataDir()
	if err != nil {
		dataDir = ".pixshop"
	}

	v.SetDefault("storage.backend", string(session.BackendFile))
	v.SetDefault("storage.dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "session.db"))
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_prefix", session.DefaultRedisPrefix)
	v.SetDefault("gemini.base_url", gemini.DefaultBaseURL)
	v.SetDefault("gemini.image_model", models.DefaultImageModel)
	v.SetDefault("gemini.text_model", models.DefaultTextModel)
	v.SetDefault("gemini.imagen_model", models.DefaultImagenModel)
	v.SetDefault("gemini.timeout_sec", int(gemini.DefaultTimeout.Seconds()))
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("log.level", DefaultLevel)
	v.SetDefault("display.enabled", true)
	v.SetDefault("display.columns", 60)
	v.SetDefault("security.strict_urls", false)
	v.SetDefault("security.allowed_hosts", []string{})
	v.SetDefault("batch.parallel", 2)
	v.SetDefault("confirm", true)
}

// LoadDotEnv reads .env from the working directory into the process
// environment. A missing file is not an error.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Msg("failed to load .env file")
			return
		}
		log.Debug().Msg(".env file not found, using process environment")
	}
}

// Load builds the configuration. An explicit path must exist; otherwise
// config.yaml is looked up in Dir() and defaults apply when it is absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType(FileType)
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		log.Debug().Msg("no config file found, using defaults")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would only fail later.
func (c *Config) Validate() error {
	switch session.Backend(c.Storage.Backend) {
	case session.BackendFile, session.BackendSQLite, session.BackendRedis, session.BackendMemory:
	default:
		return fmt.Errorf("invalid storage.backend %q: use file, sqlite, redis or memory", c.Storage.Backend)
	}
	if c.Gemini.TimeoutSec <= 0 {
		return fmt.Errorf("invalid gemini.timeout_sec %d: must be positive", c.Gemini.TimeoutSec)
	}
	if c.Batch.Parallel < 1 {
		return fmt.Errorf("invalid batch.parallel %d: must be at least 1", c.Batch.Parallel)
	}
	if c.Display.Columns < 0 {
		return fmt.Errorf("invalid display.columns %d: must not be negative", c.Display.Columns)
	}
	return nil
}

func (c *Config) SlotConfig() session.SlotConfig {
	return session.SlotConfig{
		Backend:     session.Backend(c.Storage.Backend),
		Dir:         c.Storage.Dir,
		SQLitePath:  c.Storage.SQLitePath,
		RedisAddr:   c.Storage.RedisAddr,
		RedisPrefix: c.Storage.RedisPrefix,
	}
}

// ProviderConfig returns the Gemini client settings with the given key.
func (c *Config) ProviderConfig(apiKey string) *provider.Config {
	return &provider.Config{
		APIKey:      apiKey,
		BaseURL:     c.Gemini.BaseURL,
		TimeoutSec:  c.Gemini.TimeoutSec,
		ImageModel:  c.Gemini.ImageModel,
		TextModel:   c.Gemini.TextModel,
		ImagenModel: c.Gemini.ImagenModel,
	}
}
