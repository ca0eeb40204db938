package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

var gitSHA string
var buildDate string

// Config is populated from VIDSAFE_* environment variables.
type Config struct {
	DataDir   string `env:"VIDSAFE_DATA_DIR" env-default:"data"`
	ConfigDir string `env:"VIDSAFE_CONFIG_DIR"`
	Listen    string `env:"VIDSAFE_LISTEN_ADDR" env-default:":8080"`

	SessionAuthKey       string `env:"VIDSAFE_SESSION_AUTH_KEY" validate:"required,min=16"`
	AdminInitialPassword string `env:"VIDSAFE_ADMIN_INITIAL_PASSWORD"`
	Secure               bool   `env:"VIDSAFE_SECURE" env-default:"false"`

	// Number of concurrent pipeline runs, and how many submitted runs may
	// wait for a free worker.
	Workers   int `env:"VIDSAFE_WORKERS" env-default:"2" validate:"gte=1,lte=64"`
	QueueSize int `env:"VIDSAFE_QUEUE_SIZE" env-default:"64" validate:"gte=1"`

	ScoreDelay     time.Duration `env:"VIDSAFE_SCORE_DELAY" env-default:"2s" validate:"gte=0"`
	MaxUploadBytes int64         `env:"VIDSAFE_MAX_UPLOAD_BYTES" env-default:"2147483648" validate:"gt=0"`
	FfprobePath    string        `env:"VIDSAFE_FFPROBE_PATH" env-default:"ffprobe"`

	LogLevel string `env:"VIDSAFE_LOG_LEVEL" env-default:"info" validate:"oneof=trace debug info warn error"`
}

// Load reads the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from environment: %w", err)
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = filepath.Join(cfg.DataDir, "config")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// UploadDir is where uploaded media files are written.
func (c *Config) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// DatabasePath is the sqlite file backing the record store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ConfigDir, "videos.db")
}

func GetGitSHA() string {
	if gitSHA == "" {
		return "<not provided>"
	} else {
		return gitSHA
	}
}

func GetBuildDate() string {
	if buildDate == "" {
		return "<not provided>"
	} else {
		return buildDate
	}
}
