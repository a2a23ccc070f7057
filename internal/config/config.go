package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Timezone string         `yaml:"timezone"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Notion   NotionConfig   `yaml:"notion"`
	Files    FilesConfig    `yaml:"files"`
	Feed     FeedConfig     `yaml:"feed"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	Auth     AuthConfig     `yaml:"auth"`

	// Location is Timezone resolved by Load.
	Location *time.Location `yaml:"-"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type LogConfig struct {
	JSON  bool   `yaml:"json"`
	Level string `yaml:"level"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig selects the backend for each collaborator store.
type StorageConfig struct {
	Snapshots string `yaml:"snapshots"` // sqlite, redis, file, supabase
	Tasks     string `yaml:"tasks"`     // sqlite, notion
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type SupabaseConfig struct {
	URL        string        `yaml:"url"`
	AnonKey    string        `yaml:"anon_key"`
	Email      string        `yaml:"email"`
	Password   string        `yaml:"password"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type NotionConfig struct {
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"`
	DatabaseID string `yaml:"database_id"`
	BaseURL    string `yaml:"base_url"`
}

type FilesConfig struct {
	WorkspaceRoot string `yaml:"workspace_root"`
	OpenclawRoot  string `yaml:"openclaw_root"`
	SnapshotDir   string `yaml:"snapshot_dir"`
	// Aliases maps snapshot keys to explicit file paths for the file backend.
	Aliases map[string]string `yaml:"aliases"`
}

type FeedConfig struct {
	Key          string        `yaml:"key"`
	PollInterval time.Duration `yaml:"poll_interval"`
	DedupeWindow time.Duration `yaml:"dedupe_window"`
	Watch        bool          `yaml:"watch"`
}

type ScheduleConfig struct {
	BenignFailures []string            `yaml:"benign_failures"`
	Heuristics     map[string][]string `yaml:"heuristics"`
}

type QuotesConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

type AuthConfig struct {
	// JWTSecret verifies bearer tokens minted by the identity provider.
	// Empty disables verification.
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Port: 3456,
			Host: "0.0.0.0",
		},
		Timezone: "Asia/Taipei",
		Log: LogConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			Path: "./data/ops-dashboard.db",
		},
		Storage: StorageConfig{
			Snapshots: "sqlite",
			Tasks:     "sqlite",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "ops",
		},
		Supabase: SupabaseConfig{
			SessionTTL: 50 * time.Minute,
		},
		Notion: NotionConfig{
			APIKeyFile: filepath.Join(home, ".config/notion/api_key"),
			BaseURL:    "https://api.notion.com/v1",
		},
		Files: FilesConfig{
			WorkspaceRoot: filepath.Join(home, "clawd"),
			OpenclawRoot:  filepath.Join(home, ".openclaw"),
			SnapshotDir:   "./data/snapshots",
			Aliases: map[string]string{
				"cronState": filepath.Join(home, ".openclaw/cron/jobs.json"),
			},
		},
		Feed: FeedConfig{
			Key:          "cronState",
			PollInterval: 30 * time.Second,
			DedupeWindow: 5 * time.Second,
			Watch:        true,
		},
		Quotes: QuotesConfig{
			BaseURL:       "https://financialmodelingprep.com/api/v3",
			RatePerMinute: 240,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// resolves the display timezone. A missing file is not an error; an unknown
// timezone is.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	applyEnv(config)

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "invalid timezone %q", config.Timezone),
			"use an IANA zone name such as Asia/Taipei",
		)
	}
	config.Location = loc

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			config.Server.Port = p
		}
	}
	setString(&config.Timezone, "DASHBOARD_TIMEZONE")
	setString(&config.Auth.JWTSecret, "DASHBOARD_JWT_SECRET")
	setString(&config.Supabase.URL, "SUPABASE_URL")
	setString(&config.Supabase.AnonKey, "SUPABASE_ANON_KEY")
	setString(&config.Supabase.Email, "SUPABASE_EMAIL")
	setString(&config.Supabase.Password, "SUPABASE_PASSWORD")
	setString(&config.Notion.APIKey, "NOTION_API_KEY")
	setString(&config.Notion.DatabaseID, "NOTION_DATABASE_ID")
	setString(&config.Quotes.APIKey, "FMP_API_KEY")
	setString(&config.Redis.Addr, "REDIS_ADDR")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	switch c.Storage.Snapshots {
	case "sqlite", "redis", "file", "supabase":
	default:
		return errors.Newf("unknown snapshot backend %q", c.Storage.Snapshots)
	}
	switch c.Storage.Tasks {
	case "sqlite", "notion":
	default:
		return errors.Newf("unknown task backend %q", c.Storage.Tasks)
	}
	if c.Storage.Snapshots == "supabase" && (c.Supabase.URL == "" || c.Supabase.AnonKey == "") {
		return errors.New("supabase snapshot backend needs supabase.url and supabase.anon_key")
	}
	if c.Feed.PollInterval <= 0 {
		return errors.Newf("feed.poll_interval must be positive, got %s", c.Feed.PollInterval)
	}
	return nil
}

// NotionAPIKey prefers the configured key and falls back to the key file.
func (c *Config) NotionAPIKey() (string, error) {
	if c.Notion.APIKey != "" {
		return c.Notion.APIKey, nil
	}
	data, err := os.ReadFile(c.Notion.APIKeyFile)
	if err != nil {
		return "", errors.Wrap(err, "notion api key is not set and the key file is unavailable")
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", errors.Newf("notion api key file %s is empty", c.Notion.APIKeyFile)
	}
	return key, nil
}
