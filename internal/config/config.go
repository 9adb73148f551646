// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml, a .env file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	defaultConfigPath    = "config.yaml"
	DefaultSheetName     = "Sheet1"
	DefaultRoommateSheet = "Roommates"
)

// TelegramConfig holds the chat transport settings.
type TelegramConfig struct {
	Token         string
	AdminChatID   int64
	PrivateChatID int64
	Mode          string
	WebhookURL    string
	WebhookSecret string
	APIBaseURL    string
	PollTimeout   time.Duration
}

// ClassifierConfig holds the document-understanding settings. An empty
// APIKey disables the classifier.
type ClassifierConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// Enabled reports whether a classifier credential is configured.
func (c ClassifierConfig) Enabled() bool { return c.APIKey != "" }

// LedgerConfig holds the spreadsheet settings.
type LedgerConfig struct {
	SpreadsheetID   string
	CredentialsFile string
	SheetName       string
	RoommateSheet   string
}

// Enabled reports whether the ledger can be opened.
func (c LedgerConfig) Enabled() bool {
	return c.SpreadsheetID != "" && c.CredentialsFile != ""
}

// Config holds all configuration for the bot.
type Config struct {
	Telegram   TelegramConfig
	Classifier ClassifierConfig
	Ledger     LedgerConfig

	// Optional infrastructure
	RedisURL    string
	DatabaseURL string

	// Server (health check and webhook)
	Port     int
	LogLevel string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Telegram struct {
		Token         string `yaml:"token"`
		AdminChatID   string `yaml:"admin_chat_id"`
		PrivateChatID string `yaml:"private_chat_id"`
		Mode          string `yaml:"mode"`
		WebhookURL    string `yaml:"webhook_url"`
		WebhookSecret string `yaml:"webhook_secret"`
		APIBaseURL    string `yaml:"api_base_url"`
	} `yaml:"telegram"`
	Classifier struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"classifier"`
	Ledger struct {
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		CredentialsFile string `yaml:"credentials_file"`
		SheetName       string `yaml:"sheet_name"`
		RoommateSheet   string `yaml:"roommate_sheet"`
	} `yaml:"ledger"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
}

// Load reads .env, then config.yaml (with env var expansion), then
// environment variables. Environment variables win over the file.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads configuration like Load but skips validation. Operator tools
// that only need the ledger or the database use it.
func Read() (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	raw, err := readFile()
	if err != nil {
		return nil, err
	}
	return build(raw)
}

func readFile() (*rawConfig, error) {
	configPath := os.Getenv("CONFIG_PATH")
	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath
	}

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return &raw, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return &raw, nil
}

func build(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		Telegram: TelegramConfig{
			Token:         envOrDefault("BOT_TOKEN", raw.Telegram.Token),
			Mode:          strings.ToLower(firstNonEmpty(os.Getenv("TELEGRAM_MODE"), raw.Telegram.Mode, ModePolling)),
			WebhookURL:    envOrDefault("WEBHOOK_URL", raw.Telegram.WebhookURL),
			WebhookSecret: envOrDefault("WEBHOOK_SECRET", raw.Telegram.WebhookSecret),
			APIBaseURL:    envOrDefault("TELEGRAM_API_URL", raw.Telegram.APIBaseURL),
			PollTimeout:   envOrDefaultDuration("POLL_TIMEOUT", 30*time.Second),
		},
		Classifier: ClassifierConfig{
			Provider: strings.ToLower(firstNonEmpty(os.Getenv("CLASSIFIER_PROVIDER"), raw.Classifier.Provider, "openai")),
			Model:    envOrDefault("CLASSIFIER_MODEL", raw.Classifier.Model),
			APIKey:   firstNonEmpty(os.Getenv("CLASSIFIER_API_KEY"), os.Getenv("OPENAI_API_KEY"), raw.Classifier.APIKey),
			BaseURL:  envOrDefault("CLASSIFIER_BASE_URL", raw.Classifier.BaseURL),
		},
		Ledger: LedgerConfig{
			SpreadsheetID:   envOrDefault("GOOGLE_SHEET_ID", raw.Ledger.SpreadsheetID),
			CredentialsFile: envOrDefault("GOOGLE_CREDENTIALS_FILE", raw.Ledger.CredentialsFile),
			SheetName:       firstNonEmpty(os.Getenv("GOOGLE_SHEET_NAME"), raw.Ledger.SheetName, DefaultSheetName),
			RoommateSheet:   firstNonEmpty(raw.Ledger.RoommateSheet, DefaultRoommateSheet),
		},
		RedisURL:    envOrDefault("REDIS_URL", raw.Redis.URL),
		DatabaseURL: envOrDefault("DATABASE_URL", raw.Database.URL),
		Port:        envOrDefaultInt("PORT", 8080),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	adminRaw := envOrDefault("ADMIN_GROUP_ID", raw.Telegram.AdminChatID)
	if cfg.Telegram.AdminChatID, err = parseChatID("ADMIN_GROUP_ID", adminRaw); err != nil {
		return nil, err
	}
	privateRaw := envOrDefault("PRIVATE_GROUP_ID", raw.Telegram.PrivateChatID)
	if cfg.Telegram.PrivateChatID, err = parseChatID("PRIVATE_GROUP_ID", privateRaw); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required identifier is present.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Telegram.AdminChatID == 0 {
		return fmt.Errorf("ADMIN_GROUP_ID is required")
	}
	if c.Telegram.PrivateChatID == 0 {
		return fmt.Errorf("PRIVATE_GROUP_ID is required")
	}
	switch c.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.Telegram.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required in webhook mode")
		}
	default:
		return fmt.Errorf("unknown TELEGRAM_MODE %q", c.Telegram.Mode)
	}
	switch c.Classifier.Provider {
	case "openai", "claude", "gemini":
	default:
		return fmt.Errorf("unknown CLASSIFIER_PROVIDER %q", c.Classifier.Provider)
	}
	if (c.Ledger.SpreadsheetID == "") != (c.Ledger.CredentialsFile == "") {
		return fmt.Errorf("GOOGLE_SHEET_ID and GOOGLE_CREDENTIALS_FILE must be set together")
	}
	return nil
}

func parseChatID(name, v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, v, err)
	}
	return id, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
