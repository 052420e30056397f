package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mt5dash/internal/ports"
)

// Account couples the terminal credentials with the analytics settings of
// one monitored account.
type Account struct {
	Name           string  `yaml:"name"`
	Login          int64   `yaml:"login"`
	Password       string  `yaml:"password"`
	Server         string  `yaml:"server"`
	InitialBalance float64 `yaml:"initial_balance"` // brokers do not expose it, so it is configured
}

// Config holds all application configuration.
type Config struct {
	// Terminal bridge
	BridgeURL string

	// Monitored accounts
	AccountsFile string
	Accounts     []Account

	// HTTP API
	HTTPAddr string

	// History window used when no explicit range is requested
	HistoryDays int

	// Database
	DBPath string

	// Logging
	LogLevel string

	// Connection Settings
	HTTPTimeout          time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file) and
// the accounts YAML file.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.BridgeURL = getEnv("BRIDGE_URL", "http://127.0.0.1:8228")
	if cfg.BridgeURL == "" {
		errs = append(errs, "BRIDGE_URL must be set")
	}

	cfg.AccountsFile = getEnv("ACCOUNTS_FILE", "./accounts.yaml")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.HistoryDays = getEnvAsInt("HISTORY_DAYS", 365)
	if cfg.HistoryDays <= 0 {
		errs = append(errs, "HISTORY_DAYS must be positive")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/mt5dash.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	httpTimeoutSeconds := getEnvAsInt("HTTP_TIMEOUT_SECONDS", 15)
	if httpTimeoutSeconds <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPTimeout = time.Duration(httpTimeoutSeconds) * time.Second

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	accounts, err := loadAccounts(cfg.AccountsFile)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.Accounts = accounts

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return cfg, nil
}

// loadAccounts reads and validates the accounts YAML file.
func loadAccounts(path string) ([]Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read accounts file '%s': %v", path, err)
	}

	var parsed struct {
		Accounts []Account `yaml:"accounts"`
	}
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("cannot parse accounts file '%s': %v", path, err)
	}
	if len(parsed.Accounts) == 0 {
		return nil, fmt.Errorf("accounts file '%s' defines no accounts", path)
	}

	seen := make(map[int64]bool, len(parsed.Accounts))
	for i, acc := range parsed.Accounts {
		if acc.Login <= 0 {
			return nil, fmt.Errorf("account %d: login must be positive", i)
		}
		if seen[acc.Login] {
			return nil, fmt.Errorf("account %d: duplicate login %d", i, acc.Login)
		}
		seen[acc.Login] = true
		if acc.Server == "" {
			return nil, fmt.Errorf("account %d (login %d): server must be set", i, acc.Login)
		}
		if acc.InitialBalance <= 0 {
			return nil, fmt.Errorf("account %d (login %d): initial_balance must be positive", i, acc.Login)
		}
	}
	return parsed.Accounts, nil
}

// AccountByLogin looks up a configured account.
func (c *Config) AccountByLogin(login int64) (Account, bool) {
	for _, acc := range c.Accounts {
		if acc.Login == login {
			return acc, true
		}
	}
	return Account{}, false
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
