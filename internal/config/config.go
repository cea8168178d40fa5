package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/arkline-dev/antigravity-gateway/internal/utils"
)

// HealthScoreConfig configures the health scoring component of the hybrid
// selection strategy.
type HealthScoreConfig struct {
	Initial          float64 `json:"initial"`
	SuccessReward    float64 `json:"successReward"`
	RateLimitPenalty float64 `json:"rateLimitPenalty"`
	FailurePenalty   float64 `json:"failurePenalty"`
	RecoveryPerHour  float64 `json:"recoveryPerHour"`
	MinUsable        float64 `json:"minUsable"`
	MaxScore         float64 `json:"maxScore"`
}

// TokenBucketConfig configures the token bucket component of the hybrid
// selection strategy.
type TokenBucketConfig struct {
	MaxTokens       float64 `json:"maxTokens"`
	TokensPerMinute float64 `json:"tokensPerMinute"`
	InitialTokens   float64 `json:"initialTokens"`
}

// AccountSelectionConfig configures which selection strategy the Account
// Selector runs, and the tuning for the hybrid strategy when selected.
type AccountSelectionConfig struct {
	Strategy    string             `json:"strategy"`
	HealthScore *HealthScoreConfig `json:"healthScore,omitempty"`
	TokenBucket *TokenBucketConfig `json:"tokenBucket,omitempty"`
}

// Config is the gateway's runtime configuration.
type Config struct {
	mu sync.RWMutex

	// API access
	APIKey string `json:"apiKey"`

	// Logging
	Debug    bool   `json:"debug"`
	LogLevel string `json:"logLevel"`

	// Dispatcher retry/cooldown tuning
	MaxRetries           int   `json:"maxRetries"`
	DefaultCooldownMs    int64 `json:"defaultCooldownMs"`
	MaxWaitBeforeErrorMs int64 `json:"maxWaitBeforeErrorMs"`
	MaxAccounts          int   `json:"maxAccounts"`

	// Account selection
	AccountSelection AccountSelectionConfig `json:"accountSelection"`

	// Ledger mirror (advisory, optional)
	RedisAddr     string `json:"redisAddr"`
	RedisPassword string `json:"redisPassword"`
	RedisDB       int    `json:"redisDB"`
	LedgerMirror  bool   `json:"ledgerMirror"`

	// Dispatch audit log
	AuditLogEnabled bool `json:"auditLogEnabled"`

	// HTTP front door
	Port int    `json:"port"`
	Host string `json:"host"`

	// Model fallback
	FallbackEnabled bool `json:"fallbackEnabled"`
}

// DefaultConfig returns a Config populated with the gateway's defaults.
func DefaultConfig() *Config {
	return &Config{
		APIKey:               "",
		Debug:                false,
		LogLevel:             "info",
		MaxRetries:           MaxRetries,
		DefaultCooldownMs:    DefaultCooldownMs,
		MaxWaitBeforeErrorMs: MaxWaitBeforeErrorMs,
		MaxAccounts:          MaxAccounts,
		AccountSelection: AccountSelectionConfig{
			Strategy: DefaultSelectionStrategy,
			HealthScore: &HealthScoreConfig{
				Initial:          70,
				SuccessReward:    1,
				RateLimitPenalty: -10,
				FailurePenalty:   -20,
				RecoveryPerHour:  2,
				MinUsable:        50,
				MaxScore:         100,
			},
			TokenBucket: &TokenBucketConfig{
				MaxTokens:       50,
				TokensPerMinute: 6,
				InitialTokens:   50,
			},
		},
		RedisAddr:       "localhost:6379",
		RedisPassword:   "",
		RedisDB:         0,
		LedgerMirror:    false,
		AuditLogEnabled: true,
		Port:            8080,
		Host:            "0.0.0.0",
		FallbackEnabled: true,
	}
}

var (
	configFileDir  string
	configFileName string
)

func init() {
	configFileDir = configDir()
	configFileName = filepath.Join(configFileDir, "gateway-config.json")
}

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
)

// GetConfig returns the process-wide Config, loading it from disk and the
// environment on first use.
func GetConfig() *Config {
	globalConfigOnce.Do(func() {
		globalConfig = DefaultConfig()
		if err := globalConfig.Load(); err != nil {
			utils.Warn("failed to load config: %v", err)
		}
	})
	return globalConfig
}

// Load reads configuration from the on-disk config file (if present) and
// then applies environment variable overrides.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := utils.EnsureDir(configFileDir); err != nil {
		utils.Warn("failed to create config directory: %v", err)
	}

	if utils.FileExists(configFileName) {
		if err := c.loadFromFile(configFileName); err != nil {
			utils.Warn("failed to load config from %s: %v", configFileName, err)
		}
	}

	c.loadFromEnv()
	utils.SetDebug(c.Debug)
	return nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	temp := DefaultConfig()
	if err := json.Unmarshal(data, temp); err != nil {
		return err
	}

	c.APIKey = temp.APIKey
	c.Debug = temp.Debug
	c.LogLevel = temp.LogLevel
	c.MaxRetries = temp.MaxRetries
	c.DefaultCooldownMs = temp.DefaultCooldownMs
	c.MaxWaitBeforeErrorMs = temp.MaxWaitBeforeErrorMs
	c.MaxAccounts = temp.MaxAccounts
	c.AccountSelection = temp.AccountSelection
	c.RedisAddr = temp.RedisAddr
	c.RedisPassword = temp.RedisPassword
	c.RedisDB = temp.RedisDB
	c.LedgerMirror = temp.LedgerMirror
	c.AuditLogEnabled = temp.AuditLogEnabled
	c.Port = temp.Port
	c.Host = temp.Host
	c.FallbackEnabled = temp.FallbackEnabled
	return nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("ANTIGRAVITY_API_KEY"); v != "" {
		c.APIKey = v
	}
	if os.Getenv("DEBUG") == "true" {
		c.Debug = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
		c.LedgerMirror = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("SELECTION_STRATEGY"); v != "" {
		c.AccountSelection.Strategy = v
	}
	if os.Getenv("FALLBACK") == "false" {
		c.FallbackEnabled = false
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
}

// Save persists the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := utils.EnsureDir(configFileDir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configFileName, data, 0o644)
}

// GetStrategy returns the currently configured account selection strategy.
func (c *Config) GetStrategy() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AccountSelection.Strategy
}

// SetStrategy updates the account selection strategy.
func (c *Config) SetStrategy(strategy string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AccountSelection.Strategy = strategy
}

// IsDebug reports whether debug logging is enabled.
func (c *Config) IsDebug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Debug
}
