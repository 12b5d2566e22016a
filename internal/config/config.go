package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port             string        `yaml:"port"`
	APIKey           string        `yaml:"api_key"`
	ModelBaseURL     string        `yaml:"model_base_url"`
	ModelName        string        `yaml:"model_name"`
	ModelTemperature float64       `yaml:"model_temperature"`
	ModelThinking    int           `yaml:"model_thinking_budget"`
	ModelTimeout     time.Duration `yaml:"model_request_timeout"`
	ModelRatePerMin  int           `yaml:"model_rate_limit_per_min"`
	CircuitFailLimit int           `yaml:"circuit_fail_limit"`
	CircuitCooldown  time.Duration `yaml:"circuit_cooldown"`
	RedisURL         string        `yaml:"redis_url"`
	CacheTTLVerify   time.Duration `yaml:"cache_ttl_verify"`
	RateLimitPerMin  int           `yaml:"rate_limit_per_min"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	MaxChatImages    int           `yaml:"max_chat_images"`
	VerifyFailClosed bool          `yaml:"verify_fail_closed"`
	AuthSecret       string        `yaml:"auth_secret"`
	AuthTokenTTL     time.Duration `yaml:"auth_token_ttl"`
	AuthMockDelay    time.Duration `yaml:"auth_mock_delay"`
	RecorderDBPath   string        `yaml:"recorder_db_path"`
	WorkspaceIdleTTL time.Duration `yaml:"workspace_idle_ttl"`
	JanitorSchedule  string        `yaml:"janitor_schedule"`
}

func Default() Config {
	return Config{
		Port:             "8080",
		ModelBaseURL:     "https://generativelanguage.googleapis.com",
		ModelName:        "gemini-2.5-flash",
		ModelTemperature: 0.1,
		ModelThinking:    4000,
		ModelRatePerMin:  60,
		CircuitFailLimit: 5,
		CircuitCooldown:  20 * time.Second,
		RedisURL:         "redis://localhost:6379",
		CacheTTLVerify:   24 * time.Hour,
		RateLimitPerMin:  120,
		MaxUploadBytes:   20 << 20,
		MaxChatImages:    6,
		AuthTokenTTL:     24 * time.Hour,
		AuthMockDelay:    1500 * time.Millisecond,
		WorkspaceIdleTTL: 2 * time.Hour,
		JanitorSchedule:  "@every 10m",
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE and
// the environment, in that order of precedence (environment wins).
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.APIKey = getEnv("API_KEY", getEnv("GEMINI_API_KEY", cfg.APIKey))
	cfg.ModelBaseURL = getEnv("MODEL_BASE_URL", cfg.ModelBaseURL)
	cfg.ModelName = getEnv("MODEL_NAME", cfg.ModelName)
	cfg.ModelTemperature = getEnvFloat("MODEL_TEMPERATURE", cfg.ModelTemperature)
	cfg.ModelThinking = getEnvInt("MODEL_THINKING_BUDGET", cfg.ModelThinking)
	cfg.ModelTimeout = getEnvDuration("MODEL_REQUEST_TIMEOUT", cfg.ModelTimeout)
	cfg.ModelRatePerMin = getEnvInt("MODEL_RATE_LIMIT_PER_MIN", cfg.ModelRatePerMin)
	cfg.CircuitFailLimit = getEnvInt("CIRCUIT_FAIL_LIMIT", cfg.CircuitFailLimit)
	cfg.CircuitCooldown = getEnvDuration("CIRCUIT_COOLDOWN", cfg.CircuitCooldown)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.CacheTTLVerify = getEnvDuration("CACHE_TTL_VERIFY", cfg.CacheTTLVerify)
	cfg.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MIN", cfg.RateLimitPerMin)
	cfg.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))
	cfg.MaxChatImages = getEnvInt("MAX_CHAT_IMAGES", cfg.MaxChatImages)
	cfg.VerifyFailClosed = getEnvBool("VERIFY_FAIL_CLOSED", cfg.VerifyFailClosed)
	cfg.AuthSecret = getEnv("AUTH_SECRET", cfg.AuthSecret)
	cfg.AuthTokenTTL = getEnvDuration("AUTH_TOKEN_TTL", cfg.AuthTokenTTL)
	cfg.AuthMockDelay = getEnvDuration("AUTH_MOCK_DELAY", cfg.AuthMockDelay)
	cfg.RecorderDBPath = getEnv("RECORDER_DB_PATH", cfg.RecorderDBPath)
	cfg.WorkspaceIdleTTL = getEnvDuration("WORKSPACE_IDLE_TTL", cfg.WorkspaceIdleTTL)
	cfg.JanitorSchedule = getEnv("JANITOR_SCHEDULE", cfg.JanitorSchedule)
}

// Validate reports configuration the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("API_KEY environment variable is not set")
	}
	if c.MaxChatImages < 1 {
		return fmt.Errorf("max_chat_images must be at least 1, got %d", c.MaxChatImages)
	}
	if c.ModelTemperature < 0 || c.ModelTemperature > 2 {
		return fmt.Errorf("model_temperature out of range: %v", c.ModelTemperature)
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// getEnvDuration accepts plain seconds ("30") or a Go duration ("1500ms").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
