// Package config provides configuration management for the address analyzer.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Gemini    GeminiConfig
	Analysis  AnalysisConfig
	Alchemy   AlchemyConfig
	Chain     ChainConfig
	Claim     ClaimConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// GeminiConfig holds the hosted model configuration
type GeminiConfig struct {
	APIKey      string
	Model       string
	ChatModel   string
	Timeout     time.Duration
	MaxAttempts int
}

// AnalysisConfig holds category analysis configuration
type AnalysisConfig struct {
	CategoriesFile      string
	FallbackParse       int
	FallbackUnavailable int
	ExplanationMax      int
	FocusNetworks       []string
	CacheSize           int
	CacheTTL            time.Duration
	BreakerThreshold    int
	BreakerReset        time.Duration
}

// AlchemyConfig holds transfer enrichment configuration
type AlchemyConfig struct {
	Networks map[types.ChainID]AlchemyNetwork
	MaxCount int
	Timeout  time.Duration
}

// AlchemyNetwork holds the endpoints for one network
type AlchemyNetwork struct {
	URLPrimary   string
	URLSecondary string
}

// ChainConfig holds the claim chain configuration
type ChainConfig struct {
	Network       types.ChainID
	RPCPrimary    string
	RPCSecondary  string
	PowersAddress string
	ClaimLawID    uint16
}

// ClaimConfig holds claim tracker configuration
type ClaimConfig struct {
	Stages       []types.Stage
	TickInterval time.Duration
	PollInterval time.Duration
	CallTimeout  time.Duration
	StateFile    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultClaimStages is the stage table of the deployed claim flow
const DefaultClaimStages = "(mantle) claim send:0;(sepolia) AI agent received claim:36;(sepolia) AI agent send claim:5;(mantle) role assignment processed:36"

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	stages, err := ParseStages(getEnv("CLAIM_STAGES", DefaultClaimStages))
	if err != nil {
		return nil, err
	}

	lawID, err := strconv.ParseUint(getEnv("CLAIM_LAW_ID", "3"), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid CLAIM_LAW_ID: %w", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Gemini: GeminiConfig{
			APIKey:      getEnv("GEMINI_API_KEY", ""),
			Model:       getEnv("GEMINI_MODEL", "gemini-2.5-pro"),
			ChatModel:   getEnv("GEMINI_CHAT_MODEL", "gemini-2.5-flash"),
			Timeout:     getEnvAsDuration("GEMINI_TIMEOUT", 30*time.Second),
			MaxAttempts: getEnvAsInt("GEMINI_MAX_ATTEMPTS", 2),
		},
		Analysis: AnalysisConfig{
			CategoriesFile:      getEnv("CATEGORIES_FILE", ""),
			FallbackParse:       getEnvAsInt("ANALYSIS_FALLBACK_PARSE_CATEGORY", 7),
			FallbackUnavailable: getEnvAsInt("ANALYSIS_FALLBACK_UNAVAILABLE_CATEGORY", 7),
			ExplanationMax:      getEnvAsInt("ANALYSIS_EXPLANATION_MAX", 255),
			FocusNetworks:       getEnvAsList("ANALYSIS_FOCUS_NETWORKS", "eth-mainnet,base-mainnet"),
			CacheSize:           getEnvAsInt("ANALYSIS_CACHE_SIZE", 1024),
			CacheTTL:            getEnvAsDuration("ANALYSIS_CACHE_TTL", 10*time.Minute),
			BreakerThreshold:    getEnvAsInt("ANALYSIS_BREAKER_THRESHOLD", 5),
			BreakerReset:        getEnvAsDuration("ANALYSIS_BREAKER_RESET", 30*time.Second),
		},
		Alchemy: loadAlchemyConfig(),
		Chain: ChainConfig{
			Network:       types.ChainID(getEnv("CLAIM_NETWORK", string(types.ChainMantle))),
			RPCPrimary:    getEnv("CLAIM_RPC_URL", ""),
			RPCSecondary:  getEnv("CLAIM_RPC_URL_SECONDARY", ""),
			PowersAddress: getEnv("POWERS_ADDRESS", ""),
			ClaimLawID:    uint16(lawID),
		},
		Claim: ClaimConfig{
			Stages:       stages,
			TickInterval: getEnvAsDuration("CLAIM_TICK_INTERVAL", time.Second),
			PollInterval: getEnvAsDuration("CLAIM_POLL_INTERVAL", 30*time.Second),
			CallTimeout:  getEnvAsDuration("CLAIM_CALL_TIMEOUT", 20*time.Second),
			StateFile:    getEnv("CLAIM_STATE_FILE", ".claimctl-state.json"),
		},
		Redis: RedisConfig{
			Enabled:        getEnvAsBool("REDIS_ENABLED", false),
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
		},
		Postgres: PostgresConfig{
			Enabled:        getEnvAsBool("POSTGRES_ENABLED", false),
			Host:           getEnv("POSTGRES_HOST", "localhost"),
			Port:           getEnv("POSTGRES_PORT", "5432"),
			Database:       getEnv("POSTGRES_DB", "address_analyzer"),
			User:           getEnv("POSTGRES_USER", "analyzer"),
			Password:       getEnv("POSTGRES_PASSWORD", ""),
			MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 2),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
	}

	return config, nil
}

// loadAlchemyConfig loads per-network enrichment endpoints.
// Networks without a URL are skipped.
func loadAlchemyConfig() AlchemyConfig {
	networks := make(map[types.ChainID]AlchemyNetwork)
	for _, name := range getEnvAsList("ALCHEMY_NETWORKS", "ethereum,base") {
		prefix := strings.ToUpper(name)
		primary := getEnv(prefix+"_ALCHEMY_URL", "")
		if primary == "" {
			continue
		}
		networks[types.ChainID(name)] = AlchemyNetwork{
			URLPrimary:   primary,
			URLSecondary: getEnv(prefix+"_ALCHEMY_URL_SECONDARY", ""),
		}
	}

	return AlchemyConfig{
		Networks: networks,
		MaxCount: getEnvAsInt("ALCHEMY_MAX_COUNT", 25),
		Timeout:  getEnvAsDuration("ALCHEMY_TIMEOUT", 15*time.Second),
	}
}

// ValidateAnalysis checks the settings the analysis and chat endpoints cannot run without
func (c *Config) ValidateAnalysis() error {
	if c.Gemini.APIKey == "" {
		return apperrors.NewConfigurationMissingError("GEMINI_API_KEY")
	}
	return nil
}

// ValidateClaims checks the settings the claim tracker cannot run without
func (c *Config) ValidateClaims() error {
	var missing []string
	if c.Chain.RPCPrimary == "" {
		missing = append(missing, "CLAIM_RPC_URL")
	}
	if c.Chain.PowersAddress == "" {
		missing = append(missing, "POWERS_ADDRESS")
	}
	if len(missing) > 0 {
		return apperrors.NewConfigurationMissingError(missing...)
	}
	if !types.IsValidAddress(c.Chain.PowersAddress) {
		return apperrors.NewInvalidParameterError("POWERS_ADDRESS", "POWERS_ADDRESS is not a valid address")
	}
	if c.Claim.TickInterval <= 0 || c.Claim.PollInterval <= 0 {
		return apperrors.NewInvalidParameterError("CLAIM_POLL_INTERVAL", "claim intervals must be positive")
	}
	return nil
}

// Validate checks everything the server needs
func (c *Config) Validate() error {
	if err := c.ValidateAnalysis(); err != nil {
		return err
	}
	return c.ValidateClaims()
}

// ParseStages parses a stage table written as "label:minutes;label:minutes".
// Stage ids follow declaration order starting at 0.
func ParseStages(raw string) ([]types.Stage, error) {
	var stages []types.Stage
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.LastIndex(part, ":")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid claim stage %q: want label:minutes", part)
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(part[idx+1:]))
		if err != nil || minutes < 0 {
			return nil, fmt.Errorf("invalid claim stage duration in %q", part)
		}
		stages = append(stages, types.Stage{
			ID:              len(stages),
			Label:           strings.TrimSpace(part[:idx]),
			DurationMinutes: minutes,
		})
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("claim stage table is empty")
	}
	return stages, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
