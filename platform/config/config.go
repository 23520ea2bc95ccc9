// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// CRMConfig provides settings for the dealership CRM API client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIToken() string
	GetCRMTimeout() time.Duration
	GetCRMRequestsPerSecond() float64
}

// PipelineConfig provides tuning for the pipeline synchronization core.
type PipelineConfig interface {
	GetPipelinePageSize() int
	GetPipelineDebounce() time.Duration
	GetPipelineFetchConcurrency() int
	GetPipelineInboxSize() int
}

// RealtimeConfig provides settings for push event sources.
type RealtimeConfig interface {
	GetRealtimeSocketURL() string
	GetRedisURL() string
	GetRealtimeRedisChannel() string
	GetRealtimeReconnectDelay() time.Duration
	IsSocketEnabled() bool
	IsRedisEnabled() bool
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SessionConfig provides settings for server-hosted pipeline sessions.
type SessionConfig interface {
	GetSessionIdleTTL() time.Duration
	GetSessionLimit() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	JWTAccessSecret          string
	CORSAllowAll             bool
	CORSOrigins              []string
	CORSAllowCreds           bool
	CRMBaseURL               string
	CRMAPIToken              string
	CRMTimeout               time.Duration
	CRMRequestsPerSecond     float64
	PipelinePageSize         int
	PipelineDebounce         time.Duration
	PipelineFetchConcurrency int
	PipelineInboxSize        int
	RealtimeSocketURL        string
	RedisURL                 string
	RealtimeRedisChannel     string
	RealtimeReconnectDelay   time.Duration
	SessionIdleTTL           time.Duration
	SessionLimit             int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string            { return c.CRMBaseURL }
func (c *Config) GetCRMAPIToken() string           { return c.CRMAPIToken }
func (c *Config) GetCRMTimeout() time.Duration     { return c.CRMTimeout }
func (c *Config) GetCRMRequestsPerSecond() float64 { return c.CRMRequestsPerSecond }

// PipelineConfig implementation
func (c *Config) GetPipelinePageSize() int           { return c.PipelinePageSize }
func (c *Config) GetPipelineDebounce() time.Duration { return c.PipelineDebounce }
func (c *Config) GetPipelineFetchConcurrency() int   { return c.PipelineFetchConcurrency }
func (c *Config) GetPipelineInboxSize() int          { return c.PipelineInboxSize }

// RealtimeConfig implementation
func (c *Config) GetRealtimeSocketURL() string             { return c.RealtimeSocketURL }
func (c *Config) GetRedisURL() string                      { return c.RedisURL }
func (c *Config) GetRealtimeRedisChannel() string          { return c.RealtimeRedisChannel }
func (c *Config) GetRealtimeReconnectDelay() time.Duration { return c.RealtimeReconnectDelay }
func (c *Config) IsSocketEnabled() bool                    { return c.RealtimeSocketURL != "" }
func (c *Config) IsRedisEnabled() bool                     { return c.RedisURL != "" }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SessionConfig implementation
func (c *Config) GetSessionIdleTTL() time.Duration { return c.SessionIdleTTL }
func (c *Config) GetSessionLimit() int             { return c.SessionLimit }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8090"),
		JWTAccessSecret:          getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
		CORSAllowCreds:           strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		CRMBaseURL:               strings.TrimRight(getEnv("CRM_BASE_URL", ""), "/"),
		CRMAPIToken:              getEnv("CRM_API_TOKEN", ""),
		CRMTimeout:               mustDuration(getEnv("CRM_TIMEOUT", "15s")),
		CRMRequestsPerSecond:     mustFloat(getEnv("CRM_REQUESTS_PER_SECOND", "20")),
		PipelinePageSize:         mustInt(getEnv("PIPELINE_PAGE_SIZE", "20")),
		PipelineDebounce:         mustDuration(getEnv("PIPELINE_DEBOUNCE", "300ms")),
		PipelineFetchConcurrency: mustInt(getEnv("PIPELINE_FETCH_CONCURRENCY", "8")),
		PipelineInboxSize:        mustInt(getEnv("PIPELINE_INBOX_SIZE", "64")),
		RealtimeSocketURL:        getEnv("REALTIME_SOCKET_URL", ""),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RealtimeRedisChannel:     getEnv("REALTIME_REDIS_CHANNEL", "crm:events"),
		RealtimeReconnectDelay:   mustDuration(getEnv("REALTIME_RECONNECT_DELAY", "2s")),
		SessionIdleTTL:           mustDuration(getEnv("PIPELINE_SESSION_IDLE_TTL", "30m")),
		SessionLimit:             mustInt(getEnv("PIPELINE_SESSION_LIMIT", "200")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.CRMBaseURL == "" {
		return fmt.Errorf("CRM_BASE_URL is required")
	}
	if c.PipelinePageSize < 1 || c.PipelinePageSize > 100 {
		return fmt.Errorf("PIPELINE_PAGE_SIZE must be between 1 and 100")
	}
	if c.PipelineFetchConcurrency < 1 {
		return fmt.Errorf("PIPELINE_FETCH_CONCURRENCY must be positive")
	}
	if c.PipelineInboxSize < 1 {
		return fmt.Errorf("PIPELINE_INBOX_SIZE must be positive")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
