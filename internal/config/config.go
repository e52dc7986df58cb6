// Package config provides application configuration management.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration bounds to prevent resource exhaustion.
const (
	maxRenderTimeout  = 120 * time.Second
	minRenderTimeout  = 1 * time.Second
	maxExtraWait      = 30 * time.Second
	maxConcurrencyCap = 32
	maxBatchCap       = 50
	minBodyLimit      = 4 * 1024
	maxBodyLimit      = 64 * 1024 * 1024
	minTokenLength    = 16
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Authentication
	AuthToken string

	// Browser settings
	Headless    bool
	BrowserPath string
	ProxyServer string

	// Render defaults
	RenderTimeout time.Duration // default hardTimeoutMs per request
	ExtraWaitTime time.Duration // default postLoadWaitMs per request

	// Capacity
	MaxConcurrency int   // process-wide cap on in-flight renders
	MaxBatchURLs   int   // maximum URLs per batch request
	BodyLimit      int64 // request body cap in bytes

	// Fingerprint pools
	FingerprintPoolFile string // optional YAML override, hot-reloaded when set

	// Logging
	LogLevel  string
	LogPretty bool

	// Security
	TrustProxy            bool     // trust X-Forwarded-For (only behind a reverse proxy)
	AllowPrivateAddresses bool     // permit rendering of private/loopback targets
	CORSAllowedOrigins    []string // empty = allow all with warning

	// Metrics
	MetricsPort int // 0 disables the Prometheus listener
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		Host: getEnvString("HOST", "0.0.0.0"),
		Port: getEnvInt("PORT", 8080),

		AuthToken: os.Getenv("AUTH_TOKEN"),

		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),
		ProxyServer: getEnvString("PROXY_SERVER", ""),

		// Both accept bare millisecond integers on the wire.
		RenderTimeout: getEnvMillis("BROWSER_TIMEOUT", 30*time.Second),
		ExtraWaitTime: getEnvMillis("EXTRA_WAIT_TIME", 2*time.Second),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),
		MaxBatchURLs:   getEnvInt("MAX_BATCH_URLS", 10),
		BodyLimit:      int64(getEnvInt("BODY_LIMIT", 1024*1024)),

		FingerprintPoolFile: getEnvString("FINGERPRINT_POOL_FILE", ""),

		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		TrustProxy:            getEnvBool("TRUST_PROXY", false),
		AllowPrivateAddresses: getEnvBool("ALLOW_PRIVATE_ADDRESSES", false),
		CORSAllowedOrigins:    getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),

		MetricsPort: getEnvInt("METRICS_PORT", 0),
	}
}

// ErrMissingAuthToken is returned by Validate when AUTH_TOKEN is not set.
var ErrMissingAuthToken = errors.New("AUTH_TOKEN environment variable is required")

// Validate checks configuration values. Fatal problems (a missing auth
// token) are returned as errors; recoverable ones are corrected to sensible
// defaults with a warning log.
func (c *Config) Validate() error {
	if c.AuthToken == "" {
		return ErrMissingAuthToken
	}
	if len(c.AuthToken) < minTokenLength {
		log.Warn().
			Int("length", len(c.AuthToken)).
			Int("min_recommended", minTokenLength).
			Msg("AUTH_TOKEN is short; consider a longer random token")
	}

	// Port validation - allow 0 for system-assigned ports
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8080")
		c.Port = 8080
	}

	// BrowserPath validation - prevent path traversal
	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BROWSER_PATH contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BROWSER_PATH should be an absolute path")
		}
	}

	if c.ProxyServer != "" {
		if !strings.Contains(c.ProxyServer, "://") {
			log.Warn().
				Str("proxy", c.ProxyServer).
				Msg("PROXY_SERVER missing scheme, assuming http://")
			c.ProxyServer = "http://" + c.ProxyServer
		}
		if strings.Contains(c.ProxyServer, "@") {
			log.Warn().Msg("PROXY_SERVER contains embedded credentials - authenticated proxies are not supported, use a local forwarder")
		}
	}

	// Render timeout clamped to the hard ceiling
	if c.RenderTimeout < minRenderTimeout {
		log.Warn().Dur("timeout", c.RenderTimeout).Msg("BROWSER_TIMEOUT too short, using 30s")
		c.RenderTimeout = 30 * time.Second
	} else if c.RenderTimeout > maxRenderTimeout {
		log.Warn().
			Dur("timeout", c.RenderTimeout).
			Dur("max", maxRenderTimeout).
			Msg("BROWSER_TIMEOUT too long, capping to maximum")
		c.RenderTimeout = maxRenderTimeout
	}

	if c.ExtraWaitTime < 0 {
		log.Warn().Dur("wait", c.ExtraWaitTime).Msg("EXTRA_WAIT_TIME negative, using 2s")
		c.ExtraWaitTime = 2 * time.Second
	} else if c.ExtraWaitTime > maxExtraWait {
		log.Warn().
			Dur("wait", c.ExtraWaitTime).
			Dur("max", maxExtraWait).
			Msg("EXTRA_WAIT_TIME too long, capping to maximum")
		c.ExtraWaitTime = maxExtraWait
	}

	if c.MaxConcurrency < 1 {
		log.Warn().Int("max", c.MaxConcurrency).Msg("Invalid MAX_CONCURRENCY, using 4")
		c.MaxConcurrency = 4
	} else if c.MaxConcurrency > maxConcurrencyCap {
		log.Warn().
			Int("max", c.MaxConcurrency).
			Int("cap", maxConcurrencyCap).
			Msg("MAX_CONCURRENCY too high, capping to maximum")
		c.MaxConcurrency = maxConcurrencyCap
	}

	if c.MaxBatchURLs < 1 {
		log.Warn().Int("max", c.MaxBatchURLs).Msg("Invalid MAX_BATCH_URLS, using 10")
		c.MaxBatchURLs = 10
	} else if c.MaxBatchURLs > maxBatchCap {
		log.Warn().
			Int("max", c.MaxBatchURLs).
			Int("cap", maxBatchCap).
			Msg("MAX_BATCH_URLS too high, capping to maximum")
		c.MaxBatchURLs = maxBatchCap
	}

	if c.BodyLimit < minBodyLimit {
		log.Warn().Int64("limit", c.BodyLimit).Msg("BODY_LIMIT too small, using 1MiB")
		c.BodyLimit = 1024 * 1024
	} else if c.BodyLimit > maxBodyLimit {
		log.Warn().
			Int64("limit", c.BodyLimit).
			Int64("max", maxBodyLimit).
			Msg("BODY_LIMIT too large, capping to maximum")
		c.BodyLimit = maxBodyLimit
	}

	// Fingerprint pool override path validation
	if c.FingerprintPoolFile != "" {
		if strings.Contains(c.FingerprintPoolFile, "..") {
			log.Error().
				Str("path", c.FingerprintPoolFile).
				Msg("FINGERPRINT_POOL_FILE contains path traversal sequence (..), ignoring")
			c.FingerprintPoolFile = ""
		} else if _, err := os.Stat(c.FingerprintPoolFile); os.IsNotExist(err) {
			log.Warn().
				Str("path", c.FingerprintPoolFile).
				Msg("FINGERPRINT_POOL_FILE does not exist - watcher will wait for file creation")
		}
	}

	// Log level validation
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	if len(c.CORSAllowedOrigins) == 0 {
		log.Warn().Msg("CORS_ALLOWED_ORIGINS not set - allowing all origins")
	}

	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		log.Warn().Int("port", c.MetricsPort).Msg("Invalid METRICS_PORT, disabling metrics listener")
		c.MetricsPort = 0
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.Port {
		log.Warn().Int("port", c.MetricsPort).Msg("METRICS_PORT conflicts with PORT, disabling metrics listener")
		c.MetricsPort = 0
	}

	if c.AllowPrivateAddresses {
		log.Warn().Msg("ALLOW_PRIVATE_ADDRESSES enabled - SSRF protection is off")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

// getEnvMillis parses a bare millisecond integer into a Duration.
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Dur("default", defaultValue).
			Msg("Invalid millisecond value in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
