package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // exact path, or a prefix when it ends in "/"
	Method string        // HTTP method
	Limit  int           // requests per Window; 0 means unlimited
	Window time.Duration // refill window
	Burst  int           // bucket capacity (defaults to Limit if 0)
}

// LoadConfig loads rate limiting configuration from RATE_LIMIT_* environment
// variables.
func LoadConfig() *Config {
	if !getEnvBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	upload := EndpointConfig{
		Path:   "/upload",
		Method: "POST",
		Limit:  getEnvInt("RATE_LIMIT_UPLOAD_LIMIT", 30),
		Window: getEnvDuration("RATE_LIMIT_UPLOAD_WINDOW", time.Minute),
		Burst:  getEnvInt("RATE_LIMIT_UPLOAD_BURST", 5),
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(getEnvString("RATE_LIMIT_WHITELIST", "")),
		Blacklist:       parseIPList(getEnvString("RATE_LIMIT_BLACKLIST", "")),
		EndpointConfigs: append([]EndpointConfig{upload}, DefaultEndpointConfigs()[1:]...),
	}
}

// DefaultEndpointConfigs returns the built-in per-endpoint limits.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// uploads start a pipeline run
		{Path: "/upload", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},
		// pollers hit status often
		{Path: "/process_status/", Method: "GET", Limit: 600, Window: time.Minute, Burst: 60},
		{Path: "/processed/", Method: "GET", Limit: 120, Window: time.Minute, Burst: 20},
	}
}

func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of client addresses.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
