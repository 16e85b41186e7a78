//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"

	"github.com/google/uuid"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	MemcachedAddr string
	MySQLDSN      string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Tests that need a particular backend skip when its setting is empty.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5/forecast"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIKey:        os.Getenv("WEATHER_API_KEY"),
		APIURL:        apiURL,
		MemcachedAddr: memcachedAddr,
		MySQLDSN:      os.Getenv("FORECAST_MYSQL_DSN"),
	}
}

// RequireAPIKey skips the test unless WEATHER_API_KEY is set.
func RequireAPIKey(t *testing.T, cfg IntegrationTestConfig) {
	t.Helper()
	if cfg.APIKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
}

// UniqueName returns prefix plus a random suffix, so shared backends never
// see the same key from two runs.
func UniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
