package anthropic

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfigValidate(t *testing.T) {
	validConfig := func() *ClientConfig {
		return &ClientConfig{
			APIKey:            "test-api-key",
			BaseURL:           "https://api.anthropic.com",
			APIVersion:        "2023-06-01",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5.0,
			Burst:             10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(*ClientConfig) {},
		},
		{
			name:    "empty API key",
			mutate:  func(c *ClientConfig) { c.APIKey = "" },
			wantErr: "API key cannot be empty",
		},
		{
			name:    "whitespace API key",
			mutate:  func(c *ClientConfig) { c.APIKey = "   " },
			wantErr: "API key cannot be empty or whitespace",
		},
		{
			name:    "base URL without scheme",
			mutate:  func(c *ClientConfig) { c.BaseURL = "api.anthropic.com" },
			wantErr: "invalid base URL",
		},
		{
			name:   "empty base URL is allowed",
			mutate: func(c *ClientConfig) { c.BaseURL = "" },
		},
		{
			name:    "negative timeout",
			mutate:  func(c *ClientConfig) { c.Timeout = -1 * time.Second },
			wantErr: "timeout must be positive",
		},
		{
			name:    "negative requests per second",
			mutate:  func(c *ClientConfig) { c.RequestsPerSecond = -1 },
			wantErr: "requests per second cannot be negative",
		},
		{
			name:    "negative burst",
			mutate:  func(c *ClientConfig) { c.Burst = -1 },
			wantErr: "burst cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewClientAppliesDefaults(t *testing.T) {
	t.Run("fills in every unset field", func(t *testing.T) {
		client, err := NewClient(&ClientConfig{APIKey: "test-api-key"})
		require.NoError(t, err)

		config := client.GetConfig()
		assert.Equal(t, DefaultBaseURL, config.BaseURL)
		assert.Equal(t, DefaultAPIVersion, config.APIVersion)
		assert.Equal(t, 60*time.Second, config.Timeout)
		assert.Equal(t, "BillEvents-Anthropic-Client/1.0.0", config.UserAgent)
		assert.InDelta(t, DefaultRateLimit.RequestsPerSecond, config.RequestsPerSecond, 0.001)
		assert.Equal(t, DefaultRateLimit.Burst, config.Burst)
	})

	t.Run("trims the API key", func(t *testing.T) {
		client, err := NewClient(&ClientConfig{APIKey: "  test-api-key  "})
		require.NoError(t, err)
		assert.Equal(t, "test-api-key", client.GetConfig().APIKey)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		client, err := NewClient(&ClientConfig{
			APIKey:     "test-api-key",
			BaseURL:    "https://example.test",
			APIVersion: "2024-01-01",
			Timeout:    15 * time.Second,
		})
		require.NoError(t, err)

		config := client.GetConfig()
		assert.Equal(t, "https://example.test", config.BaseURL)
		assert.Equal(t, "2024-01-01", config.APIVersion)
		assert.Equal(t, 15*time.Second, config.Timeout)
	})

	t.Run("nil config is rejected", func(t *testing.T) {
		client, err := NewClient(nil)
		require.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "config cannot be nil")
	})

	t.Run("http client timeout follows config", func(t *testing.T) {
		client, err := NewClient(&ClientConfig{APIKey: "test-api-key", Timeout: 15 * time.Second})
		require.NoError(t, err)
		assert.Equal(t, 15*time.Second, client.GetHTTPClient().Timeout)
	})
}

func TestNewClientFromEnv(t *testing.T) {
	t.Run("reads API key from environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-api-key")

		client, err := NewClientFromEnv(nil)
		require.NoError(t, err)
		assert.Equal(t, "env-api-key", client.GetConfig().APIKey)
	})

	t.Run("config key takes precedence over environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-api-key")

		client, err := NewClientFromEnv(&ClientConfig{APIKey: "config-api-key"})
		require.NoError(t, err)
		assert.Equal(t, "config-api-key", client.GetConfig().APIKey)
	})

	t.Run("missing key everywhere fails", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		client, err := NewClientFromEnv(nil)
		require.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "API key not found")
	})
}

func TestCreateRequest(t *testing.T) {
	newClient := func(t *testing.T) *Client {
		t.Helper()
		client, err := NewClient(&ClientConfig{APIKey: "test-api-key"})
		require.NoError(t, err)
		return client
	}

	t.Run("sets authentication and standard headers", func(t *testing.T) {
		client := newClient(t)

		req, err := client.CreateRequest(context.Background(), http.MethodPost, "v1/messages/batches", nil)
		require.NoError(t, err)

		assert.Equal(t, "test-api-key", req.Header.Get("x-api-key"))
		assert.Equal(t, DefaultAPIVersion, req.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", req.Header.Get("Accept"))
		assert.Equal(t, "BillEvents-Anthropic-Client/1.0.0", req.Header.Get("User-Agent"))
		assert.NotEmpty(t, req.Header.Get("X-Request-ID"))
	})

	t.Run("joins base URL and endpoint cleanly", func(t *testing.T) {
		client, err := NewClient(&ClientConfig{APIKey: "test-api-key", BaseURL: "https://example.test/"})
		require.NoError(t, err)

		req, err := client.CreateRequest(context.Background(), http.MethodGet, "/v1/messages/batches/msgbatch_abc", nil)
		require.NoError(t, err)
		assert.Equal(t, "https://example.test/v1/messages/batches/msgbatch_abc", req.URL.String())
	})

	t.Run("generates a fresh request ID per call", func(t *testing.T) {
		client := newClient(t)

		first, err := client.CreateRequest(context.Background(), http.MethodGet, "v1/messages/batches", nil)
		require.NoError(t, err)
		second, err := client.CreateRequest(context.Background(), http.MethodGet, "v1/messages/batches", nil)
		require.NoError(t, err)

		assert.NotEqual(t, first.Header.Get("X-Request-ID"), second.Header.Get("X-Request-ID"))
	})

	t.Run("rejects empty method", func(t *testing.T) {
		client := newClient(t)

		_, err := client.CreateRequest(context.Background(), "", "v1/messages/batches", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP method cannot be empty")
	})

	t.Run("rejects empty endpoint", func(t *testing.T) {
		client := newClient(t)

		_, err := client.CreateRequest(context.Background(), http.MethodGet, "", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint cannot be empty")
	})
}
