package gemini

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
			APIKey:     "test-api-key",
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
			Model:      DefaultModel,
			Dimensions: 768,
			Timeout:    30 * time.Second,
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
			mutate:  func(c *ClientConfig) { c.APIKey = "\t " },
			wantErr: "API key cannot be empty or whitespace",
		},
		{
			name:    "unsupported model",
			mutate:  func(c *ClientConfig) { c.Model = "text-embedding-004" },
			wantErr: "unsupported model",
		},
		{
			name:    "base URL without scheme",
			mutate:  func(c *ClientConfig) { c.BaseURL = "generativelanguage.googleapis.com" },
			wantErr: "invalid base URL",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *ClientConfig) { c.Timeout = -time.Second },
			wantErr: "timeout must be positive",
		},
		{
			name:    "negative dimensions",
			mutate:  func(c *ClientConfig) { c.Dimensions = -1 },
			wantErr: "dimensions cannot be negative",
		},
		{
			name:    "unsupported dimensions",
			mutate:  func(c *ClientConfig) { c.Dimensions = 1536 },
			wantErr: "unsupported dimensions",
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
		assert.Equal(t, DefaultModel, config.Model)
		assert.Equal(t, DefaultDimensions, config.Dimensions)
		assert.Equal(t, 30*time.Second, config.Timeout)
		assert.Equal(t, "BillEvents-Gemini-Client/1.0.0", config.UserAgent)
	})

	t.Run("nil config is rejected", func(t *testing.T) {
		client, err := NewClient(nil)
		require.Error(t, err)
		assert.Nil(t, client)
	})
}

func TestNewClientFromEnv(t *testing.T) {
	t.Run("prefers GEMINI_API_KEY over GOOGLE_API_KEY", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gemini-key")
		t.Setenv("GOOGLE_API_KEY", "google-key")

		client, err := NewClientFromEnv(nil)
		require.NoError(t, err)
		assert.Equal(t, "gemini-key", client.GetConfig().APIKey)
	})

	t.Run("falls back to GOOGLE_API_KEY", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "google-key")

		client, err := NewClientFromEnv(nil)
		require.NoError(t, err)
		assert.Equal(t, "google-key", client.GetConfig().APIKey)
	})

	t.Run("missing key everywhere fails", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "")

		client, err := NewClientFromEnv(nil)
		require.Error(t, err)
		assert.Nil(t, client)
	})
}

func TestCreateRequestHeaders(t *testing.T) {
	client, err := NewClient(&ClientConfig{APIKey: "test-api-key"})
	require.NoError(t, err)

	req, err := client.CreateRequest(context.Background(), http.MethodPost, "models/gemini-embedding-001:embedContent", nil)
	require.NoError(t, err)

	assert.Equal(t, "test-api-key", req.Header.Get("X-Goog-Api-Key"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "BillEvents-Gemini-Client/1.0.0", req.Header.Get("User-Agent"))
	assert.NotEmpty(t, req.Header.Get("X-Request-ID"))
	assert.Equal(
		t,
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-embedding-001:embedContent",
		req.URL.String(),
	)
}
