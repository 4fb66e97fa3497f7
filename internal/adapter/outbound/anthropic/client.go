package anthropic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the API version header value sent with every request.
	DefaultAPIVersion = "2023-06-01"

	// batchesEndpoint is the path of the message batches collection.
	batchesEndpoint = "v1/messages/batches"
)

// ClientConfig holds the configuration for the Anthropic batch API client.
type ClientConfig struct {
	APIKey            string        `json:"api_key"`
	BaseURL           string        `json:"base_url"`
	APIVersion        string        `json:"api_version"`
	Timeout           time.Duration `json:"timeout"`
	UserAgent         string        `json:"user_agent"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	Burst             int           `json:"burst"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if err := c.validateAPIKey(); err != nil {
		return err
	}
	if err := c.validateBaseURL(); err != nil {
		return err
	}
	if err := c.validateTimeout(); err != nil {
		return err
	}
	return c.validateRateLimit()
}

func (c *ClientConfig) validateAPIKey() error {
	if c.APIKey == "" {
		return errors.New("API key cannot be empty")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("API key cannot be empty or whitespace")
	}
	return nil
}

func (c *ClientConfig) validateBaseURL() error {
	if c.BaseURL == "" {
		return nil
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return errors.New("invalid base URL")
	}
	if !strings.HasPrefix(c.BaseURL, "http") {
		return errors.New("invalid base URL")
	}
	return nil
}

func (c *ClientConfig) validateTimeout() error {
	if c.Timeout < 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func (c *ClientConfig) validateRateLimit() error {
	if c.RequestsPerSecond < 0 {
		return errors.New("requests per second cannot be negative")
	}
	if c.Burst < 0 {
		return errors.New("burst cannot be negative")
	}
	return nil
}

// Client talks to the Anthropic Message Batches API.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *RateLimiter
}

// NewClient creates a new Anthropic batch API client with the provided configuration.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	finalConfig := applyConfigDefaults(config)

	return &Client{
		config:     finalConfig,
		httpClient: createHTTPClient(finalConfig.Timeout),
		limiter: NewRateLimiter(RateLimitConfig{
			RequestsPerSecond: finalConfig.RequestsPerSecond,
			Burst:             finalConfig.Burst,
		}),
	}, nil
}

// NewClientFromEnv creates a client, reading the API key from the
// ANTHROPIC_API_KEY environment variable when the config does not carry one.
func NewClientFromEnv(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = &ClientConfig{}
	}

	// Clone the config to avoid modifying the original
	envConfig := *config

	if envConfig.APIKey == "" {
		envConfig.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}

	if strings.TrimSpace(envConfig.APIKey) == "" {
		return nil, errors.New("API key not found in config or environment variables")
	}

	return NewClient(&envConfig)
}

// applyConfigDefaults creates a new config with defaults applied.
func applyConfigDefaults(config *ClientConfig) *ClientConfig {
	finalConfig := &ClientConfig{
		APIKey:            strings.TrimSpace(config.APIKey),
		BaseURL:           config.BaseURL,
		APIVersion:        config.APIVersion,
		Timeout:           config.Timeout,
		UserAgent:         config.UserAgent,
		RequestsPerSecond: config.RequestsPerSecond,
		Burst:             config.Burst,
	}

	if finalConfig.BaseURL == "" {
		finalConfig.BaseURL = DefaultBaseURL
	}
	if finalConfig.APIVersion == "" {
		finalConfig.APIVersion = DefaultAPIVersion
	}
	if finalConfig.Timeout == 0 {
		// Batch creation payloads carry full bill texts and can be large.
		finalConfig.Timeout = 60 * time.Second
	}
	if finalConfig.UserAgent == "" {
		finalConfig.UserAgent = "BillEvents-Anthropic-Client/1.0.0"
	}
	if finalConfig.RequestsPerSecond == 0 {
		finalConfig.RequestsPerSecond = DefaultRateLimit.RequestsPerSecond
	}
	if finalConfig.Burst == 0 {
		finalConfig.Burst = DefaultRateLimit.Burst
	}

	return finalConfig
}

// createHTTPClient creates an HTTP client with enhanced transport configuration and timeouts.
func createHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		// Connection pool settings
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		// Timeout configurations
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		// Performance optimizations
		DisableCompression: false,
		ForceAttemptHTTP2:  true,
		DisableKeepAlives:  false,

		// Connection reuse
		MaxConnsPerHost: 50,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		// Don't follow redirects for API calls
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// GetConfig returns a copy of the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	configCopy := *c.config
	return &configCopy
}

// GetHTTPClient returns the HTTP client used for API calls.
func (c *Client) GetHTTPClient() *http.Client {
	return c.httpClient
}

// CreateRequest creates an HTTP request with proper headers, authentication, and timeout handling.
func (c *Client) CreateRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	if method == "" {
		return nil, errors.New("HTTP method cannot be empty")
	}
	if endpoint == "" {
		return nil, errors.New("endpoint cannot be empty")
	}

	// Construct full URL with proper path joining
	baseURL := strings.TrimSuffix(c.config.BaseURL, "/")
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")
	fullURL := baseURL + "/" + cleanEndpoint

	if _, err := url.Parse(fullURL); err != nil {
		return nil, fmt.Errorf("invalid URL constructed: %s, error: %w", fullURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// Set authentication headers
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", c.config.APIVersion)

	// Set standard headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	// Add request tracing headers
	req.Header.Set("X-Request-ID", generateRequestID())

	// Set Connection header for better connection management
	req.Header.Set("Connection", "keep-alive")

	return req, nil
}

// generateRequestID generates a unique identifier for request tracing.
func generateRequestID() string {
	return "req-" + uuid.New().String()
}
