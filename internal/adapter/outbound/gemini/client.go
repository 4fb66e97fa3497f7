package gemini

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
	// DefaultModel is the default Gemini embedding model.
	DefaultModel = "gemini-embedding-001"

	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultDimensions is the embedding vector width persisted downstream.
	DefaultDimensions = 768
)

// ClientConfig holds the configuration for the Gemini API client.
type ClientConfig struct {
	APIKey            string        `json:"api_key"`
	BaseURL           string        `json:"base_url"`
	Model             string        `json:"model"`
	Dimensions        int           `json:"dimensions"`
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
	if err := c.validateModel(); err != nil {
		return err
	}
	if err := c.validateTimeout(); err != nil {
		return err
	}
	return c.validateDimensions()
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

func (c *ClientConfig) validateModel() error {
	if c.Model != "" && c.Model != DefaultModel {
		return errors.New("unsupported model")
	}
	return nil
}

func (c *ClientConfig) validateTimeout() error {
	if c.Timeout < 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func (c *ClientConfig) validateDimensions() error {
	if c.Dimensions < 0 {
		return errors.New("dimensions cannot be negative")
	}
	if c.Dimensions > 0 && c.Dimensions != DefaultDimensions {
		return errors.New("unsupported dimensions for model " + DefaultModel)
	}
	return nil
}

// Client represents the Gemini embedding API client.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *RateLimiter
}

// NewClient creates a new Gemini API client with the provided configuration.
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

// NewClientFromEnv creates a client with environment variable support.
// GEMINI_API_KEY is checked first, then GOOGLE_API_KEY.
func NewClientFromEnv(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = &ClientConfig{}
	}

	// Clone the config to avoid modifying the original
	envConfig := *config

	if envConfig.APIKey == "" {
		if geminiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); geminiKey != "" {
			envConfig.APIKey = geminiKey
		} else if googleKey := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); googleKey != "" {
			envConfig.APIKey = googleKey
		}
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
		Model:             config.Model,
		Dimensions:        config.Dimensions,
		Timeout:           config.Timeout,
		UserAgent:         config.UserAgent,
		RequestsPerSecond: config.RequestsPerSecond,
		Burst:             config.Burst,
	}

	if finalConfig.BaseURL == "" {
		finalConfig.BaseURL = DefaultBaseURL
	}
	if finalConfig.Model == "" {
		finalConfig.Model = DefaultModel
	}
	if finalConfig.Dimensions == 0 {
		finalConfig.Dimensions = DefaultDimensions
	}
	if finalConfig.Timeout == 0 {
		finalConfig.Timeout = 30 * time.Second
	}
	if finalConfig.UserAgent == "" {
		finalConfig.UserAgent = "BillEvents-Gemini-Client/1.0.0"
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

	// Set authentication header
	req.Header.Set("X-Goog-Api-Key", c.config.APIKey)

	// Set standard headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	// Add request tracing headers
	req.Header.Set("X-Request-ID", "req-"+uuid.New().String())

	// Set Connection header for better connection management
	req.Header.Set("Connection", "keep-alive")

	return req, nil
}
