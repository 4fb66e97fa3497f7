package config

import (
	"billevents/internal/domain/valueobject"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default extraction configuration constants.
const (
	DefaultTierThresholdChars = 10000
	DefaultSmallModel         = "claude-3-5-haiku-latest"
	DefaultLargeModel         = "claude-sonnet-4-5"
	DefaultSmallMaxTokens     = 8192
	DefaultLargeMaxTokens     = 12000
	DefaultTemperature        = 0.7
	DefaultPollIntervalMin    = 2
	DefaultMaxRetries         = 3
	DefaultEmbeddingDims      = 768
)

// ExtractionConfig holds the tuning knobs of the extraction lifecycle:
// model tiers, token budgets, poll cadence, and the retry ceiling. It can
// be overridden as a whole from a standalone YAML file for prompt and
// model experiments without touching the service configuration.
type ExtractionConfig struct {
	TierThresholdChars int           `mapstructure:"tier_threshold_chars" yaml:"tier_threshold_chars"`
	SmallModel         string        `mapstructure:"small_model"          yaml:"small_model"`
	LargeModel         string        `mapstructure:"large_model"          yaml:"large_model"`
	SmallMaxTokens     int           `mapstructure:"small_max_tokens"     yaml:"small_max_tokens"`
	LargeMaxTokens     int           `mapstructure:"large_max_tokens"     yaml:"large_max_tokens"`
	Temperature        float64       `mapstructure:"temperature"          yaml:"temperature"`
	SystemPrompt       string        `mapstructure:"system_prompt"        yaml:"system_prompt"`
	PollInterval       time.Duration `mapstructure:"poll_interval"        yaml:"poll_interval"`
	MaxRetries         int           `mapstructure:"max_retries"          yaml:"max_retries"`
}

// NewExtractionConfig creates an ExtractionConfig from viper with defaults
// applied.
func NewExtractionConfig(v *viper.Viper) (*ExtractionConfig, error) {
	config := defaultExtractionConfig()

	if v.IsSet("extraction") {
		if err := v.UnmarshalKey("extraction", config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extraction config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extraction configuration: %w", err)
	}

	return config, nil
}

// ParseExtractionConfigFromYAML parses extraction configuration from a YAML
// document with bare top-level fields. Decoding goes through viper so
// duration strings like "2m" work the same as in the main config file.
func ParseExtractionConfigFromYAML(yamlContent string) (*ExtractionConfig, error) {
	var configData map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &configData); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	v := viper.New()
	v.Set("extraction", configData)

	return NewExtractionConfig(v)
}

// LoadExtractionConfigFromFile reads a standalone extraction YAML file.
func LoadExtractionConfigFromFile(path string) (*ExtractionConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction config file: %w", err)
	}
	return ParseExtractionConfigFromYAML(string(content))
}

func defaultExtractionConfig() *ExtractionConfig {
	return &ExtractionConfig{
		TierThresholdChars: DefaultTierThresholdChars,
		SmallModel:         DefaultSmallModel,
		LargeModel:         DefaultLargeModel,
		SmallMaxTokens:     DefaultSmallMaxTokens,
		LargeMaxTokens:     DefaultLargeMaxTokens,
		Temperature:        DefaultTemperature,
		PollInterval:       DefaultPollIntervalMin * time.Minute,
		MaxRetries:         DefaultMaxRetries,
	}
}

// applyDefaults fills unset fields so a partially specified config section
// still validates.
func (c *ExtractionConfig) applyDefaults() {
	if c.TierThresholdChars == 0 {
		c.TierThresholdChars = DefaultTierThresholdChars
	}
	if c.SmallModel == "" {
		c.SmallModel = DefaultSmallModel
	}
	if c.LargeModel == "" {
		c.LargeModel = DefaultLargeModel
	}
	if c.SmallMaxTokens == 0 {
		c.SmallMaxTokens = DefaultSmallMaxTokens
	}
	if c.LargeMaxTokens == 0 {
		c.LargeMaxTokens = DefaultLargeMaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollIntervalMin * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// Validate checks the extraction configuration.
func (c *ExtractionConfig) Validate() error {
	if c.TierThresholdChars <= 0 {
		return errors.New("extraction.tier_threshold_chars must be positive")
	}
	if c.SmallModel == "" || c.LargeModel == "" {
		return errors.New("extraction model names cannot be empty")
	}
	if c.SmallMaxTokens <= 0 || c.LargeMaxTokens <= 0 {
		return errors.New("extraction token budgets must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return errors.New("extraction.temperature must be between 0 and 1")
	}
	if c.PollInterval < time.Second {
		return errors.New("extraction.poll_interval must be at least one second")
	}
	if c.MaxRetries < 0 {
		return errors.New("extraction.max_retries cannot be negative")
	}
	return nil
}

// TierFor selects the model tier for a bill body length.
func (c *ExtractionConfig) TierFor(bodyLength int) valueobject.ModelTier {
	return valueobject.TierForBodyLength(bodyLength, c.TierThresholdChars)
}

// ModelForTier returns the model name and token budget for a tier.
func (c *ExtractionConfig) ModelForTier(tier valueobject.ModelTier) (string, int) {
	if tier == valueobject.TierSmall {
		return c.SmallModel, c.SmallMaxTokens
	}
	return c.LargeModel, c.LargeMaxTokens
}
