package helper

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Configuration is the runtime configuration of a pano instance.
type Configuration struct {
	LogLevel   string                  `yaml:"log_level" validate:"oneof=debug info warn error"`
	Transform  TransformConfiguration  `yaml:"transform"`
	LLM        LLMConfiguration        `yaml:"llm"`
	Extraction ExtractionConfiguration `yaml:"extraction"`
	Geocoder   GeocoderConfiguration   `yaml:"geocoder"`
	Database   *DatabaseConfiguration  `yaml:"database,omitempty" validate:"omitempty"`
	Embedding  EmbeddingConfiguration  `yaml:"embedding"`
}

type TransformConfiguration struct {
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	Concurrency int           `yaml:"concurrency" validate:"min=1,max=64"`
	UserAgent   string        `yaml:"user_agent" validate:"required"`

	// RequestsPerSecond limits outbound HTTP calls of network transforms.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
}

type LLMConfiguration struct {
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model" validate:"required"`
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"min=256"`
}

// ExtractionConfiguration selects the local models used when no LLM key
// is set. RebelModel is the path of an exported REBEL model.
type ExtractionConfiguration struct {
	LocalNER   bool   `yaml:"local_ner"`
	RebelModel string `yaml:"rebel_model"`
}

// Local reports whether any local model is configured.
func (c ExtractionConfiguration) Local() bool {
	return c.LocalNER || c.RebelModel != ""
}

type GeocoderConfiguration struct {
	Enabled           bool    `yaml:"enabled"`
	URL               string  `yaml:"url" validate:"omitempty,url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
}

type EmbeddingConfiguration struct {
	Model     string `yaml:"model" validate:"required"`
	Dimension int    `yaml:"dimension" validate:"min=1"`
}

// DefaultConfiguration returns the configuration used when nothing is set.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		LogLevel: "info",
		Transform: TransformConfiguration{
			Timeout:           30 * time.Second,
			Concurrency:       4,
			UserAgent:         "pano/1.0",
			RequestsPerSecond: 2,
		},
		LLM: LLMConfiguration{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   8000,
		},
		Geocoder: GeocoderConfiguration{
			URL:               "https://nominatim.openstreetmap.org",
			RequestsPerSecond: 1,
		},
		Embedding: EmbeddingConfiguration{
			Model:     "sentence-transformers/all-MiniLM-L6-v2",
			Dimension: 384,
		},
	}
}

// NewConfiguration loads a .env file if present, then the optional YAML file
// at path, then PANO_* environment overrides, and validates the result.
func NewConfiguration(path string) (*Configuration, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewError("load .env", err)
	}

	config := DefaultConfiguration()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewError("read config file", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, NewError("parse config file", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, NewError("apply environment", err)
	}

	if err := validate.Struct(config); err != nil {
		return nil, NewError("validate configuration", err)
	}

	return config, nil
}

func (c *Configuration) applyEnv() error {
	setString(&c.LogLevel, "PANO_LOG_LEVEL")
	setString(&c.Transform.UserAgent, "PANO_USER_AGENT")
	setString(&c.LLM.BaseURL, "PANO_LLM_BASE_URL")
	setString(&c.LLM.APIKey, "PANO_LLM_API_KEY")
	setString(&c.LLM.Model, "PANO_LLM_MODEL")
	setString(&c.Extraction.RebelModel, "PANO_REBEL_MODEL")
	setString(&c.Geocoder.URL, "PANO_GEOCODER_URL")
	if v, ok := os.LookupEnv("PANO_LOCAL_NER"); ok {
		c.Extraction.LocalNER = strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("PANO_GEOCODER_ENABLED"); ok {
		c.Geocoder.Enabled = strings.EqualFold(v, "true")
	}

	if v, ok := os.LookupEnv("PANO_TRANSFORM_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return NewError("PANO_TRANSFORM_TIMEOUT", err)
		}
		c.Transform.Timeout = d
	}
	if v, ok := os.LookupEnv("PANO_TRANSFORM_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewError("PANO_TRANSFORM_CONCURRENCY", err)
		}
		c.Transform.Concurrency = n
	}

	if v, ok := os.LookupEnv("PANO_DATABASE"); ok && strings.EqualFold(v, "true") {
		dbConfig, err := NewDatabaseConfiguration()
		if err != nil {
			return err
		}
		c.Database = dbConfig
	}

	return nil
}

// Level maps LogLevel onto a slog level.
func (c *Configuration) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*target = v
	}
}
