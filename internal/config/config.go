// Package config handles application configuration loading from a YAML file
// with environment variable overrides.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "exercisesapp/internal/utils"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Model gateway configuration
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`

	// Heuristic fallback grader configuration
	Grader GraderConfig `json:"grader" yaml:"grader"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port          string   `json:"port" yaml:"port"`
	SessionSecret string   `json:"session_secret" yaml:"session_secret"`
	Debug         bool     `json:"debug" yaml:"debug"`
	LogLevel      string   `json:"log_level" yaml:"log_level"`
	AppBaseURL    string   `json:"app_base_url" yaml:"app_base_url"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// GatewayConfig represents the external chat-completion gateway configuration.
// Endpoint and APIKey are required before any call is made; the rest have
// working defaults applied by ApplyDefaults.
type GatewayConfig struct {
	Endpoint         string  `json:"endpoint" yaml:"endpoint"`
	APIKey           string  `json:"api_key" yaml:"api_key"`
	DefaultModel     string  `json:"default_model" yaml:"default_model"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
	TopP             float64 `json:"top_p" yaml:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty"`
	RetryLimit       int     `json:"retry_limit" yaml:"retry_limit"`
	// RequestTimeout bounds a single attempt, not the whole retry loop
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// ApplyDefaults fills zero-valued gateway fields with working defaults
func (g *GatewayConfig) ApplyDefaults() {
	if g.DefaultModel == "" {
		g.DefaultModel = DefaultGatewayModel
	}
	if g.Temperature == 0 {
		g.Temperature = DefaultGatewayTemperature
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = DefaultGatewayMaxTokens
	}
	if g.TopP == 0 {
		g.TopP = DefaultGatewayTopP
	}
	if g.RetryLimit == 0 {
		g.RetryLimit = DefaultGatewayRetryLimit
	}
	if g.RequestTimeout == 0 {
		g.RequestTimeout = DefaultGatewayRequestTimeout
	}
}

// GraderConfig tunes the heuristic keyword grader used when the model
// gateway is unavailable. ThresholdDivisor and MinCandidates are deliberate
// knobs rather than hard constants; the defaults reproduce the observed
// product behavior (correct iff hits >= ceil(candidates/3), pad to 5 candidates).
type GraderConfig struct {
	MinKeywordLength int `json:"min_keyword_length" yaml:"min_keyword_length"`
	MinCandidates    int `json:"min_candidates" yaml:"min_candidates"`
	ThresholdDivisor int `json:"threshold_divisor" yaml:"threshold_divisor"`
}

// ApplyDefaults fills zero-valued grader fields with the default thresholds
func (g *GraderConfig) ApplyDefaults() {
	if g.MinKeywordLength == 0 {
		g.MinKeywordLength = DefaultGraderMinKeywordLength
	}
	if g.MinCandidates == 0 {
		g.MinCandidates = DefaultGraderMinCandidates
	}
	if g.ThresholdDivisor == 0 {
		g.ThresholdDivisor = DefaultGraderThresholdDivisor
	}
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "http://localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "exercises-backend"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`   // Default: true
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`   // Default: true
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"`     // Default: 1.0 (100%)
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.Gateway.ApplyDefaults()
	config.Grader.ApplyDefaults()

	return config, nil
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		yamlTag = strings.Split(yamlTag, ",")[0]

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				// Handle string slices (like CORS_ORIGINS)
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), fieldPrefix)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file with potential local overrides
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv("EXERCISES_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	return loadConfigFromFile("config.yaml")
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
