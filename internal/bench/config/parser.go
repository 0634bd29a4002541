package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultIterations is the measured request count when none is configured.
	DefaultIterations = 300

	// DefaultConcurrency is the worker count when none is configured.
	DefaultConcurrency = 1

	// DefaultTimeout is the per-request timeout when none is configured.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is sent when no User-Agent is configured.
	DefaultUserAgent = "volley/1.0"
)

// LoadConfig loads a campaign file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*Config, error) {
	var config Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	var rest string
	if n, _ := fmt.Sscanf(s, "%d%s", &seconds, &rest); n == 1 {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ResolveVariables replaces {{name}} placeholders from vars, then
// {{baseUrl}} from the settings. Unresolved placeholders are left as-is.
func ResolveVariables(input string, vars map[string]string, settings *Settings) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	result := input

	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}

	if settings != nil && settings.BaseURL != "" {
		result = strings.ReplaceAll(result, "{{baseUrl}}", settings.BaseURL)
		result = strings.ReplaceAll(result, "{{baseURL}}", settings.BaseURL)
	}

	return result
}

// ApplyDefaults fills unset settings, default plan values and target ids,
// then resolves variables in every target.
func ApplyDefaults(config *Config) {
	if config.Name == "" {
		config.Name = "volley"
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(DefaultTimeout)
	}
	if config.Settings.UserAgent == "" {
		config.Settings.UserAgent = DefaultUserAgent
	}

	if config.Defaults.Iterations == nil {
		config.Defaults.Iterations = intPtr(DefaultIterations)
	}
	if config.Defaults.Concurrency == nil {
		config.Defaults.Concurrency = intPtr(DefaultConcurrency)
	}
	if config.Defaults.Warmup == nil {
		config.Defaults.Warmup = intPtr(0)
	}
	if config.Defaults.WarmupRetries == nil {
		config.Defaults.WarmupRetries = intPtr(0)
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = maxConcurrency(config)
	}

	config.Statistics = config.Statistics.WithDefaults()

	for i, t := range config.Targets {
		if t == nil {
			continue
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("target-%d", i+1)
		}
		if t.Method == "" {
			t.Method = "GET"
		}
		t.Method = strings.ToUpper(t.Method)
		t.URL = ResolveVariables(t.URL, config.Variables, &config.Settings)
		t.Body = ResolveVariables(t.Body, config.Variables, &config.Settings)
		for k, v := range t.Headers {
			t.Headers[k] = ResolveVariables(v, config.Variables, &config.Settings)
		}
	}
}

// maxConcurrency is the largest worker count any target will use, so the
// shared connection pool never starves a target.
func maxConcurrency(config *Config) int {
	n := DefaultConcurrency
	if config.Defaults.Concurrency != nil && *config.Defaults.Concurrency > n {
		n = *config.Defaults.Concurrency
	}
	for _, t := range config.Targets {
		if t != nil && t.Concurrency != nil && *t.Concurrency > n {
			n = *t.Concurrency
		}
	}
	if n < 100 {
		n = 100
	}
	return n
}

func intPtr(v int) *int {
	return &v
}
