// Package config loads runtime settings from defaults, an optional YAML file
// and PHARMATLAS_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PHARMATLAS_"

// NCBI E-utilities allow 3 requests/second without a key and 10 with one.
const (
	ncbiAnonymousRate = 3
	ncbiKeyedRate     = 10
)

type Config struct {
	NCBI           NCBIConfig    `yaml:"ncbi"`
	KnowledgeGraph KGConfig      `yaml:"knowledge_graph"`
	Engine         EngineConfig  `yaml:"engine"`
	Breaker        BreakerConfig `yaml:"breaker"`
	Journal        JournalConfig `yaml:"journal"`
	Log            LogConfig     `yaml:"log"`
	Metrics        MetricsConfig `yaml:"metrics"`
}

type NCBIConfig struct {
	URL               string        `yaml:"url" validate:"required,url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
}

type KGConfig struct {
	URL               string        `yaml:"url" validate:"required,url"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
}

type EngineConfig struct {
	DisplayCap     int `yaml:"display_cap" validate:"gte=1"`
	TopK           int `yaml:"top_k" validate:"gte=1"`
	MaxConcurrency int `yaml:"max_concurrency" validate:"gte=1"`
	DefaultLimit   int `yaml:"default_limit" validate:"gte=1"`
}

// BreakerConfig applies to both upstream services. A zero FailureThreshold
// disables circuit breaking.
type BreakerConfig struct {
	FailureThreshold float64       `yaml:"failure_threshold" validate:"gte=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests"`
	MaxRequests      uint32        `yaml:"max_requests" validate:"gte=1"`
	Interval         time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
}

type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
	MaxRows int  `yaml:"max_rows" validate:"gte=1"`
}

type LogConfig struct {
	Mode  string `yaml:"mode" validate:"oneof=development production dev prod"`
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the endpoint.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		NCBI: NCBIConfig{
			URL:               "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi",
			Timeout:           10 * time.Second,
			RequestsPerSecond: ncbiAnonymousRate,
			Burst:             ncbiAnonymousRate,
		},
		KnowledgeGraph: KGConfig{
			URL:               "https://api.bte.ncats.io/v1/query",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Engine: EngineConfig{
			DisplayCap:     15,
			TopK:           10,
			MaxConcurrency: 4,
			DefaultLimit:   5,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 0.8,
			MinRequests:      5,
			MaxRequests:      1,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
		},
		Journal: JournalConfig{
			Enabled: true,
			MaxRows: 1000,
		},
		Log: LogConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.applyAPIKeyRate()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyAPIKeyRate raises the NCBI limiter to the keyed allowance when a key is
// set and the rate was left at the anonymous default.
func (c *Config) applyAPIKeyRate() {
	if c.NCBI.APIKey == "" || c.NCBI.RequestsPerSecond != ncbiAnonymousRate {
		return
	}
	c.NCBI.RequestsPerSecond = ncbiKeyedRate
	if c.NCBI.Burst == ncbiAnonymousRate {
		c.NCBI.Burst = ncbiKeyedRate
	}
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"NCBI_URL":     &c.NCBI.URL,
		"NCBI_API_KEY": &c.NCBI.APIKey,
		"KG_URL":       &c.KnowledgeGraph.URL,
		"LOG_MODE":     &c.Log.Mode,
		"LOG_LEVEL":    &c.Log.Level,
		"METRICS_ADDR": &c.Metrics.Addr,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	durations := map[string]*time.Duration{
		"NCBI_TIMEOUT": &c.NCBI.Timeout,
		"KG_TIMEOUT":   &c.KnowledgeGraph.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"MAX_CONCURRENCY": &c.Engine.MaxConcurrency,
		"DEFAULT_LIMIT":   &c.Engine.DefaultLimit,
	}
	for key, dst := range ints {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup(envPrefix + "JOURNAL_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %sJOURNAL_ENABLED: %w", envPrefix, err)
		}
		c.Journal.Enabled = b
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
