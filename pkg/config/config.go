// Package config loads the hook's settings once at process start.
//
// Settings come from defaults, an optional YAML file, a .env file and the
// process environment, in increasing order of precedence. The resulting
// *Config is passed explicitly to every component; nothing reads the
// environment after Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gardar/ocrhook/pkg/azureocr"
	"github.com/gardar/ocrhook/pkg/hookerr"
	"github.com/gardar/ocrhook/pkg/logging"
)

// Environment variable names.
const (
	EnvEndpoint       = "AZURE_FORM_RECOGNIZER_ENDPOINT"
	EnvKey            = "AZURE_FORM_RECOGNIZER_KEY"
	EnvCharCutoff     = "OCR_CHAR_CUTOFF"
	EnvLogDir         = "OCR_LOG_DIR"
	EnvMode           = "OCR_MODE"
	EnvModel          = "OCR_MODEL"
	EnvAPIVersion     = "OCR_API_VERSION"
	EnvPollInterval   = "OCR_POLL_INTERVAL"
	EnvMaxWait        = "OCR_MAX_WAIT"
	EnvMarker         = "OCR_MARKER"
	EnvLocale         = "OCR_LOCALE"
	EnvPages          = "OCR_PAGES"
	EnvEmptyThreshold = "OCR_EMPTY_THRESHOLD"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
)

// Config holds every setting of a run.
type Config struct {
	// OCR service
	Endpoint     string
	Key          string
	Mode         azureocr.Mode
	Model        string
	APIVersion   string
	Locale       string
	Pages        string
	PollInterval time.Duration
	MaxWait      time.Duration

	// Pipeline
	CharCutoff     int
	Marker         string
	EmptyThreshold int

	// Logging
	LogDir    string
	LogLevel  string
	LogFormat string
}

// yamlConfig mirrors Config for the optional config file. Durations are
// written as Go duration strings ("1s", "30s").
type yamlConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Key            string `yaml:"key"`
	Mode           string `yaml:"mode"`
	Model          string `yaml:"model"`
	APIVersion     string `yaml:"api_version"`
	Locale         string `yaml:"locale"`
	Pages          string `yaml:"pages"`
	PollInterval   string `yaml:"poll_interval"`
	MaxWait        string `yaml:"max_wait"`
	CharCutoff     *int   `yaml:"char_cutoff"`
	Marker         string `yaml:"marker"`
	EmptyThreshold *int   `yaml:"empty_threshold"`
	LogDir         string `yaml:"log_dir"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	logDefaults := logging.DefaultConfig()
	return &Config{
		Mode:           azureocr.ModeText,
		Model:          azureocr.DefaultModel,
		PollInterval:   azureocr.DefaultPollInterval,
		MaxWait:        azureocr.DefaultMaxWait,
		EmptyThreshold: 10,
		LogDir:         logDefaults.Dir,
		LogLevel:       logDefaults.Level,
		LogFormat:      logDefaults.Format,
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty), a .env file in the working directory (if present) and
// the environment. Load only reports malformed values; call Validate for the
// required settings.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()

	if err := cfg.loadEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	const op = "config.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return hookerr.Wrap(op, hookerr.ErrConfiguration, err, "read "+path)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return hookerr.Wrap(op, hookerr.ErrConfiguration, err, "parse "+path)
	}

	setString(&c.Endpoint, yc.Endpoint)
	setString(&c.Key, yc.Key)
	setString(&c.Model, yc.Model)
	setString(&c.APIVersion, yc.APIVersion)
	setString(&c.Locale, yc.Locale)
	setString(&c.Pages, yc.Pages)
	setString(&c.Marker, yc.Marker)
	setString(&c.LogDir, yc.LogDir)
	setString(&c.LogLevel, yc.LogLevel)
	setString(&c.LogFormat, yc.LogFormat)
	if yc.Mode != "" {
		c.Mode = azureocr.Mode(strings.ToLower(yc.Mode))
	}
	if yc.CharCutoff != nil {
		c.CharCutoff = *yc.CharCutoff
	}
	if yc.EmptyThreshold != nil {
		c.EmptyThreshold = *yc.EmptyThreshold
	}
	if err := setDuration(&c.PollInterval, "poll_interval", yc.PollInterval); err != nil {
		return err
	}
	return setDuration(&c.MaxWait, "max_wait", yc.MaxWait)
}

func (c *Config) loadEnv() error {
	c.Endpoint = getEnv(EnvEndpoint, c.Endpoint)
	c.Key = getEnv(EnvKey, c.Key)
	c.Model = getEnv(EnvModel, c.Model)
	c.APIVersion = getEnv(EnvAPIVersion, c.APIVersion)
	c.Locale = getEnv(EnvLocale, c.Locale)
	c.Pages = getEnv(EnvPages, c.Pages)
	c.Marker = getEnv(EnvMarker, c.Marker)
	c.LogDir = getEnv(EnvLogDir, c.LogDir)
	c.LogLevel = getEnv(EnvLogLevel, c.LogLevel)
	c.LogFormat = getEnv(EnvLogFormat, c.LogFormat)
	c.Mode = azureocr.Mode(strings.ToLower(getEnv(EnvMode, string(c.Mode))))

	var err error
	if c.CharCutoff, err = getEnvInt(EnvCharCutoff, c.CharCutoff); err != nil {
		return err
	}
	if c.EmptyThreshold, err = getEnvInt(EnvEmptyThreshold, c.EmptyThreshold); err != nil {
		return err
	}
	if err := setDuration(&c.PollInterval, EnvPollInterval, os.Getenv(EnvPollInterval)); err != nil {
		return err
	}
	return setDuration(&c.MaxWait, EnvMaxWait, os.Getenv(EnvMaxWait))
}

// Validate checks required and range-limited settings. Missing OCR
// credentials are reported before any network call is attempted.
func (c *Config) Validate() error {
	const op = "config.Validate"

	if c.Endpoint == "" || c.Key == "" {
		return hookerr.New(op, hookerr.ErrConfiguration,
			fmt.Sprintf("%s and %s must be set", EnvEndpoint, EnvKey))
	}
	if c.CharCutoff < 0 {
		return hookerr.New(op, hookerr.ErrConfiguration,
			fmt.Sprintf("%s must be non-negative, got %d", EnvCharCutoff, c.CharCutoff))
	}
	if c.EmptyThreshold < 1 {
		return hookerr.New(op, hookerr.ErrConfiguration,
			fmt.Sprintf("%s must be at least 1, got %d", EnvEmptyThreshold, c.EmptyThreshold))
	}
	switch c.Mode {
	case azureocr.ModeText, azureocr.ModePDF:
	default:
		return hookerr.New(op, hookerr.ErrConfiguration,
			fmt.Sprintf("%s must be %q or %q, got %q", EnvMode, azureocr.ModeText, azureocr.ModePDF, c.Mode))
	}
	if c.PollInterval <= 0 || c.MaxWait <= 0 {
		return hookerr.New(op, hookerr.ErrConfiguration, "poll interval and max wait must be positive")
	}
	return nil
}

// OCRConfig returns the OCR client configuration.
func (c *Config) OCRConfig() azureocr.Config {
	return azureocr.Config{
		Endpoint:     c.Endpoint,
		Key:          c.Key,
		Mode:         c.Mode,
		Model:        c.Model,
		APIVersion:   c.APIVersion,
		Locale:       c.Locale,
		Pages:        c.Pages,
		PollInterval: c.PollInterval,
		MaxWait:      c.MaxWait,
	}
}

// LoggingConfig returns a logger configuration from the main config.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Dir = c.LogDir
	lc.Level = c.LogLevel
	lc.Format = c.LogFormat
	return lc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue, hookerr.Wrap("config.Load", hookerr.ErrConfiguration, err, key)
	}
	return n, nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// setDuration parses a Go duration ("1500ms") or a bare number of seconds.
func setDuration(dst *time.Duration, name, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return hookerr.Wrap("config.Load", hookerr.ErrConfiguration, err, name)
	}
	*dst = d
	return nil
}
