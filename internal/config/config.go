// Package config loads the service configuration from the environment, an
// optional JSON overlay file, and validates the result.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults.
const (
	DefaultInputDir          = "data/file_processing/raw"
	DefaultOutputDir         = "data/file_processing/processed"
	DefaultMaxContentLength  = int64(3 * 1024 * 1024 * 1024)
	DefaultProcessingTimeout = 300
	DefaultLogLevel          = "INFO"
	DefaultPort              = 5001
	DefaultWorkerCount       = 4
	DefaultQueueSize         = 64
	DefaultExtractor         = "native"
	DefaultPdftotextPath     = "pdftotext"
	DefaultPdfinfoPath       = "pdfinfo"
)

// Config is the service configuration.
type Config struct {
	InputDir          string `json:"input_dir,omitempty" validate:"required"`
	OutputDir         string `json:"output_dir,omitempty" validate:"required"`
	MaxContentLength  int64  `json:"max_content_length,omitempty" validate:"gt=0"`
	ProcessingTimeout int    `json:"processing_timeout,omitempty" validate:"gt=0"` // seconds
	LogDirectory      string `json:"log_directory,omitempty"`
	LogLevel          string `json:"log_level,omitempty" validate:"oneof=DEBUG INFO WARN WARNING ERROR CRITICAL"`

	Port        int    `json:"port,omitempty" validate:"gt=0,lte=65535"`
	WorkerCount int    `json:"worker_count,omitempty" validate:"gte=0,lte=1024"` // 0 = one goroutine per job
	QueueSize   int    `json:"queue_size,omitempty" validate:"gt=0"`
	Extractor   string `json:"extractor,omitempty" validate:"oneof=native pdftotext"`
	Pdftotext   string `json:"pdftotext_path,omitempty" validate:"required_if=Extractor pdftotext"`
	Pdfinfo     string `json:"pdfinfo_path,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		InputDir:          DefaultInputDir,
		OutputDir:         DefaultOutputDir,
		MaxContentLength:  DefaultMaxContentLength,
		ProcessingTimeout: DefaultProcessingTimeout,
		LogLevel:          DefaultLogLevel,
		Port:              DefaultPort,
		WorkerCount:       DefaultWorkerCount,
		QueueSize:         DefaultQueueSize,
		Extractor:         DefaultExtractor,
		Pdftotext:         DefaultPdftotextPath,
		Pdfinfo:           DefaultPdfinfoPath,
	}
}

// FromEnv reads the configuration from environment variables, falling back to
// Default for unset or unparsable values.
func FromEnv() Config {
	d := Default()
	return Config{
		InputDir:          getEnvString("FILE_TO_PROCESS_FOLDER", d.InputDir),
		OutputDir:         getEnvString("PROCESSED_FILE_FOLDER", d.OutputDir),
		MaxContentLength:  getEnvInt64("MAX_CONTENT_LENGTH", d.MaxContentLength),
		ProcessingTimeout: getEnvInt("PROCESSING_TIMEOUT", d.ProcessingTimeout),
		LogDirectory:      getEnvString("LOG_DIRECTORY", ""),
		LogLevel:          strings.ToUpper(getEnvString("LOG_LEVEL", d.LogLevel)),
		Port:              getEnvInt("PORT", d.Port),
		WorkerCount:       getEnvInt("WORKER_COUNT", d.WorkerCount),
		QueueSize:         getEnvInt("QUEUE_SIZE", d.QueueSize),
		Extractor:         strings.ToLower(getEnvString("PDF_EXTRACTOR", d.Extractor)),
		Pdftotext:         getEnvString("PDFTOTEXT_PATH", d.Pdftotext),
		Pdfinfo:           getEnvString("PDFINFO_PATH", d.Pdfinfo),
	}
}

// LoadFile loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Merge returns a copy of c with every non-zero field of overlay applied on
// top. Zero values in overlay cannot be told apart from unset ones, so
// WORKER_COUNT=0 can only come from the environment.
func (c Config) Merge(overlay Config) Config {
	result := c

	if overlay.InputDir != "" {
		result.InputDir = overlay.InputDir
	}
	if overlay.OutputDir != "" {
		result.OutputDir = overlay.OutputDir
	}
	if overlay.MaxContentLength != 0 {
		result.MaxContentLength = overlay.MaxContentLength
	}
	if overlay.ProcessingTimeout != 0 {
		result.ProcessingTimeout = overlay.ProcessingTimeout
	}
	if overlay.LogDirectory != "" {
		result.LogDirectory = overlay.LogDirectory
	}
	if overlay.LogLevel != "" {
		result.LogLevel = strings.ToUpper(overlay.LogLevel)
	}
	if overlay.Port != 0 {
		result.Port = overlay.Port
	}
	if overlay.WorkerCount != 0 {
		result.WorkerCount = overlay.WorkerCount
	}
	if overlay.QueueSize != 0 {
		result.QueueSize = overlay.QueueSize
	}
	if overlay.Extractor != "" {
		result.Extractor = strings.ToLower(overlay.Extractor)
	}
	if overlay.Pdftotext != "" {
		result.Pdftotext = overlay.Pdftotext
	}
	if overlay.Pdfinfo != "" {
		result.Pdfinfo = overlay.Pdfinfo
	}

	return result
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	validate := validator.New()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config error: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("'%s' failed '%s=%s' (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("'%s' failed '%s'", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
}

// Timeout returns ProcessingTimeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Second
}

// Addr returns the listen address for Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// EnsureDirs creates the input and output directories.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.InputDir, c.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
