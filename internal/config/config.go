package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"radiology-ai/internal/agent"
	"radiology-ai/internal/orchestrator"
	"radiology-ai/internal/sentinel"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Inference InferenceConfig `yaml:"inference"`
	Database  DatabaseConfig  `yaml:"database"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Report    ReportConfig    `yaml:"report"`
}

type PipelineConfig struct {
	Parallel             bool          `yaml:"parallel"`
	PassTimeout          time.Duration `yaml:"pass_timeout"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	EnableLearning       bool          `yaml:"enable_learning"`
	FanOut               []string      `yaml:"fan_out"`
	RadiologistThreshold float64       `yaml:"radiologist_threshold"`
}

// InferenceConfig points at the model inference service. An empty URL runs
// the passes on rules alone.
type InferenceConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MigrationsPath string `yaml:"migrations_path"`
	ConnectRetries int    `yaml:"connect_retries"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type ReportConfig struct {
	FontPaths []string `yaml:"font_paths"`
}

func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Pipeline: PipelineConfig{
			Parallel:             true,
			PassTimeout:          orchestrator.DefaultPassTimeout,
			EnableLearning:       true,
			RadiologistThreshold: sentinel.DefaultRadiologistThreshold,
		},
		Inference: InferenceConfig{Timeout: 60 * time.Second},
		Database: DatabaseConfig{
			MigrationsPath: "file://migrations",
			ConnectRetries: 10,
		},
	}
}

// Load layers configuration: defaults, then the YAML file at path (optional),
// then environment variables, which may come from a .env file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")

	errs = append(errs,
		setBool(&c.Pipeline.Parallel, "PARALLEL_EXECUTION"),
		setDuration(&c.Pipeline.PassTimeout, "PASS_TIMEOUT"),
		setDuration(&c.Pipeline.RequestTimeout, "REQUEST_TIMEOUT"),
		setBool(&c.Pipeline.EnableLearning, "ENABLE_LEARNING"),
		setFloat(&c.Pipeline.RadiologistThreshold, "RADIOLOGIST_THRESHOLD"),
		setDuration(&c.Inference.Timeout, "INFERENCE_TIMEOUT"),
		setInt(&c.Database.ConnectRetries, "DB_CONNECT_RETRIES"),
		setInt64(&c.Telegram.ChatID, "REPORT_CHAT_ID"),
	)
	setList(&c.Pipeline.FanOut, "FAN_OUT", ",")
	setString(&c.Inference.URL, "INFERENCE_URL")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.MigrationsPath, "MIGRATIONS_PATH")
	setString(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	setList(&c.Report.FontPaths, "PDF_FONT_PATHS", ":")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	if c.Pipeline.PassTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pass_timeout must be positive, got %s", c.Pipeline.PassTimeout))
	}
	if c.Pipeline.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout must not be negative, got %s", c.Pipeline.RequestTimeout))
	}
	if t := c.Pipeline.RadiologistThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("radiologist_threshold must be in (0, 1], got %g", t))
	}
	for _, name := range c.Pipeline.FanOut {
		if !agent.Known(agent.Name(name)) {
			errs = append(errs, fmt.Errorf("fan_out: unknown pass %q", name))
		}
	}
	if c.Inference.URL != "" && c.Inference.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("inference timeout must be positive, got %s", c.Inference.Timeout))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Orchestrator translates the pipeline section.
func (c *Config) Orchestrator() orchestrator.Config {
	cfg := orchestrator.Config{
		Parallel:       c.Pipeline.Parallel,
		PassTimeout:    c.Pipeline.PassTimeout,
		RequestTimeout: c.Pipeline.RequestTimeout,
		EnableLearning: c.Pipeline.EnableLearning,
	}
	for _, name := range c.Pipeline.FanOut {
		cfg.FanOut = append(cfg.FanOut, agent.Name(name))
	}
	return cfg
}

func (c *Config) Validator() sentinel.Config {
	return sentinel.Config{RadiologistThreshold: c.Pipeline.RadiologistThreshold}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setList(dst *[]string, key, sep string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func setBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
