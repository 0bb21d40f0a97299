package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents a platewise.yaml configuration file. Values marked
// required are checked per command: the worker, ingress, and report
// commands each validate only the sections they use.
type Config struct {
	AWS      AWSConfig      `yaml:"aws"`
	Queue    QueueConfig    `yaml:"queue"`
	Redis    RedisConfig    `yaml:"redis"`
	Telegram TelegramConfig `yaml:"telegram"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	FDC      FDCConfig      `yaml:"fdc"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Ingress  IngressConfig  `yaml:"ingress"`
	Report   ReportConfig   `yaml:"report"`
}

// AWSConfig holds shared AWS client settings.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// QueueConfig holds the SQS consumer settings.
type QueueConfig struct {
	URL           string   `yaml:"url"`
	DeadLetterURL string   `yaml:"dead_letter_url"`
	WaitTime      Duration `yaml:"wait_time"`
	MaxMessages   int32    `yaml:"max_messages"`
}

// RedisConfig holds the dedup guard store settings.
type RedisConfig struct {
	URL       string   `yaml:"url"`
	Retention Duration `yaml:"retention"`
	Grace     Duration `yaml:"grace"`
}

// TelegramConfig holds the bot API settings. Token may be a plain
// value or an ssm:// parameter reference.
type TelegramConfig struct {
	Token   string   `yaml:"token"`
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// GeminiConfig holds the vision model settings. APIKey may be an
// ssm:// reference.
type GeminiConfig struct {
	APIKey  string   `yaml:"api_key"`
	Model   string   `yaml:"model"`
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// FDCConfig holds the nutrition database settings. APIKey may be an
// ssm:// reference.
type FDCConfig struct {
	APIKey   string   `yaml:"api_key"`
	BaseURL  string   `yaml:"base_url"`
	PageSize int      `yaml:"page_size"`
	Timeout  Duration `yaml:"timeout"`
}

// SheetsConfig holds the spreadsheet sink settings. CredentialsJSON
// may be an ssm:// reference holding the service-account JSON.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsJSON string `yaml:"credentials_json"`
	MealsSheet      string `yaml:"meals_sheet"`
	ReportsSheet    string `yaml:"reports_sheet"`
	Timezone        string `yaml:"timezone"`
}

// ArchiveConfig holds the optional photo archive settings. An empty
// bucket disables archival.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// PipelineConfig holds processing knobs.
type PipelineConfig struct {
	MaxConcurrentItems int `yaml:"max_concurrent_items"`
}

// IngressConfig holds the webhook server settings.
type IngressConfig struct {
	Addr          string `yaml:"addr"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// ReportConfig holds the daily reporter settings.
type ReportConfig struct {
	ChatID string `yaml:"chat_id"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Location parses the configured timezone, defaulting to UTC.
func (c *SheetsConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ValidateWorker checks the sections the worker command uses.
func (c *Config) ValidateWorker() error {
	var errs []error
	if c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required"))
	}
	if c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required"))
	}
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("gemini.api_key is required"))
	}
	if c.FDC.APIKey == "" {
		errs = append(errs, errors.New("fdc.api_key is required"))
	}
	if c.Sheets.SpreadsheetID == "" {
		errs = append(errs, errors.New("sheets.spreadsheet_id is required"))
	}
	if c.Sheets.CredentialsJSON == "" {
		errs = append(errs, errors.New("sheets.credentials_json is required"))
	}
	return errors.Join(errs...)
}

// ValidateIngress checks the sections the ingress command uses.
func (c *Config) ValidateIngress() error {
	var errs []error
	if c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required"))
	}
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	return errors.Join(errs...)
}

// ValidateReport checks the sections the report command uses.
func (c *Config) ValidateReport() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Sheets.SpreadsheetID == "" {
		errs = append(errs, errors.New("sheets.spreadsheet_id is required"))
	}
	if c.Sheets.CredentialsJSON == "" {
		errs = append(errs, errors.New("sheets.credentials_json is required"))
	}
	if c.Report.ChatID == "" {
		errs = append(errs, errors.New("report.chat_id is required"))
	}
	return errors.Join(errs...)
}
