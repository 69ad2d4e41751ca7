package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kindle_digest/internal/delivery"
	"kindle_digest/internal/domain"
)

const (
	WatermarkFile     = "file"
	WatermarkPostgres = "postgres"
	WatermarkSQLite   = "sqlite"

	NotifyRabbitMQ = "rabbitmq"
	NotifyKafka    = "kafka"
)

type Config struct {
	SMTP      SMTPConfig      `yaml:"smtp"`
	Converter ConverterConfig `yaml:"converter"`
	Book      BookConfig      `yaml:"book"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Watermark WatermarkConfig `yaml:"watermark"`
	Notify    NotifyConfig    `yaml:"notify"`
	LogLevel  string          `yaml:"log_level"`
	LogFile   string          `yaml:"log_file"`
}

type SMTPConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
	To         string `yaml:"to"`
	Encryption string `yaml:"encryption"`

	// Timeout bounds dialing the server and sending one message.
	Timeout time.Duration `yaml:"timeout"`
}

type ConverterConfig struct {
	PandocPath string `yaml:"pandoc_path"`

	// EbookConvertPath set to "none" skips the Kindle round trip.
	EbookConvertPath string `yaml:"ebook_convert_path"`
}

// EbookConvert returns the ebook-convert binary, or "" when disabled.
func (c ConverterConfig) EbookConvert() string {
	if strings.EqualFold(c.EbookConvertPath, "none") {
		return ""
	}
	return c.EbookConvertPath
}

type BookConfig struct {
	Title          string `yaml:"title"`
	CoverPath      string `yaml:"cover_path"`
	StylesheetPath string `yaml:"stylesheet_path"`
	WorkDir        string `yaml:"work_dir"`
}

type FeedsConfig struct {
	Path string `yaml:"path"`
}

type FetchConfig struct {
	// LookbackHours is a pointer so an explicit 0 survives defaulting.
	LookbackHours     *int          `yaml:"lookback_hours"`
	Workers           int           `yaml:"workers"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Retry             RetryConfig   `yaml:"retry"`

	// FullText replaces short feed summaries with the article page text.
	FullText bool `yaml:"full_text"`

	// AbortWhenAllFail fails a round in which every feed errored instead of
	// advancing the watermark past it.
	AbortWhenAllFail bool `yaml:"abort_when_all_fail"`
}

func (f FetchConfig) Lookback() time.Duration {
	if f.LookbackHours == nil {
		return 0
	}
	return time.Duration(*f.LookbackHours) * time.Hour
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type ScheduleConfig struct {
	Hour       int    `yaml:"hour"`
	Minute     int    `yaml:"minute"`
	Timezone   string `yaml:"timezone"`
	RunOnStart *bool  `yaml:"run_on_start"`

	// RoundTimeout bounds a whole round, fetch to delivery.
	RoundTimeout  time.Duration `yaml:"round_timeout"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"`
}

// Location resolves the configured timezone, falling back to time.Local.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || strings.EqualFold(s.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

type WatermarkConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Name     string         `yaml:"name"`
	Database DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type NotifyConfig struct {
	Driver   string         `yaml:"driver"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load reads the YAML file at path, expanding ${VAR} references from the
// environment (after loading .env if present). A missing file is treated as
// an empty document so a purely environment-driven setup still validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", domain.ErrConfiguration, err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = 30 * time.Second
	}
	if c.Converter.PandocPath == "" {
		c.Converter.PandocPath = "/usr/bin/pandoc"
	}
	if c.Converter.EbookConvertPath == "" {
		c.Converter.EbookConvertPath = "ebook-convert"
	}
	if c.Book.Title == "" {
		c.Book.Title = "News"
	}
	if c.Book.WorkDir == "" {
		c.Book.WorkDir = os.TempDir()
	}
	if c.Feeds.Path == "" {
		c.Feeds.Path = "/config/feeds.txt"
	}
	if c.Fetch.LookbackHours == nil {
		hours := 24
		c.Fetch.LookbackHours = &hours
	}
	if c.Fetch.Workers == 0 {
		c.Fetch.Workers = 8
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "KindleDigest/1.0"
	}
	if c.Fetch.Retry.MaxAttempts == 0 {
		c.Fetch.Retry.MaxAttempts = 3
	}
	if c.Fetch.Retry.InitialBackoff == 0 {
		c.Fetch.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Fetch.Retry.MaxBackoff == 0 {
		c.Fetch.Retry.MaxBackoff = 10 * time.Second
	}
	if c.Schedule.RunOnStart == nil {
		runOnStart := true
		c.Schedule.RunOnStart = &runOnStart
	}
	if c.Schedule.RoundTimeout == 0 {
		c.Schedule.RoundTimeout = 30 * time.Minute
	}
	if c.Schedule.NotifyTimeout == 0 {
		c.Schedule.NotifyTimeout = 10 * time.Second
	}
	if c.Watermark.Driver == "" {
		c.Watermark.Driver = WatermarkFile
	}
	if c.Watermark.Path == "" {
		switch c.Watermark.Driver {
		case WatermarkSQLite:
			c.Watermark.Path = "/config/digest.db"
		default:
			c.Watermark.Path = "/config/last_run"
		}
	}
	if c.Watermark.Name == "" {
		c.Watermark.Name = "default"
	}
	if c.Watermark.Database.SSLMode == "" {
		c.Watermark.Database.SSLMode = "disable"
	}
	if c.Notify.RabbitMQ.Exchange == "" {
		c.Notify.RabbitMQ.Exchange = "kindle_digest"
	}
	if c.Notify.RabbitMQ.RoutingKey == "" {
		c.Notify.RabbitMQ.RoutingKey = "issues"
	}
	if c.Notify.RabbitMQ.QueueName == "" {
		c.Notify.RabbitMQ.QueueName = "delivered_issues"
	}
	if c.Notify.Kafka.Topic == "" {
		c.Notify.Kafka.Topic = "kindle-digest-issues"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports every missing or malformed setting at once. The returned
// error wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, key+" is required")
		}
	}

	require(c.SMTP.Host, "smtp.host")
	require(c.SMTP.User, "smtp.user")
	require(c.SMTP.Password, "smtp.password")
	require(c.SMTP.From, "smtp.from")
	require(c.SMTP.To, "smtp.to")
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		problems = append(problems, fmt.Sprintf("smtp.port %d is out of range", c.SMTP.Port))
	}
	switch c.SMTP.Encryption {
	case delivery.EncryptionSSL, delivery.EncryptionTLS:
	case "":
		problems = append(problems, "smtp.encryption is required")
	default:
		problems = append(problems, fmt.Sprintf("smtp.encryption %q is not %s or %s",
			c.SMTP.Encryption, delivery.EncryptionSSL, delivery.EncryptionTLS))
	}
	if c.SMTP.Timeout < 0 {
		problems = append(problems, "smtp.timeout must not be negative")
	}

	if c.Fetch.LookbackHours != nil && *c.Fetch.LookbackHours < 0 {
		problems = append(problems, "fetch.lookback_hours must not be negative")
	}
	if c.Fetch.Workers < 0 {
		problems = append(problems, "fetch.workers must not be negative")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		problems = append(problems, "fetch.requests_per_second must not be negative")
	}

	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		problems = append(problems, fmt.Sprintf("schedule.hour %d is out of range", c.Schedule.Hour))
	}
	if c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		problems = append(problems, fmt.Sprintf("schedule.minute %d is out of range", c.Schedule.Minute))
	}
	if _, err := c.Schedule.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("schedule.timezone: %v", err))
	}

	switch c.Watermark.Driver {
	case WatermarkFile, WatermarkSQLite:
	case WatermarkPostgres:
		require(c.Watermark.Database.Host, "watermark.database.host")
		require(c.Watermark.Database.DBName, "watermark.database.dbname")
	default:
		problems = append(problems, fmt.Sprintf("watermark.driver %q is unknown", c.Watermark.Driver))
	}

	switch c.Notify.Driver {
	case "":
	case NotifyRabbitMQ:
		require(c.Notify.RabbitMQ.URL, "notify.rabbitmq.url")
	case NotifyKafka:
		if len(c.Notify.Kafka.Brokers) == 0 {
			problems = append(problems, "notify.kafka.brokers is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("notify.driver %q is unknown", c.Notify.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
