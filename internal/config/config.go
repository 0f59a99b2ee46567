package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bili_push/internal/domain"
)

type Config struct {
	Database      DatabaseConfig       `yaml:"database"`
	RabbitMQ      RabbitMQConfig       `yaml:"rabbitmq"`
	API           APIConfig            `yaml:"api"`
	Scheduler     SchedulerConfig      `yaml:"scheduler"`
	Render        RenderConfig         `yaml:"render"`
	HTTP          HTTPConfig           `yaml:"http"`
	Accounts      []AccountConfig      `yaml:"accounts"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	LogLevel      string               `yaml:"log_level"`
}

// RabbitMQConfig configures the delivery sink. An empty URL selects the
// log-only sink.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnString returns the explicit dsn when set, otherwise one built from the
// driver specific fields.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type APIConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	UserAgent         string        `yaml:"user_agent"`
	Retry             RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type SchedulerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	PushOnStartup bool          `yaml:"push_on_startup"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	SeenCap       int           `yaml:"seen_cap"`
}

type RenderConfig struct {
	MaxImages int `yaml:"max_images"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type AccountConfig struct {
	UID     string            `yaml:"uid"`
	Name    string            `yaml:"name"`
	Face    string            `yaml:"face"`
	Cookies map[string]string `yaml:"cookies"`
}

func (a AccountConfig) Account() domain.Account {
	return domain.Account{
		ID:          a.UID,
		DisplayName: a.Name,
		AvatarURL:   a.Face,
		Cookies:     a.Cookies,
		Valid:       true,
	}
}

type SubscriptionConfig struct {
	UID        string   `yaml:"uid"`
	Username   string   `yaml:"username"`
	Type       string   `yaml:"type"`
	Subscriber string   `yaml:"subscriber"`
	Categories []int    `yaml:"categories"`
	Tags       []string `yaml:"tags"`
	Enabled    *bool    `yaml:"enabled"`
}

func (s SubscriptionConfig) Subscription() domain.Subscription {
	sub := domain.Subscription{
		UID:          s.UID,
		Username:     s.Username,
		Kind:         domain.SourceKind(s.Type),
		SubscriberID: s.Subscriber,
		Tags:         s.Tags,
		Enabled:      s.Enabled == nil || *s.Enabled,
	}
	for _, c := range s.Categories {
		sub.Categories = append(sub.Categories, domain.Category(c))
	}
	return sub
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "data/bili_push.db"
	}
	if c.Database.Driver == "postgres" {
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "bili_push"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "notifications"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "bili_push_notifications"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 20 * time.Second
	}
	if c.API.RequestsPerSecond == 0 {
		c.API.RequestsPerSecond = 2
	}
	if c.API.Retry.MaxAttempts == 0 {
		c.API.Retry.MaxAttempts = 2
	}
	if c.API.Retry.InitialBackoff == 0 {
		c.API.Retry.InitialBackoff = 1 * time.Second
	}
	if c.API.Retry.MaxBackoff == 0 {
		c.API.Retry.MaxBackoff = 10 * time.Second
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 30 * time.Second
	}
	if c.Scheduler.MaxConcurrent == 0 {
		c.Scheduler.MaxConcurrent = 5
	}
	if c.Scheduler.SeenCap == 0 {
		c.Scheduler.SeenCap = 100
	}
	if c.Render.MaxImages == 0 {
		c.Render.MaxImages = 9
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver %q", c.Database.Driver)
	}
	for i, s := range c.Subscriptions {
		if s.UID == "" || s.Subscriber == "" {
			return fmt.Errorf("subscription %d: uid and subscriber are required", i)
		}
		if !domain.SourceKind(s.Type).Valid() {
			return fmt.Errorf("subscription %d: invalid type %q", i, s.Type)
		}
	}
	for i, a := range c.Accounts {
		if a.UID == "" {
			return fmt.Errorf("account %d: uid is required", i)
		}
	}
	return nil
}
