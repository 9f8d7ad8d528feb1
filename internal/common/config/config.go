// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Azure         AzureConfig        `mapstructure:"azure"`
	Cleanup       CleanupConfig      `mapstructure:"cleanup"`
	Lease         LeaseConfig        `mapstructure:"lease"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Camunda       CamundaConfig      `mapstructure:"camunda"`
	Tracing       TracingConfig      `mapstructure:"tracing"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// AzureConfig addresses the identity endpoint and the one account the reaper watches.
type AzureConfig struct {
	TenantID       string `mapstructure:"tenant_id"`
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	SubscriptionID string `mapstructure:"subscription_id"`
	ResourceGroup  string `mapstructure:"resource_group"`
	AccountName    string `mapstructure:"account_name"`

	ManagementEndpoint string        `mapstructure:"management_endpoint"`
	AuthorityHost      string        `mapstructure:"authority_host"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"` // 0 disables retries

	APIVersions APIVersionsConfig `mapstructure:"api_versions"`
}

type APIVersionsConfig struct {
	Resources         string `mapstructure:"resources"`
	CognitiveServices string `mapstructure:"cognitive_services"`
}

// Target returns the configured subscription / resource group / account triplet.
func (a AzureConfig) Target() (string, string, string) {
	return a.SubscriptionID, a.ResourceGroup, a.AccountName
}

// CleanupConfig controls the scheduled pass.
type CleanupConfig struct {
	DryRun       bool          `mapstructure:"dry_run"`
	Interval     time.Duration `mapstructure:"interval"`
	RunOnStartup bool          `mapstructure:"run_on_startup"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
}

// LeaseConfig guards against overlapping runs across replicas.
type LeaseConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Key     string        `mapstructure:"key"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

func (p PostgresConfig) Enabled() bool { return p.Host != "" }

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

func (e ElasticsearchConfig) Enabled() bool { return len(e.Addresses) > 0 }

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool { return r.Address != "" }

// NotificationConfig holds run summary delivery settings.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SES struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		ToEmails  []string `mapstructure:"to_emails"`
	} `mapstructure:"ses"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	JobType        string `mapstructure:"job_type"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

func (c CamundaConfig) Enabled() bool { return c.BrokerAddress != "" }

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
