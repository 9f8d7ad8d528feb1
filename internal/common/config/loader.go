// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// envAliases binds config keys to the variable names the Azure job has always used.
var envAliases = map[string][]string{
	"azure.tenant_id":       {"AZURE_TENANT_ID"},
	"azure.client_id":       {"AZURE_CLIENT_ID"},
	"azure.client_secret":   {"AZURE_CLIENT_SECRET"},
	"azure.subscription_id": {"AZURE_SUBSCRIPTION_ID"},
	"azure.resource_group":  {"AZURE_RESOURCE_GROUP_NAME", "AZURE_RESOURCE_GROUP"},
	"azure.account_name":    {"AZURE_OPENAI_SERVICE_NAME", "AZURE_ACCOUNT_NAME"},
	"azure.authority_host":  {"AZURE_AUTHORITY_HOST"},
}

// Load reads configs/config.yaml, the APP_ENVIRONMENT overlay, .env and the process environment.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	setDefaults(v)
	for key, names := range envAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "commitment-reaper")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("azure.subscription_id", "")
	v.SetDefault("azure.resource_group", "")
	v.SetDefault("azure.account_name", "")
	v.SetDefault("azure.management_endpoint", "https://management.azure.com/")
	v.SetDefault("azure.authority_host", "https://login.microsoftonline.com/")
	v.SetDefault("azure.request_timeout", 30*time.Second)
	v.SetDefault("azure.max_retries", 0)
	v.SetDefault("azure.api_versions.resources", "2022-12-01")
	v.SetDefault("azure.api_versions.cognitive_services", "2023-05-01")

	v.SetDefault("cleanup.dry_run", true)
	v.SetDefault("cleanup.interval", time.Minute)
	v.SetDefault("cleanup.run_on_startup", true)
	v.SetDefault("cleanup.run_timeout", 5*time.Minute)

	v.SetDefault("lease.enabled", false)
	v.SetDefault("lease.key", "commitment-reaper:run-lease")
	v.SetDefault("lease.ttl", 5*time.Minute)

	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.elasticsearch.addresses", []string{})
	v.SetDefault("database.elasticsearch.index", "commitment-reaper-runs")

	v.SetDefault("notifications.aws.region", "")
	v.SetDefault("notifications.sns.enabled", false)
	v.SetDefault("notifications.sns.topic_arn", "")
	v.SetDefault("notifications.ses.enabled", false)
	v.SetDefault("notifications.ses.from_email", "")
	v.SetDefault("notifications.ses.to_emails", []string{})

	v.SetDefault("camunda.broker_address", "")
	v.SetDefault("camunda.job_type", "reap-expired-commitments")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("metrics.address", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// loadEnvFile loads the first .env found walking from the working directory to the module root.
func loadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// placeholder matches a ${NAME} reference.
var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars resolves ${VAR} placeholders left in string values read from
// the config file. Values supplied by the environment are taken verbatim.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		if fromEnv(key) {
			continue
		}
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "${") {
			continue
		}
		expanded := placeholder.ReplaceAllStringFunc(strVal, func(ref string) string {
			return os.Getenv(ref[2 : len(ref)-1])
		})
		if expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// fromEnv reports whether a non-empty variable bound to key is set.
func fromEnv(key string) bool {
	names := append([]string{envKeyReplacer.Replace(strings.ToUpper(key))}, envAliases[key]...)
	for _, name := range names {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// applyDefaults fills values that depend on other settings.
func applyDefaults(cfg *Config) {
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 1
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = int(cfg.Cleanup.RunTimeout / time.Millisecond)
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 5
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Lease.TTL < cfg.Cleanup.RunTimeout {
		cfg.Lease.TTL = cfg.Cleanup.RunTimeout
	}

	if !strings.HasSuffix(cfg.Azure.ManagementEndpoint, "/") {
		cfg.Azure.ManagementEndpoint += "/"
	}
	if !strings.HasSuffix(cfg.Azure.AuthorityHost, "/") {
		cfg.Azure.AuthorityHost += "/"
	}
}

// validateConfig rejects settings the process cannot start with. An empty
// subscription, resource group or account is left to the run itself.
func validateConfig(cfg *Config) error {
	if cfg.Cleanup.Interval <= 0 {
		return fmt.Errorf("cleanup.interval must be positive")
	}
	if cfg.Cleanup.RunTimeout <= 0 {
		return fmt.Errorf("cleanup.run_timeout must be positive")
	}
	if cfg.Azure.ManagementEndpoint == "/" {
		return fmt.Errorf("azure.management_endpoint is required")
	}
	if cfg.Azure.MaxRetries < 0 {
		return fmt.Errorf("azure.max_retries must not be negative")
	}

	if cfg.Lease.Enabled && !cfg.Database.Redis.Enabled() {
		return fmt.Errorf("lease.enabled requires database.redis.address")
	}

	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}
	if cfg.Notifications.SES.Enabled {
		if cfg.Notifications.SES.FromEmail == "" || len(cfg.Notifications.SES.ToEmails) == 0 {
			return fmt.Errorf("notifications.ses.from_email and to_emails are required when ses is enabled")
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
