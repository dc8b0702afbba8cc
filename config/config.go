package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cron     CronConfig
	Grading  GradingConfig
	Provider ProviderConfig
	Archive  ArchiveConfig
}

type ServerConfig struct {
	Port           int
	Environment    string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type CronConfig struct {
	Secret           string
	Enabled          bool
	GradingInterval  time.Duration
	LockWorkerPeriod time.Duration
}

type GradingConfig struct {
	FinalizeAfter        time.Duration
	HolidayFinalizeAfter time.Duration
	HolidayMonth         int
	HolidayDay           int
	StepTimeout          time.Duration
}

type ProviderConfig struct {
	BaseURL       string
	ScrapeBaseURL string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	UserAgent     string
}

// ArchiveConfig points at the R2 bucket holding raw setlist snapshots.
// An empty bucket disables archiving.
type ArchiveConfig struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

func (c ServerConfig) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Load reads config.yaml (optional) and the environment. Environment keys are the
// upper-cased config keys with dots replaced by underscores, e.g. GRADING_STEP_TIMEOUT.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("cron.secret", "CRON_SECRET")
	_ = v.BindEnv("provider.api_key", "PHISHNET_API_KEY")
	_ = v.BindEnv("archive.account_id", "CLOUDFLARE_ACCOUNT_ID")
	_ = v.BindEnv("archive.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("archive.access_key_secret", "R2_ACCESS_KEY_SECRET")
	_ = v.BindEnv("archive.bucket", "R2_BUCKET_NAME")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			Environment:    v.GetString("server.environment"),
			LogLevel:       v.GetString("server.log_level"),
			LogFormat:      v.GetString("server.log_format"),
			AllowedOrigins: splitList(v.GetString("server.allowed_origins")),
		},
		Database: DatabaseConfig{
			URL:          v.GetString("database.url"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
		},
		Cron: CronConfig{
			Secret:           v.GetString("cron.secret"),
			Enabled:          v.GetBool("cron.enabled"),
			GradingInterval:  v.GetDuration("cron.grading_interval"),
			LockWorkerPeriod: v.GetDuration("cron.lock_worker_period"),
		},
		Grading: GradingConfig{
			FinalizeAfter:        v.GetDuration("grading.finalize_after"),
			HolidayFinalizeAfter: v.GetDuration("grading.holiday_finalize_after"),
			HolidayMonth:         v.GetInt("grading.holiday_month"),
			HolidayDay:           v.GetInt("grading.holiday_day"),
			StepTimeout:          v.GetDuration("grading.step_timeout"),
		},
		Provider: ProviderConfig{
			BaseURL:       v.GetString("provider.base_url"),
			ScrapeBaseURL: v.GetString("provider.scrape_base_url"),
			APIKey:        v.GetString("provider.api_key"),
			Timeout:       v.GetDuration("provider.timeout"),
			MaxRetries:    v.GetInt("provider.max_retries"),
			UserAgent:     v.GetString("provider.user_agent"),
		},
		Archive: ArchiveConfig{
			AccountID:       v.GetString("archive.account_id"),
			AccessKeyID:     v.GetString("archive.access_key_id"),
			AccessKeySecret: v.GetString("archive.access_key_secret"),
			Bucket:          v.GetString("archive.bucket"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Cron.Secret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration not set: %s", strings.Join(missing, ", "))
	}
	if c.Grading.HolidayMonth < 1 || c.Grading.HolidayMonth > 12 {
		return fmt.Errorf("grading.holiday_month must be 1-12, got %d", c.Grading.HolidayMonth)
	}
	if c.Grading.FinalizeAfter <= 0 || c.Grading.HolidayFinalizeAfter <= 0 {
		return errors.New("grading finalize windows must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5200)
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.grading_interval", "10m")
	v.SetDefault("cron.lock_worker_period", "1m")

	v.SetDefault("grading.finalize_after", "24h")
	v.SetDefault("grading.holiday_finalize_after", "26h")
	v.SetDefault("grading.holiday_month", 12)
	v.SetDefault("grading.holiday_day", 31)
	v.SetDefault("grading.step_timeout", "20s")

	v.SetDefault("provider.base_url", "https://api.phish.net/v5")
	v.SetDefault("provider.scrape_base_url", "https://phish.net")
	v.SetDefault("provider.timeout", "15s")
	v.SetDefault("provider.max_retries", 2)
	v.SetDefault("provider.user_agent", "setlist-survivor/1.0")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
