// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Reddit     RedditConfig     `mapstructure:"reddit"`
	Collection CollectionConfig `mapstructure:"collection"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RedditConfig holds API credentials and HTTP client settings.
type RedditConfig struct {
	ClientID          string `mapstructure:"client_id"`
	ClientSecret      string `mapstructure:"client_secret"`
	UserAgent         string `mapstructure:"user_agent"`
	BaseURL           string `mapstructure:"base_url"`
	TokenURL          string `mapstructure:"token_url"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// CollectionConfig selects what gets collected.
type CollectionConfig struct {
	Subreddits         []string `mapstructure:"subreddits"`
	Sort               string   `mapstructure:"sort"`
	ListingLimit       int      `mapstructure:"listing_limit"`
	CommentLimit       int      `mapstructure:"comment_limit"`
	AuthorHistoryLimit int      `mapstructure:"author_history_limit"`
	Moderators         []string `mapstructure:"moderators"`
	ExcludedAuthors    []string `mapstructure:"excluded_authors"`
}

// SchedulerConfig bounds how many submission units run at once.
type SchedulerConfig struct {
	MaxInFlight int `mapstructure:"max_in_flight"`
	Workers     int `mapstructure:"workers"`
	QueueDepth  int `mapstructure:"queue_depth"`
}

// RateLimitConfig tunes the cooldown applied after throttling responses.
type RateLimitConfig struct {
	DefaultCooldownSeconds int `mapstructure:"default_cooldown_seconds"`
	SafetyMarginSeconds    int `mapstructure:"safety_margin_seconds"`
}

// ArtifactsConfig sets where the author and submission maps are written.
type ArtifactsConfig struct {
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int    `mapstructure:"max_conns"`
	MinConns               int    `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	Migrate                bool   `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the metrics endpoint and Pushgateway export.
type MetricsConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Collection.Subreddits = splitSubreddits(cfg.Collection.Subreddits)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.client_secret", "")
	v.SetDefault("reddit.user_agent", "reddit-collector/0.1")
	v.SetDefault("reddit.base_url", "https://oauth.reddit.com")
	v.SetDefault("reddit.token_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("reddit.timeout_seconds", 30)
	v.SetDefault("reddit.requests_per_minute", 0)
	v.SetDefault("collection.subreddits", []string{})
	v.SetDefault("collection.sort", string(reddit.SortHot))
	v.SetDefault("collection.listing_limit", 100)
	v.SetDefault("collection.comment_limit", 500)
	v.SetDefault("collection.author_history_limit", 100)
	v.SetDefault("collection.excluded_authors", []string{"AutoModerator", "reddit"})
	v.SetDefault("scheduler.max_in_flight", 4)
	v.SetDefault("scheduler.workers", 8)
	v.SetDefault("scheduler.queue_depth", 64)
	v.SetDefault("rate_limit.default_cooldown_seconds", 3)
	v.SetDefault("rate_limit.safety_margin_seconds", 2)
	v.SetDefault("artifacts.backend", "local")
	v.SetDefault("artifacts.prefix", "reddit")
	v.SetDefault("artifacts.local_dir", "data")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.migrate", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "reddit-collector")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "reddit-collector")
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// splitSubreddits expands "a+b" entries into separate names and drops blanks.
func splitSubreddits(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, name := range strings.Split(entry, "+") {
			name = strings.TrimSpace(name)
			if name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		return fmt.Errorf("reddit.client_id and reddit.client_secret must be set")
	}
	if c.Reddit.UserAgent == "" {
		return fmt.Errorf("reddit.user_agent must be set")
	}
	if c.Reddit.TimeoutSeconds <= 0 {
		return fmt.Errorf("reddit.timeout_seconds must be > 0")
	}
	if c.Reddit.RequestsPerMinute < 0 {
		return fmt.Errorf("reddit.requests_per_minute must be >= 0")
	}
	if _, err := reddit.ParseSortMethod(c.Collection.Sort); err != nil {
		return fmt.Errorf("collection.sort: %w", err)
	}
	if c.Collection.ListingLimit <= 0 {
		return fmt.Errorf("collection.listing_limit must be > 0")
	}
	if c.Collection.CommentLimit <= 0 {
		return fmt.Errorf("collection.comment_limit must be > 0")
	}
	if c.Collection.AuthorHistoryLimit <= 0 {
		return fmt.Errorf("collection.author_history_limit must be > 0")
	}
	if c.Scheduler.MaxInFlight <= 0 {
		return fmt.Errorf("scheduler.max_in_flight must be > 0")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be > 0")
	}
	if c.RateLimit.DefaultCooldownSeconds <= 0 {
		return fmt.Errorf("rate_limit.default_cooldown_seconds must be > 0")
	}
	if c.RateLimit.SafetyMarginSeconds <= 0 {
		return fmt.Errorf("rate_limit.safety_margin_seconds must be > 0")
	}
	switch c.Artifacts.Backend {
	case "memory", "local":
	case "gcs":
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("artifacts.gcs_bucket must be set when artifacts.backend is gcs")
		}
	default:
		return fmt.Errorf("artifacts.backend must be one of memory, local, gcs")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequireSubreddits reports an error when no listing source is configured.
// Only collection needs sources; ingest-only runs do not.
func (c Config) RequireSubreddits() error {
	if len(c.Collection.Subreddits) == 0 {
		return fmt.Errorf("collection.subreddits must name at least one subreddit")
	}
	return nil
}

// RequireDatabase reports an error when no DSN is configured.
func (c Config) RequireDatabase() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set to ingest")
	}
	return nil
}

// RequestTimeout returns the per-request HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Reddit.TimeoutSeconds) * time.Second
}

// DefaultCooldown returns the cooldown used when a throttle carries no retry-after.
func (c Config) DefaultCooldown() time.Duration {
	return time.Duration(c.RateLimit.DefaultCooldownSeconds) * time.Second
}

// SafetyMargin returns the margin added to server-provided retry-after values.
func (c Config) SafetyMargin() time.Duration {
	return time.Duration(c.RateLimit.SafetyMarginSeconds) * time.Second
}

// MaxConnLifetime returns the pgx pool connection lifetime.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeMinutes) * time.Minute
}
