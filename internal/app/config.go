package app

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/db"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/envutil"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/gcp"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	ServiceName string   `yaml:"service_name"`
	Environment string   `yaml:"environment"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Mode     string `yaml:"mode"`
	Level    string `yaml:"level"`
	Redact   bool   `yaml:"redact"`
	HashSalt string `yaml:"-"`
}

// TelemetryConfig follows the standard OTEL_* variables so collectors configured for
// other services work unchanged.
type TelemetryConfig struct {
	Metrics     bool              `yaml:"metrics"`
	Tracing     bool              `yaml:"tracing"`
	Endpoint    string            `yaml:"endpoint"`
	Headers     map[string]string `yaml:"-"`
	Insecure    bool              `yaml:"insecure"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"-"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RedisConfig selects the shared substrate. An empty Addr runs everything in memory,
// which only works for a single process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type CrawlerConfig struct {
	URL         string        `yaml:"url"`
	Secret      string        `yaml:"-"`
	CallbackURL string        `yaml:"callback_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RetrievalConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"`
}

type FetchConfig struct {
	MaxBytes int64         `yaml:"max_bytes"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ArchiveConfig struct {
	Mode         string `yaml:"mode"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	EmulatorHost string `yaml:"emulator_host"`
	Credentials  string `yaml:"-"`
}

type SessionConfig struct {
	CrawlEstimate   time.Duration `yaml:"crawl_estimate"`
	PerDocument     time.Duration `yaml:"per_document"`
	Timeout         time.Duration `yaml:"timeout"`
	Staleness       time.Duration `yaml:"staleness"`
	HealthInterval  time.Duration `yaml:"health_interval"`
	CompleteGrace   time.Duration `yaml:"complete_grace"`
	CrawlerAttempts int           `yaml:"crawler_attempts"`
	CrawlerBackoff  time.Duration `yaml:"crawler_backoff"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Auth      AuthConfig      `yaml:"auth"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Session   SessionConfig   `yaml:"session"`
	Snapshot  struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"snapshot"`
	Upload struct {
		StaleUploading time.Duration `yaml:"stale_uploading"`
	} `yaml:"upload"`
	Relay struct {
		DedupeTTL time.Duration `yaml:"dedupe_ttl"`
	} `yaml:"relay"`
	Quota struct {
		Ceiling int           `yaml:"ceiling"`
		Window  time.Duration `yaml:"window"`
	} `yaml:"quota"`
}

// LoadConfig reads the embedded defaults and applies environment overrides. Secrets
// only come from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse defaults: %w", err)
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = envutil.String("HTTP_ADDR", cfg.Server.Addr)
	if port := envutil.String("PORT", ""); port != "" {
		cfg.Server.Addr = ":" + port
	}
	cfg.Server.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Server.ServiceName)
	cfg.Server.Environment = envutil.String("APP_ENV", cfg.Server.Environment)
	if origins := envutil.String("CORS_ORIGINS", ""); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}

	cfg.Log.Mode = envutil.String("LOG_MODE", cfg.Log.Mode)
	cfg.Log.Level = envutil.String("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Redact = envutil.Bool("LOG_REDACTION_ENABLED", cfg.Log.Redact)
	cfg.Log.HashSalt = envutil.String("LOG_HASH_SALT", cfg.Log.HashSalt)

	cfg.Telemetry.Metrics = envutil.Bool("METRICS_ENABLED", cfg.Telemetry.Metrics)
	cfg.Telemetry.Tracing = envutil.Bool("OTEL_ENABLED", cfg.Telemetry.Tracing)
	cfg.Telemetry.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Telemetry.Insecure)
	cfg.Telemetry.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", cfg.Telemetry.SampleRatio)
	if raw := envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""); raw != "" {
		cfg.Telemetry.Headers = observability.ParseHeaders(raw)
	}

	cfg.Auth.JWTSecret = envutil.String("JWT_SECRET_KEY", cfg.Auth.JWTSecret)
	cfg.Auth.JWTIssuer = envutil.String("JWT_ISSUER", cfg.Auth.JWTIssuer)

	cfg.Postgres.Host = envutil.String("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = envutil.String("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = envutil.String("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = envutil.String("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Name = envutil.String("POSTGRES_NAME", cfg.Postgres.Name)
	cfg.Postgres.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.Postgres.SSLMode)
	cfg.Postgres.MaxOpenConns = envutil.Int("POSTGRES_MAX_OPEN_CONNS", cfg.Postgres.MaxOpenConns)
	cfg.Postgres.ConnectTimeout = envutil.Duration("POSTGRES_CONNECT_TIMEOUT", cfg.Postgres.ConnectTimeout)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Prefix = envutil.String("REDIS_PREFIX", cfg.Redis.Prefix)

	cfg.Crawler.URL = envutil.String("CRAWLER_URL", cfg.Crawler.URL)
	cfg.Crawler.Secret = envutil.String("CRAWLER_SECRET", cfg.Crawler.Secret)
	cfg.Crawler.CallbackURL = envutil.String("CRAWLER_CALLBACK_URL", cfg.Crawler.CallbackURL)
	cfg.Crawler.Timeout = envutil.Duration("CRAWLER_TIMEOUT", cfg.Crawler.Timeout)

	cfg.Retrieval.URL = envutil.String("RETRIEVAL_URL", cfg.Retrieval.URL)
	cfg.Retrieval.APIKey = envutil.String("RETRIEVAL_API_KEY", cfg.Retrieval.APIKey)
	cfg.Retrieval.Timeout = envutil.Duration("RETRIEVAL_TIMEOUT", cfg.Retrieval.Timeout)

	cfg.Fetch.MaxBytes = int64(envutil.Int("FETCH_MAX_BYTES", int(cfg.Fetch.MaxBytes)))
	cfg.Fetch.Timeout = envutil.Duration("FETCH_TIMEOUT", cfg.Fetch.Timeout)

	cfg.Archive.Mode = envutil.String("OBJECT_STORAGE_MODE", cfg.Archive.Mode)
	cfg.Archive.Bucket = envutil.String("ARCHIVE_BUCKET", cfg.Archive.Bucket)
	cfg.Archive.Prefix = envutil.String("ARCHIVE_PREFIX", cfg.Archive.Prefix)
	cfg.Archive.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.Archive.EmulatorHost)
	cfg.Archive.Credentials = envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", envutil.String("GOOGLE_APPLICATION_CREDENTIALS", cfg.Archive.Credentials))

	cfg.Session.CrawlEstimate = envutil.Duration("SCAN_CRAWL_ESTIMATE", cfg.Session.CrawlEstimate)
	cfg.Session.PerDocument = envutil.Duration("SCAN_PER_DOCUMENT", cfg.Session.PerDocument)
	cfg.Session.Timeout = envutil.Duration("SCAN_SESSION_TIMEOUT", cfg.Session.Timeout)
	cfg.Session.Staleness = envutil.Duration("SCAN_STALENESS", cfg.Session.Staleness)
	cfg.Session.HealthInterval = envutil.Duration("SCAN_HEALTH_INTERVAL", cfg.Session.HealthInterval)
	cfg.Session.CompleteGrace = envutil.Duration("SCAN_COMPLETE_GRACE", cfg.Session.CompleteGrace)
	cfg.Session.CrawlerAttempts = envutil.Int("CRAWLER_ATTEMPTS", cfg.Session.CrawlerAttempts)

	cfg.Snapshot.TTL = envutil.Duration("SNAPSHOT_TTL", cfg.Snapshot.TTL)
	cfg.Upload.StaleUploading = envutil.Duration("UPLOAD_STALE_AFTER", cfg.Upload.StaleUploading)
	cfg.Relay.DedupeTTL = envutil.Duration("RELAY_DEDUPE_TTL", cfg.Relay.DedupeTTL)
	cfg.Quota.Ceiling = envutil.Int("CHAT_QUOTA_CEILING", cfg.Quota.Ceiling)
	cfg.Quota.Window = envutil.Duration("CHAT_QUOTA_WINDOW", cfg.Quota.Window)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if strings.TrimSpace(c.Crawler.Secret) == "" {
		return fmt.Errorf("CRAWLER_SECRET is required")
	}
	if c.Quota.Ceiling <= 0 {
		return fmt.Errorf("chat quota ceiling must be positive, got %d", c.Quota.Ceiling)
	}
	if err := c.ArchiveSettings().Validate(); err != nil {
		return err
	}
	return nil
}

func (c Config) LoggerSettings() logger.Options {
	return logger.Options{
		Mode:     c.Log.Mode,
		Level:    c.Log.Level,
		Redact:   c.Log.Redact,
		HashSalt: c.Log.HashSalt,
	}
}

func (c Config) OtelSettings() observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.Telemetry.Tracing,
		ServiceName: c.Server.ServiceName,
		Environment: c.Server.Environment,
		Endpoint:    c.Telemetry.Endpoint,
		Headers:     c.Telemetry.Headers,
		Insecure:    c.Telemetry.Insecure,
		SampleRatio: c.Telemetry.SampleRatio,
	}
}

func (c Config) PostgresSettings() db.PostgresConfig {
	return db.PostgresConfig{
		Host:     c.Postgres.Host,
		Port:     c.Postgres.Port,
		User:     c.Postgres.User,
		Password: c.Postgres.Password,
		Name:     c.Postgres.Name,
		SSLMode:  c.Postgres.SSLMode,

		MaxOpenConns:    c.Postgres.MaxOpenConns,
		MaxIdleConns:    c.Postgres.MaxIdleConns,
		ConnMaxLifetime: c.Postgres.ConnMaxLifetime,
		ConnectTimeout:  c.Postgres.ConnectTimeout,
	}
}

func (c Config) ArchiveSettings() gcp.ArchiveConfig {
	return gcp.ArchiveConfig{
		Mode:         gcp.ObjectStorageMode(c.Archive.Mode),
		Bucket:       c.Archive.Bucket,
		Prefix:       c.Archive.Prefix,
		EmulatorHost: c.Archive.EmulatorHost,
		Credentials:  c.Archive.Credentials,
	}.Normalize()
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
