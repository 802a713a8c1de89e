package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort                string
	JWTSecret               []byte
	EncryptionKey           string // base64, AES key for credential values at rest
	CredentialSweepInterval time.Duration
	Database                DatabaseConfig
	Cache                   CacheConfig
	Redis                   RedisConfig
	Identity                IdentityProviderConfig
	Upstream                UpstreamConfig
	RateLimit               RateLimitConfig
	Archive                 ArchiveConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	CallerCacheSize   int
	CallerCacheTTL    time.Duration
	EndpointCacheSize int
	EndpointCacheTTL  time.Duration
	TierCacheSize     int
	TierCacheTTL      time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// IdentityProviderConfig holds settings for the upstream identity provider
// used to mint and verify caller credentials.
type IdentityProviderConfig struct {
	TokenURL        string
	IntrospectURL   string
	ClientID        string
	ClientSecret    string
	Scope           string
	RequestTimeout  time.Duration // token exchange
	ProbeTimeout    time.Duration // validation round trip
	DefaultTokenTTL time.Duration // when the provider omits expires_in
}

// UpstreamConfig holds settings for the downstream service metered calls are
// forwarded to.
type UpstreamConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// RateLimitConfig holds per-caller request rate settings.
type RateLimitConfig struct {
	Enabled          bool
	DefaultPerMinute int // used when a caller row has no explicit limit
}

// ArchiveConfig holds configuration for the audit archive exporter.
type ArchiveConfig struct {
	Enabled       bool
	Sink          string // "s3" or "file"
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	UseRedisQueue bool
	QueueName     string
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	PodName       string
	FilePath      string // template with %s for timestamp, file sink only
	FileMaxSize   int64
	FileMaxFiles  int
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func requireEnvString(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return val, nil
}

// Load reads configuration from environment variables (and, later, other sources).
func Load() (*Config, error) {
	port := getEnvString("HTTP_PORT", "8080")
	jwtSecret := []byte(getEnvString("JWT_SECRET", "supersecretkey"))

	dbURL, err := requireEnvString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	encryptionKey, err := requireEnvString("ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}
	upstreamURL, err := requireEnvString("UPSTREAM_BASE_URL")
	if err != nil {
		return nil, err
	}
	idpTokenURL, err := requireEnvString("IDP_TOKEN_URL")
	if err != nil {
		return nil, err
	}
	idpIntrospectURL, err := requireEnvString("IDP_INTROSPECT_URL")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:                port,
		JWTSecret:               jwtSecret,
		EncryptionKey:           encryptionKey,
		CredentialSweepInterval: getEnvDuration("CREDENTIAL_SWEEP_INTERVAL", 1*time.Hour),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			CallerCacheSize:   getEnvInt("CACHE_CALLER_SIZE", 1000),
			CallerCacheTTL:    getEnvDuration("CACHE_CALLER_TTL", 5*time.Minute),
			EndpointCacheSize: getEnvInt("CACHE_ENDPOINT_SIZE", 500),
			EndpointCacheTTL:  getEnvDuration("CACHE_ENDPOINT_TTL", 15*time.Minute),
			TierCacheSize:     getEnvInt("CACHE_TIER_SIZE", 100),
			TierCacheTTL:      getEnvDuration("CACHE_TIER_TTL", 15*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Identity: IdentityProviderConfig{
			TokenURL:        idpTokenURL,
			IntrospectURL:   idpIntrospectURL,
			ClientID:        getEnvString("IDP_CLIENT_ID", ""),
			ClientSecret:    getEnvString("IDP_CLIENT_SECRET", ""),
			Scope:           getEnvString("IDP_SCOPE", "metered"),
			RequestTimeout:  getEnvDuration("IDP_REQUEST_TIMEOUT", 10*time.Second),
			ProbeTimeout:    getEnvDuration("IDP_PROBE_TIMEOUT", 5*time.Second),
			DefaultTokenTTL: getEnvDuration("IDP_DEFAULT_TOKEN_TTL", 1*time.Hour),
		},
		Upstream: UpstreamConfig{
			BaseURL:        upstreamURL,
			RequestTimeout: getEnvDuration("UPSTREAM_REQUEST_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getEnvString("RATE_LIMIT_ENABLED", "true") == "true",
			DefaultPerMinute: getEnvInt("RATE_LIMIT_DEFAULT_PER_MINUTE", 60),
		},
		Archive: ArchiveConfig{
			Enabled:       getEnvString("ARCHIVE_ENABLED", "false") == "true",
			Sink:          getEnvString("ARCHIVE_SINK", "file"),
			BatchSize:     getEnvInt("ARCHIVE_BATCH_SIZE", 100),
			FlushInterval: getEnvDuration("ARCHIVE_FLUSH_INTERVAL", 5*time.Second),
			MaxRetries:    getEnvInt("ARCHIVE_MAX_RETRIES", 3),
			RetryBackoff:  getEnvDuration("ARCHIVE_RETRY_BACKOFF", 1*time.Second),
			UseRedisQueue: getEnvString("ARCHIVE_USE_REDIS_QUEUE", "false") == "true",
			QueueName:     getEnvString("ARCHIVE_QUEUE_NAME", "audit_archive"),
			S3Bucket:      getEnvString("ARCHIVE_S3_BUCKET", ""),
			S3Region:      getEnvString("ARCHIVE_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("ARCHIVE_S3_PREFIX", "audit/"),
			PodName:       getEnvString("POD_NAME", "gateway-0"),
			FilePath:      getEnvString("ARCHIVE_FILE_PATH", "/var/log/meter-gateway/audit-%s.jsonl"),
			FileMaxSize:   getEnvInt64("ARCHIVE_FILE_MAX_SIZE", 10_485_760),
			FileMaxFiles:  getEnvInt("ARCHIVE_FILE_MAX_FILES", 5),
		},
	}

	if cfg.Archive.Enabled && cfg.Archive.Sink == "s3" && cfg.Archive.S3Bucket == "" {
		return nil, fmt.Errorf("ARCHIVE_S3_BUCKET is required when the s3 archive sink is enabled")
	}

	return cfg, nil
}
