package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port int    `env:"PORT" envDefault:"8080"`

	// ACCOUNT_STORE selects the account repository: postgres | sqlite | redis | memory.
	AccountStore string `env:"ACCOUNT_STORE" envDefault:"postgres"`
	DBURL        string `env:"DATABASE_URL"`
	DB           DBConfig
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"chatauth.db"`
	Redis        RedisConfig

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"72h"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"chatauth"`

	BcryptCost       int  `env:"BCRYPT_COST" envDefault:"10"`
	HashConcurrency  int  `env:"HASH_CONCURRENCY" envDefault:"0"`
	UnifyLoginErrors bool `env:"AUTH_UNIFY_LOGIN_ERRORS" envDefault:"false"`

	Upload UploadConfig

	HTTPMaxBodyBytes int64    `env:"HTTP_MAX_BODY_BYTES" envDefault:"8388608"`
	CORSOrigins      []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	OTelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTelSampleRatio float64 `env:"OTEL_TRACES_SAMPLE_RATIO" envDefault:"1"`
}

// DBConfig is only consulted when DATABASE_URL is empty.
type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"chatauth"`
	Password string `env:"DB_PASSWORD" envDefault:"chatauth"`
	Name     string `env:"DB_NAME" envDefault:"chatauth"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type UploadConfig struct {
	// UPLOAD_DRIVER selects the avatar host: blob | s3.
	Driver         string        `env:"UPLOAD_DRIVER" envDefault:"blob"`
	Timeout        time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"10s"`
	MaxImageBytes  int           `env:"AVATAR_MAX_BYTES" envDefault:"5242880"`
	Prefix         string        `env:"UPLOAD_PREFIX" envDefault:"avatars"`
	PublicBaseURL  string        `env:"UPLOAD_PUBLIC_BASE_URL"`
	BucketURL      string        `env:"UPLOAD_BUCKET_URL" envDefault:"mem://"`
	BreakerFails   int           `env:"UPLOAD_BREAKER_FAILURES" envDefault:"5"`
	BreakerCooloff time.Duration `env:"UPLOAD_BREAKER_COOLDOWN" envDefault:"30s"`

	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DBURL == "" {
		cfg.DBURL = cfg.DB.URL()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// HasherConfig is the part of Config the offline tools need.
type HasherConfig struct {
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

// LoadHasher reads BCRYPT_COST the same way Load does, without requiring
// the server settings.
func LoadHasher() (HasherConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return HasherConfig{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg HasherConfig
	if err := env.Parse(&cfg); err != nil {
		return HasherConfig{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d out of range [4,31]", c.BcryptCost))
	}

	switch c.AccountStore {
	case "postgres", "sqlite", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown ACCOUNT_STORE %q", c.AccountStore))
	}

	switch c.Upload.Driver {
	case "blob":
	case "s3":
		if c.Upload.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when UPLOAD_DRIVER=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown UPLOAD_DRIVER %q", c.Upload.Driver))
	}

	if c.Upload.Timeout <= 0 {
		errs = append(errs, errors.New("UPLOAD_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

func (d DBConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
