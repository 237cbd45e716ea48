package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ストレージバックエンドの種別。
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

// アップロード先の種別。
const (
	UploadLocal = "local"
	UploadS3    = "s3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"sqlite"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	SQLitePath     string `envconfig:"SQLITE_PATH" default:"data/sitepress.db"`
	FileStoreDir   string `envconfig:"FILE_STORE_DIR" default:"data/store"`

	// Auth
	JWTSecret    string        `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiresIn time.Duration `envconfig:"JWT_EXPIRES_IN" default:"168h"`
	BcryptCost   int           `envconfig:"BCRYPT_COST" default:"12"`

	// CORS
	CORSAllowedOrigin string `envconfig:"CORS_ALLOWED_ORIGIN" default:"http://localhost:3000"`

	// Site
	SiteBaseURL string `envconfig:"SITE_BASE_URL" default:"http://localhost:3000"`
	SiteName    string `envconfig:"SITE_NAME" default:"sitepress"`

	// Uploads
	UploadBackend   string `envconfig:"UPLOAD_BACKEND" default:"local"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"uploads"`
	UploadURLPrefix string `envconfig:"UPLOAD_URL_PREFIX" default:"/uploads"`
	UploadMaxBytes  int64  `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`

	// S3
	S3Endpoint      string `envconfig:"S3_ENDPOINT"`
	S3Region        string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket        string `envconfig:"S3_BUCKET"`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY"`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL"`

	// Rate Limit（req/min）
	RateLimitGeneral   int `envconfig:"RATE_LIMIT_GENERAL" default:"300"`
	RateLimitSensitive int `envconfig:"RATE_LIMIT_SENSITIVE" default:"10"`

	// Facet cache
	FacetCacheTTL  time.Duration `envconfig:"FACET_CACHE_TTL" default:"5m"`
	FacetCacheSize int           `envconfig:"FACET_CACHE_SIZE" default:"64"`

	// Whitepaper
	PDFProbeTimeout time.Duration `envconfig:"PDF_PROBE_TIMEOUT" default:"5s"`

	// Worker
	LeadRetentionDays int    `envconfig:"LEAD_RETENTION_DAYS" default:"365"`
	CleanupSchedule   string `envconfig:"CLEANUP_SCHEDULE" default:"0 3 * * *"`

	// Seed
	SeedAdminEmail     string `envconfig:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword  string `envconfig:"SEED_ADMIN_PASSWORD"`
	SeedAdminFirstName string `envconfig:"SEED_ADMIN_FIRST_NAME" default:"Site"`
	SeedAdminLastName  string `envconfig:"SEED_ADMIN_LAST_NAME" default:"Admin"`
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 必須環境変数が未設定、またはバックエンド固有の設定が不足している場合はエラーを返す。
func Load() (*Config, error) {
	// .envは任意。存在しなくてもエラーにしない
	_ = godotenv.Load()

	cfg := &Config{}
	unsetEmptyEnv(cfg)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// unsetEmptyEnv は空文字列が設定された環境変数を未設定に戻す。
// envconfigは未設定の場合にのみdefaultタグを適用するため、空の値もデフォルト扱いにする。
func unsetEmptyEnv(spec any) {
	t := reflect.TypeOf(spec).Elem()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("envconfig")
		if key == "" {
			continue
		}
		if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) == "" {
			os.Unsetenv(key)
		}
	}
}

// validate は項目間の整合性を検証する。
func (c *Config) validate() error {
	var missing []string

	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	switch c.StorageBackend {
	case BackendSQLite, BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %q (sqlite, postgres, file)", c.StorageBackend)
	}

	c.UploadBackend = strings.ToLower(strings.TrimSpace(c.UploadBackend))
	switch c.UploadBackend {
	case UploadLocal:
	case UploadS3:
		for key, val := range map[string]string{
			"S3_ENDPOINT":        c.S3Endpoint,
			"S3_BUCKET":          c.S3Bucket,
			"S3_ACCESS_KEY":      c.S3AccessKey,
			"S3_SECRET_KEY":      c.S3SecretKey,
			"S3_PUBLIC_BASE_URL": c.S3PublicBaseURL,
		} {
			if val == "" {
				missing = append(missing, key)
			}
		}
	default:
		return fmt.Errorf("unsupported UPLOAD_BACKEND: %q (local, s3)", c.UploadBackend)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31: %d", c.BcryptCost)
	}
	if c.JWTExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive")
	}

	return nil
}
