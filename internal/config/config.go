// Package config loads pipeline configuration from an ini file with
// OCCMEMO_* environment overrides and exposes it as typed values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// Config is the runtime configuration shared by the crawler, the pipeline
// and the worker.
type Config struct {
	StoreDir string
	Timezone *time.Location

	// Re-processing window and pacing between documents.
	Window time.Duration
	Pace   time.Duration

	// OCR service.
	OCREndpoint  string
	OCRBucket    string
	OCRTimeout   time.Duration
	AppID        string
	SecretID     string
	SecretKey    string
	SignValidity time.Duration
	SignCacheTTL time.Duration

	// Catalog search feed.
	SearchBaseURL string
	Category      string

	// Optional collaborators; empty means disabled.
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	S3UseSSL      bool
}

const (
	defaultWindow       = 10 * 24 * time.Hour
	defaultPace         = time.Second
	defaultOCREndpoint  = "http://service.image.myqcloud.com/ocr/general"
	defaultOCRBucket    = "test"
	defaultOCRTimeout   = 30 * time.Second
	defaultSignValidity = 600 * time.Second
	defaultSignCacheTTL = 300 * time.Second
	defaultSearchBase   = "https://www.theocc.com/webapps/infomemo-search"
)

// Load reads the ini file at path (a missing file is not an error, the
// environment can carry everything) and applies environment overrides.
func Load(path string) (*Config, error) {
	file := ini.Empty()
	if _, err := os.Stat(path); err == nil {
		file, err = ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	crawl := file.Section("crawl")
	qcloud := file.Section("qcloud")

	cfg := &Config{
		StoreDir:      readEnv("OCCMEMO_STORE_DIR", crawl.Key("dir").String()),
		Window:        readDuration("OCCMEMO_WINDOW", crawl.Key("window").String(), defaultWindow),
		Pace:          readDuration("OCCMEMO_PACE", crawl.Key("pace").String(), defaultPace),
		OCREndpoint:   readEnv("OCCMEMO_OCR_ENDPOINT", orDefault(qcloud.Key("endpoint").String(), defaultOCREndpoint)),
		OCRBucket:     readEnv("OCCMEMO_OCR_BUCKET", orDefault(qcloud.Key("bucket").String(), defaultOCRBucket)),
		OCRTimeout:    readDuration("OCCMEMO_OCR_TIMEOUT", qcloud.Key("timeout").String(), defaultOCRTimeout),
		AppID:         readEnv("OCCMEMO_APP_ID", qcloud.Key("app_id").String()),
		SecretID:      readEnv("OCCMEMO_SECRET_ID", qcloud.Key("secret_id").String()),
		SecretKey:     readEnv("OCCMEMO_SECRET_KEY", qcloud.Key("secret_key").String()),
		SignValidity:  readDuration("OCCMEMO_SIGN_VALIDITY", qcloud.Key("sign_validity").String(), defaultSignValidity),
		SignCacheTTL:  readDuration("OCCMEMO_SIGN_CACHE_TTL", qcloud.Key("sign_cache_ttl").String(), defaultSignCacheTTL),
		SearchBaseURL: readEnv("OCCMEMO_SEARCH_URL", orDefault(crawl.Key("search_url").String(), defaultSearchBase)),
		Category:      readEnv("OCCMEMO_CATEGORY", crawl.Key("category").String()),
		DatabaseURL:   readEnv("OCCMEMO_DATABASE_URL", file.Section("catalog").Key("url").String()),
		RedisAddr:     readEnv("OCCMEMO_REDIS_ADDR", file.Section("queue").Key("addr").String()),
		RedisPassword: readEnv("OCCMEMO_REDIS_PASSWORD", file.Section("queue").Key("password").String()),
		RedisDB:       readInt("OCCMEMO_REDIS_DB", file.Section("queue").Key("db").String(), 0),
		S3Endpoint:    readEnv("OCCMEMO_S3_ENDPOINT", file.Section("archive").Key("endpoint").String()),
		S3AccessKey:   readEnv("OCCMEMO_S3_ACCESS_KEY", file.Section("archive").Key("access_key").String()),
		S3SecretKey:   readEnv("OCCMEMO_S3_SECRET_KEY", file.Section("archive").Key("secret_key").String()),
		S3Bucket:      readEnv("OCCMEMO_S3_BUCKET", orDefault(file.Section("archive").Key("bucket").String(), "occ-memo-artifacts")),
		S3UseSSL:      readBool("OCCMEMO_S3_USE_SSL", file.Section("archive").Key("use_ssl").String(), false),
	}

	tzName := readEnv("OCCMEMO_TIMEZONE", orDefault(crawl.Key("timezone").String(), "Local"))
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tzName, err)
	}
	cfg.Timezone = loc

	if cfg.StoreDir == "" {
		return nil, fmt.Errorf("store dir is required (config [crawl] dir or OCCMEMO_STORE_DIR)")
	}
	if cfg.SignCacheTTL >= cfg.SignValidity {
		return nil, fmt.Errorf("sign cache ttl %s must be shorter than sign validity %s", cfg.SignCacheTTL, cfg.SignValidity)
	}
	return cfg, nil
}

// RequireOCRCredentials validates the credential triple needed by OCR runs.
// The crawl command works without it, so Load does not enforce this.
func (c *Config) RequireOCRCredentials() error {
	if c.AppID == "" || c.SecretID == "" || c.SecretKey == "" {
		return fmt.Errorf("ocr credentials are required ([qcloud] app_id/secret_id/secret_key)")
	}
	return nil
}

func readEnv(key, fileValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fileValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func readDuration(key, fileValue string, def time.Duration) time.Duration {
	raw := readEnv(key, fileValue)
	if raw == "" {
		return def
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed
	}
	// Bare numbers are seconds, matching the original config files.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func readInt(key, fileValue string, def int) int {
	raw := readEnv(key, fileValue)
	if raw == "" {
		return def
	}
	if parsed, err := strconv.Atoi(raw); err == nil {
		return parsed
	}
	return def
}

func readBool(key, fileValue string, def bool) bool {
	raw := readEnv(key, fileValue)
	if raw == "" {
		return def
	}
	if parsed, err := strconv.ParseBool(raw); err == nil {
		return parsed
	}
	return def
}
