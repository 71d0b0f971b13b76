package cfg

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port                    string
	Environment             string
	LogLevel                string
	DatabasePath            string
	RedisURL                string
	RedisTLS                bool
	RedisUsername           string
	RedisPassword           Secret
	RedisTimeout            time.Duration
	LRUCacheSize            int
	RateLimit               RateLimitCfg
	MaxDumpSize             int64
	TrustedProxies          []string
	MetricsUser             string
	MetricsPass             Secret
	Pepper                  Secret
	IdentRotationInterval   time.Duration
	IdentityURL             string
	IdentityTimeout         time.Duration
	CleanupInterval         time.Duration
	ContextTimeout          time.Duration
	AllowedOrigins          []string
	DBMaxOpenConns          int
	DBMaxIdleConns          int
	DBQueryTimeout          time.Duration
}

type RateLimitCfg struct {
	// Write path: sliding window per client identity.
	WriteLimit  int
	WriteWindow time.Duration
	// Read path: global RPM guard with a local per-IP fallback.
	ReadRPM        int
	ReadLocalLimit int
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.DatabasePath = getEnv("DATABASE_PATH", "linkdump.db")
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	var err error
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	c.RateLimit.WriteLimit, err = getInt("RATE_LIMIT_WRITES", 3)
	if err != nil {
		return nil, err
	}
	c.RateLimit.WriteWindow, err = getDuration("RATE_LIMIT_WRITE_WINDOW", 60*time.Second)
	if err != nil {
		return nil, err
	}
	c.RateLimit.ReadRPM, err = getInt("RATE_LIMIT_READ_RPM", 60)
	if err != nil {
		return nil, err
	}
	c.RateLimit.ReadLocalLimit, err = getInt("RATE_LIMIT_READ_LOCAL", 30)
	if err != nil {
		return nil, err
	}
	c.MaxDumpSize, err = getInt64("MAX_DUMP_SIZE", 64*1024)
	if err != nil {
		return nil, err
	}
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.Pepper = NewSecret(getEnv("PEPPER", ""))
	c.IdentRotationInterval, err = getDuration("IDENT_ROTATION_INTERVAL", 1*time.Hour)
	if err != nil {
		return nil, err
	}
	c.IdentityURL = getEnv("IDENTITY_URL", "")
	c.IdentityTimeout, err = getDuration("IDENTITY_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}
	c.CleanupInterval, err = getDuration("CLEANUP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{})

	c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 100)
	if err != nil {
		return nil, err
	}
	c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}
	c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	return c, nil
}
func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}

	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required")
	}
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	absDBPath, err := filepath.Abs(c.DatabasePath)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_PATH: %w", err)
	}
	if !strings.HasPrefix(absDBPath, absWorkDir+string(filepath.Separator)) && absDBPath != absWorkDir {
		return fmt.Errorf("DATABASE_PATH must be within working directory %s", absWorkDir)
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}

	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	if c.RateLimit.WriteLimit <= 0 {
		return errors.New("RATE_LIMIT_WRITES must be positive")
	}
	if c.RateLimit.WriteWindow < time.Second {
		return errors.New("RATE_LIMIT_WRITE_WINDOW must be at least 1 second")
	}
	if c.RateLimit.ReadRPM <= 0 {
		return errors.New("RATE_LIMIT_READ_RPM must be positive")
	}

	if c.MaxDumpSize <= 0 {
		return errors.New("MAX_DUMP_SIZE must be positive")
	}
	if c.MaxDumpSize > 10*1024*1024 {
		return errors.New("MAX_DUMP_SIZE cannot exceed 10MB")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else {
			if net.ParseIP(proxy) == nil {
				return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
			}
		}
	}

	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	if len(c.Pepper.Value()) == 0 {
		return errors.New("PEPPER is required")
	}
	if len(c.Pepper.Value()) < 32 {
		return errors.New("PEPPER must be at least 32 bytes")
	}
	if c.IdentRotationInterval < 15*time.Minute {
		return errors.New("IDENT_ROTATION_INTERVAL must be at least 15 minutes")
	}
	if c.IdentRotationInterval > 24*time.Hour {
		return errors.New("IDENT_ROTATION_INTERVAL should not exceed 24 hours")
	}
	if c.IdentityURL != "" && !strings.HasPrefix(c.IdentityURL, "https://") {
		return errors.New("IDENTITY_URL must use https")
	}
	if c.IdentityTimeout < 100*time.Millisecond || c.IdentityTimeout > 10*time.Second {
		return errors.New("IDENTITY_TIMEOUT must be between 100ms and 10s")
	}
	if c.CleanupInterval < time.Minute {
		return errors.New("CLEANUP_INTERVAL must be at least 1 minute")
	}

	return nil
}
func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
	c.Pepper.Wipe()
}
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
