package test

import (
	"fmt"
	"linkdump/cfg"
	"linkdump/svc/cache"
	"linkdump/svc/db"
	"linkdump/svc/lim"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

var (
	envLoadOnce sync.Once
	envLoadErr  error
)

func loadTestEnv() error {
	envLoadOnce.Do(func() {

		paths := []string{
			".env.test",
			"../.env.test",
			"../../.env.test",
		}

		for _, p := range paths {
			if absPath, err := filepath.Abs(p); err == nil {
				if _, err := os.Stat(absPath); err == nil {
					if err := godotenv.Load(absPath); err == nil {
						return
					}
				}
			}
		}

		if os.Getenv("PEPPER") == "" {
			os.Setenv("PEPPER", "0123456789ABCDEF0123456789ABCDEF")
		}
	})
	return envLoadErr
}

func createTestConfig() *cfg.Cfg {

	_ = loadTestEnv()

	c, err := cfg.Load()
	if err != nil {
		return &cfg.Cfg{
			Port:                  "0",
			Environment:           "test",
			LogLevel:              "error",
			DatabasePath:          ":memory:",
			LRUCacheSize:          1000,
			MaxDumpSize:           64 * 1024,
			Pepper:                cfg.NewSecret("0123456789ABCDEF0123456789ABCDEF"),
			IdentRotationInterval: 1 * time.Hour,
			IdentityTimeout:       2 * time.Second,
			CleanupInterval:       10 * time.Minute,
			ContextTimeout:        30 * time.Second,
			RateLimit: cfg.RateLimitCfg{
				WriteLimit:     1000,
				WriteWindow:    60 * time.Second,
				ReadRPM:        100000,
				ReadLocalLimit: 10000,
			},
		}
	}

	c.Port = "0"
	c.Environment = "test"
	c.LogLevel = "error"
	c.DatabasePath = ":memory:"

	// Keep the write limiter out of the way unless a test installs its own.
	c.RateLimit.WriteLimit = 1000

	return c
}

func createTestDB(t *testing.T, c *cfg.Cfg) *db.SQLite {

	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", time.Now().UnixNano())

	maxOpenConns := c.DBMaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = 250
	}
	maxIdleConns := c.DBMaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 25
	}
	queryTimeout := c.DBQueryTimeout
	if queryTimeout == 0 {
		queryTimeout = 10 * time.Second
	}

	sqlDB, err := db.NewSQLiteWithConfig(dsn, maxOpenConns, maxIdleConns, queryTimeout)
	if err != nil {
		t.Fatal(err)
	}
	return sqlDB
}

func createTestLRU(t *testing.T, size int) *cache.LRU {
	lru, err := cache.NewLRU(size)
	if err != nil {
		t.Fatal(err)
	}
	return lru
}

func createTestWindow(c *cfg.Cfg) *lim.WriteWindow {
	return lim.NewWriteWindow(c.RateLimit.WriteLimit, c.RateLimit.WriteWindow)
}
