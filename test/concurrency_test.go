package test

import (
	"context"
	"fmt"
	"linkdump/pkg/domain"
	"linkdump/svc/svc"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentCreateUniqueSlugs(t *testing.T) {
	dumps, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	var wg sync.WaitGroup
	var slugs sync.Map
	var dupes int64

	numGoroutines := 100
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			d, err := dumps.Create(ctx, domain.CreateParams{
				Text:         fmt.Sprintf("https://example.com/%d", idx),
				ExpiryOption: "10",
				ClientID:     fmt.Sprintf("client-%d", idx),
			})
			if err != nil {
				t.Errorf("concurrent create %d failed: %v", idx, err)
				return
			}
			if _, loaded := slugs.LoadOrStore(d.Slug, struct{}{}); loaded {
				atomic.AddInt64(&dupes, 1)
			}
		}(i)
	}

	wg.Wait()
	if dupes > 0 {
		t.Errorf("%d duplicate slugs out of %d creates", dupes, numGoroutines)
	}
}

func TestConcurrentFetchSameSlug(t *testing.T) {
	dumps, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	created, err := dumps.Create(ctx, domain.CreateParams{
		Text:         "# Shared\nhttps://go.dev",
		ExpiryOption: "60",
		ClientID:     "client-a",
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errorCount := int64(0)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := dumps.Fetch(ctx, created.Slug, time.Now())
			if err != nil || d == nil || len(d.Items) != 2 {
				atomic.AddInt64(&errorCount, 1)
			}
		}()
	}

	wg.Wait()
	if errorCount > 0 {
		t.Errorf("%d of 50 concurrent fetches failed", errorCount)
	}
}

func TestConcurrentWriteLimitSingleClient(t *testing.T) {
	// The shared helpers use an effectively unbounded window; this test
	// needs a tight one.
	limited, cleanup := newLimitedService(t, 3, time.Minute)
	defer cleanup()

	ctx := context.Background()
	var wg sync.WaitGroup
	successCount := int64(0)
	limitedCount := int64(0)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := limited.Create(ctx, domain.CreateParams{
				Text:         fmt.Sprintf("https://example.com/%d", idx),
				ExpiryOption: "10",
				ClientID:     "one-client",
			})
			switch {
			case err == nil:
				atomic.AddInt64(&successCount, 1)
			case err == domain.ErrRateLimited:
				atomic.AddInt64(&limitedCount, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()
	if successCount != 3 {
		t.Errorf("expected exactly 3 admitted writes, got %d", successCount)
	}
	if limitedCount != 17 {
		t.Errorf("expected 17 rejected writes, got %d", limitedCount)
	}
}

func newLimitedService(t *testing.T, limit int, window time.Duration) (*svc.Dumps, func()) {
	c := createTestConfig()
	c.RateLimit.WriteLimit = limit
	c.RateLimit.WriteWindow = window
	sqlDB := createTestDB(t, c)
	dumps := svc.NewDumps(sqlDB, createTestLRU(t, 100), nil, createTestWindow(c), c)
	return dumps, func() {
		dumps.Shutdown()
		sqlDB.Close()
	}
}
