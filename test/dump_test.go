package test

import (
	"context"
	"linkdump/pkg/domain"
	"linkdump/svc/lim"
	"linkdump/svc/svc"
	"linkdump/svc/util"
	"testing"
	"time"

	"github.com/pkg/errors"
)

const mixedText = "# Weekend reading\nhttps://go.dev/blog\nCheck [the proposal](https://github.com/golang/go/issues/1) later\njust a note to self"

func newTestService(t *testing.T) (*svc.Dumps, func()) {
	c := createTestConfig()
	sqlDB := createTestDB(t, c)
	lru := createTestLRU(t, c.LRUCacheSize)
	window := createTestWindow(c)
	dumps := svc.NewDumps(sqlDB, lru, nil, window, c)
	return dumps, func() {
		dumps.Shutdown()
		sqlDB.Close()
	}
}

func TestCreateAndFetchRoundTrip(t *testing.T) {
	dumps, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	created, err := dumps.Create(ctx, domain.CreateParams{
		Text:         mixedText,
		ExpiryOption: "never",
		ClientID:     "client-a",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(created.Slug) != util.SlugLen {
		t.Errorf("slug length = %d, want %d", len(created.Slug), util.SlugLen)
	}
	if created.ExpiresAt != nil {
		t.Errorf("never expiry must store a nil deadline, got %v", created.ExpiresAt)
	}
	if len(created.Items) != 4 {
		t.Fatalf("expected 4 parsed items, got %d", len(created.Items))
	}

	fetched, err := dumps.Fetch(ctx, created.Slug, time.Now())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if fetched.Slug != created.Slug {
		t.Errorf("fetched slug %s != created slug %s", fetched.Slug, created.Slug)
	}
	if len(fetched.Items) != len(created.Items) {
		t.Fatalf("item count changed across round trip: %d != %d", len(fetched.Items), len(created.Items))
	}
	header, ok := fetched.Items[0].(domain.Header)
	if !ok {
		t.Fatalf("first item should be a header, got %T", fetched.Items[0])
	}
	if header.Level != 1 || header.Text != "Weekend reading" {
		t.Errorf("header mismatch: %+v", header)
	}
	link, ok := fetched.Items[2].(domain.Link)
	if !ok {
		t.Fatalf("third item should be a link, got %T", fetched.Items[2])
	}
	if link.URL != "https://github.com/golang/go/issues/1" || link.Title != "the proposal" {
		t.Errorf("markdown link mismatch: %+v", link)
	}
}

func TestFetchUnknownSlug(t *testing.T) {
	dumps, cleanup := newTestService(t)
	defer cleanup()

	_, err := dumps.Fetch(context.Background(), "zzzzzzzzzzz", time.Now())
	if errors.Cause(err) != domain.ErrDumpNotFound {
		t.Errorf("expected ErrDumpNotFound, got %v", err)
	}
}

func TestFetchExpiredDump(t *testing.T) {
	dumps, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	created, err := dumps.Create(ctx, domain.CreateParams{
		Text:         "https://example.com",
		ExpiryOption: "1",
		ClientID:     "client-a",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Still visible before the deadline.
	if _, err := dumps.Fetch(ctx, created.Slug, time.Now()); err != nil {
		t.Fatalf("fetch before expiry failed: %v", err)
	}

	future := time.Now().Add(2 * time.Minute)
	if _, err := dumps.Fetch(ctx, created.Slug, future); errors.Cause(err) != domain.ErrDumpExpired {
		t.Errorf("expected ErrDumpExpired, got %v", err)
	}

	// The row may still be physically present; a repeat fetch that reaches
	// storage must report expired, not found.
	if _, err := dumps.Fetch(ctx, created.Slug, future); errors.Cause(err) != domain.ErrDumpExpired {
		t.Errorf("expected ErrDumpExpired on repeat fetch, got %v", err)
	}
}

func TestCreateRateLimited(t *testing.T) {
	c := createTestConfig()
	c.RateLimit.WriteLimit = 3
	c.RateLimit.WriteWindow = time.Minute
	sqlDB := createTestDB(t, c)
	defer sqlDB.Close()
	lru := createTestLRU(t, 100)
	window := lim.NewWriteWindow(3, time.Minute)
	dumps := svc.NewDumps(sqlDB, lru, nil, window, c)
	defer dumps.Shutdown()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := dumps.Create(ctx, domain.CreateParams{
			Text:         "https://example.com",
			ExpiryOption: "10",
			ClientID:     "same-client",
		}); err != nil {
			t.Fatalf("create %d should be admitted: %v", i+1, err)
		}
	}

	_, err := dumps.Create(ctx, domain.CreateParams{
		Text:         "https://example.com",
		ExpiryOption: "10",
		ClientID:     "same-client",
	})
	if errors.Cause(err) != domain.ErrRateLimited {
		t.Errorf("fourth create should be rejected, got %v", err)
	}

	// A different identity is unaffected.
	if _, err := dumps.Create(ctx, domain.CreateParams{
		Text:         "https://example.com",
		ExpiryOption: "10",
		ClientID:     "other-client",
	}); err != nil {
		t.Errorf("other client should be admitted: %v", err)
	}
}

func TestCreateEmptyContent(t *testing.T) {
	dumps, cleanup := newTestService(t)
	defer cleanup()

	for _, text := range []string{"", "   \n\t\n  "} {
		_, err := dumps.Create(context.Background(), domain.CreateParams{
			Text:         text,
			ExpiryOption: "10",
			ClientID:     "client-a",
		})
		if errors.Cause(err) != domain.ErrContentRequired {
			t.Errorf("text %q: expected ErrContentRequired, got %v", text, err)
		}
	}
}

func TestCreateInvalidExpiry(t *testing.T) {
	dumps, cleanup := newTestService(t)
	defer cleanup()

	_, err := dumps.Create(context.Background(), domain.CreateParams{
		Text:         "https://example.com",
		ExpiryOption: "42",
		ClientID:     "client-a",
	})
	if errors.Cause(err) != domain.ErrInvalidExpiry {
		t.Errorf("expected ErrInvalidExpiry, got %v", err)
	}
}

func TestCreateTooLarge(t *testing.T) {
	c := createTestConfig()
	c.MaxDumpSize = 128
	sqlDB := createTestDB(t, c)
	defer sqlDB.Close()
	window := createTestWindow(c)
	dumps := svc.NewDumps(sqlDB, createTestLRU(t, 100), nil, window, c)
	defer dumps.Shutdown()

	big := make([]byte, 256)
	for i := range big {
		big[i] = 'a'
	}
	_, err := dumps.Create(context.Background(), domain.CreateParams{
		Text:         string(big),
		ExpiryOption: "10",
		ClientID:     "client-a",
	})
	if errors.Cause(err) != domain.ErrDumpTooLarge {
		t.Errorf("expected ErrDumpTooLarge, got %v", err)
	}
}

func TestFetchFromStorageAfterColdStart(t *testing.T) {
	c := createTestConfig()
	sqlDB := createTestDB(t, c)
	defer sqlDB.Close()

	writer := svc.NewDumps(sqlDB, createTestLRU(t, 100), nil, createTestWindow(c), c)
	defer writer.Shutdown()

	ctx := context.Background()
	created, err := writer.Create(ctx, domain.CreateParams{
		Text:         "## Section\nhttps://go.dev",
		ExpiryOption: "60",
		ClientID:     "client-a",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// A second service over the same storage has cold caches, so the read
	// must come from SQLite.
	reader := svc.NewDumps(sqlDB, createTestLRU(t, 100), nil, createTestWindow(c), c)
	defer reader.Shutdown()

	fetched, err := reader.Fetch(ctx, created.Slug, time.Now())
	if err != nil {
		t.Fatalf("fetch after cold start failed: %v", err)
	}
	if len(fetched.Items) != 2 {
		t.Errorf("expected 2 items from storage, got %d", len(fetched.Items))
	}
	if fetched.ExpiresAt == nil {
		t.Error("timed dump should carry a deadline out of storage")
	}
}
