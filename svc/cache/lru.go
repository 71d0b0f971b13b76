package cache

import (
	"context"
	"errors"
	"linkdump/pkg/domain"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// neverExpireCacheTTL bounds how long a never-expiring dump stays hot; the
// durable store remains authoritative.
const neverExpireCacheTTL = 24 * time.Hour

type LRU struct {
	c  *lru.Cache[string, item]
	mu sync.Mutex
}
type item struct {
	dump *domain.Dump
	exp  time.Time
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}
func (l *LRU) Get(ctx context.Context, slug string) *domain.Dump {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.c.Get(slug)
	if !ok {
		return nil
	}
	if time.Now().After(it.exp) {
		l.c.Remove(slug)
		return nil
	}
	return it.dump
}
func (l *LRU) Set(ctx context.Context, d *domain.Dump) {
	ttl := neverExpireCacheTTL
	if d.ExpiresAt != nil {
		ttl = time.Until(*d.ExpiresAt)
		if ttl <= 0 {
			return
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(d.Slug, item{
		dump: d,
		exp:  time.Now().Add(ttl),
	})
}
func (l *LRU) Delete(slug string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(slug)
}
