package svc

import (
	"context"
	"linkdump/cfg"
	"linkdump/metrics"
	"linkdump/pkg/domain"
	"linkdump/pkg/expiry"
	"linkdump/pkg/parse"
	"linkdump/svc/cache"
	"linkdump/svc/db"
	"linkdump/svc/lim"
	"linkdump/svc/util"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const createAttempts = 5

// Dumps is the ephemeral content store: it admits writes through the
// sliding-window limiter, parses raw text into items, mints slugs, persists
// with an optional deadline, and serves expiration-aware reads.
type Dumps struct {
	db         *db.SQLite
	lru        *cache.LRU
	rdb        *db.Redis
	writes     *lim.WriteWindow
	cfg        *cfg.Cfg
	fetchGroup singleflight.Group
	shutdown   atomic.Bool
	opWg       sync.WaitGroup
}

func NewDumps(sqlDB *db.SQLite, lru *cache.LRU, rdb *db.Redis, writes *lim.WriteWindow, c *cfg.Cfg) *Dumps {
	if sqlDB == nil || lru == nil || writes == nil || c == nil {
		panic("dump service: nil dependency (sqlDB, lru, writes, or cfg)")
	}
	return &Dumps{
		db:     sqlDB,
		lru:    lru,
		rdb:    rdb,
		writes: writes,
		cfg:    c,
	}
}

func (s *Dumps) Shutdown() {
	s.shutdown.Store(true)
	s.opWg.Wait()
	s.writes.Stop()
	util.Debug().Msg("dump service shutdown complete")
}

// Create is the only mutating operation. Order matters: the limiter is
// consulted before any parsing or storage work happens.
func (s *Dumps) Create(ctx context.Context, params domain.CreateParams) (*domain.Dump, error) {
	if s.shutdown.Load() {
		return nil, errors.New("service shutting down")
	}
	s.opWg.Add(1)
	defer s.opWg.Done()

	now := time.Now()
	if admit := s.writes.Admit(params.ClientID, now); !admit.Allowed {
		metrics.RateLimitHits.WithLabelValues("create").Inc()
		return nil, domain.ErrRateLimited
	}
	if int64(len(params.Text)) > s.cfg.MaxDumpSize {
		return nil, domain.ErrDumpTooLarge
	}
	items := parse.Parse(params.Text)
	if len(items) == 0 {
		return nil, domain.ErrContentRequired
	}
	opt, err := expiry.ParseOption(params.ExpiryOption)
	if err != nil {
		return nil, err
	}

	var dump *domain.Dump
	for attempt := 0; attempt < createAttempts; attempt++ {
		slug, err := util.GenSlug(func(slug string) (bool, error) {
			return s.db.Exists(ctx, slug)
		})
		if err != nil {
			util.Error().Err(err).Msg("slug generation failed")
			return nil, errors.Wrap(domain.ErrSlugCollision, err.Error())
		}
		d := &domain.Dump{
			Slug:      slug,
			Items:     items,
			CreatedAt: now,
			ExpiresAt: opt.Resolve(now),
			ClientID:  params.ClientID,
		}
		err = s.db.Create(ctx, d)
		if err == nil {
			dump = d
			break
		}
		if errors.Is(err, db.ErrSlugTaken) {
			// Lost the insert race; mint a fresh slug and try again.
			util.Warn().Str("slug", slug).Msg("slug insert race, regenerating")
			continue
		}
		util.Error().Err(err).Msg("dump create failed")
		return nil, domain.ErrStorageUnavailable
	}
	if dump == nil {
		return nil, domain.ErrSlugCollision
	}

	s.lru.Set(ctx, dump)
	if s.rdb != nil {
		if err := s.rdb.CacheDump(ctx, dump, s.cacheTTL(dump)); err != nil {
			util.Warn().Err(err).Str("slug", dump.Slug).Msg("failed to cache in Redis")
		}
	}
	metrics.DumpCreated.Inc()
	return dump, nil
}

// Fetch serves read-back with expiration-aware visibility. A record past
// its deadline is reported as expired even if still physically stored;
// not-found and expired stay distinct kinds for diagnostics.
func (s *Dumps) Fetch(ctx context.Context, slug string, now time.Time) (*domain.Dump, error) {
	if dump := s.lru.Get(ctx, slug); dump != nil {
		if dump.Expired(now) {
			return nil, s.evictExpired(ctx, slug)
		}
		metrics.CacheHits.Inc()
		metrics.DumpRetrieved.Inc()
		return dump, nil
	}
	metrics.CacheMisses.Inc()

	if s.rdb != nil {
		if dump, err := s.rdb.GetDump(ctx, slug); err == nil && dump != nil {
			if dump.Expired(now) {
				return nil, s.evictExpired(ctx, slug)
			}
			metrics.CacheHits.Inc()
			s.lru.Set(ctx, dump)
			metrics.DumpRetrieved.Inc()
			return dump, nil
		}
	}

	v, err, _ := s.fetchGroup.Do(slug, func() (interface{}, error) {
		return s.db.Get(ctx, slug)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDumpNotFound) {
			return nil, domain.ErrDumpNotFound
		}
		util.Error().Err(err).Str("slug", slug).Msg("dump fetch failed")
		return nil, domain.ErrStorageUnavailable
	}
	dump := v.(*domain.Dump)
	if dump.Expired(now) {
		metrics.DumpExpiredFetches.Inc()
		return nil, domain.ErrDumpExpired
	}
	s.lru.Set(ctx, dump)
	if s.rdb != nil {
		if err := s.rdb.CacheDump(ctx, dump, s.cacheTTL(dump)); err != nil {
			util.Warn().Err(err).Str("slug", slug).Msg("failed to cache in Redis")
		}
	}
	metrics.DumpRetrieved.Inc()
	return dump, nil
}

func (s *Dumps) evictExpired(ctx context.Context, slug string) error {
	s.lru.Delete(slug)
	if s.rdb != nil {
		if err := s.rdb.Delete(ctx, slug); err != nil {
			util.Warn().Err(err).Str("slug", slug).Msg("failed to evict from redis")
		}
	}
	metrics.DumpExpiredFetches.Inc()
	return domain.ErrDumpExpired
}

func (s *Dumps) cacheTTL(d *domain.Dump) time.Duration {
	if d.ExpiresAt == nil {
		return 24 * time.Hour
	}
	return time.Until(*d.ExpiresAt)
}

var (
	cleanerOnce    sync.Once
	cleanerRunning atomic.Bool
)

// StartCleaner launches the physical garbage collector for expired rows.
// It is an optimization only; Fetch never depends on it for correctness.
func StartCleaner(ctx context.Context, db *db.SQLite, interval time.Duration) error {
	if cleanerRunning.Load() {
		return errors.New("cleaner already running")
	}
	cleanerOnce.Do(func() {
		cleanerRunning.Store(true)
		go runCleaner(ctx, db, interval)
	})
	return nil
}
func runCleaner(ctx context.Context, db *db.SQLite, interval time.Duration) {
	defer cleanerRunning.Store(false)
	cleanupRequestID := util.NewRequestID()
	ctx = util.SetRequestID(ctx, cleanupRequestID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().
		Str("request_id", cleanupRequestID).
		Dur("interval", interval).
		Msg("cleanup worker started")
	for {
		select {
		case <-ctx.Done():
			util.Info().
				Str("request_id", cleanupRequestID).
				Msg("cleanup worker shutting down")
			return
		case <-ticker.C:
			deleted, err := db.CleanupExpired(ctx)
			metrics.PruneCycles.Inc()
			if err != nil {
				util.Error().
					Err(err).
					Str("request_id", util.GetRequestID(ctx)).
					Msg("cleanup failed")
			} else if deleted > 0 {
				util.Info().
					Int("deleted", deleted).
					Str("request_id", util.GetRequestID(ctx)).
					Msg("cleanup completed")
			}
		}
	}
}
