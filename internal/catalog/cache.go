// Package catalog caches per-report-type contract catalogs and indexes them
// by commodity taxonomy.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"cot-lab/internal/domain"
	"cot-lab/internal/logging"
	"cot-lab/internal/observability"
	"cot-lab/internal/storage"
)

// Source fetches the full catalog of one report type.
type Source interface {
	FetchCatalog(ctx context.Context, reportType domain.ReportType) ([]*domain.Contract, error)
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	Store  storage.ContractStore
	Source Source

	// TTL bounds how long a fetched catalog is served before the next lookup
	// re-fetches it. Zero never expires a non-empty catalog.
	TTL time.Duration

	Logger *logrus.Entry
	Now    func() time.Time
}

// Cache serves catalogs from the store and fetches a report type's whole
// catalog when none is stored. Catalogs are replaced wholesale, never merged.
type Cache struct {
	store    storage.ContractStore
	source   Source
	ttl      time.Duration
	logger   *logrus.Entry
	now      func() time.Time
	inflight singleflight.Group

	mu       sync.Mutex
	loadedAt map[domain.ReportType]time.Time
}

// NewCache creates a Cache.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	if opts.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	if opts.TTL < 0 {
		return nil, errors.New("catalog: ttl must not be negative")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		store:    opts.Store,
		source:   opts.Source,
		ttl:      opts.TTL,
		logger:   logging.OrDiscard(opts.Logger),
		now:      opts.Now,
		loadedAt: make(map[domain.ReportType]time.Time),
	}, nil
}

// GetContracts returns the catalog of one report type, fetching and storing
// it when no entries are cached or the cached catalog outlived the TTL.
func (c *Cache) GetContracts(ctx context.Context, reportType domain.ReportType) ([]*domain.Contract, error) {
	if !reportType.IsValid() {
		return nil, fmt.Errorf("%w: unknown report type %q", storage.ErrInvalidInput, reportType)
	}

	cached, err := c.store.GetByReportType(ctx, reportType)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s catalog: %w", storage.ErrStore, reportType, err)
	}
	if len(cached) > 0 && c.fresh(reportType) {
		observability.RecordCatalogLookup(reportType.String(), "hit", len(cached))
		return cached, nil
	}

	result := "miss"
	if len(cached) > 0 {
		result = "refresh"
	}
	contracts, err := c.load(ctx, reportType)
	if err != nil {
		return nil, err
	}
	observability.RecordCatalogLookup(reportType.String(), result, len(contracts))
	return contracts, nil
}

// Refresh re-fetches the catalog of one report type and replaces the stored one.
func (c *Cache) Refresh(ctx context.Context, reportType domain.ReportType) ([]*domain.Contract, error) {
	if !reportType.IsValid() {
		return nil, fmt.Errorf("%w: unknown report type %q", storage.ErrInvalidInput, reportType)
	}
	contracts, err := c.load(ctx, reportType)
	if err != nil {
		return nil, err
	}
	observability.RecordCatalogLookup(reportType.String(), "refresh", len(contracts))
	return contracts, nil
}

// GetAll returns the catalogs of every report type concatenated in
// domain.AllReportTypes order.
func (c *Cache) GetAll(ctx context.Context) ([]*domain.Contract, error) {
	var all []*domain.Contract
	for _, rt := range domain.AllReportTypes {
		contracts, err := c.GetContracts(ctx, rt)
		if err != nil {
			return nil, err
		}
		all = append(all, contracts...)
	}
	return all, nil
}

// load fetches and stores one catalog. Concurrent loads of the same report
// type share one fetch, which runs to completion even if ctx is cancelled;
// cancellation only stops this caller from waiting.
func (c *Cache) load(ctx context.Context, reportType domain.ReportType) ([]*domain.Contract, error) {
	work := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(reportType.String(), func() (interface{}, error) {
		contracts, err := c.source.FetchCatalog(work, reportType)
		if err != nil {
			return nil, fmt.Errorf("fetch %s catalog: %w", reportType, err)
		}
		if err := c.store.ReplaceReportType(work, reportType, contracts); err != nil {
			return nil, fmt.Errorf("%w: replace %s catalog: %w", storage.ErrStore, reportType, err)
		}

		c.mu.Lock()
		c.loadedAt[reportType] = c.now()
		c.mu.Unlock()

		c.logger.WithFields(logrus.Fields{
			"report_type": reportType,
			"contracts":   len(contracts),
		}).Info("catalog stored")
		return contracts, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			observability.RecordCoalesced("catalog")
		}
		return res.Val.([]*domain.Contract), nil
	}
}

// fresh reports whether a stored catalog may be served without re-fetching.
// A catalog stored by an earlier process has no load time and counts as
// stale once a TTL is set.
func (c *Cache) fresh(reportType domain.ReportType) bool {
	if c.ttl == 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.loadedAt[reportType]
	return ok && c.now().Sub(at) < c.ttl
}
