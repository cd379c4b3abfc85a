// Package rangecache serves date ranges of weekly observations from the local
// store, filling missing history from the remote source on demand.
package rangecache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-sql/civil"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"cot-lab/internal/domain"
	"cot-lab/internal/idhash"
	"cot-lab/internal/logging"
	"cot-lab/internal/observability"
	"cot-lab/internal/storage"
)

// Default release schedule: reports are dated Tuesday and published the
// following Friday, once a week.
const (
	DefaultReleaseCadence = 7 * 24 * time.Hour
	DefaultReleaseLag     = 3 * 24 * time.Hour
)

// Gap labels used in logs and metrics.
const (
	gapFull  = "full"
	gapLeft  = "left"
	gapRight = "right"
)

// Source fetches observations of one instrument with report dates in
// [start, end], both inclusive.
type Source interface {
	FetchObservations(ctx context.Context, reportType domain.ReportType, marketCode string, start, end civil.Date) ([]*domain.Observation, error)
}

// Options configures a Cache.
type Options struct {
	Store  storage.ObservationStore
	Source Source

	// ReleaseCadence is the interval between two reports.
	ReleaseCadence time.Duration
	// ReleaseLag is the delay between a report's date and its publication.
	// Zero selects DefaultReleaseLag; the configuration layer rejects an
	// explicit zero.
	ReleaseLag time.Duration

	Logger *logrus.Entry
}

// Cache answers range requests from the store and fills gaps from Source.
// Identical requests in flight share one gap-fill sequence.
type Cache struct {
	store    storage.ObservationStore
	source   Source
	refetch  int64 // ms after the youngest report date before a newer report can exist
	logger   *logrus.Entry
	inflight singleflight.Group
}

// New creates a Cache.
func New(opts Options) (*Cache, error) {
	if opts.Store == nil {
		return nil, errors.New("rangecache: store is required")
	}
	if opts.Source == nil {
		return nil, errors.New("rangecache: source is required")
	}
	if opts.ReleaseCadence <= 0 {
		opts.ReleaseCadence = DefaultReleaseCadence
	}
	if opts.ReleaseLag < 0 {
		return nil, errors.New("rangecache: release lag must not be negative")
	}
	if opts.ReleaseLag == 0 {
		opts.ReleaseLag = DefaultReleaseLag
	}

	return &Cache{
		store:   opts.Store,
		source:  opts.Source,
		refetch: (opts.ReleaseCadence + opts.ReleaseLag).Milliseconds(),
		logger:  logging.OrDiscard(opts.Logger),
	}, nil
}

// GetRange returns every observation of the requested instrument with a
// report date in [Start, End], sorted ascending by timestamp with no
// duplicate ids. Cached rows outside the range may be included.
//
// Once started, a gap-fill sequence runs to completion even if ctx is
// cancelled; cancellation only stops this caller from waiting.
func (c *Cache) GetRange(ctx context.Context, req domain.RangeRequest) ([]*domain.Observation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)
	}

	started := time.Now()
	work := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(req.Key(), func() (interface{}, error) {
		return c.fill(work, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		observability.RecordRangeRequest(req.ReportType.String(), res.Err, time.Since(started).Seconds())
		if res.Err != nil {
			return nil, res.Err
		}
		observations := res.Val.([]*domain.Observation)
		if !res.Shared {
			return observations, nil
		}
		observability.RecordCoalesced("range")
		out := make([]*domain.Observation, len(observations))
		for i, o := range observations {
			out[i] = o.Clone()
		}
		return out, nil
	}
}

// fill runs the gap-fill sequence for one request.
func (c *Cache) fill(ctx context.Context, req domain.RangeRequest) ([]*domain.Observation, error) {
	log := c.logger.WithFields(logrus.Fields{
		"report_type": req.ReportType,
		"market_code": req.MarketCode,
		"start":       req.Start.String(),
		"end":         req.End.String(),
	})

	cached, err := c.load(ctx, req.ReportType, req.MarketCode)
	if err != nil {
		return nil, err
	}

	if len(cached) == 0 {
		fetched, err := c.fetch(ctx, log, gapFull, req, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		if err := c.persist(ctx, fetched); err != nil {
			return nil, err
		}
		return merge(nil, fetched), nil
	}

	sortObservations(cached)
	merged := cached
	oldest := cached[0]
	youngest := cached[len(cached)-1]

	if req.StartMs() < oldest.TimestampMs {
		merged, err = c.fillLeft(ctx, log, req, merged)
		if err != nil {
			return nil, err
		}
	}

	if req.EndMs() > youngest.TimestampMs {
		if req.EndMs() < youngest.TimestampMs+c.refetch {
			log.WithField("youngest", youngest.Date().String()).Debug("right gap not due, no newer report can exist yet")
			observability.RecordGapSkip(gapRight, "not_due")
		} else {
			fetched, err := c.fetch(ctx, log, gapRight, req, youngest.Date(), req.End)
			if err != nil {
				return nil, err
			}
			fetched = carryMarkers(merged, fetched)
			if err := c.persist(ctx, fetched); err != nil {
				return nil, err
			}
			merged = merge(merged, fetched)
		}
	}

	return merged, nil
}

// fillLeft fetches history older than the oldest cached row, marking the
// oldest row once upstream has nothing earlier. merged must be sorted.
func (c *Cache) fillLeft(ctx context.Context, log *logrus.Entry, req domain.RangeRequest, merged []*domain.Observation) ([]*domain.Observation, error) {
	oldest := merged[0]
	if oldest.HistoryExhausted {
		log.WithField("oldest", oldest.Date().String()).Debug("left gap skipped, history exhausted")
		observability.RecordGapSkip(gapLeft, "exhausted")
		return merged, nil
	}

	fetched, err := c.fetch(ctx, log, gapLeft, req, req.Start, oldest.Date().AddDays(-1))
	if err != nil {
		return nil, err
	}

	if len(fetched) > 0 {
		if err := c.persist(ctx, fetched); err != nil {
			return nil, err
		}
		merged = merge(merged, fetched)
		if merged[0].TimestampMs <= req.StartMs() {
			return merged, nil
		}
	}

	// Upstream has nothing before the current oldest row.
	marked := merged[0].Clone()
	marked.HistoryExhausted = true
	if err := c.persist(ctx, []*domain.Observation{marked}); err != nil {
		return nil, err
	}
	observability.RecordHistoryExhausted(req.ReportType.String())
	log.WithField("oldest", marked.Date().String()).Info("history exhausted")

	merged[0] = marked
	return merged, nil
}

func (c *Cache) fetch(ctx context.Context, log *logrus.Entry, gap string, req domain.RangeRequest, start, end civil.Date) ([]*domain.Observation, error) {
	log.WithFields(logrus.Fields{
		"gap":       gap,
		"gap_start": start.String(),
		"gap_end":   end.String(),
	}).Debug("fetching gap")

	fetched, err := c.source.FetchObservations(ctx, req.ReportType, req.MarketCode, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch %s gap: %w", gap, err)
	}
	observability.RecordGapFetch(gap, req.ReportType.String(), len(fetched))
	return fetched, nil
}

func (c *Cache) load(ctx context.Context, reportType domain.ReportType, marketCode string) ([]*domain.Observation, error) {
	started := time.Now()
	cached, err := c.store.GetByMarketCode(ctx, reportType, marketCode)
	observability.RecordStoreOperation("get_by_market_code", time.Since(started).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s/%s: %w", storage.ErrStore, reportType, marketCode, err)
	}
	for _, o := range cached {
		idhash.AssertObservationID(o)
	}
	return cached, nil
}

func (c *Cache) persist(ctx context.Context, observations []*domain.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	started := time.Now()
	err := c.store.Upsert(ctx, observations)
	observability.RecordStoreOperation("upsert", time.Since(started).Seconds(), err)
	if err != nil {
		return fmt.Errorf("%w: upsert %d observations: %w", storage.ErrStore, len(observations), err)
	}
	return nil
}

// carryMarkers keeps the history-exhausted marker on refetched rows that
// already carry it locally, so a boundary refetch never clears it.
func carryMarkers(existing, fetched []*domain.Observation) []*domain.Observation {
	marked := make(map[string]bool)
	for _, o := range existing {
		if o.HistoryExhausted {
			marked[o.ID] = true
		}
	}
	if len(marked) == 0 {
		return fetched
	}
	for i, o := range fetched {
		if marked[o.ID] && !o.HistoryExhausted {
			cp := o.Clone()
			cp.HistoryExhausted = true
			fetched[i] = cp
		}
	}
	return fetched
}

// merge deduplicates by id, later rows winning, and sorts ascending.
func merge(existing, fetched []*domain.Observation) []*domain.Observation {
	byID := make(map[string]*domain.Observation, len(existing)+len(fetched))
	for _, o := range existing {
		byID[o.ID] = o
	}
	for _, o := range fetched {
		byID[o.ID] = o
	}

	out := make([]*domain.Observation, 0, len(byID))
	for _, o := range byID {
		out = append(out, o)
	}
	sortObservations(out)
	return out
}

func sortObservations(observations []*domain.Observation) {
	sort.Slice(observations, func(i, j int) bool {
		if observations[i].TimestampMs != observations[j].TimestampMs {
			return observations[i].TimestampMs < observations[j].TimestampMs
		}
		return observations[i].ID < observations[j].ID
	})
}

// Clip returns the observations of a GetRange result that fall inside the
// request's date bounds.
func Clip(observations []*domain.Observation, req domain.RangeRequest) []*domain.Observation {
	from, to := req.StartMs(), req.EndMs()
	out := make([]*domain.Observation, 0, len(observations))
	for _, o := range observations {
		if o.TimestampMs >= from && o.TimestampMs <= to {
			out = append(out, o)
		}
	}
	return out
}
