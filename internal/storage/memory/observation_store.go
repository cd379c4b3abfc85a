package memory

import (
	"context"
	"sort"
	"sync"

	"cot-lab/internal/domain"
	"cot-lab/internal/idhash"
	"cot-lab/internal/storage"
)

// observationTable holds one report type's rows and its secondary indexes.
type observationTable struct {
	rows        map[string]*domain.Observation // keyed by record id
	byMarket    map[string]map[string]struct{} // market code -> record ids
	byTimestamp map[int64]map[string]struct{}  // report timestamp -> record ids
}

func newObservationTable() *observationTable {
	return &observationTable{
		rows:        make(map[string]*domain.Observation),
		byMarket:    make(map[string]map[string]struct{}),
		byTimestamp: make(map[int64]map[string]struct{}),
	}
}

// index adds id to the set stored under key.
func index[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	ids, ok := idx[key]
	if !ok {
		ids = make(map[string]struct{})
		idx[key] = ids
	}
	ids[id] = struct{}{}
}

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu     sync.RWMutex
	tables map[domain.ReportType]*observationTable
}

// NewObservationStore creates a new in-memory observation store.
func NewObservationStore() *ObservationStore {
	tables := make(map[domain.ReportType]*observationTable, len(domain.AllReportTypes))
	for _, rt := range domain.AllReportTypes {
		tables[rt] = newObservationTable()
	}
	return &ObservationStore{tables: tables}
}

// Upsert writes observations by record id.
func (s *ObservationStore) Upsert(_ context.Context, observations []*domain.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	// Validate the whole batch before touching any table
	for _, o := range observations {
		if o == nil || o.MarketCode == "" || !o.ReportType.IsValid() {
			return storage.ErrInvalidInput
		}
		idhash.AssertObservationID(o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range observations {
		t := s.tables[o.ReportType]
		t.rows[o.ID] = o.Clone()
		index(t.byMarket, o.MarketCode, o.ID)
		index(t.byTimestamp, o.TimestampMs, o.ID)
	}

	return nil
}

// GetByMarketCode retrieves every row of one instrument.
func (s *ObservationStore) GetByMarketCode(_ context.Context, reportType domain.ReportType, marketCode string) ([]*domain.Observation, error) {
	t, ok := s.tables[reportType]
	if !ok {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := t.byMarket[marketCode]
	result := make([]*domain.Observation, 0, len(ids))
	for id := range ids {
		result = append(result, t.rows[id].Clone())
	}

	sortByTimestamp(result)
	return result, nil
}

// GetByTimestamp retrieves every instrument's row for one report date.
func (s *ObservationStore) GetByTimestamp(_ context.Context, reportType domain.ReportType, timestampMs int64) ([]*domain.Observation, error) {
	t, ok := s.tables[reportType]
	if !ok {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := t.byTimestamp[timestampMs]
	result := make([]*domain.Observation, 0, len(ids))
	for id := range ids {
		result = append(result, t.rows[id].Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].MarketCode < result[j].MarketCode
	})
	return result, nil
}

// Len returns the number of rows of one report type.
func (s *ObservationStore) Len(reportType domain.ReportType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tables[reportType]; ok {
		return len(t.rows)
	}
	return 0
}

func sortByTimestamp(obs []*domain.Observation) {
	sort.Slice(obs, func(i, j int) bool {
		return obs[i].TimestampMs < obs[j].TimestampMs
	})
}

var _ storage.ObservationStore = (*ObservationStore)(nil)
