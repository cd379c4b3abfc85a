package memory

import (
	"context"
	"sort"
	"sync"

	"cot-lab/internal/domain"
	"cot-lab/internal/storage"
)

// ContractStore is an in-memory implementation of storage.ContractStore.
type ContractStore struct {
	mu   sync.RWMutex
	data map[domain.ReportType]map[string]*domain.Contract // report type -> market code
}

// NewContractStore creates a new in-memory contract store.
func NewContractStore() *ContractStore {
	return &ContractStore{
		data: make(map[domain.ReportType]map[string]*domain.Contract),
	}
}

// GetByReportType retrieves the catalog of one report type, ordered by market code.
func (s *ContractStore) GetByReportType(_ context.Context, reportType domain.ReportType) ([]*domain.Contract, error) {
	if !reportType.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.data[reportType]
	result := make([]*domain.Contract, 0, len(rows))
	for _, c := range rows {
		contractCopy := *c
		result = append(result, &contractCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].MarketCode < result[j].MarketCode
	})
	return result, nil
}

// ReplaceReportType swaps the whole catalog of one report type.
func (s *ContractStore) ReplaceReportType(_ context.Context, reportType domain.ReportType, contracts []*domain.Contract) error {
	if !reportType.IsValid() {
		return storage.ErrInvalidInput
	}

	rows := make(map[string]*domain.Contract, len(contracts))
	for _, c := range contracts {
		if c == nil || c.MarketCode == "" || c.ReportType != reportType {
			return storage.ErrInvalidInput
		}
		contractCopy := *c
		rows[c.MarketCode] = &contractCopy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[reportType] = rows
	return nil
}

var _ storage.ContractStore = (*ContractStore)(nil)
