package storage

import (
	"context"

	"cot-lab/internal/domain"
)

// ObservationStore provides access to the three observation tables, one per
// report type. Rows are keyed by record id with secondary indexes on market
// code and timestamp.
type ObservationStore interface {
	// Upsert writes observations by record id. Existing ids are overwritten,
	// so repeated writes of the same batch are idempotent. Rows of different
	// report types may share one batch.
	Upsert(ctx context.Context, observations []*domain.Observation) error

	// GetByMarketCode retrieves every row of one instrument. No date filter is
	// applied and callers must not rely on ordering.
	GetByMarketCode(ctx context.Context, reportType domain.ReportType, marketCode string) ([]*domain.Observation, error)

	// GetByTimestamp retrieves every instrument's row for one report date.
	GetByTimestamp(ctx context.Context, reportType domain.ReportType, timestampMs int64) ([]*domain.Observation, error)
}

// ContractStore provides access to the catalog table keyed by
// (report type, market code) with a secondary index on report type.
type ContractStore interface {
	// GetByReportType retrieves the catalog of one report type.
	GetByReportType(ctx context.Context, reportType domain.ReportType) ([]*domain.Contract, error)

	// ReplaceReportType swaps the whole catalog of one report type.
	ReplaceReportType(ctx context.Context, reportType domain.ReportType, contracts []*domain.Contract) error
}
