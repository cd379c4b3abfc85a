package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cot-lab/internal/domain"
	"cot-lab/internal/idhash"
	"cot-lab/internal/storage"
)

// ObservationStore implements storage.ObservationStore using PostgreSQL.
type ObservationStore struct {
	pool *Pool
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(pool *Pool) *ObservationStore {
	return &ObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

const upsertObservation = `
	INSERT INTO %s (
		id, market_code, timestamp_ms, market_and_exchange_name, commodity_code, fields, history_exhausted
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		market_and_exchange_name = EXCLUDED.market_and_exchange_name,
		commodity_code = EXCLUDED.commodity_code,
		fields = EXCLUDED.fields,
		history_exhausted = EXCLUDED.history_exhausted
`

// Upsert writes observations by record id in one transaction.
func (s *ObservationStore) Upsert(ctx context.Context, observations []*domain.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range observations {
		if o == nil || o.MarketCode == "" || !o.ReportType.IsValid() {
			return storage.ErrInvalidInput
		}
		idhash.AssertObservationID(o)

		fields := o.Fields
		if fields == nil {
			fields = map[string]float64{}
		}
		batch.Queue(fmt.Sprintf(upsertObservation, observationTable(o.ReportType)),
			o.ID,
			o.MarketCode,
			o.TimestampMs,
			o.MarketAndExchangeName,
			o.CommodityCode,
			fields,
			o.HistoryExhausted,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert observations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByMarketCode retrieves every row of one instrument, ordered by timestamp ASC.
func (s *ObservationStore) GetByMarketCode(ctx context.Context, reportType domain.ReportType, marketCode string) ([]*domain.Observation, error) {
	if !reportType.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	query := fmt.Sprintf(`
		SELECT id, market_code, timestamp_ms, market_and_exchange_name, commodity_code, fields, history_exhausted
		FROM %s
		WHERE market_code = $1
		ORDER BY timestamp_ms ASC
	`, observationTable(reportType))

	rows, err := s.pool.Query(ctx, query, marketCode)
	if err != nil {
		return nil, fmt.Errorf("get observations by market code: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows, reportType)
}

// GetByTimestamp retrieves every instrument's row for one report date.
func (s *ObservationStore) GetByTimestamp(ctx context.Context, reportType domain.ReportType, timestampMs int64) ([]*domain.Observation, error) {
	if !reportType.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	query := fmt.Sprintf(`
		SELECT id, market_code, timestamp_ms, market_and_exchange_name, commodity_code, fields, history_exhausted
		FROM %s
		WHERE timestamp_ms = $1
		ORDER BY market_code ASC
	`, observationTable(reportType))

	rows, err := s.pool.Query(ctx, query, timestampMs)
	if err != nil {
		return nil, fmt.Errorf("get observations by timestamp: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows, reportType)
}

// scanObservations scans multiple rows into a slice of Observation.
func scanObservations(rows pgx.Rows, reportType domain.ReportType) ([]*domain.Observation, error) {
	var result []*domain.Observation

	for rows.Next() {
		o := domain.Observation{ReportType: reportType}

		err := rows.Scan(
			&o.ID,
			&o.MarketCode,
			&o.TimestampMs,
			&o.MarketAndExchangeName,
			&o.CommodityCode,
			&o.Fields,
			&o.HistoryExhausted,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}

		result = append(result, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}

	return result, nil
}
