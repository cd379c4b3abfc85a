package clickhouse

import (
	"context"
	"fmt"
	"time"

	"cot-lab/internal/domain"
	"cot-lab/internal/idhash"
	"cot-lab/internal/storage"
)

// ObservationStore implements storage.ObservationStore using ClickHouse.
// Upsert appends a new version of each row; ReplacingMergeTree and FINAL
// reads collapse versions to the latest write per id.
type ObservationStore struct {
	conn *Conn
	now  func() time.Time
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(conn *Conn) *ObservationStore {
	return &ObservationStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

// Upsert writes observations by record id, one batch per report type table.
func (s *ObservationStore) Upsert(ctx context.Context, observations []*domain.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	grouped := make(map[domain.ReportType][]*domain.Observation)
	for _, o := range observations {
		if o == nil || o.MarketCode == "" || !o.ReportType.IsValid() {
			return storage.ErrInvalidInput
		}
		idhash.AssertObservationID(o)
		grouped[o.ReportType] = append(grouped[o.ReportType], o)
	}

	version := uint64(s.now().UnixNano())
	for _, rt := range domain.AllReportTypes {
		rows := grouped[rt]
		if len(rows) == 0 {
			continue
		}

		batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`
			INSERT INTO %s (
				id, market_code, timestamp_ms, market_and_exchange_name,
				commodity_code, fields, history_exhausted, version
			)
		`, tableName(rt)))
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}

		for _, o := range rows {
			fields := o.Fields
			if fields == nil {
				fields = map[string]float64{}
			}
			var exhausted uint8
			if o.HistoryExhausted {
				exhausted = 1
			}
			err = batch.Append(
				o.ID, o.MarketCode, o.TimestampMs, o.MarketAndExchangeName,
				o.CommodityCode, fields, exhausted, version,
			)
			if err != nil {
				return fmt.Errorf("append to batch: %w", err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("send batch: %w", err)
		}
	}

	return nil
}

// GetByMarketCode retrieves every row of one instrument, ordered by timestamp ASC.
func (s *ObservationStore) GetByMarketCode(ctx context.Context, reportType domain.ReportType, marketCode string) ([]*domain.Observation, error) {
	if !reportType.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	query := fmt.Sprintf(`
		SELECT id, market_code, timestamp_ms, market_and_exchange_name,
			commodity_code, fields, history_exhausted
		FROM %s FINAL
		WHERE market_code = ?
		ORDER BY timestamp_ms ASC
	`, tableName(reportType))

	rows, err := s.conn.Query(ctx, query, marketCode)
	if err != nil {
		return nil, fmt.Errorf("query by market code: %w", err)
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
		SELECT id, market_code, timestamp_ms, market_and_exchange_name,
			commodity_code, fields, history_exhausted
		FROM %s FINAL
		WHERE timestamp_ms = ?
		ORDER BY market_code ASC
	`, tableName(reportType))

	rows, err := s.conn.Query(ctx, query, timestampMs)
	if err != nil {
		return nil, fmt.Errorf("query by timestamp: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows, reportType)
}

// scanObservations scans multiple rows.
func scanObservations(rows chRows, reportType domain.ReportType) ([]*domain.Observation, error) {
	var result []*domain.Observation

	for rows.Next() {
		o := domain.Observation{ReportType: reportType}
		var exhausted uint8

		err := rows.Scan(
			&o.ID, &o.MarketCode, &o.TimestampMs, &o.MarketAndExchangeName,
			&o.CommodityCode, &o.Fields, &exhausted,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}

		o.HistoryExhausted = exhausted == 1
		result = append(result, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}

	return result, nil
}
