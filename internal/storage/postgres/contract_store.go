package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cot-lab/internal/domain"
	"cot-lab/internal/storage"
)

// ContractStore implements storage.ContractStore using PostgreSQL.
type ContractStore struct {
	pool *Pool
}

// NewContractStore creates a new ContractStore.
func NewContractStore(pool *Pool) *ContractStore {
	return &ContractStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ContractStore = (*ContractStore)(nil)

// GetByReportType retrieves the catalog of one report type, ordered by market code.
func (s *ContractStore) GetByReportType(ctx context.Context, reportType domain.ReportType) ([]*domain.Contract, error) {
	if !reportType.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT report_type, market_code, market_and_exchange_name, contract_market_name,
			commodity_name, commodity_code, commodity_group, commodity_subgroup,
			contract_units, oldest_report_ms
		FROM contracts
		WHERE report_type = $1
		ORDER BY market_code ASC
	`

	rows, err := s.pool.Query(ctx, query, string(reportType))
	if err != nil {
		return nil, fmt.Errorf("get contracts by report type: %w", err)
	}
	defer rows.Close()

	var result []*domain.Contract
	for rows.Next() {
		var c domain.Contract
		var rt string

		err := rows.Scan(
			&rt,
			&c.MarketCode,
			&c.MarketAndExchangeName,
			&c.ContractMarketName,
			&c.CommodityName,
			&c.CommodityCode,
			&c.Group,
			&c.Subgroup,
			&c.ContractUnits,
			&c.OldestReportMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan contract row: %w", err)
		}

		c.ReportType = domain.ReportType(rt)
		result = append(result, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contract rows: %w", err)
	}

	return result, nil
}

// ReplaceReportType deletes and re-inserts the catalog of one report type atomically.
func (s *ContractStore) ReplaceReportType(ctx context.Context, reportType domain.ReportType, contracts []*domain.Contract) error {
	if !reportType.IsValid() {
		return storage.ErrInvalidInput
	}
	for _, c := range contracts {
		if c == nil || c.MarketCode == "" || c.ReportType != reportType {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM contracts WHERE report_type = $1`, string(reportType)); err != nil {
		return fmt.Errorf("delete contracts: %w", err)
	}

	rows := make([][]interface{}, 0, len(contracts))
	for _, c := range contracts {
		rows = append(rows, []interface{}{
			string(c.ReportType),
			c.MarketCode,
			c.MarketAndExchangeName,
			c.ContractMarketName,
			c.CommodityName,
			c.CommodityCode,
			c.Group,
			c.Subgroup,
			c.ContractUnits,
			c.OldestReportMs,
		})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"contracts"},
		[]string{
			"report_type", "market_code", "market_and_exchange_name", "contract_market_name",
			"commodity_name", "commodity_code", "commodity_group", "commodity_subgroup",
			"contract_units", "oldest_report_ms",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy contracts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
