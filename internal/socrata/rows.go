package socrata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cot-lab/internal/domain"
	"cot-lab/internal/idhash"
)

// Dataset columns.
const (
	colMarketCode       = "cftc_contract_market_code"
	colReportDate       = "report_date_as_yyyy_mm_dd"
	colMarketAndExName  = "market_and_exchange_names"
	colContractMarket   = "contract_market_name"
	colCommodityName    = "commodity_name"
	colCommodityCode    = "cftc_commodity_code"
	colCommodityGroup   = "commodity_group_name"
	colCommoditySubgrp  = "commodity_subgroup_name"
	colContractUnits    = "contract_units"
	colOldestReportDate = "oldest_report_date"
)

// reportDateLayouts are the timestamp forms the API returns for date columns.
var reportDateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// parseReportDate converts a floating timestamp to UTC midnight in Unix milliseconds.
func parseReportDate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, layout := range reportDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unparseable report date %q", s)
}

// rowString returns a trimmed string column, or "" when absent.
func rowString(row map[string]interface{}, col string) string {
	switch v := row[col].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// rowFloat returns a numeric column. Numbers arrive as strings.
func rowFloat(row map[string]interface{}, col string) (float64, bool) {
	switch v := row[col].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toObservation normalizes one report row.
func toObservation(reportType domain.ReportType, row map[string]interface{}) (*domain.Observation, error) {
	code := rowString(row, colMarketCode)
	if code == "" {
		return nil, fmt.Errorf("row without %s", colMarketCode)
	}
	ts, err := parseReportDate(rowString(row, colReportDate))
	if err != nil {
		return nil, err
	}

	schema := reportType.Schema()
	fields := make(map[string]float64, len(schema.Fields))
	for _, col := range schema.Fields {
		if v, ok := rowFloat(row, col); ok {
			fields[col] = v
		}
	}

	return &domain.Observation{
		ID:                    idhash.ComputeObservationID(code, ts, reportType),
		MarketCode:            code,
		ReportType:            reportType,
		TimestampMs:           ts,
		MarketAndExchangeName: rowString(row, colMarketAndExName),
		CommodityCode:         rowString(row, colCommodityCode),
		Fields:                fields,
	}, nil
}

// toContract normalizes one grouped catalog row.
func toContract(reportType domain.ReportType, row map[string]interface{}) (*domain.Contract, error) {
	code := rowString(row, colMarketCode)
	if code == "" {
		return nil, fmt.Errorf("row without %s", colMarketCode)
	}
	oldest, err := parseReportDate(rowString(row, colOldestReportDate))
	if err != nil {
		return nil, err
	}

	return &domain.Contract{
		MarketCode:            code,
		ReportType:            reportType,
		MarketAndExchangeName: rowString(row, colMarketAndExName),
		ContractMarketName:    rowString(row, colContractMarket),
		CommodityName:         rowString(row, colCommodityName),
		CommodityCode:         rowString(row, colCommodityCode),
		Group:                 rowString(row, colCommodityGroup),
		Subgroup:              rowString(row, colCommoditySubgrp),
		ContractUnits:         rowString(row, colContractUnits),
		OldestReportMs:        oldest,
	}, nil
}

// mergeCatalogRows collapses rows of one market code. The API groups by every
// descriptive column, so renamed contracts appear once per name. The most
// recent naming wins and the oldest date is the minimum over all variants.
func mergeCatalogRows(contracts []*domain.Contract) []*domain.Contract {
	byCode := make(map[string]*domain.Contract, len(contracts))
	oldest := make(map[string]int64, len(contracts))
	var order []string

	for _, c := range contracts {
		prev, ok := byCode[c.MarketCode]
		if !ok {
			byCode[c.MarketCode] = c
			oldest[c.MarketCode] = c.OldestReportMs
			order = append(order, c.MarketCode)
			continue
		}
		if c.OldestReportMs < oldest[c.MarketCode] {
			oldest[c.MarketCode] = c.OldestReportMs
		}
		if c.OldestReportMs > prev.OldestReportMs {
			byCode[c.MarketCode] = c
		}
	}

	out := make([]*domain.Contract, 0, len(order))
	for _, code := range order {
		c := byCode[code]
		c.OldestReportMs = oldest[code]
		out = append(out, c)
	}
	return out
}
