package domain

import "fmt"

// ReportType identifies one of the three schema variants of the weekly COT report.
type ReportType string

const (
	ReportFinancialFutures ReportType = "financial_futures"
	ReportDisaggregated    ReportType = "disaggregated"
	ReportLegacy           ReportType = "legacy"
)

// AllReportTypes lists the report types in contract-set order.
var AllReportTypes = []ReportType{
	ReportFinancialFutures,
	ReportDisaggregated,
	ReportLegacy,
}

// String returns the string representation of ReportType.
func (r ReportType) String() string {
	return string(r)
}

// IsValid checks if the report type is a known schema variant.
func (r ReportType) IsValid() bool {
	return r == ReportFinancialFutures || r == ReportDisaggregated || r == ReportLegacy
}

// ParseReportType converts a string into a ReportType.
func ParseReportType(s string) (ReportType, error) {
	r := ReportType(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown report type %q", s)
	}
	return r, nil
}

// DatasetID returns the publicreporting.cftc.gov dataset identifier (futures only).
func (r ReportType) DatasetID() string {
	switch r {
	case ReportFinancialFutures:
		return "gpe5-46if"
	case ReportDisaggregated:
		return "72hh-3qpy"
	case ReportLegacy:
		return "6dca-aqww"
	}
	panic(fmt.Sprintf("unreachable report type %q", string(r)))
}

// Schema returns the trader categories and numeric columns of the report type.
func (r ReportType) Schema() *Schema {
	switch r {
	case ReportFinancialFutures:
		return financialFuturesSchema
	case ReportDisaggregated:
		return disaggregatedSchema
	case ReportLegacy:
		return legacySchema
	}
	panic(fmt.Sprintf("unreachable report type %q", string(r)))
}
