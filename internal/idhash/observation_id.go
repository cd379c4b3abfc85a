package idhash

import (
	"fmt"

	"cot-lab/internal/domain"
)

// ComputeObservationID computes the record id of an observation.
// Formula: market_code|timestamp_ms|report_type
// The id is kept readable: stores index it and it sorts by instrument first.
func ComputeObservationID(marketCode string, timestampMs int64, reportType domain.ReportType) string {
	return fmt.Sprintf("%s|%d|%s", marketCode, timestampMs, string(reportType))
}

// AssertObservationID panics when an observation's ID does not match its
// key fields. A mismatch means a record was built or persisted incorrectly.
func AssertObservationID(o *domain.Observation) {
	want := ComputeObservationID(o.MarketCode, o.TimestampMs, o.ReportType)
	if o.ID != want {
		panic(fmt.Sprintf("observation id mismatch: have %q, want %q", o.ID, want))
	}
}
