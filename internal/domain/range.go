package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/golang-sql/civil"
)

var validate = validator.New()

// RangeRequest asks for every observation of one instrument between two
// report dates, both inclusive.
type RangeRequest struct {
	MarketCode string     `validate:"required"`
	ReportType ReportType `validate:"required,oneof=financial_futures disaggregated legacy"`
	Start      civil.Date
	End        civil.Date
}

// Validate checks required fields and date ordering.
func (r RangeRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid range request: %w", err)
	}
	if !r.Start.IsValid() || !r.End.IsValid() {
		return fmt.Errorf("invalid range request: malformed date bounds %s..%s", r.Start, r.End)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("invalid range request: end %s before start %s", r.End, r.Start)
	}
	return nil
}

// Key identifies the request for in-flight coalescing.
func (r RangeRequest) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", r.ReportType, r.MarketCode, r.Start, r.End)
}

// StartMs returns the inclusive start bound in Unix milliseconds.
func (r RangeRequest) StartMs() int64 {
	return DateToMs(r.Start)
}

// EndMs returns the inclusive end bound in Unix milliseconds.
func (r RangeRequest) EndMs() int64 {
	return DateToMs(r.End)
}
