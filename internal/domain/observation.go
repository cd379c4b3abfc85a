package domain

import (
	"fmt"
	"time"

	"github.com/golang-sql/civil"
)

// DayMs is one calendar day in milliseconds.
const DayMs int64 = 24 * 60 * 60 * 1000

// Observation is one weekly report row for one instrument and report type.
// Observations are append-only; the only mutation after creation is setting
// HistoryExhausted on the oldest row of an (instrument, type) series.
type Observation struct {
	ID                    string             // MarketCode|TimestampMs|ReportType
	MarketCode            string             // cftc_contract_market_code
	ReportType            ReportType         // schema variant
	TimestampMs           int64              // report date, Unix milliseconds (UTC midnight)
	MarketAndExchangeName string             // display name
	CommodityCode         string             // cftc_commodity_code
	Fields                map[string]float64 // schema-specific numeric payload
	HistoryExhausted      bool               // no older rows exist upstream
}

// Date returns the report date.
func (o *Observation) Date() civil.Date {
	return MsToDate(o.TimestampMs)
}

// OpenInterest returns total open interest.
func (o *Observation) OpenInterest() float64 {
	return o.Fields[FieldOpenInterest]
}

// Field returns a numeric column by name.
func (o *Observation) Field(column string) (float64, bool) {
	v, ok := o.Fields[column]
	return v, ok
}

// Positions returns long and short positions of a trader category.
func (o *Observation) Positions(category string) (long, short float64, err error) {
	c, ok := o.ReportType.Schema().Category(category)
	if !ok {
		return 0, 0, fmt.Errorf("report type %s has no trader category %q", o.ReportType, category)
	}
	return o.Fields[c.Long], o.Fields[c.Short], nil
}

// Clone returns a deep copy.
func (o *Observation) Clone() *Observation {
	c := *o
	if o.Fields != nil {
		c.Fields = make(map[string]float64, len(o.Fields))
		for k, v := range o.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

// DateToMs converts a calendar date to UTC midnight in Unix milliseconds.
func DateToMs(d civil.Date) int64 {
	return d.In(time.UTC).UnixMilli()
}

// MsToDate converts Unix milliseconds to the UTC calendar date.
func MsToDate(ms int64) civil.Date {
	return civil.DateOf(time.UnixMilli(ms).UTC())
}
