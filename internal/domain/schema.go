package domain

// Shared numeric columns present in every report type.
const (
	FieldOpenInterest     = "open_interest_all"
	FieldTradersTotal     = "traders_tot_all"
	FieldNonReportLong    = "nonrept_positions_long_all"
	FieldNonReportShort   = "nonrept_positions_short_all"
	FieldTotalReportLong  = "tot_rept_positions_long_all"
	FieldTotalReportShort = "tot_rept_positions_short"
)

// TraderCategory names one group of reporting traders and its position columns.
// Spread is empty for categories that do not report spreading.
type TraderCategory struct {
	Name   string
	Long   string
	Short  string
	Spread string
}

// Schema describes the numeric payload of one report type.
type Schema struct {
	Categories []TraderCategory
	Fields     []string // every numeric column kept from a row
}

// Category returns the named trader category, or false.
func (s *Schema) Category(name string) (TraderCategory, bool) {
	for _, c := range s.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return TraderCategory{}, false
}

// HasField reports whether column is part of the schema.
func (s *Schema) HasField(column string) bool {
	for _, f := range s.Fields {
		if f == column {
			return true
		}
	}
	return false
}

func newSchema(categories []TraderCategory, extra ...string) *Schema {
	fields := []string{FieldOpenInterest, FieldTradersTotal}
	for _, c := range categories {
		fields = append(fields, c.Long, c.Short)
		if c.Spread != "" {
			fields = append(fields, c.Spread)
		}
	}
	fields = append(fields, extra...)
	return &Schema{Categories: categories, Fields: fields}
}

var nonReportable = TraderCategory{
	Name:  "nonreportable",
	Long:  FieldNonReportLong,
	Short: FieldNonReportShort,
}

var financialFuturesSchema = newSchema([]TraderCategory{
	{Name: "dealer", Long: "dealer_positions_long_all", Short: "dealer_positions_short_all", Spread: "dealer_positions_spread_all"},
	{Name: "asset_manager", Long: "asset_mgr_positions_long", Short: "asset_mgr_positions_short", Spread: "asset_mgr_positions_spread"},
	{Name: "leveraged_funds", Long: "lev_money_positions_long", Short: "lev_money_positions_short", Spread: "lev_money_positions_spread"},
	{Name: "other_reportable", Long: "other_rept_positions_long", Short: "other_rept_positions_short", Spread: "other_rept_positions_spread"},
	nonReportable,
}, FieldTotalReportLong, FieldTotalReportShort)

var disaggregatedSchema = newSchema([]TraderCategory{
	{Name: "producer_merchant", Long: "prod_merc_positions_long", Short: "prod_merc_positions_short"},
	{Name: "swap_dealer", Long: "swap_positions_long_all", Short: "swap__positions_short_all", Spread: "swap__positions_spread_all"},
	{Name: "managed_money", Long: "m_money_positions_long_all", Short: "m_money_positions_short_all", Spread: "m_money_positions_spread"},
	{Name: "other_reportable", Long: "other_rept_positions_long", Short: "other_rept_positions_short", Spread: "other_rept_positions_spread"},
	nonReportable,
}, FieldTotalReportLong, FieldTotalReportShort)

var legacySchema = newSchema([]TraderCategory{
	{Name: "noncommercial", Long: "noncomm_positions_long_all", Short: "noncomm_positions_short_all", Spread: "noncomm_postions_spread_all"},
	{Name: "commercial", Long: "comm_positions_long_all", Short: "comm_positions_short_all"},
	nonReportable,
}, FieldTotalReportLong, "tot_rept_positions_short_all", "traders_noncomm_long_all", "traders_noncomm_short_all", "traders_comm_long_all", "traders_comm_short_all")
