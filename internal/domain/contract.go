package domain

// Contract is one instrument of the catalog for one report type.
// Catalog rows are replaced wholesale on refresh, never patched.
type Contract struct {
	MarketCode            string     // cftc_contract_market_code, unique within a report type
	ReportType            ReportType // schema variant the row was listed under
	MarketAndExchangeName string     // e.g. "CRUDE OIL, LIGHT SWEET-WTI - ICE FUTURES EUROPE"
	ContractMarketName    string     // short display name
	CommodityName         string
	CommodityCode         string // shared across report types and related contracts
	Group                 string // commodity_group_name
	Subgroup              string // commodity_subgroup_name
	ContractUnits         string
	OldestReportMs        int64 // oldest available report date, Unix milliseconds
}

// Key returns the catalog table key (report type, market code).
func (c *Contract) Key() string {
	return string(c.ReportType) + "|" + c.MarketCode
}

// HasTaxonomy reports whether all fields required by the contracts index are set.
func (c *Contract) HasTaxonomy() bool {
	return c.Group != "" && c.Subgroup != "" && c.CommodityName != "" && c.MarketAndExchangeName != ""
}
