package socrata

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-sql/civil"
	"github.com/sirupsen/logrus"

	"cot-lab/internal/domain"
)

const (
	endpointObservations = "observations"
	endpointCatalog      = "catalog"
)

// catalogColumns are the descriptive columns grouped by the catalog query.
var catalogColumns = []string{
	colMarketCode,
	colMarketAndExName,
	colContractMarket,
	colCommodityName,
	colCommodityCode,
	colCommodityGroup,
	colCommoditySubgrp,
	colContractUnits,
}

// FetchObservations returns every report row of one instrument with a report
// date in [start, end], both inclusive, ordered by date.
func (c *Client) FetchObservations(ctx context.Context, reportType domain.ReportType, marketCode string, start, end civil.Date) ([]*domain.Observation, error) {
	if !reportType.IsValid() {
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}

	q := url.Values{}
	q.Set("$where", fmt.Sprintf("%s = %s AND %s between %s and %s",
		colMarketCode, quote(marketCode),
		colReportDate, quote(floatingTimestamp(start)), quote(floatingTimestamp(end))))
	q.Set("$order", colReportDate+" ASC")

	rows, err := c.fetchRows(ctx, endpointObservations, reportType.DatasetID(), q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s observations for %s: %w", reportType, marketCode, err)
	}

	observations := make([]*domain.Observation, 0, len(rows))
	for _, row := range rows {
		o, err := toObservation(reportType, row)
		if err != nil {
			c.logger.WithError(err).WithField("report_type", reportType).Warn("skipping report row")
			continue
		}
		observations = append(observations, o)
	}

	c.logger.WithFields(logrus.Fields{
		"report_type": reportType,
		"market_code": marketCode,
		"start":       start.String(),
		"end":         end.String(),
		"records":     len(observations),
	}).Info("fetched observations")

	return observations, nil
}

// FetchCatalog returns the contract catalog of one report type with the
// oldest available report date of every contract.
func (c *Client) FetchCatalog(ctx context.Context, reportType domain.ReportType) ([]*domain.Contract, error) {
	if !reportType.IsValid() {
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}

	group := strings.Join(catalogColumns, ",")
	q := url.Values{}
	q.Set("$select", fmt.Sprintf("%s,min(%s) AS %s", group, colReportDate, colOldestReportDate))
	q.Set("$group", group)
	q.Set("$order", colMarketCode+" ASC")

	rows, err := c.fetchRows(ctx, endpointCatalog, reportType.DatasetID(), q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s catalog: %w", reportType, err)
	}

	contracts := make([]*domain.Contract, 0, len(rows))
	for _, row := range rows {
		ct, err := toContract(reportType, row)
		if err != nil {
			c.logger.WithError(err).WithField("report_type", reportType).Warn("skipping catalog row")
			continue
		}
		contracts = append(contracts, ct)
	}
	contracts = mergeCatalogRows(contracts)

	c.logger.WithFields(logrus.Fields{
		"report_type": reportType,
		"contracts":   len(contracts),
	}).Info("fetched catalog")

	return contracts, nil
}

// floatingTimestamp renders a date as a SoQL floating timestamp literal.
func floatingTimestamp(d civil.Date) string {
	return d.String() + "T00:00:00.000"
}

// quote renders a SoQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
