package main

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cot-lab/internal/domain"
)

func TestParseMarkets(t *testing.T) {
	reqs, err := parseMarkets(" legacy:001602 , disaggregated:067651,")
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, domain.ReportLegacy, reqs[0].ReportType)
	assert.Equal(t, "001602", reqs[0].MarketCode)
	assert.Equal(t, domain.ReportDisaggregated, reqs[1].ReportType)

	empty, err := parseMarkets("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = parseMarkets("legacy")
	assert.Error(t, err)
	_, err = parseMarkets("options:001602")
	assert.Error(t, err)
}

func TestParseBounds(t *testing.T) {
	today := civil.Date{Year: 2024, Month: time.March, Day: 1}

	s, e, err := parseBounds("", "", today)
	require.NoError(t, err)
	assert.Equal(t, today, e)
	assert.Equal(t, today.AddDays(-3*365), s)

	s, e, err = parseBounds("2020-01-07", "2020-12-29", today)
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2020, Month: time.January, Day: 7}, s)
	assert.Equal(t, civil.Date{Year: 2020, Month: time.December, Day: 29}, e)

	_, _, err = parseBounds("2021-01-01", "2020-01-01", today)
	assert.Error(t, err)
	_, _, err = parseBounds("soon", "", today)
	assert.Error(t, err)
}
