package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cot-lab/internal/config"
	"cot-lab/internal/storage/memory"
)

func TestOpenStores_Memory(t *testing.T) {
	stores, err := OpenStores(context.Background(), config.StorageConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	defer stores.Close()

	assert.IsType(t, &memory.ObservationStore{}, stores.Observations)
	assert.IsType(t, &memory.ContractStore{}, stores.Contracts)
}

func TestNew_IndexOverRemoteCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := []map[string]interface{}{}
		if r.URL.Path == "/resource/6dca-aqww.json" {
			rows = append(rows, map[string]interface{}{
				"cftc_contract_market_code": "001602",
				"market_and_exchange_names": "WHEAT-SRW - CHICAGO BOARD OF TRADE",
				"commodity_name":            "WHEAT",
				"commodity_group_name":      "AGRICULTURE",
				"commodity_subgroup_name":   "GRAINS",
				"oldest_report_date":        "1986-01-15T00:00:00.000",
			})
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Remote.BaseURL = server.URL
	cfg.Remote.RequestsPerSecond = 0

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	core, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer core.Close()

	idx, err := core.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())

	sets, err := idx.ContractSets("agriculture", "grains", "wheat")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Len(t, sets[0].Legacy, 1)
}
