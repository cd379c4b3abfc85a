package socrata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-sql/civil"

	"cot-lab/internal/domain"
)

func reportRow(code, date string, oi string) map[string]interface{} {
	return map[string]interface{}{
		"cftc_contract_market_code": code,
		"report_date_as_yyyy_mm_dd": date,
		"market_and_exchange_names": "EURO FX - CHICAGO MERCANTILE EXCHANGE",
		"cftc_commodity_code":       "099",
		"open_interest_all":         oi,
		"dealer_positions_long_all": "1200",
	}
}

func TestClient_FetchObservations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/resource/gpe5-46if.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		where := r.URL.Query().Get("$where")
		if !strings.Contains(where, "cftc_contract_market_code = '099741'") {
			t.Errorf("where clause missing market code: %s", where)
		}
		if !strings.Contains(where, "'2024-01-01T00:00:00.000' and '2024-01-31T00:00:00.000'") {
			t.Errorf("where clause missing date bounds: %s", where)
		}
		if r.Header.Get("X-App-Token") != "secret" {
			t.Errorf("expected app token header")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			reportRow("099741", "2024-01-02T00:00:00.000", "650000"),
			reportRow("099741", "2024-01-09T00:00:00.000", "655000"),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithAppToken("secret"))
	got, err := client.FetchObservations(context.Background(), domain.ReportFinancialFutures, "099741",
		civil.Date{Year: 2024, Month: time.January, Day: 1}, civil.Date{Year: 2024, Month: time.January, Day: 31})
	if err != nil {
		t.Fatalf("FetchObservations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(got))
	}

	first := got[0]
	if first.TimestampMs != 1704153600000 {
		t.Errorf("expected timestamp 1704153600000, got %d", first.TimestampMs)
	}
	if first.ID != "099741|1704153600000|financial_futures" {
		t.Errorf("unexpected id %s", first.ID)
	}
	if first.OpenInterest() != 650000 {
		t.Errorf("expected open interest 650000, got %v", first.OpenInterest())
	}
	if long, _, _ := first.Positions("dealer"); long != 1200 {
		t.Errorf("expected dealer long 1200, got %v", long)
	}
	if first.HistoryExhausted {
		t.Error("fresh rows must not be marked exhausted")
	}
}

func TestClient_Pagination(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("$offset"))
		if r.URL.Query().Get("$limit") != "2" {
			t.Errorf("expected $limit 2, got %s", r.URL.Query().Get("$limit"))
		}

		var rows []map[string]interface{}
		switch offset {
		case 0:
			rows = append(rows, reportRow("1", "2024-01-02T00:00:00.000", "1"), reportRow("1", "2024-01-09T00:00:00.000", "2"))
		case 2:
			rows = append(rows, reportRow("1", "2024-01-16T00:00:00.000", "3"))
		default:
			t.Errorf("unexpected offset %d", offset)
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithPageSize(2))
	got, err := client.FetchObservations(context.Background(), domain.ReportLegacy, "1",
		civil.Date{Year: 2024, Month: time.January, Day: 1}, civil.Date{Year: 2024, Month: time.January, Day: 31})
	if err != nil {
		t.Fatalf("FetchObservations: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 observations, got %d", len(got))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 page requests, got %d", calls.Load())
	}
}

func TestClient_RetryOn429(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	got, err := client.FetchObservations(context.Background(), domain.ReportLegacy, "1",
		civil.Date{Year: 2024, Month: time.January, Day: 1}, civil.Date{Year: 2024, Month: time.January, Day: 2})
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL,
		WithMaxRetries(2),
		WithRetryDelay(5*time.Millisecond),
	)

	_, err := client.FetchCatalog(context.Background(), domain.ReportLegacy)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", attempts.Load())
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":true,"message":"no such column"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(3), WithRetryDelay(5*time.Millisecond))

	_, err := client.FetchCatalog(context.Background(), domain.ReportDisaggregated)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestClient_NoRetryByDefault(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(5*time.Millisecond))

	_, err := client.FetchCatalog(context.Background(), domain.ReportLegacy)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rows": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	_, err := client.FetchObservations(context.Background(), domain.ReportLegacy, "1",
		civil.Date{Year: 2024, Month: time.January, Day: 1}, civil.Date{Year: 2024, Month: time.January, Day: 2})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Error("malformed body must not be reported as transport failure")
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.FetchCatalog(ctx, domain.ReportLegacy)
	if err == nil {
		t.Fatal("expected error due to context cancellation")
	}
}

func TestClient_FetchCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !strings.Contains(q.Get("$select"), "min(report_date_as_yyyy_mm_dd) AS oldest_report_date") {
			t.Errorf("unexpected $select %s", q.Get("$select"))
		}
		if q.Get("$group") == "" {
			t.Error("expected $group")
		}

		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"cftc_contract_market_code": "067651",
				"market_and_exchange_names": "CRUDE OIL, LIGHT SWEET - NEW YORK MERCANTILE EXCHANGE",
				"commodity_name":            "CRUDE OIL",
				"commodity_group_name":      "NATURAL RESOURCES",
				"commodity_subgroup_name":   "PETROLEUM AND PRODUCTS",
				"oldest_report_date":        "1986-01-15T00:00:00.000",
			},
			{
				"cftc_contract_market_code": "067651",
				"market_and_exchange_names": "WTI-PHYSICAL - NEW YORK MERCANTILE EXCHANGE",
				"commodity_name":            "CRUDE OIL",
				"commodity_group_name":      "NATURAL RESOURCES",
				"commodity_subgroup_name":   "PETROLEUM AND PRODUCTS",
				"oldest_report_date":        "2022-02-08T00:00:00.000",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	got, err := client.FetchCatalog(context.Background(), domain.ReportDisaggregated)
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected renamed rows to collapse into 1 contract, got %d", len(got))
	}
	if got[0].MarketAndExchangeName != "WTI-PHYSICAL - NEW YORK MERCANTILE EXCHANGE" {
		t.Errorf("expected latest name, got %s", got[0].MarketAndExchangeName)
	}
	if got[0].OldestReportMs != 506131200000 {
		t.Errorf("expected oldest 1986-01-15, got %d", got[0].OldestReportMs)
	}
	if got[0].ReportType != domain.ReportDisaggregated {
		t.Errorf("unexpected report type %s", got[0].ReportType)
	}
}
