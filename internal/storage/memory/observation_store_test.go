package memory

import (
	"context"
	"errors"
	"testing"

	"cot-lab/internal/domain"
	"cot-lab/internal/idhash"
	"cot-lab/internal/storage"
)

func obs(code string, ts int64, rt domain.ReportType, oi float64) *domain.Observation {
	return &domain.Observation{
		ID:          idhash.ComputeObservationID(code, ts, rt),
		MarketCode:  code,
		ReportType:  rt,
		TimestampMs: ts,
		Fields:      map[string]float64{domain.FieldOpenInterest: oi},
	}
}

func TestObservationStore_UpsertAndGet(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()

	batch := []*domain.Observation{
		obs("067651", 3000, domain.ReportLegacy, 30),
		obs("067651", 1000, domain.ReportLegacy, 10),
		obs("067651", 2000, domain.ReportLegacy, 20),
		obs("088691", 1000, domain.ReportLegacy, 5),
	}

	if err := store.Upsert(ctx, batch); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	result, err := store.GetByMarketCode(ctx, domain.ReportLegacy, "067651")
	if err != nil {
		t.Fatalf("GetByMarketCode failed: %v", err)
	}

	if len(result) != 3 {
		t.Fatalf("Expected 3 observations, got %d", len(result))
	}
	for i, want := range []int64{1000, 2000, 3000} {
		if result[i].TimestampMs != want {
			t.Errorf("result[%d].TimestampMs = %d, want %d", i, result[i].TimestampMs, want)
		}
	}
}

func TestObservationStore_UpsertIsIdempotent(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()

	batch := []*domain.Observation{obs("067651", 1000, domain.ReportLegacy, 10)}
	for i := 0; i < 3; i++ {
		if err := store.Upsert(ctx, batch); err != nil {
			t.Fatalf("Upsert #%d failed: %v", i, err)
		}
	}

	if n := store.Len(domain.ReportLegacy); n != 1 {
		t.Errorf("Expected 1 row after repeated upserts, got %d", n)
	}
}

func TestObservationStore_UpsertOverwritesMarker(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()

	o := obs("067651", 1000, domain.ReportLegacy, 10)
	if err := store.Upsert(ctx, []*domain.Observation{o}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	marked := o.Clone()
	marked.HistoryExhausted = true
	if err := store.Upsert(ctx, []*domain.Observation{marked}); err != nil {
		t.Fatalf("Upsert marker failed: %v", err)
	}

	result, _ := store.GetByMarketCode(ctx, domain.ReportLegacy, "067651")
	if len(result) != 1 || !result[0].HistoryExhausted {
		t.Errorf("Expected single row with HistoryExhausted, got %+v", result)
	}
}

func TestObservationStore_TablesAreSeparatedByReportType(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()

	err := store.Upsert(ctx, []*domain.Observation{
		obs("067651", 1000, domain.ReportLegacy, 10),
		obs("067651", 1000, domain.ReportDisaggregated, 10),
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	legacy, _ := store.GetByMarketCode(ctx, domain.ReportLegacy, "067651")
	disagg, _ := store.GetByMarketCode(ctx, domain.ReportDisaggregated, "067651")
	tff, _ := store.GetByMarketCode(ctx, domain.ReportFinancialFutures, "067651")

	if len(legacy) != 1 || len(disagg) != 1 || len(tff) != 0 {
		t.Errorf("Expected 1/1/0 rows, got %d/%d/%d", len(legacy), len(disagg), len(tff))
	}
}

func TestObservationStore_GetByTimestamp(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()

	err := store.Upsert(ctx, []*domain.Observation{
		obs("088691", 1000, domain.ReportLegacy, 1),
		obs("067651", 1000, domain.ReportLegacy, 2),
		obs("067651", 2000, domain.ReportLegacy, 3),
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	result, err := store.GetByTimestamp(ctx, domain.ReportLegacy, 1000)
	if err != nil {
		t.Fatalf("GetByTimestamp failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(result))
	}
	if result[0].MarketCode != "067651" || result[1].MarketCode != "088691" {
		t.Errorf("Expected rows ordered by market code, got %s, %s", result[0].MarketCode, result[1].MarketCode)
	}
}

func TestObservationStore_GetByTimestampIndex(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()

	// Rewriting an id must not duplicate its timestamp index entry.
	for i := 0; i < 3; i++ {
		if err := store.Upsert(ctx, []*domain.Observation{obs("088691", 1000, domain.ReportLegacy, float64(i))}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if err := store.Upsert(ctx, []*domain.Observation{obs("088691", 1000, domain.ReportDisaggregated, 9)}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	result, err := store.GetByTimestamp(ctx, domain.ReportLegacy, 1000)
	if err != nil {
		t.Fatalf("GetByTimestamp failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(result))
	}
	if result[0].OpenInterest() != 2 {
		t.Errorf("Expected latest write, got open interest %v", result[0].OpenInterest())
	}

	empty, err := store.GetByTimestamp(ctx, domain.ReportLegacy, 5000)
	if err != nil {
		t.Fatalf("GetByTimestamp failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no rows for unknown timestamp, got %d", len(empty))
	}
}

func TestObservationStore_InvalidInput(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()

	err := store.Upsert(ctx, []*domain.Observation{nil})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil row, got %v", err)
	}

	_, err = store.GetByMarketCode(ctx, "weekly", "067651")
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown report type, got %v", err)
	}
}

func TestObservationStore_IDMismatchPanics(t *testing.T) {
	store := NewObservationStore()
	o := obs("067651", 1000, domain.ReportLegacy, 10)
	o.ID = "067651|999|legacy"

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for mismatched record id")
		}
	}()
	_ = store.Upsert(context.Background(), []*domain.Observation{o})
}

func TestObservationStore_ReturnsCopies(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()

	_ = store.Upsert(ctx, []*domain.Observation{obs("067651", 1000, domain.ReportLegacy, 10)})

	first, _ := store.GetByMarketCode(ctx, domain.ReportLegacy, "067651")
	first[0].Fields[domain.FieldOpenInterest] = 99

	second, _ := store.GetByMarketCode(ctx, domain.ReportLegacy, "067651")
	if second[0].OpenInterest() != 10 {
		t.Errorf("Expected stored row unaffected by caller mutation, got %v", second[0].OpenInterest())
	}
}
