package memory

import (
	"context"
	"errors"
	"testing"

	"cot-lab/internal/domain"
	"cot-lab/internal/storage"
)

func TestContractStore_ReplaceAndGet(t *testing.T) {
	store := NewContractStore()
	ctx := context.Background()

	contracts := []*domain.Contract{
		{MarketCode: "088691", ReportType: domain.ReportDisaggregated, CommodityName: "GOLD"},
		{MarketCode: "067651", ReportType: domain.ReportDisaggregated, CommodityName: "CRUDE OIL"},
	}

	if err := store.ReplaceReportType(ctx, domain.ReportDisaggregated, contracts); err != nil {
		t.Fatalf("ReplaceReportType failed: %v", err)
	}

	result, err := store.GetByReportType(ctx, domain.ReportDisaggregated)
	if err != nil {
		t.Fatalf("GetByReportType failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 contracts, got %d", len(result))
	}
	if result[0].MarketCode != "067651" {
		t.Errorf("Expected ordering by market code, got %s first", result[0].MarketCode)
	}

	other, _ := store.GetByReportType(ctx, domain.ReportLegacy)
	if len(other) != 0 {
		t.Errorf("Expected empty legacy catalog, got %d", len(other))
	}
}

func TestContractStore_ReplaceIsWholesale(t *testing.T) {
	store := NewContractStore()
	ctx := context.Background()

	_ = store.ReplaceReportType(ctx, domain.ReportLegacy, []*domain.Contract{
		{MarketCode: "A", ReportType: domain.ReportLegacy},
		{MarketCode: "B", ReportType: domain.ReportLegacy},
	})
	_ = store.ReplaceReportType(ctx, domain.ReportLegacy, []*domain.Contract{
		{MarketCode: "C", ReportType: domain.ReportLegacy},
	})

	result, _ := store.GetByReportType(ctx, domain.ReportLegacy)
	if len(result) != 1 || result[0].MarketCode != "C" {
		t.Errorf("Expected only contract C after replacement, got %+v", result)
	}
}

func TestContractStore_RejectsMismatchedReportType(t *testing.T) {
	store := NewContractStore()
	ctx := context.Background()

	err := store.ReplaceReportType(ctx, domain.ReportLegacy, []*domain.Contract{
		{MarketCode: "A", ReportType: domain.ReportDisaggregated},
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
