package repo

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"github.com/tbourn/color-report-engine/internal/domain"
)

func TestValidatorQuota_SeedOnceAndConsume(t *testing.T) {
	db := newTestDB(t, Models()...)
	ctx := context.Background()

	if err := EnsureValidatorQuota(ctx, db, "a", 2); err != nil {
		t.Fatalf("EnsureValidatorQuota: %v", err)
	}
	if ok, _ := DecrementValidatorQuota(ctx, db, "a"); !ok {
		t.Fatalf("first use should succeed")
	}
	// Re-seeding does not refill.
	EnsureValidatorQuota(ctx, db, "a", 2)
	q, _ := GetValidatorQuota(ctx, db, "a")
	if q.Times != 1 {
		t.Fatalf("validator_times = %d; want 1", q.Times)
	}
	DecrementValidatorQuota(ctx, db, "a")
	if ok, _ := DecrementValidatorQuota(ctx, db, "a"); ok {
		t.Fatalf("exhausted pool must not go negative")
	}
}

func TestOutfit_CreateAndFinish(t *testing.T) {
	db := newTestDB(t, Models()...)
	ctx := context.Background()

	o, err := CreateOutfit(ctx, db, nil, "a@x.com", "https://cdn/o.jpg")
	if err != nil || o.ID == 0 || o.Status != domain.OutfitProcessing {
		t.Fatalf("CreateOutfit = (%+v, %v)", o, err)
	}
	if err := FinishOutfit(ctx, db, o.ID, domain.OutfitCompleted, datatypes.JSON(`{"match":true}`)); err != nil {
		t.Fatalf("FinishOutfit: %v", err)
	}
	got, err := GetOutfit(ctx, db, o.ID)
	if err != nil || got.Status != domain.OutfitCompleted || len(got.Verdict) == 0 {
		t.Fatalf("GetOutfit = (%+v, %v)", got, err)
	}
}

func TestRecordUnresolvedPayment_KeepsFirst(t *testing.T) {
	db := newTestDB(t, Models()...)
	ctx := context.Background()

	RecordUnresolvedPayment(ctx, db, &domain.UnresolvedPayment{EventID: "evt", Email: "x@y", Reason: "unknown_user"})
	if err := RecordUnresolvedPayment(ctx, db, &domain.UnresolvedPayment{EventID: "evt", Email: "z@y", Reason: "unknown_user"}); err != nil {
		t.Fatalf("redelivery should be a no-op, got %v", err)
	}
	rows, _ := ListUnresolvedPayments(ctx, db, 10)
	if len(rows) != 1 || rows[0].Email != "x@y" {
		t.Fatalf("rows = %+v", rows)
	}
}
