package domain

import (
	"testing"
	"time"
)

func TestIdempotency_UniquePerOwnerSessionKey(t *testing.T) {
	db := newDomainDB(t)
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_owner_session_key") {
		t.Fatalf("expected composite index ux_owner_session_key to exist")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID: "id-1", Owner: "a@x", SessionID: "s1", Key: "k1",
		Operation: "analysis", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.Owner != "a@x" || got.SessionID != "s1" || got.Key != "k1" || got.Operation != "analysis" || got.Status != 200 {
		t.Fatalf("unexpected row: %+v", got)
	}

	dup := *rec
	dup.ID = "id-2"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on (owner, session_id, key)")
	}

	other := *rec
	other.ID = "id-3"
	other.SessionID = "s2"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("different session should insert: %v", err)
	}
}
