package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/color-report-engine/internal/domain"
)

func TestCreateReport_DuplicateAndDraftUpdate(t *testing.T) {
	db := newTestDB(t, Models()...)
	ctx := context.Background()
	s, _ := CreateSession(ctx, db, nil, nil)

	r, err := CreateReport(ctx, db, s.ID, "https://cdn/1.jpg", strp("h1"))
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if r.Status != domain.ReportDraft || r.Payload != nil {
		t.Fatalf("unexpected draft: %+v", r)
	}
	if _, err := CreateReport(ctx, db, s.ID, "x", nil); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	ok, err := UpdateDraftInput(ctx, db, s.ID, "https://cdn/2.jpg", strp("h2"))
	if err != nil || !ok {
		t.Fatalf("UpdateDraftInput = (%v, %v)", ok, err)
	}
	got, _ := GetReport(ctx, db, s.ID)
	if got.InputImageURL != "https://cdn/2.jpg" || got.ImageHash == nil || *got.ImageHash != "h2" {
		t.Fatalf("draft not updated: %+v", got)
	}

	// Not a draft anymore: update must not match.
	if _, err := TransitionReport(ctx, db, s.ID, []domain.ReportStatus{domain.ReportDraft}, domain.ReportProcessing, nil); err != nil {
		t.Fatalf("TransitionReport: %v", err)
	}
	ok, err = UpdateDraftInput(ctx, db, s.ID, "https://cdn/3.jpg", nil)
	if err != nil || ok {
		t.Fatalf("UpdateDraftInput on processing = (%v, %v); want (false, nil)", ok, err)
	}
}

func TestTransitionReport_CompareAndSwap(t *testing.T) {
	db := newTestDB(t, Models()...)
	ctx := context.Background()
	s, _ := CreateSession(ctx, db, nil, nil)
	CreateReport(ctx, db, s.ID, "u", nil)

	draft := []domain.ReportStatus{domain.ReportDraft}
	won, err := TransitionReport(ctx, db, s.ID, draft, domain.ReportProcessing, map[string]any{"processing_at": time.Now().UTC()})
	if err != nil || !won {
		t.Fatalf("first CAS = (%v, %v)", won, err)
	}
	won, err = TransitionReport(ctx, db, s.ID, draft, domain.ReportProcessing, nil)
	if err != nil || won {
		t.Fatalf("second CAS = (%v, %v); want (false, nil)", won, err)
	}

	payload := []byte(`{"schema_version":1}`)
	won, _ = TransitionReport(ctx, db, s.ID, []domain.ReportStatus{domain.ReportProcessing}, domain.ReportProtected,
		map[string]any{"payload": payload, "season": "Autumn"})
	if !won {
		t.Fatalf("processing->protected should win")
	}
	got, _ := GetReport(ctx, db, s.ID)
	if got.Status != domain.ReportProtected || got.Season == nil || *got.Season != "Autumn" || len(got.Payload) == 0 {
		t.Fatalf("unexpected report: %+v", got)
	}

	// Clearing the payload writes NULL.
	TransitionReport(ctx, db, s.ID, []domain.ReportStatus{domain.ReportProtected}, domain.ReportDraft, map[string]any{"payload": nil})
	got, _ = GetReport(ctx, db, s.ID)
	if got.Payload != nil {
		t.Fatalf("payload should be NULL, got %s", got.Payload)
	}
}

func TestFindCompletedByHash(t *testing.T) {
	db := newTestDB(t, Models()...)
	ctx := context.Background()

	a, _ := CreateSession(ctx, db, nil, nil)
	b, _ := CreateSession(ctx, db, nil, nil)
	CreateReport(ctx, db, a.ID, "https://cdn/a.jpg", strp("H"))
	CreateReport(ctx, db, b.ID, "https://cdn/b.jpg", strp("H"))

	if _, err := FindCompletedByHash(ctx, db, "H"); err != ErrNotFound {
		t.Fatalf("drafts must not match, got %v", err)
	}

	db.Model(&domain.Report{}).Where("session_id = ?", a.ID).Update("status", domain.ReportCompleted)
	r, err := FindCompletedByHash(ctx, db, "H")
	if err != nil || r.SessionID != a.ID || r.InputImageURL != "https://cdn/a.jpg" {
		t.Fatalf("FindCompletedByHash = (%+v, %v)", r, err)
	}
}

func TestSetReportFeedback(t *testing.T) {
	db := newTestDB(t, Models()...)
	ctx := context.Background()
	s, _ := CreateSession(ctx, db, nil, nil)
	CreateReport(ctx, db, s.ID, "u", nil)

	if err := SetReportFeedback(ctx, db, s.ID, 4, strp("nice")); err != nil {
		t.Fatalf("SetReportFeedback: %v", err)
	}
	got, _ := GetReport(ctx, db, s.ID)
	if got.Rating == nil || *got.Rating != 4 || got.Feedback == nil || *got.Feedback != "nice" {
		t.Fatalf("feedback not stored: %+v", got)
	}
	if err := SetReportFeedback(ctx, db, "missing", 4, nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecoveryQueries(t *testing.T) {
	db := newTestDB(t, Models()...)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)
	fresh := now.Add(-time.Minute)

	mk := func(status domain.ReportStatus, analyzed, processing *time.Time) string {
		s, _ := CreateSession(ctx, db, nil, nil)
		CreateReport(ctx, db, s.ID, "u", nil)
		db.Model(&domain.Report{}).Where("session_id = ?", s.ID).Updates(map[string]any{
			"status": status, "analyzed_at": analyzed, "processing_at": processing,
		})
		return s.ID
	}
	stale := mk(domain.ReportProtected, &old, nil)
	mk(domain.ReportProtected, &fresh, nil)
	mk(domain.ReportCompleted, &old, nil)
	stuck := mk(domain.ReportProcessing, nil, &old)
	mk(domain.ReportProcessing, nil, &fresh)

	cutoff := now.Add(-24 * time.Hour)
	got, err := ListStaleProtected(ctx, db, cutoff, 10)
	if err != nil || len(got) != 1 || got[0].SessionID != stale {
		t.Fatalf("ListStaleProtected = (%v, %v)", got, err)
	}

	ok, err := MarkRecoverySent(ctx, db, stale, now)
	if err != nil || !ok {
		t.Fatalf("first MarkRecoverySent = (%v, %v)", ok, err)
	}
	ok, err = MarkRecoverySent(ctx, db, stale, now)
	if err != nil || ok {
		t.Fatalf("second MarkRecoverySent = (%v, %v); want (false, nil)", ok, err)
	}
	if got, _ := ListStaleProtected(ctx, db, cutoff, 10); len(got) != 0 {
		t.Fatalf("stamped report still listed: %v", got)
	}

	procs, err := ListStaleProcessing(ctx, db, cutoff, 10)
	if err != nil || len(procs) != 1 || procs[0].SessionID != stuck {
		t.Fatalf("ListStaleProcessing = (%v, %v)", procs, err)
	}
}
