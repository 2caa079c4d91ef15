package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/repo"
)

func TestSessionService_Create(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	anon, err := f.sessions.Create(ctx, "", "203.0.113.9")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if anon.OwnerEmail != nil || anon.ClientIP == nil || *anon.ClientIP != "203.0.113.9" {
		t.Fatalf("unexpected session: %+v", anon)
	}

	owned, err := f.sessions.Create(ctx, "  Jane@Example.COM ", "")
	if err != nil {
		t.Fatalf("create owned: %v", err)
	}
	if owned.OwnerEmail == nil || *owned.OwnerEmail != "jane@example.com" {
		t.Fatalf("owner not normalized: %+v", owned.OwnerEmail)
	}

	if _, err := f.sessions.Create(ctx, "not-an-email", ""); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("want ErrInvalidEmail, got %v", err)
	}
}

func TestSessionService_Claim_FirstWriteWins(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	sess, _ := f.sessions.Create(ctx, "", "")

	ok, err := f.sessions.Claim(ctx, sess.ID, "first@example.com")
	if err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	ok, err = f.sessions.Claim(ctx, sess.ID, "FIRST@example.com")
	if err != nil || !ok {
		t.Fatalf("repeat claim by owner should be a no-op success: %v %v", ok, err)
	}
	ok, err = f.sessions.Claim(ctx, sess.ID, "second@example.com")
	if err != nil || ok {
		t.Fatalf("second claimant must not win: %v %v", ok, err)
	}

	got, _ := f.sessions.Get(ctx, sess.ID)
	if *got.OwnerEmail != "first@example.com" {
		t.Fatalf("owner overwritten: %s", *got.OwnerEmail)
	}
}

func TestSessionService_Claim_Concurrent(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	sess, _ := f.sessions.Create(ctx, "", "")

	emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for _, e := range emails {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.sessions.Claim(ctx, sess.ID, e)
			if err != nil {
				t.Errorf("claim %s: %v", e, err)
				return
			}
			if ok {
				mu.Lock()
				wins = append(wins, e)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("winners = %v, want exactly one", wins)
	}
	got, _ := f.sessions.Get(ctx, sess.ID)
	if *got.OwnerEmail != wins[0] {
		t.Fatalf("stored owner %s, winner %s", *got.OwnerEmail, wins[0])
	}
}

func TestSessionService_Claim_Errors(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	if _, err := f.sessions.Claim(ctx, "missing", "a@example.com"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
	sess, _ := f.sessions.Create(ctx, "", "")
	if _, err := f.sessions.Claim(ctx, sess.ID, "  "); !errors.Is(err, ErrNoOwner) {
		t.Fatalf("want ErrNoOwner, got %v", err)
	}
}

func TestSessionService_Delete(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	id := f.draft(t, "owner@example.com", nil)

	if err := f.sessions.Delete(ctx, id, "intruder@example.com"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
	if err := f.sessions.Delete(ctx, id, "Owner@Example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetReport(ctx, f.db, id); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("report survived delete: %v", err)
	}
	var n int64
	f.db.Model(&domain.Image{}).Where("session_id = ?", id).Count(&n)
	if n != 0 {
		t.Fatalf("images survived delete: %d", n)
	}
	if err := f.sessions.Delete(ctx, id, "owner@example.com"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

// stubSessions lets the service be tested without a database.
type stubSessions struct {
	repo.Sessions
	claimErr error
}

func (s stubSessions) ClaimSession(ctx context.Context, db *gorm.DB, id, owner string) (bool, error) {
	return false, s.claimErr
}

func TestSessionService_Claim_RepoError(t *testing.T) {
	boom := errors.New("db down")
	s := NewSessionService(nil, stubSessions{claimErr: boom})
	if _, err := s.Claim(context.Background(), "x", "a@example.com"); !errors.Is(err, boom) {
		t.Fatalf("want repo error, got %v", err)
	}
}
