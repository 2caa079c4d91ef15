package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/inference"
	"github.com/tbourn/color-report-engine/internal/repo"
	"github.com/tbourn/color-report-engine/internal/storage"
)

const testAnalysis = `{"season":"true winter","undertone":"cool","contrast":"high","summary":"Crisp and icy.",
"best_colors":[{"name":"Emerald","hex":"#009B77"},{"name":"Icy Pink","hex":"#F4C2C2"}],
"worst_colors":[{"name":"Mustard","hex":"#E1AD01"}],"metals":["silver"]}`

// newSvcDB opens a private in-memory database with every model migrated.
// A single connection serializes writers the way row locks would.
func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeProvider is a scripted inference.Provider.
type fakeProvider struct {
	mu           sync.Mutex
	analysis     string
	analyzeErr   error
	analyzeCalls int

	edited    []byte
	editErr   error
	editCalls int
	editDelay time.Duration
}

func (p *fakeProvider) Analyze(ctx context.Context, req inference.AnalyzeRequest) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyzeCalls++
	if p.analyzeErr != nil {
		return nil, p.analyzeErr
	}
	if len(req.Image.Data) == 0 {
		return nil, fmt.Errorf("no image bytes")
	}
	return json.RawMessage(p.analysis), nil
}

func (p *fakeProvider) EditImage(ctx context.Context, req inference.EditRequest) (*inference.Image, error) {
	p.mu.Lock()
	p.editCalls++
	delay, err, data := p.editDelay, p.editErr, p.edited
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if !strings.Contains(req.Instruction, "Recolor only") {
		return nil, fmt.Errorf("unexpected instruction %q", req.Instruction)
	}
	return &inference.Image{Data: data, MIMEType: "image/png"}, nil
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	fn(p)
	p.mu.Unlock()
}

func (p *fakeProvider) calls() (analyze, edit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analyzeCalls, p.editCalls
}

// fixture wires every service over one database, store and provider.
type fixture struct {
	db       *gorm.DB
	store    *storage.Memory
	provider *fakeProvider
	bus      *Bus

	ledger   *Ledger
	sessions *SessionService
	reports  *ReportService
	enrich   *EnrichmentService
	payments *PaymentService
	outfits  *ValidatorService
}

func newFixture(t *testing.T, freeBonus int64) *fixture {
	t.Helper()
	db := newSvcDB(t)
	store := storage.NewMemory("https://cdn.test")
	prov := &fakeProvider{analysis: testAnalysis, edited: []byte("\x89PNG draped")}
	bus := NewBus()
	t.Cleanup(bus.Wait)

	ledger := &Ledger{DB: db, FreeBonus: freeBonus}
	cache := &Cache{DB: db}
	return &fixture{
		db:       db,
		store:    store,
		provider: prov,
		bus:      bus,
		ledger:   ledger,
		sessions: NewSessionService(db, repo.Sessions{}),
		reports: &ReportService{
			DB: db, Ledger: ledger, Cache: cache, Store: store, Provider: prov, Events: bus,
			AnalysisTimeout: 5 * time.Second, UploadURLTTL: time.Minute,
		},
		enrich: &EnrichmentService{
			DB: db, Cache: cache, Store: store, Provider: prov, Events: bus, Timeout: 5 * time.Second,
		},
		payments: &PaymentService{
			DB: db, Ledger: ledger, Events: bus,
			Secret: "whsec_test", Tolerance: 5 * time.Minute,
			Packs: map[int64]int64{499: 1, 999: 3},
		},
		outfits: &ValidatorService{
			DB: db, Store: store, Provider: prov, Events: bus, FreeUses: 2, Timeout: 5 * time.Second,
		},
	}
}

// upload stores a photo as the client would after a presigned PUT.
func (f *fixture) upload(t *testing.T, key string) string {
	t.Helper()
	url, err := f.store.Put(context.Background(), key, []byte("\xff\xd8\xff photo "+key), "image/jpeg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	return url
}

// draft creates a session owned by owner (empty for anonymous) with a draft
// report and returns the session id.
func (f *fixture) draft(t *testing.T, owner string, hash *string) string {
	t.Helper()
	ctx := context.Background()
	sess, err := f.sessions.Create(ctx, owner, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	url := f.upload(t, "uploads/"+sess.ID+"/photo.jpg")
	if _, err := f.reports.CreateDraft(ctx, sess.ID, url, hash); err != nil {
		t.Fatalf("create draft: %v", err)
	}
	return sess.ID
}

// analyzed returns a session whose report is protected.
func (f *fixture) analyzed(t *testing.T, owner string) string {
	t.Helper()
	id := f.draft(t, owner, nil)
	if _, err := f.reports.RequestAnalysis(context.Background(), id, owner); err != nil {
		t.Fatalf("analysis: %v", err)
	}
	return id
}

// completed returns a session whose report is unlocked.
func (f *fixture) completed(t *testing.T, owner string) string {
	t.Helper()
	id := f.analyzed(t, owner)
	if _, err := f.reports.Unlock(context.Background(), id, owner); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	return id
}

func (f *fixture) status(t *testing.T, sessionID string) domain.ReportStatus {
	t.Helper()
	r, err := repo.GetReport(context.Background(), f.db, sessionID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	return r.Status
}

func (f *fixture) balance(t *testing.T, user string) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func (f *fixture) grant(t *testing.T, user string, n int64) {
	t.Helper()
	if err := f.ledger.Credit(context.Background(), user, n, domain.CreditPurchase, "test grant", nil); err != nil {
		t.Fatalf("grant: %v", err)
	}
}

// assertAudit fails when the balance drifted from the log.
func (f *fixture) assertAudit(t *testing.T, user string) {
	t.Helper()
	if _, _, err := f.ledger.Audit(context.Background(), user); err != nil {
		t.Fatalf("audit %s: %v", user, err)
	}
}

func strp(s string) *string { return &s }
