package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/color-report-engine/internal/config"
	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/http/handlers"
	"github.com/tbourn/color-report-engine/internal/http/middleware"
	"github.com/tbourn/color-report-engine/internal/inference"
	"github.com/tbourn/color-report-engine/internal/repo"
	"github.com/tbourn/color-report-engine/internal/services"
	"github.com/tbourn/color-report-engine/internal/storage"
)

const routerAnalysis = `{"season":"deep autumn","best_colors":[{"name":"Rust","hex":"#B7410E"}],"worst_colors":[{"name":"Icy Blue","hex":"#A5F2F3"}]}`

// cannedProvider always answers with routerAnalysis and a tiny PNG.
type cannedProvider struct{}

func (cannedProvider) Analyze(context.Context, inference.AnalyzeRequest) (json.RawMessage, error) {
	return json.RawMessage(routerAnalysis), nil
}

func (cannedProvider) EditImage(context.Context, inference.EditRequest) (*inference.Image, error) {
	return &inference.Image{Data: []byte("\x89PNG"), MIMEType: "image/png"}, nil
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:  "/api/v1",
		MaxBodyBytes: 1 << 20,
		RateRPS:      1000,
		RateBurst:    1000,
		CostlyRPS:    1000,
		CostlyBurst:  1000,
		OTEL:         config.OTELConfig{ServiceName: "test-svc"},
	}
}

// newDeps wires real services over db and an in-memory store.
func newDeps(t *testing.T, db *gorm.DB, store *storage.Memory) handlers.Deps {
	t.Helper()
	bus := services.NewBus()
	t.Cleanup(bus.Wait)
	ledger := &services.Ledger{DB: db, FreeBonus: 2}
	cache := &services.Cache{DB: db}
	prov := cannedProvider{}
	return handlers.Deps{
		Sessions: services.NewSessionService(db, repo.Sessions{}),
		Reports: &services.ReportService{
			DB: db, Ledger: ledger, Cache: cache, Store: store, Provider: prov, Events: bus,
			AnalysisTimeout: 5 * time.Second, UploadURLTTL: time.Minute,
		},
		Enrichment: &services.EnrichmentService{DB: db, Cache: cache, Store: store, Provider: prov, Events: bus},
		Credits:    ledger,
		Payments:   &services.PaymentService{DB: db, Ledger: ledger, Events: bus, Secret: "whsec", Packs: map[int64]int64{499: 1}},
		Validator:  &services.ValidatorService{DB: db, Store: store, Provider: prov, Events: bus, FreeUses: 1},
		DB:         db,
	}
}

func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *storage.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	store := storage.NewMemory("https://cdn.test")
	RegisterRoutes(r, newDeps(t, newTestDB(t), store), cfg)
	return r, store
}

func call(r *gin.Engine, method, path, body, owner string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(middleware.HeaderUserEmail, owner)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := call(r, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}

	w = call(r, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w = call(r, http.MethodGet, "/nope", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w = call(r, http.MethodPost, "/health", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if w = call(r, http.MethodGet, "/swagger/index.html", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	if w := call(r, http.MethodPost, "/api/v2/sessions", "", ""); w.Code != http.StatusCreated {
		t.Fatalf("api mounted under custom base path: %d", w.Code)
	}
}

func TestRegisterRoutes_CostlyLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.CostlyRPS = 0
	cfg.CostlyBurst = 1
	r, _ := newRouter(t, cfg)

	// The first costly call spends the only token; its outcome does not matter.
	call(r, http.MethodPost, "/api/v1/sessions/x/analysis", "", "a@example.com")
	w := call(r, http.MethodPost, "/api/v1/sessions/x/analysis", "", "a@example.com")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second costly call = %d, want 429", w.Code)
	}
	// Cheap routes are unaffected.
	if w := call(r, http.MethodGet, "/api/v1/credits/balance", "", "a@example.com"); w.Code != http.StatusOK {
		t.Fatalf("balance = %d", w.Code)
	}
}

func TestReportLifecycle_EndToEnd(t *testing.T) {
	r, store := newRouter(t, testConfig())
	const owner = "Jane@Example.com"

	w := call(r, http.MethodPost, "/api/v1/sessions", `{"owner_email":"`+owner+`"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	var sess domain.Session
	_ = json.Unmarshal(w.Body.Bytes(), &sess)
	base := "/api/v1/sessions/" + sess.ID

	w = call(r, http.MethodPost, base+"/upload-target", `{"filename":"me.jpg","content_type":"image/jpeg"}`, "")
	var target services.UploadTarget
	if err := json.Unmarshal(w.Body.Bytes(), &target); err != nil || w.Code != http.StatusOK || target.ObjectKey == "" {
		t.Fatalf("upload target: %d %s", w.Code, w.Body.String())
	}
	if _, err := store.Put(context.Background(), target.ObjectKey, []byte("\xff\xd8\xff selfie"), "image/jpeg"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if w = call(r, http.MethodPost, base+"/report", `{"image_url":"`+target.PublicURL+`"}`, ""); w.Code != http.StatusCreated {
		t.Fatalf("draft: %d %s", w.Code, w.Body.String())
	}

	// Analysis without identity is refused before anything is charged.
	if w = call(r, http.MethodPost, base+"/analysis", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous analysis = %d", w.Code)
	}
	if w = call(r, http.MethodPost, base+"/analysis", "", "intruder@example.com"); w.Code != http.StatusForbidden {
		t.Fatalf("foreign analysis = %d", w.Code)
	}

	w = call(r, http.MethodPost, base+"/analysis", "", owner)
	var view services.ReportView
	_ = json.Unmarshal(w.Body.Bytes(), &view)
	if w.Code != http.StatusOK || view.Status != domain.ReportProtected || view.Analysis != nil {
		t.Fatalf("analysis: %d %s", w.Code, w.Body.String())
	}
	if w = call(r, http.MethodPost, base+"/analysis", "", owner); w.Code != http.StatusConflict {
		t.Fatalf("second analysis = %d", w.Code)
	}

	// Drapings need an unlocked report.
	if w = call(r, http.MethodPost, base+"/enrichments", `{"variant":"best"}`, owner); w.Code != http.StatusForbidden {
		t.Fatalf("enrich before unlock = %d", w.Code)
	}

	w = call(r, http.MethodPost, base+"/unlock", "", owner)
	view = services.ReportView{}
	_ = json.Unmarshal(w.Body.Bytes(), &view)
	if w.Code != http.StatusOK || view.Status != domain.ReportCompleted || view.Analysis == nil || view.Analysis.Season != "Deep Autumn" || view.Season == nil || *view.Season != "Deep Autumn" {
		t.Fatalf("unlock: %d %s", w.Code, w.Body.String())
	}

	w = call(r, http.MethodGet, "/api/v1/credits/balance", "", owner)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"balance":0`) {
		t.Fatalf("balance after analysis+unlock: %d %s", w.Code, w.Body.String())
	}
	if w = call(r, http.MethodPost, base+"/unlock", "", owner); w.Code != http.StatusConflict {
		t.Fatalf("second unlock = %d", w.Code)
	}

	w = call(r, http.MethodPost, base+"/enrichments", `{"variant":"all"}`, owner)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"best"`) || !strings.Contains(w.Body.String(), `"worst"`) {
		t.Fatalf("enrich all: %d %s", w.Code, w.Body.String())
	}

	w = call(r, http.MethodGet, base+"/report", "", "")
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" || !strings.Contains(w.Body.String(), "/drapings/") {
		t.Fatalf("get report: %d etag=%q %s", w.Code, etag, w.Body.String())
	}
	req := httptest.NewRequest(http.MethodGet, base+"/report", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional get = %d", w.Code)
	}

	if w = call(r, http.MethodPost, base+"/feedback", `{"rating":5}`, ""); w.Code != http.StatusNoContent {
		t.Fatalf("feedback = %d", w.Code)
	}
	w = call(r, http.MethodGet, "/api/v1/credits/history", "", owner)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":3`) {
		t.Fatalf("history: %d %s", w.Code, w.Body.String())
	}
}

func TestIdempotency_BadKeyRejected(t *testing.T) {
	r, _ := newRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/x/unlock", nil)
	req.Header.Set(middleware.HeaderIdempotencyKey, "bad key with spaces")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
		t.Fatalf("bad key: %d %s", w.Code, w.Body.String())
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
