package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyHelpers_DefaultsAndTypes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected no key")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay flag must read as false")
	}

	if owner, _ := IdempotencyScope(c); owner != anonymousOwner {
		t.Fatalf("owner fallback = %q", owner)
	}
	c.Set(ctxKeyOwner, "a@example.com")
	if owner, _ := IdempotencyScope(c); owner != "a@example.com" {
		t.Fatalf("owner = %q", owner)
	}
}

func TestIdempotencyValidator_NoHeader_SkipsLookup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	called := false
	r.Use(IdempotencyValidator(IdempotencyOptions{}, func(context.Context, string, string, string, time.Time) (string, bool, error) {
		called = true
		return "", false, nil
	}))
	r.POST("/sessions/:id/unlock", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("key should not be present when header missing")
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions/s1/unlock", nil))
	if w.Code != http.StatusNoContent || called {
		t.Fatalf("code=%d lookupCalled=%v", w.Code, called)
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		{"default pattern", IdempotencyOptions{}, "has space"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(IdempotencyValidator(tc.opts, nil))
			r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req.Header.Set(HeaderIdempotencyKey, tc.key)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["code"] != "bad_idempotency_key" {
				t.Fatalf("unexpected body %s (%v)", w.Body.String(), err)
			}
		})
	}
}

func TestIdempotencyValidator_LookupMissAndHit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(t *testing.T, exists bool, header string) *gin.Context {
		t.Helper()
		var seen *gin.Context
		r := gin.New()
		r.Use(Identity())
		r.Use(IdempotencyValidator(IdempotencyOptions{}, func(_ context.Context, owner, sessionID, key string, now time.Time) (string, bool, error) {
			if owner != "buyer@example.com" || sessionID != "s-42" || key != "k-9" || now.IsZero() {
				t.Fatalf("lookup args: owner=%q session=%q key=%q now=%v", owner, sessionID, key, now)
			}
			return "analysis", exists, nil
		}))
		r.POST("/sessions/:id/analysis", func(c *gin.Context) {
			seen = c.Copy()
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/sessions/s-42/analysis", nil)
		req.Header.Set(HeaderIdempotencyKey, "k-9")
		req.Header.Set(HeaderUserEmail, header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status %d", w.Code)
		}
		return seen
	}

	miss := run(t, false, "buyer@example.com")
	if IsReplay(miss) || IsRateBypass(miss) || ReplayedOperation(miss) != "" {
		t.Fatalf("miss must not mark replay")
	}
	if k, ok := GetIdempotencyKey(miss); !ok || k != "k-9" {
		t.Fatalf("key not stashed: %q", k)
	}

	hit := run(t, true, "  Buyer@Example.com ")
	if !IsReplay(hit) || !IsRateBypass(hit) || ReplayedOperation(hit) != "analysis" {
		t.Fatalf("hit must mark replay, bypass and the recorded operation: %q", ReplayedOperation(hit))
	}
}
