// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for the billable POST routes
// (analysis, unlock, enrichment). The middleware only validates and stashes
// the key and asks a lookup whether a completed result already exists for
// (owner, session, key), and for which operation. Handlers decide how to
// serve a replay: a key reused for a different operation is refused, a
// matching one is answered with the current state instead of running the
// operation again.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from a
// previously completed request.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// anonymousOwner scopes keys sent without an identity header.
const anonymousOwner = "anonymous"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyIdemOp     = "idem.operation"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found a completed request for this key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ReplayedOperation returns the operation recorded for the replayed key, or
// "" when the request is not a replay.
func ReplayedOperation(c *gin.Context) string {
	if !IsReplay(c) {
		return ""
	}
	return c.GetString(ctxKeyIdemOp)
}

// IdempotencyScope returns the (owner, session) pair a key is bound to.
// Requests without an identity share the "anonymous" owner.
func IdempotencyScope(c *gin.Context) (owner, sessionID string) {
	owner = OwnerFrom(c)
	if owner == "" {
		owner = anonymousOwner
	}
	return owner, c.Param("id")
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 mean 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a still-valid result exists for
// (owner, sessionID, key) at now and the operation it was recorded for.
// TTL is enforced by the implementation.
type IdempotencyLookup func(ctx context.Context, owner, sessionID, key string, now time.Time) (operation string, exists bool, err error)

// IdempotencyValidator validates an Idempotency-Key header when present and
// marks replays so the rate limiter lets them through for free.
//
//   - no header: no-op
//   - malformed header: 400 bad_idempotency_key
//   - lookup hit: IsReplay(c) == true, ReplayedOperation(c) names the
//     recorded operation and rate limiting is bypassed
//
// Lookup errors are treated as a miss; the operation itself is still safe to
// repeat because every billable transition is guarded in the service layer.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			owner, sessionID := IdempotencyScope(c)
			if op, exists, _ := lookup(c.Request.Context(), owner, sessionID, key, time.Now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyIdemOp, op)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
