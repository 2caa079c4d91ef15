package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserEmail carries the caller's e-mail identity as asserted by the
// upstream auth layer. The engine does not authenticate; it trusts this value
// the same way it trusts an owner_email field in a request body.
const HeaderUserEmail = "X-User-Email"

const ctxKeyOwner = "owner"

// Identity stashes the normalized X-User-Email value (lowercase, trimmed) so
// rate limiting, idempotency and handlers agree on who is calling.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserEmail))); v != "" {
			c.Set(ctxKeyOwner, v)
		}
		c.Next()
	}
}

// OwnerFrom returns the identity stashed by Identity, or "".
func OwnerFrom(c *gin.Context) string {
	v, ok := c.Get(ctxKeyOwner)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
