package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const errUnauthorized = "Unauthorized"

// Auth guards mutating ingestion routes with a flat HS256 bearer token.
// There is no per-tenant identity in this system (no users table), so
// unlike the teacher's JWKS/Clerk guard this only checks that the token was
// signed with the shared secret; it sets no caller identity in the
// context. Grounded on the teacher's HMAC auth variant
// (internal/transport/http/middleware/auth.go, superseded), generalized
// from golang-jwt/jwt/v4-style usage to v5.
//
// An empty secret disables the guard, for local development only.
func Auth(secret []byte) gin.HandlerFunc {
	if len(secret) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		rawToken := strings.TrimPrefix(header, "Bearer ")

		_, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Next()
	}
}
