package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"krishimitra/carbon-registry/registry-backend/internal/ledger"
)

const principalKey = "principal"

// AuthRequired resolves the calling principal from a bearer token. Identity
// issuance lives in the platform's auth service; this middleware only
// validates the signature and extracts the subject.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return
		}

		c.Set(principalKey, ledger.Principal(subject))
		c.Next()
	}
}

func callerPrincipal(c *gin.Context) ledger.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(ledger.Principal); ok {
			return p
		}
	}
	return ""
}
