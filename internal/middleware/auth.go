package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/frictionless-support/support-service/internal/auth"
)

const principalKey = "principal"

// TokenParser verifies a bearer token.
type TokenParser interface {
	Parse(token string) (auth.Principal, error)
}

func bearer(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func guard(parser TokenParser, allowed func(auth.Principal) bool, denied string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}
		p, err := parser.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		if !allowed(p) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": denied})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func RequireAdmin(parser TokenParser) gin.HandlerFunc {
	return guard(parser, auth.Principal.IsAdmin, "admin access required")
}

func RequireSuperAdmin(parser TokenParser) gin.HandlerFunc {
	return guard(parser, auth.Principal.IsSuperAdmin, "only the super admin can perform this action")
}

func RequireClient(parser TokenParser) gin.HandlerFunc {
	return guard(parser, auth.Principal.IsClient, "client session required")
}

// PrincipalFrom returns the identity stored by one of the Require middlewares.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}
