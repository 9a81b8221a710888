package middleware

import (
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// SecureHeaders sets conservative browser security headers on every response.
// HSTS is only sent on TLS requests.
func SecureHeaders() gin.HandlerFunc {
	return secure.New(secure.Config{
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		IENoOpen:             true,
		ReferrerPolicy:       "no-referrer",
		STSSeconds:           15552000,
		STSIncludeSubdomains: true,
	})
}
