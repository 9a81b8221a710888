package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpy/paths"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/frictionless-support/support-service/api"
	"github.com/frictionless-support/support-service/internal/handler"
	"github.com/frictionless-support/support-service/internal/middleware"
)

type Deps struct {
	Tickets        *handler.TicketHandler
	Admins         *handler.AdminHandler
	Auth           *handler.AuthHandler
	Tokens         middleware.TokenParser
	DB             handler.Pinger
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
}

func New(d Deps) http.Handler {
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.SecureHeaders())

	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready(d.DB))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	admin := middleware.RequireAdmin(d.Tokens)
	client := middleware.RequireClient(d.Tokens)

	a := r.Group("/api")
	if d.RateLimiter != nil {
		a.Use(d.RateLimiter.Middleware())
	}
	{
		a.POST("/auth/send-otp", d.Auth.SendOTP)
		a.POST("/auth/verify-otp", d.Auth.VerifyOTP)

		a.POST("/tickets", d.Tickets.Create)
		a.GET("/tickets", admin, d.Tickets.List)
		a.GET("/tickets/history", client, d.Tickets.History)
		a.GET("/tickets/:id", admin, d.Tickets.Get)
		a.PATCH("/tickets/:id/lock", admin, d.Tickets.Lock)
		a.PATCH("/tickets/:id/resolve", admin, d.Tickets.Resolve)
		a.PATCH("/tickets/:id/transfer/initiate", admin, d.Tickets.InitiateTransfer)
		a.PATCH("/tickets/:id/transfer/accept", admin, d.Tickets.AcceptTransfer)
		a.PATCH("/tickets/:id/transfer/reject", admin, d.Tickets.RejectTransfer)
		a.PATCH("/tickets/:id/feedback", client, d.Tickets.Feedback)

		a.POST("/admin/login", d.Admins.Login)
		a.POST("/admin/create", middleware.RequireSuperAdmin(d.Tokens), d.Admins.Create)
		a.GET("/admin/stats", admin, d.Admins.Stats)
		a.GET("/admin/all", admin, d.Admins.List)
		a.PATCH("/admin/change-password", admin, d.Admins.ChangePassword)
	}

	return cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: !allowsAny(d.AllowedOrigins),
	}).Handler(r)
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
