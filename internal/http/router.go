package api

import (
	"log"
	stdhttp "net/http"

	intconfig "temani/internal/config"
	h "temani/internal/http/handlers"
	"temani/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth         h.AuthHandler
	Bookings     h.BookingHandler
	Verification h.VerificationHandler
	Requests     h.RequestHandler
	Receipts     h.ReceiptHandler
	Admin        h.AdminHandler
}

func NewRouter(env intconfig.Env, hs Handlers) *gin.Engine {
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS())

	if err := r.SetTrustedProxies(nil); err != nil {
		log.Printf("warning: failed to set trusted proxies: %v", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route tidak ditemukan",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	secret := []byte(env.JWTSecret)

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/db-check", h.DBCheck)
		api.GET("/routes", h.Routes)

		auth := api.Group("/auth")
		auth.POST("/register", hs.Auth.Register)
		auth.POST("/login", hs.Auth.Login)

		bookings := api.Group("/bookings")
		bookings.Use(middleware.RequireAuth(secret))
		bookings.POST("", hs.Bookings.Create)
		bookings.GET("", hs.Bookings.List)
		bookings.GET("/:id", hs.Bookings.Get)
		bookings.POST("/:id/accept", hs.Bookings.Accept)
		bookings.POST("/:id/cancel", hs.Bookings.Cancel)
		bookings.POST("/:id/complete", hs.Bookings.Complete)
		bookings.GET("/:id/receipt", hs.Receipts.Get)

		bookings.POST("/:id/verify", hs.Verification.Submit)
		bookings.GET("/:id/verify", hs.Verification.Status)
		bookings.POST("/:id/verify/extend", hs.Verification.Extend)
		bookings.GET("/:id/verify/attempts", hs.Verification.Attempts)

		requests := api.Group("/requests")
		requests.Use(middleware.RequireAuth(secret))
		requests.POST("", hs.Requests.Create)
		requests.GET("/:id", hs.Requests.Get)
		requests.POST("/:id/accept", hs.Requests.Accept)
		requests.POST("/:id/reject", hs.Requests.Reject)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireAuth(secret), middleware.RequireRole("admin"))
		admin.GET("/jobs", hs.Admin.ListJobs)
		admin.POST("/jobs/:name/run", hs.Admin.RunJob)
		admin.GET("/transfers/unsettled", hs.Admin.UnsettledTransfers)
		admin.POST("/transfers/:id/settle", hs.Admin.SettleTransfer)
	}

	return r
}
