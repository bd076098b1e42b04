package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/stickyboard/internal/moderation"
	"github.com/sujalbistaa/stickyboard/internal/ws"
)

const (
	throttleSweepInterval = 10 * time.Minute
	throttleIdle          = 30 * time.Minute
)

// Options carries the transport settings read from config.
type Options struct {
	AdminToken       string
	CORSOrigin       string
	InteractionRPS   float64
	InteractionBurst int
}

// Deps are the collaborators the routes dispatch to. Hub and Metrics are
// optional.
type Deps struct {
	Engine  *moderation.Engine
	Tracker *moderation.Tracker
	Stats   moderation.Aggregator
	Clock   moderation.Clock
	Hub     *ws.Hub
	Metrics http.Handler
	Logger  *slog.Logger
}

// SetupRoutes configures all application routes and middleware. Background
// work started here stops when ctx is done.
func SetupRoutes(ctx context.Context, router *gin.Engine, deps Deps, opts Options) {
	env := &Env{
		Engine:  deps.Engine,
		Tracker: deps.Tracker,
		Stats:   deps.Stats,
		Clock:   deps.Clock,
		Logger:  deps.Logger,
	}

	router.Use(gin.Recovery())
	router.Use(RequestLogger(deps.Logger))
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := opts.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Admin-Token", "X-Admin-Id"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: corsOrigin != "*",
	}))
	router.Use(ClientIdentityMiddleware())

	rps, burst := opts.InteractionRPS, opts.InteractionBurst
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 5
	}
	throttle := NewClientThrottle(rate.Limit(rps), burst)
	go throttle.RunJanitor(ctx, throttleSweepInterval, throttleIdle)
	interactions := ThrottleMiddleware(throttle)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api := router.Group("/api")
	{
		api.GET("/messages", env.ListMessages)
		api.POST("/messages", env.CreateMessage)
		api.GET("/messages/:id/comments", env.ListComments)
		api.POST("/messages/:id/comments", env.CreateComment)
		api.POST("/comments/:id/like", interactions, env.LikeComment)
		api.POST("/comments/:id/dislike", interactions, env.DislikeComment)
		api.POST("/comments/:id/report", interactions, env.ReportComment)
		api.POST("/reports", env.CreateViolationReport)
	}

	admin := api.Group("/admin", AdminAuthMiddleware(opts.AdminToken))
	{
		admin.GET("/messages", env.AdminListMessages)
		admin.POST("/messages/:id/moderate", env.AdminModerateMessage)
		admin.DELETE("/messages/:id", env.AdminDeleteMessage)
		admin.POST("/messages/:id/restore", env.AdminRestoreMessage)

		admin.GET("/comments", env.AdminListComments)
		admin.POST("/comments/:id/moderate", env.AdminModerateComment)
		admin.DELETE("/comments/:id", env.AdminDeleteComment)
		admin.POST("/comments/:id/restore", env.AdminRestoreComment)

		admin.GET("/stats", env.AdminStats)
		admin.GET("/reports", env.AdminListReports)
		admin.POST("/reports/:id/review", env.AdminReviewReport)
	}

	if deps.Hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			ws.ServeWs(deps.Hub, c.Writer, c.Request)
		})
	}
}
