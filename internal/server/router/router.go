package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/metrics"
	"github.com/agrosense/agrosense/internal/server/handlers"
)

const requestIDHeader = "X-Request-ID"

// Handlers groups the HTTP adapters served by the engine.
type Handlers struct {
	Batches *handlers.BatchHandler
	Session *handlers.SessionHandler
	Reports *handlers.ReportHandler
	Webhook *handlers.WebhookHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(zapLoggerMiddleware(logger))
	r.Use(metricsMiddleware(m))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api")
	if h.Batches != nil {
		b := api.Group("/batches")
		b.GET("", h.Batches.List)
		b.POST("", h.Batches.Create)
		b.GET("/expiry", h.Batches.Expiry)
		b.GET("/:id", h.Batches.Get)
		b.PUT("/:id/stage", h.Batches.UpdateStage)
		b.POST("/:id/harvest", h.Batches.RecordHarvest)
		b.PUT("/:id/environment", h.Batches.UpdateEnvironment)
		b.POST("/:id/maintenance", h.Batches.LogMaintenance)
		b.GET("/:id/prediction", h.Batches.Prediction)
		b.GET("/:id/prediction/latest", h.Batches.LatestPrediction)
	}
	if h.Session != nil {
		api.POST("/session", h.Session.SignIn)
		api.GET("/session", h.Session.Show)
		api.DELETE("/session", h.Session.SignOut)
	}
	if h.Reports != nil {
		api.GET("/reports/latest", h.Reports.Latest)
	}
	if h.Webhook != nil {
		r.GET("/webhook", h.Webhook.Verify)
		r.POST("/webhook", h.Webhook.Receive)
		r.POST("/send-message", h.Webhook.SendMessage)
	}

	logger.Info("router initialized", zap.Int("routes", len(r.Routes())))

	return r
}

// requestIDMiddleware propagates the caller's request ID or assigns one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("request completed", fields...)
	}
}

// metricsMiddleware records latency per route template so batch IDs do not
// explode label cardinality.
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
