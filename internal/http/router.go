// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers.
//
// Root middleware applies to every route (tracing, compression, metrics,
// CORS, security headers, body limit). The API group under APIBasePath adds
// the request pipeline in a fixed order:
//
//	RequestLogging → DBSession → Auth → RateLimiter → handler
//
// RequestLogging is outermost so that it sees, classifies and logs every
// error, including panics and failures raised by the later stages.
package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-service-shell/docs"
	"github.com/tbourn/go-service-shell/internal/config"
	"github.com/tbourn/go-service-shell/internal/http/handlers"
	"github.com/tbourn/go-service-shell/internal/http/middleware"
	"github.com/tbourn/go-service-shell/internal/repo"
	"github.com/tbourn/go-service-shell/internal/services"
	"github.com/tbourn/go-service-shell/internal/sysutil"
)

// maxBodyBytes caps request bodies on every route.
const maxBodyBytes = 1 << 20

var (
	corsMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	corsExpose  = []string{"X-Request-ID", "Content-Length"}
)

// New builds a Gin engine with every route registered.
func New(cfg config.Config, db *gorm.DB) (*gin.Engine, error) {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	r := gin.New()
	if err := RegisterRoutes(r, db, cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. Gzip (optional)
//  3. Metrics
//  4. CORS and security headers
//  5. Body size limiter
//
// Liveness (/health), /metrics and Swagger UI sit outside the API pipeline
// and never touch the database.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) error {
	svc, err := services.NewProjectService(db)
	if err != nil {
		return fmt.Errorf("httpapi: project service: %w", err)
	}
	h := handlers.New(svc, cfg)

	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, cfg.AppName)))
	if cfg.GzipEnabled {
		r.Use(gzip.Gzip(gzip.DefaultCompression))
	}
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptionsFrom(cfg.Security)))
	r.Use(limitBody(maxBodyBytes))

	r.NoRoute(handlers.NoRoute)
	r.NoMethod(handlers.NoMethod)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		docs.SwaggerInfo.Version = cfg.APIVersion
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.RequestLogging(middleware.RedactOptions{MaskHeaders: []string{"X-API-Key"}}),
		middleware.DBSession(repo.Sessions{DB: db}),
		middleware.Auth(middleware.AuthOptions{
			VerifySignature: cfg.JWT.VerifySignature,
			Algorithm:       cfg.JWT.Algorithm,
			Secret:          []byte(cfg.JWT.Secret),
		}),
		rl.Handler(),
	)
	{
		api.GET("/healthcheck/", h.HealthCheck)
		api.GET("/healthcheck/details", h.HealthDetails)

		api.GET("/errorcheck/conflict", h.ConflictCheck)
		api.GET("/errorcheck/system", h.SystemCheck)
		api.GET("/errorcheck/db", h.DBCheck)

		api.POST("/projects", h.CreateProject)
		api.GET("/projects", h.ListProjects)
		api.GET("/projects/:id", h.GetProject)
		api.PUT("/projects/:id", h.UpdateProject)
		api.DELETE("/projects/:id", h.DeleteProject)
		api.POST("/projects/:id/tasks", h.CreateTask)
		api.GET("/projects/:id/tasks", h.ListTasks)
	}
	return nil
}

// corsMiddleware returns the CORS posture: allow all origins when none are
// configured, otherwise echo only allow-listed origins.
func corsMiddleware(cfg config.CORSConfig) []gin.HandlerFunc {
	if len(cfg.AllowedOrigins) == 0 {
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header (simple health probes).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     corsMethods,
				AllowHeaders:     corsHeaders,
				ExposeHeaders:    corsExpose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps the request body size using http.MaxBytesReader. Reads
// beyond maxBytes fail, which the handlers report as BAD_REQUEST.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
